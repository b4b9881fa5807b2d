package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coverview/creditd/internal/auth"
	authdomain "github.com/coverview/creditd/internal/auth/domain"
	"github.com/coverview/creditd/internal/billing"
	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/coverview/creditd/internal/config"
	"github.com/coverview/creditd/internal/ledger"
	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	"github.com/coverview/creditd/internal/metrics"
	"github.com/coverview/creditd/internal/providers"
	"github.com/coverview/creditd/internal/ratelimit"
	"github.com/coverview/creditd/internal/usage"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	metrics.Module,
	auth.Module,
	ledger.Module,
	usage.Module,
	providers.Module,
	billing.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(metrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	authSvc    authdomain.Service
	billingSvc billingdomain.Service
	ledgerSvc  ledgerdomain.Service
	usageSvc   usagedomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	AuthSvc    authdomain.Service
	BillingSvc billingdomain.Service
	LedgerSvc  ledgerdomain.Service
	UsageSvc   usagedomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		authSvc:    p.AuthSvc,
		billingSvc: p.BillingSvc,
		ledgerSvc:  p.LedgerSvc,
		usageSvc:   p.UsageSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	authed := v1.Group("")
	authed.Use(s.AuthRequired())
	{
		authed.POST("/ai/optimize-title", s.OptimizeTitle)
		authed.POST("/ai/generate-image", s.GenerateImage)
		authed.GET("/credits", s.GetCredits)
		authed.GET("/credits/transactions", s.ListTransactions)
		authed.GET("/usage", s.GetUsage)
	}

	// Token issuance is an operator surface; it is only mounted outside
	// production.
	if !s.cfg.IsProduction() {
		v1.POST("/tokens", s.IssueToken)
		v1.DELETE("/tokens/:id", s.RevokeToken)
	}
}
