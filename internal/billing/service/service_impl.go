package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/coverview/creditd/internal/config"
	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	"github.com/coverview/creditd/internal/metrics"
	"github.com/coverview/creditd/internal/ratelimit"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const generationLockTTL = 90 * time.Second

type Params struct {
	fx.In

	Log       *zap.Logger
	Ledger    ledgerdomain.Service
	Usage     usagedomain.Service
	Billing   *config.BillingConfigHolder
	Completer billingdomain.Completer
	Images    billingdomain.ImageGenerator
	Metrics   *metrics.BillingMetrics `optional:"true"`
	Locker    *ratelimit.Locker       `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	ledger    ledgerdomain.Service
	usage     usagedomain.Service
	billing   *config.BillingConfigHolder
	completer billingdomain.Completer
	images    billingdomain.ImageGenerator
	metrics   *metrics.BillingMetrics
	locker    *ratelimit.Locker
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		log:       p.Log.Named("billing.service"),
		ledger:    p.Ledger,
		usage:     p.Usage,
		billing:   p.Billing,
		completer: p.Completer,
		images:    p.Images,
		metrics:   p.Metrics,
		locker:    p.Locker,
	}
}

func (s *Service) OptimizeTitle(ctx context.Context, userID string, req billingdomain.OptimizeTitleRequest) (*billingdomain.OptimizeTitleResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, billingdomain.ErrInvalidTitle
	}
	style, err := normalizeTitleStyle(req.Style)
	if err != nil {
		return nil, err
	}

	cfg := s.billing.Get()
	cost := cfg.Costs[config.FeatureTitleOptimization]
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = cfg.DefaultTitleModel
	}

	debit, err := s.debit(ctx, userID, cost, "AI Title Optimization",
		map[string]any{"type": "title"}, req.RequestID, config.FeatureTitleOptimization)
	if err != nil {
		return nil, err
	}

	prompt := titlePromptFor(style, title)
	start := time.Now()
	content, err := s.completer.Complete(ctx, billingdomain.CompletionRequest{
		Model:       model,
		System:      prompt.system,
		Prompt:      prompt.user,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	s.observeProvider("openrouter", start, err)
	if err != nil {
		s.refund(ctx, userID, cost, "llm call failed", config.FeatureTitleOptimization, debit.Transaction)
		return nil, fmt.Errorf("%w: %v", billingdomain.ErrProviderFailure, err)
	}

	suggestions := parseSuggestions(content)
	if len(suggestions) == 0 {
		s.refund(ctx, userID, cost, "empty llm response", config.FeatureTitleOptimization, debit.Transaction)
		return nil, fmt.Errorf("%w: empty completion", billingdomain.ErrProviderFailure)
	}

	s.bumpUsage(ctx, userID, usagedomain.CategoryAIOptimizations)

	return &billingdomain.OptimizeTitleResponse{
		Suggestions: suggestions,
		Credits:     debit.Balance,
		Cost:        cost,
	}, nil
}

func (s *Service) GenerateImage(ctx context.Context, userID string, req billingdomain.GenerateImageRequest) (*billingdomain.GenerateImageResponse, error) {
	description := strings.TrimSpace(req.Prompt)
	title := strings.TrimSpace(req.Title)
	if description == "" && title == "" {
		return nil, billingdomain.ErrInvalidPrompt
	}
	style, err := normalizeImageStyle(req.Style)
	if err != nil {
		return nil, err
	}

	cfg := s.billing.Get()
	cost := cfg.Costs[config.FeatureImageGeneration]
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = cfg.DefaultImageModel
	}

	if s.locker != nil {
		key := "imagegen:" + userID
		token, ok, lockErr := s.locker.TryLock(ctx, key, generationLockTTL)
		if lockErr != nil {
			s.log.Warn("generation lock unavailable", zap.Error(lockErr))
		} else if !ok {
			return nil, billingdomain.ErrBusy
		} else {
			defer func() {
				if releaseErr := s.locker.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
					s.log.Warn("generation lock release failed", zap.Error(releaseErr))
				}
			}()
		}
	}

	debit, err := s.debit(ctx, userID, cost, "AI Image Generation",
		map[string]any{"model": model}, req.RequestID, config.FeatureImageGeneration)
	if err != nil {
		return nil, err
	}

	// Prompt refinement is best effort: a failed refinement falls back to the
	// raw description and is never billed separately.
	refined := description
	if refined == "" {
		refined = "A creative cover image"
	}
	start := time.Now()
	aiPrompt, refineErr := s.completer.Complete(ctx, billingdomain.CompletionRequest{
		Model:     cfg.DefaultTitleModel,
		System:    refineSystemPrompt,
		Prompt:    refineUserPrompt(title, style, description),
		MaxTokens: 200,
	})
	s.observeProvider("openrouter", start, refineErr)
	if refineErr != nil {
		s.log.Warn("prompt refinement failed, using raw description", zap.Error(refineErr))
	} else if trimmed := strings.TrimSpace(aiPrompt); trimmed != "" {
		refined = trimmed
	}

	fullPrompt := refined + ", " + imageStyleKeywords[style]

	start = time.Now()
	image, err := s.images.Generate(ctx, billingdomain.ImageParams{
		Prompt: fullPrompt,
		Model:  model,
		Width:  1024,
		Height: 512,
		Seed:   rand.Int63n(1_000_000),
	})
	s.observeProvider("pollinations", start, err)
	if err != nil {
		s.refund(ctx, userID, cost, "image provider failed", config.FeatureImageGeneration, debit.Transaction)
		return nil, fmt.Errorf("%w: %v", billingdomain.ErrProviderFailure, err)
	}

	s.bumpUsage(ctx, userID, usagedomain.CategoryImageGenerations)

	dataURL := "data:" + image.MIME + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
	return &billingdomain.GenerateImageResponse{
		URL:     dataURL,
		Credits: debit.Balance,
		Cost:    cost,
		Prompt:  refined,
	}, nil
}

func (s *Service) debit(ctx context.Context, userID string, cost int64, description string, metadata map[string]any, requestID, feature string) (*ledgerdomain.DebitResult, error) {
	start := time.Now()
	var reqID *string
	if trimmed := strings.TrimSpace(requestID); trimmed != "" {
		reqID = &trimmed
	}

	res, err := s.ledger.Debit(ctx, ledgerdomain.DebitRequest{
		UserID:      userID,
		Amount:      cost,
		Description: description,
		Metadata:    metadata,
		RequestID:   reqID,
	})
	if s.metrics != nil {
		s.metrics.DebitDuration.WithLabelValues(feature).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.DebitTotal.WithLabelValues(feature, "error").Inc()
		}
		return nil, err
	}
	if !res.Success {
		if s.metrics != nil {
			s.metrics.DebitTotal.WithLabelValues(feature, "insufficient").Inc()
		}
		return nil, &billingdomain.InsufficientCreditsError{Required: cost, Current: res.Balance}
	}
	if s.metrics != nil {
		s.metrics.DebitTotal.WithLabelValues(feature, "success").Inc()
		s.metrics.DebitAmount.WithLabelValues(feature).Add(float64(cost))
	}
	return res, nil
}

// refund reverses a debit whose provider call did not deliver. The request id
// is derived from the debit movement so a retried refund cannot double-credit,
// and the debit's own request id is voided so a client retry of the failed
// request is billed as a fresh attempt.
func (s *Service) refund(ctx context.Context, userID string, amount int64, reason, feature string, debit *ledgerdomain.Transaction) {
	refundID := "refund:" + debit.ID.String()

	// The provider failure may have cancelled or expired the request context;
	// the compensation must still run.
	res, err := s.ledger.Credit(context.WithoutCancel(ctx), ledgerdomain.CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Description: "refund: " + reason,
		Metadata:    map[string]any{"debit_id": debit.ID.String()},
		RequestID:   &refundID,
		Voids:       debit.ID,
	})
	if err != nil {
		// Balance no longer reflects delivered value; needs operator attention.
		s.log.Error("refund failed after provider failure",
			zap.String("user_id", userID),
			zap.String("debit_id", debit.ID.String()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return
	}

	if s.metrics != nil {
		s.metrics.RefundTotal.WithLabelValues(feature).Inc()
		s.metrics.RefundAmount.WithLabelValues(feature).Add(float64(amount))
	}
	s.log.Info("debit refunded",
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.Int64("balance", res.Balance),
	)
}

func (s *Service) bumpUsage(ctx context.Context, userID, category string) {
	if err := s.usage.Increment(context.WithoutCancel(ctx), userID, category); err != nil {
		// advisory counter only, never affects billing
		s.log.Warn("usage counter bump failed",
			zap.String("user_id", userID),
			zap.String("category", category),
			zap.Error(err),
		)
	}
}

func (s *Service) observeProvider(provider string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.ProviderCallTotal.WithLabelValues(provider, result).Inc()
	s.metrics.ProviderCallDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

var listPrefix = regexp.MustCompile(`^\d+\.\s*`)

func parseSuggestions(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var suggestions []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(listPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			suggestions = append(suggestions, line)
		}
	}
	if len(suggestions) == 0 {
		suggestions = []string{content}
	}
	return suggestions
}

func normalizeTitleStyle(style billingdomain.TitleStyle) (billingdomain.TitleStyle, error) {
	switch billingdomain.TitleStyle(strings.ToLower(strings.TrimSpace(string(style)))) {
	case "":
		return billingdomain.TitleStyleProfessional, nil
	case billingdomain.TitleStyleProfessional:
		return billingdomain.TitleStyleProfessional, nil
	case billingdomain.TitleStyleCatchy:
		return billingdomain.TitleStyleCatchy, nil
	case billingdomain.TitleStyleSimple:
		return billingdomain.TitleStyleSimple, nil
	default:
		return "", billingdomain.ErrInvalidStyle
	}
}

func normalizeImageStyle(style billingdomain.ImageStyle) (billingdomain.ImageStyle, error) {
	normalized := billingdomain.ImageStyle(strings.ToLower(strings.TrimSpace(string(style))))
	if normalized == "" {
		return billingdomain.ImageStyleRealistic, nil
	}
	if _, ok := imageStyleKeywords[normalized]; !ok {
		return "", billingdomain.ErrInvalidStyle
	}
	return normalized, nil
}
