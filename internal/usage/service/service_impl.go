package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/coverview/creditd/internal/clock"
	"github.com/coverview/creditd/internal/config"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	"github.com/coverview/creditd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const monthFormat = "2006-01"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Billing *config.BillingConfigHolder
	Clock   clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	billing *config.BillingConfigHolder
	clock   clock.Clock
}

func NewService(p Params) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		billing: p.Billing,
		clock:   p.Clock,
	}
}

func (s *Service) Summary(ctx context.Context, userID string) (usagedomain.SummaryResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return usagedomain.SummaryResponse{}, usagedomain.ErrInvalidUser
	}

	month := s.clock.Now().Format(monthFormat)
	quotas := s.billing.Get().FreeQuotas

	var counters []usagedomain.UsageCounter
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND month = ?", userID, month).
		Find(&counters).Error; err != nil {
		return usagedomain.SummaryResponse{}, err
	}

	used := make(map[string]int64, len(counters))
	for _, counter := range counters {
		used[counter.Category] = counter.Used
	}

	categories := make([]usagedomain.CategorySummary, 0, len(quotas))
	for category, quota := range quotas {
		remaining := quota - used[category]
		if remaining < 0 {
			remaining = 0
		}
		categories = append(categories, usagedomain.CategorySummary{
			Category:  category,
			Used:      used[category],
			Quota:     quota,
			Remaining: remaining,
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Category < categories[j].Category
	})

	return usagedomain.SummaryResponse{Month: month, Categories: categories}, nil
}

func (s *Service) CanUse(ctx context.Context, userID, category string) (bool, error) {
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, entry := range summary.Categories {
		if entry.Category == category {
			return entry.Remaining > 0, nil
		}
	}
	return false, usagedomain.ErrUnknownCategory
}

// Increment bumps the month counter for one category, creating the row on
// first use. The bump is a single atomic UPDATE so concurrent requests
// cannot lose increments.
func (s *Service) Increment(ctx context.Context, userID, category string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return usagedomain.ErrInvalidUser
	}
	if _, ok := s.billing.Get().FreeQuotas[category]; !ok {
		return usagedomain.ErrUnknownCategory
	}

	month := s.clock.Now().Format(monthFormat)
	now := time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&usagedomain.UsageCounter{}).
		Where("user_id = ? AND category = ? AND month = ?", userID, category, month).
		Updates(map[string]any{
			"used":       gorm.Expr("used + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	counter := usagedomain.UsageCounter{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Category:  category,
		Month:     month,
		Used:      1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&counter).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			// lost the creation race; retry the bump
			return s.db.WithContext(ctx).Model(&usagedomain.UsageCounter{}).
				Where("user_id = ? AND category = ? AND month = ?", userID, category, month).
				Updates(map[string]any{
					"used":       gorm.Expr("used + 1"),
					"updated_at": now,
				}).Error
		}
		return err
	}
	return nil
}
