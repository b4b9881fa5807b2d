package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/coverview/creditd/internal/clock"
	"github.com/coverview/creditd/internal/config"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupUsage(t *testing.T, fake *clock.FakeClock) usagedomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&usagedomain.UsageCounter{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Clock:   fake,
	})
}

func TestSummaryDefaults(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := setupUsage(t, fake)
	ctx := context.Background()

	summary, err := svc.Summary(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "2026-03", summary.Month)
	require.Len(t, summary.Categories, 3)

	byCategory := map[string]usagedomain.CategorySummary{}
	for _, entry := range summary.Categories {
		byCategory[entry.Category] = entry
	}
	require.Equal(t, int64(10), byCategory[usagedomain.CategoryAIOptimizations].Quota)
	require.Equal(t, int64(3), byCategory[usagedomain.CategoryImageGenerations].Quota)
	require.Equal(t, int64(20), byCategory[usagedomain.CategoryColorRecommendations].Quota)
	for _, entry := range summary.Categories {
		require.Equal(t, int64(0), entry.Used)
		require.Equal(t, entry.Quota, entry.Remaining)
	}
}

// Reading the summary twice without intervening activity returns identical values.
func TestSummaryStableRead(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := setupUsage(t, fake)
	ctx := context.Background()

	require.NoError(t, svc.Increment(ctx, "user-2", usagedomain.CategoryImageGenerations))

	first, err := svc.Summary(ctx, "user-2")
	require.NoError(t, err)
	second, err := svc.Summary(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestIncrementAndRemaining(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := setupUsage(t, fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Increment(ctx, "user-3", usagedomain.CategoryImageGenerations))
	}

	ok, err := svc.CanUse(ctx, "user-3", usagedomain.CategoryImageGenerations)
	require.NoError(t, err)
	require.False(t, ok, "quota of 3 must be exhausted")

	ok, err = svc.CanUse(ctx, "user-3", usagedomain.CategoryAIOptimizations)
	require.NoError(t, err)
	require.True(t, ok)

	// Remaining never goes negative even when usage overruns the quota.
	require.NoError(t, svc.Increment(ctx, "user-3", usagedomain.CategoryImageGenerations))
	summary, err := svc.Summary(ctx, "user-3")
	require.NoError(t, err)
	for _, entry := range summary.Categories {
		if entry.Category == usagedomain.CategoryImageGenerations {
			require.Equal(t, int64(4), entry.Used)
			require.Equal(t, int64(0), entry.Remaining)
		}
	}
}

func TestIncrementConcurrent(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := setupUsage(t, fake)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Increment(ctx, "user-4", usagedomain.CategoryAIOptimizations); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	summary, err := svc.Summary(ctx, "user-4")
	require.NoError(t, err)
	for _, entry := range summary.Categories {
		if entry.Category == usagedomain.CategoryAIOptimizations {
			require.Equal(t, int64(8), entry.Used)
		}
	}
}

func TestMonthRollover(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))
	svc := setupUsage(t, fake)
	ctx := context.Background()

	require.NoError(t, svc.Increment(ctx, "user-5", usagedomain.CategoryImageGenerations))
	require.NoError(t, svc.Increment(ctx, "user-5", usagedomain.CategoryImageGenerations))
	require.NoError(t, svc.Increment(ctx, "user-5", usagedomain.CategoryImageGenerations))

	ok, err := svc.CanUse(ctx, "user-5", usagedomain.CategoryImageGenerations)
	require.NoError(t, err)
	require.False(t, ok)

	fake.Advance(2 * time.Hour) // into April

	ok, err = svc.CanUse(ctx, "user-5", usagedomain.CategoryImageGenerations)
	require.NoError(t, err)
	require.True(t, ok, "quota resets with the month")
}

func TestIncrementUnknownCategory(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := setupUsage(t, fake)

	err := svc.Increment(context.Background(), "user-6", "nonsense")
	require.ErrorIs(t, err, usagedomain.ErrUnknownCategory)
}
