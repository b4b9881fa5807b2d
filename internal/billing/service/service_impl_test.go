package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/coverview/creditd/internal/clock"
	"github.com/coverview/creditd/internal/config"
	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	ledgerservice "github.com/coverview/creditd/internal/ledger/service"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	usageservice "github.com/coverview/creditd/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeCompleter struct {
	content string
	err     error
	errOnce bool // err applies to the first call only
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, req billingdomain.CompletionRequest) (string, error) {
	f.calls++
	if f.errOnce && f.calls > 1 {
		return f.content, nil
	}
	return f.content, f.err
}

type fakeImages struct {
	image *billingdomain.Image
	err   error
	// last prompt the generator was asked for
	prompt string
}

func (f *fakeImages) Generate(ctx context.Context, params billingdomain.ImageParams) (*billingdomain.Image, error) {
	f.prompt = params.Prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

type fixture struct {
	svc    billingdomain.Service
	ledger ledgerdomain.Service
	usage  usagedomain.Service
	llm    *fakeCompleter
	images *fakeImages
}

func setup(t *testing.T, grant int64, llm *fakeCompleter, images *fakeImages) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Account{}, &ledgerdomain.Transaction{}, &usagedomain.UsageCounter{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.DefaultBillingConfig()
	cfg.SignupGrant = grant
	holder := config.NewStaticBillingConfigHolder(cfg)
	log := zaptest.NewLogger(t)

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Billing: holder,
	})
	usageSvc := usageservice.NewService(usageservice.Params{
		DB: db, Log: log, GenID: node, Billing: holder, Clock: clock.NewSystemClock(),
	})

	if llm == nil {
		llm = &fakeCompleter{content: "1. Better Title"}
	}
	if images == nil {
		images = &fakeImages{image: &billingdomain.Image{MIME: "image/png", Data: []byte{1, 2, 3}}}
	}

	svc := NewService(Params{
		Log:       log,
		Ledger:    ledgerSvc,
		Usage:     usageSvc,
		Billing:   holder,
		Completer: llm,
		Images:    images,
	})

	return &fixture{svc: svc, ledger: ledgerSvc, usage: usageSvc, llm: llm, images: images}
}

func balance(t *testing.T, f *fixture, userID string) int64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return bal
}

func TestOptimizeTitleHappyPath(t *testing.T) {
	f := setup(t, 10, &fakeCompleter{content: "1. Ship Faster\n2. Build Better\n3. Launch Today"}, nil)

	resp, err := f.svc.OptimizeTitle(context.Background(), "user-1", billingdomain.OptimizeTitleRequest{
		Title: "My Post",
		Style: billingdomain.TitleStyleCatchy,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ship Faster", "Build Better", "Launch Today"}, resp.Suggestions)
	assert.Equal(t, int64(1), resp.Cost)
	assert.Equal(t, int64(9), resp.Credits)
	assert.Equal(t, int64(9), balance(t, f, "user-1"))

	summary, err := f.usage.Summary(context.Background(), "user-1")
	require.NoError(t, err)
	for _, c := range summary.Categories {
		if c.Category == usagedomain.CategoryAIOptimizations {
			assert.Equal(t, int64(1), c.Used)
		}
	}
}

func TestOptimizeTitleInsufficientCredits(t *testing.T) {
	f := setup(t, 0, nil, nil)

	_, err := f.svc.OptimizeTitle(context.Background(), "user-1", billingdomain.OptimizeTitleRequest{
		Title: "My Post",
	})
	var insufficient *billingdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.Required)
	assert.Equal(t, int64(0), insufficient.Current)
	// rejected before the provider was called
	assert.Zero(t, f.llm.calls)
}

func TestOptimizeTitleRefundsOnProviderFailure(t *testing.T) {
	f := setup(t, 10, &fakeCompleter{err: errors.New("upstream down")}, nil)

	_, err := f.svc.OptimizeTitle(context.Background(), "user-1", billingdomain.OptimizeTitleRequest{
		Title: "My Post",
	})
	require.ErrorIs(t, err, billingdomain.ErrProviderFailure)
	assert.Equal(t, int64(10), balance(t, f, "user-1"))

	// the reversal is recorded, not silently erased
	list, err := f.ledger.ListTransactions(context.Background(), ledgerdomain.ListTransactionsRequest{UserID: "user-1"})
	require.NoError(t, err)
	var sum int64
	for _, tx := range list.Transactions {
		sum += tx.Amount
	}
	assert.Equal(t, int64(10), sum)
	assert.GreaterOrEqual(t, len(list.Transactions), 3)
}

func TestOptimizeTitleRefundsOnEmptyCompletion(t *testing.T) {
	f := setup(t, 10, &fakeCompleter{content: "   \n  "}, nil)

	_, err := f.svc.OptimizeTitle(context.Background(), "user-1", billingdomain.OptimizeTitleRequest{
		Title: "My Post",
	})
	require.ErrorIs(t, err, billingdomain.ErrProviderFailure)
	assert.Equal(t, int64(10), balance(t, f, "user-1"))
}

func TestOptimizeTitleValidation(t *testing.T) {
	f := setup(t, 10, nil, nil)

	_, err := f.svc.OptimizeTitle(context.Background(), "user-1", billingdomain.OptimizeTitleRequest{Title: "  "})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidTitle)

	_, err = f.svc.OptimizeTitle(context.Background(), "user-1", billingdomain.OptimizeTitleRequest{
		Title: "ok", Style: "dramatic",
	})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidStyle)

	// nothing was charged
	assert.Equal(t, int64(10), balance(t, f, "user-1"))
}

func TestOptimizeTitleIdempotentRetry(t *testing.T) {
	f := setup(t, 10, nil, nil)

	req := billingdomain.OptimizeTitleRequest{Title: "My Post", RequestID: "req-abc"}
	first, err := f.svc.OptimizeTitle(context.Background(), "user-1", req)
	require.NoError(t, err)
	second, err := f.svc.OptimizeTitle(context.Background(), "user-1", req)
	require.NoError(t, err)

	// the retry replays the debit instead of charging twice
	assert.Equal(t, first.Credits, second.Credits)
	assert.Equal(t, int64(9), balance(t, f, "user-1"))
}

func TestOptimizeTitleRetryAfterRefundBillsAgain(t *testing.T) {
	f := setup(t, 10, &fakeCompleter{content: "1. Better Title", err: errors.New("upstream down"), errOnce: true}, nil)

	req := billingdomain.OptimizeTitleRequest{Title: "My Post", RequestID: "req-retry"}
	_, err := f.svc.OptimizeTitle(context.Background(), "user-1", req)
	require.ErrorIs(t, err, billingdomain.ErrProviderFailure)
	assert.Equal(t, int64(10), balance(t, f, "user-1"))

	// the refund released the request id, so the retry is a real charge
	resp, err := f.svc.OptimizeTitle(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, int64(9), resp.Credits)
	assert.Equal(t, int64(9), balance(t, f, "user-1"))

	list, err := f.ledger.ListTransactions(context.Background(), ledgerdomain.ListTransactionsRequest{UserID: "user-1"})
	require.NoError(t, err)
	var debits, refunds int
	for _, tx := range list.Transactions {
		if tx.Amount < 0 {
			debits++
		}
		if strings.HasPrefix(tx.Description, "refund:") {
			refunds++
		}
	}
	assert.Equal(t, 2, debits)
	assert.Equal(t, 1, refunds)
}

func TestGenerateImageHappyPath(t *testing.T) {
	llm := &fakeCompleter{content: "a serene mountain lake at dawn"}
	f := setup(t, 20, llm, nil)

	resp, err := f.svc.GenerateImage(context.Background(), "user-1", billingdomain.GenerateImageRequest{
		Prompt: "mountains",
		Title:  "Hiking Guide",
		Style:  billingdomain.ImageStyleRealistic,
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AQID", resp.URL)
	assert.Equal(t, int64(10), resp.Cost)
	assert.Equal(t, int64(10), resp.Credits)
	assert.Equal(t, "a serene mountain lake at dawn", resp.Prompt)
	// style keywords are appended to what the generator sees
	assert.Contains(t, f.images.prompt, "photorealistic")
}

func TestGenerateImageRefineFallback(t *testing.T) {
	f := setup(t, 20, &fakeCompleter{err: errors.New("llm down")}, nil)

	resp, err := f.svc.GenerateImage(context.Background(), "user-1", billingdomain.GenerateImageRequest{
		Prompt: "city skyline at night",
	})
	require.NoError(t, err)
	// refinement failure falls back to the raw description, call still billed once
	assert.Equal(t, "city skyline at night", resp.Prompt)
	assert.Equal(t, int64(10), balance(t, f, "user-1"))
}

func TestGenerateImageRefundsOnProviderFailure(t *testing.T) {
	f := setup(t, 20, nil, &fakeImages{err: errors.New("generation failed")})

	_, err := f.svc.GenerateImage(context.Background(), "user-1", billingdomain.GenerateImageRequest{
		Prompt: "anything",
	})
	require.ErrorIs(t, err, billingdomain.ErrProviderFailure)
	assert.Equal(t, int64(20), balance(t, f, "user-1"))
}

func TestGenerateImageInsufficientCredits(t *testing.T) {
	f := setup(t, 5, nil, nil)

	_, err := f.svc.GenerateImage(context.Background(), "user-1", billingdomain.GenerateImageRequest{
		Prompt: "anything",
	})
	var insufficient *billingdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(10), insufficient.Required)
	assert.Equal(t, int64(5), insufficient.Current)
	assert.Equal(t, int64(5), balance(t, f, "user-1"))
}

func TestGenerateImageValidation(t *testing.T) {
	f := setup(t, 20, nil, nil)

	_, err := f.svc.GenerateImage(context.Background(), "user-1", billingdomain.GenerateImageRequest{})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidPrompt)

	_, err = f.svc.GenerateImage(context.Background(), "user-1", billingdomain.GenerateImageRequest{
		Prompt: "ok", Style: "vaporwave",
	})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidStyle)
}

func TestParseSuggestions(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"numbered", "1. One\n2. Two\n3. Three", []string{"One", "Two", "Three"}},
		{"plain lines", "One\nTwo", []string{"One", "Two"}},
		{"blank lines skipped", "One\n\n\nTwo\n", []string{"One", "Two"}},
		{"single", "Just One Suggestion", []string{"Just One Suggestion"}},
		{"empty", "   ", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseSuggestions(tc.in))
		})
	}
}
