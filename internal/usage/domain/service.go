package domain

import (
	"context"
	"errors"
)

const (
	CategoryAIOptimizations      = "ai_optimizations"
	CategoryImageGenerations     = "image_generations"
	CategoryColorRecommendations = "color_recommendations"
)

type CategorySummary struct {
	Category  string `json:"category"`
	Used      int64  `json:"used"`
	Quota     int64  `json:"quota"`
	Remaining int64  `json:"remaining"`
}

type SummaryResponse struct {
	Month      string            `json:"month"`
	Categories []CategorySummary `json:"categories"`
}

// Service is the read-side quota view. It is advisory for clients; the credit
// ledger is the enforcement mechanism.
type Service interface {
	Summary(ctx context.Context, userID string) (SummaryResponse, error)
	CanUse(ctx context.Context, userID, category string) (bool, error)
	Increment(ctx context.Context, userID, category string) error
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrUnknownCategory = errors.New("unknown_category")
)
