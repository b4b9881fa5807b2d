// Package domain defines the billed AI operations and their provider contracts.
package domain

import (
	"context"
	"errors"
	"fmt"
)

type TitleStyle string

const (
	TitleStyleProfessional TitleStyle = "professional"
	TitleStyleCatchy       TitleStyle = "catchy"
	TitleStyleSimple       TitleStyle = "simple"
)

type ImageStyle string

const (
	ImageStyleRealistic  ImageStyle = "realistic"
	ImageStyleArtistic   ImageStyle = "artistic"
	ImageStyleAnime      ImageStyle = "anime"
	ImageStyleFantasy    ImageStyle = "fantasy"
	ImageStyleCyberpunk  ImageStyle = "cyberpunk"
	ImageStyleMinimalist ImageStyle = "minimalist"
)

type OptimizeTitleRequest struct {
	Title     string     `json:"title"`
	Style     TitleStyle `json:"style"`
	Model     string     `json:"model"`
	RequestID string     `json:"request_id"`
}

type OptimizeTitleResponse struct {
	Suggestions []string `json:"suggestions"`
	Credits     int64    `json:"credits"`
	Cost        int64    `json:"cost"`
}

type GenerateImageRequest struct {
	Prompt    string     `json:"prompt"`
	Title     string     `json:"title"`
	Style     ImageStyle `json:"style"`
	Model     string     `json:"model"`
	RequestID string     `json:"request_id"`
}

type GenerateImageResponse struct {
	// URL is a data URL embedding the generated image.
	URL     string `json:"url"`
	Credits int64  `json:"credits"`
	Cost    int64  `json:"cost"`
	// Prompt is the refined prompt actually sent to the image provider.
	Prompt string `json:"prompt"`
}

// Service runs the paid AI features: authenticate (done by the caller),
// debit, call the provider, and refund the debit when the provider fails.
type Service interface {
	OptimizeTitle(ctx context.Context, userID string, req OptimizeTitleRequest) (*OptimizeTitleResponse, error)
	GenerateImage(ctx context.Context, userID string, req GenerateImageRequest) (*GenerateImageResponse, error)
}

// CompletionRequest is a single LLM chat completion call.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer is the LLM provider contract.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ImageParams is a single text-to-image call.
type ImageParams struct {
	Prompt string
	Model  string
	Width  int
	Height int
	Seed   int64
}

type Image struct {
	MIME string
	Data []byte
}

// ImageGenerator is the image provider contract.
type ImageGenerator interface {
	Generate(ctx context.Context, params ImageParams) (*Image, error)
}

var (
	ErrInvalidTitle  = errors.New("invalid_title")
	ErrInvalidStyle  = errors.New("invalid_style")
	ErrInvalidPrompt = errors.New("invalid_prompt")
	// ErrProviderFailure signals the upstream failed after the debit was
	// taken; the compensating refund has already been applied.
	ErrProviderFailure = errors.New("provider_failure")
	// ErrBusy signals another generation for the same user is in flight.
	ErrBusy = errors.New("generation_in_progress")
)

// InsufficientCreditsError is the expected business rejection: it carries the
// required and current amounts so the client can report both.
type InsufficientCreditsError struct {
	Required int64
	Current  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits (requires %d, current %d)", e.Required, e.Current)
}
