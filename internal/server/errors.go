package server

import (
	"errors"
	"net/http"

	authdomain "github.com/coverview/creditd/internal/auth/domain"
	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	usagedomain "github.com/coverview/creditd/internal/usage/domain"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	// Required and Current are set only for insufficient credit rejections.
	Required *int64 `json:"required,omitempty"`
	Current  *int64 `json:"current,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware converts errors recorded on the gin context into a
// single JSON error body. Handlers that already wrote a response win.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var insufficient *billingdomain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return http.StatusPaymentRequired, errorPayload{
			Type:     "insufficient_credits",
			Message:  insufficient.Error(),
			Required: &insufficient.Required,
			Current:  &insufficient.Current,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, billingdomain.ErrBusy):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "generation_in_progress",
			Message: "another generation is already running",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, billingdomain.ErrProviderFailure):
		// the debit has already been refunded by the time this surfaces
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_failure",
			Message: "upstream provider failed, credits were refunded",
		}
	case errors.Is(err, ledgerdomain.ErrUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, billingdomain.ErrInvalidTitle),
		errors.Is(err, billingdomain.ErrInvalidStyle),
		errors.Is(err, billingdomain.ErrInvalidPrompt),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidPageToken),
		errors.Is(err, usagedomain.ErrInvalidUser),
		errors.Is(err, usagedomain.ErrUnknownCategory),
		errors.Is(err, authdomain.ErrInvalidUser),
		errors.Is(err, authdomain.ErrInvalidTokenID):
		return true
	default:
		return false
	}
}
