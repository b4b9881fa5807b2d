// Package domain defines bearer token identity for the credit API.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIToken stores a hashed bearer token bound to a single user.
type APIToken struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"type:text;not null;index:idx_api_tokens_user"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_api_tokens_hash"`
	Name      string       `gorm:"type:text"`
	IsActive  bool         `gorm:"column:is_active;not null;default:true"`
	ExpiresAt *time.Time   `gorm:"column:expires_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (APIToken) TableName() string { return "api_tokens" }

type IssueRequest struct {
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// SecretResponse carries the raw token. It is returned once at issuance and
// never stored.
type SecretResponse struct {
	TokenID string `json:"token_id"`
	Token   string `json:"token"`
}

type Service interface {
	// Resolve maps a raw bearer token to the owning user id.
	Resolve(ctx context.Context, raw string) (string, error)
	Issue(ctx context.Context, req IssueRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, tokenID string) error
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidToken   = errors.New("invalid_token")
	ErrInvalidTokenID = errors.New("invalid_token_id")
	ErrNotFound       = errors.New("not_found")
)
