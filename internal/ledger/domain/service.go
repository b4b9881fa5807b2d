package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/coverview/creditd/pkg/db/pagination"
)

type DebitRequest struct {
	UserID      string
	Amount      int64
	Description string
	Metadata    map[string]any
	// RequestID, when set, deduplicates the movement at the transaction-log
	// level: a replay returns the originally recorded outcome.
	RequestID *string
}

// DebitResult reports the post-operation balance in both outcomes so callers
// can surface "current balance" without a second read.
type DebitResult struct {
	Success     bool
	Balance     int64
	Transaction *Transaction // nil when Success is false
}

type CreditRequest struct {
	UserID      string
	Amount      int64
	Description string
	Metadata    map[string]any
	RequestID   *string
	// Voids names a prior movement whose request id is cleared in the same
	// transaction. A refund passes the reversed debit here so a client retry
	// carrying the original request id bills again instead of replaying a
	// debit that was already compensated.
	Voids snowflake.ID
}

type CreditResult struct {
	Balance     int64
	Transaction *Transaction
}

type ListTransactionsRequest struct {
	UserID string
	pagination.Pagination
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

// Service is the only write path to account balances.
type Service interface {
	// Debit atomically checks and decrements the balance. Insufficient funds
	// is an expected outcome (Success=false), not an error.
	Debit(ctx context.Context, req DebitRequest) (*DebitResult, error)
	// Credit increments the balance; used for refunds and top-ups.
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)
	Balance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	// ErrUnavailable wraps storage failures during an atomic operation.
	// Nothing was applied; the caller may retry.
	ErrUnavailable = errors.New("ledger_unavailable")
)
