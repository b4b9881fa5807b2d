// Package domain contains persistence models for the credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account is the per-user credit balance row. Credits never drops below zero
// at any observable point; every mutation goes through the ledger service.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:ux_credit_accounts_user"`
	Credits   int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "credit_accounts" }

// Transaction is one immutable ledger movement. Negative amount is a debit,
// positive a credit or refund. BalanceAfter snapshots the account balance the
// instant this row committed, so replaying the log reproduces every balance.
type Transaction struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	UserID       string            `gorm:"type:text;not null;index:idx_credit_transactions_user_created,priority:1;uniqueIndex:ux_credit_transactions_user_request,priority:1"`
	Amount       int64             `gorm:"not null"`
	Description  string            `gorm:"type:text;not null"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	BalanceAfter int64             `gorm:"not null"`
	// NULL request ids never collide, so untagged movements are unconstrained.
	RequestID *string   `gorm:"type:text;uniqueIndex:ux_credit_transactions_user_request,priority:2"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_credit_transactions_user_created,priority:2"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "credit_transactions" }
