package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/coverview/creditd/internal/config"
	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	"github.com/coverview/creditd/pkg/db"
	"github.com/coverview/creditd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Billing *config.BillingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	billing *config.BillingConfigHolder
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		billing: p.Billing,
	}
}

// errDuplicateRequest aborts the surrounding transaction when a concurrent
// call already recorded the same request id.
var errDuplicateRequest = errors.New("duplicate request id")

func (s *Service) Debit(ctx context.Context, req ledgerdomain.DebitRequest) (*ledgerdomain.DebitResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	requestID := normalizeRequestID(req.RequestID)
	if existing, err := s.findByRequestID(ctx, userID, requestID); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	} else if existing != nil {
		return &ledgerdomain.DebitResult{Success: true, Balance: existing.BalanceAfter, Transaction: existing}, nil
	}

	var result ledgerdomain.DebitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAccount(tx, userID); err != nil {
			return err
		}

		now := time.Now().UTC()

		// Single conditional update: the balance check and the decrement are
		// one statement, so two racing debits serialize on the row and only
		// the ones whose check still holds are applied.
		res := tx.Model(&ledgerdomain.Account{}).
			Where("user_id = ? AND credits >= ?", userID, req.Amount).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits - ?", req.Amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}

		var account ledgerdomain.Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return err
		}

		if res.RowsAffected == 0 {
			// Insufficient funds. Expected outcome: nothing written.
			result = ledgerdomain.DebitResult{Success: false, Balance: account.Credits}
			return nil
		}

		movement := &ledgerdomain.Transaction{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Amount:       -req.Amount,
			Description:  req.Description,
			Metadata:     datatypes.JSONMap(req.Metadata),
			BalanceAfter: account.Credits,
			RequestID:    requestID,
			CreatedAt:    now,
		}
		if err := tx.Create(movement).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errDuplicateRequest
			}
			return err
		}

		result = ledgerdomain.DebitResult{Success: true, Balance: account.Credits, Transaction: movement}
		return nil
	})
	if errors.Is(err, errDuplicateRequest) {
		return s.replayDebit(ctx, userID, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	}

	if !result.Success {
		s.log.Info("debit rejected",
			zap.String("user_id", userID),
			zap.Int64("amount", req.Amount),
			zap.Int64("balance", result.Balance),
		)
	}
	return &result, nil
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (*ledgerdomain.CreditResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	requestID := normalizeRequestID(req.RequestID)
	if existing, err := s.findByRequestID(ctx, userID, requestID); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	} else if existing != nil {
		return &ledgerdomain.CreditResult{Balance: existing.BalanceAfter, Transaction: existing}, nil
	}

	var result ledgerdomain.CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAccount(tx, userID); err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&ledgerdomain.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits + ?", req.Amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}

		var account ledgerdomain.Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return err
		}

		movement := &ledgerdomain.Transaction{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Amount:       req.Amount,
			Description:  req.Description,
			Metadata:     datatypes.JSONMap(req.Metadata),
			BalanceAfter: account.Credits,
			RequestID:    requestID,
			CreatedAt:    now,
		}
		if err := tx.Create(movement).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errDuplicateRequest
			}
			return err
		}

		if req.Voids > 0 {
			if err := tx.Model(&ledgerdomain.Transaction{}).
				Where("id = ? AND user_id = ?", req.Voids, userID).
				Update("request_id", nil).Error; err != nil {
				return err
			}
		}

		result = ledgerdomain.CreditResult{Balance: account.Credits, Transaction: movement}
		return nil
	})
	if errors.Is(err, errDuplicateRequest) {
		existing, lookupErr := s.findByRequestID(ctx, userID, requestID)
		if lookupErr != nil || existing == nil {
			return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, lookupErr)
		}
		return &ledgerdomain.CreditResult{Balance: existing.BalanceAfter, Transaction: existing}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	}

	return &result, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}

	var credits int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAccount(tx, userID); err != nil {
			return err
		}
		var account ledgerdomain.Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return err
		}
		credits = account.Credits
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	}
	return credits, nil
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidUser
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 250 {
		pageSize = 250
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1)

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursorID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursorID)
	}

	var rows []*ledgerdomain.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return ledgerdomain.ListTransactionsResponse{}, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, int32(pageSize), func(t *ledgerdomain.Transaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        t.ID.String(),
			CreatedAt: t.CreatedAt.Format(time.RFC3339Nano),
		})
		return token
	})

	if len(rows) > pageSize {
		rows = rows[:pageSize]
	}
	transactions := make([]ledgerdomain.Transaction, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, *row)
	}

	return ledgerdomain.ListTransactionsResponse{
		PageInfo:     *pageInfo,
		Transactions: transactions,
	}, nil
}

// ensureAccount creates the balance row on first touch, applying the signup
// grant and recording it as a ledger movement so the log stays conservative.
func (s *Service) ensureAccount(tx *gorm.DB, userID string) error {
	var account ledgerdomain.Account
	err := tx.Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	grant := s.billing.Get().SignupGrant
	now := time.Now().UTC()
	account = ledgerdomain.Account{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Credits:   grant,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// The losing side of a creation race must not raise a statement error:
	// postgres aborts the whole transaction on any SQL error, which would
	// fail the debit that follows.
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&account)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// lost the creation race, the row exists now
		return nil
	}

	if grant > 0 {
		movement := &ledgerdomain.Transaction{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Amount:       grant,
			Description:  "Signup grant",
			BalanceAfter: grant,
			CreatedAt:    now,
		}
		if err := tx.Create(movement).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) replayDebit(ctx context.Context, userID string, requestID *string) (*ledgerdomain.DebitResult, error) {
	existing, err := s.findByRequestID(ctx, userID, requestID)
	if err != nil || existing == nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrUnavailable, err)
	}
	return &ledgerdomain.DebitResult{Success: true, Balance: existing.BalanceAfter, Transaction: existing}, nil
}

func (s *Service) findByRequestID(ctx context.Context, userID string, requestID *string) (*ledgerdomain.Transaction, error) {
	if requestID == nil {
		return nil, nil
	}
	var existing ledgerdomain.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND request_id = ?", userID, *requestID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func normalizeRequestID(requestID *string) *string {
	if requestID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*requestID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
