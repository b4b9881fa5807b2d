package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/coverview/creditd/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenPrefix      = "cv_live_"
	tokenSecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) authdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auth.service"),
		genID: p.GenID,
	}
}

func (s *Service) Resolve(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", authdomain.ErrInvalidToken
	}

	hash := authdomain.HashToken(raw)
	now := time.Now().UTC()

	var token authdomain.APIToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND is_active = ?", hash, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", authdomain.ErrInvalidToken
	}
	if err != nil {
		return "", err
	}

	if subtle.ConstantTimeCompare([]byte(token.TokenHash), []byte(hash)) != 1 {
		return "", authdomain.ErrInvalidToken
	}

	return token.UserID, nil
}

func (s *Service) Issue(ctx context.Context, req authdomain.IssueRequest) (*authdomain.SecretResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, authdomain.ErrInvalidUser
	}

	id := s.genID.Generate()
	plain, hash, err := generateToken()
	if err != nil {
		return nil, err
	}

	token := &authdomain.APIToken{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		Name:      strings.TrimSpace(req.Name),
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, err
	}

	s.log.Info("token issued",
		zap.String("token_id", id.String()),
		zap.String("user_id", userID),
	)

	return &authdomain.SecretResponse{TokenID: id.String(), Token: plain}, nil
}

func (s *Service) Revoke(ctx context.Context, tokenID string) error {
	trimmed := strings.TrimSpace(tokenID)
	if trimmed == "" {
		return authdomain.ErrInvalidTokenID
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return authdomain.ErrInvalidTokenID
	}

	res := s.db.WithContext(ctx).
		Model(&authdomain.APIToken{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authdomain.ErrNotFound
	}
	return nil
}

func generateToken() (plain, hash string, err error) {
	secret := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("generate token secret: %w", err)
	}
	plain = tokenPrefix + hex.EncodeToString(secret)
	return plain, authdomain.HashToken(plain), nil
}
