package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrNoTokens indicates that no token set is currently persisted.
var ErrNoTokens = errors.New("auth: no tokens stored")

// Tokens is the access/refresh token pair issued by the backend.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether the pair carries no usable access token.
func (t Tokens) Empty() bool {
	return strings.TrimSpace(t.AccessToken) == ""
}

// TokenRecord is the single-row durable copy of the token set.
type TokenRecord struct {
	ID               uint      `gorm:"column:id;primaryKey"`
	AccessToken      string    `gorm:"column:access_token;type:text;not null"`
	RefreshToken     string    `gorm:"column:refresh_token;type:text;not null"`
	ExpiresAtSeconds int64     `gorm:"column:expires_at_s;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing persisted tokens.
func (TokenRecord) TableName() string {
	return "auth_tokens"
}

// TokenStore abstracts durable token persistence so the manager can be
// exercised against substitutes in tests.
type TokenStore interface {
	LoadTokens(ctx context.Context) (Tokens, time.Time, error)
	SaveTokens(ctx context.Context, tokens Tokens, expiresAt time.Time) error
	ClearTokens(ctx context.Context) error
}

// SQLiteTokenStore persists the token set as a single row in the local database.
type SQLiteTokenStore struct {
	db *gorm.DB
}

// NewSQLiteTokenStore binds a token store to the provided database handle.
func NewSQLiteTokenStore(db *gorm.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db}
}

// LoadTokens returns the persisted token set, or ErrNoTokens when absent.
func (s *SQLiteTokenStore) LoadTokens(ctx context.Context) (Tokens, time.Time, error) {
	var record TokenRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tokens{}, time.Time{}, ErrNoTokens
	}
	if err != nil {
		return Tokens{}, time.Time{}, err
	}
	tokens := Tokens{AccessToken: record.AccessToken, RefreshToken: record.RefreshToken}
	return tokens, time.Unix(record.ExpiresAtSeconds, 0).UTC(), nil
}

// SaveTokens overwrites the persisted token set wholesale.
func (s *SQLiteTokenStore) SaveTokens(ctx context.Context, tokens Tokens, expiresAt time.Time) error {
	record := TokenRecord{
		ID:               1,
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		ExpiresAtSeconds: expiresAt.Unix(),
	}
	return s.db.WithContext(ctx).Save(&record).Error
}

// ClearTokens removes any persisted token set.
func (s *SQLiteTokenStore) ClearTokens(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&TokenRecord{}, "id = ?", 1).Error
}
