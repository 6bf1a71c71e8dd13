// internal/domain/auth/repository.go
package auth

import (
	"context"
	"time"
)

// SessionRepository persists sessions keyed by Telegram user ID.
type SessionRepository interface {
	Get(ctx context.Context, telegramID int64) (*Session, error)
	Save(ctx context.Context, session *Session) error // upsert
	Delete(ctx context.Context, telegramID int64) error
	// ListExpiringBefore returns sessions holding a refresh token whose access
	// token expires at or before the given time.
	ListExpiringBefore(ctx context.Context, before time.Time) ([]*Session, error)
	// DeleteStale removes sessions not updated since the given time and
	// returns the Telegram IDs they belonged to.
	DeleteStale(ctx context.Context, updatedBefore time.Time) ([]int64, error)
}
