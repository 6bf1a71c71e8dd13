package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lesson_planner_bot/internal/domain/auth"
)

var ErrSessionNotFound = errors.New("session not found")

type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

const sessionColumns = `telegram_id, access_token, refresh_token, token_expires, user_profile, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*auth.Session, error) {
	var (
		s       auth.Session
		expires sql.NullTime
		profile []byte
	)
	if err := row.Scan(&s.TelegramID, &s.Token, &s.RefreshToken, &expires, &profile, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if expires.Valid {
		s.TokenExpires = expires.Time
	}
	if len(profile) > 0 {
		var u auth.User
		if err := json.Unmarshal(profile, &u); err != nil {
			return nil, fmt.Errorf("error decoding stored user profile: %w", err)
		}
		s.User = &u
	}
	return &s, nil
}

func (r *PostgresSessionRepository) Get(ctx context.Context, telegramID int64) (*auth.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE telegram_id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("error getting session by Telegram ID: %w", err)
	}
	return s, nil
}

// Save inserts or replaces the session row.
func (r *PostgresSessionRepository) Save(ctx context.Context, s *auth.Session) error {
	var profile []byte
	if s.User != nil {
		var err error
		if profile, err = json.Marshal(s.User); err != nil {
			return fmt.Errorf("error encoding user profile: %w", err)
		}
	}
	var expires sql.NullTime
	if !s.TokenExpires.IsZero() {
		expires = sql.NullTime{Time: s.TokenExpires, Valid: true}
	}

	query := `INSERT INTO sessions (telegram_id, access_token, refresh_token, token_expires, user_profile, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               ON CONFLICT (telegram_id) DO UPDATE
               SET access_token = EXCLUDED.access_token,
                   refresh_token = EXCLUDED.refresh_token,
                   token_expires = EXCLUDED.token_expires,
                   user_profile = EXCLUDED.user_profile,
                   updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query, s.TelegramID, s.Token, s.RefreshToken, expires, nullableJSON(profile), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, telegramID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) ListExpiringBefore(ctx context.Context, before time.Time) ([]*auth.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
               WHERE refresh_token <> '' AND token_expires IS NOT NULL AND token_expires <= $1
               ORDER BY token_expires`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("error listing expiring sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*auth.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning expiring session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiring sessions: %w", err)
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) DeleteStale(ctx context.Context, updatedBefore time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM sessions WHERE updated_at < $1 RETURNING telegram_id`, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("error deleting stale sessions: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning deleted session: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted sessions: %w", err)
	}
	return ids, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
