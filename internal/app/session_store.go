// internal/app/session_store.go
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/infra/api"
	idb "lesson_planner_bot/internal/infra/database"
)

// SessionStore keeps the backend credentials of every Telegram user. Sessions
// are cached in memory and written through to the repository.
type SessionStore struct {
	repo   auth.SessionRepository
	clock  clockwork.Clock
	logger *logrus.Entry

	mu    sync.Mutex
	cache map[int64]*auth.Session

	// writeMu orders the read-modify-write updates of sessions.
	writeMu sync.Mutex
}

func NewSessionStore(repo auth.SessionRepository, clock clockwork.Clock, logger *logrus.Entry) *SessionStore {
	return &SessionStore{
		repo:   repo,
		clock:  clock,
		logger: logger.WithField("component", "session_store"),
		cache:  make(map[int64]*auth.Session),
	}
}

// Load returns a copy of the user's session. A stored session whose access
// token expired keeps only its refresh token; a session with nothing usable
// left is removed. Users without a session get an empty one.
func (s *SessionStore) Load(ctx context.Context, telegramID int64) *auth.Session {
	s.mu.Lock()
	if cached, ok := s.cache[telegramID]; ok {
		cp := *cached
		s.mu.Unlock()
		return &cp
	}
	s.mu.Unlock()

	session, err := s.repo.Get(ctx, telegramID)
	if err != nil {
		if !errors.Is(err, idb.ErrSessionNotFound) {
			s.logger.WithError(err).WithField("telegram_id", telegramID).Error("Failed to load session")
			return &auth.Session{TelegramID: telegramID}
		}
		return s.cacheEmpty(telegramID)
	}

	if !session.Normalize(s.clock.Now()) {
		s.logger.WithField("telegram_id", telegramID).Info("Stored session has no usable credentials, removing it")
		if err := s.repo.Delete(ctx, telegramID); err != nil && !errors.Is(err, idb.ErrSessionNotFound) {
			s.logger.WithError(err).WithField("telegram_id", telegramID).Warn("Failed to delete unusable session")
		}
		return s.cacheEmpty(telegramID)
	}

	s.mu.Lock()
	s.cache[telegramID] = session
	cp := *session
	s.mu.Unlock()
	return &cp
}

// Login stores the credentials returned by a successful login.
func (s *SessionStore) Login(ctx context.Context, telegramID int64, resp *auth.LoginResponse) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	user := resp.User
	session := &auth.Session{
		TelegramID:   telegramID,
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		TokenExpires: auth.ExpiresFromMillis(resp.TokenExpires),
		User:         &user,
	}
	return s.save(ctx, session)
}

// Refresh replaces the tokens and keeps the cached user. The refresh must
// have been made with the refresh token still on record; otherwise nothing is
// stored and api.ErrCredentialsChanged is returned.
func (s *SessionStore) Refresh(ctx context.Context, telegramID int64, sentRefreshToken string, resp auth.RefreshResponse) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session := s.Load(ctx, telegramID)
	if session.RefreshToken == "" || session.RefreshToken != sentRefreshToken {
		return api.ErrCredentialsChanged
	}
	session.Token = resp.Token
	session.RefreshToken = resp.RefreshToken
	session.TokenExpires = auth.ExpiresFromMillis(resp.TokenExpires)
	return s.save(ctx, session)
}

// SetUser caches the profile of the logged-in user. It returns
// ErrNotAuthenticated once the session is gone.
func (s *SessionStore) SetUser(ctx context.Context, telegramID int64, user *auth.User) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session := s.Load(ctx, telegramID)
	if session.Token == "" && session.RefreshToken == "" {
		return ErrNotAuthenticated
	}
	session.User = user
	return s.save(ctx, session)
}

// Logout forgets all credentials of the user.
func (s *SessionStore) Logout(ctx context.Context, telegramID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.cacheEmpty(telegramID)

	if err := s.repo.Delete(ctx, telegramID); err != nil && !errors.Is(err, idb.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Token returns the stored access token, expired or not.
func (s *SessionStore) Token(ctx context.Context, telegramID int64) string {
	return s.Load(ctx, telegramID).Token
}

func (s *SessionStore) RefreshToken(ctx context.Context, telegramID int64) string {
	return s.Load(ctx, telegramID).RefreshToken
}

// IsAuthenticated reports whether the user holds an unexpired access token.
func (s *SessionStore) IsAuthenticated(ctx context.Context, telegramID int64) bool {
	return s.Load(ctx, telegramID).IsAuthenticated(s.clock.Now())
}

// HasSession reports whether the user can make authenticated calls, either
// directly or after a refresh.
func (s *SessionStore) HasSession(ctx context.Context, telegramID int64) bool {
	session := s.Load(ctx, telegramID)
	return session.Token != "" || session.RefreshToken != ""
}

// ExpiringBefore lists the sessions whose access token expires at or before t
// and that can be refreshed.
func (s *SessionStore) ExpiringBefore(ctx context.Context, t time.Time) ([]*auth.Session, error) {
	return s.repo.ListExpiringBefore(ctx, t)
}

// PurgeStale deletes sessions not updated since before, evicts them from the
// cache and returns the Telegram IDs they belonged to.
func (s *SessionStore) PurgeStale(ctx context.Context, before time.Time) ([]int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ids, err := s.repo.DeleteStale(ctx, before)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.cache, id)
	}
	s.mu.Unlock()
	return ids, nil
}

func (s *SessionStore) save(ctx context.Context, session *auth.Session) error {
	session.UpdatedAt = s.clock.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}

	s.mu.Lock()
	cp := *session
	s.cache[session.TelegramID] = &cp
	s.mu.Unlock()

	return s.repo.Save(ctx, session)
}

func (s *SessionStore) cacheEmpty(telegramID int64) *auth.Session {
	s.mu.Lock()
	s.cache[telegramID] = &auth.Session{TelegramID: telegramID}
	s.mu.Unlock()
	return &auth.Session{TelegramID: telegramID}
}

// Credentials binds the store to one user for the API client.
func (s *SessionStore) Credentials(telegramID int64) api.Credentials {
	return &sessionCredentials{store: s, telegramID: telegramID}
}

type sessionCredentials struct {
	store      *SessionStore
	telegramID int64
}

func (c *sessionCredentials) AccessToken(ctx context.Context) string {
	return c.store.Token(ctx, c.telegramID)
}

func (c *sessionCredentials) RefreshToken(ctx context.Context) string {
	return c.store.RefreshToken(ctx, c.telegramID)
}

func (c *sessionCredentials) Refreshed(ctx context.Context, sentRefreshToken string, resp auth.RefreshResponse) error {
	return c.store.Refresh(ctx, c.telegramID, sentRefreshToken, resp)
}

func (c *sessionCredentials) Clear(ctx context.Context) error {
	return c.store.Logout(ctx, c.telegramID)
}
