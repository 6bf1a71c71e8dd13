// internal/app/account_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/infra/api"
)

var ErrNotAuthenticated = errors.New("not logged in")

// AccountService manages the backend account a Telegram user is logged in with.
type AccountService struct {
	gateway    *Gateway
	sessions   *SessionStore
	workspaces *WorkspaceRegistry
	clock      clockwork.Clock
	logger     *logrus.Entry
}

func NewAccountService(
	gateway *Gateway,
	sessions *SessionStore,
	workspaces *WorkspaceRegistry,
	clock clockwork.Clock,
	logger *logrus.Entry,
) *AccountService {
	return &AccountService{
		gateway:    gateway,
		sessions:   sessions,
		workspaces: workspaces,
		clock:      clock,
		logger:     logger.WithField("component", "account_service"),
	}
}

// Login authenticates with e-mail and password and stores the session.
// A previous session of the user is replaced.
func (s *AccountService) Login(ctx context.Context, telegramID int64, email, password string) (*auth.User, error) {
	resp, err := s.gateway.For(telegramID).Auth.Login(ctx, auth.EmailLoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Login(ctx, telegramID, resp); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	s.logger.WithField("telegram_id", telegramID).WithField("user_id", resp.User.ID).Info("Teacher logged in")
	return &resp.User, nil
}

func (s *AccountService) Register(ctx context.Context, telegramID int64, req auth.RegisterRequest) error {
	return s.gateway.For(telegramID).Auth.Register(ctx, req)
}

func (s *AccountService) ForgotPassword(ctx context.Context, telegramID int64, email string) error {
	return s.gateway.For(telegramID).Auth.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: email})
}

func (s *AccountService) ResetPassword(ctx context.Context, telegramID int64, hash, password string) error {
	return s.gateway.For(telegramID).Auth.ResetPassword(ctx, auth.ResetPasswordRequest{Hash: hash, Password: password})
}

// Logout invalidates the session on the backend (best effort) and forgets
// the local credentials and workspace.
func (s *AccountService) Logout(ctx context.Context, telegramID int64) error {
	log := s.logger.WithField("telegram_id", telegramID)
	if !s.sessions.HasSession(ctx, telegramID) {
		return ErrNotAuthenticated
	}
	if err := s.gateway.For(telegramID).Auth.Logout(ctx); err != nil && !errors.Is(err, api.ErrSessionExpired) {
		log.WithError(err).Warn("Backend logout failed, clearing local session anyway")
	}
	s.workspaces.Reset(ctx, telegramID)
	if err := s.sessions.Logout(ctx, telegramID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.gateway.Forget(telegramID)
	log.Info("Teacher logged out")
	return nil
}

// CurrentUser returns the logged-in user. A session without a cached user
// fetches it from /auth/me; if that fails the teacher is logged out.
func (s *AccountService) CurrentUser(ctx context.Context, telegramID int64) (*auth.User, error) {
	session := s.sessions.Load(ctx, telegramID)
	if session.Token == "" && session.RefreshToken == "" {
		return nil, ErrNotAuthenticated
	}
	if session.User != nil && session.IsAuthenticated(s.clock.Now()) {
		return session.User, nil
	}

	user, err := s.gateway.For(telegramID).Auth.Me(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, api.ErrSessionExpired) {
			s.logger.WithError(err).WithField("telegram_id", telegramID).Warn("Could not load current user, logging out")
			if clearErr := s.sessions.Logout(ctx, telegramID); clearErr != nil {
				s.logger.WithError(clearErr).Error("Failed to clear session")
			}
		}
		return nil, err
	}
	if err := s.sessions.SetUser(ctx, telegramID, user); err != nil {
		s.logger.WithError(err).WithField("telegram_id", telegramID).Warn("Failed to cache user")
	}
	return user, nil
}

// RequireSession returns ErrNotAuthenticated unless the teacher holds
// credentials that can be used directly or after a refresh.
func (s *AccountService) RequireSession(ctx context.Context, telegramID int64) error {
	if !s.sessions.HasSession(ctx, telegramID) {
		return ErrNotAuthenticated
	}
	return nil
}

// RefreshExpiringSessions renews every session whose access token expires
// within window. Sessions that cannot be renewed are expired through the
// client's usual path.
func (s *AccountService) RefreshExpiringSessions(ctx context.Context, window time.Duration) (refreshed, failed int, err error) {
	sessions, err := s.sessions.ExpiringBefore(ctx, s.clock.Now().Add(window))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list expiring sessions: %w", err)
	}

	for _, session := range sessions {
		if ctx.Err() != nil {
			return refreshed, failed, ctx.Err()
		}
		log := s.logger.WithField("telegram_id", session.TelegramID)
		if err := s.gateway.For(session.TelegramID).Auth.Refresh(ctx); err != nil {
			failed++
			log.WithError(err).Warn("Proactive token refresh failed")
			continue
		}
		refreshed++
		log.Debug("Token refreshed proactively")
	}
	return refreshed, failed, nil
}

// PurgeStaleSessions deletes sessions untouched for longer than retention
// together with their API clients.
func (s *AccountService) PurgeStaleSessions(ctx context.Context, retention time.Duration) (int64, error) {
	ids, err := s.sessions.PurgeStale(ctx, s.clock.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale sessions: %w", err)
	}
	for _, id := range ids {
		s.gateway.Forget(id)
	}
	return int64(len(ids)), nil
}
