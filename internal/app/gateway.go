// internal/app/gateway.go
package app

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/infra/api"
)

// ExpiryHook runs after a teacher's session could not be renewed and the
// stored credentials have been cleared.
type ExpiryHook func(ctx context.Context, telegramID int64)

// Gateway hands out one API client per teacher, each bound to the teacher's
// stored credentials so token refreshes stay single-flight per session.
type Gateway struct {
	cfg    api.Config
	store  *SessionStore
	logger *logrus.Entry

	mu      sync.Mutex
	clients map[int64]*api.Services
	hooks   []ExpiryHook
}

func NewGateway(cfg api.Config, store *SessionStore, logger *logrus.Entry) *Gateway {
	return &Gateway{
		cfg:     cfg,
		store:   store,
		logger:  logger.WithField("component", "api_gateway"),
		clients: make(map[int64]*api.Services),
	}
}

// OnSessionExpired registers a hook for expired sessions.
func (g *Gateway) OnSessionExpired(hook ExpiryHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, hook)
}

// For returns the API services acting on behalf of the teacher.
func (g *Gateway) For(telegramID int64) *api.Services {
	g.mu.Lock()
	defer g.mu.Unlock()
	if svc, ok := g.clients[telegramID]; ok {
		return svc
	}

	cfg := g.cfg
	cfg.Logger = g.logger.WithField("telegram_id", telegramID)
	cfg.OnSessionExpired = func(ctx context.Context) {
		g.sessionExpired(ctx, telegramID)
	}
	svc := api.NewServices(api.NewClient(cfg, g.store.Credentials(telegramID)))
	g.clients[telegramID] = svc
	return svc
}

// Forget drops the teacher's client. The next call to For builds a new one.
func (g *Gateway) Forget(telegramID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, telegramID)
}

func (g *Gateway) sessionExpired(ctx context.Context, telegramID int64) {
	g.logger.WithField("telegram_id", telegramID).Info("Session expired, credentials cleared")
	g.mu.Lock()
	delete(g.clients, telegramID)
	hooks := append([]ExpiryHook(nil), g.hooks...)
	g.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, telegramID)
	}
}
