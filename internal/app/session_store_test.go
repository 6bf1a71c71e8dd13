package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/infra/api"
)

func newTestStore(t *testing.T) (*SessionStore, *memSessionRepo, *clockwork.FakeClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := newMemSessionRepo()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewSessionStore(repo, clock, logrus.NewEntry(logger)), repo, clock
}

func TestSessionStore_LoginPersistsSession(t *testing.T) {
	store, repo, clock := newTestStore(t)
	ctx := context.Background()

	err := store.Login(ctx, 7, &auth.LoginResponse{
		Token:        "tok",
		RefreshToken: "ref",
		TokenExpires: clock.Now().Add(time.Hour).UnixMilli(),
		User:         auth.User{ID: "u1", Email: "ada@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "tok", store.Token(ctx, 7))
	assert.Equal(t, "ref", store.RefreshToken(ctx, 7))
	assert.True(t, store.IsAuthenticated(ctx, 7))

	stored, ok := repo.stored(7)
	require.True(t, ok)
	assert.Equal(t, "u1", stored.User.ID)
	assert.Equal(t, clock.Now(), stored.CreatedAt)
}

func TestSessionStore_LoadRules(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	user := &auth.User{ID: "u1"}

	tests := []struct {
		name        string
		stored      *auth.Session
		wantToken   string
		wantRefresh string
		wantAuth    bool
		wantUser    bool
		wantRowKept bool
	}{
		{
			name:        "valid token",
			stored:      &auth.Session{Token: "tok", RefreshToken: "ref", TokenExpires: now.Add(time.Minute), User: user},
			wantToken:   "tok",
			wantRefresh: "ref",
			wantAuth:    true,
			wantUser:    true,
			wantRowKept: true,
		},
		{
			name:        "expired token keeps refresh token",
			stored:      &auth.Session{Token: "tok", RefreshToken: "ref", TokenExpires: now.Add(-time.Minute), User: user},
			wantRefresh: "ref",
			wantRowKept: true,
		},
		{
			name:   "expired token without refresh token",
			stored: &auth.Session{Token: "tok", TokenExpires: now.Add(-time.Minute), User: user},
		},
		{
			name:        "token without expiry",
			stored:      &auth.Session{Token: "tok", RefreshToken: "ref"},
			wantToken:   "tok",
			wantRefresh: "ref",
			wantAuth:    true,
			wantRowKept: true,
		},
		{
			name:   "refresh token without access token or expiry",
			stored: &auth.Session{RefreshToken: "ref", User: user},
		},
		{
			name:   "nothing stored",
			stored: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, repo, _ := newTestStore(t)
			ctx := context.Background()
			if tt.stored != nil {
				tt.stored.TelegramID = 7
				require.NoError(t, repo.Save(ctx, tt.stored))
			}

			s := store.Load(ctx, 7)
			assert.Equal(t, tt.wantToken, s.Token)
			assert.Equal(t, tt.wantRefresh, s.RefreshToken)
			assert.Equal(t, tt.wantAuth, store.IsAuthenticated(ctx, 7))
			assert.Equal(t, tt.wantUser, s.User != nil)

			_, kept := repo.stored(7)
			assert.Equal(t, tt.wantRowKept, kept)
		})
	}
}

func TestSessionStore_RefreshKeepsUser(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "a", RefreshToken: "r1", User: auth.User{ID: "u1"}}))

	require.NoError(t, store.Refresh(ctx, 7, "r1", auth.RefreshResponse{
		Token:        "b",
		RefreshToken: "r2",
		TokenExpires: clock.Now().Add(time.Hour).UnixMilli(),
	}))

	s := store.Load(ctx, 7)
	assert.Equal(t, "b", s.Token)
	assert.Equal(t, "r2", s.RefreshToken)
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
}

func TestSessionStore_RefreshIsDiscardedAfterLogout(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "a", RefreshToken: "r1"}))
	require.NoError(t, store.Logout(ctx, 7))

	err := store.Refresh(ctx, 7, "r1", auth.RefreshResponse{Token: "b", RefreshToken: "r2"})
	assert.ErrorIs(t, err, api.ErrCredentialsChanged)
	assert.False(t, store.HasSession(ctx, 7))
	_, ok := repo.stored(7)
	assert.False(t, ok)
}

func TestSessionStore_RefreshWithReplacedTokenIsDiscarded(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "a", RefreshToken: "r1"}))
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "c", RefreshToken: "r9"}))

	err := store.Refresh(ctx, 7, "r1", auth.RefreshResponse{Token: "b", RefreshToken: "r2"})
	assert.ErrorIs(t, err, api.ErrCredentialsChanged)
	assert.Equal(t, "c", store.Token(ctx, 7))
	assert.Equal(t, "r9", store.RefreshToken(ctx, 7))
}

func TestSessionStore_SetUserAfterLogout(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "a", RefreshToken: "r1"}))
	require.NoError(t, store.Logout(ctx, 7))

	assert.ErrorIs(t, store.SetUser(ctx, 7, &auth.User{ID: "u1"}), ErrNotAuthenticated)
	_, ok := repo.stored(7)
	assert.False(t, ok)
}

func TestSessionStore_LogoutClearsEverything(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "a", RefreshToken: "r"}))

	require.NoError(t, store.Logout(ctx, 7))
	require.NoError(t, store.Logout(ctx, 7), "logging out twice is not an error")

	assert.Empty(t, store.Token(ctx, 7))
	assert.False(t, store.HasSession(ctx, 7))
	_, ok := repo.stored(7)
	assert.False(t, ok)
}

func TestSessionStore_CachesMissingSessions(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Empty(t, store.Token(ctx, 9))
	}
	assert.Equal(t, 1, repo.gets)
}

func TestSessionStore_RepositoryErrorIsNotCached(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()
	repo.getErr = errors.New("connection refused")

	assert.False(t, store.HasSession(ctx, 7))
	repo.getErr = nil
	require.NoError(t, repo.Save(ctx, &auth.Session{TelegramID: 7, Token: "tok"}))

	assert.True(t, store.HasSession(ctx, 7))
}

func TestSessionStore_PurgeStaleEvictsCache(t *testing.T) {
	store, repo, clock := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 1, &auth.LoginResponse{Token: "old", RefreshToken: "r"}))
	clock.Advance(48 * time.Hour)
	require.NoError(t, store.Login(ctx, 2, &auth.LoginResponse{Token: "new", RefreshToken: "r"}))

	ids, err := store.PurgeStale(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	assert.False(t, store.HasSession(ctx, 1))
	assert.True(t, store.HasSession(ctx, 2))
	_, ok := repo.stored(1)
	assert.False(t, ok)
}

func TestSessionCredentials_AdaptStore(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, 7, &auth.LoginResponse{Token: "a", RefreshToken: "r1"}))

	creds := store.Credentials(7)
	assert.Equal(t, "a", creds.AccessToken(ctx))
	assert.Equal(t, "r1", creds.RefreshToken(ctx))

	require.NoError(t, creds.Refreshed(ctx, "r1", auth.RefreshResponse{Token: "b", RefreshToken: "r2"}))
	assert.Equal(t, "b", store.Token(ctx, 7))

	require.NoError(t, creds.Clear(ctx))
	assert.False(t, store.HasSession(ctx, 7))
}
