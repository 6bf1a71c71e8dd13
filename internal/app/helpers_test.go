package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/paging"
	"lesson_planner_bot/internal/domain/workspace"
	"lesson_planner_bot/internal/infra/api"
	idb "lesson_planner_bot/internal/infra/database"
)

// --- In-memory repositories ---

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[int64]auth.Session
	gets     int
	getErr   error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[int64]auth.Session)}
}

func (m *memSessionRepo) Get(_ context.Context, telegramID int64) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[telegramID]
	if !ok {
		return nil, idb.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memSessionRepo) Save(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TelegramID] = *s
	return nil
}

func (m *memSessionRepo) Delete(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[telegramID]; !ok {
		return idb.ErrSessionNotFound
	}
	delete(m.sessions, telegramID)
	return nil
}

func (m *memSessionRepo) ListExpiringBefore(_ context.Context, before time.Time) ([]*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.Session
	for _, s := range m.sessions {
		if s.RefreshToken != "" && !s.TokenExpires.IsZero() && !s.TokenExpires.After(before) {
			cp := s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessionRepo) DeleteStale(_ context.Context, updatedBefore time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(updatedBefore) {
			delete(m.sessions, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memSessionRepo) stored(telegramID int64) (auth.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[telegramID]
	return s, ok
}

type memWorkspaceRepo struct {
	mu     sync.Mutex
	states map[int64]workspace.State
}

func newMemWorkspaceRepo() *memWorkspaceRepo {
	return &memWorkspaceRepo{states: make(map[int64]workspace.State)}
}

func (m *memWorkspaceRepo) Get(_ context.Context, telegramID int64) (*workspace.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[telegramID]
	if !ok {
		return nil, idb.ErrWorkspaceNotFound
	}
	st.OpenClassIDs = slices.Clone(st.OpenClassIDs)
	return &st, nil
}

func (m *memWorkspaceRepo) Save(_ context.Context, st *workspace.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	cp.OpenClassIDs = slices.Clone(st.OpenClassIDs)
	m.states[st.TelegramID] = cp
	return nil
}

func (m *memWorkspaceRepo) Delete(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, telegramID)
	return nil
}

// --- Fake backend ---

// fakeBackend serves the subset of the lesson-planning API used by the
// services. Only "Bearer <validToken>" is accepted on protected routes.
type fakeBackend struct {
	t *testing.T

	mu           sync.Mutex
	validToken   string
	refreshFails bool
	refreshCalls int
	logoutCalls  int
	meCalls      int
	meStatus     int
	user         auth.User
	classrooms   []classroom.Classroom
	chats        map[string][]chat.Chat
	messages     map[string][]chat.Message
	students     []classroom.Student
	lessons      []classroom.Lesson
	stream       []string
	streamHold   chan struct{}
	savedIDs     []string
	lastQuery    map[string]string

	// refreshHold keeps /auth/refresh from answering until it is closed;
	// refreshStarted is signalled once the request has arrived.
	refreshHold    chan struct{}
	refreshStarted chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{
		t:          t,
		validToken: "tok-1",
		user:       auth.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"},
		chats:      make(map[string][]chat.Chat),
		messages:   make(map[string][]chat.Message),
		lastQuery:  make(map[string]string),
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/email/login", func(w http.ResponseWriter, r *http.Request) {
		var req auth.EmailLoginRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret1" {
			writeJSON(b.t, w, http.StatusUnprocessableEntity, map[string]any{
				"statusCode": 422,
				"errors":     map[string]string{"password": "incorrectPassword"},
			})
			return
		}
		b.mu.Lock()
		token, user := b.validToken, b.user
		b.mu.Unlock()
		writeEnvelope(b.t, w, http.StatusOK, auth.LoginResponse{
			Token:        token,
			RefreshToken: "refresh-1",
			TokenExpires: time.Now().Add(time.Hour).UnixMilli(),
			User:         user,
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.refreshCalls++
		fails := b.refreshFails
		b.validToken = fmt.Sprintf("tok-%d", b.refreshCalls+1)
		token := b.validToken
		hold, started := b.refreshHold, b.refreshStarted
		b.mu.Unlock()
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		if hold != nil {
			<-hold
		}
		if fails {
			writeJSON(b.t, w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "Unauthorized"})
			return
		}
		writeEnvelope(b.t, w, http.StatusOK, auth.RefreshResponse{
			Token:        token,
			RefreshToken: "refresh-2",
			TokenExpires: time.Now().Add(time.Hour).UnixMilli(),
		})
	})
	mux.HandleFunc("POST /auth/logout", b.protected(func(w http.ResponseWriter, r *http.Request) {
		b.logoutCalls++
		writeEnvelope(b.t, w, http.StatusOK, nil)
	}))
	mux.HandleFunc("GET /auth/me", b.protected(func(w http.ResponseWriter, r *http.Request) {
		b.meCalls++
		if b.meStatus != 0 {
			writeJSON(b.t, w, b.meStatus, map[string]any{"statusCode": b.meStatus, "message": "boom"})
			return
		}
		writeEnvelope(b.t, w, http.StatusOK, b.user)
	}))
	mux.HandleFunc("GET /classrooms", b.protected(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(b.t, w, http.StatusOK, paging.Page[classroom.Classroom]{Data: b.classrooms})
	}))
	mux.HandleFunc("POST /classrooms", b.protected(func(w http.ResponseWriter, r *http.Request) {
		var req classroom.CreateClassroomRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		c := classroom.Classroom{ID: fmt.Sprintf("c%d", len(b.classrooms)+1), Name: req.Name, Grade: req.Grade, CreatedAt: time.Now()}
		b.classrooms = append(b.classrooms, c)
		writeEnvelope(b.t, w, http.StatusCreated, c)
	}))
	mux.HandleFunc("GET /classrooms/{cid}", b.protected(func(w http.ResponseWriter, r *http.Request) {
		for _, c := range b.classrooms {
			if c.ID == r.PathValue("cid") {
				writeEnvelope(b.t, w, http.StatusOK, c)
				return
			}
		}
		writeJSON(b.t, w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "classroomNotFound"})
	}))
	mux.HandleFunc("GET /classrooms/{cid}/students", b.protected(func(w http.ResponseWriter, r *http.Request) {
		b.lastQuery["students"] = r.URL.RawQuery
		writeEnvelope(b.t, w, http.StatusOK, paging.Page[classroom.Student]{Data: b.students})
	}))
	mux.HandleFunc("POST /classrooms/{cid}/students", b.protected(func(w http.ResponseWriter, r *http.Request) {
		var req classroom.CreateStudentRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		st := classroom.Student{ID: "s1", ClassroomID: r.PathValue("cid"), FullName: req.FullName}
		b.students = append(b.students, st)
		writeEnvelope(b.t, w, http.StatusCreated, st)
	}))
	mux.HandleFunc("GET /classrooms/{cid}/lessons", b.protected(func(w http.ResponseWriter, r *http.Request) {
		b.lastQuery["lessons"] = r.URL.RawQuery
		writeEnvelope(b.t, w, http.StatusOK, paging.Page[classroom.Lesson]{Data: b.lessons})
	}))
	mux.HandleFunc("GET /classrooms/{cid}/chats", b.protected(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(b.t, w, http.StatusOK, paging.Page[chat.Chat]{Data: b.chats[r.PathValue("cid")]})
	}))
	mux.HandleFunc("POST /classrooms/{cid}/chats", b.protected(func(w http.ResponseWriter, r *http.Request) {
		var req chat.CreateChatRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		cid := r.PathValue("cid")
		c := chat.Chat{ID: fmt.Sprintf("ch%d", len(b.chats[cid])+1), ClassroomID: cid, Title: req.Title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		b.chats[cid] = append(b.chats[cid], c)
		writeEnvelope(b.t, w, http.StatusCreated, c)
	}))
	mux.HandleFunc("GET /classrooms/{cid}/chats/{chid}", b.protected(func(w http.ResponseWriter, r *http.Request) {
		c, ok := b.findChat(r.PathValue("cid"), r.PathValue("chid"))
		if !ok {
			writeJSON(b.t, w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "chatNotFound"})
			return
		}
		writeEnvelope(b.t, w, http.StatusOK, chat.WithMessages{Chat: c, Messages: b.messages[c.ID]})
	}))
	mux.HandleFunc("PATCH /classrooms/{cid}/chats/{chid}", b.protected(func(w http.ResponseWriter, r *http.Request) {
		var req chat.UpdateChatRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		cid, chid := r.PathValue("cid"), r.PathValue("chid")
		for i, c := range b.chats[cid] {
			if c.ID == chid {
				if req.Pinned != nil {
					c.Pinned = *req.Pinned
				}
				b.chats[cid][i] = c
				writeEnvelope(b.t, w, http.StatusOK, c)
				return
			}
		}
		writeJSON(b.t, w, http.StatusNotFound, map[string]any{"statusCode": 404, "message": "chatNotFound"})
	}))
	mux.HandleFunc("GET /classrooms/{cid}/chats/{chid}/messages/stream", b.protected(func(w http.ResponseWriter, r *http.Request) {
		chid := r.PathValue("chid")
		question := r.URL.Query().Get("message")
		events := b.stream
		hold := b.streamHold
		// The lock is released while streaming so other requests of the
		// test can proceed.
		b.messages[chid] = append(b.messages[chid],
			chat.Message{ID: "m-q", ChatID: chid, Role: chat.RoleUser, Content: question},
			chat.Message{ID: "m-a", ChatID: chid, Role: chat.RoleAssistant, Content: "answer"},
		)
		b.mu.Unlock()
		defer b.mu.Lock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, ev := range events {
			if hold != nil && i == 1 {
				select {
				case <-hold:
				case <-r.Context().Done():
					return
				}
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}))
	mux.HandleFunc("POST /classrooms/{cid}/chats/{chid}/messages/{mid}/save-to-lesson", b.protected(func(w http.ResponseWriter, r *http.Request) {
		mid := r.PathValue("mid")
		b.savedIDs = append(b.savedIDs, mid)
		writeEnvelope(b.t, w, http.StatusCreated, chat.SaveToLessonResult{LessonID: "l-1", LessonTitle: "Past simple", MessageID: mid})
	}))
	mux.HandleFunc("DELETE /classrooms/{cid}/chats/{chid}/messages/{mid}/save-to-lesson", b.protected(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(b.t, w, http.StatusOK, chat.RemoveSavedLessonResult{RemovedLessonID: "l-1"})
	}))
	return mux
}

// protected checks the bearer token (or the stream's token query parameter)
// and runs next with b.mu held.
func (b *fakeBackend) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != b.validToken {
			writeJSON(b.t, w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) findChat(cid, chid string) (chat.Chat, bool) {
	for _, c := range b.chats[cid] {
		if c.ID == chid {
			return c, true
		}
	}
	return chat.Chat{}, false
}

func (b *fakeBackend) counts() (refresh, logout, me int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls, b.logoutCalls, b.meCalls
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, data any) {
	writeJSON(t, w, status, map[string]any{
		"statusCode": status,
		"message":    "ok",
		"data":       data,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

// --- Wiring ---

type testApp struct {
	clock       *clockwork.FakeClock
	backend     *fakeBackend
	sessionDB   *memSessionRepo
	workspaceDB *memWorkspaceRepo
	sessions    *SessionStore
	workspaces  *WorkspaceRegistry
	gateway     *Gateway
	accounts    *AccountService
	planner     *PlannerService

	expiredMu sync.Mutex
	expired   []int64
}

func newTestApp(t *testing.T, cfg PlannerConfig) *testApp {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	log := logrus.NewEntry(logger)

	backend := newFakeBackend(t)
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	a := &testApp{
		clock:       clockwork.NewFakeClockAt(time.Now()),
		backend:     backend,
		sessionDB:   newMemSessionRepo(),
		workspaceDB: newMemWorkspaceRepo(),
	}
	a.sessions = NewSessionStore(a.sessionDB, a.clock, log)
	a.workspaces = NewWorkspaceRegistry(a.workspaceDB, a.clock, log)
	a.gateway = NewGateway(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, a.sessions, log)
	a.gateway.OnSessionExpired(func(ctx context.Context, telegramID int64) {
		a.expiredMu.Lock()
		a.expired = append(a.expired, telegramID)
		a.expiredMu.Unlock()
	})
	a.accounts = NewAccountService(a.gateway, a.sessions, a.workspaces, a.clock, log)
	a.planner = NewPlannerService(a.gateway, a.accounts, a.workspaces, a.clock, cfg, log)
	return a
}

func (a *testApp) login(t *testing.T, telegramID int64) {
	t.Helper()
	_, err := a.accounts.Login(context.Background(), telegramID, "ada@example.com", "secret1")
	require.NoError(t, err)
}

func (a *testApp) hasClient(telegramID int64) bool {
	a.gateway.mu.Lock()
	defer a.gateway.mu.Unlock()
	_, ok := a.gateway.clients[telegramID]
	return ok
}

func (a *testApp) expiredUsers() []int64 {
	a.expiredMu.Lock()
	defer a.expiredMu.Unlock()
	return slices.Clone(a.expired)
}
