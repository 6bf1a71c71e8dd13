// internal/app/planner_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/paging"
)

var (
	ErrNoClassSelected = errors.New("no classroom selected")
	ErrNoChatSelected  = errors.New("no chat selected")
	ErrRateLimited     = errors.New("too many questions, please wait a moment")
	ErrMessageNotSaved = errors.New("message has not been saved yet")
	ErrMessageNotFound = errors.New("message not found")
	ErrNothingToSave   = errors.New("no assistant reply to save")
	ErrEmptyQuestion   = errors.New("question is empty")
)

const listPageSize = 50

// PlannerConfig tunes the planner service.
type PlannerConfig struct {
	// AskRatePerMinute limits questions to the assistant per teacher.
	// Zero disables the limit.
	AskRatePerMinute int
}

// PlannerService implements the lesson-planning workflow of a teacher on top
// of the backend API and the teacher's workspace.
type PlannerService struct {
	gateway    *Gateway
	accounts   *AccountService
	workspaces *WorkspaceRegistry
	clock      clockwork.Clock
	logger     *logrus.Entry
	cfg        PlannerConfig

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func NewPlannerService(
	gateway *Gateway,
	accounts *AccountService,
	workspaces *WorkspaceRegistry,
	clock clockwork.Clock,
	cfg PlannerConfig,
	logger *logrus.Entry,
) *PlannerService {
	return &PlannerService{
		gateway:    gateway,
		accounts:   accounts,
		workspaces: workspaces,
		clock:      clock,
		logger:     logger.WithField("component", "planner_service"),
		cfg:        cfg,
		limiters:   make(map[int64]*rate.Limiter),
	}
}

// Workspace returns the teacher's workspace.
func (s *PlannerService) Workspace(ctx context.Context, telegramID int64) *Workspace {
	return s.workspaces.Get(ctx, telegramID)
}

// LoadClasses fetches all classrooms with their chats into the workspace.
func (s *PlannerService) LoadClasses(ctx context.Context, telegramID int64) ([]ClassroomEntry, error) {
	if err := s.accounts.RequireSession(ctx, telegramID); err != nil {
		return nil, err
	}
	svc := s.gateway.For(telegramID)
	ws := s.workspaces.Get(ctx, telegramID)
	ws.SetLoading(true)
	defer ws.SetLoading(false)

	classes, err := svc.Classrooms.ListAll(ctx, listPageSize)
	if err != nil {
		return nil, err
	}
	entries := make([]ClassroomEntry, 0, len(classes))
	for _, c := range classes {
		chats, err := svc.Chats.ListAll(ctx, c.ID, listPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load chats of classroom %s: %w", c.ID, err)
		}
		entries = append(entries, ClassroomEntry{Classroom: c, Chats: chats})
	}
	ws.SetClasses(entries)

	classID, _ := ws.Selection()
	if classID != "" {
		if _, ok := ws.Class(classID); !ok {
			ws.SelectClass("")
			s.workspaces.Persist(ctx, ws)
		}
	}
	return ws.Classes(), nil
}

// CreateClass creates a classroom and selects it.
func (s *PlannerService) CreateClass(ctx context.Context, telegramID int64, req classroom.CreateClassroomRequest) (*classroom.Classroom, error) {
	if err := s.accounts.RequireSession(ctx, telegramID); err != nil {
		return nil, err
	}
	created, err := s.gateway.For(telegramID).Classrooms.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	ws.AddClass(*created)
	ws.SelectClass(created.ID)
	ws.SetClassOpen(created.ID, true)
	s.workspaces.Persist(ctx, ws)
	return created, nil
}

// OpenClass selects a classroom and expands it.
func (s *PlannerService) OpenClass(ctx context.Context, telegramID int64, classID string) (ClassroomEntry, error) {
	if err := s.accounts.RequireSession(ctx, telegramID); err != nil {
		return ClassroomEntry{}, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	entry, ok := ws.Class(classID)
	if !ok {
		c, err := s.gateway.For(telegramID).Classrooms.Get(ctx, classID)
		if err != nil {
			return ClassroomEntry{}, err
		}
		ws.AddClass(*c)
		entry = ClassroomEntry{Classroom: *c}
	}
	ws.SelectClass(classID)
	ws.SetClassOpen(classID, true)
	s.workspaces.Persist(ctx, ws)
	return entry, nil
}

// ToggleClass expands or collapses a classroom.
func (s *PlannerService) ToggleClass(ctx context.Context, telegramID int64, classID string) bool {
	ws := s.workspaces.Get(ctx, telegramID)
	open := ws.ToggleClass(classID)
	s.workspaces.Persist(ctx, ws)
	return open
}

// RenameClass updates the name of the selected classroom.
func (s *PlannerService) RenameClass(ctx context.Context, telegramID int64, name string) (*classroom.Classroom, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	updated, err := s.gateway.For(telegramID).Classrooms.Update(ctx, classID, classroom.UpdateClassroomRequest{Name: &name})
	if err != nil {
		return nil, err
	}
	s.workspaces.Get(ctx, telegramID).UpdateClass(*updated)
	return updated, nil
}

func (s *PlannerService) Students(ctx context.Context, telegramID int64) ([]classroom.Student, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	page, err := s.gateway.For(telegramID).Students.List(ctx, classID, paging.Params{Limit: listPageSize, OrderBy: "fullName", Order: paging.OrderAsc})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (s *PlannerService) AddStudent(ctx context.Context, telegramID int64, req classroom.CreateStudentRequest) (*classroom.Student, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	return s.gateway.For(telegramID).Students.Create(ctx, classID, req)
}

func (s *PlannerService) Lessons(ctx context.Context, telegramID int64) ([]classroom.Lesson, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	page, err := s.gateway.For(telegramID).Lessons.List(ctx, classID, paging.Params{Limit: listPageSize, OrderBy: "createdAt", Order: paging.OrderDesc})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Chats reloads the chats of the selected classroom, pinned first.
func (s *PlannerService) Chats(ctx context.Context, telegramID int64) ([]chat.Chat, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	chats, err := s.gateway.For(telegramID).Chats.ListAll(ctx, classID, listPageSize)
	if err != nil {
		return nil, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	if _, ok := ws.Class(classID); !ok {
		c, err := s.gateway.For(telegramID).Classrooms.Get(ctx, classID)
		if err != nil {
			return nil, err
		}
		ws.AddClass(*c)
	}
	ws.SetClassChats(classID, chats)
	entry, _ := ws.Class(classID)
	return entry.Chats, nil
}

// CreateChat creates a chat in the selected classroom and selects it.
func (s *PlannerService) CreateChat(ctx context.Context, telegramID int64, req chat.CreateChatRequest) (*chat.Chat, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	created, err := s.gateway.For(telegramID).Chats.Create(ctx, classID, req)
	if err != nil {
		return nil, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	ws.AddChat(classID, *created)
	ws.SelectChat(created.ID)
	ws.SetMessages(nil)
	s.workspaces.Persist(ctx, ws)
	return created, nil
}

// SelectChat selects a chat of the selected classroom and loads its messages.
func (s *PlannerService) SelectChat(ctx context.Context, telegramID int64, chatID string) (*chat.WithMessages, error) {
	classID, _, err := s.selection(ctx, telegramID, false)
	if err != nil {
		return nil, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	if ws.Streaming() {
		return nil, ErrStreamInProgress
	}
	ws.SetLoading(true)
	defer ws.SetLoading(false)

	full, err := s.gateway.For(telegramID).Chats.Get(ctx, classID, chatID)
	if err != nil {
		return nil, err
	}
	ws.SelectChat(chatID)
	ws.SetMessages(full.Messages)
	putChat(ws, classID, full.Chat)
	s.workspaces.Persist(ctx, ws)
	return full, nil
}

// TogglePin pins or unpins the selected chat.
func (s *PlannerService) TogglePin(ctx context.Context, telegramID int64) (*chat.Chat, error) {
	classID, chatID, err := s.selection(ctx, telegramID, true)
	if err != nil {
		return nil, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	current, ok := ws.Chat(classID, chatID)
	if !ok {
		full, err := s.gateway.For(telegramID).Chats.Get(ctx, classID, chatID)
		if err != nil {
			return nil, err
		}
		current = full.Chat
	}
	pinned := !current.Pinned
	updated, err := s.gateway.For(telegramID).Chats.Update(ctx, classID, chatID, chat.UpdateChatRequest{Pinned: &pinned})
	if err != nil {
		return nil, err
	}
	putChat(ws, classID, *updated)
	return updated, nil
}

// History returns the messages of the selected chat, loading them if the
// workspace has none.
func (s *PlannerService) History(ctx context.Context, telegramID int64) ([]chat.Message, error) {
	classID, chatID, err := s.selection(ctx, telegramID, true)
	if err != nil {
		return nil, err
	}
	ws := s.workspaces.Get(ctx, telegramID)
	if msgs := ws.Messages(); len(msgs) > 0 {
		return msgs, nil
	}
	full, err := s.gateway.For(telegramID).Chats.Get(ctx, classID, chatID)
	if err != nil {
		return nil, err
	}
	ws.SetMessages(full.Messages)
	return ws.Messages(), nil
}

// Ask sends a question to the assistant of the selected chat and streams the
// reply. onProgress receives the text buffered so far after every chunk. Stop
// cancels the stream; Ask then returns context.Canceled.
func (s *PlannerService) Ask(ctx context.Context, telegramID int64, question string, onProgress func(buffered string)) (*chat.Reply, error) {
	question = strings.TrimSpace(question)
	classID, chatID, err := s.selection(ctx, telegramID, true)
	if err != nil {
		return nil, err
	}
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ws := s.workspaces.Get(ctx, telegramID)
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	seq, err := ws.BeginStream(cancel)
	if err != nil {
		return nil, err
	}
	defer ws.EndStream(seq)
	if !s.limiter(telegramID).Allow() {
		return nil, ErrRateLimited
	}

	log := s.logger.WithFields(logrus.Fields{"telegram_id": telegramID, "classroom_id": classID, "chat_id": chatID})
	ws.AddMessageIfSelected(classID, chatID, chat.Message{
		ID:        chat.TempIDPrefix + uuid.NewString(),
		ChatID:    chatID,
		Role:      chat.RoleUser,
		Content:   question,
		CreatedAt: s.clock.Now(),
	})

	reply, err := s.gateway.For(telegramID).Chats.StreamMessage(streamCtx, classID, chatID, question, func(chunk string) {
		if buffered, ok := ws.AppendStream(seq, chunk); ok && onProgress != nil {
			onProgress(buffered)
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Reply stream stopped")
		} else {
			log.WithError(err).Warn("Reply stream failed")
		}
		return nil, err
	}

	added := ws.AddMessageIfSelected(classID, chatID, chat.Message{
		ID:        reply.MessageID,
		ChatID:    chatID,
		Role:      chat.RoleAssistant,
		Content:   reply.Content,
		CreatedAt: s.clock.Now(),
	})
	if !added {
		log.Info("Selection changed while the reply streamed, leaving the current chat as is")
	}
	if reply.Truncated() {
		log.Warn("Reply was cut off by the output limit")
	}

	// The backend assigns IDs to the question as well; reload to replace
	// the temporary one.
	if full, err := s.gateway.For(telegramID).Chats.Get(ctx, classID, chatID); err == nil {
		ws.SetMessagesIfSelected(classID, chatID, full.Messages)
		putChat(ws, classID, full.Chat)
	} else {
		log.WithError(err).Debug("Could not reload messages after reply")
	}
	return reply, nil
}

// Stop cancels the reply being streamed. It reports whether there was one.
func (s *PlannerService) Stop(ctx context.Context, telegramID int64) bool {
	return s.workspaces.Get(ctx, telegramID).CancelStream()
}

// SaveToLesson saves an assistant message of the selected chat into a
// lesson. An empty messageID picks the latest assistant reply; an empty
// lessonID lets the backend create a new lesson.
func (s *PlannerService) SaveToLesson(ctx context.Context, telegramID int64, messageID, lessonID string) (*chat.SaveToLessonResult, error) {
	classID, chatID, err := s.selection(ctx, telegramID, true)
	if err != nil {
		return nil, err
	}
	msgs, err := s.History(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	msg, err := pickMessage(msgs, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsSaved() {
		return nil, ErrMessageNotSaved
	}

	res, err := s.gateway.For(telegramID).Chats.SaveToLesson(ctx, classID, chatID, msg.ID, lessonID)
	if err != nil {
		return nil, err
	}
	s.workspaces.Get(ctx, telegramID).UpdateMessageLesson(msg.ID, res.LessonID, res.LessonTitle)
	s.logger.WithFields(logrus.Fields{"telegram_id": telegramID, "chat_id": chatID, "lesson_id": res.LessonID}).Info("Reply saved to lesson")
	return res, nil
}

// UnsaveFromLesson removes the lesson created from a message.
func (s *PlannerService) UnsaveFromLesson(ctx context.Context, telegramID int64, messageID string) error {
	classID, chatID, err := s.selection(ctx, telegramID, true)
	if err != nil {
		return err
	}
	if !(&chat.Message{ID: messageID}).IsSaved() {
		return ErrMessageNotSaved
	}
	if _, err := s.gateway.For(telegramID).Chats.RemoveSavedLesson(ctx, classID, chatID, messageID); err != nil {
		return err
	}
	s.workspaces.Get(ctx, telegramID).UpdateMessageLesson(messageID, "", "")
	return nil
}

// putChat adds the chat to its classroom or replaces the known copy.
func putChat(ws *Workspace, classID string, c chat.Chat) {
	if _, ok := ws.Chat(classID, c.ID); ok {
		ws.UpdateChat(classID, c)
		return
	}
	ws.AddChat(classID, c)
}

func pickMessage(msgs []chat.Message, messageID string) (chat.Message, error) {
	if messageID != "" {
		for _, m := range msgs {
			if m.ID == messageID {
				return m, nil
			}
		}
		return chat.Message{}, ErrMessageNotFound
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			return msgs[i], nil
		}
	}
	return chat.Message{}, ErrNothingToSave
}

// selection returns the selected classroom (and chat when needChat is set)
// of an authenticated teacher.
func (s *PlannerService) selection(ctx context.Context, telegramID int64, needChat bool) (string, string, error) {
	if err := s.accounts.RequireSession(ctx, telegramID); err != nil {
		return "", "", err
	}
	classID, chatID := s.workspaces.Get(ctx, telegramID).Selection()
	if classID == "" {
		return "", "", ErrNoClassSelected
	}
	if needChat && chatID == "" {
		return "", "", ErrNoChatSelected
	}
	return classID, chatID, nil
}

func (s *PlannerService) limiter(telegramID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[telegramID]
	if !ok {
		if s.cfg.AskRatePerMinute <= 0 {
			l = rate.NewLimiter(rate.Inf, 0)
		} else {
			l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.cfg.AskRatePerMinute)), s.cfg.AskRatePerMinute)
		}
		s.limiters[telegramID] = l
	}
	return l
}
