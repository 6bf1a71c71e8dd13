// internal/app/workspace.go
package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/workspace"
	idb "lesson_planner_bot/internal/infra/database"
)

var ErrStreamInProgress = errors.New("a reply is already being streamed")

// ClassroomEntry is a classroom of the sidebar together with its chats.
type ClassroomEntry struct {
	Classroom classroom.Classroom
	Chats     []chat.Chat
}

// Workspace is the lesson-planning state of one teacher: the classroom list,
// which classrooms are expanded, the selected classroom and chat, the
// messages of the selected chat and the reply currently being streamed.
// All methods are safe for concurrent use and return copies.
type Workspace struct {
	telegramID int64
	clock      clockwork.Clock

	mu            sync.Mutex
	classes       []ClassroomEntry
	open          map[string]bool
	selectedClass string
	selectedChat  string
	messages      []chat.Message
	loading       bool
	sending       bool
	streamBuf     string
	streamSeq     uint64
	streamActive  bool
	streamCancel  context.CancelFunc
}

func NewWorkspace(telegramID int64, clock clockwork.Clock) *Workspace {
	return &Workspace{
		telegramID: telegramID,
		clock:      clock,
		open:       make(map[string]bool),
	}
}

func (w *Workspace) TelegramID() int64 {
	return w.telegramID
}

// Restore applies persisted state.
func (w *Workspace) Restore(st *workspace.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selectedClass = st.SelectedClassID
	w.selectedChat = st.SelectedChatID
	w.open = make(map[string]bool, len(st.OpenClassIDs))
	for _, id := range st.OpenClassIDs {
		w.open[id] = true
	}
}

// State returns the persistable part of the workspace.
func (w *Workspace) State() *workspace.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	open := make([]string, 0, len(w.open))
	for id, isOpen := range w.open {
		if isOpen {
			open = append(open, id)
		}
	}
	slices.Sort(open)
	return &workspace.State{
		TelegramID:      w.telegramID,
		SelectedClassID: w.selectedClass,
		SelectedChatID:  w.selectedChat,
		OpenClassIDs:    open,
	}
}

// SelectClass selects a classroom. Changing the classroom clears the
// selected chat and its messages.
func (w *Workspace) SelectClass(classID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selectedClass == classID {
		return
	}
	w.selectedClass = classID
	w.selectedChat = ""
	w.messages = nil
}

// SelectChat selects a chat of the selected classroom and clears the
// current messages.
func (w *Workspace) SelectChat(chatID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selectedChat = chatID
	w.messages = nil
}

func (w *Workspace) Selection() (classID, chatID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedClass, w.selectedChat
}

// ToggleClass flips the expansion flag of a classroom and returns the new value.
func (w *Workspace) ToggleClass(classID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open[classID] = !w.open[classID]
	return w.open[classID]
}

func (w *Workspace) SetClassOpen(classID string, open bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open[classID] = open
}

func (w *Workspace) IsClassOpen(classID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open[classID]
}

// SetClasses replaces the classroom list. Classrooms are kept newest first
// and their chats pinned first, then most recently updated.
func (w *Workspace) SetClasses(entries []ClassroomEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	classes := make([]ClassroomEntry, len(entries))
	for i, e := range entries {
		classes[i] = ClassroomEntry{Classroom: e.Classroom, Chats: sortChats(slices.Clone(e.Chats), now)}
	}
	slices.SortStableFunc(classes, func(a, b ClassroomEntry) int {
		return orDefault(b.Classroom.CreatedAt, now).Compare(orDefault(a.Classroom.CreatedAt, now))
	})
	w.classes = classes
}

// Classes returns a copy of the classroom list.
func (w *Workspace) Classes() []ClassroomEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ClassroomEntry, len(w.classes))
	for i, e := range w.classes {
		out[i] = ClassroomEntry{Classroom: e.Classroom, Chats: slices.Clone(e.Chats)}
	}
	return out
}

// Class returns the classroom with the given ID.
func (w *Workspace) Class(classID string) (ClassroomEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.classIndex(classID)
	if i < 0 {
		return ClassroomEntry{}, false
	}
	e := w.classes[i]
	return ClassroomEntry{Classroom: e.Classroom, Chats: slices.Clone(e.Chats)}, true
}

// AddClass inserts a new classroom keeping the newest-first order.
func (w *Workspace) AddClass(c classroom.Classroom) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.classIndex(c.ID); i >= 0 {
		w.classes[i].Classroom = c
		return
	}
	w.classes = append([]ClassroomEntry{{Classroom: c}}, w.classes...)
}

// UpdateClass replaces the classroom fields, keeping its chats.
func (w *Workspace) UpdateClass(c classroom.Classroom) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.classIndex(c.ID); i >= 0 {
		w.classes[i].Classroom = c
	}
}

// SetClassChats replaces the chats of a classroom.
func (w *Workspace) SetClassChats(classID string, chats []chat.Chat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.classIndex(classID); i >= 0 {
		w.classes[i].Chats = sortChats(slices.Clone(chats), w.clock.Now())
	}
}

// AddChat adds a chat to a classroom and re-sorts its chats.
func (w *Workspace) AddChat(classID string, c chat.Chat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.classIndex(classID)
	if i < 0 {
		return
	}
	chats := append(slices.Clone(w.classes[i].Chats), c)
	w.classes[i].Chats = sortChats(chats, w.clock.Now())
}

// UpdateChat replaces a chat of a classroom and re-sorts its chats.
func (w *Workspace) UpdateChat(classID string, c chat.Chat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.classIndex(classID)
	if i < 0 {
		return
	}
	chats := slices.Clone(w.classes[i].Chats)
	for j := range chats {
		if chats[j].ID == c.ID {
			chats[j] = c
			w.classes[i].Chats = sortChats(chats, w.clock.Now())
			return
		}
	}
}

// Chat returns a chat of a classroom.
func (w *Workspace) Chat(classID, chatID string) (chat.Chat, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.classIndex(classID)
	if i < 0 {
		return chat.Chat{}, false
	}
	for _, c := range w.classes[i].Chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return chat.Chat{}, false
}

func (w *Workspace) classIndex(classID string) int {
	return slices.IndexFunc(w.classes, func(e ClassroomEntry) bool { return e.Classroom.ID == classID })
}

func (w *Workspace) SetLoading(v bool) {
	w.mu.Lock()
	w.loading = v
	w.mu.Unlock()
}

func (w *Workspace) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

func (w *Workspace) SetSending(v bool) {
	w.mu.Lock()
	w.sending = v
	w.mu.Unlock()
}

func (w *Workspace) Sending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sending
}

// SetMessages replaces the messages of the selected chat.
func (w *Workspace) SetMessages(msgs []chat.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = slices.Clone(msgs)
}

func (w *Workspace) AddMessage(m chat.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, m)
}

// AddMessageIfSelected appends m only while classID and chatID are still the
// selection. It reports whether the message was added.
func (w *Workspace) AddMessageIfSelected(classID, chatID string, m chat.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selectedClass != classID || w.selectedChat != chatID {
		return false
	}
	w.messages = append(w.messages, m)
	return true
}

// SetMessagesIfSelected replaces the messages only while classID and chatID
// are still the selection.
func (w *Workspace) SetMessagesIfSelected(classID, chatID string, msgs []chat.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selectedClass != classID || w.selectedChat != chatID {
		return false
	}
	w.messages = slices.Clone(msgs)
	return true
}

// UpdateMessageLesson records that a message was saved into a lesson. An
// empty lessonID clears the link.
func (w *Workspace) UpdateMessageLesson(messageID, lessonID, lessonTitle string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.messages {
		if w.messages[i].ID != messageID {
			continue
		}
		if lessonID == "" {
			w.messages[i].LessonID = nil
			w.messages[i].LessonTitle = nil
			w.messages[i].LessonCreatedAt = nil
			return true
		}
		now := w.clock.Now()
		w.messages[i].LessonID = &lessonID
		w.messages[i].LessonTitle = &lessonTitle
		w.messages[i].LessonCreatedAt = &now
		return true
	}
	return false
}

func (w *Workspace) Messages() []chat.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.messages)
}

// BeginStream reserves the streaming buffer for a new reply. The returned
// sequence number must be passed to the other stream methods; calls carrying
// an outdated number are ignored.
func (w *Workspace) BeginStream(cancel context.CancelFunc) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.streamActive {
		return 0, ErrStreamInProgress
	}
	w.streamSeq++
	w.streamActive = true
	w.streamCancel = cancel
	w.streamBuf = ""
	w.sending = true
	return w.streamSeq, nil
}

// AppendStream adds a chunk to the buffer and returns the buffered text.
func (w *Workspace) AppendStream(seq uint64, chunk string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.streamActive || seq != w.streamSeq {
		return "", false
	}
	w.streamBuf += chunk
	return w.streamBuf, true
}

// SetStream replaces the buffered text.
func (w *Workspace) SetStream(seq uint64, text string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.streamActive || seq != w.streamSeq {
		return false
	}
	w.streamBuf = text
	return true
}

func (w *Workspace) StreamBuffer() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streamBuf
}

func (w *Workspace) Streaming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streamActive
}

// EndStream clears the buffer and releases the stream reservation.
func (w *Workspace) EndStream(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.streamSeq {
		return
	}
	w.streamActive = false
	w.streamCancel = nil
	w.streamBuf = ""
	w.sending = false
}

// CancelStream cancels the running stream, if any.
func (w *Workspace) CancelStream() bool {
	w.mu.Lock()
	cancel := w.streamCancel
	active := w.streamActive
	w.mu.Unlock()
	if !active || cancel == nil {
		return false
	}
	cancel()
	return true
}

// sortChats orders chats pinned first, then by last update. Missing
// timestamps sort as now.
func sortChats(chats []chat.Chat, now time.Time) []chat.Chat {
	slices.SortStableFunc(chats, func(a, b chat.Chat) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return chatTime(b, now).Compare(chatTime(a, now))
	})
	return chats
}

func chatTime(c chat.Chat, now time.Time) time.Time {
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return orDefault(c.CreatedAt, now)
}

func orDefault(t, def time.Time) time.Time {
	if t.IsZero() {
		return def
	}
	return t
}

// WorkspaceRegistry hands out the workspace of each teacher, restoring the
// persisted selection on first access.
type WorkspaceRegistry struct {
	repo   workspace.Repository
	clock  clockwork.Clock
	logger *logrus.Entry

	mu         sync.Mutex
	workspaces map[int64]*Workspace
}

func NewWorkspaceRegistry(repo workspace.Repository, clock clockwork.Clock, logger *logrus.Entry) *WorkspaceRegistry {
	return &WorkspaceRegistry{
		repo:       repo,
		clock:      clock,
		logger:     logger.WithField("component", "workspace_registry"),
		workspaces: make(map[int64]*Workspace),
	}
}

// Get returns the teacher's workspace.
func (r *WorkspaceRegistry) Get(ctx context.Context, telegramID int64) *Workspace {
	r.mu.Lock()
	ws, ok := r.workspaces[telegramID]
	r.mu.Unlock()
	if ok {
		return ws
	}

	ws = NewWorkspace(telegramID, r.clock)
	st, err := r.repo.Get(ctx, telegramID)
	switch {
	case err == nil:
		ws.Restore(st)
	case !errors.Is(err, idb.ErrWorkspaceNotFound):
		r.logger.WithError(err).WithField("telegram_id", telegramID).Warn("Failed to restore workspace, starting empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workspaces[telegramID]; ok {
		return existing
	}
	r.workspaces[telegramID] = ws
	return ws
}

// Persist stores the selection and expanded classrooms of the workspace.
func (r *WorkspaceRegistry) Persist(ctx context.Context, ws *Workspace) {
	if err := r.repo.Save(ctx, ws.State()); err != nil {
		r.logger.WithError(err).WithField("telegram_id", ws.TelegramID()).Warn("Failed to persist workspace")
	}
}

// Reset drops the teacher's workspace, cancelling a running stream.
func (r *WorkspaceRegistry) Reset(ctx context.Context, telegramID int64) {
	r.mu.Lock()
	ws, ok := r.workspaces[telegramID]
	delete(r.workspaces, telegramID)
	r.mu.Unlock()
	if ok {
		ws.CancelStream()
	}
	if err := r.repo.Delete(ctx, telegramID); err != nil {
		r.logger.WithError(err).WithField("telegram_id", telegramID).Warn("Failed to delete workspace")
	}
}
