package telegram

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"gopkg.in/telebot.v3"

	"lesson_planner_bot/internal/app"
	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
)

type sentMessage struct {
	chatID int64
	text   string
	markup *telebot.ReplyMarkup
}

type fakeClient struct {
	mu       sync.Mutex
	messages []*sentMessage
	edits    int
	sendErr  error
}

func (f *fakeClient) SendMessage(chatID int64, text string, options *telebot.SendOptions) (*telebot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.messages = append(f.messages, &sentMessage{chatID: chatID, text: text, markup: markupOf(options)})
	return &telebot.Message{ID: len(f.messages), Chat: &telebot.Chat{ID: chatID}}, nil
}

func (f *fakeClient) EditMessage(msg *telebot.Message, text string, options *telebot.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messages[msg.ID-1]
	m.text = text
	if markup := markupOf(options); markup != nil {
		m.markup = markup
	}
	f.edits++
	return nil
}

func markupOf(options *telebot.SendOptions) *telebot.ReplyMarkup {
	if options == nil {
		return nil
	}
	return options.ReplyMarkup
}

// texts returns the current text of every message sent so far.
func (f *fakeClient) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.text
	}
	return out
}

type fakeAccounts struct {
	user       *auth.User
	err        error
	email      string
	password   string
	registered auth.RegisterRequest
}

func (f *fakeAccounts) Login(_ context.Context, _ int64, email, password string) (*auth.User, error) {
	f.email, f.password = email, password
	return f.user, f.err
}

func (f *fakeAccounts) Register(_ context.Context, _ int64, req auth.RegisterRequest) error {
	f.registered = req
	return f.err
}

func (f *fakeAccounts) ForgotPassword(_ context.Context, _ int64, email string) error {
	f.email = email
	return f.err
}

func (f *fakeAccounts) ResetPassword(_ context.Context, _ int64, _, password string) error {
	f.password = password
	return f.err
}

func (f *fakeAccounts) Logout(context.Context, int64) error {
	return f.err
}

func (f *fakeAccounts) CurrentUser(context.Context, int64) (*auth.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil {
		return nil, app.ErrNotAuthenticated
	}
	return f.user, nil
}

type fakePlanner struct {
	ws      *app.Workspace
	entries []app.ClassroomEntry
	chats   []chat.Chat
	msgs    []chat.Message
	err     error

	loads      int
	opened     string
	created    classroom.CreateClassroomRequest
	selected   string
	savedMsgID string
	unsavedID  string

	askChunks []string
	askReply  *chat.Reply
	askErr    error
	stopped   bool
}

func newFakePlanner() *fakePlanner {
	return &fakePlanner{ws: app.NewWorkspace(7, clockwork.NewFakeClock())}
}

func (f *fakePlanner) Workspace(context.Context, int64) *app.Workspace {
	return f.ws
}

func (f *fakePlanner) LoadClasses(context.Context, int64) ([]app.ClassroomEntry, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	f.ws.SetClasses(f.entries)
	return f.ws.Classes(), nil
}

func (f *fakePlanner) CreateClass(_ context.Context, _ int64, req classroom.CreateClassroomRequest) (*classroom.Classroom, error) {
	f.created = req
	return &classroom.Classroom{ID: "new", Name: req.Name, Grade: req.Grade}, f.err
}

func (f *fakePlanner) OpenClass(_ context.Context, _ int64, classID string) (app.ClassroomEntry, error) {
	f.opened = classID
	f.ws.SelectClass(classID)
	entry, _ := f.ws.Class(classID)
	return entry, f.err
}

func (f *fakePlanner) Students(context.Context, int64) ([]classroom.Student, error) {
	return []classroom.Student{{FullName: "Grace Hopper", CurrentLevel: classroom.CefrB1}}, f.err
}

func (f *fakePlanner) AddStudent(_ context.Context, _ int64, req classroom.CreateStudentRequest) (*classroom.Student, error) {
	return &classroom.Student{FullName: req.FullName}, f.err
}

func (f *fakePlanner) Lessons(context.Context, int64) ([]classroom.Lesson, error) {
	return []classroom.Lesson{{Title: "Past simple", Status: classroom.LessonInProgress}}, f.err
}

func (f *fakePlanner) Chats(context.Context, int64) ([]chat.Chat, error) {
	return f.chats, f.err
}

func (f *fakePlanner) CreateChat(_ context.Context, _ int64, req chat.CreateChatRequest) (*chat.Chat, error) {
	return &chat.Chat{ID: "new", Title: req.Title}, f.err
}

func (f *fakePlanner) SelectChat(_ context.Context, _ int64, chatID string) (*chat.WithMessages, error) {
	f.selected = chatID
	return &chat.WithMessages{Chat: chat.Chat{ID: chatID, Title: "Irregular verbs"}, Messages: f.msgs}, f.err
}

func (f *fakePlanner) TogglePin(context.Context, int64) (*chat.Chat, error) {
	return &chat.Chat{ID: "ch1", Title: "Irregular verbs", Pinned: true}, f.err
}

func (f *fakePlanner) History(context.Context, int64) ([]chat.Message, error) {
	return f.msgs, f.err
}

func (f *fakePlanner) Ask(_ context.Context, _ int64, _ string, onProgress func(buffered string)) (*chat.Reply, error) {
	buffered := ""
	for _, c := range f.askChunks {
		buffered += c
		onProgress(buffered)
	}
	return f.askReply, f.askErr
}

func (f *fakePlanner) Stop(context.Context, int64) bool {
	return f.stopped
}

func (f *fakePlanner) SaveToLesson(_ context.Context, _ int64, messageID, _ string) (*chat.SaveToLessonResult, error) {
	f.savedMsgID = messageID
	return &chat.SaveToLessonResult{LessonID: "l-1", LessonTitle: "Warm-ups", MessageID: messageID}, f.err
}

func (f *fakePlanner) UnsaveFromLesson(_ context.Context, _ int64, messageID string) error {
	f.unsavedID = messageID
	return f.err
}
