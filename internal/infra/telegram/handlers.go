// internal/infra/telegram/handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"lesson_planner_bot/internal/app"
	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/telegram"
	"lesson_planner_bot/internal/infra/api"
	"lesson_planner_bot/internal/infra/metrics"
)

// Accounts is the part of app.AccountService the bot talks to.
type Accounts interface {
	Login(ctx context.Context, telegramID int64, email, password string) (*auth.User, error)
	Register(ctx context.Context, telegramID int64, req auth.RegisterRequest) error
	ForgotPassword(ctx context.Context, telegramID int64, email string) error
	ResetPassword(ctx context.Context, telegramID int64, hash, password string) error
	Logout(ctx context.Context, telegramID int64) error
	CurrentUser(ctx context.Context, telegramID int64) (*auth.User, error)
}

// Planner is the part of app.PlannerService the bot talks to.
type Planner interface {
	Workspace(ctx context.Context, telegramID int64) *app.Workspace
	LoadClasses(ctx context.Context, telegramID int64) ([]app.ClassroomEntry, error)
	CreateClass(ctx context.Context, telegramID int64, req classroom.CreateClassroomRequest) (*classroom.Classroom, error)
	OpenClass(ctx context.Context, telegramID int64, classID string) (app.ClassroomEntry, error)
	Students(ctx context.Context, telegramID int64) ([]classroom.Student, error)
	AddStudent(ctx context.Context, telegramID int64, req classroom.CreateStudentRequest) (*classroom.Student, error)
	Lessons(ctx context.Context, telegramID int64) ([]classroom.Lesson, error)
	Chats(ctx context.Context, telegramID int64) ([]chat.Chat, error)
	CreateChat(ctx context.Context, telegramID int64, req chat.CreateChatRequest) (*chat.Chat, error)
	SelectChat(ctx context.Context, telegramID int64, chatID string) (*chat.WithMessages, error)
	TogglePin(ctx context.Context, telegramID int64) (*chat.Chat, error)
	History(ctx context.Context, telegramID int64) ([]chat.Message, error)
	Ask(ctx context.Context, telegramID int64, question string, onProgress func(buffered string)) (*chat.Reply, error)
	Stop(ctx context.Context, telegramID int64) bool
	SaveToLesson(ctx context.Context, telegramID int64, messageID, lessonID string) (*chat.SaveToLessonResult, error)
	UnsaveFromLesson(ctx context.Context, telegramID int64, messageID string) error
}

// usageError is returned when a command is called with missing or malformed arguments.
type usageError string

func (e usageError) Error() string {
	return "usage: " + string(e)
}

var errBadNumber = errors.New("bad list number")

type commandFunc func(ctx context.Context, senderID int64, args string) (string, error)

// Handlers implements the bot commands on top of the account and planner services.
type Handlers struct {
	ctx          context.Context
	accounts     Accounts
	planner      Planner
	client       telegram.Client
	clock        clockwork.Clock
	editInterval time.Duration
	logger       *logrus.Entry
}

func NewHandlers(
	ctx context.Context,
	accounts Accounts,
	planner Planner,
	client telegram.Client,
	clock clockwork.Clock,
	editInterval time.Duration,
	logger *logrus.Entry,
) *Handlers {
	return &Handlers{
		ctx:          ctx,
		accounts:     accounts,
		planner:      planner,
		client:       client,
		clock:        clock,
		editInterval: editInterval,
		logger:       logger.WithField("component", "telegram_handlers"),
	}
}

// command adapts fn to telebot, sending its text or the user-facing error.
func (h *Handlers) command(name string, fn commandFunc) telebot.HandlerFunc {
	return h.handle(name, fn, false)
}

// secret is like command but deletes the teacher's message, which carries a password.
func (h *Handlers) secret(name string, fn commandFunc) telebot.HandlerFunc {
	return h.handle(name, fn, true)
}

func (h *Handlers) handle(name string, fn commandFunc, deleteInput bool) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := h.logger.WithFields(logrus.Fields{"command": name, "sender_id": senderID})
		logCtx.Debug("Processing command")

		if deleteInput {
			if err := c.Delete(); err != nil {
				logCtx.WithError(err).Debug("Could not delete message with credentials")
			}
		}

		text, err := fn(h.ctx, senderID, strings.TrimSpace(c.Message().Payload))
		if err != nil {
			metrics.BotCommandsTotal.WithLabelValues(name, "error").Inc()
			logCtx.WithError(err).Info("Command failed")
			text = ErrorText(err)
		} else {
			metrics.BotCommandsTotal.WithLabelValues(name, "ok").Inc()
		}
		if text == "" {
			return nil
		}
		for _, page := range SplitMessage(text, MaxMessageRunes) {
			if err := c.Send(page); err != nil {
				return err
			}
		}
		return nil
	}
}

// ErrorText turns an error into the reply shown to the teacher. It is empty
// for errors the teacher has already been told about.
func ErrorText(err error) string {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		return "Usage: " + string(usage)
	case errors.Is(err, errBadNumber):
		return "There is no item with that number. Check the list again."
	case errors.Is(err, errUnknownCallback):
		return "Unknown action."
	case errors.Is(err, api.ErrSessionExpired):
		return ""
	case errors.Is(err, app.ErrNotAuthenticated):
		return "You are not logged in. Use /login <email> <password>."
	case errors.Is(err, app.ErrNoClassSelected):
		return "Select a classroom first: /classes, then /open <number>."
	case errors.Is(err, app.ErrNoChatSelected):
		return "Select a chat first: /chats, then /chat <number>, or create one with /newchat <title>."
	case errors.Is(err, app.ErrStreamInProgress):
		return "The assistant is still answering. Wait for it or use /stop."
	case errors.Is(err, app.ErrRateLimited):
		return "You are asking too quickly. Please wait a moment."
	case errors.Is(err, app.ErrMessageNotSaved):
		return "This message has not been saved by the server yet. Try again in a moment."
	case errors.Is(err, app.ErrMessageNotFound):
		return "No such message. See /history."
	case errors.Is(err, app.ErrNothingToSave):
		return "There is no assistant reply to save yet."
	case errors.Is(err, app.ErrEmptyQuestion):
		return "Type a question for the assistant."
	default:
		return api.UserMessage(err)
	}
}

func (h *Handlers) start(ctx context.Context, senderID int64, _ string) (string, error) {
	user, err := h.accounts.CurrentUser(ctx, senderID)
	if err != nil {
		if !errors.Is(err, app.ErrNotAuthenticated) {
			h.logger.WithError(err).WithField("sender_id", senderID).Debug("Could not resolve user for /start")
		}
		return "Hi! I help you plan lessons with an AI assistant.\n\n" +
			"Log in with /login <email> <password> or create an account with /register. See /help for all commands.", nil
	}
	return fmt.Sprintf("Welcome back, %s! Use /classes to pick a classroom.", user.DisplayName()), nil
}

func (h *Handlers) help(context.Context, int64, string) (string, error) {
	var b strings.Builder
	b.WriteString("Account\n")
	b.WriteString("/login <email> <password> - log in\n")
	b.WriteString("/register <email> <password> <first name> <last name> - create an account\n")
	b.WriteString("/forgot <email> - request a password reset\n")
	b.WriteString("/reset <hash> <password> - set a new password\n")
	b.WriteString("/me - show who you are logged in as\n")
	b.WriteString("/logout - log out\n\n")
	b.WriteString("Classrooms\n")
	b.WriteString("/classes - list your classrooms\n")
	b.WriteString("/newclass <name> [grade] - create a classroom\n")
	b.WriteString("/open <number> - select a classroom\n")
	b.WriteString("/students - list students of the classroom\n")
	b.WriteString("/addstudent <full name> - add a student\n")
	b.WriteString("/lessons - list lessons of the classroom\n\n")
	b.WriteString("Planning chats\n")
	b.WriteString("/chats - list chats of the classroom\n")
	b.WriteString("/newchat <title> - start a chat\n")
	b.WriteString("/chat <number> - select a chat\n")
	b.WriteString("/pin - pin or unpin the chat\n")
	b.WriteString("/history - show the messages of the chat\n")
	b.WriteString("/ask <question> - ask the assistant (plain text works too)\n")
	b.WriteString("/stop - stop the reply being written\n")
	b.WriteString("/save [number] - save a reply into a lesson (latest reply by default)")
	return b.String(), nil
}

func (h *Handlers) login(ctx context.Context, senderID int64, args string) (string, error) {
	f := strings.Fields(args)
	if len(f) != 2 {
		return "", usageError("/login <email> <password>")
	}
	user, err := h.accounts.Login(ctx, senderID, f[0], f[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged in as %s. Use /classes to pick a classroom.", user.DisplayName()), nil
}

func (h *Handlers) register(ctx context.Context, senderID int64, args string) (string, error) {
	f := strings.Fields(args)
	if len(f) < 4 {
		return "", usageError("/register <email> <password> <first name> <last name>")
	}
	req := auth.RegisterRequest{Email: f[0], Password: f[1], FirstName: f[2], LastName: strings.Join(f[3:], " ")}
	if err := h.accounts.Register(ctx, senderID, req); err != nil {
		return "", err
	}
	return "Account created. Confirm your e-mail address, then /login.", nil
}

func (h *Handlers) forgot(ctx context.Context, senderID int64, args string) (string, error) {
	if args == "" || strings.ContainsAny(args, " \t") {
		return "", usageError("/forgot <email>")
	}
	if err := h.accounts.ForgotPassword(ctx, senderID, args); err != nil {
		return "", err
	}
	return "If the address is registered, a reset link is on its way. Finish with /reset <hash> <new password>.", nil
}

func (h *Handlers) reset(ctx context.Context, senderID int64, args string) (string, error) {
	f := strings.Fields(args)
	if len(f) != 2 {
		return "", usageError("/reset <hash> <new password>")
	}
	if err := h.accounts.ResetPassword(ctx, senderID, f[0], f[1]); err != nil {
		return "", err
	}
	return "Password changed. You can /login now.", nil
}

func (h *Handlers) logout(ctx context.Context, senderID int64, _ string) (string, error) {
	if err := h.accounts.Logout(ctx, senderID); err != nil {
		return "", err
	}
	return "Logged out.", nil
}

func (h *Handlers) me(ctx context.Context, senderID int64, _ string) (string, error) {
	user, err := h.accounts.CurrentUser(ctx, senderID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged in as %s (%s).", user.DisplayName(), user.Email), nil
}

func (h *Handlers) classes(ctx context.Context, senderID int64, _ string) (string, error) {
	entries, err := h.planner.LoadClasses(ctx, senderID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "You have no classrooms yet. Create one with /newclass <name> [grade].", nil
	}
	return formatClasses(entries, h.planner.Workspace(ctx, senderID)), nil
}

func (h *Handlers) newClass(ctx context.Context, senderID int64, args string) (string, error) {
	f := strings.Fields(args)
	if len(f) == 0 {
		return "", usageError("/newclass <name> [grade]")
	}
	req := classroom.CreateClassroomRequest{Name: strings.Join(f, " ")}
	if len(f) > 1 {
		if _, err := strconv.Atoi(f[len(f)-1]); err == nil {
			req.Name = strings.Join(f[:len(f)-1], " ")
			req.Grade = f[len(f)-1]
		}
	}
	created, err := h.planner.CreateClass(ctx, senderID, req)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Classroom %q created and selected. Add students with /addstudent or start planning with /newchat.", created.Name), nil
}

func (h *Handlers) open(ctx context.Context, senderID int64, args string) (string, error) {
	entries := h.planner.Workspace(ctx, senderID).Classes()
	if len(entries) == 0 {
		var err error
		if entries, err = h.planner.LoadClasses(ctx, senderID); err != nil {
			return "", err
		}
	}
	i, err := parseIndex(args, len(entries), "/open <classroom number>")
	if err != nil {
		return "", err
	}
	entry, err := h.planner.OpenClass(ctx, senderID, entries[i].Classroom.ID)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Classroom %q selected.", entry.Classroom.Name)
	if len(entry.Chats) > 0 {
		return text + "\n\n" + formatChats(entry.Chats, ""), nil
	}
	return text + " Start planning with /newchat <title>.", nil
}

func (h *Handlers) students(ctx context.Context, senderID int64, _ string) (string, error) {
	students, err := h.planner.Students(ctx, senderID)
	if err != nil {
		return "", err
	}
	if len(students) == 0 {
		return "No students yet. Add one with /addstudent <full name>.", nil
	}
	return formatStudents(students), nil
}

func (h *Handlers) addStudent(ctx context.Context, senderID int64, args string) (string, error) {
	if args == "" {
		return "", usageError("/addstudent <full name>")
	}
	student, err := h.planner.AddStudent(ctx, senderID, classroom.CreateStudentRequest{FullName: args})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Student %s added.", student.FullName), nil
}

func (h *Handlers) lessons(ctx context.Context, senderID int64, _ string) (string, error) {
	lessons, err := h.planner.Lessons(ctx, senderID)
	if err != nil {
		return "", err
	}
	if len(lessons) == 0 {
		return "No lessons yet. Save an assistant reply with /save to create one.", nil
	}
	return formatLessons(lessons), nil
}

func (h *Handlers) chats(ctx context.Context, senderID int64, _ string) (string, error) {
	chats, err := h.planner.Chats(ctx, senderID)
	if err != nil {
		return "", err
	}
	if len(chats) == 0 {
		return "No chats in this classroom yet. Start one with /newchat <title>.", nil
	}
	_, selected := h.planner.Workspace(ctx, senderID).Selection()
	return formatChats(chats, selected), nil
}

func (h *Handlers) newChat(ctx context.Context, senderID int64, args string) (string, error) {
	if args == "" {
		return "", usageError("/newchat <title>")
	}
	created, err := h.planner.CreateChat(ctx, senderID, chat.CreateChatRequest{Title: args})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Chat %q started. Send your question as a message.", created.Title), nil
}

func (h *Handlers) selectChat(ctx context.Context, senderID int64, args string) (string, error) {
	ws := h.planner.Workspace(ctx, senderID)
	classID, _ := ws.Selection()
	entry, ok := ws.Class(classID)
	chats := entry.Chats
	if !ok || len(chats) == 0 {
		var err error
		if chats, err = h.planner.Chats(ctx, senderID); err != nil {
			return "", err
		}
	}
	i, err := parseIndex(args, len(chats), "/chat <chat number>")
	if err != nil {
		return "", err
	}
	full, err := h.planner.SelectChat(ctx, senderID, chats[i].ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Chat %q selected (%d messages). See /history or ask a question.", full.Title, len(full.Messages)), nil
}

func (h *Handlers) pin(ctx context.Context, senderID int64, _ string) (string, error) {
	updated, err := h.planner.TogglePin(ctx, senderID)
	if err != nil {
		return "", err
	}
	if updated.Pinned {
		return fmt.Sprintf("Chat %q pinned.", updated.Title), nil
	}
	return fmt.Sprintf("Chat %q unpinned.", updated.Title), nil
}

func (h *Handlers) history(ctx context.Context, senderID int64, _ string) (string, error) {
	msgs, err := h.planner.History(ctx, senderID)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "No messages yet. Ask the assistant something.", nil
	}
	return formatHistory(msgs), nil
}

func (h *Handlers) stop(ctx context.Context, senderID int64, _ string) (string, error) {
	if h.planner.Stop(ctx, senderID) {
		return "", nil
	}
	return "Nothing to stop.", nil
}

func (h *Handlers) save(ctx context.Context, senderID int64, args string) (string, error) {
	var messageID string
	if args != "" {
		msgs, err := h.planner.History(ctx, senderID)
		if err != nil {
			return "", err
		}
		i, err := parseIndex(args, len(msgs), "/save [message number]")
		if err != nil {
			return "", err
		}
		messageID = msgs[i].ID
	}
	res, err := h.planner.SaveToLesson(ctx, senderID, messageID, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved to lesson %q. See /lessons.", res.LessonTitle), nil
}

// ask streams the assistant's reply into chatID. Failures are reported to
// the teacher; only Telegram errors are returned.
func (h *Handlers) ask(ctx context.Context, senderID, chatID int64, question string) error {
	logCtx := h.logger.WithFields(logrus.Fields{"command": "/ask", "sender_id": senderID})
	if strings.TrimSpace(question) == "" {
		_, err := h.client.SendMessage(chatID, ErrorText(usageError("/ask <question>")), nil)
		return err
	}

	renderer := NewStreamRenderer(h.client, chatID, h.clock, h.editInterval)
	var (
		last      string
		renderErr error
	)
	reply, err := h.planner.Ask(ctx, senderID, question, func(buffered string) {
		last = buffered
		if renderErr == nil {
			renderErr = renderer.Update(buffered)
		}
	})
	if renderErr != nil {
		logCtx.WithError(renderErr).Warn("Could not update streamed reply")
	}

	if err != nil {
		metrics.BotCommandsTotal.WithLabelValues("/ask", "error").Inc()
		if renderer.Pages() > 0 {
			suffix := "\n\n[interrupted]"
			if errors.Is(err, context.Canceled) {
				suffix = "\n\n[stopped]"
			}
			if ferr := renderer.Finish(last+suffix, nil); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, context.Canceled) {
			_, serr := h.client.SendMessage(chatID, "Stopped.", nil)
			return serr
		}
		logCtx.WithError(err).Info("Ask failed")
		if text := ErrorText(err); text != "" {
			_, serr := h.client.SendMessage(chatID, text, nil)
			return serr
		}
		return nil
	}

	metrics.BotCommandsTotal.WithLabelValues("/ask", "ok").Inc()
	if err := renderer.Finish(reply.Content, lessonMarkup(reply.MessageID, false)); err != nil {
		return err
	}
	if reply.Truncated() {
		_, err := h.client.SendMessage(chatID, "Response incomplete: the AI hit the maximum word limit.", nil)
		return err
	}
	return nil
}

func (h *Handlers) handleAsk(c telebot.Context) error {
	return h.ask(h.ctx, c.Sender().ID, c.Chat().ID, c.Message().Payload)
}

// handleText treats plain messages as questions for the selected chat.
func (h *Handlers) handleText(c telebot.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		return c.Send("Unknown command. See /help.")
	}
	return h.ask(h.ctx, c.Sender().ID, c.Chat().ID, text)
}

// parseIndex parses a 1-based list number into an index below n.
func parseIndex(args string, n int, usage string) (int, error) {
	if args == "" {
		return 0, usageError(usage)
	}
	i, err := strconv.Atoi(args)
	if err != nil {
		return 0, usageError(usage)
	}
	if i < 1 || i > n {
		return 0, errBadNumber
	}
	return i - 1, nil
}
