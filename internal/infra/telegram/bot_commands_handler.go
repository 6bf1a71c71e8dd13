// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands wires every command of the bot to its handler and
// publishes the command menu.
func RegisterBotCommands(b *telebot.Bot, h *Handlers, baseLogger *logrus.Entry) {
	b.Handle("/start", h.command("/start", h.start))
	b.Handle("/help", h.command("/help", h.help))

	b.Handle("/login", h.secret("/login", h.login))
	b.Handle("/register", h.secret("/register", h.register))
	b.Handle("/forgot", h.command("/forgot", h.forgot))
	b.Handle("/reset", h.secret("/reset", h.reset))
	b.Handle("/logout", h.command("/logout", h.logout))
	b.Handle("/me", h.command("/me", h.me))

	b.Handle("/classes", h.command("/classes", h.classes))
	b.Handle("/newclass", h.command("/newclass", h.newClass))
	b.Handle("/open", h.command("/open", h.open))
	b.Handle("/students", h.command("/students", h.students))
	b.Handle("/addstudent", h.command("/addstudent", h.addStudent))
	b.Handle("/lessons", h.command("/lessons", h.lessons))

	b.Handle("/chats", h.command("/chats", h.chats))
	b.Handle("/newchat", h.command("/newchat", h.newChat))
	b.Handle("/chat", h.command("/chat", h.selectChat))
	b.Handle("/pin", h.command("/pin", h.pin))
	b.Handle("/history", h.command("/history", h.history))
	b.Handle("/stop", h.command("/stop", h.stop))
	b.Handle("/save", h.command("/save", h.save))
	b.Handle("/ask", h.handleAsk)
	b.Handle(telebot.OnText, h.handleText)
	RegisterLessonCallbacks(b, h)

	if err := b.SetCommands(menuCommands()); err != nil {
		baseLogger.WithError(err).Warn("Could not publish the command menu")
	}
}

func menuCommands() []telebot.Command {
	return []telebot.Command{
		{Text: "classes", Description: "List your classrooms"},
		{Text: "chats", Description: "List chats of the selected classroom"},
		{Text: "history", Description: "Show the messages of the selected chat"},
		{Text: "stop", Description: "Stop the reply being written"},
		{Text: "save", Description: "Save the latest reply into a lesson"},
		{Text: "lessons", Description: "List lessons of the selected classroom"},
		{Text: "students", Description: "List students of the selected classroom"},
		{Text: "me", Description: "Show who you are logged in as"},
		{Text: "login", Description: "Log in with e-mail and password"},
		{Text: "logout", Description: "Log out"},
		{Text: "help", Description: "Show all commands"},
	}
}
