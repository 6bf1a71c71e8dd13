package telegram

import (
	"context"

	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/app"
	"lesson_planner_bot/internal/domain/telegram"
)

const sessionExpiredText = "Session expired. Please /login again."

// SessionExpiredNotifier returns a hook that tells a teacher their session
// could not be renewed. Private chats share the user's ID.
func SessionExpiredNotifier(client telegram.Client, logger *logrus.Entry) app.ExpiryHook {
	return func(_ context.Context, telegramID int64) {
		if _, err := client.SendMessage(telegramID, sessionExpiredText, nil); err != nil {
			logger.WithError(err).WithField("telegram_id", telegramID).Warn("Could not notify teacher about expired session")
		}
	}
}
