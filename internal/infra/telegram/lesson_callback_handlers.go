// internal/infra/telegram/lesson_callback_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"lesson_planner_bot/internal/infra/metrics"
)

const (
	savePrefix   = "save_"
	unsavePrefix = "unsave_"

	maxCallbackData = 64 // bytes, enforced by Telegram
)

var errUnknownCallback = errors.New("unknown callback data")

// RegisterLessonCallbacks handles the save/remove buttons under assistant replies.
func RegisterLessonCallbacks(b *telebot.Bot, h *Handlers) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		logCtx := h.logger.WithField("callback", data).WithField("sender_id", c.Sender().ID)

		text, markup, err := h.lessonCallback(h.ctx, c.Sender().ID, data)
		if err != nil {
			metrics.BotCommandsTotal.WithLabelValues("callback", "error").Inc()
			if errors.Is(err, errUnknownCallback) {
				c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
			} else {
				logCtx.WithError(err).Info("Lesson callback failed")
			}
			return c.Respond(&telebot.CallbackResponse{Text: ErrorText(err)})
		}
		metrics.BotCommandsTotal.WithLabelValues("callback", "ok").Inc()

		if c.Message() != nil {
			if _, err := c.Bot().EditReplyMarkup(c.Message(), markup); err != nil {
				logCtx.WithError(err).Warn("Could not swap the lesson button")
			}
		}
		return c.Respond(&telebot.CallbackResponse{Text: text})
	})
}

// lessonCallback saves or removes the reply named by data and returns the
// acknowledgement together with the button that undoes it.
func (h *Handlers) lessonCallback(ctx context.Context, senderID int64, data string) (string, *telebot.ReplyMarkup, error) {
	switch {
	case strings.HasPrefix(data, savePrefix):
		messageID := strings.TrimPrefix(data, savePrefix)
		res, err := h.planner.SaveToLesson(ctx, senderID, messageID, "")
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Saved to lesson %q.", res.LessonTitle), lessonMarkup(messageID, true), nil

	case strings.HasPrefix(data, unsavePrefix):
		messageID := strings.TrimPrefix(data, unsavePrefix)
		if err := h.planner.UnsaveFromLesson(ctx, senderID, messageID); err != nil {
			return "", nil, err
		}
		return "Removed from lesson.", lessonMarkup(messageID, false), nil
	}
	return "", nil, errUnknownCallback
}

// lessonMarkup returns the button shown under a reply, or nil when the
// message cannot be referenced from callback data.
func lessonMarkup(messageID string, saved bool) *telebot.ReplyMarkup {
	if messageID == "" || len(unsavePrefix+messageID) > maxCallbackData {
		return nil
	}
	btn := telebot.InlineButton{Text: "Save to lesson", Data: savePrefix + messageID}
	if saved {
		btn = telebot.InlineButton{Text: "Remove from lesson", Data: unsavePrefix + messageID}
	}
	return &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{{btn}}}
}
