package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/telebot.v3"

	"lesson_planner_bot/internal/domain/telegram"
)

// MaxMessageRunes is the Telegram limit for the text of one message.
const MaxMessageRunes = 4096

const streamPlaceholder = "…"

// StreamRenderer shows a reply that is still being generated. The text is
// spread over as many messages as needed and edited in place, at most once
// per interval.
type StreamRenderer struct {
	client   telegram.Client
	chatID   int64
	clock    clockwork.Clock
	interval time.Duration

	pages    []*telebot.Message
	shown    []string
	lastEdit time.Time
	started  bool
}

func NewStreamRenderer(client telegram.Client, chatID int64, clock clockwork.Clock, interval time.Duration) *StreamRenderer {
	return &StreamRenderer{client: client, chatID: chatID, clock: clock, interval: interval}
}

// Start sends the placeholder message that the reply will be written into.
func (r *StreamRenderer) Start() error {
	msg, err := r.client.SendMessage(r.chatID, streamPlaceholder, nil)
	if err != nil {
		return fmt.Errorf("failed to send placeholder: %w", err)
	}
	r.pages = append(r.pages, msg)
	r.shown = append(r.shown, streamPlaceholder)
	r.lastEdit = r.clock.Now()
	r.started = true
	return nil
}

// Update renders the text buffered so far unless the last edit was too recent.
func (r *StreamRenderer) Update(buffered string) error {
	if r.clock.Since(r.lastEdit) < r.interval {
		return nil
	}
	return r.render(buffered, nil)
}

// Finish renders the final text regardless of the throttle. A non-nil markup
// is attached to the last page.
func (r *StreamRenderer) Finish(final string, markup *telebot.ReplyMarkup) error {
	if strings.TrimSpace(final) == "" {
		final = "(empty reply)"
	}
	return r.render(final, markup)
}

// Pages returns the number of messages the reply occupies.
func (r *StreamRenderer) Pages() int {
	return len(r.pages)
}

func (r *StreamRenderer) render(text string, markup *telebot.ReplyMarkup) error {
	if !r.started {
		if err := r.Start(); err != nil {
			return err
		}
	}
	r.lastEdit = r.clock.Now()

	pages := SplitMessage(text, MaxMessageRunes)
	for i, page := range pages {
		var opts *telebot.SendOptions
		if markup != nil && i == len(pages)-1 {
			opts = &telebot.SendOptions{ReplyMarkup: markup}
		}
		if i < len(r.pages) {
			if r.shown[i] == page && opts == nil {
				continue
			}
			if err := r.client.EditMessage(r.pages[i], page, opts); err != nil {
				return fmt.Errorf("failed to edit page %d: %w", i+1, err)
			}
			r.shown[i] = page
			continue
		}
		msg, err := r.client.SendMessage(r.chatID, page, opts)
		if err != nil {
			return fmt.Errorf("failed to send page %d: %w", i+1, err)
		}
		r.pages = append(r.pages, msg)
		r.shown = append(r.shown, page)
	}
	return nil
}

// SplitMessage cuts text into pages of at most limit runes, preferring to
// break after a newline in the second half of a page.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}

	var pages []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		pages = append(pages, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(pages, string(runes))
}
