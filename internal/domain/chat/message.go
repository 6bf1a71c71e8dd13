// internal/domain/chat/message.go
package chat

import (
	"strings"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TempIDPrefix marks messages that exist only locally and have not been
// assigned an ID by the backend yet.
const TempIDPrefix = "temp-"

// Message is a single message of a chat. LessonID is set once the message has
// been saved into a lesson.
type Message struct {
	ID              string     `json:"id"`
	ChatID          string     `json:"chatId"`
	Role            Role       `json:"role"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"createdAt"`
	LessonID        *string    `json:"lessonId,omitempty"`
	LessonTitle     *string    `json:"lessonTitle,omitempty"`
	LessonCreatedAt *time.Time `json:"lessonCreatedAt,omitempty"`
}

// IsSaved reports whether the backend knows this message.
func (m *Message) IsSaved() bool {
	return m.ID != "" && !strings.HasPrefix(m.ID, TempIDPrefix)
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type SaveToLessonRequest struct {
	LessonID string `json:"lessonId,omitempty"`
}

// SaveToLessonResult is returned after a message has been saved into a lesson.
type SaveToLessonResult struct {
	LessonID    string `json:"lessonId"`
	LessonTitle string `json:"lessonTitle"`
	MessageID   string `json:"messageId"`
}

type RemoveSavedLessonResult struct {
	RemovedLessonID string `json:"removedLessonId,omitempty"`
}
