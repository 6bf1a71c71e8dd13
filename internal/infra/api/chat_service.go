// internal/infra/api/chat_service.go
package api

import (
	"context"
	"net/http"

	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/paging"
)

// ChatService wraps /classrooms/{id}/chats and their messages.
type ChatService struct {
	client *Client
}

func (s *ChatService) List(ctx context.Context, classroomID string, params paging.Params) (*paging.Page[chat.Chat], error) {
	if err := s.client.validateRequest(&params); err != nil {
		return nil, err
	}
	var out paging.Page[chat.Chat]
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/chats", classroomID), params.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAll returns every chat of a classroom.
func (s *ChatService) ListAll(ctx context.Context, classroomID string, limit int) ([]chat.Chat, error) {
	return collectPages(ctx, limit, func(ctx context.Context, p paging.Params) (*paging.Page[chat.Chat], error) {
		return s.List(ctx, classroomID, p)
	})
}

// Get returns a chat together with its messages.
func (s *ChatService) Get(ctx context.Context, classroomID, id string) (*chat.WithMessages, error) {
	var out chat.WithMessages
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/chats/%s", classroomID, id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ChatService) Create(ctx context.Context, classroomID string, req chat.CreateChatRequest) (*chat.Chat, error) {
	var out chat.Chat
	if err := s.client.do(ctx, http.MethodPost, pathf("/classrooms/%s/chats", classroomID), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ChatService) Update(ctx context.Context, classroomID, id string, req chat.UpdateChatRequest) (*chat.Chat, error) {
	var out chat.Chat
	if err := s.client.do(ctx, http.MethodPatch, pathf("/classrooms/%s/chats/%s", classroomID, id), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete soft-deletes a chat.
func (s *ChatService) Delete(ctx context.Context, classroomID, id string) error {
	return s.client.do(ctx, http.MethodDelete, pathf("/classrooms/%s/chats/%s", classroomID, id), nil, nil, nil)
}

// SendMessage posts a message and waits for the complete assistant reply.
func (s *ChatService) SendMessage(ctx context.Context, classroomID, chatID string, req chat.SendMessageRequest) (*chat.Message, error) {
	var out chat.Message
	if err := s.client.do(ctx, http.MethodPost, pathf("/classrooms/%s/chats/%s/messages", classroomID, chatID), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ChatService) Messages(ctx context.Context, classroomID, chatID string, params paging.Params) (*paging.Page[chat.Message], error) {
	if err := s.client.validateRequest(&params); err != nil {
		return nil, err
	}
	var out paging.Page[chat.Message]
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/chats/%s/messages", classroomID, chatID), params.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveToLesson stores an assistant message as lesson content. An empty
// lessonID lets the backend create a new lesson.
func (s *ChatService) SaveToLesson(ctx context.Context, classroomID, chatID, messageID, lessonID string) (*chat.SaveToLessonResult, error) {
	var out chat.SaveToLessonResult
	path := pathf("/classrooms/%s/chats/%s/messages/%s/save-to-lesson", classroomID, chatID, messageID)
	if err := s.client.do(ctx, http.MethodPost, path, nil, &chat.SaveToLessonRequest{LessonID: lessonID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ChatService) RemoveSavedLesson(ctx context.Context, classroomID, chatID, messageID string) (*chat.RemoveSavedLessonResult, error) {
	var out chat.RemoveSavedLessonResult
	path := pathf("/classrooms/%s/chats/%s/messages/%s/save-to-lesson", classroomID, chatID, messageID)
	if err := s.client.do(ctx, http.MethodDelete, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
