// internal/infra/api/lesson_service.go
package api

import (
	"context"
	"net/http"

	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/paging"
)

// LessonService wraps /classrooms/{id}/lessons.
type LessonService struct {
	client *Client
}

func (s *LessonService) List(ctx context.Context, classroomID string, params paging.Params) (*paging.Page[classroom.Lesson], error) {
	if err := s.client.validateRequest(&params); err != nil {
		return nil, err
	}
	var out paging.Page[classroom.Lesson]
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/lessons", classroomID), params.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LessonService) Get(ctx context.Context, classroomID, id string) (*classroom.Lesson, error) {
	var out classroom.Lesson
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/lessons/%s", classroomID, id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LessonService) Create(ctx context.Context, classroomID string, req classroom.CreateLessonRequest) (*classroom.Lesson, error) {
	var out classroom.Lesson
	if err := s.client.do(ctx, http.MethodPost, pathf("/classrooms/%s/lessons", classroomID), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LessonService) Update(ctx context.Context, classroomID, id string, req classroom.UpdateLessonRequest) (*classroom.Lesson, error) {
	var out classroom.Lesson
	if err := s.client.do(ctx, http.MethodPatch, pathf("/classrooms/%s/lessons/%s", classroomID, id), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete soft-deletes a lesson.
func (s *LessonService) Delete(ctx context.Context, classroomID, id string) error {
	return s.client.do(ctx, http.MethodDelete, pathf("/classrooms/%s/lessons/%s", classroomID, id), nil, nil, nil)
}
