// internal/infra/api/student_service.go
package api

import (
	"context"
	"net/http"

	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/paging"
)

// StudentService wraps /classrooms/{id}/students.
type StudentService struct {
	client *Client
}

func (s *StudentService) List(ctx context.Context, classroomID string, params paging.Params) (*paging.Page[classroom.Student], error) {
	if err := s.client.validateRequest(&params); err != nil {
		return nil, err
	}
	var out paging.Page[classroom.Student]
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/students", classroomID), params.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StudentService) Get(ctx context.Context, classroomID, id string) (*classroom.Student, error) {
	var out classroom.Student
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s/students/%s", classroomID, id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StudentService) Create(ctx context.Context, classroomID string, req classroom.CreateStudentRequest) (*classroom.Student, error) {
	var out classroom.Student
	if err := s.client.do(ctx, http.MethodPost, pathf("/classrooms/%s/students", classroomID), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StudentService) Update(ctx context.Context, classroomID, id string, req classroom.UpdateStudentRequest) (*classroom.Student, error) {
	var out classroom.Student
	if err := s.client.do(ctx, http.MethodPatch, pathf("/classrooms/%s/students/%s", classroomID, id), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StudentService) Delete(ctx context.Context, classroomID, id string) error {
	return s.client.do(ctx, http.MethodDelete, pathf("/classrooms/%s/students/%s", classroomID, id), nil, nil, nil)
}
