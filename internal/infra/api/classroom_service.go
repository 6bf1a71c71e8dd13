// internal/infra/api/classroom_service.go
package api

import (
	"context"
	"fmt"
	"net/http"

	"lesson_planner_bot/internal/domain/classroom"
	"lesson_planner_bot/internal/domain/paging"
)

// ClassroomService wraps /classrooms.
type ClassroomService struct {
	client *Client
}

func (s *ClassroomService) List(ctx context.Context, params paging.Params) (*paging.Page[classroom.Classroom], error) {
	if err := s.client.validateRequest(&params); err != nil {
		return nil, err
	}
	var out paging.Page[classroom.Classroom]
	if err := s.client.do(ctx, http.MethodGet, "/classrooms", params.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ClassroomService) Get(ctx context.Context, id string) (*classroom.Classroom, error) {
	var out classroom.Classroom
	if err := s.client.do(ctx, http.MethodGet, pathf("/classrooms/%s", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ClassroomService) Create(ctx context.Context, req classroom.CreateClassroomRequest) (*classroom.Classroom, error) {
	var out classroom.Classroom
	if err := s.client.do(ctx, http.MethodPost, "/classrooms", nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ClassroomService) Update(ctx context.Context, id string, req classroom.UpdateClassroomRequest) (*classroom.Classroom, error) {
	var out classroom.Classroom
	if err := s.client.do(ctx, http.MethodPatch, pathf("/classrooms/%s", id), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ClassroomService) Delete(ctx context.Context, id string) error {
	return s.client.do(ctx, http.MethodDelete, pathf("/classrooms/%s", id), nil, nil, nil)
}

// ListAll follows pagination until the last page.
func (s *ClassroomService) ListAll(ctx context.Context, limit int) ([]classroom.Classroom, error) {
	return collectPages(ctx, limit, s.List)
}

// collectPages walks list pages starting at page 1 until HasNextPage is false.
func collectPages[T any](ctx context.Context, limit int, list func(context.Context, paging.Params) (*paging.Page[T], error)) ([]T, error) {
	const maxPages = 50

	var all []T
	for page := 1; page <= maxPages; page++ {
		p, err := list(ctx, paging.Params{Page: page, Limit: limit})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		if !p.Meta.HasNextPage {
			return all, nil
		}
	}
	return nil, fmt.Errorf("more than %d pages", maxPages)
}
