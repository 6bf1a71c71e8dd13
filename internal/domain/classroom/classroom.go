// internal/domain/classroom/classroom.go
package classroom

import "time"

// Classroom is a teacher's class as owned by the backend.
type Classroom struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Grade     string     `json:"grade,omitempty"`
	Code      string     `json:"code,omitempty"`
	UserID    string     `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type CreateClassroomRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Grade string `json:"grade,omitempty" validate:"max=50"`
	Code  string `json:"code,omitempty"`
}

type UpdateClassroomRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Grade *string `json:"grade,omitempty" validate:"omitempty,max=50"`
	Code  *string `json:"code,omitempty"`
}
