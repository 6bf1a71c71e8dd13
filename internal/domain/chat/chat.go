// internal/domain/chat/chat.go
package chat

import "time"

// Chat is an AI lesson-planning conversation inside a classroom. The lesson
// context fields seed the assistant's prompt.
type Chat struct {
	ID                 string    `json:"id"`
	ClassroomID        string    `json:"classroomId"`
	Title              string    `json:"title"`
	Focus              string    `json:"focus,omitempty"`
	Tone               string    `json:"tone,omitempty"`
	Pinned             bool      `json:"pinned"`
	LessonTopic        string    `json:"lessonTopic,omitempty"`
	GradeYear          string    `json:"gradeYear,omitempty"`
	DurationMinutes    int       `json:"durationMinutes,omitempty"`
	LearningObjectives string    `json:"learningObjectives,omitempty"`
	TeachingActivities string    `json:"teachingActivities,omitempty"`
	AssessmentType     string    `json:"assessmentType,omitempty"`
	TargetCefrLevel    string    `json:"targetCefrLevel,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// WithMessages is the payload of GET /classrooms/{id}/chats/{id}.
type WithMessages struct {
	Chat
	Messages []Message `json:"messages"`
}

type CreateChatRequest struct {
	Title              string `json:"title" validate:"required,max=200"`
	Focus              string `json:"focus,omitempty"`
	Tone               string `json:"tone,omitempty"`
	LessonTopic        string `json:"lessonTopic,omitempty"`
	GradeYear          string `json:"gradeYear,omitempty"`
	DurationMinutes    int    `json:"durationMinutes,omitempty" validate:"gte=0"`
	LearningObjectives string `json:"learningObjectives,omitempty"`
	TeachingActivities string `json:"teachingActivities,omitempty"`
	AssessmentType     string `json:"assessmentType,omitempty" validate:"omitempty,assessment_type"`
	TargetCefrLevel    string `json:"targetCefrLevel,omitempty" validate:"omitempty,cefr"`
}

// UpdateChatRequest is a partial update; nil fields are left untouched.
type UpdateChatRequest struct {
	Title              *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Focus              *string `json:"focus,omitempty"`
	Tone               *string `json:"tone,omitempty"`
	Pinned             *bool   `json:"pinned,omitempty"`
	LessonTopic        *string `json:"lessonTopic,omitempty"`
	GradeYear          *string `json:"gradeYear,omitempty"`
	DurationMinutes    *int    `json:"durationMinutes,omitempty" validate:"omitempty,gte=0"`
	LearningObjectives *string `json:"learningObjectives,omitempty"`
	TeachingActivities *string `json:"teachingActivities,omitempty"`
	AssessmentType     *string `json:"assessmentType,omitempty" validate:"omitempty,assessment_type"`
	TargetCefrLevel    *string `json:"targetCefrLevel,omitempty" validate:"omitempty,cefr"`
}

// AssessmentTypes are the values accepted for AssessmentType.
var AssessmentTypes = []string{
	"Quiz",
	"Written Test",
	"Oral Presentation",
	"Project",
	"Portfolio",
	"Peer Assessment",
	"Self Assessment",
	"Other",
}
