// internal/domain/classroom/lesson.go
package classroom

import "time"

// LessonStatus is the lifecycle state of a lesson.
type LessonStatus string

const (
	LessonDraft      LessonStatus = "draft"
	LessonScheduled  LessonStatus = "scheduled"
	LessonInProgress LessonStatus = "in_progress"
	LessonCompleted  LessonStatus = "completed"
	LessonCancelled  LessonStatus = "cancelled"
)

type LessonSection struct {
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	Activity string `json:"activity"`
}

type LessonStructuredContent struct {
	Sections []LessonSection `json:"sections,omitempty"`
}

type Lesson struct {
	ID                 string                   `json:"id"`
	ClassroomID        string                   `json:"classroomId"`
	Title              string                   `json:"title"`
	Topic              string                   `json:"topic,omitempty"`
	TargetLanguage     string                   `json:"targetLanguage,omitempty"`
	ScheduledOn        string                   `json:"scheduledOn,omitempty"`
	Status             LessonStatus             `json:"status"`
	DurationMinutes    int                      `json:"durationMinutes,omitempty"`
	GradeYear          string                   `json:"gradeYear,omitempty"`
	CefrReading        CefrLevel                `json:"cefrReading,omitempty"`
	CefrWriting        CefrLevel                `json:"cefrWriting,omitempty"`
	CefrSpeaking       CefrLevel                `json:"cefrSpeaking,omitempty"`
	CefrListening      CefrLevel                `json:"cefrListening,omitempty"`
	LearningObjectives string                   `json:"learningObjectives,omitempty"`
	TeachingActivities string                   `json:"teachingActivities,omitempty"`
	ContentMD          string                   `json:"contentMd,omitempty"`
	StructuredContent  *LessonStructuredContent `json:"structuredContent,omitempty"`
	Generated          bool                     `json:"generated,omitempty"`
	GeneratedAt        *time.Time               `json:"generatedAt,omitempty"`
	Prompt             string                   `json:"prompt,omitempty"`
	CreatedAt          time.Time                `json:"createdAt"`
	UpdatedAt          time.Time                `json:"updatedAt"`
	DeletedAt          *time.Time               `json:"deletedAt,omitempty"`
}

type CreateLessonRequest struct {
	Title              string                   `json:"title" validate:"required,max=200"`
	Topic              string                   `json:"topic,omitempty"`
	TargetLanguage     string                   `json:"targetLanguage,omitempty"`
	ScheduledOn        string                   `json:"scheduledOn,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status             LessonStatus             `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled in_progress completed cancelled"`
	DurationMinutes    int                      `json:"durationMinutes,omitempty" validate:"gte=0"`
	GradeYear          string                   `json:"gradeYear,omitempty"`
	CefrReading        CefrLevel                `json:"cefrReading,omitempty" validate:"omitempty,cefr"`
	CefrWriting        CefrLevel                `json:"cefrWriting,omitempty" validate:"omitempty,cefr"`
	CefrSpeaking       CefrLevel                `json:"cefrSpeaking,omitempty" validate:"omitempty,cefr"`
	CefrListening      CefrLevel                `json:"cefrListening,omitempty" validate:"omitempty,cefr"`
	LearningObjectives string                   `json:"learningObjectives,omitempty"`
	TeachingActivities string                   `json:"teachingActivities,omitempty"`
	ContentMD          string                   `json:"contentMd,omitempty"`
	StructuredContent  *LessonStructuredContent `json:"structuredContent,omitempty"`
	Generated          bool                     `json:"generated,omitempty"`
	Prompt             string                   `json:"prompt,omitempty"`
}

// UpdateLessonRequest is a partial update; nil fields are left untouched.
type UpdateLessonRequest struct {
	Title              *string                  `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Topic              *string                  `json:"topic,omitempty"`
	TargetLanguage     *string                  `json:"targetLanguage,omitempty"`
	ScheduledOn        *string                  `json:"scheduledOn,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status             *LessonStatus            `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled in_progress completed cancelled"`
	DurationMinutes    *int                     `json:"durationMinutes,omitempty" validate:"omitempty,gte=0"`
	GradeYear          *string                  `json:"gradeYear,omitempty"`
	CefrReading        *CefrLevel               `json:"cefrReading,omitempty" validate:"omitempty,cefr"`
	CefrWriting        *CefrLevel               `json:"cefrWriting,omitempty" validate:"omitempty,cefr"`
	CefrSpeaking       *CefrLevel               `json:"cefrSpeaking,omitempty" validate:"omitempty,cefr"`
	CefrListening      *CefrLevel               `json:"cefrListening,omitempty" validate:"omitempty,cefr"`
	LearningObjectives *string                  `json:"learningObjectives,omitempty"`
	TeachingActivities *string                  `json:"teachingActivities,omitempty"`
	ContentMD          *string                  `json:"contentMd,omitempty"`
	StructuredContent  *LessonStructuredContent `json:"structuredContent,omitempty"`
	Generated          *bool                    `json:"generated,omitempty"`
	Prompt             *string                  `json:"prompt,omitempty"`
}
