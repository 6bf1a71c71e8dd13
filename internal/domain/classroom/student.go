// internal/domain/classroom/student.go
package classroom

import "time"

// SkillLevels holds per-skill CEFR levels of a student.
type SkillLevels struct {
	Reading   CefrLevel `json:"reading,omitempty" validate:"omitempty,cefr"`
	Writing   CefrLevel `json:"writing,omitempty" validate:"omitempty,cefr"`
	Speaking  CefrLevel `json:"speaking,omitempty" validate:"omitempty,cefr"`
	Listening CefrLevel `json:"listening,omitempty" validate:"omitempty,cefr"`
}

type Student struct {
	ID           string        `json:"id"`
	ClassroomID  string        `json:"classroomId"`
	FullName     string        `json:"fullName"`
	Grade        string        `json:"grade,omitempty"`
	Hobby        string        `json:"hobby,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	CurrentLevel CefrLevel     `json:"currentLevel,omitempty"`
	AvatarURL    string        `json:"avatarUrl,omitempty"`
	SpecialNeeds []SpecialNeed `json:"specialNeeds,omitempty"`
	CefrLevels   *SkillLevels  `json:"cefrLevels,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	DeletedAt    *time.Time    `json:"deletedAt,omitempty"`
}

type CreateStudentRequest struct {
	FullName     string        `json:"fullName" validate:"required,max=200"`
	Grade        string        `json:"grade,omitempty"`
	Hobby        string        `json:"hobby,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	CurrentLevel CefrLevel     `json:"currentLevel,omitempty" validate:"omitempty,cefr"`
	AvatarURL    string        `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	SpecialNeeds []SpecialNeed `json:"specialNeeds,omitempty" validate:"dive,special_need"`
	CefrLevels   *SkillLevels  `json:"cefrLevels,omitempty"`
}

// UpdateStudentRequest is a partial update; nil fields are left untouched.
type UpdateStudentRequest struct {
	FullName     *string       `json:"fullName,omitempty" validate:"omitempty,min=1,max=200"`
	Grade        *string       `json:"grade,omitempty"`
	Hobby        *string       `json:"hobby,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
	CurrentLevel *CefrLevel    `json:"currentLevel,omitempty" validate:"omitempty,cefr"`
	AvatarURL    *string       `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	SpecialNeeds []SpecialNeed `json:"specialNeeds,omitempty" validate:"dive,special_need"`
	CefrLevels   *SkillLevels  `json:"cefrLevels,omitempty"`
}
