// internal/domain/auth/user.go
package auth

import "time"

// FileType is an uploaded file reference (e.g. a profile photo).
type FileType struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Status struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is the backend account a teacher logs in with.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Provider  string     `json:"provider"`
	SocialID  *string    `json:"socialId"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Photo     *FileType  `json:"photo"`
	Role      Role       `json:"role"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt"`
}

// DisplayName returns "First Last", falling back to the e-mail address.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
