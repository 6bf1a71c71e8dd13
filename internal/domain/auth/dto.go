// internal/domain/auth/dto.go
package auth

// LoginResponse is returned by every login endpoint.
// TokenExpires is a Unix timestamp in milliseconds.
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	TokenExpires int64  `json:"tokenExpires"`
	User         User   `json:"user"`
}

// RefreshResponse is returned by POST /auth/refresh.
type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	TokenExpires int64  `json:"tokenExpires"`
}

type EmailLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
	Hash     string `json:"hash" validate:"required"`
}

type GoogleLoginRequest struct {
	Code string `json:"code" validate:"required"`
}

type FacebookLoginRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

type AppleLoginRequest struct {
	IDToken   string `json:"idToken" validate:"required"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}
