// internal/infra/api/auth_service.go
package api

import (
	"context"
	"net/http"

	"lesson_planner_bot/internal/domain/auth"
)

// AuthService wraps the /auth endpoints.
type AuthService struct {
	client *Client
}

func (s *AuthService) Login(ctx context.Context, req auth.EmailLoginRequest) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	if err := s.client.do(ctx, http.MethodPost, loginPath, nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) error {
	return s.client.do(ctx, http.MethodPost, "/auth/email/register", nil, &req, nil)
}

// ForgotPassword asks the backend to e-mail a password reset link.
func (s *AuthService) ForgotPassword(ctx context.Context, req auth.ForgotPasswordRequest) error {
	return s.client.do(ctx, http.MethodPost, "/auth/forgot/password", nil, &req, nil)
}

// ResetPassword sets a new password using the hash from the reset e-mail.
func (s *AuthService) ResetPassword(ctx context.Context, req auth.ResetPasswordRequest) error {
	return s.client.do(ctx, http.MethodPost, "/auth/reset/password", nil, &req, nil)
}

func (s *AuthService) GoogleLogin(ctx context.Context, req auth.GoogleLoginRequest) (*auth.LoginResponse, error) {
	return s.socialLogin(ctx, "/auth/google/login", &req)
}

func (s *AuthService) FacebookLogin(ctx context.Context, req auth.FacebookLoginRequest) (*auth.LoginResponse, error) {
	return s.socialLogin(ctx, "/auth/facebook/login", &req)
}

func (s *AuthService) AppleLogin(ctx context.Context, req auth.AppleLoginRequest) (*auth.LoginResponse, error) {
	return s.socialLogin(ctx, "/auth/apple/login", &req)
}

func (s *AuthService) socialLogin(ctx context.Context, path string, req any) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	if err := s.client.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh renews the access token through the client's single-flight path.
func (s *AuthService) Refresh(ctx context.Context) error {
	return s.client.Refresh(ctx)
}

// Logout invalidates the session on the backend. Local credentials are left
// to the caller.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.client.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// Me returns the authenticated user.
func (s *AuthService) Me(ctx context.Context) (*auth.User, error) {
	var out auth.User
	if err := s.client.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
