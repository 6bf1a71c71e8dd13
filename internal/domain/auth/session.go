// internal/domain/auth/session.go
package auth

import "time"

// Session is the credential state held for one Telegram user.
// It corresponds to the 'sessions' table.
type Session struct {
	TelegramID   int64
	Token        string
	RefreshToken string
	TokenExpires time.Time // zero when unknown
	User         *User
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is past its expiry.
// A session without a known expiry is never considered expired.
func (s *Session) Expired(now time.Time) bool {
	return !s.TokenExpires.IsZero() && now.After(s.TokenExpires)
}

// IsAuthenticated reports whether the session holds a usable access token.
func (s *Session) IsAuthenticated(now time.Time) bool {
	return s != nil && s.Token != "" && !s.Expired(now)
}

// Normalize applies the load rules for a stored session. An unexpired access
// token keeps the session as is. An access token past its expiry is dropped
// (together with the cached user) while the refresh token is kept so the next
// request can renew it. Anything else is cleared. It returns false when
// nothing usable is left.
func (s *Session) Normalize(now time.Time) bool {
	if s.Token != "" && !s.Expired(now) {
		return true
	}
	if s.Expired(now) && s.RefreshToken != "" {
		s.Token = ""
		s.TokenExpires = time.Time{}
		s.User = nil
		return true
	}
	s.Token = ""
	s.RefreshToken = ""
	s.TokenExpires = time.Time{}
	s.User = nil
	return false
}

// ExpiresFromMillis converts the backend's millisecond timestamp.
func ExpiresFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
