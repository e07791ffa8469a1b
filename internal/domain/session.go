package domain

import "time"

// Session binds an opaque client token to a user id. Only the SHA-256 hash
// of the token is kept.
type Session struct {
	ID        string
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the session refers to a user and is still valid at now.
func (s *Session) Authenticated(now time.Time) bool {
	if s == nil || s.UserID <= 0 {
		return false
	}
	return now.Before(s.ExpiresAt)
}
