package models

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the per-browser state: the brief in the form and the last plan.
type Session struct {
	ID        string    `json:"id"`
	Brief     string    `json:"brief"`
	Plan      *Plan     `json:"plan,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewSession(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired checks if session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Touch records an update and slides the expiry forward.
func (s *Session) Touch(ttl time.Duration) {
	s.UpdatedAt = time.Now()
	s.ExpiresAt = s.UpdatedAt.Add(ttl)
}

// SessionRepository stores sessions and serializes generations within one.
type SessionRepository interface {
	// Load returns ErrSessionNotFound for unknown or expired ids.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
	// Acquire reports false when a generation already holds the session.
	// The returned token must be passed to Release.
	Acquire(ctx context.Context, id string) (string, bool, error)
	// Release frees the lock only while token still owns it.
	Release(ctx context.Context, id, token string) error
	Ping(ctx context.Context) error
}
