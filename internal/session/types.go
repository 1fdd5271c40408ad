// Package session persists the per-user link between LINE users and Dify
// conversations.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrUserIDRequired is returned by store operations called with an empty
// user id.
var ErrUserIDRequired = errors.New("session: user id is required")

// ConversationSession links one user to one backend conversation. An empty
// ConversationID means the next turn starts a new conversation.
type ConversationSession struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsExpired      bool      `json:"is_expired"`
}

// New returns a fresh session for userID with no conversation linkage.
func New(userID string) ConversationSession {
	return ConversationSession{
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Store is the session persistence contract. GetSession never mutates
// storage: expiry is resolved at read time.
type Store interface {
	// GetSession returns the user's current session, or a fresh one when
	// none exists, the latest is expired, or it has idled past the
	// configured timeout.
	GetSession(ctx context.Context, userID string) (ConversationSession, error)
	// SetSession stamps UpdatedAt and upserts by (user_id, conversation_id).
	SetSession(ctx context.Context, session ConversationSession) error
	// ExpireSession marks the user's most recent session expired; no-op
	// when the user has none.
	ExpireSession(ctx context.Context, userID string) error
	// GetUserConversations returns up to limit most recent sessions,
	// oldest first.
	GetUserConversations(ctx context.Context, userID string, limit int32) ([]ConversationSession, error)
}

// stale reports whether a stored session can no longer be continued.
// timeout <= 0 disables idle expiry.
func stale(s ConversationSession, timeout time.Duration, now time.Time) bool {
	if s.IsExpired {
		return true
	}
	if timeout > 0 && now.Sub(s.UpdatedAt) > timeout {
		return true
	}
	return false
}
