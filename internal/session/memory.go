package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It mirrors PostgresStore's
// observable semantics and backs storage-less deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byUser  map[string]map[string]ConversationSession
	timeout time.Duration
	now     func() time.Time
}

func NewMemoryStore(timeout time.Duration) *MemoryStore {
	return &MemoryStore{
		byUser:  map[string]map[string]ConversationSession{},
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetSession(_ context.Context, userID string) (ConversationSession, error) {
	if userID == "" {
		return ConversationSession{}, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, ok := s.latestLocked(userID)
	if !ok || stale(latest, s.timeout, s.now()) {
		return ConversationSession{UserID: userID, UpdatedAt: s.now()}, nil
	}
	return latest, nil
}

func (s *MemoryStore) SetSession(_ context.Context, session ConversationSession) error {
	if session.UserID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = s.now()
	session.IsExpired = false
	rows, ok := s.byUser[session.UserID]
	if !ok {
		rows = map[string]ConversationSession{}
		s.byUser[session.UserID] = rows
	}
	rows[session.ConversationID] = session
	return nil
}

func (s *MemoryStore) ExpireSession(_ context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.latestLocked(userID)
	if !ok {
		return nil
	}
	latest.IsExpired = true
	s.byUser[userID][latest.ConversationID] = latest
	return nil
}

func (s *MemoryStore) GetUserConversations(_ context.Context, userID string, limit int32) ([]ConversationSession, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]ConversationSession, 0, len(s.byUser[userID]))
	for _, row := range s.byUser[userID] {
		rows = append(rows, row)
	}
	// Most recent first, then trim, then flip to oldest-first.
	sortByUpdatedAtDesc(rows)
	if limit > 0 && int(limit) < len(rows) {
		rows = rows[:limit]
	}
	reverse(rows)
	return rows, nil
}

func (s *MemoryStore) latestLocked(userID string) (ConversationSession, bool) {
	var latest ConversationSession
	found := false
	for _, row := range s.byUser[userID] {
		if !found || row.UpdatedAt.After(latest.UpdatedAt) {
			latest = row
			found = true
		}
	}
	return latest, found
}

func sortByUpdatedAtDesc(rows []ConversationSession) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})
}

func reverse(rows []ConversationSession) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
