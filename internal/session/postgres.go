package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in the conversation_sessions table. The
// empty string stands in for "no conversation" so (user_id,
// conversation_id) is a total primary key.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func NewPostgresStore(log *slog.Logger, pool *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		timeout: timeout,
		logger:  log.With(slog.String("service", "session")),
	}
}

func (s *PostgresStore) GetSession(ctx context.Context, userID string) (ConversationSession, error) {
	if userID == "" {
		return ConversationSession{}, ErrUserIDRequired
	}

	row := s.pool.QueryRow(ctx, `
		SELECT user_id, conversation_id, updated_at, is_expired
		FROM conversation_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, userID)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConversationSession{UserID: userID, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return ConversationSession{}, fmt.Errorf("query session: %w", err)
	}

	if stale(sess, s.timeout, time.Now().UTC()) {
		return ConversationSession{UserID: userID, UpdatedAt: time.Now().UTC()}, nil
	}
	return sess, nil
}

func (s *PostgresStore) SetSession(ctx context.Context, session ConversationSession) error {
	if session.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_sessions (user_id, conversation_id, updated_at, is_expired)
		VALUES ($1, $2, now(), false)
		ON CONFLICT (user_id, conversation_id)
		DO UPDATE SET updated_at = now(), is_expired = false`,
		session.UserID, session.ConversationID)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExpireSession(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE conversation_sessions
		SET is_expired = true
		WHERE user_id = $1
		  AND updated_at = (
			SELECT MAX(updated_at) FROM conversation_sessions WHERE user_id = $1
		  )`, userID)
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("expire: no session", slog.String("user_id", userID))
	}
	return nil
}

func (s *PostgresStore) GetUserConversations(ctx context.Context, userID string, limit int32) ([]ConversationSession, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	// limit <= 0 means no limit, same as MemoryStore.
	var rowLimit any
	if limit > 0 {
		rowLimit = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, conversation_id, updated_at, is_expired
		FROM conversation_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, userID, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var sessions []ConversationSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read conversations: %w", err)
	}

	reverse(sessions)
	return sessions, nil
}

func scanSession(row pgx.Row) (ConversationSession, error) {
	var (
		sess      ConversationSession
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&sess.UserID, &sess.ConversationID, &updatedAt, &sess.IsExpired); err != nil {
		return ConversationSession{}, err
	}
	sess.UpdatedAt = updatedAt.Time
	return sess, nil
}
