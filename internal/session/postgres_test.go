package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration test. Set TEST_POSTGRES_DSN to a database that already has
// the conversation_sessions schema applied.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `DELETE FROM conversation_sessions WHERE user_id LIKE 'test-%'`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	s := NewPostgresStore(slog.Default(), pool, time.Hour)

	t.Run("fresh", func(t *testing.T) {
		sess, err := s.GetSession(ctx, "test-fresh")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.ConversationID != "" {
			t.Fatalf("expected fresh session, got %+v", sess)
		}
	})

	t.Run("round trip and expire", func(t *testing.T) {
		if err := s.SetSession(ctx, ConversationSession{UserID: "test-u1", ConversationID: "c1"}); err != nil {
			t.Fatalf("SetSession: %v", err)
		}
		sess, err := s.GetSession(ctx, "test-u1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.ConversationID != "c1" {
			t.Fatalf("unexpected session %+v", sess)
		}

		if err := s.ExpireSession(ctx, "test-u1"); err != nil {
			t.Fatalf("ExpireSession: %v", err)
		}
		sess, err = s.GetSession(ctx, "test-u1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.ConversationID != "" {
			t.Fatalf("expected fresh session after expire, got %+v", sess)
		}
	})

	t.Run("history ordering", func(t *testing.T) {
		for _, id := range []string{"h1", "h2", "h3"} {
			if err := s.SetSession(ctx, ConversationSession{UserID: "test-u2", ConversationID: id}); err != nil {
				t.Fatalf("SetSession(%s): %v", id, err)
			}
			time.Sleep(10 * time.Millisecond)
		}
		rows, err := s.GetUserConversations(ctx, "test-u2", 2)
		if err != nil {
			t.Fatalf("GetUserConversations: %v", err)
		}
		if len(rows) != 2 || rows[0].ConversationID != "h2" || rows[1].ConversationID != "h3" {
			t.Fatalf("unexpected ordering: %+v", rows)
		}

		// Zero and negative limits mean "all rows", like MemoryStore.
		for _, limit := range []int32{0, -1} {
			rows, err = s.GetUserConversations(ctx, "test-u2", limit)
			if err != nil {
				t.Fatalf("GetUserConversations(limit=%d): %v", limit, err)
			}
			if len(rows) != 3 {
				t.Fatalf("limit=%d: expected all rows, got %+v", limit, rows)
			}
		}
	})
}
