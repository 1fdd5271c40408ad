package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/linedify/linedify/internal/auth"
	"github.com/linedify/linedify/internal/session"
)

func newSessionRequest(t *testing.T, h *SessionAdminHandler, method, target, userID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues(userID)

	var err error
	if method == http.MethodGet {
		err = h.ListConversations(c)
	} else {
		err = h.ExpireSession(c)
	}
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestListConversations(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	ctx := t.Context()
	for _, id := range []string{"c1", "c2"} {
		if err := store.SetSession(ctx, session.ConversationSession{UserID: "U1", ConversationID: id}); err != nil {
			t.Fatalf("SetSession: %v", err)
		}
	}

	h := NewSessionAdminHandler(slog.Default(), store)
	rec := newSessionRequest(t, h, http.MethodGet, "/users/U1/conversations", "U1")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UserID        string                        `json:"user_id"`
		Conversations []session.ConversationSession `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != "U1" || len(resp.Conversations) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListConversationsInvalidLimit(t *testing.T) {
	h := NewSessionAdminHandler(slog.Default(), session.NewMemoryStore(time.Hour))
	rec := newSessionRequest(t, h, http.MethodGet, "/users/U1/conversations?limit=abc", "U1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListConversationsEmptyUser(t *testing.T) {
	h := NewSessionAdminHandler(slog.Default(), session.NewMemoryStore(time.Hour))
	rec := newSessionRequest(t, h, http.MethodGet, "/users//conversations", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExpireSessionEndpoint(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	ctx := t.Context()
	if err := store.SetSession(ctx, session.ConversationSession{UserID: "U1", ConversationID: "c1"}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	h := NewSessionAdminHandler(slog.Default(), store)
	rec := newSessionRequest(t, h, http.MethodPost, "/users/U1/session/expire", "U1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sess, err := store.GetSession(ctx, "U1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.ConversationID != "" {
		t.Fatalf("expected expired session, got %+v", sess)
	}
}

func TestExpireSessionRecordsCaller(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	ctx := t.Context()
	if err := store.SetSession(ctx, session.ConversationSession{UserID: "U1", ConversationID: "c1"}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	secret := "test-secret"
	tokenStr, _, err := auth.GenerateToken("admin", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/users/U1/session/expire", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues("U1")
	c.Set("user", token)

	h := NewSessionAdminHandler(slog.Default(), store)
	if err := h.ExpireSession(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["expired_by"] != "admin" {
		t.Fatalf("expected caller identity in response, got %+v", resp)
	}
}
