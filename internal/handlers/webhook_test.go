package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/linedify/linedify/internal/line"
)

type stubProcessor struct {
	replies map[string][]line.SendMessage
	events  []line.Event
}

func (p *stubProcessor) ProcessEvent(_ context.Context, event line.Event) []line.SendMessage {
	p.events = append(p.events, event)
	return p.replies[event.WebhookEventID]
}

type stubReplier struct {
	calls []string
	err   error
}

func (r *stubReplier) ReplyMessage(_ context.Context, replyToken string, _ []line.SendMessage) error {
	r.calls = append(r.calls, replyToken)
	return r.err
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Webhook(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestWebhookDispatchAndReply(t *testing.T) {
	body := []byte(`{"destination":"U0","events":[
		{"type":"message","webhookEventId":"ev-1","replyToken":"rt-1",
		 "source":{"type":"user","userId":"U1"},
		 "message":{"id":"m1","type":"text","text":"hi"}},
		{"type":"unfollow","webhookEventId":"ev-2",
		 "source":{"type":"user","userId":"U2"}}
	]}`)

	processor := &stubProcessor{replies: map[string][]line.SendMessage{
		"ev-1": {line.NewTextMessage("hello")},
	}}
	replier := &stubReplier{}
	h := NewWebhookHandler(slog.Default(), "secret", processor, replier)

	rec := postWebhook(h, body, signBody("secret", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(processor.events) != 2 {
		t.Fatalf("expected both events dispatched, got %d", len(processor.events))
	}
	// Only the event with a reply and a token gets delivered.
	if len(replier.calls) != 1 || replier.calls[0] != "rt-1" {
		t.Fatalf("unexpected reply calls %v", replier.calls)
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	processor := &stubProcessor{}
	h := NewWebhookHandler(slog.Default(), "secret", processor, &stubReplier{})

	rec := postWebhook(h, body, signBody("wrong-secret", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(processor.events) != 0 {
		t.Fatal("no event may be processed on a bad signature")
	}

	rec = postWebhook(h, body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	body := []byte(`{not json`)
	h := NewWebhookHandler(slog.Default(), "secret", &stubProcessor{}, &stubReplier{})

	rec := postWebhook(h, body, signBody("secret", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	body := bytes.Repeat([]byte("a"), maxWebhookBody+1)
	h := NewWebhookHandler(slog.Default(), "secret", &stubProcessor{}, &stubReplier{})

	rec := postWebhook(h, body, signBody("secret", body))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestWebhookReplyFailureStill200(t *testing.T) {
	body := []byte(`{"events":[
		{"type":"message","webhookEventId":"ev-1","replyToken":"rt-1",
		 "source":{"type":"user","userId":"U1"},
		 "message":{"id":"m1","type":"text","text":"hi"}}
	]}`)

	processor := &stubProcessor{replies: map[string][]line.SendMessage{
		"ev-1": {line.NewTextMessage("hello")},
	}}
	replier := &stubReplier{err: errors.New("api down")}
	h := NewWebhookHandler(slog.Default(), "secret", processor, replier)

	rec := postWebhook(h, body, signBody("secret", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite delivery failure, got %d", rec.Code)
	}
}
