package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/linedify/linedify/internal/line"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// EventProcessor resolves one webhook event to its reply messages.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event line.Event) []line.SendMessage
}

// Replier delivers reply messages to the platform.
type Replier interface {
	ReplyMessage(ctx context.Context, replyToken string, messages []line.SendMessage) error
}

// WebhookHandler receives LINE webhook deliveries, verifies the channel
// signature and dispatches each event through the pipeline.
type WebhookHandler struct {
	logger        *slog.Logger
	channelSecret string
	processor     EventProcessor
	replier       Replier
}

func NewWebhookHandler(log *slog.Logger, channelSecret string, processor EventProcessor, replier Replier) *WebhookHandler {
	return &WebhookHandler{
		logger:        log.With(slog.String("handler", "webhook")),
		channelSecret: channelSecret,
		processor:     processor,
		replier:       replier,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Webhook)
}

func (h *WebhookHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "body too large")
	}

	signature := c.Request().Header.Get("X-Line-Signature")
	if !line.ValidateSignature(h.channelSecret, body, signature) {
		h.logger.Warn("invalid webhook signature")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	events, err := line.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("malformed webhook body", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}

	ctx := c.Request().Context()
	for _, event := range events {
		msgs := h.processor.ProcessEvent(ctx, event)
		if len(msgs) == 0 || event.ReplyToken == "" {
			continue
		}
		if err := h.replier.ReplyMessage(ctx, event.ReplyToken, msgs); err != nil {
			// The event was processed; a failed delivery must not fail
			// the whole batch.
			h.logger.Error("reply delivery failed",
				slog.String("webhook_event_id", event.WebhookEventID),
				slog.String("error", err.Error()))
		}
	}

	return c.String(http.StatusOK, "ok")
}
