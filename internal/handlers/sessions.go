package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/linedify/linedify/internal/auth"
	"github.com/linedify/linedify/internal/session"
)

const defaultConversationsLimit = 20

// SessionAdminHandler exposes session inspection and reset over the
// JWT-protected admin API.
type SessionAdminHandler struct {
	logger *slog.Logger
	store  session.Store
}

func NewSessionAdminHandler(log *slog.Logger, store session.Store) *SessionAdminHandler {
	return &SessionAdminHandler{
		logger: log.With(slog.String("handler", "sessions")),
		store:  store,
	}
}

func (h *SessionAdminHandler) Register(e *echo.Echo) {
	e.GET("/users/:user_id/conversations", h.ListConversations)
	e.POST("/users/:user_id/session/expire", h.ExpireSession)
}

func (h *SessionAdminHandler) ListConversations(c echo.Context) error {
	userID := c.Param("user_id")

	limit := int32(defaultConversationsLimit)
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = int32(n)
	}

	sessions, err := h.store.GetUserConversations(c.Request().Context(), userID, limit)
	if err != nil {
		if errors.Is(err, session.ErrUserIDRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("list conversations failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "list conversations")
	}
	h.logger.Info("conversations listed",
		slog.String("user_id", userID),
		slog.String("caller", callerID(c)),
		slog.Int("count", len(sessions)))
	if sessions == nil {
		sessions = []session.ConversationSession{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"user_id":       userID,
		"conversations": sessions,
	})
}

func (h *SessionAdminHandler) ExpireSession(c echo.Context) error {
	userID := c.Param("user_id")
	caller := callerID(c)

	if err := h.store.ExpireSession(c.Request().Context(), userID); err != nil {
		if errors.Is(err, session.ErrUserIDRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("expire session failed",
			slog.String("caller", caller),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "expire session")
	}

	h.logger.Info("session expired",
		slog.String("user_id", userID),
		slog.String("caller", caller))
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "expired",
		"expired_by": caller,
	})
}

// callerID resolves the authenticated admin identity from the request's
// JWT. Empty when the route was reached without one (tests, skip list).
func callerID(c echo.Context) string {
	caller, err := auth.UserIDFromContext(c)
	if err != nil {
		return ""
	}
	return caller
}
