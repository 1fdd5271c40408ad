package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/linedify/linedify/internal/auth"
)

// AuthHandler issues admin API tokens against a configured shared secret.
type AuthHandler struct {
	logger      *slog.Logger
	jwtSecret   string
	adminSecret string
	expiresIn   time.Duration
}

func NewAuthHandler(log *slog.Logger, jwtSecret, adminSecret string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		logger:      log.With(slog.String("handler", "auth")),
		jwtSecret:   jwtSecret,
		adminSecret: adminSecret,
		expiresIn:   expiresIn,
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/token", h.Token)
}

type tokenRequest struct {
	Secret string `json:"secret"`
}

func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.adminSecret)) != 1 {
		h.logger.Warn("token request with invalid secret")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}

	token, expiresAt, err := auth.GenerateToken("admin", h.jwtSecret, h.expiresIn)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "generate token")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
	})
}
