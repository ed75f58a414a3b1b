package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/accounts"
	"github.com/zapdesk/zapdesk/internal/auth"
)

type authenticator interface {
	Authenticate(ctx context.Context, username, password string) (accounts.Account, error)
	GetByID(ctx context.Context, id string) (accounts.Account, error)
}

// AuthHandler issues JWTs for account credentials.
type AuthHandler struct {
	accounts  authenticator
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(log *slog.Logger, store authenticator, secret string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		accounts:  store,
		secret:    secret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
	e.GET("/auth/me", h.Me)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Account   accounts.Account `json:"account"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	account, err := h.accounts.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		return httpError(err)
	}

	token, expiresAt, err := auth.GenerateToken(account.ID, account.Admin, h.secret, h.expiresIn)
	if err != nil {
		h.logger.Error("sign token", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}

	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   account,
	})
}

func (h *AuthHandler) Me(c echo.Context) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	account, err := h.accounts.GetByID(c.Request().Context(), actor.AccountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, account)
}
