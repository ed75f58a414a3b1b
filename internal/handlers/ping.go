package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type dbPinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	db     dbPinger
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger, db dbPinger) *PingHandler {
	return &PingHandler{
		db:     db,
		logger: log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping reports service liveness plus database reachability. The
// endpoint answers 200 even when the database is down so load
// balancers keep routing to an instance that can still serve webhooks.
func (h *PingHandler) Ping(c echo.Context) error {
	dbStatus := "ok"
	if h.db != nil {
		if err := h.db.Ping(c.Request().Context()); err != nil {
			h.logger.Warn("database unreachable", slog.Any("error", err))
			dbStatus = "unreachable"
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"service":  "zapdesk",
		"status":   "ok",
		"database": dbStatus,
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
