package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/thread"
)

type threadService interface {
	Get(ctx context.Context, id string) (thread.Thread, error)
	Members(ctx context.Context, id string) ([]thread.Member, error)
	ListByInstance(ctx context.Context, instanceID string) ([]thread.Thread, error)
}

// ThreadsHandler serves the discussion threads opened for contact
// traffic.
type ThreadsHandler struct {
	service threadService
	logger  *slog.Logger
}

func NewThreadsHandler(log *slog.Logger, service threadService) *ThreadsHandler {
	return &ThreadsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "threads")),
	}
}

func (h *ThreadsHandler) Register(e *echo.Echo) {
	g := e.Group("/threads")
	g.GET("/:id", h.Get)
	g.GET("/:id/members", h.Members)

	e.GET("/instances/:id/threads", h.ListByInstance)
}

func (h *ThreadsHandler) Get(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	t, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *ThreadsHandler) Members(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	members, err := h.service.Members(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, members)
}

func (h *ThreadsHandler) ListByInstance(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	items, err := h.service.ListByInstance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}
