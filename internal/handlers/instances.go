package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/instance"
)

type instanceService interface {
	Provision(ctx context.Context, req instance.CreateRequest) (instance.Instance, error)
	Connect(ctx context.Context, id string) (instance.QRCode, error)
	Restart(ctx context.Context, id string) error
	Logout(ctx context.Context, id string) error
	Deprovision(ctx context.Context, id string) error
	ApplySettings(ctx context.Context, id string, settings instance.Settings) (instance.Instance, error)
	Get(ctx context.Context, id string) (instance.Instance, error)
	List(ctx context.Context) ([]instance.Instance, error)
	SyncAll(ctx context.Context) error
}

// InstancesHandler manages provider instance lifecycle. Provisioning and
// teardown are admin only.
type InstancesHandler struct {
	service instanceService
	logger  *slog.Logger
}

func NewInstancesHandler(log *slog.Logger, service instanceService) *InstancesHandler {
	return &InstancesHandler{
		service: service,
		logger:  log.With(slog.String("handler", "instances")),
	}
}

func (h *InstancesHandler) Register(e *echo.Echo) {
	g := e.Group("/instances")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.POST("/sync", h.Sync)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/connect", h.Connect)
	g.POST("/:id/restart", h.Restart)
	g.POST("/:id/logout", h.Logout)
	g.PUT("/:id/settings", h.UpdateSettings)
}

func requireAdmin(c echo.Context) (auth.Actor, error) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if !actor.Admin {
		return auth.Actor{}, echo.NewHTTPError(http.StatusForbidden, "admin access required")
	}
	return actor, nil
}

func (h *InstancesHandler) Create(c echo.Context) error {
	if _, err := requireAdmin(c); err != nil {
		return err
	}
	var req instance.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inst, err := h.service.Provision(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inst)
}

func (h *InstancesHandler) List(c echo.Context) error {
	items, err := h.service.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *InstancesHandler) Get(c echo.Context) error {
	inst, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

func (h *InstancesHandler) Delete(c echo.Context) error {
	if _, err := requireAdmin(c); err != nil {
		return err
	}
	if err := h.service.Deprovision(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *InstancesHandler) Connect(c echo.Context) error {
	qr, err := h.service.Connect(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, qr)
}

func (h *InstancesHandler) Restart(c echo.Context) error {
	if err := h.service.Restart(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *InstancesHandler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *InstancesHandler) UpdateSettings(c echo.Context) error {
	if _, err := requireAdmin(c); err != nil {
		return err
	}
	var settings instance.Settings
	if err := c.Bind(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inst, err := h.service.ApplySettings(c.Request().Context(), c.Param("id"), settings)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

func (h *InstancesHandler) Sync(c echo.Context) error {
	if _, err := requireAdmin(c); err != nil {
		return err
	}
	if err := h.service.SyncAll(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
