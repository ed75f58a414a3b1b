package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/contact"
)

type contactService interface {
	Get(ctx context.Context, actor auth.Actor, contactID string) (contact.Contact, error)
	List(ctx context.Context, actor auth.Actor) ([]contact.Contact, error)
	Promote(ctx context.Context, actor auth.Actor, contactID string) (contact.Contact, error)
	Revert(ctx context.Context, actor auth.Actor, contactID string) (contact.Contact, error)
	Verify(ctx context.Context, actor auth.Actor, contactID string) (contact.Contact, error)
	Notes(ctx context.Context, actor auth.Actor, contactID string) ([]contact.Note, error)
	AddNote(ctx context.Context, actor auth.Actor, contactID, body string) (contact.Note, error)
}

// ContactsHandler exposes contact lookup and the privacy operations.
type ContactsHandler struct {
	service contactService
	logger  *slog.Logger
}

func NewContactsHandler(log *slog.Logger, service contactService) *ContactsHandler {
	return &ContactsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "contacts")),
	}
}

func (h *ContactsHandler) Register(e *echo.Echo) {
	g := e.Group("/contacts")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/promote", h.Promote)
	g.POST("/:id/revert", h.Revert)
	g.POST("/:id/verify", h.Verify)
	g.GET("/:id/notes", h.ListNotes)
	g.POST("/:id/notes", h.AddNote)
}

func requireActor(c echo.Context) (auth.Actor, error) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return actor, nil
}

func (h *ContactsHandler) List(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ContactsHandler) Get(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	item, err := h.service.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *ContactsHandler) Promote(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	item, err := h.service.Promote(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *ContactsHandler) Revert(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	item, err := h.service.Revert(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *ContactsHandler) Verify(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	item, err := h.service.Verify(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *ContactsHandler) ListNotes(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	notes, err := h.service.Notes(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, notes)
}

type addNoteRequest struct {
	Body string `json:"body" validate:"required"`
}

func (h *ContactsHandler) AddNote(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req addNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note, err := h.service.AddNote(c.Request().Context(), actor, c.Param("id"), req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, note)
}
