package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/dispatch"
	"github.com/zapdesk/zapdesk/internal/media"
	"github.com/zapdesk/zapdesk/internal/message"
)

type dispatcher interface {
	Send(ctx context.Context, actor auth.Actor, req dispatch.SendRequest) (dispatch.SendResult, error)
	React(ctx context.Context, actor auth.Actor, localMessageID, emoji string) (dispatch.SendResult, error)
}

type messageReader interface {
	GetByID(ctx context.Context, id string) (message.Message, error)
	ListByContact(ctx context.Context, contactID string, limit int) ([]message.Message, error)
	ListByInstance(ctx context.Context, instanceID string, limit int) ([]message.Message, error)
	UpdateState(ctx context.Context, id string, state message.State, failureReason string) error
}

type mediaFetcher interface {
	Fetch(ctx context.Context, rawURL, preferredName string) (media.Asset, error)
}

// MessagesHandler sends outbound messages and serves the message log.
// Attachment downloads are proxied through us so clients never touch
// provider CDN URLs.
type MessagesHandler struct {
	dispatcher dispatcher
	messages   messageReader
	contacts   contactService
	media      mediaFetcher
	logger     *slog.Logger
}

func NewMessagesHandler(log *slog.Logger, d dispatcher, messages messageReader, contacts contactService, fetcher mediaFetcher) *MessagesHandler {
	return &MessagesHandler{
		dispatcher: d,
		messages:   messages,
		contacts:   contacts,
		media:      fetcher,
		logger:     log.With(slog.String("handler", "messages")),
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	g := e.Group("/messages")
	g.POST("", h.Send)
	g.GET("/:id", h.Get)
	g.POST("/:id/react", h.React)
	g.POST("/:id/read", h.MarkRead)
	g.GET("/:id/media", h.DownloadMedia)

	e.GET("/contacts/:id/messages", h.ListByContact)
	e.GET("/instances/:id/messages", h.ListByInstance)
}

func (h *MessagesHandler) Send(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dispatch.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.dispatcher.Send(c.Request().Context(), actor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessagesHandler) React(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req reactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.dispatcher.React(c.Request().Context(), actor, c.Param("id"), req.Emoji)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// MarkRead records that an operator has read an inbound message. The
// store ignores backwards transitions, so re-reading is a no-op.
func (h *MessagesHandler) MarkRead(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	msg, err := h.messages.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if msg.Direction != message.Inbound {
		return echo.NewHTTPError(http.StatusConflict, "only inbound messages can be marked read")
	}
	if message.ValidTransition(msg.State, message.StateRead) {
		if err := h.messages.UpdateState(c.Request().Context(), msg.ID, message.StateRead, ""); err != nil {
			return httpError(err)
		}
		msg.State = message.StateRead
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *MessagesHandler) Get(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	msg, err := h.messages.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *MessagesHandler) ListByContact(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	contactID := c.Param("id")
	if _, err := h.contacts.Get(c.Request().Context(), actor, contactID); err != nil {
		return httpError(err)
	}
	items, err := h.messages.ListByContact(c.Request().Context(), contactID, limitParam(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *MessagesHandler) ListByInstance(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	items, err := h.messages.ListByInstance(c.Request().Context(), c.Param("id"), limitParam(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *MessagesHandler) DownloadMedia(c echo.Context) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	msg, err := h.messages.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if msg.MediaURL == "" {
		return echo.NewHTTPError(http.StatusNotFound, "message has no attachment")
	}

	asset, err := h.media.Fetch(c.Request().Context(), msg.MediaURL, msg.MediaFilename)
	if err != nil {
		return httpError(err)
	}
	defer asset.Body.Close()

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+asset.Filename+`"`)
	return c.Stream(http.StatusOK, contentType, asset.Body)
}

func limitParam(c echo.Context) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
