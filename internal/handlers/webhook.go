package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/webhook"
)

// maxWebhookBody bounds provider payloads. Evolution events are small;
// anything past this is garbage.
const maxWebhookBody = 4 << 20

type webhookService interface {
	Handle(ctx context.Context, body []byte) webhook.Result
}

// WebhookHandler receives provider events. It always answers 200 with a
// structured result so the provider never retries storms at us.
type WebhookHandler struct {
	service webhookService
	logger  *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, service webhookService) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST(config.DefaultWebhookPath, h.Receive)
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("read webhook body", slog.String("error", err.Error()))
		return c.JSON(http.StatusOK, webhook.Failed("unreadable request body"))
	}
	return c.JSON(http.StatusOK, h.service.Handle(c.Request().Context(), body))
}
