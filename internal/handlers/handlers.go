// Package handlers exposes the REST surface. Each handler wires services
// to echo routes and translates service sentinel errors to HTTP status
// codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/dispatch"
	"github.com/zapdesk/zapdesk/internal/instance"
	"github.com/zapdesk/zapdesk/internal/media"
	"github.com/zapdesk/zapdesk/internal/message"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// httpError maps known service errors onto HTTP status codes. Anything
// unrecognized becomes a 500.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, contact.ErrNotFound),
		errors.Is(err, instance.ErrNotFound),
		errors.Is(err, message.ErrNotFound),
		errors.Is(err, media.ErrUnavailable):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, contact.ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, contact.ErrAlreadyPublic),
		errors.Is(err, contact.ErrAlreadyPrivate),
		errors.Is(err, contact.ErrRevertWindowExpired),
		errors.Is(err, contact.ErrNotOnWhatsApp),
		errors.Is(err, contact.ErrPhoneRequired),
		errors.Is(err, instance.ErrNoConnectedInstance):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, instance.ErrNameRequired),
		errors.Is(err, instance.ErrOwnerRequired),
		errors.Is(err, dispatch.ErrNoRecipient),
		errors.Is(err, dispatch.ErrEmptyMessage),
		errors.Is(err, dispatch.ErrUnsupportedKind),
		errors.Is(err, dispatch.ErrNoRemoteID),
		errors.Is(err, media.ErrInvalidURL):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
