// Package server assembles the echo application: middleware, JWT, and
// route registration for every handler.
package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(log *slog.Logger, addr string, jwtSecret string, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, webhookHandler *handlers.WebhookHandler, instancesHandler *handlers.InstancesHandler, contactsHandler *handlers.ContactsHandler, messagesHandler *handlers.MessagesHandler, threadsHandler *handlers.ThreadsHandler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if authHandler != nil {
		authHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if instancesHandler != nil {
		instancesHandler.Register(e)
	}
	if contactsHandler != nil {
		contactsHandler.Register(e)
	}
	if messagesHandler != nil {
		messagesHandler.Register(e)
	}
	if threadsHandler != nil {
		threadsHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// shouldSkipJWT lists the unauthenticated paths. The webhook endpoint is
// open because the provider cannot carry our tokens.
func shouldSkipJWT(path string) bool {
	switch path {
	case "/ping", "/health", "/auth/login", config.DefaultWebhookPath:
		return true
	}
	return false
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
