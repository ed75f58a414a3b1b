package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/zapdesk/zapdesk/internal/accounts"
	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/db"
	"github.com/zapdesk/zapdesk/internal/dispatch"
	"github.com/zapdesk/zapdesk/internal/evolution"
	"github.com/zapdesk/zapdesk/internal/handlers"
	"github.com/zapdesk/zapdesk/internal/instance"
	"github.com/zapdesk/zapdesk/internal/logger"
	"github.com/zapdesk/zapdesk/internal/media"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/server"
	"github.com/zapdesk/zapdesk/internal/thread"
	"github.com/zapdesk/zapdesk/internal/webhook"
)

func runServe(configPath string) {
	fx.New(
		fx.Supply(configPathValue(configPath)),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideProviderClient,
			instance.NewStore,
			contact.NewStore,
			message.NewStore,
			thread.NewStore,
			accounts.NewStore,
			provideInstanceService,
			provideContactService,
			provideThreadService,
			provideWebhookService,
			provideDispatchService,
			provideMediaFetcher,
			provideStatusRefresher,
			providePingHandler,
			provideAuthHandler,
			provideWebhookHandler,
			provideInstancesHandler,
			provideContactsHandler,
			provideMessagesHandler,
			provideThreadsHandler,
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			ensureAdminAccount,
			startStatusRefresher,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

type configPathValue string

func provideConfig(path configPathValue) (config.Config, error) {
	cfgPath := string(path)
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideProviderClient(log *slog.Logger, cfg config.Config) *evolution.Client {
	timeout := time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
	return evolution.NewClient(log, cfg.Provider.BaseURL, cfg.Provider.GlobalAPIKey, timeout)
}

func provideInstanceService(log *slog.Logger, store *instance.Store, client *evolution.Client, cfg config.Config) *instance.Service {
	return instance.NewService(log, store, client, cfg.Server.WebhookURL(), cfg.Provider.Integration)
}

func provideContactService(log *slog.Logger, store *contact.Store, instances *instance.Service, client *evolution.Client, cfg config.Config) *contact.Service {
	window := time.Duration(cfg.Contacts.RevertWindowHours) * time.Hour
	return contact.NewService(log, store, instances, client, window)
}

func provideThreadService(log *slog.Logger, store *thread.Store, accountStore *accounts.Store) *thread.Service {
	return thread.NewService(log, store, accountStore)
}

func provideWebhookService(log *slog.Logger, instances *instance.Service, contacts *contact.Service, messages *message.Store, threads *thread.Service) *webhook.Service {
	return webhook.NewService(log, instances, contacts, messages, threads)
}

func provideDispatchService(log *slog.Logger, instances *instance.Service, contacts *contact.Service, messages *message.Store, client *evolution.Client) *dispatch.Service {
	return dispatch.NewService(log, instances, contacts, messages, client)
}

func provideMediaFetcher(log *slog.Logger, cfg config.Config) *media.Fetcher {
	return media.NewFetcher(log, time.Duration(cfg.Media.DownloadTimeoutSeconds)*time.Second)
}

func provideStatusRefresher(log *slog.Logger, svc *instance.Service, cfg config.Config) *instance.StatusRefresher {
	return instance.NewStatusRefresher(log, svc, cfg.Provider.StatusSyncSpec)
}

func providePingHandler(log *slog.Logger, pool *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, pool)
}

func provideAuthHandler(log *slog.Logger, store *accounts.Store, cfg config.Config) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, store, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideWebhookHandler(log *slog.Logger, svc *webhook.Service) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, svc)
}

func provideInstancesHandler(log *slog.Logger, svc *instance.Service) *handlers.InstancesHandler {
	return handlers.NewInstancesHandler(log, svc)
}

func provideContactsHandler(log *slog.Logger, svc *contact.Service) *handlers.ContactsHandler {
	return handlers.NewContactsHandler(log, svc)
}

func provideMessagesHandler(log *slog.Logger, d *dispatch.Service, messages *message.Store, contacts *contact.Service, fetcher *media.Fetcher) *handlers.MessagesHandler {
	return handlers.NewMessagesHandler(log, d, messages, contacts, fetcher)
}

func provideThreadsHandler(log *slog.Logger, svc *thread.Service) *handlers.ThreadsHandler {
	return handlers.NewThreadsHandler(log, svc)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, webhookHandler *handlers.WebhookHandler, instancesHandler *handlers.InstancesHandler, contactsHandler *handlers.ContactsHandler, messagesHandler *handlers.MessagesHandler, threadsHandler *handlers.ThreadsHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret, pingHandler, authHandler, webhookHandler, instancesHandler, contactsHandler, messagesHandler, threadsHandler)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database schema up to date")
	return nil
}

func ensureAdminAccount(lc fx.Lifecycle, store *accounts.Store, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
		},
	})
}

func startStatusRefresher(lc fx.Lifecycle, refresher *instance.StatusRefresher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return refresher.Start() },
		OnStop:  func(ctx context.Context) error { refresher.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, srv *server.Server, log *slog.Logger, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("http server stopped", slog.String("error", err.Error()))
				}
			}()
			log.Info("http server listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func runMigrate(configPath string) error {
	cfg, err := provideConfig(configPathValue(configPath))
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err := db.Migrate(cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.L.Info("database schema up to date")
	return nil
}
