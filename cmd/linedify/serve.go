package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/linedify/linedify/internal/config"
	"github.com/linedify/linedify/internal/db"
	"github.com/linedify/linedify/internal/dify"
	"github.com/linedify/linedify/internal/handlers"
	"github.com/linedify/linedify/internal/integration"
	"github.com/linedify/linedify/internal/line"
	"github.com/linedify/linedify/internal/logger"
	"github.com/linedify/linedify/internal/server"
	"github.com/linedify/linedify/internal/session"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideSessionStore,
			provideDifyClient,
			provideLineClient,
			provideIntegrator,
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(providePingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideSessionAdminHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideSessionStore(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (session.Store, error) {
	if cfg.Session.Store == "memory" {
		return session.NewMemoryStore(cfg.Session.Timeout()), nil
	}

	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})

	return session.NewPostgresStore(log, pool, cfg.Session.Timeout()), nil
}

func provideDifyClient(cfg config.Config, log *slog.Logger) *dify.Client {
	return dify.NewClient(log,
		cfg.Dify.APIKey,
		cfg.Dify.BaseURL,
		cfg.Dify.User,
		dify.AppType(cfg.Dify.AppType),
		dify.WithTimeout(cfg.Dify.Timeout()),
		dify.WithVerbose(cfg.Dify.Verbose),
	)
}

func provideLineClient(cfg config.Config, log *slog.Logger) *line.Client {
	return line.NewClient(log,
		cfg.Line.ChannelAccessToken,
		line.WithEndpoints(cfg.Line.APIEndpoint, cfg.Line.DataEndpoint),
	)
}

func provideIntegrator(cfg config.Config, log *slog.Logger, store session.Store, backend *dify.Client, lineClient *line.Client) *integration.Integrator {
	return integration.New(log, store, backend, lineClient,
		integration.WithErrorMessage(cfg.Line.ErrorMessage))
}

func provideWebhookHandler(cfg config.Config, log *slog.Logger, integrator *integration.Integrator, lineClient *line.Client) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, cfg.Line.ChannelSecret, integrator, lineClient)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideAuthHandler(cfg config.Config, log *slog.Logger) (*handlers.AuthHandler, error) {
	expiresIn, err := cfg.Auth.ExpiresIn()
	if err != nil {
		return nil, err
	}
	return handlers.NewAuthHandler(log, cfg.Auth.JWTSecret, cfg.Auth.AdminSecret, expiresIn), nil
}

func provideSessionAdminHandler(log *slog.Logger, store session.Store) *handlers.SessionAdminHandler {
	return handlers.NewSessionAdminHandler(log, store)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(p serverParams) *server.Server {
	return server.NewServer(p.Logger, p.Config.Server.Addr, p.Config.Auth.JWTSecret, p.ServerHandlers)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
