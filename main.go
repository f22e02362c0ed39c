package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"waste-portal/config"
	"waste-portal/internal/backend"
	"waste-portal/internal/dashboard"
	"waste-portal/internal/form"
	"waste-portal/internal/handler"
	"waste-portal/internal/messaging"
	"waste-portal/internal/repository"
	"waste-portal/internal/session"
	"waste-portal/internal/workspace"
	"waste-portal/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "waste-portal",
		Short:         "Waste management portal backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.Setup()
			decimal.MarshalJSONWithoutQuotes = true
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to the JSON config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the session and outbox tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), configPath)
		},
	})
	return root
}

func migrate(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fail("load config", err)
	}
	db, _, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return fail("connect to database", err)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return fail("migrate", err)
	}
	slog.Info("migrations applied", "driver", cfg.Database.Driver)
	return nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fail("load config", err)
	}

	db, dialect, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return fail("connect to database", err)
	}
	defer db.Close()
	if err := repository.Migrate(ctx, db); err != nil {
		return fail("migrate", err)
	}
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	deps := handler.RouterDeps{
		Store:   repository.NewSessionRepository(db, dialect),
		Parser:  session.NewParser(cfg.JWT.Secret),
		Session: cfg.Session,
	}

	// Domain events go through the outbox only when a broker is configured.
	var events messaging.Recorder = messaging.NopRecorder{}
	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, cfg.RabbitMQ.User, cfg.RabbitMQ.Password)
		if err != nil {
			return fail("connect to rabbitmq", err)
		}
		defer rmq.Close()

		outbox := repository.NewOutboxRepository(db, dialect)
		worker := messaging.NewOutboxWorker(outbox, rmq)
		worker.Start()
		defer worker.Stop()

		events = messaging.NewOutboxRecorder(outbox)
		deps.Outbox = outbox
		slog.Info("outbox publisher started", "exchange", messaging.ExchangeName)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, nil)
	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	ws := workspace.New(workspace.Factory{
		Dashboard: func() *dashboard.Dashboard {
			return dashboard.New(client, dashboard.Options{
				DuplicateMatch: dashboard.DuplicateMatch(cfg.Payments.DuplicateMatch),
				Events:         events,
			})
		},
		CreateForm: func() *form.Controller {
			return form.NewCreate(client, form.Options{Events: events, Now: now})
		},
		EditForm: func() *form.Controller {
			return form.NewUpdate(client, form.Options{Events: events, Now: now})
		},
	}, cfg.Session.IdleTTL)
	ws.Start()
	defer ws.Stop()
	deps.Workspace = ws

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("waste portal listening", "addr", srv.Addr, "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fail("start server", err)
		}
		return nil
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fail("shutdown", err)
	}
	slog.Info("waste portal stopped gracefully")
	return nil
}

func fail(step string, err error) error {
	slog.Error("failed to "+step, "error", err)
	return fmt.Errorf("%s: %w", step, err)
}
