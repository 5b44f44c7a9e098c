package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database/migrations"
	"github.com/santaspot/backend/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "santaspot",
		Usage: "Santa's Pot referral and donation backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "dotenv file loaded before the environment is read",
				EnvVars: []string{"ENV_FILE"},
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "override the listen port",
			},
			&cli.BoolFlag{
				Name:  "skip-migrations",
				Usage: "do not apply pending migrations on start",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, job workers and scheduler",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: migrate,
			},
			{
				Name:   "rollback",
				Usage:  "undo the last applied migration",
				Action: rollback,
			},
			{
				Name:   "reconcile",
				Usage:  "schedule status polls for stale payments once and exit",
				Action: reconcile,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg := config.LoadConfig()
	if port := c.String("port"); port != "" {
		cfg.Server.Port = port
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if !c.Bool("skip-migrations") {
		if err := migrations.RunMigrations(a.db, log); err != nil {
			return err
		}
	}

	router, err := a.router()
	if err != nil {
		return err
	}

	a.processor.Start(ctx)
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	srv := startServer(router, cfg.Server, log)

	<-ctx.Done()
	log.Info("shutting down server")

	a.scheduler.Stop()
	a.processor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	a, err := newApp(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return migrations.RunMigrations(a.db, log)
}

func rollback(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	a, err := newApp(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return migrations.RollbackLast(a.db, log)
}

func reconcile(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	a, err := newApp(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.scheduler.ReconcilePayments(c.Context)
	if err != nil {
		return err
	}
	log.Info("reconciliation scheduled", zap.Int("payments", n))
	return nil
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		// zero keeps SSE streams open
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("port", cfg.Port))
	return srv
}
