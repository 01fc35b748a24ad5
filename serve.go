package main

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/insightdelivered/statement-ingest/internal/api"
	"github.com/insightdelivered/statement-ingest/internal/config"
	"github.com/insightdelivered/statement-ingest/internal/statement"
	"github.com/insightdelivered/statement-ingest/internal/storage"
)

type ServeCmd struct {
	Port string `help:"Port to listen on." default:"${port}"`
}

func (c *ServeCmd) Run(cli *CLI, cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.Open(cli.DB)
	if err != nil {
		return err
	}
	defer repo.Close()

	publisher := newPublisher(ctx, cfg, logger)
	defer publisher.Close()

	handler := &api.Handler{
		Extractor: statement.NewService(repo, cli.dates(), publisher, logger),
		Store:     repo,
		Logger:    logger,
		Version:   version,
	}
	app := api.NewApp(handler, cfg.MaxUploadBytes)

	errCh := make(chan error, 1)
	go func() {
		addr := net.JoinHostPort("", c.Port)
		logger.Info("Listening", "addr", addr, "db", cli.DB)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
