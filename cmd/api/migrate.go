package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/iago/report-relay/internal/config"
	"github.com/iago/report-relay/internal/repository"
)

func runMigrate(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	repo, err := repository.NewPostgresReportsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer repo.Close()

	if err := repo.ApplySchema(ctx); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}
