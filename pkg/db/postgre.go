package db

import (
	"context"
	"fmt"
	"time"

	"ride-share/pkg/config"
	"ride-share/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxRetries    = 5
	retryInterval = 3 * time.Second
)

func NewConnection(ctx context.Context, cfg *config.Config, log logger.Logger) (*pgxpool.Pool, error) {
	dsn := cfg.PostgresDSN()
	var pool *pgxpool.Pool
	var err error

	log.Info("db_connect", "Connecting to database...")

	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			log.Error("db_connect_failed", fmt.Errorf("failed to connect to database(attempt %d/%d): %w", i+1, maxRetries, err))
			if !sleep(ctx, retryInterval) {
				return nil, ctx.Err()
			}
			continue
		}
		err = pool.Ping(ctx)
		if err == nil {
			log.Info("db_connected_success", "Successfully connected to database")
			return pool, nil
		}

		log.Error("db_ping_failed", fmt.Errorf("failed to connect to database(attempt %d/%d): %w", i+1, maxRetries, err))
		pool.Close()
		if !sleep(ctx, retryInterval) {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
