package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; Migrate runs it on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rides (
		id              TEXT PRIMARY KEY,
		origin          TEXT NOT NULL,
		destination     TEXT NOT NULL,
		driver_id       TEXT NOT NULL,
		driver_name     TEXT NOT NULL,
		departure_time  TIMESTAMPTZ NOT NULL,
		available_seats INT NOT NULL CHECK (available_seats >= 0),
		reserved_seats  INT NOT NULL DEFAULT 0 CHECK (reserved_seats >= 0),
		price           DOUBLE PRECISION NOT NULL CHECK (price > 0),
		description     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		version         BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rides_departure_time ON rides (departure_time)`,
	`CREATE INDEX IF NOT EXISTS idx_rides_driver_id ON rides (driver_id)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id           TEXT NOT NULL,
		ride_id      TEXT NOT NULL REFERENCES rides (id) ON DELETE CASCADE,
		rider_id     TEXT NOT NULL,
		rider_name   TEXT NOT NULL,
		seats_booked INT NOT NULL CHECK (seats_booked > 0),
		booked_at    TIMESTAMPTZ NOT NULL,
		position     INT NOT NULL,
		PRIMARY KEY (ride_id, id),
		UNIQUE (ride_id, rider_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_rider_id ON reservations (rider_id)`,
}

// Migrate creates the ride tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return tx.Commit(ctx)
}
