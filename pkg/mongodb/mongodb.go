package mongodb

import (
	"context"
	"fmt"
	"time"

	"ride-share/pkg/config"
	"ride-share/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	maxRetries     = 5
	retryInterval  = 3 * time.Second
	connectTimeout = 10 * time.Second
)

// NewClient connects to MongoDB and waits until the primary answers a ping.
func NewClient(ctx context.Context, cfg *config.Config, log logger.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)

	log.Info("mongo_connect", "Connecting to MongoDB...")

	var err error
	for i := 0; i < maxRetries; i++ {
		var client *mongo.Client
		client, err = mongo.Connect(ctx, opts)
		if err == nil {
			err = client.Ping(ctx, readpref.Primary())
			if err == nil {
				log.Info("mongo_connected_success", "Successfully connected to MongoDB")
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}

		log.Error("mongo_connect_failed", fmt.Errorf("failed to connect to MongoDB(attempt %d/%d): %w", i+1, maxRetries, err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return nil, fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", maxRetries, err)
}

// Collection returns the configured rides collection.
func Collection(client *mongo.Client, cfg *config.Config) *mongo.Collection {
	return client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
}
