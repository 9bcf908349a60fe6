package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/internal/ride-service/infrastructure/messaging"
	"ride-share/internal/ride-service/infrastructure/pricing"
	"ride-share/internal/ride-service/infrastructure/repository"
	httpapi "ride-share/internal/ride-service/interface/http"
	"ride-share/internal/ride-service/service"
	"ride-share/pkg/auth"
	"ride-share/pkg/config"
	"ride-share/pkg/db"
	"ride-share/pkg/logger"
	"ride-share/pkg/mongodb"
	"ride-share/pkg/rabbitmq"
	"ride-share/pkg/websocket"
)

type rideStore interface {
	domain.RideStore
	Ping(ctx context.Context) error
}

func main() {
	// Load config
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New("ride-service", os.Stdout, logger.ParseLevel(cfg.LogLevel))
	log.WithFields(logger.LogFields{
		"port":  cfg.HTTP.Port,
		"store": cfg.Store.Backend,
	}).Info("service_starting", "Ride Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store_open_failed", err)
		os.Exit(1)
	}
	defer closeStore()

	// Connect to RabbitMQ
	rabbit, err := rabbitmq.NewConnection(cfg, log)
	if err != nil {
		log.Error("rabbitmq_connect_failed", err)
		os.Exit(1)
	}
	defer rabbit.Close()

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	hub := websocket.NewHub(log)

	notifier := messaging.Fanout{
		messaging.NewRabbitMQNotifier(rabbit, log),
		messaging.NewSeatFeedNotifier(hub, log),
	}

	rides := service.NewRideService(store, newOracle(cfg, log), notifier, log, service.Options{
		MaxAttempts:   cfg.Booking.MaxAttempts,
		DefaultPrice:  cfg.Pricing.DefaultPrice,
		OracleTimeout: cfg.Pricing.Timeout,
		NotifyTimeout: cfg.Booking.NotifyTimeout,
	})

	h := httpapi.NewRideHandler(rides, hub, jwtManager, store, log)

	// Start server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           h.Routes(jwtManager.AuthMiddleware),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", err)
			stop()
		}
	}()

	log.Info("server_running", fmt.Sprintf("Ride Service running on %s", srv.Addr))

	// Wait for interrupt
	<-ctx.Done()

	log.Info("server_shutdown", "Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", err)
	}
	log.Info("server_stopped", "Server stopped gracefully")
}

// openStore connects the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (rideStore, func(), error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := db.NewConnection(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("db_migrated", "Ride schema is up to date")
		return repository.NewPostgresRideStore(pool), pool.Close, nil

	case config.StoreMongo:
		client, err := mongodb.NewClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewMongoRideStore(mongodb.Collection(client, cfg))
		if err := store.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Error("mongo_disconnect_failed", err)
			}
		}
		return store, closeFn, nil

	default:
		log.Warn("store_in_memory", "Rides are kept in memory and lost on restart")
		return repository.NewMemoryRideStore(), func() {}, nil
	}
}

func newOracle(cfg *config.Config, log logger.Logger) domain.PriceOracle {
	if cfg.Pricing.EstimatorURL == "" {
		log.Info("pricing_local", "No price estimator configured, using the seat fare table")
		return pricing.NewSeatFareTable()
	}
	log.WithFields(logger.LogFields{"url": cfg.Pricing.EstimatorURL}).Info("pricing_remote", "Using the price estimation service")
	return pricing.NewHTTPOracle(cfg.Pricing.EstimatorURL, &http.Client{Timeout: cfg.Pricing.Timeout})
}
