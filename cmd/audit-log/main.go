package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ride-share/internal/audit-log/consumer"
	"ride-share/pkg/config"
	"ride-share/pkg/logger"
	"ride-share/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New("audit-log", os.Stdout, logger.ParseLevel(cfg.LogLevel))
	log.Info("service_starting", "Audit log starting")

	rabbit, err := rabbitmq.NewConnection(cfg, log)
	if err != nil {
		log.Error("rabbitmq_connect_failed", err)
		os.Exit(1)
	}
	defer rabbit.Close()

	if err := consumer.New(rabbit, log).StartConsuming(); err != nil {
		log.Error("consumer_start_failed", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("service_stopped", "Audit log stopped")
}
