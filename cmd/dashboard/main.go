package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmatufvesson/relAI/internal/config"
	"github.com/emmatufvesson/relAI/internal/dashboard"
	"github.com/emmatufvesson/relAI/internal/database"
	"github.com/emmatufvesson/relAI/internal/kafka"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := cfg.NewLogger("dashboard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store dashboard.CycleStore
	if cfg.Postgres.DSN != "" {
		db, err := database.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			log.Error("failed to init cycle history", "error", err)
			os.Exit(1)
		}
		store = db
	}

	handlers := dashboard.NewHandlers(store)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.SnapshotTopic)
		if err != nil {
			log.Error("failed to create Kafka consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		consumer.StartListening(ctx)
		go handlers.Watch(ctx, consumer.Snapshots())
	}

	srv := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting dashboard server", "addr", cfg.Dashboard.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("dashboard server failed", "error", err)
		os.Exit(1)
	}
}
