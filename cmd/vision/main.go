package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmatufvesson/relAI/internal/aggregate"
	"github.com/emmatufvesson/relAI/internal/capture"
	"github.com/emmatufvesson/relAI/internal/config"
	"github.com/emmatufvesson/relAI/internal/database"
	"github.com/emmatufvesson/relAI/internal/homeassistant"
	"github.com/emmatufvesson/relAI/internal/kafka"
	"github.com/emmatufvesson/relAI/internal/mqtt"
	"github.com/emmatufvesson/relAI/internal/runner"
	"github.com/emmatufvesson/relAI/internal/s3"
	"github.com/emmatufvesson/relAI/internal/services/detection"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := cfg.NewLogger("vision")

	if err := cfg.ValidateVision(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ha, err := homeassistant.New(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, cfg.HomeAssistant.Timeout)
	if err != nil {
		log.Error("failed to create Home Assistant client", "error", err)
		os.Exit(2)
	}

	labels := aggregate.LoadLabels(cfg.Vision.LabelsPath)
	if cfg.Vision.LabelsPath != "" && labels.Len() == 0 {
		log.Warn("no labels loaded, using id_<n> names", "path", cfg.Vision.LabelsPath)
	}

	detector := detection.NewClient(cfg.Vision.URL, cfg.Vision.Timeout)
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if h, err := detector.Health(probeCtx); err != nil {
		log.Warn("inference server health check failed", "url", cfg.Vision.URL, "error", err)
	} else {
		log.Info("inference server ready", "url", cfg.Vision.URL, "model", h.Model)
	}
	cancel()

	sinks := openSinks(ctx, cfg, log)

	entities := cfg.HomeAssistant.Entities
	r := runner.New(
		capture.NewNegotiator(capture.NewFFmpeg(cfg.Capture.FFmpegPath), cfg.Capture.Timeout, log),
		detector,
		ha,
		labels,
		runner.Settings{
			Devices:  cfg.Capture.Devices,
			Formats:  capture.FormatHints(cfg.Capture.InputFormat),
			Width:    cfg.Capture.Width,
			Height:   cfg.Capture.Height,
			FPS:      cfg.Capture.FPS,
			MinScore: cfg.Vision.MinScore,
			Interval: cfg.Interval(),
			Entities: homeassistant.VisionEntities{
				TopLabel:    entities.TopLabel,
				TopScore:    entities.TopScore,
				PersonCount: entities.PersonCount,
				TotalMs:     entities.TotalMs,
			},
		},
		log,
		sinks...,
	)

	r.Run(ctx)

	if err := r.Close(); err != nil {
		log.Warn("failed to close sinks", "error", err)
	}
}

// openSinks connects every optional sink that is configured. A sink that cannot be
// reached at startup is skipped.
func openSinks(ctx context.Context, cfg *config.Config, log *slog.Logger) []runner.Sink {
	var sinks []runner.Sink

	if len(cfg.Kafka.Brokers) > 0 {
		// snapshots from one host stay ordered on one partition
		host, _ := os.Hostname()
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SnapshotTopic, host)
		if err != nil {
			log.Warn("kafka snapshots disabled", "error", err)
		} else {
			sinks = append(sinks, producer)
		}
	}

	if cfg.MQTT.Broker != "" {
		mirror, err := mqtt.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			log.Warn("mqtt mirror disabled", "error", err)
		} else {
			sinks = append(sinks, mirror)
		}
	}

	if cfg.Minio.Endpoint != "" {
		archive, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.Secure)
		if err == nil {
			err = archive.EnsureBucket(ctx)
		}
		if err != nil {
			log.Warn("frame archive disabled", "error", err)
		} else {
			sinks = append(sinks, archive)
		}
	}

	if cfg.Postgres.DSN != "" {
		db, err := database.New(ctx, cfg.Postgres.DSN)
		if err == nil {
			if err = db.Init(ctx); err != nil {
				_ = db.Close()
			}
		}
		if err != nil {
			log.Warn("cycle history disabled", "error", err)
		} else {
			sinks = append(sinks, db)
		}
	}

	return sinks
}
