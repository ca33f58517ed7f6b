package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emmatufvesson/relAI/internal/audio"
	"github.com/emmatufvesson/relAI/internal/config"
	"github.com/emmatufvesson/relAI/internal/homeassistant"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := cfg.NewLogger("audio")

	if err := cfg.ValidateAudio(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := cfg.Audio
	var publisher audio.Publisher
	if cfg.Dashboard.SetURL != "" {
		publisher = audio.NewDashboardSink(cfg.Dashboard.SetURL, a.Timeout)
		log.Info("publishing audio levels to dashboard", "url", cfg.Dashboard.SetURL)
	} else {
		ha, err := homeassistant.New(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, a.Timeout)
		if err != nil {
			log.Error("failed to create Home Assistant client", "error", err)
			os.Exit(2)
		}
		publisher = &audio.HomeAssistantSink{
			Client:  ha,
			EntityA: cfg.HomeAssistant.Entities.VoiceA,
			EntityB: cfg.HomeAssistant.Entities.VoiceB,
		}
		log.Info("publishing audio levels to Home Assistant",
			"url", cfg.HomeAssistant.URL,
			"entity_a", cfg.HomeAssistant.Entities.VoiceA,
			"entity_b", cfg.HomeAssistant.Entities.VoiceB)
	}

	recorder := &audio.ALSA{
		FFmpegPath:   cfg.Capture.FFmpegPath,
		Device:       a.Device,
		SampleRate:   a.SampleRate,
		Channels:     a.Channels,
		ChunkSeconds: a.ChunkSeconds,
	}
	log.Info("audio loop starting", "alsa_device", a.Device, "chunk_s", a.ChunkSeconds)

	loop := audio.NewLoop(recorder, publisher, audio.LoopSettings{
		DBFSFloor:     a.DBFSFloor,
		DBFSCeil:      a.DBFSCeil,
		EMAAlpha:      a.EMAAlpha,
		BaselineAlpha: a.BaselineAlpha,
		PrintEvery:    a.PrintEvery,
		RecordTimeout: cfg.Capture.Timeout,
	}, log)
	loop.Run(ctx)
}
