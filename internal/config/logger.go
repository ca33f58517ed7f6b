package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger for the configured level and installs it as the
// slog default. Unknown levels fall back to info.
func (c *Config) NewLogger(service string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		level = slog.LevelInfo
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", service)
	slog.SetDefault(log)
	return log
}
