package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmatufvesson/relAI/internal/models"
)

// AutoFormat is the label reported when the tool picked the input format itself
const AutoFormat = "auto"

var ErrCaptureExhausted = errors.New("could not grab frame")

// ExhaustedError is returned when every device/format combination failed
type ExhaustedError struct {
	Attempts  int
	LastError string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts. Last error: %s", ErrCaptureExhausted, e.Attempts, e.LastError)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrCaptureExhausted
}

// Request describes one still capture. An empty entry in Formats lets the tool
// auto-select the input format.
type Request struct {
	Devices    []string
	Formats    []string
	Width      int
	Height     int
	FPS        int
	OutputPath string
}

// Attempt is a single device/format combination handed to the Tool
type Attempt struct {
	Device     string
	Format     string
	Width      int
	Height     int
	FPS        int
	OutputPath string
}

// Tool grabs one still frame. A returned error's text is treated as the diagnostic.
type Tool interface {
	Snap(ctx context.Context, a Attempt) error
}

type Negotiator struct {
	tool    Tool
	timeout time.Duration
	log     *slog.Logger
}

// NewNegotiator wraps tool. Each attempt is bounded by timeout when it is positive.
func NewNegotiator(tool Tool, timeout time.Duration, log *slog.Logger) *Negotiator {
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{tool: tool, timeout: timeout, log: log}
}

// FormatHints returns the input formats to try: a forced format first and then auto, or
// auto first and then mjpeg.
func FormatHints(forced string) []string {
	if forced != "" {
		return []string{forced, ""}
	}
	return []string{"", "mjpeg"}
}

// Negotiate tries devices × formats in row-major order and returns the first success.
// Every failure moves on to the next combination; only the last diagnostic is kept.
func (n *Negotiator) Negotiate(ctx context.Context, req Request) (*models.CaptureResult, error) {
	if len(req.Devices) == 0 || len(req.Formats) == 0 {
		return nil, fmt.Errorf("capture request needs at least one device and one format (devices=%d, formats=%d)",
			len(req.Devices), len(req.Formats))
	}

	var lastErr string
	attempts := 0
	for _, dev := range req.Devices {
		for _, fmtHint := range req.Formats {
			attempts++
			err := n.try(ctx, Attempt{
				Device:     dev,
				Format:     fmtHint,
				Width:      req.Width,
				Height:     req.Height,
				FPS:        req.FPS,
				OutputPath: req.OutputPath,
			})
			if err == nil {
				used := fmtHint
				if used == "" {
					used = AutoFormat
				}
				return &models.CaptureResult{Device: dev, Format: used, Path: req.OutputPath}, nil
			}

			lastErr = err.Error()
			n.log.Debug("capture attempt failed",
				"device", dev,
				"format", formatLabel(fmtHint),
				"kind", Classify(lastErr).String(),
				"error", lastErr)
		}
	}

	return nil, &ExhaustedError{Attempts: attempts, LastError: lastErr}
}

func (n *Negotiator) try(ctx context.Context, a Attempt) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.tool.Snap(ctx, a)
}

func formatLabel(hint string) string {
	if hint == "" {
		return AutoFormat
	}
	return hint
}
