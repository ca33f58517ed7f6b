package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/emmatufvesson/relAI/internal/aggregate"
	"github.com/emmatufvesson/relAI/internal/capture"
	"github.com/emmatufvesson/relAI/internal/homeassistant"
	"github.com/emmatufvesson/relAI/internal/models"
)

// sinkTimeout bounds each secondary sink write
const sinkTimeout = 10 * time.Second

type Capturer interface {
	Negotiate(ctx context.Context, req capture.Request) (*models.CaptureResult, error)
}

type Inferrer interface {
	Infer(ctx context.Context, path string) (*models.InferenceResponse, error)
}

type Publisher interface {
	PublishBatch(ctx context.Context, batch models.PublishBatch) error
}

// Sink receives every cycle report after the state publish, failed cycles included.
// The captured frame is still on disk while Record runs.
type Sink interface {
	Name() string
	Record(ctx context.Context, report *models.CycleReport) error
}

// Settings are the per-cycle parameters of the vision loop
type Settings struct {
	Devices  []string
	Formats  []string
	Width    int
	Height   int
	FPS      int
	MinScore float64
	Interval time.Duration
	Entities homeassistant.VisionEntities
	TempDir  string
}

// Runner drives capture → inference → aggregation → publish on a fixed cadence
type Runner struct {
	capturer  Capturer
	inferrer  Inferrer
	publisher Publisher
	labels    *aggregate.LabelMap
	sinks     []Sink
	settings  Settings
	log       *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(
	capturer Capturer,
	inferrer Inferrer,
	publisher Publisher,
	labels *aggregate.LabelMap,
	settings Settings,
	log *slog.Logger,
	sinks ...Sink,
) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		capturer:  capturer,
		inferrer:  inferrer,
		publisher: publisher,
		labels:    labels,
		sinks:     sinks,
		settings:  settings,
		log:       log,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// NextDelay is how long to wait before the next cycle. A cycle that overran the interval
// is followed immediately by the next one.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

// Run loops until ctx is cancelled. A cycle that has started always runs to completion;
// cancellation is only observed between cycles.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("vision loop starting",
		"interval", r.settings.Interval,
		"devices", r.settings.Devices,
		"formats", formatLabels(r.settings.Formats),
		"min_score", r.settings.MinScore,
		"labels", r.labels.Len(),
		"sinks", len(r.sinks))

	cycleCtx := context.WithoutCancel(ctx)
	for seq := uint64(1); ; seq++ {
		start := r.now()

		report, err := r.RunCycle(cycleCtx, seq)
		elapsed := r.now().Sub(start)
		if err != nil {
			r.log.Error("vision loop error",
				"cycle", seq,
				"stage", report.Stage,
				"elapsed", elapsed,
				"error", err)
		} else {
			r.log.Info("cycle published",
				"cycle", seq,
				"top_label", report.Result.TopLabel,
				"top_score", report.Result.TopScore,
				"person_count", report.Result.PersonCount,
				"device", report.Capture.Device,
				"format", report.Capture.Format,
				"elapsed", elapsed)
		}

		if !r.sleep(ctx, NextDelay(r.settings.Interval, elapsed)) {
			r.log.Info("vision loop shutting down", "cycles", seq)
			return
		}
	}
}

// RunCycle performs one pass. The transient frame file is removed before it returns,
// whichever stage failed.
func (r *Runner) RunCycle(ctx context.Context, seq uint64) (*models.CycleReport, error) {
	report := &models.CycleReport{
		RunID:     uuid.NewString(),
		Seq:       seq,
		StartedAt: r.now(),
		Stage:     models.StageCapture,
	}

	path, release, err := r.acquireFrame()
	if err != nil {
		err = fmt.Errorf("capture: %w", err)
		report.Elapsed = r.now().Sub(report.StartedAt)
		report.Error = err.Error()
		r.record(ctx, report)
		return report, err
	}
	defer release()

	err = r.process(ctx, report, path)
	report.Elapsed = r.now().Sub(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
	}

	r.record(ctx, report)
	return report, err
}

func (r *Runner) process(ctx context.Context, report *models.CycleReport, path string) error {
	s := r.settings

	captured, err := r.capturer.Negotiate(ctx, capture.Request{
		Devices:    s.Devices,
		Formats:    s.Formats,
		Width:      s.Width,
		Height:     s.Height,
		FPS:        s.FPS,
		OutputPath: path,
	})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	report.Capture = captured
	if fi, err := os.Stat(path); err == nil {
		r.log.Debug("frame captured",
			"cycle", report.Seq,
			"device", captured.Device,
			"format", captured.Format,
			"size", humanize.Bytes(uint64(fi.Size())))
	}

	report.Stage = models.StageInference
	inference, err := r.inferrer.Infer(ctx, path)
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	report.Inference = inference

	result := aggregate.Aggregate(inference.Detections, s.MinScore, r.labels)
	report.Result = &result

	report.Stage = models.StagePublish
	batch := homeassistant.BuildVisionBatch(result, inference, captured, s.MinScore, s.Entities)
	report.Batch = &batch

	publishErr := r.publisher.PublishBatch(ctx, batch)
	report.Stage = models.StageDone
	if publishErr != nil {
		return fmt.Errorf("publish: %w", publishErr)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, report *models.CycleReport) {
	for _, sink := range r.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.Record(sinkCtx, report)
		cancel()
		if err != nil {
			r.log.Warn("sink failed",
				"cycle", report.Seq,
				"sink", sink.Name(),
				"error", err)
		}
	}
}

// acquireFrame reserves a temp path for the still and returns its cleanup
func (r *Runner) acquireFrame() (string, func(), error) {
	f, err := os.CreateTemp(r.settings.TempDir, "relai-*.jpg")
	if err != nil {
		return "", nil, fmt.Errorf("create temp frame: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("close temp frame: %w", err)
	}

	release := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("failed to remove frame", "path", path, "error", err)
		}
	}
	return path, release, nil
}

// Close closes every sink that holds a connection
func (r *Runner) Close() error {
	var result *multierror.Error
	for _, sink := range r.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", sink.Name(), err))
			}
		}
	}
	return result.ErrorOrNil()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func formatLabels(formats []string) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		if f == "" {
			f = capture.AutoFormat
		}
		out[i] = f
	}
	return out
}
