package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emmatufvesson/relAI/internal/capture"
)

const captureRetryPause = 500 * time.Millisecond

// Recorder captures one audio chunk into a WAV file
type Recorder interface {
	Record(ctx context.Context, outPath string) error
}

// Publisher receives the smoothed A/B levels of each chunk
type Publisher interface {
	PublishLevels(ctx context.Context, l Levels) error
}

// Levels is the outcome of one chunk
type Levels struct {
	DBFS  float64
	Score float64
	A     float64
	B     float64
}

// ALSA records chunks from an ALSA device with ffmpeg
type ALSA struct {
	FFmpegPath   string
	Device       string
	SampleRate   int
	Channels     int
	ChunkSeconds float64
}

func (a *ALSA) Args(outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "alsa", "-i", a.Device,
		"-t", strconv.FormatFloat(a.ChunkSeconds, 'f', -1, 64),
		"-ac", strconv.Itoa(a.Channels), "-ar", strconv.Itoa(a.SampleRate),
		"-acodec", "pcm_s16le", "-y", outPath,
	}
}

func (a *ALSA) Record(ctx context.Context, outPath string) error {
	bin := a.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	return capture.RunTool(ctx, bin, a.Args(outPath))
}

// LoopSettings are the audio loop tunables
type LoopSettings struct {
	DBFSFloor     float64
	DBFSCeil      float64
	EMAAlpha      float64
	BaselineAlpha float64
	PrintEvery    int
	TempDir       string
	// RecordTimeout bounds one chunk capture, 15s when unset
	RecordTimeout time.Duration
}

// Loop turns audio chunks into A/B voice levels and publishes them
type Loop struct {
	recorder  Recorder
	publisher Publisher
	settings  LoopSettings
	smoother  *Smoother
	log       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewLoop(recorder Recorder, publisher Publisher, settings LoopSettings, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	if settings.RecordTimeout <= 0 {
		settings.RecordTimeout = 15 * time.Second
	}
	return &Loop{
		recorder:  recorder,
		publisher: publisher,
		settings:  settings,
		smoother:  NewSmoother(settings.EMAAlpha, settings.BaselineAlpha),
		log:       log,
		sleep:     sleepContext,
	}
}

// Run records chunks back to back until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	for i := 1; ctx.Err() == nil; i++ {
		levels, err := l.RunCycle(ctx)
		if err != nil {
			l.log.Warn("audio capture failed, retrying", "cycle", i, "error", err)
			if !l.sleep(ctx, captureRetryPause) {
				break
			}
			continue
		}

		if err := l.publisher.PublishLevels(ctx, levels); err != nil {
			l.log.Error("audio publish failed", "cycle", i, "error", err)
		}

		if every := l.settings.PrintEvery; every > 0 && i%every == 0 {
			l.log.Info("audio levels",
				"cycle", i,
				"dbfs", math.Round(levels.DBFS*10)/10,
				"score", round3(levels.Score),
				"a", round3(levels.A),
				"b", round3(levels.B))
		}
	}
	l.log.Info("audio loop shutting down")
}

// RunCycle records and measures one chunk. The chunk's temp directory is removed before
// it returns. The smoother only advances on success.
func (l *Loop) RunCycle(ctx context.Context) (Levels, error) {
	dir, err := os.MkdirTemp(l.settings.TempDir, "relai-audio-*")
	if err != nil {
		return Levels{}, fmt.Errorf("create chunk dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "chunk.wav")
	recCtx, cancel := context.WithTimeout(ctx, l.settings.RecordTimeout)
	err = l.recorder.Record(recCtx, wav)
	cancel()
	if err != nil {
		return Levels{}, fmt.Errorf("record chunk: %w", err)
	}

	db, err := DBFS(wav)
	if err != nil {
		return Levels{}, err
	}

	score := ScoreFromDBFS(db, l.settings.DBFSFloor, l.settings.DBFSCeil)
	a, b := l.smoother.Update(score)
	return Levels{DBFS: db, Score: score, A: a, B: b}, nil
}

// StatePublisher is the part of the Home Assistant client the audio loop uses
type StatePublisher interface {
	SetState(ctx context.Context, entityID, state string, attributes map[string]any) error
}

// HomeAssistantSink writes A and B to two Home Assistant entities
type HomeAssistantSink struct {
	Client  StatePublisher
	EntityA string
	EntityB string
}

func (s *HomeAssistantSink) PublishLevels(ctx context.Context, l Levels) error {
	db := math.Round(l.DBFS*10) / 10

	err := s.Client.SetState(ctx, s.EntityA, fmt.Sprintf("%.3f", l.A), map[string]any{
		"unit_of_measurement": "score",
		"friendly_name":       "Voice A (EMA)",
		"dbfs":                db,
	})
	if err != nil {
		return err
	}
	return s.Client.SetState(ctx, s.EntityB, fmt.Sprintf("%.3f", l.B), map[string]any{
		"unit_of_measurement": "score",
		"friendly_name":       "Voice B (baseline)",
		"dbfs":                db,
	})
}

// DashboardSink pushes A and B to the mini dashboard's /set endpoint
type DashboardSink struct {
	SetURL string
	HTTP   *http.Client
}

func NewDashboardSink(setURL string, timeout time.Duration) *DashboardSink {
	return &DashboardSink{SetURL: setURL, HTTP: &http.Client{Timeout: timeout}}
}

func (s *DashboardSink) PublishLevels(ctx context.Context, l Levels) error {
	u, err := url.Parse(s.SetURL)
	if err != nil {
		return fmt.Errorf("parse dashboard url: %w", err)
	}
	q := u.Query()
	q.Set("A", fmt.Sprintf("%.3f", l.A))
	q.Set("B", fmt.Sprintf("%.3f", l.B))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dashboard send failed: bad status: %s", strings.TrimSpace(resp.Status))
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
