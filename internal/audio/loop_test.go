package audio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeRecorder struct {
	samples []int16
	err     error
	paths   []string
	t       *testing.T
}

func (f *fakeRecorder) Record(_ context.Context, outPath string) error {
	f.paths = append(f.paths, outPath)
	if f.err != nil {
		return f.err
	}
	writeWAV(f.t, outPath, f.samples)
	return nil
}

type fakePublisher struct {
	levels []Levels
	err    error
}

func (f *fakePublisher) PublishLevels(_ context.Context, l Levels) error {
	f.levels = append(f.levels, l)
	return f.err
}

func testSettings(t *testing.T) LoopSettings {
	return LoopSettings{
		DBFSFloor:     -55,
		DBFSCeil:      -15,
		EMAAlpha:      0.25,
		BaselineAlpha: 0.02,
		TempDir:       t.TempDir(),
	}
}

func TestRunCycleRemovesChunkDir(t *testing.T) {
	rec := &fakeRecorder{t: t, samples: []int16{16384, -16384}}
	settings := testSettings(t)
	l := NewLoop(rec, &fakePublisher{}, settings, nil)

	levels, err := l.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if levels.Score <= 0 || levels.A != levels.Score || levels.B != levels.Score {
		t.Errorf("unexpected first levels %+v", levels)
	}

	if _, err := os.Stat(filepath.Dir(rec.paths[0])); !os.IsNotExist(err) {
		t.Errorf("chunk dir should be removed, stat err = %v", err)
	}
	entries, _ := os.ReadDir(settings.TempDir)
	if len(entries) != 0 {
		t.Errorf("temp dir not empty: %d entries", len(entries))
	}
}

func TestRunCycleRecordFailure(t *testing.T) {
	rec := &fakeRecorder{t: t, err: errors.New("Device or resource busy")}
	l := NewLoop(rec, &fakePublisher{}, testSettings(t), nil)

	if _, err := l.RunCycle(context.Background()); err == nil || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("expected record error, got %v", err)
	}
	if _, err := os.Stat(filepath.Dir(rec.paths[0])); !os.IsNotExist(err) {
		t.Errorf("chunk dir should be removed after failure")
	}
}

func TestRunPausesAfterCaptureFailureAndKeepsPublishing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fakeRecorder{t: t, err: errors.New("no device")}
	pub := &fakePublisher{err: errors.New("dashboard down")}
	l := NewLoop(rec, pub, testSettings(t), nil)

	var pauses []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) bool {
		pauses = append(pauses, d)
		rec.err = nil
		rec.samples = []int16{100, -100}
		return true
	}
	calls := 0
	l.publisher = publisherFunc(func(ctx context.Context, lv Levels) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return pub.PublishLevels(ctx, lv)
	})

	l.Run(ctx)

	if len(pauses) != 1 || pauses[0] != captureRetryPause {
		t.Errorf("expected one %v pause, got %v", captureRetryPause, pauses)
	}
	if len(pub.levels) != 2 {
		t.Errorf("publish failures must not stop the loop, got %d publishes", len(pub.levels))
	}
}

type publisherFunc func(ctx context.Context, l Levels) error

func (f publisherFunc) PublishLevels(ctx context.Context, l Levels) error { return f(ctx, l) }

type recordedState struct {
	entity, state string
	attrs         map[string]any
}

type fakeStates struct {
	states []recordedState
}

func (f *fakeStates) SetState(_ context.Context, entityID, state string, attrs map[string]any) error {
	f.states = append(f.states, recordedState{entityID, state, attrs})
	return nil
}

func TestHomeAssistantSink(t *testing.T) {
	states := &fakeStates{}
	s := &HomeAssistantSink{Client: states, EntityA: "sensor.voice_a", EntityB: "sensor.voice_b"}

	if err := s.PublishLevels(context.Background(), Levels{DBFS: -33.26, A: 0.5, B: 0.12345}); err != nil {
		t.Fatalf("PublishLevels failed: %v", err)
	}
	if len(states.states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states.states))
	}
	a, b := states.states[0], states.states[1]
	if a.entity != "sensor.voice_a" || a.state != "0.500" || a.attrs["friendly_name"] != "Voice A (EMA)" {
		t.Errorf("unexpected A state %+v", a)
	}
	if b.entity != "sensor.voice_b" || b.state != "0.123" || b.attrs["dbfs"] != -33.3 {
		t.Errorf("unexpected B state %+v", b)
	}
}

func TestDashboardSink(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = fmt.Sprintf("%s A=%s B=%s", r.URL.Path, r.URL.Query().Get("A"), r.URL.Query().Get("B"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewDashboardSink(srv.URL+"/set", time.Second)
	if err := s.PublishLevels(context.Background(), Levels{A: 0.25, B: 1}); err != nil {
		t.Fatalf("PublishLevels failed: %v", err)
	}
	if got != "/set A=0.250 B=1.000" {
		t.Errorf("unexpected request %q", got)
	}
}

func TestDashboardSinkBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewDashboardSink(srv.URL+"/set", time.Second)
	if err := s.PublishLevels(context.Background(), Levels{}); err == nil {
		t.Error("expected error for 502")
	}
}

func TestALSAArgs(t *testing.T) {
	a := &ALSA{Device: "plughw:0,0", SampleRate: 48000, Channels: 2, ChunkSeconds: 1}
	got := strings.Join(a.Args("/tmp/x/chunk.wav"), " ")
	want := "-hide_banner -loglevel error -f alsa -i plughw:0,0 -t 1 -ac 2 -ar 48000 -acodec pcm_s16le -y /tmp/x/chunk.wav"
	if got != want {
		t.Errorf("args = %q\nwant   %q", got, want)
	}
}
