package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emmatufvesson/relAI/internal/models"
)

type recordedState struct {
	Entity string
	Auth   string
	Body   statePayload
}

type fakeHA struct {
	mu     sync.Mutex
	states []recordedState
	fail   map[string]int
}

func (f *fakeHA) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/api/states/") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		entity := strings.TrimPrefix(r.URL.Path, "/api/states/")
		if code, ok := f.fail[entity]; ok {
			http.Error(w, "boom", code)
			return
		}

		var p statePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.states = append(f.states, recordedState{Entity: entity, Auth: r.Header.Get("Authorization"), Body: p})
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New("http://ha", "", time.Second); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestSetState(t *testing.T) {
	ha := &fakeHA{}
	srv := httptest.NewServer(ha.handler())
	defer srv.Close()

	c, err := New(srv.URL+"/", "tok", time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := c.SetState(context.Background(), "sensor.x", "42", map[string]any{"unit": "ms"}); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	if len(ha.states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(ha.states))
	}
	got := ha.states[0]
	if got.Entity != "sensor.x" || got.Auth != "Bearer tok" || got.Body.State != "42" || got.Body.Attributes["unit"] != "ms" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestPublishBatchIsolatesFailures(t *testing.T) {
	ha := &fakeHA{fail: map[string]int{"sensor.b": http.StatusInternalServerError}}
	srv := httptest.NewServer(ha.handler())
	defer srv.Close()

	c, _ := New(srv.URL, "tok", time.Second)
	batch := models.PublishBatch{
		Metrics: []models.Metric{
			{EntityID: "sensor.a", State: "1"},
			{EntityID: "sensor.b", State: "2"},
			{EntityID: "sensor.c", State: "3"},
		},
		Attributes: map[string]any{"model": "m"},
	}

	err := c.PublishBatch(context.Background(), batch)
	if err == nil {
		t.Fatal("expected error for sensor.b")
	}
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("expected ErrPublishFailed, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.EntityID != "sensor.b" {
		t.Errorf("expected StatusError for sensor.b, got %v", err)
	}

	if len(ha.states) != 2 {
		t.Fatalf("siblings should still be published, got %d", len(ha.states))
	}
	for _, s := range ha.states {
		if s.Body.Attributes["model"] != "m" {
			t.Errorf("%s missing shared attributes: %v", s.Entity, s.Body.Attributes)
		}
	}
}

func TestPublishBatchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url, "tok", 200*time.Millisecond)
	err := c.PublishBatch(context.Background(), models.PublishBatch{
		Metrics: []models.Metric{{EntityID: "sensor.a", State: "1"}, {EntityID: "sensor.b", State: "2"}},
	})
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "sensor.a") || !strings.Contains(err.Error(), "sensor.b") {
		t.Errorf("both metric failures should be reported: %v", err)
	}
}

func TestBuildVisionBatch(t *testing.T) {
	res := models.AggregationResult{
		TopLabel:    "person",
		TopScore:    0.91234,
		Counts:      map[string]int{"person": 1},
		PersonCount: 1,
		TopDetections: []models.LabeledDetection{
			{Label: "person", Score: 0.91234, BBox: models.BBox{XMax: 10, YMax: 10}},
		},
	}
	inf := &models.InferenceResponse{Model: "m", PreMs: 1, InvokeMs: 2, TotalMs: 3.14159}
	capture := &models.CaptureResult{Device: "/dev/video0", Format: "mjpeg"}
	entities := VisionEntities{TopLabel: "sensor.l", TopScore: "sensor.s", PersonCount: "sensor.p", TotalMs: "sensor.t"}

	batch := BuildVisionBatch(res, inf, capture, 0.4, entities)

	want := map[string]string{"sensor.l": "person", "sensor.s": "0.912", "sensor.p": "1", "sensor.t": "3.14"}
	if len(batch.Metrics) != len(want) {
		t.Fatalf("expected %d metrics, got %d", len(want), len(batch.Metrics))
	}
	for _, m := range batch.Metrics {
		if want[m.EntityID] != m.State {
			t.Errorf("%s = %q, want %q", m.EntityID, m.State, want[m.EntityID])
		}
	}

	a := batch.Attributes
	if a["model"] != "m" || a["video_dev_used"] != "/dev/video0" || a["snap_format_used"] != "mjpeg" || a["min_score"] != 0.4 {
		t.Errorf("unexpected attributes %v", a)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		v    float64
		d    int
		want string
	}{
		{0.9, 3, "0.9"},
		{0, 3, "0.0"},
		{3, 2, "3.0"},
		{2.999, 2, "3.0"},
		{-0.5, 3, "-0.5"},
		{0.12349, 3, "0.123"},
		{12.346, 2, "12.35"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.v, tt.d); got != tt.want {
			t.Errorf("FormatFloat(%v, %d) = %q, want %q", tt.v, tt.d, got, tt.want)
		}
	}
}
