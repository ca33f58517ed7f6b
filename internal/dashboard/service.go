package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/emmatufvesson/relAI/internal/database"
	"github.com/emmatufvesson/relAI/internal/models"
)

// CycleStore is the read side of the cycle history
type CycleStore interface {
	RecentCycles(ctx context.Context, limit int) ([]database.Cycle, error)
}

// State is the pair of audio levels last pushed through /set
type State struct {
	A float64 `json:"A"`
	B float64 `json:"B"`
}

type Handlers struct {
	mu       sync.RWMutex
	state    State
	snapshot *models.CycleReport

	cycles CycleStore
}

// NewHandlers builds the dashboard. cycles may be nil when no history database is configured.
func NewHandlers(cycles CycleStore) *Handlers {
	return &Handlers{cycles: cycles}
}

func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthHandler).Methods("GET")
	r.HandleFunc("/set", h.SetHandler).Methods("GET")
	r.HandleFunc("/vision", h.GetVisionHandler).Methods("GET")
	r.HandleFunc("/cycles", h.GetCyclesHandler).Methods("GET")
	return r
}

func (h *Handlers) currentState() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// writeJSON encodes v before touching the response so an encode failure becomes a 500
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
		http.Error(w, "Encoding error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
