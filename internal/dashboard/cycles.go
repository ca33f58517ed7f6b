package dashboard

import (
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultCycleLimit = 20
	maxCycleLimit     = 500
)

func (h *Handlers) GetCyclesHandler(w http.ResponseWriter, r *http.Request) {
	if h.cycles == nil {
		http.Error(w, "cycle history is not configured", http.StatusNotFound)
		return
	}

	limit := defaultCycleLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxCycleLimit)
	}

	cycles, err := h.cycles.RecentCycles(r.Context(), limit)
	if err != nil {
		slog.Error("failed to load cycles", "error", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}
