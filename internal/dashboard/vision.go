package dashboard

import (
	"context"
	"net/http"

	"github.com/emmatufvesson/relAI/internal/models"
)

// Watch keeps the newest vision snapshot until the channel closes or ctx is cancelled.
// Snapshots that arrive out of order never replace a newer one.
func (h *Handlers) Watch(ctx context.Context, snapshots <-chan *models.CycleReport) {
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-snapshots:
			if !ok {
				return
			}
			h.mu.Lock()
			if h.snapshot == nil || !report.StartedAt.Before(h.snapshot.StartedAt) {
				h.snapshot = report
			}
			h.mu.Unlock()
		}
	}
}

func (h *Handlers) GetVisionHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	snapshot := h.snapshot
	h.mu.RUnlock()

	if snapshot == nil {
		http.Error(w, "no vision snapshot yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
