package dashboard

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"state": h.currentState(),
	})
}

// SetHandler stores A and B from the query string. Missing values count as 0.
func (h *Handlers) SetHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	a, err := queryFloat(q.Get("A"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid A: %v", err), http.StatusBadRequest)
		return
	}
	b, err := queryFloat(q.Get("B"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid B: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.state = State{A: a, B: b}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"state": State{A: a, B: b},
	})
}

func queryFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}
