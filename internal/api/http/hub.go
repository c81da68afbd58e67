package http

import (
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-jupyter/internal/availability"
)

// GET /hub/status[?url=...]
// Probes the configured hub, or the given URL when a teacher is checking a
// candidate setting.
func HubStatusHandler(c *availability.Checker, hubURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := hubURL
		if u := r.URL.Query().Get("url"); u != "" {
			target = u
		}
		if target == "" {
			http.Error(w, "no hub url configured", http.StatusBadRequest)
			return
		}
		v := c.CheckReachable(r.Context(), target)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"url": target, "status": string(v)})
	}
}
