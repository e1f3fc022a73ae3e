package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the monitor's aggregated status as JSON. Unhealthy systems
// answer 503 so load balancers and probes can act on the status code alone.
func Handler(mon *Monitor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := mon.Check()

		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
