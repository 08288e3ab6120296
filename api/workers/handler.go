// Package workers exposes the fleet status projection over HTTP.
package workers

import (
	"encoding/json"
	"net/http"

	"github.com/fleetwise/fleetcore/core/workerstatus"
)

// NewStatusHandler returns an HTTP handler exposing worker status data via
// GET /api/workers/status.
func NewStatusHandler(store workerstatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := workerstatus.Filter{
			StationID:  r.URL.Query().Get("station_id"),
			ZoneID:     r.URL.Query().Get("zone_id"),
			OnlineOnly: r.URL.Query().Get("online") == "true",
		}
		entries := store.List(f)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
