// Package history exposes recorded training epochs over HTTP.
package history

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	infrahistory "github.com/kilianp07/vrf/infra/history"
)

// Routes returns the handlers keyed by the path they serve.
func Routes(store infrahistory.Store, token string) map[string]http.Handler {
	return map[string]http.Handler{
		"/api/history": NewHandler(store, token),
		"/api/runs":    NewRunsHandler(store, token),
	}
}

// NewHandler returns an HTTP handler exposing epoch records via GET
// /api/history. Supported query parameters are run_id, since (RFC3339) and
// limit. Requests must include an Authorization header with
// "Bearer <token>" when token is non-empty.
func NewHandler(store infrahistory.Store, token string) http.Handler {
	return guard(token, func(w http.ResponseWriter, r *http.Request) {
		q, ok := parseQuery(w, r)
		if !ok {
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []infrahistory.Record{}
		}
		writeJSON(w, records)
	})
}

// RunSummary aggregates the recorded epochs of one run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Epochs    int       `json:"epochs"`
	LastEpoch int       `json:"last_epoch"`
	BestDev   *float64  `json:"best_dev_loss,omitempty"`
	MeanError *float64  `json:"mean_error,omitempty"`
	Updated   time.Time `json:"updated"`
}

// NewRunsHandler returns an HTTP handler listing one summary per run via
// GET /api/runs, most recently updated first. MeanError is taken from the
// latest evaluated epoch.
func NewRunsHandler(store infrahistory.Store, token string) http.Handler {
	return guard(token, func(w http.ResponseWriter, r *http.Request) {
		q, ok := parseQuery(w, r)
		if !ok {
			return
		}
		limit := q.Limit
		q.Limit = 0
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runs := summarize(records)
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		writeJSON(w, runs)
	})
}

func summarize(records []infrahistory.Record) []RunSummary {
	byRun := map[string]*RunSummary{}
	for _, rec := range records {
		s, ok := byRun[rec.RunID]
		if !ok {
			s = &RunSummary{RunID: rec.RunID, LastEpoch: -1}
			byRun[rec.RunID] = s
		}
		s.Epochs++
		if rec.Epoch >= s.LastEpoch {
			s.LastEpoch = rec.Epoch
			s.Updated = rec.Time
			if rec.MeanError != nil {
				v := *rec.MeanError
				s.MeanError = &v
			}
		}
		if rec.Best != nil && (s.BestDev == nil || *rec.Best < *s.BestDev) {
			v := *rec.Best
			s.BestDev = &v
		}
	}
	out := make([]RunSummary, 0, len(byRun))
	for _, s := range byRun {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Updated.Equal(out[j].Updated) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].Updated.After(out[j].Updated)
	})
	return out
}

func guard(token string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func parseQuery(w http.ResponseWriter, r *http.Request) (infrahistory.Query, bool) {
	q := infrahistory.Query{RunID: r.URL.Query().Get("run_id")}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "since: "+err.Error(), http.StatusBadRequest)
			return q, false
		}
		q.Since = t
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return q, false
		}
		q.Limit = n
	}
	return q, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
