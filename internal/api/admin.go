package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dxywop/cf-clearance-scraper/internal/journal"
	"github.com/dxywop/cf-clearance-scraper/internal/metrics"
)

// Probe reports gateway capacity for the admin endpoints.
type Probe interface {
	Ready() bool
	InFlight() int
	Limit() int
}

// RecentJobs lists the latest journal entries.
type RecentJobs interface {
	Recent(n int) []journal.Entry
}

const defaultRecentJobs = 50

// NewAdminHandler builds the operator router. jobs may be nil.
func NewAdminHandler(probe Probe, jobs RecentJobs, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("admin")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(logger, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		state := "ready"
		if !probe.Ready() {
			status = http.StatusServiceUnavailable
			state = "starting"
		}
		writeJSON(logger, w, status, map[string]any{
			"status":   state,
			"inFlight": probe.InFlight(),
			"limit":    probe.Limit(),
		})
	})
	r.Get("/debug/jobs", func(w http.ResponseWriter, req *http.Request) {
		if jobs == nil {
			writeJSON(logger, w, http.StatusOK, map[string]any{"jobs": []journal.Entry{}})
			return
		}
		n := defaultRecentJobs
		if raw := req.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeJSON(logger, w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			n = parsed
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"jobs": jobs.Recent(n)})
	})
	return r
}
