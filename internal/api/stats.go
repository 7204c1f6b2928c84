package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/stats"
)

// StatsHandler serves the /stats endpoints: the dashboard, table counts,
// audit summaries and API traffic.
type StatsHandler struct {
	stats *stats.Service
	log   *zap.Logger
}

// NewStatsHandler builds the stats handler.
func NewStatsHandler(statsSvc *stats.Service, log *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: statsSvc, log: log}
}

// Dashboard handles GET /stats/dashboard.
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.stats.Dashboard(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, dashboard)
}

// Tables handles GET /stats/tables: row counts per table.
func (h *StatsHandler) Tables(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.TableCounts(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, counts)
}

// Activity handles GET /stats/activity/users?days=N: per-user audit summary.
func (h *StatsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 7)
	rows, err := h.stats.ActivityByUser(r.Context(), days)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if rows == nil {
		rows = []stats.UserActivity{}
	}
	JSON(w, http.StatusOK, map[string]any{"days": days, "utilisateurs": rows})
}

// API handles GET /stats/api?days=N: traffic summary from the request log.
func (h *StatsHandler) API(w http.ResponseWriter, r *http.Request) {
	out, err := h.stats.API(r.Context(), intQuery(r, "days", 7))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, out)
}

// Recent handles GET /stats/activity/recent?limit=&username=&action_type=.
func (h *StatsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.stats.RecentActivity(r.Context(),
		intQuery(r, "limit", 50),
		strings.ToUpper(q.Get("username")),
		q.Get("action_type"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []db.ActivityLog{}
	}
	JSON(w, http.StatusOK, entries)
}

// ForUser handles GET /stats/users/{username}: one user's audit summary.
func (h *StatsHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	username := strings.ToUpper(chi.URLParam(r, "username"))
	out, err := h.stats.ForUser(r.Context(), username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, out)
}

// intQuery parses a positive integer query parameter, falling back to a
// default when absent or malformed.
func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
