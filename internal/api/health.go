package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// HealthHandler serves the unauthenticated liveness and info endpoints.
type HealthHandler struct {
	db      *gorm.DB
	version string
	started time.Time
	log     *zap.Logger
}

// NewHealthHandler builds the health handler. started stamps process start
// and drives the uptime fields.
func NewHealthHandler(database *gorm.DB, version string, started time.Time, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: database, version: version, started: started, log: log}
}

// Health handles GET /health. The database check degrades the status rather
// than failing the endpoint so load balancers still get a parsable body.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	database := "ok"
	code := http.StatusOK
	if err := db.Ping(r.Context(), h.db); err != nil {
		h.log.Error("health check: database unreachable", zap.Error(err))
		status = "degraded"
		database = "unreachable"
		code = http.StatusServiceUnavailable
	}

	uptime := time.Since(h.started)
	JSON(w, code, map[string]any{
		"status":           status,
		"version":          h.version,
		"database":         database,
		"uptime_seconds":   int64(uptime.Seconds()),
		"uptime_formatted": formatUptime(uptime),
		"timestamp":        time.Now().UTC(),
	})
}

// ServerInfo handles GET /server-info: static facts about the process.
func (h *HealthHandler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	JSON(w, http.StatusOK, map[string]any{
		"name":       "planhub-server",
		"version":    h.version,
		"hostname":   hostname,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"started_at": h.started.UTC(),
	})
}

// formatUptime renders a duration as "2j 03h 14m 07s", days omitted when
// zero.
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dj %02dh %02dm %02ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%02dh %02dm %02ds", hours, minutes, seconds)
}
