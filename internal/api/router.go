// Package api is the HTTP layer: routing, authentication middleware,
// request/response shapes and the audit + push fan-out pipeline.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/backup"
	"github.com/planhub-io/planhub/internal/repository"
	"github.com/planhub-io/planhub/internal/stats"
	"github.com/planhub-io/planhub/internal/websocket"
)

// RouterConfig carries everything the HTTP layer depends on.
type RouterConfig struct {
	Logger *zap.Logger
	DB     *gorm.DB

	Missions   *repository.MissionRepository
	Voyages    *repository.VoyageRepository
	Chauffeurs *repository.ChauffeurRepository
	SSTs       *repository.SSTRepository
	Finance    *repository.FinanceRepository
	Users      *repository.UserRepository
	Sessions   *repository.SessionRepository
	Activity   *repository.ActivityRepository
	Requests   *repository.RequestLogRepository

	Auth    *auth.Service
	Hub     *websocket.Hub
	Backups *backup.Service
	Stats   *stats.Service

	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer

	// Version and Started feed /health and /server-info.
	Version string
	Started time.Time

	// AdminConfig is the sanitized runtime configuration shown on
	// GET /admin/config.
	AdminConfig map[string]any
}

// NewRouter builds the chi router with the full route table. Capability
// guards sit per route group; /health, /server-info, /metrics and /ws stay
// public (the WebSocket carries its token in the query string).
func NewRouter(cfg RouterConfig) chi.Router {
	log := cfg.Logger.Named("http")

	pipe := &pipeline{activity: cfg.Activity, hub: cfg.Hub, log: log}

	authH := NewAuthHandler(cfg.Auth, cfg.Hub, log)
	missionH := NewMissionHandler(cfg.Missions, cfg.Voyages, cfg.Chauffeurs, cfg.SSTs, pipe, log)
	voyageH := NewVoyageHandler(cfg.Voyages, pipe, log)
	chauffeurH := NewChauffeurHandler(cfg.Chauffeurs, pipe, log)
	sstH := NewSSTHandler(cfg.SSTs, pipe, log)
	financeH := NewFinanceHandler(cfg.Finance, pipe, log)
	statsH := NewStatsHandler(cfg.Stats, log)
	adminH := NewAdminHandler(cfg.Users, cfg.Sessions, cfg.Activity, cfg.Requests,
		cfg.Auth, cfg.Backups, cfg.Hub, pipe, cfg.AdminConfig, log)
	wsH := NewWSHandler(cfg.Auth, cfg.Hub, log)
	healthH := NewHealthHandler(cfg.DB, cfg.Version, cfg.Started, log)

	metrics := NewMetrics(cfg.Registry, func() int {
		clients, _ := cfg.Hub.Counts()
		return clients
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(log, cfg.Requests))

	// Public surface.
	r.Get("/health", healthH.Health)
	r.Get("/server-info", healthH.ServerInfo)
	r.Method("GET", "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", wsH.Connect)
	r.Post("/auth/login", authH.Login)

	// Everything below requires a valid token.
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth, log))

		r.Post("/auth/logout", authH.Logout)
		r.Post("/auth/refresh", authH.Refresh)
		r.Get("/auth/me", authH.Me)
		r.Post("/auth/change-password", authH.ChangePassword)

		r.Get("/ws/status", wsH.Status)

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapViewPlanning))
			r.Get("/missions", missionH.List)
			r.Get("/missions/by-date/{date}", missionH.ByDate)
			r.Get("/missions/uuid/{uuid}", missionH.GetByUUID)
			r.Get("/missions/{id}", missionH.Get)
			r.Get("/voyages", voyageH.List)
			r.Get("/voyages/code/{code}", voyageH.GetByCode)
			r.Get("/voyages/{id}", voyageH.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapEditPlanning))
			r.Post("/missions", missionH.Create)
			r.Post("/missions/bulk", missionH.BulkCreate)
			r.Put("/missions/{id}", missionH.Update)
			r.Delete("/missions/{id}", missionH.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapManageVoyages))
			r.Post("/voyages", voyageH.Create)
			r.Put("/voyages/{id}", voyageH.Update)
			r.Delete("/voyages/{id}", voyageH.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapViewDrivers))
			r.Get("/chauffeurs", chauffeurH.List)
			r.Get("/chauffeurs/code/{code}", chauffeurH.GetByCode)
			r.Get("/chauffeurs/disponibles/{date}", chauffeurH.Availability)
			r.Get("/chauffeurs/{id}", chauffeurH.Get)
			r.Get("/chauffeurs/{id}/disponibilites", chauffeurH.ListDispos)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapManageDrivers))
			r.Post("/chauffeurs", chauffeurH.Create)
			r.Put("/chauffeurs/{id}", chauffeurH.Update)
			r.Delete("/chauffeurs/{id}", chauffeurH.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapEditDriverPlanning))
			r.Post("/chauffeurs/disponibilites", chauffeurH.CreateDispo)
			r.Delete("/chauffeurs/disponibilites/{id}", chauffeurH.DeleteDispo)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapViewFinance))
			r.Get("/sst", sstH.List)
			r.Get("/sst/code/{code}", sstH.GetByCode)
			r.Get("/sst/tarifs/all", sstH.ListAllTarifs)
			r.Get("/sst/{id}", sstH.Get)
			r.Get("/sst/{id}/tarifs", sstH.ListTarifs)
			r.Get("/sst/{id}/emails", sstH.ListEmails)
			r.Get("/finance/revenus", financeH.ListRevenus)
			r.Get("/finance/revenus/destination/{destination}", financeH.GetRevenuByDestination)
			r.Get("/finance/revenus/{id}", financeH.GetRevenu)
			r.Get("/finance/stats", financeH.Stats)
			r.Get("/finance/stats/mensuel", financeH.Monthly)
			r.Get("/finance/stats/annuel", financeH.Yearly)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapManageFinance))
			r.Post("/sst", sstH.Create)
			r.Put("/sst/{id}", sstH.Update)
			r.Delete("/sst/{id}", sstH.Delete)
			r.Post("/sst/{id}/tarifs", sstH.CreateTarif)
			r.Put("/sst/tarifs/{id}", sstH.UpdateTarif)
			r.Delete("/sst/tarifs/{id}", sstH.DeleteTarif)
			r.Post("/sst/{id}/emails", sstH.CreateEmail)
			r.Delete("/sst/emails/{id}", sstH.DeleteEmail)
			r.Post("/finance/revenus", financeH.CreateRevenu)
			r.Put("/finance/revenus/{id}", financeH.UpdateRevenu)
			r.Delete("/finance/revenus/{id}", financeH.DeleteRevenu)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapViewAnalyse))
			r.Get("/stats/dashboard", statsH.Dashboard)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapViewSauron))
			r.Get("/stats/activity/users", statsH.Activity)
			r.Get("/stats/activity/recent", statsH.Recent)
			r.Get("/stats/users/{username}", statsH.ForUser)
			r.Get("/admin/sessions", adminH.ListSessions)
			r.Get("/admin/logs", adminH.ActivityLogs)
			r.Get("/admin/logs/requests", adminH.RequestLogs)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapManageRights))
			r.Get("/admin/users", adminH.ListUsers)
			r.Post("/admin/users", adminH.CreateUser)
			r.Put("/admin/users/{id}", adminH.UpdateUser)
			r.Delete("/admin/users/{id}", adminH.DeactivateUser)
			r.Post("/admin/users/{id}/reset-password", adminH.ResetPassword)
			r.Get("/admin/roles", adminH.ListRoles)
			r.Put("/admin/roles/{id}", adminH.UpdateRole)
			r.Post("/admin/sessions/disconnect/{username}", adminH.DisconnectUser)
			r.Post("/admin/sessions/{sid}/kick", adminH.KickSession)
			r.Post("/admin/sessions/kick-all", adminH.KickAll)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.CapAdminAccess))
			r.Get("/stats/tables", statsH.Tables)
			r.Get("/stats/api", statsH.API)
			r.Get("/admin/config", adminH.Config)
			r.Get("/admin/backups", adminH.ListBackups)
			r.Post("/admin/backups", adminH.CreateBackup)
			r.Delete("/admin/backups/{filename}", adminH.DeleteBackup)
			r.Post("/admin/backups/cleanup", adminH.CleanupBackups)

			// Restoring overwrites the live database. System admin only.
			r.Group(func(r chi.Router) {
				r.Use(RequireSystemAdmin)
				r.Post("/admin/backups/restore/{filename}", adminH.RestoreBackup)
			})
		})
	})

	return r
}
