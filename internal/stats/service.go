// Package stats computes the read-only aggregates behind the dashboard and
// the monitoring endpoints. Everything here queries the store and the logs;
// nothing mutates.
package stats

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/backup"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

// Service aggregates over the domain store and the audit/request logs.
type Service struct {
	db       *gorm.DB
	activity *repository.ActivityRepository
	requests *repository.RequestLogRepository
	backups  *backup.Service
}

// NewService wires the stats service.
func NewService(
	database *gorm.DB,
	activity *repository.ActivityRepository,
	requests *repository.RequestLogRepository,
	backups *backup.Service,
) *Service {
	return &Service{db: database, activity: activity, requests: requests, backups: backups}
}

// Dashboard is the landing-page summary.
type Dashboard struct {
	MissionsAujourdhui int64  `json:"missions_aujourdhui"`
	MissionsCreees     int64  `json:"missions_creees_aujourdhui"`
	MissionsModifiees  int64  `json:"missions_modifiees_aujourdhui"`
	VoyagesActifs      int64  `json:"voyages_actifs"`
	ChauffeursActifs   int64  `json:"chauffeurs_actifs"`
	NbUtilisateurs     int64  `json:"nb_utilisateurs"`
	RequetesAPI        int64  `json:"requetes_api_aujourdhui"`
	ErreursAPI         int64  `json:"erreurs_api_aujourdhui"`
	TailleDB           int64  `json:"taille_db"`
	TailleDBFormat     string `json:"taille_db_format"`
}

// Dashboard computes the landing-page numbers for today (UTC).
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	today := db.Today()
	midnight := today.Time

	out := &Dashboard{}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&out.MissionsAujourdhui, s.db.WithContext(ctx).Model(&db.Mission{}).
			Where("date_mission = ?", today)},
		{&out.MissionsCreees, s.db.WithContext(ctx).Model(&db.Mission{}).
			Where("created_at >= ?", midnight)},
		{&out.MissionsModifiees, s.db.WithContext(ctx).Model(&db.Mission{}).
			Where("updated_at >= ? AND created_at < ?", midnight, midnight)},
		{&out.VoyagesActifs, s.db.WithContext(ctx).Model(&db.Voyage{}).
			Where("is_active = ?", true)},
		{&out.ChauffeursActifs, s.db.WithContext(ctx).Model(&db.Chauffeur{}).
			Where("is_active = ?", true)},
		{&out.NbUtilisateurs, s.db.WithContext(ctx).Model(&db.User{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("stats: dashboard: %w", err)
		}
	}

	var err error
	out.RequetesAPI, out.ErreursAPI, err = s.requests.CountSince(ctx, midnight)
	if err != nil {
		return nil, err
	}

	out.TailleDB, err = s.backups.DatabaseSize()
	if err != nil {
		return nil, err
	}
	out.TailleDBFormat = backup.FormatSize(out.TailleDB)

	return out, nil
}

// TableCounts returns the row count of every domain table.
func (s *Service) TableCounts(ctx context.Context) (map[string]int64, error) {
	models := map[string]any{
		"missions":         &db.Mission{},
		"voyages":          &db.Voyage{},
		"chauffeurs":       &db.Chauffeur{},
		"chauffeur_dispo":  &db.ChauffeurDispo{},
		"sst":              &db.SST{},
		"tarifs_sst":       &db.TarifSST{},
		"sst_emails":       &db.SSTEmail{},
		"revenus_palettes": &db.RevenuPalette{},
		"users":            &db.User{},
		"user_roles":       &db.Role{},
		"user_sessions":    &db.Session{},
		"activity_logs":    &db.ActivityLog{},
		"api_request_logs": &db.ApiRequestLog{},
	}

	out := make(map[string]int64, len(models))
	for table, model := range models {
		var n int64
		if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("stats: counting %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// UserActivity is one row of the per-user activity summary.
type UserActivity struct {
	Username     string    `json:"username"`
	Actions      int64     `json:"actions"`
	LastActivity time.Time `json:"last_activity"`
}

// ActivityByUser summarizes audit actions per user over the last N days.
func (s *Service) ActivityByUser(ctx context.Context, days int) ([]UserActivity, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	var rows []UserActivity
	err := s.db.WithContext(ctx).Model(&db.ActivityLog{}).
		Select("username, COUNT(*) AS actions, MAX(created_at) AS last_activity").
		Where("created_at >= ?", since).
		Group("username").
		Order("actions DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("stats: activity by user: %w", err)
	}
	return rows, nil
}

// APIStats is the traffic summary over a window.
type APIStats struct {
	Days               int                     `json:"days"`
	TopPaths           []repository.PathStat   `json:"top_paths"`
	StatusDistribution []repository.StatusStat `json:"status_distribution"`
	AvgResponseMs      float64                 `json:"avg_response_ms"`
}

// API computes the top 20 endpoints, the status distribution and the mean
// response time over the last N days.
func (s *Service) API(ctx context.Context, days int) (*APIStats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	top, err := s.requests.TopPaths(ctx, since, 20)
	if err != nil {
		return nil, err
	}
	dist, err := s.requests.StatusDistribution(ctx, since)
	if err != nil {
		return nil, err
	}
	avg, err := s.requests.AvgResponseTime(ctx, since)
	if err != nil {
		return nil, err
	}
	return &APIStats{Days: days, TopPaths: top, StatusDistribution: dist, AvgResponseMs: avg}, nil
}

// ActionCount is one row of a per-action breakdown.
type ActionCount struct {
	ActionType string `json:"action_type"`
	Count      int64  `json:"count"`
}

// UserStats is the audit summary for one user.
type UserStats struct {
	Username     string        `json:"username"`
	TotalActions int64         `json:"total_actions"`
	ParAction    []ActionCount `json:"par_action"`
	LastActivity *time.Time    `json:"last_activity"`
}

// ForUser summarizes one user's audit trail.
func (s *Service) ForUser(ctx context.Context, username string) (*UserStats, error) {
	out := &UserStats{Username: username}

	err := s.db.WithContext(ctx).Model(&db.ActivityLog{}).
		Where("username = ?", username).
		Count(&out.TotalActions).Error
	if err != nil {
		return nil, fmt.Errorf("stats: user total: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&db.ActivityLog{}).
		Select("action_type, COUNT(*) AS count").
		Where("username = ?", username).
		Group("action_type").
		Order("count DESC").
		Scan(&out.ParAction).Error
	if err != nil {
		return nil, fmt.Errorf("stats: user breakdown: %w", err)
	}

	if out.TotalActions > 0 {
		var last time.Time
		err = s.db.WithContext(ctx).Model(&db.ActivityLog{}).
			Select("MAX(created_at)").
			Where("username = ?", username).
			Scan(&last).Error
		if err != nil {
			return nil, fmt.Errorf("stats: user last activity: %w", err)
		}
		out.LastActivity = &last
	}
	return out, nil
}

// RecentActivity returns the latest audit entries, optionally filtered.
func (s *Service) RecentActivity(ctx context.Context, limit int, username, actionType string) ([]db.ActivityLog, error) {
	if username == "" && actionType == "" {
		return s.activity.Recent(ctx, limit)
	}
	entries, _, err := s.activity.Query(ctx, repository.ActivityFilter{
		Username:   username,
		ActionType: actionType,
		Limit:      limit,
	})
	return entries, err
}
