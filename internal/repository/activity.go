package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// ActivityFilter narrows audit trail queries.
type ActivityFilter struct {
	Username   string
	ActionType string
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
	Offset     int
}

// ActivityRepository is the append-only audit trail. Entries are never
// updated or deleted by the application; retention is a scheduler concern.
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository returns an ActivityRepository backed by the provided *gorm.DB.
func NewActivityRepository(database *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: database}
}

// Append writes one audit entry.
func (r *ActivityRepository) Append(ctx context.Context, entry *db.ActivityLog) error {
	return translate("activity: append", r.db.WithContext(ctx).Create(entry).Error)
}

// Query returns matching entries newest first plus the total count before
// pagination. Username matching is case-insensitive on the normalized form.
func (r *ActivityRepository) Query(ctx context.Context, f ActivityFilter) ([]db.ActivityLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&db.ActivityLog{})
	if f.Username != "" {
		q = q.Where("username = ?", strings.ToUpper(f.Username))
	}
	if f.ActionType != "" {
		q = q.Where("action_type = ?", f.ActionType)
	}
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at <= ?", *f.DateTo)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("activity: count", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var entries []db.ActivityLog
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&entries).Error
	if err != nil {
		return nil, 0, translate("activity: query", err)
	}
	return entries, total, nil
}

// Recent returns the latest n entries across all users.
func (r *ActivityRepository) Recent(ctx context.Context, n int) ([]db.ActivityLog, error) {
	if n <= 0 {
		n = 50
	}
	var entries []db.ActivityLog
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&entries).Error
	if err != nil {
		return nil, translate("activity: recent", err)
	}
	return entries, nil
}

// PurgeBefore removes entries older than the cutoff and returns how many
// were removed. Called by the scheduled retention job only.
func (r *ActivityRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&db.ActivityLog{})
	if result.Error != nil {
		return 0, translate("activity: purge", result.Error)
	}
	return result.RowsAffected, nil
}
