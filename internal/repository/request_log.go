package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// RequestLogRepository records completed HTTP calls. Writes happen outside
// the domain transaction so a rolled-back mutation still leaves a trace.
type RequestLogRepository struct {
	db *gorm.DB
}

// NewRequestLogRepository returns a RequestLogRepository backed by the provided *gorm.DB.
func NewRequestLogRepository(database *gorm.DB) *RequestLogRepository {
	return &RequestLogRepository{db: database}
}

// Append writes one request record.
func (r *RequestLogRepository) Append(ctx context.Context, entry *db.ApiRequestLog) error {
	return translate("requests: append", r.db.WithContext(ctx).Create(entry).Error)
}

// List returns recent request records, newest first.
func (r *RequestLogRepository) List(ctx context.Context, opts ListOptions) ([]db.ApiRequestLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&db.ApiRequestLog{}).Count(&total).Error; err != nil {
		return nil, 0, translate("requests: count", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	var entries []db.ApiRequestLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(opts.Offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, translate("requests: list", err)
	}
	return entries, total, nil
}

// CountSince returns total requests and error responses since the cutoff.
func (r *RequestLogRepository) CountSince(ctx context.Context, since time.Time) (total, errors int64, err error) {
	if err = r.db.WithContext(ctx).Model(&db.ApiRequestLog{}).
		Where("created_at >= ?", since).
		Count(&total).Error; err != nil {
		return 0, 0, translate("requests: count since", err)
	}
	if err = r.db.WithContext(ctx).Model(&db.ApiRequestLog{}).
		Where("created_at >= ? AND status_code >= 400", since).
		Count(&errors).Error; err != nil {
		return 0, 0, translate("requests: count errors since", err)
	}
	return total, errors, nil
}

// PathStat is one row of the per-endpoint traffic summary.
type PathStat struct {
	Method        string  `json:"method"`
	Path          string  `json:"path"`
	Count         int64   `json:"count"`
	AvgResponseMs float64 `json:"avg_response_ms"`
}

// TopPaths returns the n busiest endpoints since the cutoff.
func (r *RequestLogRepository) TopPaths(ctx context.Context, since time.Time, n int) ([]PathStat, error) {
	if n <= 0 {
		n = 20
	}
	var rows []PathStat
	err := r.db.WithContext(ctx).Model(&db.ApiRequestLog{}).
		Select("method, path, COUNT(*) AS count, COALESCE(AVG(response_time_ms), 0) AS avg_response_ms").
		Where("created_at >= ?", since).
		Group("method, path").
		Order("count DESC").
		Limit(n).
		Scan(&rows).Error
	if err != nil {
		return nil, translate("requests: top paths", err)
	}
	return rows, nil
}

// StatusStat is one row of the status-code distribution.
type StatusStat struct {
	StatusCode int   `json:"status_code"`
	Count      int64 `json:"count"`
}

// StatusDistribution returns counts per status code since the cutoff.
func (r *RequestLogRepository) StatusDistribution(ctx context.Context, since time.Time) ([]StatusStat, error) {
	var rows []StatusStat
	err := r.db.WithContext(ctx).Model(&db.ApiRequestLog{}).
		Select("status_code, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("status_code").
		Order("status_code ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("requests: status distribution", err)
	}
	return rows, nil
}

// AvgResponseTime returns the mean response time in milliseconds since the
// cutoff.
func (r *RequestLogRepository) AvgResponseTime(ctx context.Context, since time.Time) (float64, error) {
	var avg float64
	err := r.db.WithContext(ctx).Model(&db.ApiRequestLog{}).
		Select("COALESCE(AVG(response_time_ms), 0)").
		Where("created_at >= ?", since).
		Scan(&avg).Error
	if err != nil {
		return 0, translate("requests: avg response time", err)
	}
	return avg, nil
}

// PurgeBefore removes request records older than the cutoff.
func (r *RequestLogRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&db.ApiRequestLog{})
	if result.Error != nil {
		return 0, translate("requests: purge", result.Error)
	}
	return result.RowsAffected, nil
}
