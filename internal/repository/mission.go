package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// MissionFilter narrows list queries. Zero values mean "no constraint".
type MissionFilter struct {
	DateFrom    *db.Date
	DateTo      *db.Date
	VoyageID    *int64
	ChauffeurID *int64
	SSTID       *int64
	Statut      string
	TypeMission string
	Limit       int
	Offset      int
}

// MissionRepository persists missions.
type MissionRepository struct {
	db *gorm.DB
}

// NewMissionRepository returns a MissionRepository backed by the provided *gorm.DB.
func NewMissionRepository(database *gorm.DB) *MissionRepository {
	return &MissionRepository{db: database}
}

// Create inserts a new mission.
func (r *MissionRepository) Create(ctx context.Context, m *db.Mission) error {
	return translate("missions: create", r.db.WithContext(ctx).Create(m).Error)
}

// CreateBulk inserts several missions in one transaction. All or nothing.
func (r *MissionRepository) CreateBulk(ctx context.Context, missions []*db.Mission) error {
	if len(missions) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range missions {
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate("missions: bulk create", err)
}

// GetByID retrieves a mission by its integer id.
func (r *MissionRepository) GetByID(ctx context.Context, id int64) (*db.Mission, error) {
	var m db.Mission
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		return nil, translate("missions: get by id", err)
	}
	return &m, nil
}

// GetByUUID retrieves a mission by its opaque handle.
func (r *MissionRepository) GetByUUID(ctx context.Context, handle string) (*db.Mission, error) {
	var m db.Mission
	err := r.db.WithContext(ctx).First(&m, "uuid = ?", handle).Error
	if err != nil {
		return nil, translate("missions: get by uuid", err)
	}
	return &m, nil
}

// List returns the missions matching the filter, ordered by date descending
// then start time ascending with missing start times last, plus the total
// count before pagination.
func (r *MissionRepository) List(ctx context.Context, f MissionFilter) ([]db.Mission, int64, error) {
	q := r.db.WithContext(ctx).Model(&db.Mission{})
	q = applyMissionFilter(q, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("missions: list count", err)
	}

	var missions []db.Mission
	q = q.Order("date_mission DESC").
		Order("CASE WHEN heure_debut = '' THEN 1 ELSE 0 END").
		Order("heure_debut ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Find(&missions).Error; err != nil {
		return nil, 0, translate("missions: list", err)
	}
	return missions, total, nil
}

// ByDate returns all missions planned on a single date, start time ascending
// with missing start times last.
func (r *MissionRepository) ByDate(ctx context.Context, date db.Date) ([]db.Mission, error) {
	var missions []db.Mission
	err := r.db.WithContext(ctx).
		Where("date_mission = ?", date).
		Order("CASE WHEN heure_debut = '' THEN 1 ELSE 0 END").
		Order("heure_debut ASC").
		Find(&missions).Error
	if err != nil {
		return nil, translate("missions: by date", err)
	}
	return missions, nil
}

// Update persists all fields of an existing mission.
func (r *MissionRepository) Update(ctx context.Context, m *db.Mission) error {
	result := r.db.WithContext(ctx).Save(m)
	if result.Error != nil {
		return translate("missions: update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete permanently removes a mission.
func (r *MissionRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&db.Mission{}, "id = ?", id)
	if result.Error != nil {
		return translate("missions: delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOnDate returns how many non-cancelled missions reference the given
// chauffeur on a date. Used for the double-booking warning.
func (r *MissionRepository) CountOnDate(ctx context.Context, chauffeurID int64, date db.Date) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Mission{}).
		Where("chauffeur_id = ? AND date_mission = ? AND statut <> ?", chauffeurID, date, db.MissionAnnule).
		Count(&n).Error
	if err != nil {
		return 0, translate("missions: count on date", err)
	}
	return n, nil
}

func applyMissionFilter(q *gorm.DB, f MissionFilter) *gorm.DB {
	if f.DateFrom != nil {
		q = q.Where("date_mission >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("date_mission <= ?", *f.DateTo)
	}
	if f.VoyageID != nil {
		q = q.Where("voyage_id = ?", *f.VoyageID)
	}
	if f.ChauffeurID != nil {
		q = q.Where("chauffeur_id = ?", *f.ChauffeurID)
	}
	if f.SSTID != nil {
		q = q.Where("sst_id = ?", *f.SSTID)
	}
	if f.Statut != "" {
		q = q.Where("statut = ?", f.Statut)
	}
	if f.TypeMission != "" {
		q = q.Where("type_mission = ?", f.TypeMission)
	}
	return q
}
