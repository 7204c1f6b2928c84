package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// VoyageRepository persists voyage templates.
type VoyageRepository struct {
	db *gorm.DB
}

// NewVoyageRepository returns a VoyageRepository backed by the provided *gorm.DB.
func NewVoyageRepository(database *gorm.DB) *VoyageRepository {
	return &VoyageRepository{db: database}
}

// Create inserts a new voyage. Codes are stored upper-case; a duplicate code
// yields ErrConflict.
func (r *VoyageRepository) Create(ctx context.Context, v *db.Voyage) error {
	v.Code = strings.ToUpper(v.Code)
	return translate("voyages: create", r.db.WithContext(ctx).Create(v).Error)
}

// GetByID retrieves a voyage by its integer id.
func (r *VoyageRepository) GetByID(ctx context.Context, id int64) (*db.Voyage, error) {
	var v db.Voyage
	err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error
	if err != nil {
		return nil, translate("voyages: get by id", err)
	}
	return &v, nil
}

// GetByCode retrieves a voyage by its code, case-insensitively.
func (r *VoyageRepository) GetByCode(ctx context.Context, code string) (*db.Voyage, error) {
	var v db.Voyage
	err := r.db.WithContext(ctx).First(&v, "code = ?", strings.ToUpper(code)).Error
	if err != nil {
		return nil, translate("voyages: get by code", err)
	}
	return &v, nil
}

// List returns voyages ordered by code. With activeOnly, deactivated voyages
// are skipped; a non-empty pays restricts to that destination country.
func (r *VoyageRepository) List(ctx context.Context, activeOnly bool, pays string) ([]db.Voyage, error) {
	q := r.db.WithContext(ctx).Order("code ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if pays != "" {
		q = q.Where("pays = ?", pays)
	}
	var voyages []db.Voyage
	if err := q.Find(&voyages).Error; err != nil {
		return nil, translate("voyages: list", err)
	}
	return voyages, nil
}

// Update persists all fields of an existing voyage.
func (r *VoyageRepository) Update(ctx context.Context, v *db.Voyage) error {
	v.Code = strings.ToUpper(v.Code)
	result := r.db.WithContext(ctx).Save(v)
	if result.Error != nil {
		return translate("voyages: update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a voyage so existing missions keep a valid
// reference.
func (r *VoyageRepository) Deactivate(ctx context.Context, id int64, updatedBy string) error {
	result := r.db.WithContext(ctx).Model(&db.Voyage{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_by": updatedBy})
	if result.Error != nil {
		return translate("voyages: deactivate", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
