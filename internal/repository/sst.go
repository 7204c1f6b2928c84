package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// SSTRepository persists subcontractors, their tariffs and contact emails.
type SSTRepository struct {
	db *gorm.DB
}

// NewSSTRepository returns an SSTRepository backed by the provided *gorm.DB.
func NewSSTRepository(database *gorm.DB) *SSTRepository {
	return &SSTRepository{db: database}
}

// Create inserts a new subcontractor. A duplicate code yields ErrConflict.
func (r *SSTRepository) Create(ctx context.Context, s *db.SST) error {
	s.Code = strings.ToUpper(s.Code)
	return translate("sst: create", r.db.WithContext(ctx).Create(s).Error)
}

// GetByID retrieves a subcontractor by its integer id.
func (r *SSTRepository) GetByID(ctx context.Context, id int64) (*db.SST, error) {
	var s db.SST
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, translate("sst: get by id", err)
	}
	return &s, nil
}

// GetByCode retrieves a subcontractor by its code, case-insensitively.
func (r *SSTRepository) GetByCode(ctx context.Context, code string) (*db.SST, error) {
	var s db.SST
	err := r.db.WithContext(ctx).First(&s, "code = ?", strings.ToUpper(code)).Error
	if err != nil {
		return nil, translate("sst: get by code", err)
	}
	return &s, nil
}

// List returns subcontractors ordered by name. With activeOnly, deactivated
// subcontractors are skipped.
func (r *SSTRepository) List(ctx context.Context, activeOnly bool) ([]db.SST, error) {
	q := r.db.WithContext(ctx).Order("nom ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var ssts []db.SST
	if err := q.Find(&ssts).Error; err != nil {
		return nil, translate("sst: list", err)
	}
	return ssts, nil
}

// Update persists all fields of an existing subcontractor.
func (r *SSTRepository) Update(ctx context.Context, s *db.SST) error {
	s.Code = strings.ToUpper(s.Code)
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return translate("sst: update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a subcontractor.
func (r *SSTRepository) Deactivate(ctx context.Context, id int64, updatedBy string) error {
	result := r.db.WithContext(ctx).Model(&db.SST{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_by": updatedBy})
	if result.Error != nil {
		return translate("sst: deactivate", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Tariffs
// -----------------------------------------------------------------------------

// CreateTarif inserts a tariff for a subcontractor.
func (r *SSTRepository) CreateTarif(ctx context.Context, t *db.TarifSST) error {
	return translate("sst: create tarif", r.db.WithContext(ctx).Create(t).Error)
}

// GetTarif retrieves a single tariff.
func (r *SSTRepository) GetTarif(ctx context.Context, id int64) (*db.TarifSST, error) {
	var t db.TarifSST
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		return nil, translate("sst: get tarif", err)
	}
	return &t, nil
}

// ListTarifs returns a subcontractor's tariffs ordered by destination.
func (r *SSTRepository) ListTarifs(ctx context.Context, sstID int64) ([]db.TarifSST, error) {
	var tarifs []db.TarifSST
	err := r.db.WithContext(ctx).
		Where("sst_id = ?", sstID).
		Order("destination ASC").
		Find(&tarifs).Error
	if err != nil {
		return nil, translate("sst: list tarifs", err)
	}
	return tarifs, nil
}

// TarifFilter narrows the cross-subcontractor tariff listing.
type TarifFilter struct {
	// SSTCode keeps only the tariffs of the subcontractor with this code.
	SSTCode string
	// Destination keeps only tariffs whose destination contains the value.
	Destination string
	// ActiveOnly skips deactivated tariffs.
	ActiveOnly bool
}

// ListAllTarifs returns the tariffs across subcontractors matching the
// filter, ordered by subcontractor then destination.
func (r *SSTRepository) ListAllTarifs(ctx context.Context, f TarifFilter) ([]db.TarifSST, error) {
	q := r.db.WithContext(ctx).Model(&db.TarifSST{})
	if f.ActiveOnly {
		q = q.Where("tarifs_sst.is_active = ?", true)
	}
	if f.Destination != "" {
		q = q.Where("tarifs_sst.destination LIKE ?", "%"+f.Destination+"%")
	}
	if f.SSTCode != "" {
		q = q.Joins("JOIN sst ON sst.id = tarifs_sst.sst_id").
			Where("sst.code = ?", strings.ToUpper(f.SSTCode))
	}
	var tarifs []db.TarifSST
	err := q.Order("tarifs_sst.sst_id ASC, tarifs_sst.destination ASC").
		Find(&tarifs).Error
	if err != nil {
		return nil, translate("sst: list all tarifs", err)
	}
	return tarifs, nil
}

// ActiveTarifFor returns the active tariff of a subcontractor for a
// destination whose validity window covers the date, or ErrNotFound.
func (r *SSTRepository) ActiveTarifFor(ctx context.Context, sstID int64, destination string, date db.Date) (*db.TarifSST, error) {
	var t db.TarifSST
	err := r.db.WithContext(ctx).
		Where("sst_id = ? AND destination = ? AND is_active = ?", sstID, destination, true).
		Where("(date_debut IS NULL OR date_debut <= ?)", date).
		Where("(date_fin IS NULL OR date_fin >= ?)", date).
		Order("date_debut DESC").
		First(&t).Error
	if err != nil {
		return nil, translate("sst: active tarif", err)
	}
	return &t, nil
}

// UpdateTarif persists all fields of an existing tariff.
func (r *SSTRepository) UpdateTarif(ctx context.Context, t *db.TarifSST) error {
	result := r.db.WithContext(ctx).Save(t)
	if result.Error != nil {
		return translate("sst: update tarif", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTarif removes a tariff.
func (r *SSTRepository) DeleteTarif(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&db.TarifSST{}, "id = ?", id)
	if result.Error != nil {
		return translate("sst: delete tarif", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Contact emails
// -----------------------------------------------------------------------------

// CreateEmail attaches a contact address to a subcontractor. When the new
// address is primary, any previous primary is demoted in the same
// transaction.
func (r *SSTRepository) CreateEmail(ctx context.Context, e *db.SSTEmail) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.IsPrimary {
			if err := tx.Model(&db.SSTEmail{}).
				Where("sst_id = ?", e.SSTID).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(e).Error
	})
	return translate("sst: create email", err)
}

// ListEmails returns a subcontractor's contact addresses, primary first.
func (r *SSTRepository) ListEmails(ctx context.Context, sstID int64) ([]db.SSTEmail, error) {
	var emails []db.SSTEmail
	err := r.db.WithContext(ctx).
		Where("sst_id = ?", sstID).
		Order("is_primary DESC, email ASC").
		Find(&emails).Error
	if err != nil {
		return nil, translate("sst: list emails", err)
	}
	return emails, nil
}

// DeleteEmail removes a contact address.
func (r *SSTRepository) DeleteEmail(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&db.SSTEmail{}, "id = ?", id)
	if result.Error != nil {
		return translate("sst: delete email", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
