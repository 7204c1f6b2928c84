package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// ChauffeurRepository persists drivers and their unavailability windows.
type ChauffeurRepository struct {
	db *gorm.DB
}

// NewChauffeurRepository returns a ChauffeurRepository backed by the provided *gorm.DB.
func NewChauffeurRepository(database *gorm.DB) *ChauffeurRepository {
	return &ChauffeurRepository{db: database}
}

// Create inserts a new driver. Codes are stored upper-case; a duplicate code
// yields ErrConflict.
func (r *ChauffeurRepository) Create(ctx context.Context, c *db.Chauffeur) error {
	c.Code = strings.ToUpper(c.Code)
	return translate("chauffeurs: create", r.db.WithContext(ctx).Create(c).Error)
}

// GetByID retrieves a driver by its integer id.
func (r *ChauffeurRepository) GetByID(ctx context.Context, id int64) (*db.Chauffeur, error) {
	var c db.Chauffeur
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate("chauffeurs: get by id", err)
	}
	return &c, nil
}

// GetByCode retrieves a driver by its code, case-insensitively.
func (r *ChauffeurRepository) GetByCode(ctx context.Context, code string) (*db.Chauffeur, error) {
	var c db.Chauffeur
	err := r.db.WithContext(ctx).First(&c, "code = ?", strings.ToUpper(code)).Error
	if err != nil {
		return nil, translate("chauffeurs: get by code", err)
	}
	return &c, nil
}

// List returns drivers ordered by name. With activeOnly, deactivated drivers
// are skipped.
func (r *ChauffeurRepository) List(ctx context.Context, activeOnly bool) ([]db.Chauffeur, error) {
	q := r.db.WithContext(ctx).Order("nom ASC, prenom ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var chauffeurs []db.Chauffeur
	if err := q.Find(&chauffeurs).Error; err != nil {
		return nil, translate("chauffeurs: list", err)
	}
	return chauffeurs, nil
}

// Update persists all fields of an existing driver.
func (r *ChauffeurRepository) Update(ctx context.Context, c *db.Chauffeur) error {
	c.Code = strings.ToUpper(c.Code)
	result := r.db.WithContext(ctx).Save(c)
	if result.Error != nil {
		return translate("chauffeurs: update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a driver.
func (r *ChauffeurRepository) Deactivate(ctx context.Context, id int64, updatedBy string) error {
	result := r.db.WithContext(ctx).Model(&db.Chauffeur{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_by": updatedBy})
	if result.Error != nil {
		return translate("chauffeurs: deactivate", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Unavailability windows
// -----------------------------------------------------------------------------

// CreateDispo records an unavailability window for a driver.
func (r *ChauffeurRepository) CreateDispo(ctx context.Context, d *db.ChauffeurDispo) error {
	return translate("chauffeurs: create dispo", r.db.WithContext(ctx).Create(d).Error)
}

// GetDispo retrieves a single unavailability window.
func (r *ChauffeurRepository) GetDispo(ctx context.Context, id int64) (*db.ChauffeurDispo, error) {
	var d db.ChauffeurDispo
	err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if err != nil {
		return nil, translate("chauffeurs: get dispo", err)
	}
	return &d, nil
}

// ListDispos returns a driver's unavailability windows in chronological
// order. Non-nil bounds keep only the windows overlapping [from, to].
func (r *ChauffeurRepository) ListDispos(ctx context.Context, chauffeurID int64, from, to *db.Date) ([]db.ChauffeurDispo, error) {
	q := r.db.WithContext(ctx).Where("chauffeur_id = ?", chauffeurID)
	if from != nil {
		q = q.Where("date_fin >= ?", *from)
	}
	if to != nil {
		q = q.Where("date_debut <= ?", *to)
	}
	var dispos []db.ChauffeurDispo
	err := q.Order("date_debut ASC").Find(&dispos).Error
	if err != nil {
		return nil, translate("chauffeurs: list dispos", err)
	}
	return dispos, nil
}

// DeleteDispo removes an unavailability window.
func (r *ChauffeurRepository) DeleteDispo(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&db.ChauffeurDispo{}, "id = ?", id)
	if result.Error != nil {
		return translate("chauffeurs: delete dispo", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUnavailable reports whether any window of the driver covers the date, and
// returns that window when one does.
func (r *ChauffeurRepository) IsUnavailable(ctx context.Context, chauffeurID int64, date db.Date) (*db.ChauffeurDispo, error) {
	var d db.ChauffeurDispo
	err := r.db.WithContext(ctx).
		Where("chauffeur_id = ? AND date_debut <= ? AND date_fin >= ?", chauffeurID, date, date).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("chauffeurs: is unavailable", err)
	}
	return &d, nil
}

// Availability partitions the active drivers for a date into those free and
// those covered by an unavailability window.
type Availability struct {
	Disponibles   []db.Chauffeur
	Indisponibles []UnavailableChauffeur
}

// UnavailableChauffeur pairs a driver with the window making them
// unavailable on the queried date.
type UnavailableChauffeur struct {
	Chauffeur db.Chauffeur
	Dispo     db.ChauffeurDispo
}

// AvailabilityOn computes the availability partition for a date. Only active
// drivers participate.
func (r *ChauffeurRepository) AvailabilityOn(ctx context.Context, date db.Date) (*Availability, error) {
	chauffeurs, err := r.List(ctx, true)
	if err != nil {
		return nil, err
	}

	var windows []db.ChauffeurDispo
	err = r.db.WithContext(ctx).
		Where("date_debut <= ? AND date_fin >= ?", date, date).
		Find(&windows).Error
	if err != nil {
		return nil, translate("chauffeurs: availability windows", err)
	}

	covered := make(map[int64]db.ChauffeurDispo, len(windows))
	for _, w := range windows {
		if _, seen := covered[w.ChauffeurID]; !seen {
			covered[w.ChauffeurID] = w
		}
	}

	out := &Availability{}
	for _, c := range chauffeurs {
		if w, unavailable := covered[c.ID]; unavailable {
			out.Indisponibles = append(out.Indisponibles, UnavailableChauffeur{Chauffeur: c, Dispo: w})
		} else {
			out.Disponibles = append(out.Disponibles, c)
		}
	}
	return out, nil
}
