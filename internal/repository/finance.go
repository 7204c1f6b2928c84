package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// FinanceRepository persists pallet revenues and computes the finance
// aggregates. Cancelled missions never count toward totals.
type FinanceRepository struct {
	db *gorm.DB
}

// NewFinanceRepository returns a FinanceRepository backed by the provided *gorm.DB.
func NewFinanceRepository(database *gorm.DB) *FinanceRepository {
	return &FinanceRepository{db: database}
}

// CreateRevenu inserts a per-destination pallet revenue.
func (r *FinanceRepository) CreateRevenu(ctx context.Context, rv *db.RevenuPalette) error {
	return translate("finance: create revenu", r.db.WithContext(ctx).Create(rv).Error)
}

// GetRevenu retrieves a pallet revenue by id.
func (r *FinanceRepository) GetRevenu(ctx context.Context, id int64) (*db.RevenuPalette, error) {
	var rv db.RevenuPalette
	err := r.db.WithContext(ctx).First(&rv, "id = ?", id).Error
	if err != nil {
		return nil, translate("finance: get revenu", err)
	}
	return &rv, nil
}

// ListRevenus returns all pallet revenues ordered by destination.
func (r *FinanceRepository) ListRevenus(ctx context.Context) ([]db.RevenuPalette, error) {
	var revenus []db.RevenuPalette
	err := r.db.WithContext(ctx).Order("destination ASC").Find(&revenus).Error
	if err != nil {
		return nil, translate("finance: list revenus", err)
	}
	return revenus, nil
}

// GetRevenuByDestination retrieves the most recent pallet revenue for a
// destination, matched case-insensitively, or ErrNotFound.
func (r *FinanceRepository) GetRevenuByDestination(ctx context.Context, destination string) (*db.RevenuPalette, error) {
	var rv db.RevenuPalette
	err := r.db.WithContext(ctx).
		Where("LOWER(destination) = LOWER(?)", destination).
		Order("date_debut DESC").
		First(&rv).Error
	if err != nil {
		return nil, translate("finance: get revenu by destination", err)
	}
	return &rv, nil
}

// ActiveRevenuFor returns the pallet revenue for a destination whose validity
// window covers the date, or ErrNotFound.
func (r *FinanceRepository) ActiveRevenuFor(ctx context.Context, destination string, date db.Date) (*db.RevenuPalette, error) {
	var rv db.RevenuPalette
	err := r.db.WithContext(ctx).
		Where("destination = ?", destination).
		Where("(date_debut IS NULL OR date_debut <= ?)", date).
		Where("(date_fin IS NULL OR date_fin >= ?)", date).
		Order("date_debut DESC").
		First(&rv).Error
	if err != nil {
		return nil, translate("finance: active revenu", err)
	}
	return &rv, nil
}

// UpdateRevenu persists all fields of an existing pallet revenue.
func (r *FinanceRepository) UpdateRevenu(ctx context.Context, rv *db.RevenuPalette) error {
	result := r.db.WithContext(ctx).Save(rv)
	if result.Error != nil {
		return translate("finance: update revenu", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRevenu removes a pallet revenue.
func (r *FinanceRepository) DeleteRevenu(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&db.RevenuPalette{}, "id = ?", id)
	if result.Error != nil {
		return translate("finance: delete revenu", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Aggregates
// -----------------------------------------------------------------------------

// FinanceTotals are the headline numbers over a date window.
type FinanceTotals struct {
	NbMissions   int64   `json:"nb_missions"`
	NbPalettes   int64   `json:"nb_palettes"`
	TotalCoutSST float64 `json:"total_cout_sst"`
	TotalRevenu  float64 `json:"total_revenu"`
	Marge        float64 `json:"marge"`
}

// PaysBreakdown is the per-country slice of the totals.
type PaysBreakdown struct {
	Pays         string  `json:"pays"`
	NbMissions   int64   `json:"nb_missions"`
	NbPalettes   int64   `json:"nb_palettes"`
	TotalCoutSST float64 `json:"total_cout_sst"`
	TotalRevenu  float64 `json:"total_revenu"`
	Marge        float64 `json:"marge"`
}

// DayAggregate is one day's finance numbers inside a month.
type DayAggregate struct {
	Jour     string  `json:"jour"`
	Missions int64   `json:"missions"`
	Palettes int64   `json:"palettes"`
	Revenus  float64 `json:"revenus"`
	CoutsSST float64 `json:"couts_sst"`
}

// MonthAggregate is one month's finance numbers inside a year.
type MonthAggregate struct {
	Mois     int     `json:"mois"`
	Missions int64   `json:"missions"`
	Palettes int64   `json:"palettes"`
	Revenus  float64 `json:"revenus"`
	CoutsSST float64 `json:"couts_sst"`
}

const missionTotalsSelect = `COUNT(*) AS nb_missions,
COALESCE(SUM(nb_palettes), 0) AS nb_palettes,
COALESCE(SUM(cout_sst), 0) AS total_cout_sst,
COALESCE(SUM(revenu), 0) AS total_revenu,
COALESCE(SUM(revenu), 0) - COALESCE(SUM(cout_sst), 0) AS marge`

// Summary computes the totals and the per-country breakdown over [from, to].
func (r *FinanceRepository) Summary(ctx context.Context, from, to db.Date) (*FinanceTotals, []PaysBreakdown, error) {
	base := r.db.WithContext(ctx).Model(&db.Mission{}).
		Where("date_mission >= ? AND date_mission <= ? AND statut <> ?", from, to, db.MissionAnnule)

	var totals FinanceTotals
	if err := base.Session(&gorm.Session{}).
		Select(missionTotalsSelect).
		Scan(&totals).Error; err != nil {
		return nil, nil, translate("finance: summary totals", err)
	}

	var parPays []PaysBreakdown
	if err := base.Session(&gorm.Session{}).
		Select("pays, " + missionTotalsSelect).
		Group("pays").
		Order("total_revenu DESC").
		Scan(&parPays).Error; err != nil {
		return nil, nil, translate("finance: summary per country", err)
	}

	return &totals, parPays, nil
}

const periodBucketSelect = `COUNT(*) AS missions,
COALESCE(SUM(nb_palettes), 0) AS palettes,
COALESCE(SUM(revenu), 0) AS revenus,
COALESCE(SUM(cout_sst), 0) AS couts_sst`

// DailyForMonth computes per-day aggregates for one month. Days without
// missions are absent from the result.
func (r *FinanceRepository) DailyForMonth(ctx context.Context, year int, month int) ([]DayAggregate, error) {
	var rows []DayAggregate
	err := r.db.WithContext(ctx).Model(&db.Mission{}).
		Select("strftime('%Y-%m-%d', date_mission) AS jour, "+periodBucketSelect).
		Where("strftime('%Y-%m', date_mission) = ? AND statut <> ?",
			fmt.Sprintf("%04d-%02d", year, month), db.MissionAnnule).
		Group("jour").
		Order("jour ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("finance: daily for month", err)
	}
	return rows, nil
}

// MonthlyForYear computes per-month aggregates for one year. Months without
// missions are absent from the result.
func (r *FinanceRepository) MonthlyForYear(ctx context.Context, year int) ([]MonthAggregate, error) {
	var rows []MonthAggregate
	err := r.db.WithContext(ctx).Model(&db.Mission{}).
		Select("CAST(strftime('%m', date_mission) AS INTEGER) AS mois, "+periodBucketSelect).
		Where("strftime('%Y', date_mission) = ? AND statut <> ?", fmt.Sprintf("%04d", year), db.MissionAnnule).
		Group("mois").
		Order("mois ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("finance: monthly for year", err)
	}
	return rows, nil
}
