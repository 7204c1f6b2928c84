package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

// FinanceHandler serves the /finance endpoints: pallet revenues and the
// aggregate statistics.
type FinanceHandler struct {
	finance *repository.FinanceRepository
	pipe    *pipeline
	log     *zap.Logger
}

// NewFinanceHandler builds the finance handler.
func NewFinanceHandler(finance *repository.FinanceRepository, pipe *pipeline, log *zap.Logger) *FinanceHandler {
	return &FinanceHandler{finance: finance, pipe: pipe, log: log}
}

type revenuInput struct {
	Destination      string   `json:"destination"`
	Pays             string   `json:"pays"`
	RevenuParPalette *float64 `json:"revenu_par_palette"`

	DateDebut *db.Date `json:"date_debut"`
	DateFin   *db.Date `json:"date_fin"`
}

func (in *revenuInput) apply(rv *db.RevenuPalette) []string {
	var errs []string
	if strings.TrimSpace(in.Destination) == "" {
		errs = append(errs, "destination est requise")
	}
	if in.RevenuParPalette == nil {
		errs = append(errs, "revenu_par_palette est requis")
	} else if *in.RevenuParPalette < 0 {
		errs = append(errs, "revenu_par_palette doit être positif ou nul")
	}
	if in.DateDebut != nil && in.DateFin != nil && in.DateFin.Before(*in.DateDebut) {
		errs = append(errs, "date_debut doit précéder date_fin")
	}
	if len(errs) > 0 {
		return errs
	}

	rv.Destination = in.Destination
	rv.Pays = in.Pays
	rv.RevenuParPalette = *in.RevenuParPalette
	rv.DateDebut = in.DateDebut
	rv.DateFin = in.DateFin
	return nil
}

// GetRevenu handles GET /finance/revenus/{id}.
func (h *FinanceHandler) GetRevenu(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	revenu, err := h.finance.GetRevenu(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, revenu)
}

// GetRevenuByDestination handles GET /finance/revenus/destination/{destination}:
// the most recent revenue for a destination, matched case-insensitively.
func (h *FinanceHandler) GetRevenuByDestination(w http.ResponseWriter, r *http.Request) {
	revenu, err := h.finance.GetRevenuByDestination(r.Context(), chi.URLParam(r, "destination"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, revenu)
}

// ListRevenus handles GET /finance/revenus.
func (h *FinanceHandler) ListRevenus(w http.ResponseWriter, r *http.Request) {
	revenus, err := h.finance.ListRevenus(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if revenus == nil {
		revenus = []db.RevenuPalette{}
	}
	JSON(w, http.StatusOK, revenus)
}

// CreateRevenu handles POST /finance/revenus.
func (h *FinanceHandler) CreateRevenu(w http.ResponseWriter, r *http.Request) {
	var in revenuInput
	if !decodeJSON(w, r, &in) {
		return
	}

	var revenu db.RevenuPalette
	if errs := in.apply(&revenu); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	if err := h.finance.CreateRevenu(r.Context(), &revenu); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionCreate, "revenu_palette", strconv.FormatInt(revenu.ID, 10), nil, revenu)
	h.pipe.notify("finance", "created", revenu.ID, identity)

	JSON(w, http.StatusCreated, revenu)
}

// UpdateRevenu handles PUT /finance/revenus/{id}.
func (h *FinanceHandler) UpdateRevenu(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in revenuInput
	if !decodeJSON(w, r, &in) {
		return
	}

	existing, err := h.finance.GetRevenu(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	before := *existing

	if errs := in.apply(existing); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	if err := h.finance.UpdateRevenu(r.Context(), existing); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionUpdate, "revenu_palette", strconv.FormatInt(id, 10), before, existing)
	h.pipe.notify("finance", "updated", id, identity)

	JSON(w, http.StatusOK, existing)
}

// DeleteRevenu handles DELETE /finance/revenus/{id}.
func (h *FinanceHandler) DeleteRevenu(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	existing, err := h.finance.GetRevenu(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.finance.DeleteRevenu(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionDelete, "revenu_palette", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("finance", "deleted", id, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Revenu supprimé"})
}

// -----------------------------------------------------------------------------
// Aggregates
// -----------------------------------------------------------------------------

// Stats handles GET /finance/stats?date_debut=&date_fin=. The window
// defaults to the current month. Cancelled missions are excluded.
func (h *FinanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := time.Now()
	from := db.NewDate(now.Year(), now.Month(), 1)
	// Day zero of the next month is the last day of this one.
	to := db.DateOf(time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC))

	if v := q.Get("date_debut"); v != "" {
		d, err := db.ParseDate(v)
		if err != nil {
			Detail(w, http.StatusBadRequest, "date_debut: format attendu YYYY-MM-DD")
			return
		}
		from = d
	}
	if v := q.Get("date_fin"); v != "" {
		d, err := db.ParseDate(v)
		if err != nil {
			Detail(w, http.StatusBadRequest, "date_fin: format attendu YYYY-MM-DD")
			return
		}
		to = d
	}
	if to.Before(from) {
		Detail(w, http.StatusBadRequest, "date_debut doit précéder date_fin")
		return
	}

	totals, parPays, err := h.finance.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if parPays == nil {
		parPays = []repository.PaysBreakdown{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"date_debut": from,
		"date_fin":   to,
		"totaux":     totals,
		"par_pays":   parPays,
	})
}

// financeBucket is one period's slice of the monthly or yearly statistics.
type financeBucket struct {
	Missions int64   `json:"missions"`
	Palettes int64   `json:"palettes"`
	Revenus  float64 `json:"revenus"`
	CoutsSST float64 `json:"couts_sst"`
}

// yearQuery parses the annee parameter, defaulting to the current year.
func yearQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	year := time.Now().Year()
	if v := r.URL.Query().Get("annee"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2000 || n > 2200 {
			Detail(w, http.StatusBadRequest, "annee invalide")
			return 0, false
		}
		year = n
	}
	return year, true
}

// Monthly handles GET /finance/stats/mensuel?annee=YYYY&mois=M: the month's
// totals plus a per-day breakdown keyed by date. Days without missions are
// absent.
func (h *FinanceHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	year, ok := yearQuery(w, r)
	if !ok {
		return
	}
	month := int(time.Now().Month())
	if v := r.URL.Query().Get("mois"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			Detail(w, http.StatusBadRequest, "mois invalide")
			return
		}
		month = n
	}

	rows, err := h.finance.DailyForMonth(r.Context(), year, month)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var totalMissions, totalPalettes int64
	var totalRevenus, totalCouts float64
	parJour := make(map[string]financeBucket, len(rows))
	for _, row := range rows {
		parJour[row.Jour] = financeBucket{
			Missions: row.Missions,
			Palettes: row.Palettes,
			Revenus:  row.Revenus,
			CoutsSST: row.CoutsSST,
		}
		totalMissions += row.Missions
		totalPalettes += row.Palettes
		totalRevenus += row.Revenus
		totalCouts += row.CoutsSST
	}

	JSON(w, http.StatusOK, map[string]any{
		"annee":           year,
		"mois":            month,
		"total_missions":  totalMissions,
		"total_palettes":  totalPalettes,
		"total_revenus":   totalRevenus,
		"total_couts_sst": totalCouts,
		"marge_brute":     totalRevenus - totalCouts,
		"stats_par_jour":  parJour,
	})
}

// Yearly handles GET /finance/stats/annuel?annee=YYYY: the year's totals
// plus a per-month breakdown. All twelve months are present, zeroed when
// empty.
func (h *FinanceHandler) Yearly(w http.ResponseWriter, r *http.Request) {
	year, ok := yearQuery(w, r)
	if !ok {
		return
	}

	rows, err := h.finance.MonthlyForYear(r.Context(), year)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	parMois := make(map[int]financeBucket, 12)
	for m := 1; m <= 12; m++ {
		parMois[m] = financeBucket{}
	}
	var totalMissions, totalPalettes int64
	var totalRevenus, totalCouts float64
	for _, row := range rows {
		parMois[row.Mois] = financeBucket{
			Missions: row.Missions,
			Palettes: row.Palettes,
			Revenus:  row.Revenus,
			CoutsSST: row.CoutsSST,
		}
		totalMissions += row.Missions
		totalPalettes += row.Palettes
		totalRevenus += row.Revenus
		totalCouts += row.CoutsSST
	}

	JSON(w, http.StatusOK, map[string]any{
		"annee":           year,
		"total_missions":  totalMissions,
		"total_palettes":  totalPalettes,
		"total_revenus":   totalRevenus,
		"total_couts_sst": totalCouts,
		"marge_brute":     totalRevenus - totalCouts,
		"stats_par_mois":  parMois,
	})
}
