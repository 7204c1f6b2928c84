package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

// ChauffeurHandler serves the /chauffeurs endpoints, including
// unavailability windows and the per-date availability partition.
type ChauffeurHandler struct {
	chauffeurs *repository.ChauffeurRepository
	pipe       *pipeline
	log        *zap.Logger
}

// NewChauffeurHandler builds the driver handler.
func NewChauffeurHandler(chauffeurs *repository.ChauffeurRepository, pipe *pipeline, log *zap.Logger) *ChauffeurHandler {
	return &ChauffeurHandler{chauffeurs: chauffeurs, pipe: pipe, log: log}
}

type chauffeurInput struct {
	Code   string `json:"code"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`

	Telephone string `json:"telephone"`
	Email     string `json:"email"`

	TypeContrat  string   `json:"type_contrat"`
	DateEmbauche *db.Date `json:"date_embauche"`

	Permis string `json:"permis"`
	ADR    *bool  `json:"adr"`
	FIMO   *bool  `json:"fimo"`

	TracteurAttitre string `json:"tracteur_attire"`
	IsActive        *bool  `json:"is_active"`
	Commentaire     string `json:"commentaire"`
}

func (in *chauffeurInput) apply(c *db.Chauffeur) []string {
	var errs []string
	if strings.TrimSpace(in.Code) == "" {
		errs = append(errs, "code est requis")
	}
	if strings.TrimSpace(in.Nom) == "" {
		errs = append(errs, "nom est requis")
	}
	if strings.TrimSpace(in.Prenom) == "" {
		errs = append(errs, "prenom est requis")
	}
	if len(errs) > 0 {
		return errs
	}

	c.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	c.Nom = in.Nom
	c.Prenom = in.Prenom
	c.Telephone = in.Telephone
	c.Email = in.Email
	c.TypeContrat = in.TypeContrat
	c.DateEmbauche = in.DateEmbauche
	c.Permis = in.Permis
	if in.ADR != nil {
		c.ADR = *in.ADR
	}
	if in.FIMO != nil {
		c.FIMO = *in.FIMO
	}
	c.TracteurAttitre = in.TracteurAttitre
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	c.Commentaire = in.Commentaire
	return nil
}

// chauffeurPayload adds the computed display name to the stored fields.
type chauffeurPayload struct {
	*db.Chauffeur
	NomComplet string `json:"nom_complet"`
}

func newChauffeurPayload(c *db.Chauffeur) chauffeurPayload {
	return chauffeurPayload{Chauffeur: c, NomComplet: c.NomComplet()}
}

func chauffeurPayloads(chauffeurs []db.Chauffeur) []chauffeurPayload {
	out := make([]chauffeurPayload, len(chauffeurs))
	for i := range chauffeurs {
		out[i] = newChauffeurPayload(&chauffeurs[i])
	}
	return out
}

// List handles GET /chauffeurs. Deactivated drivers are hidden unless
// ?active_only=false.
func (h *ChauffeurHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") != "false"
	chauffeurs, err := h.chauffeurs.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, chauffeurPayloads(chauffeurs))
}

// GetByCode handles GET /chauffeurs/code/{code}.
func (h *ChauffeurHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	chauffeur, err := h.chauffeurs.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, newChauffeurPayload(chauffeur))
}

// Get handles GET /chauffeurs/{id}.
func (h *ChauffeurHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	chauffeur, err := h.chauffeurs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, newChauffeurPayload(chauffeur))
}

// Create handles POST /chauffeurs.
func (h *ChauffeurHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in chauffeurInput
	if !decodeJSON(w, r, &in) {
		return
	}

	chauffeur := db.Chauffeur{}
	chauffeur.IsActive = true
	chauffeur.FIMO = true
	if errs := in.apply(&chauffeur); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	identity := identityFromCtx(r.Context())
	chauffeur.CreatedBy = identity.User.Username
	chauffeur.UpdatedBy = identity.User.Username
	if err := h.chauffeurs.Create(r.Context(), &chauffeur); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionCreate, "chauffeur", strconv.FormatInt(chauffeur.ID, 10), nil, chauffeur)
	h.pipe.notify("chauffeurs", "created", chauffeur.ID, identity)

	JSON(w, http.StatusCreated, newChauffeurPayload(&chauffeur))
}

// Update handles PUT /chauffeurs/{id}.
func (h *ChauffeurHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in chauffeurInput
	if !decodeJSON(w, r, &in) {
		return
	}

	existing, err := h.chauffeurs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	before := *existing

	if errs := in.apply(existing); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	identity := identityFromCtx(r.Context())
	existing.UpdatedBy = identity.User.Username
	if err := h.chauffeurs.Update(r.Context(), existing); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionUpdate, "chauffeur", strconv.FormatInt(id, 10), before, existing)
	h.pipe.notify("chauffeurs", "updated", id, identity)

	JSON(w, http.StatusOK, newChauffeurPayload(existing))
}

// Delete handles DELETE /chauffeurs/{id}. Drivers are soft-deactivated.
func (h *ChauffeurHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	identity := identityFromCtx(r.Context())
	existing, err := h.chauffeurs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.chauffeurs.Deactivate(r.Context(), id, identity.User.Username); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionDeactivate, "chauffeur", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("chauffeurs", "deleted", id, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Chauffeur désactivé"})
}

// Availability handles GET /chauffeurs/disponibles/{date}: the per-date
// partition of active drivers into available and unavailable.
func (h *ChauffeurHandler) Availability(w http.ResponseWriter, r *http.Request) {
	date, err := db.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		Detail(w, http.StatusBadRequest, "Date invalide, format attendu YYYY-MM-DD")
		return
	}

	availability, err := h.chauffeurs.AvailabilityOn(r.Context(), date)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	indisponibles := make([]map[string]any, 0, len(availability.Indisponibles))
	for i := range availability.Indisponibles {
		entry := &availability.Indisponibles[i]
		indisponibles = append(indisponibles, map[string]any{
			"chauffeur":    newChauffeurPayload(&entry.Chauffeur),
			"type_absence": entry.Dispo.TypeAbsence,
			"date_debut":   entry.Dispo.DateDebut,
			"date_fin":     entry.Dispo.DateFin,
			"motif":        entry.Dispo.Motif,
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"date":          date,
		"disponibles":   chauffeurPayloads(availability.Disponibles),
		"indisponibles": indisponibles,
	})
}

// -----------------------------------------------------------------------------
// Unavailability windows
// -----------------------------------------------------------------------------

type dispoInput struct {
	ChauffeurID *int64   `json:"chauffeur_id"`
	DateDebut   *db.Date `json:"date_debut"`
	DateFin     *db.Date `json:"date_fin"`
	TypeAbsence string   `json:"type_absence"`
	Motif       string   `json:"motif"`
}

// absenceTypes is the closed set accepted for type_absence.
var absenceTypes = map[string]bool{
	"conges": true, "maladie": true, "formation": true, "autre": true,
}

// ListDispos handles GET /chauffeurs/{id}/disponibilites. With date_debut
// and date_fin, only windows overlapping the range are returned.
func (h *ChauffeurHandler) ListDispos(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	if _, err := h.chauffeurs.GetByID(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	var from, to *db.Date
	for param, dest := range map[string]**db.Date{"date_debut": &from, "date_fin": &to} {
		if v := r.URL.Query().Get(param); v != "" {
			d, err := db.ParseDate(v)
			if err != nil {
				Detail(w, http.StatusBadRequest, param+": format attendu YYYY-MM-DD")
				return
			}
			*dest = &d
		}
	}

	dispos, err := h.chauffeurs.ListDispos(r.Context(), id, from, to)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if dispos == nil {
		dispos = []db.ChauffeurDispo{}
	}
	JSON(w, http.StatusOK, dispos)
}

// CreateDispo handles POST /chauffeurs/disponibilites. The target driver is
// named by chauffeur_id in the body.
func (h *ChauffeurHandler) CreateDispo(w http.ResponseWriter, r *http.Request) {
	var in dispoInput
	if !decodeJSON(w, r, &in) {
		return
	}

	var errs []string
	if in.ChauffeurID == nil {
		errs = append(errs, "chauffeur_id est requis")
	}
	if in.DateDebut == nil || in.DateDebut.IsZero() {
		errs = append(errs, "date_debut est requise")
	}
	if in.DateFin == nil || in.DateFin.IsZero() {
		errs = append(errs, "date_fin est requise")
	}
	if !absenceTypes[strings.ToLower(strings.TrimSpace(in.TypeAbsence))] {
		errs = append(errs, "type_absence doit être 'conges', 'maladie', 'formation' ou 'autre'")
	}
	if len(errs) == 0 && in.DateFin.Before(*in.DateDebut) {
		errs = append(errs, "date_debut doit précéder date_fin")
	}
	if len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	if _, err := h.chauffeurs.GetByID(r.Context(), *in.ChauffeurID); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	dispo := db.ChauffeurDispo{
		ChauffeurID: *in.ChauffeurID,
		DateDebut:   *in.DateDebut,
		DateFin:     *in.DateFin,
		TypeAbsence: strings.ToLower(strings.TrimSpace(in.TypeAbsence)),
		Motif:       in.Motif,
		CreatedBy:   identity.User.Username,
	}
	if err := h.chauffeurs.CreateDispo(r.Context(), &dispo); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionCreate, "chauffeur_dispo", strconv.FormatInt(dispo.ID, 10), nil, dispo)
	h.pipe.notify("chauffeurs", "updated", dispo.ChauffeurID, identity)

	JSON(w, http.StatusCreated, dispo)
}

// DeleteDispo handles DELETE /chauffeurs/disponibilites/{id}.
func (h *ChauffeurHandler) DeleteDispo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	existing, err := h.chauffeurs.GetDispo(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.chauffeurs.DeleteDispo(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionDelete, "chauffeur_dispo", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("chauffeurs", "updated", existing.ChauffeurID, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": fmt.Sprintf("Indisponibilité %d supprimée", id)})
}
