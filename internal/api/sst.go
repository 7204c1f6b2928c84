package api

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

// SSTHandler serves the /sst endpoints: subcontractors, their tariffs and
// their contact emails.
type SSTHandler struct {
	ssts *repository.SSTRepository
	pipe *pipeline
	log  *zap.Logger
}

// NewSSTHandler builds the subcontractor handler.
func NewSSTHandler(ssts *repository.SSTRepository, pipe *pipeline, log *zap.Logger) *SSTHandler {
	return &SSTHandler{ssts: ssts, pipe: pipe, log: log}
}

type sstInput struct {
	Code          string `json:"code"`
	Nom           string `json:"nom"`
	RaisonSociale string `json:"raison_sociale"`

	Telephone string `json:"telephone"`
	Email     string `json:"email"`
	Adresse   string `json:"adresse"`

	IsActive    *bool  `json:"is_active"`
	Commentaire string `json:"commentaire"`
}

func (in *sstInput) apply(s *db.SST) []string {
	var errs []string
	if strings.TrimSpace(in.Code) == "" {
		errs = append(errs, "code est requis")
	}
	if strings.TrimSpace(in.Nom) == "" {
		errs = append(errs, "nom est requis")
	}
	if len(errs) > 0 {
		return errs
	}

	s.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	s.Nom = in.Nom
	s.RaisonSociale = in.RaisonSociale
	s.Telephone = in.Telephone
	s.Email = in.Email
	s.Adresse = in.Adresse
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	s.Commentaire = in.Commentaire
	return nil
}

// List handles GET /sst. Deactivated subcontractors are hidden unless
// ?active_only=false.
func (h *SSTHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") != "false"
	ssts, err := h.ssts.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if ssts == nil {
		ssts = []db.SST{}
	}
	JSON(w, http.StatusOK, ssts)
}

// GetByCode handles GET /sst/code/{code}.
func (h *SSTHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	sst, err := h.ssts.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, sst)
}

// Get handles GET /sst/{id}.
func (h *SSTHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	sst, err := h.ssts.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, sst)
}

// Create handles POST /sst.
func (h *SSTHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in sstInput
	if !decodeJSON(w, r, &in) {
		return
	}

	sst := db.SST{}
	sst.IsActive = true
	if errs := in.apply(&sst); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	identity := identityFromCtx(r.Context())
	sst.CreatedBy = identity.User.Username
	sst.UpdatedBy = identity.User.Username
	if err := h.ssts.Create(r.Context(), &sst); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionCreate, "sst", strconv.FormatInt(sst.ID, 10), nil, sst)
	h.pipe.notify("sst", "created", sst.ID, identity)

	JSON(w, http.StatusCreated, sst)
}

// Update handles PUT /sst/{id}.
func (h *SSTHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in sstInput
	if !decodeJSON(w, r, &in) {
		return
	}

	existing, err := h.ssts.GetByID(r.Context(), id)
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
	if err := h.ssts.Update(r.Context(), existing); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionUpdate, "sst", strconv.FormatInt(id, 10), before, existing)
	h.pipe.notify("sst", "updated", id, identity)

	JSON(w, http.StatusOK, existing)
}

// Delete handles DELETE /sst/{id}. Subcontractors are soft-deactivated.
func (h *SSTHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	identity := identityFromCtx(r.Context())
	existing, err := h.ssts.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.ssts.Deactivate(r.Context(), id, identity.User.Username); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionDeactivate, "sst", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("sst", "deleted", id, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Sous-traitant désactivé"})
}

// -----------------------------------------------------------------------------
// Tariffs
// -----------------------------------------------------------------------------

type tarifInput struct {
	Destination string   `json:"destination"`
	Pays        string   `json:"pays"`
	Prix        *float64 `json:"prix"`
	Unite       string   `json:"unite"`

	DateDebut *db.Date `json:"date_debut"`
	DateFin   *db.Date `json:"date_fin"`
	IsActive  *bool    `json:"is_active"`
}

func (in *tarifInput) apply(t *db.TarifSST) []string {
	var errs []string
	if strings.TrimSpace(in.Destination) == "" {
		errs = append(errs, "destination est requise")
	}
	if in.Prix == nil {
		errs = append(errs, "prix est requis")
	} else if *in.Prix < 0 {
		errs = append(errs, "prix doit être positif ou nul")
	}
	unite := in.Unite
	if unite == "" {
		unite = "voyage"
	}
	switch unite {
	case "voyage", "palette", "km":
	default:
		errs = append(errs, "unite doit être 'voyage', 'palette' ou 'km'")
	}
	if in.DateDebut != nil && in.DateFin != nil && in.DateFin.Before(*in.DateDebut) {
		errs = append(errs, "date_debut doit précéder date_fin")
	}
	if len(errs) > 0 {
		return errs
	}

	t.Destination = in.Destination
	t.Pays = in.Pays
	t.Prix = *in.Prix
	t.Unite = unite
	t.DateDebut = in.DateDebut
	t.DateFin = in.DateFin
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	return nil
}

// ListAllTarifs handles GET /sst/tarifs/all: the pricing grid across
// subcontractors. sst_code and destination narrow the grid; deactivated
// tariffs are hidden unless ?active_only=false.
func (h *SSTHandler) ListAllTarifs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tarifs, err := h.ssts.ListAllTarifs(r.Context(), repository.TarifFilter{
		SSTCode:     q.Get("sst_code"),
		Destination: q.Get("destination"),
		ActiveOnly:  q.Get("active_only") != "false",
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if tarifs == nil {
		tarifs = []db.TarifSST{}
	}
	JSON(w, http.StatusOK, tarifs)
}

// ListTarifs handles GET /sst/{id}/tarifs.
func (h *SSTHandler) ListTarifs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	if _, err := h.ssts.GetByID(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	tarifs, err := h.ssts.ListTarifs(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if tarifs == nil {
		tarifs = []db.TarifSST{}
	}
	JSON(w, http.StatusOK, tarifs)
}

// CreateTarif handles POST /sst/{id}/tarifs.
func (h *SSTHandler) CreateTarif(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in tarifInput
	if !decodeJSON(w, r, &in) {
		return
	}

	tarif := db.TarifSST{SSTID: id, IsActive: true}
	if errs := in.apply(&tarif); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	if _, err := h.ssts.GetByID(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.ssts.CreateTarif(r.Context(), &tarif); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionCreate, "tarif_sst", strconv.FormatInt(tarif.ID, 10), nil, tarif)
	h.pipe.notify("sst", "updated", id, identity)

	JSON(w, http.StatusCreated, tarif)
}

// UpdateTarif handles PUT /sst/tarifs/{id}.
func (h *SSTHandler) UpdateTarif(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in tarifInput
	if !decodeJSON(w, r, &in) {
		return
	}

	existing, err := h.ssts.GetTarif(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	before := *existing

	if errs := in.apply(existing); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	if err := h.ssts.UpdateTarif(r.Context(), existing); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionUpdate, "tarif_sst", strconv.FormatInt(id, 10), before, existing)
	h.pipe.notify("sst", "updated", existing.SSTID, identity)

	JSON(w, http.StatusOK, existing)
}

// DeleteTarif handles DELETE /sst/tarifs/{id}.
func (h *SSTHandler) DeleteTarif(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	existing, err := h.ssts.GetTarif(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.ssts.DeleteTarif(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionDelete, "tarif_sst", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("sst", "updated", existing.SSTID, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Tarif supprimé"})
}

// -----------------------------------------------------------------------------
// Contact emails
// -----------------------------------------------------------------------------

type sstEmailInput struct {
	Email      string `json:"email"`
	NomContact string `json:"nom_contact"`
	Fonction   string `json:"fonction"`
	IsPrimary  bool   `json:"is_primary"`
}

// ListEmails handles GET /sst/{id}/emails, primary address first.
func (h *SSTHandler) ListEmails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	if _, err := h.ssts.GetByID(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	emails, err := h.ssts.ListEmails(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if emails == nil {
		emails = []db.SSTEmail{}
	}
	JSON(w, http.StatusOK, emails)
}

// CreateEmail handles POST /sst/{id}/emails. A new primary demotes the
// previous one.
func (h *SSTHandler) CreateEmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in sstEmailInput
	if !decodeJSON(w, r, &in) {
		return
	}

	if _, err := mail.ParseAddress(in.Email); err != nil {
		validationFailed(w, []string{"email invalide"}, nil)
		return
	}
	if _, err := h.ssts.GetByID(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	email := db.SSTEmail{
		SSTID:      id,
		Email:      in.Email,
		NomContact: in.NomContact,
		Fonction:   in.Fonction,
		IsPrimary:  in.IsPrimary,
	}
	if err := h.ssts.CreateEmail(r.Context(), &email); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionCreate, "sst_email", strconv.FormatInt(email.ID, 10), nil, email)
	h.pipe.notify("sst", "updated", id, identity)

	JSON(w, http.StatusCreated, email)
}

// DeleteEmail handles DELETE /sst/emails/{id}.
func (h *SSTHandler) DeleteEmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	if err := h.ssts.DeleteEmail(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionDelete, "sst_email", strconv.FormatInt(id, 10), nil, nil)
	h.pipe.notify("sst", "refresh", nil, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Email supprimé"})
}
