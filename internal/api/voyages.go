package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

// VoyageHandler serves the /voyages endpoints.
type VoyageHandler struct {
	voyages *repository.VoyageRepository
	pipe    *pipeline
	log     *zap.Logger
}

// NewVoyageHandler builds the voyage handler.
func NewVoyageHandler(voyages *repository.VoyageRepository, pipe *pipeline, log *zap.Logger) *VoyageHandler {
	return &VoyageHandler{voyages: voyages, pipe: pipe, log: log}
}

type voyageInput struct {
	Code        string `json:"code"`
	Nom         string `json:"nom"`
	Description string `json:"description"`

	Depart      string `json:"depart"`
	Destination string `json:"destination"`
	Pays        string `json:"pays"`

	HeureDepartDefaut  string `json:"heure_depart_defaut"`
	HeureArriveeDefaut string `json:"heure_arrivee_defaut"`

	JoursOperation  []string `json:"jours_operation"`
	NbPalettesMoyen *int     `json:"nb_palettes_moyen"`
	IsActive        *bool    `json:"is_active"`
	Couleur         string   `json:"couleur"`
}

var weekdays = map[string]bool{
	"lundi": true, "mardi": true, "mercredi": true, "jeudi": true,
	"vendredi": true, "samedi": true, "dimanche": true,
}

func (in *voyageInput) apply(v *db.Voyage) []string {
	var errs []string
	if strings.TrimSpace(in.Code) == "" {
		errs = append(errs, "code est requis")
	}
	if strings.TrimSpace(in.Nom) == "" {
		errs = append(errs, "nom est requis")
	}
	for field, value := range map[string]string{
		"heure_depart_defaut":  in.HeureDepartDefaut,
		"heure_arrivee_defaut": in.HeureArriveeDefaut,
	} {
		if value != "" && !timeRe.MatchString(value) {
			errs = append(errs, fmt.Sprintf("%s doit être au format HH:MM", field))
		}
	}
	jours := in.JoursOperation
	if jours == nil {
		jours = []string{}
	}
	for _, j := range jours {
		if !weekdays[strings.ToLower(j)] {
			errs = append(errs, fmt.Sprintf("jour d'opération inconnu: %s", j))
		}
	}
	if in.NbPalettesMoyen != nil && *in.NbPalettesMoyen < 0 {
		errs = append(errs, "nb_palettes_moyen doit être positif ou nul")
	}
	if len(errs) > 0 {
		return errs
	}

	v.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	v.Nom = in.Nom
	v.Description = in.Description
	v.Depart = in.Depart
	v.Destination = in.Destination
	v.Pays = in.Pays
	v.HeureDepartDefaut = in.HeureDepartDefaut
	v.HeureArriveeDefaut = in.HeureArriveeDefaut
	encoded, _ := json.Marshal(jours)
	v.JoursOperation = string(encoded)
	if in.NbPalettesMoyen != nil {
		v.NbPalettesMoyen = *in.NbPalettesMoyen
	}
	if in.IsActive != nil {
		v.IsActive = *in.IsActive
	}
	v.Couleur = in.Couleur
	return nil
}

// List handles GET /voyages. Deactivated voyages are hidden unless
// ?active_only=false; ?pays= restricts to one destination country.
func (h *VoyageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly := q.Get("active_only") != "false"
	voyages, err := h.voyages.List(r.Context(), activeOnly, q.Get("pays"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if voyages == nil {
		voyages = []db.Voyage{}
	}
	JSON(w, http.StatusOK, voyages)
}

// Get handles GET /voyages/{id}.
func (h *VoyageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	voyage, err := h.voyages.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, voyage)
}

// GetByCode handles GET /voyages/code/{code}.
func (h *VoyageHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	voyage, err := h.voyages.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, voyage)
}

// Create handles POST /voyages.
func (h *VoyageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in voyageInput
	if !decodeJSON(w, r, &in) {
		return
	}

	var voyage db.Voyage
	voyage.IsActive = true
	if errs := in.apply(&voyage); len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	identity := identityFromCtx(r.Context())
	voyage.CreatedBy = identity.User.Username
	voyage.UpdatedBy = identity.User.Username
	if err := h.voyages.Create(r.Context(), &voyage); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionCreate, "voyage", strconv.FormatInt(voyage.ID, 10), nil, voyage)
	h.pipe.notify("voyages", "created", voyage.ID, identity)

	JSON(w, http.StatusCreated, voyage)
}

// Update handles PUT /voyages/{id}.
func (h *VoyageHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in voyageInput
	if !decodeJSON(w, r, &in) {
		return
	}

	existing, err := h.voyages.GetByID(r.Context(), id)
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
	if err := h.voyages.Update(r.Context(), existing); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionUpdate, "voyage", strconv.FormatInt(id, 10), before, existing)
	h.pipe.notify("voyages", "updated", id, identity)

	JSON(w, http.StatusOK, existing)
}

// Delete handles DELETE /voyages/{id}. Voyages are soft-deactivated so
// existing missions keep a valid reference.
func (h *VoyageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	identity := identityFromCtx(r.Context())
	existing, err := h.voyages.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.voyages.Deactivate(r.Context(), id, identity.User.Username); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionDeactivate, "voyage", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("voyages", "deleted", id, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Voyage désactivé"})
}
