package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

var timeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// MissionHandler serves the /missions endpoints.
type MissionHandler struct {
	missions   *repository.MissionRepository
	voyages    *repository.VoyageRepository
	chauffeurs *repository.ChauffeurRepository
	ssts       *repository.SSTRepository
	pipe       *pipeline
	log        *zap.Logger
}

// NewMissionHandler builds the mission handler.
func NewMissionHandler(
	missions *repository.MissionRepository,
	voyages *repository.VoyageRepository,
	chauffeurs *repository.ChauffeurRepository,
	ssts *repository.SSTRepository,
	pipe *pipeline,
	log *zap.Logger,
) *MissionHandler {
	return &MissionHandler{
		missions:   missions,
		voyages:    voyages,
		chauffeurs: chauffeurs,
		ssts:       ssts,
		pipe:       pipe,
		log:        log,
	}
}

// missionInput is the request body for create and update. Legacy client
// shapes are resolved here, exactly once: voyage_code / voyage:{code}
// instead of voyage_id, pays_destination instead of pays.
type missionInput struct {
	DateMission *db.Date `json:"date_mission"`
	HeureDebut  string   `json:"heure_debut"`
	HeureFin    string   `json:"heure_fin"`

	VoyageID   *int64 `json:"voyage_id"`
	VoyageCode string `json:"voyage_code"`
	Voyage     *struct {
		Code string `json:"code"`
	} `json:"voyage"`

	ChauffeurID *int64 `json:"chauffeur_id"`
	SSTID       *int64 `json:"sst_id"`

	TypeMission     string `json:"type_mission"`
	Destination     string `json:"destination"`
	Depart          string `json:"depart"`
	Pays            string `json:"pays"`
	PaysDestination string `json:"pays_destination"`

	NbPalettes *int     `json:"nb_palettes"`
	PoidsKg    *float64 `json:"poids_kg"`

	Tracteur string `json:"tracteur"`
	Remorque string `json:"remorque"`

	Statut      string `json:"statut"`
	Commentaire string `json:"commentaire"`

	CoutSST *float64 `json:"cout_sst"`
	Revenu  *float64 `json:"revenu"`
}

// missionResponse carries the mission plus any domain warnings raised by
// validation, such as an unavailable driver. Warnings never fail the call.
type missionResponse struct {
	*db.Mission
	Warnings []string `json:"warnings,omitempty"`
}

// resolveInto validates the input and fills the mission, returning hard
// errors and soft warnings. Legacy voyage references are resolved to a flat
// voyage_id here.
func (h *MissionHandler) resolveInto(r *http.Request, in *missionInput, m *db.Mission) (errs, warnings []string) {
	if in.DateMission == nil || in.DateMission.IsZero() {
		errs = append(errs, "date_mission est requise")
	} else {
		m.DateMission = *in.DateMission
	}

	for field, value := range map[string]string{"heure_debut": in.HeureDebut, "heure_fin": in.HeureFin} {
		if value != "" && !timeRe.MatchString(value) {
			errs = append(errs, fmt.Sprintf("%s doit être au format HH:MM", field))
		}
	}
	if in.HeureDebut != "" && in.HeureFin != "" && in.HeureDebut > in.HeureFin {
		errs = append(errs, "heure_debut doit précéder heure_fin")
	}
	m.HeureDebut = in.HeureDebut
	m.HeureFin = in.HeureFin

	// Voyage reference: flat id wins, then the legacy aliases.
	switch {
	case in.VoyageID != nil:
		if _, err := h.voyages.GetByID(r.Context(), *in.VoyageID); err != nil {
			errs = append(errs, fmt.Sprintf("voyage %d introuvable", *in.VoyageID))
		} else {
			m.VoyageID = in.VoyageID
		}
	case in.VoyageCode != "" || (in.Voyage != nil && in.Voyage.Code != ""):
		code := in.VoyageCode
		if code == "" {
			code = in.Voyage.Code
		}
		v, err := h.voyages.GetByCode(r.Context(), code)
		if err != nil {
			errs = append(errs, fmt.Sprintf("voyage %s introuvable", strings.ToUpper(code)))
		} else {
			m.VoyageID = &v.ID
		}
	default:
		m.VoyageID = nil
	}

	if in.ChauffeurID != nil {
		c, err := h.chauffeurs.GetByID(r.Context(), *in.ChauffeurID)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("chauffeur %d introuvable", *in.ChauffeurID))
		case !c.IsActive:
			// Assigning a deactivated driver is allowed, but flagged.
			warnings = append(warnings, fmt.Sprintf("Le chauffeur %s est désactivé", c.NomComplet()))
		}
	}
	m.ChauffeurID = in.ChauffeurID

	if in.SSTID != nil {
		if _, err := h.ssts.GetByID(r.Context(), *in.SSTID); err != nil {
			errs = append(errs, fmt.Sprintf("sst %d introuvable", *in.SSTID))
		}
	}
	m.SSTID = in.SSTID

	if in.TypeMission != "" {
		kind := strings.ToLower(in.TypeMission)
		if kind != db.MissionLivraison && kind != db.MissionRamasse {
			errs = append(errs, "type_mission doit être 'livraison' ou 'ramasse'")
		} else {
			m.TypeMission = kind
		}
	} else {
		m.TypeMission = ""
	}

	m.Destination = in.Destination
	m.Depart = in.Depart
	m.Pays = in.Pays
	if m.Pays == "" {
		m.Pays = in.PaysDestination
	}

	if in.NbPalettes != nil {
		if *in.NbPalettes < 0 {
			errs = append(errs, "nb_palettes doit être positif ou nul")
		} else {
			m.NbPalettes = *in.NbPalettes
		}
	} else {
		m.NbPalettes = 0
	}
	m.PoidsKg = in.PoidsKg

	m.Tracteur = in.Tracteur
	m.Remorque = in.Remorque

	statut := in.Statut
	if statut == "" {
		statut = db.MissionPlanifie
	}
	switch statut {
	case db.MissionPlanifie, db.MissionEnCours, db.MissionTermine, db.MissionAnnule:
		m.Statut = statut
	default:
		errs = append(errs, "statut invalide")
	}

	m.Commentaire = in.Commentaire
	m.CoutSST = in.CoutSST
	m.Revenu = in.Revenu

	// Driver unavailability is a warning, never a failure.
	if len(errs) == 0 && m.ChauffeurID != nil && !m.DateMission.IsZero() {
		dispo, err := h.chauffeurs.IsUnavailable(r.Context(), *m.ChauffeurID, m.DateMission)
		if err != nil {
			h.log.Error("availability check failed", zap.Error(err))
		} else if dispo != nil {
			warnings = append(warnings, fmt.Sprintf(
				"Le chauffeur est indisponible du %s au %s (%s)",
				dispo.DateDebut, dispo.DateFin, dispo.TypeAbsence))
		}
	}
	return errs, warnings
}

// checkPastEdit enforces edit_past_planning on missions dated before today.
func checkPastEdit(w http.ResponseWriter, identity *auth.Identity, date db.Date) bool {
	if date.IsZero() || !date.Before(db.Today()) {
		return true
	}
	if !auth.HasCapability(identity.User, auth.CapEditPastPlanning) {
		Detail(w, http.StatusForbidden, fmt.Sprintf("Permission '%s' requise", auth.CapEditPastPlanning))
		return false
	}
	return true
}

// List handles GET /missions.
func (h *MissionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := missionFilterFromQuery(r)
	if err != nil {
		Detail(w, http.StatusBadRequest, err.Error())
		return
	}

	missions, _, err := h.missions.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if missions == nil {
		missions = []db.Mission{}
	}
	JSON(w, http.StatusOK, missions)
}

// ByDate handles GET /missions/by-date/{date}.
func (h *MissionHandler) ByDate(w http.ResponseWriter, r *http.Request) {
	date, err := db.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		Detail(w, http.StatusBadRequest, "Date invalide, format attendu YYYY-MM-DD")
		return
	}
	missions, err := h.missions.ByDate(r.Context(), date)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if missions == nil {
		missions = []db.Mission{}
	}
	JSON(w, http.StatusOK, missions)
}

// Get handles GET /missions/{id}.
func (h *MissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	mission, err := h.missions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, mission)
}

// GetByUUID handles GET /missions/uuid/{uuid}, the idempotent client
// reference lookup.
func (h *MissionHandler) GetByUUID(w http.ResponseWriter, r *http.Request) {
	mission, err := h.missions.GetByUUID(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, mission)
}

// Create handles POST /missions.
func (h *MissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in missionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	identity := identityFromCtx(r.Context())
	var mission db.Mission
	errs, warnings := h.resolveInto(r, &in, &mission)
	if len(errs) > 0 {
		validationFailed(w, errs, warnings)
		return
	}
	if !checkPastEdit(w, identity, mission.DateMission) {
		return
	}

	// Double bookings are allowed but flagged.
	if mission.ChauffeurID != nil {
		n, err := h.missions.CountOnDate(r.Context(), *mission.ChauffeurID, mission.DateMission)
		if err != nil {
			h.log.Error("double-booking check failed", zap.Error(err))
		} else if n > 0 {
			warnings = append(warnings, fmt.Sprintf("Le chauffeur a déjà %d mission(s) ce jour", n))
		}
	}

	mission.CreatedBy = identity.User.Username
	mission.UpdatedBy = identity.User.Username
	if err := h.missions.Create(r.Context(), &mission); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionCreate, "mission", strconv.FormatInt(mission.ID, 10), nil, mission)
	h.pipe.notify("missions", "created", mission.ID, identity)

	JSON(w, http.StatusCreated, missionResponse{Mission: &mission, Warnings: warnings})
}

// Update handles PUT /missions/{id}.
func (h *MissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var in missionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	identity := identityFromCtx(r.Context())
	existing, err := h.missions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !checkPastEdit(w, identity, existing.DateMission) {
		return
	}
	before := *existing

	errs, warnings := h.resolveInto(r, &in, existing)
	if len(errs) > 0 {
		validationFailed(w, errs, warnings)
		return
	}
	if !checkPastEdit(w, identity, existing.DateMission) {
		return
	}

	existing.UpdatedBy = identity.User.Username
	if err := h.missions.Update(r.Context(), existing); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionUpdate, "mission", strconv.FormatInt(id, 10), before, existing)
	h.pipe.notify("missions", "updated", id, identity)

	JSON(w, http.StatusOK, missionResponse{Mission: existing, Warnings: warnings})
}

// Delete handles DELETE /missions/{id}. Missions are hard-deleted.
func (h *MissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	identity := identityFromCtx(r.Context())
	existing, err := h.missions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !checkPastEdit(w, identity, existing.DateMission) {
		return
	}

	if err := h.missions.Delete(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.pipe.audit(r, identity, db.ActionDelete, "mission", strconv.FormatInt(id, 10), existing, nil)
	h.pipe.notify("missions", "deleted", id, identity)

	JSON(w, http.StatusOK, map[string]string{"detail": "Mission supprimée"})
}

// BulkCreate handles POST /missions/bulk: all-or-nothing creation.
func (h *MissionHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var inputs []missionInput
	if !decodeJSON(w, r, &inputs) {
		return
	}
	if len(inputs) == 0 {
		validationFailed(w, []string{"aucune mission fournie"}, nil)
		return
	}

	identity := identityFromCtx(r.Context())
	missions := make([]*db.Mission, 0, len(inputs))
	var allErrs, allWarnings []string
	for i := range inputs {
		var m db.Mission
		errs, warnings := h.resolveInto(r, &inputs[i], &m)
		for _, e := range errs {
			allErrs = append(allErrs, fmt.Sprintf("mission %d: %s", i+1, e))
		}
		for _, wmsg := range warnings {
			allWarnings = append(allWarnings, fmt.Sprintf("mission %d: %s", i+1, wmsg))
		}
		m.CreatedBy = identity.User.Username
		m.UpdatedBy = identity.User.Username
		missions = append(missions, &m)
	}
	if len(allErrs) > 0 {
		validationFailed(w, allErrs, allWarnings)
		return
	}
	for _, m := range missions {
		if !checkPastEdit(w, identity, m.DateMission) {
			return
		}
	}

	if err := h.missions.CreateBulk(r.Context(), missions); err != nil {
		writeError(w, h.log, err)
		return
	}

	ids := make([]int64, len(missions))
	for i, m := range missions {
		ids[i] = m.ID
	}
	h.pipe.audit(r, identity, db.ActionBulkCreate, "mission", "", nil, map[string]any{"ids": ids})
	h.pipe.notify("missions", "refresh", nil, identity)

	JSON(w, http.StatusCreated, map[string]any{
		"created":  len(missions),
		"ids":      ids,
		"warnings": allWarnings,
	})
}

// missionFilterFromQuery parses the /missions query parameters.
func missionFilterFromQuery(r *http.Request) (repository.MissionFilter, error) {
	var f repository.MissionFilter
	q := r.URL.Query()

	for param, dest := range map[string]**db.Date{"date_debut": &f.DateFrom, "date_fin": &f.DateTo} {
		if v := q.Get(param); v != "" {
			d, err := db.ParseDate(v)
			if err != nil {
				return f, fmt.Errorf("%s: format attendu YYYY-MM-DD", param)
			}
			*dest = &d
		}
	}
	for param, dest := range map[string]**int64{
		"voyage_id":    &f.VoyageID,
		"chauffeur_id": &f.ChauffeurID,
		"sst_id":       &f.SSTID,
	} {
		if v := q.Get(param); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, errors.New(param + ": identifiant invalide")
			}
			*dest = &id
		}
	}
	f.Statut = q.Get("statut")
	f.TypeMission = strings.ToLower(q.Get("type_mission"))
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit invalide")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset invalide")
		}
		f.Offset = n
	}
	return f, nil
}
