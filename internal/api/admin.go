package api

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/backup"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
	"github.com/planhub-io/planhub/internal/websocket"
)

// AdminHandler serves the /admin endpoints: account management, role
// editing, session control, snapshots and log access.
type AdminHandler struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	activity *repository.ActivityRepository
	requests *repository.RequestLogRepository
	auth     *auth.Service
	backups  *backup.Service
	hub      *websocket.Hub
	pipe     *pipeline
	config   map[string]any
	log      *zap.Logger
}

// NewAdminHandler builds the admin handler. The config map is the sanitized
// runtime configuration shown on GET /admin/config; secrets must not be in it.
func NewAdminHandler(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	activity *repository.ActivityRepository,
	requests *repository.RequestLogRepository,
	authSvc *auth.Service,
	backups *backup.Service,
	hub *websocket.Hub,
	pipe *pipeline,
	config map[string]any,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		users:    users,
		sessions: sessions,
		activity: activity,
		requests: requests,
		auth:     authSvc,
		backups:  backups,
		hub:      hub,
		pipe:     pipe,
		config:   config,
		log:      log,
	}
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// adminUserPayload is the account view returned to rights managers.
type adminUserPayload struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	DisplayName        string     `json:"display_name"`
	Email              string     `json:"email"`
	Role               string     `json:"role"`
	IsActive           bool       `json:"is_active"`
	IsSystemAdmin      bool       `json:"is_system_admin"`
	MustChangePassword bool       `json:"must_change_password"`
	LastLogin          *time.Time `json:"last_login"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newAdminUserPayload(u *db.User) adminUserPayload {
	roleName := ""
	if u.Role != nil {
		roleName = u.Role.Name
	}
	return adminUserPayload{
		ID:                 u.ID,
		Username:           u.Username,
		DisplayName:        u.DisplayName,
		Email:              u.Email,
		Role:               roleName,
		IsActive:           u.IsActive,
		IsSystemAdmin:      u.IsSystemAdmin,
		MustChangePassword: u.MustChangePassword,
		LastLogin:          u.LastLogin,
		CreatedAt:          u.CreatedAt,
	}
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]adminUserPayload, len(users))
	for i := range users {
		out[i] = newAdminUserPayload(&users[i])
	}
	JSON(w, http.StatusOK, out)
}

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Password    string `json:"password"`
}

// CreateUser handles POST /admin/users. Without a password a temporary one
// is generated and returned once; either way the account must change it at
// first login.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var errs []string
	username := auth.NormalizeUsername(req.Username)
	if username == "" {
		errs = append(errs, "username est requis")
	}
	if strings.TrimSpace(req.Role) == "" {
		errs = append(errs, "role est requis")
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			errs = append(errs, "email invalide")
		}
	}
	if len(errs) > 0 {
		validationFailed(w, errs, nil)
		return
	}

	role, err := h.users.GetRoleByName(r.Context(), req.Role)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	password := req.Password
	tempPassword := ""
	if password == "" {
		tempPassword, err = auth.GenerateTempPassword()
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		password = tempPassword
	} else if err := auth.CheckPasswordPolicy(password); err != nil {
		writeError(w, h.log, err)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	user := &db.User{
		Username:           username,
		DisplayName:        req.DisplayName,
		Email:              req.Email,
		PasswordHash:       hash,
		MustChangePassword: true,
		IsActive:           true,
		RoleID:             &role.ID,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		writeError(w, h.log, err)
		return
	}
	user.Role = role

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionCreate, "user", username, nil, newAdminUserPayload(user))

	response := map[string]any{"user": newAdminUserPayload(user)}
	if tempPassword != "" {
		response["temp_password"] = tempPassword
	}
	JSON(w, http.StatusCreated, response)
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Role        *string `json:"role"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateUser handles PUT /admin/users/{id}. Usernames and the system admin
// flag are immutable through the API.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	before := newAdminUserPayload(user)

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		if *req.Email != "" {
			if _, err := mail.ParseAddress(*req.Email); err != nil {
				validationFailed(w, []string{"email invalide"}, nil)
				return
			}
		}
		user.Email = *req.Email
	}
	if req.Role != nil {
		role, err := h.users.GetRoleByName(r.Context(), *req.Role)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		user.RoleID = &role.ID
		user.Role = role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.users.Update(r.Context(), user); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionUpdate, "user", user.Username, before, newAdminUserPayload(user))

	JSON(w, http.StatusOK, newAdminUserPayload(user))
}

// DeactivateUser handles DELETE /admin/users/{id}: the account is disabled,
// never removed, and its sessions are revoked.
func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	if user.ID == identity.User.ID {
		Detail(w, http.StatusBadRequest, "Impossible de désactiver son propre compte")
		return
	}

	user.IsActive = false
	if err := h.users.Update(r.Context(), user); err != nil {
		writeError(w, h.log, err)
		return
	}
	if _, err := h.sessions.DeactivateForUser(r.Context(), user.ID); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.hub.DisconnectUser(user.Username)

	h.pipe.audit(r, identity, db.ActionDeactivate, "user", user.Username, nil, nil)

	JSON(w, http.StatusOK, map[string]string{"detail": "Compte désactivé"})
}

// ResetPassword handles POST /admin/users/{id}/reset-password. The
// temporary password is returned exactly once.
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	tempPassword, err := h.auth.AdminResetPassword(r.Context(), identity.User.Username, user.Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"temp_password": tempPassword})
}

// -----------------------------------------------------------------------------
// Roles
// -----------------------------------------------------------------------------

// ListRoles handles GET /admin/roles.
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.users.ListRoles(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if roles == nil {
		roles = []db.Role{}
	}
	JSON(w, http.StatusOK, roles)
}

// UpdateRole handles PUT /admin/roles/{id}: the capability bits and the
// description are replaced; the name is immutable.
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Detail(w, http.StatusBadRequest, "Identifiant invalide")
		return
	}

	existing, err := h.users.GetRole(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	before := *existing

	updated := *existing
	if !decodeJSON(w, r, &updated) {
		return
	}
	updated.ID = existing.ID
	updated.Name = existing.Name
	updated.CreatedAt = existing.CreatedAt

	if err := h.users.UpdateRole(r.Context(), &updated); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionUpdate, "role", updated.Name, before, updated)
	h.pipe.notify("roles", "updated", updated.ID, identity)

	JSON(w, http.StatusOK, updated)
}

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

// sessionPayload is the session view for the monitoring screen.
type sessionPayload struct {
	SessionID      string    `json:"session_id"`
	Username       string    `json:"username"`
	ClientIP       string    `json:"client_ip"`
	ClientHostname string    `json:"client_hostname"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	ExpiresAt      time.Time `json:"expires_at"`
	Connected      bool      `json:"connected"`
}

// ListSessions handles GET /admin/sessions: active sessions, flagged with
// live WebSocket presence.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	online := make(map[string]bool)
	for _, username := range h.hub.ConnectedUsers() {
		online[username] = true
	}

	out := make([]sessionPayload, 0, len(sessions))
	for _, s := range sessions {
		username := ""
		if s.User != nil {
			username = s.User.Username
		}
		out = append(out, sessionPayload{
			SessionID:      s.SessionID,
			Username:       username,
			ClientIP:       s.ClientIP,
			ClientHostname: s.ClientHostname,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivity:   s.LastActivity,
			ExpiresAt:      s.ExpiresAt,
			Connected:      online[username],
		})
	}
	JSON(w, http.StatusOK, out)
}

// DisconnectUser handles POST /admin/sessions/disconnect/{username}: every
// session of the user is revoked and their push channels are closed.
func (h *AdminHandler) DisconnectUser(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	target := chi.URLParam(r, "username")

	closed, err := h.auth.ForceDisconnect(r.Context(), identity.User.Username, target)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	evicted := h.hub.DisconnectUser(auth.NormalizeUsername(target))

	JSON(w, http.StatusOK, map[string]any{
		"sessions_fermees": closed,
		"ws_fermees":       evicted,
	})
}

// KickSession handles POST /admin/sessions/{sid}/kick.
func (h *AdminHandler) KickSession(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	sid := chi.URLParam(r, "sid")

	if err := h.auth.KickSession(r.Context(), identity.User.Username, sid); err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"detail": "Session fermée"})
}

// KickAll handles POST /admin/sessions/kick-all: every session except the
// caller's is revoked.
func (h *AdminHandler) KickAll(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	closed, err := h.auth.KickAll(r.Context(), identity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions_fermees": closed})
}

// -----------------------------------------------------------------------------
// Backups
// -----------------------------------------------------------------------------

// ListBackups handles GET /admin/backups, newest first.
func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	infos, err := h.backups.List()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if infos == nil {
		infos = []backup.Info{}
	}
	JSON(w, http.StatusOK, infos)
}

type createBackupRequest struct {
	Description string `json:"description"`
}

// CreateBackup handles POST /admin/backups?description=. The description can
// also come from a JSON body; the query parameter wins.
func (h *AdminHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	description := r.URL.Query().Get("description")
	if description == "" {
		var req createBackupRequest
		if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
			return
		}
		description = req.Description
	}
	if description == "" {
		description = "Sauvegarde manuelle"
	}

	info, err := h.backups.Create(description)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionBackupCreate, "backup", info.Filename, nil, info)

	JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"backup_file": info.Filename,
		"size_bytes":  info.SizeBytes,
		"created_at":  info.CreatedAt,
		"description": info.Description,
	})
}

// RestoreBackup handles POST /admin/backups/restore/{filename}. System admin
// only; a safety copy of the live database is written first. All clients are
// told to reload afterwards.
func (h *AdminHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	safetyCopy, err := h.backups.Restore(filename)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionBackupRestore, "backup", filename, nil,
		map[string]string{"safety_copy": safetyCopy})
	h.hub.NotifyRefresh("")

	JSON(w, http.StatusOK, map[string]string{
		"detail":      "Base restaurée, redémarrage du serveur recommandé",
		"safety_copy": safetyCopy,
	})
}

// DeleteBackup handles DELETE /admin/backups/{filename}.
func (h *AdminHandler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := h.backups.Delete(filename); err != nil {
		writeError(w, h.log, err)
		return
	}

	identity := identityFromCtx(r.Context())
	h.pipe.audit(r, identity, db.ActionDelete, "backup", filename, nil, nil)

	JSON(w, http.StatusOK, map[string]string{"detail": "Sauvegarde supprimée"})
}

// CleanupBackups handles POST /admin/backups/cleanup?retention_days=N.
func (h *AdminHandler) CleanupBackups(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "retention_days", 30)
	removed, err := h.backups.Cleanup(days)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"retention_days": days, "supprimees": removed})
}

// -----------------------------------------------------------------------------
// Config and logs
// -----------------------------------------------------------------------------

// Config handles GET /admin/config: the sanitized runtime configuration.
func (h *AdminHandler) Config(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.config)
}

// ActivityLogs handles GET /admin/logs with username, action_type,
// date_start/date_end and pagination filters.
func (h *AdminHandler) ActivityLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ActivityFilter{
		Username:   q.Get("username"),
		ActionType: q.Get("action_type"),
		Limit:      intQuery(r, "limit", 100),
		Offset:     intQuery(r, "offset", 0),
	}
	for param, dest := range map[string]**time.Time{"date_start": &filter.DateFrom, "date_end": &filter.DateTo} {
		if v := q.Get(param); v != "" {
			d, err := db.ParseDate(v)
			if err != nil {
				Detail(w, http.StatusBadRequest, param+": format attendu YYYY-MM-DD")
				return
			}
			t := d.Time
			if param == "date_end" {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			*dest = &t
		}
	}

	entries, total, err := h.activity.Query(r.Context(), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []db.ActivityLog{}
	}
	JSON(w, http.StatusOK, map[string]any{"total": total, "items": entries})
}

// RequestLogs handles GET /admin/logs/requests with pagination.
func (h *AdminHandler) RequestLogs(w http.ResponseWriter, r *http.Request) {
	entries, total, err := h.requests.List(r.Context(), repository.ListOptions{
		Limit:  intQuery(r, "limit", 100),
		Offset: intQuery(r, "offset", 0),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []db.ApiRequestLog{}
	}
	JSON(w, http.StatusOK, map[string]any{"total": total, "items": entries})
}
