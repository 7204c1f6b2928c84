package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/websocket"
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	auth     *auth.Service
	hub      *websocket.Hub
	validate *validator.Validate
	log      *zap.Logger
}

// NewAuthHandler builds the auth handler.
func NewAuthHandler(authSvc *auth.Service, hub *websocket.Hub, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     authSvc,
		hub:      hub,
		validate: validator.New(),
		log:      log,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Hostname string `json:"hostname"`
}

// userPayload is the user object embedded in login and /auth/me responses.
type userPayload struct {
	ID                 int64           `json:"id"`
	Username           string          `json:"username"`
	DisplayName        string          `json:"display_name"`
	Email              string          `json:"email,omitempty"`
	Role               string          `json:"role"`
	IsSystemAdmin      bool            `json:"is_system_admin"`
	MustChangePassword bool            `json:"must_change_password"`
	Permissions        map[string]bool `json:"permissions"`
}

func newUserPayload(user *db.User, permissions map[string]bool) userPayload {
	roleName := ""
	if user.Role != nil {
		roleName = user.Role.Name
	}
	return userPayload{
		ID:                 user.ID,
		Username:           user.Username,
		DisplayName:        user.DisplayName,
		Email:              user.Email,
		Role:               roleName,
		IsSystemAdmin:      user.IsSystemAdmin,
		MustChangePassword: user.MustChangePassword,
		Permissions:        permissions,
	}
}

func loginResponse(result *auth.LoginResult) map[string]any {
	return map[string]any{
		"access_token":         result.Token,
		"token_type":           "bearer",
		"expires_at":           result.ExpiresAt,
		"must_change_password": result.User.MustChangePassword,
		"user":                 newUserPayload(result.User, result.Permissions),
	}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		validationFailed(w, []string{"username et password sont requis"}, nil)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password, auth.ClientInfo{
		IP:        clientIP(r),
		Hostname:  req.Hostname,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	JSON(w, http.StatusOK, loginResponse(result))
}

// Logout handles POST /auth/logout. The session is revoked and any push
// channels of this user on that session are left to die on their next
// token validation; the REST token is dead immediately.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	if err := h.auth.Logout(r.Context(), identity); err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"detail": "Déconnecté"})
}

// Refresh handles POST /auth/refresh: issues a fresh token and invalidates
// the current one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	result, err := h.auth.Refresh(r.Context(), identity, auth.ClientInfo{
		IP:        clientIP(r),
		Hostname:  identity.Session.ClientHostname,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, loginResponse(result))
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	JSON(w, http.StatusOK, newUserPayload(identity.User, auth.EffectivePermissions(identity.User)))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ChangePassword handles POST /auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		validationFailed(w, []string{"current_password et new_password sont requis"}, nil)
		return
	}

	identity := identityFromCtx(r.Context())
	if err := h.auth.ChangePassword(r.Context(), identity, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.log, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"detail": "Mot de passe modifié"})
}
