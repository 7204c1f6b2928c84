// Package api implements the HTTP layer: router, middleware chain and the
// per-resource handlers. Every handler follows the same pipeline: authorize,
// validate, execute in one transaction, audit, fan out, respond.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/backup"
	"github.com/planhub-io/planhub/internal/repository"
)

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Detail writes an error response in the {"detail": message} shape every
// error on this API uses.
func Detail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

// ValidationProblem is the 400 body for failed domain validation. Warnings
// never cause a 400 by themselves; they ride along on success responses.
type ValidationProblem struct {
	Detail   string   `json:"detail"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// validationFailed writes the field-level 400 response.
func validationFailed(w http.ResponseWriter, errs, warnings []string) {
	if warnings == nil {
		warnings = []string{}
	}
	JSON(w, http.StatusBadRequest, ValidationProblem{
		Detail:   "Validation échouée",
		Errors:   errs,
		Warnings: warnings,
	})
}

// writeError maps domain errors to HTTP statuses in one place. Anything
// unrecognized becomes a 500 without leaking internals.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var credErr *auth.CredentialsError
	var lockErr *auth.LockedError
	var policyErr *auth.PolicyError

	switch {
	case errors.As(err, &credErr):
		Detail(w, http.StatusUnauthorized, credErr.Error())
	case errors.As(err, &lockErr):
		Detail(w, http.StatusUnauthorized, lockErr.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		Detail(w, http.StatusUnauthorized, "Identifiants invalides")
	case errors.Is(err, auth.ErrAccountDisabled):
		Detail(w, http.StatusUnauthorized, "Compte désactivé")
	case errors.Is(err, auth.ErrTokenExpired):
		Detail(w, http.StatusUnauthorized, "Session expirée")
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrSessionInvalid):
		Detail(w, http.StatusUnauthorized, "Session invalide")
	case errors.As(err, &policyErr):
		validationFailed(w, policyErr.Problems, nil)
	case errors.Is(err, auth.ErrPasswordReuse):
		Detail(w, http.StatusBadRequest, "Le nouveau mot de passe doit être différent de l'actuel")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, repository.ErrNotFound), errors.Is(err, backup.ErrBackupNotFound):
		Detail(w, http.StatusNotFound, "Ressource introuvable")
	case errors.Is(err, repository.ErrConflict):
		Detail(w, http.StatusConflict, "Un enregistrement avec ce code existe déjà")
	default:
		log.Error("internal error", zap.Error(err))
		Detail(w, http.StatusInternalServerError, "Erreur interne du serveur")
	}
}

// decodeJSON decodes the request body into dst, bounded at 1 MB. Unknown
// fields are tolerated on purpose: older clients send legacy aliases that
// the input types resolve at the edge.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Detail(w, http.StatusBadRequest, fmt.Sprintf("Corps de requête invalide: %v", err))
		return false
	}
	return true
}
