package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the auth service. Handlers map them to HTTP
// statuses at the api boundary.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenInvalid       = errors.New("auth: token invalid")
	ErrSessionInvalid     = errors.New("auth: session invalid")
	ErrPasswordReuse      = errors.New("auth: new password must be different")
	ErrUserNotFound       = errors.New("auth: user not found")
)

// CredentialsError is an ErrInvalidCredentials carrying the number of
// attempts left before lockout, so the client can display it.
type CredentialsError struct {
	Remaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("Identifiants invalides. %d tentative(s) restante(s)", e.Remaining)
}

// Unwrap lets errors.Is match ErrInvalidCredentials.
func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// LockedError is an ErrAccountLocked carrying the remaining lock duration in
// whole minutes, rounded up.
type LockedError struct {
	Minutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("Compte verrouillé; réessayez dans %d minutes", e.Minutes)
}

// Unwrap lets errors.Is match ErrAccountLocked.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// PolicyError reports the password policy rules the candidate violates.
type PolicyError struct {
	Problems []string
}

func (e *PolicyError) Error() string {
	if len(e.Problems) == 0 {
		return "auth: password rejected by policy"
	}
	return "auth: password rejected by policy: " + e.Problems[0]
}
