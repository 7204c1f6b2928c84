// Package auth implements password authentication, the session table, JWT
// issuance and the capability matrix.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

const (
	// maxFailedAttempts locks the account when reached.
	maxFailedAttempts = 5

	// bootstrapAdminUsername is created on first start when the user table
	// is empty.
	bootstrapAdminUsername = "ADMIN"
)

// Config tunes the auth service. Zero values fall back to the defaults.
type Config struct {
	SessionTTL   time.Duration // default 8h
	LockDuration time.Duration // default 15min
}

// Service is the authentication core: login with lockout, session lifecycle,
// token validation, password management.
type Service struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	activity *repository.ActivityRepository
	jwt      *JWTManager
	log      *zap.Logger

	sessionTTL   time.Duration
	lockDuration time.Duration
}

// NewService wires the auth service.
func NewService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	activity *repository.ActivityRepository,
	jwtManager *JWTManager,
	log *zap.Logger,
	cfg Config,
) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 15 * time.Minute
	}
	return &Service{
		users:        users,
		sessions:     sessions,
		activity:     activity,
		jwt:          jwtManager,
		log:          log.Named("auth"),
		sessionTTL:   cfg.SessionTTL,
		lockDuration: cfg.LockDuration,
	}
}

// Bootstrap seeds the role matrix and, when the user table is empty, creates
// the initial admin account with a temporary password printed once to the
// operator log.
func (s *Service) Bootstrap(ctx context.Context) error {
	for _, role := range SeedRoles() {
		_, err := s.users.GetRoleByName(ctx, role.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("auth: checking seed role %s: %w", role.Name, err)
		}
		r := role
		if err := s.users.CreateRole(ctx, &r); err != nil {
			return fmt.Errorf("auth: seeding role %s: %w", role.Name, err)
		}
		s.log.Info("seeded role", zap.String("role", role.Name))
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tempPassword, err := GenerateTempPassword()
	if err != nil {
		return err
	}
	hash, err := HashPassword(tempPassword)
	if err != nil {
		return err
	}

	adminRole, err := s.users.GetRoleByName(ctx, "admin")
	if err != nil {
		return fmt.Errorf("auth: loading admin role: %w", err)
	}

	admin := &db.User{
		Username:           bootstrapAdminUsername,
		DisplayName:        "Administrateur",
		PasswordHash:       hash,
		MustChangePassword: true,
		IsActive:           true,
		IsSystemAdmin:      true,
		RoleID:             &adminRole.ID,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("auth: creating bootstrap admin: %w", err)
	}

	// Printed exactly once; the hash is what persists.
	s.log.Warn("bootstrap admin account created, change the password at first login",
		zap.String("username", bootstrapAdminUsername),
		zap.String("temporary_password", tempPassword))
	return nil
}

// LoginResult is everything the login endpoint returns.
type LoginResult struct {
	Token       string
	ExpiresAt   time.Time
	User        *db.User
	Session     *db.Session
	Permissions map[string]bool
}

// ClientInfo describes the calling client, recorded on the session and in
// the audit trail.
type ClientInfo struct {
	IP        string
	Hostname  string
	UserAgent string
}

// Login runs the full login algorithm: normalize, lookup, active check,
// lock check, password verify with failure counting, then session + token
// issuance. Failures never disclose whether the user exists.
func (s *Service) Login(ctx context.Context, username, password string, client ClientInfo) (*LoginResult, error) {
	username = NormalizeUsername(username)
	now := time.Now().UTC()

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.auditLoginFailure(ctx, username, client, "utilisateur inconnu")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		s.auditLoginFailure(ctx, username, client, "compte désactivé")
		return nil, ErrAccountDisabled
	}

	failed := user.FailedAttempts
	if user.LockedUntil != nil {
		if user.LockedUntil.After(now) {
			s.auditLoginFailure(ctx, username, client, "compte verrouillé")
			return nil, &LockedError{Minutes: remainingMinutes(now, *user.LockedUntil)}
		}
		// The lock has expired; the failure counter starts over.
		failed = 0
	}

	if !VerifyPassword(password, user.PasswordHash) {
		attempts := failed + 1
		var lockedUntil *time.Time
		if attempts >= maxFailedAttempts {
			t := now.Add(s.lockDuration)
			lockedUntil = &t
		}
		if err := s.users.RecordLoginFailure(ctx, user.ID, attempts, lockedUntil); err != nil {
			return nil, err
		}
		s.auditLoginFailure(ctx, username, client, "mot de passe invalide")
		remaining := maxFailedAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		return nil, &CredentialsError{Remaining: remaining}
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}

	session, token, err := s.openSession(ctx, user, client, now)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &db.ActivityLog{
		Username:   username,
		SessionID:  session.SessionID,
		ActionType: db.ActionLogin,
		ClientIP:   client.IP,
		UserAgent:  client.UserAgent,
	})
	s.log.Info("login", zap.String("username", username), zap.String("client_ip", client.IP))

	return &LoginResult{
		Token:       token,
		ExpiresAt:   session.ExpiresAt,
		User:        user,
		Session:     session,
		Permissions: EffectivePermissions(user),
	}, nil
}

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	User    *db.User
	Session *db.Session
}

// ValidateToken decodes a token, resolves its session and checks the
// session validity invariant. On success, last_activity is bumped.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetBySessionID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !session.IsActive || !now.Before(session.ExpiresAt) || session.User == nil || !session.User.IsActive {
		return nil, ErrSessionInvalid
	}

	if err := s.sessions.TouchActivity(ctx, session.SessionID, now); err != nil {
		return nil, err
	}
	session.LastActivity = now

	return &Identity{User: session.User, Session: session}, nil
}

// Logout revokes the session behind the identity.
func (s *Service) Logout(ctx context.Context, id *Identity) error {
	if err := s.sessions.Deactivate(ctx, id.Session.SessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.audit(ctx, &db.ActivityLog{
		Username:   id.User.Username,
		SessionID:  id.Session.SessionID,
		ActionType: db.ActionLogout,
	})
	return nil
}

// Refresh revokes the current session and issues a fresh one with a new
// token. The old token becomes unusable immediately.
func (s *Service) Refresh(ctx context.Context, id *Identity, client ClientInfo) (*LoginResult, error) {
	if err := s.sessions.Deactivate(ctx, id.Session.SessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	session, token, err := s.openSession(ctx, id.User, client, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:       token,
		ExpiresAt:   session.ExpiresAt,
		User:        id.User,
		Session:     session,
		Permissions: EffectivePermissions(id.User),
	}, nil
}

// ChangePassword verifies the current password, validates the new one
// against the policy, refuses reuse, then swaps the hash and clears
// must_change_password.
func (s *Service) ChangePassword(ctx context.Context, id *Identity, current, candidate string) error {
	user := id.User
	if !VerifyPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if current == candidate {
		return ErrPasswordReuse
	}
	if err := CheckPasswordPolicy(candidate); err != nil {
		return err
	}

	hash, err := HashPassword(candidate)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.audit(ctx, &db.ActivityLog{
		Username:   user.Username,
		SessionID:  id.Session.SessionID,
		ActionType: db.ActionPasswordChanged,
	})
	return nil
}

// AdminResetPassword generates a new temporary password for the target
// user, clears any lockout and forces a change at next login. The temporary
// password is returned to the calling admin.
func (s *Service) AdminResetPassword(ctx context.Context, adminUsername, targetUsername string) (string, error) {
	user, err := s.users.GetByUsername(ctx, NormalizeUsername(targetUsername))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	tempPassword, err := GenerateTempPassword()
	if err != nil {
		return "", err
	}
	hash, err := HashPassword(tempPassword)
	if err != nil {
		return "", err
	}

	user.PasswordHash = hash
	user.MustChangePassword = true
	user.FailedAttempts = 0
	user.LockedUntil = nil
	if err := s.users.Update(ctx, user); err != nil {
		return "", err
	}

	s.audit(ctx, &db.ActivityLog{
		Username:   adminUsername,
		ActionType: db.ActionPasswordReset,
		EntityType: "user",
		EntityID:   user.Username,
	})
	return tempPassword, nil
}

// ForceDisconnect revokes every active session of a user and returns how
// many were closed. The hub eviction is the caller's concern.
func (s *Service) ForceDisconnect(ctx context.Context, adminUsername, targetUsername string) (int64, error) {
	target := NormalizeUsername(targetUsername)
	user, err := s.users.GetByUsername(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	closed, err := s.sessions.DeactivateForUser(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, &db.ActivityLog{
		Username:   adminUsername,
		ActionType: db.ActionForceDisconnect,
		EntityType: "user",
		EntityID:   target,
	})
	s.log.Info("force disconnect",
		zap.String("admin", adminUsername),
		zap.String("target", target),
		zap.Int64("sessions_closed", closed))
	return closed, nil
}

// KickSession revokes one session by its opaque id.
func (s *Service) KickSession(ctx context.Context, adminUsername, sessionID string) error {
	if err := s.sessions.Deactivate(ctx, sessionID); err != nil {
		return err
	}
	s.audit(ctx, &db.ActivityLog{
		Username:   adminUsername,
		ActionType: db.ActionSessionKick,
		EntityType: "session",
		EntityID:   sessionID,
	})
	return nil
}

// KickAll revokes every active session except the calling admin's own, and
// returns how many were closed.
func (s *Service) KickAll(ctx context.Context, id *Identity) (int64, error) {
	closed, err := s.sessions.DeactivateAll(ctx, id.Session.SessionID)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, &db.ActivityLog{
		Username:   id.User.Username,
		SessionID:  id.Session.SessionID,
		ActionType: db.ActionSessionKickAll,
	})
	return closed, nil
}

// SweepExpiredSessions marks expired sessions inactive. Called by the
// scheduler.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	swept, err := s.sessions.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.log.Info("swept expired sessions", zap.Int64("count", swept))
	}
	return swept, nil
}

// openSession creates the session row and its matching token.
func (s *Service) openSession(ctx context.Context, user *db.User, client ClientInfo, now time.Time) (*db.Session, string, error) {
	sessionID, err := NewSessionID()
	if err != nil {
		return nil, "", err
	}

	session := &db.Session{
		SessionID:      sessionID,
		UserID:         user.ID,
		ClientIP:       client.IP,
		ClientHostname: client.Hostname,
		UserAgent:      client.UserAgent,
		CreatedAt:      now,
		LastActivity:   now,
		ExpiresAt:      now.Add(s.sessionTTL),
		IsActive:       true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}

	token, err := s.jwt.Generate(user.Username, sessionID, now)
	if err != nil {
		return nil, "", err
	}
	return session, token, nil
}

func (s *Service) auditLoginFailure(ctx context.Context, username string, client ClientInfo, reason string) {
	s.audit(ctx, &db.ActivityLog{
		Username:   username,
		ActionType: db.ActionLoginFailed,
		Details:    reason,
		ClientIP:   client.IP,
		UserAgent:  client.UserAgent,
	})
}

// audit appends an entry, logging instead of failing the caller when the
// write does not go through.
func (s *Service) audit(ctx context.Context, entry *db.ActivityLog) {
	if err := s.activity.Append(ctx, entry); err != nil {
		s.log.Error("audit append failed", zap.Error(err), zap.String("action", entry.ActionType))
	}
}

func remainingMinutes(now, until time.Time) int {
	return int(math.Ceil(until.Sub(now).Minutes()))
}
