package auth

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

func newTestService(t *testing.T) (*Service, *repository.UserRepository) {
	t.Helper()

	database, err := db.New(db.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)

	users := repository.NewUserRepository(database)
	sessions := repository.NewSessionRepository(database)
	activity := repository.NewActivityRepository(database)

	jwtManager, err := NewJWTManager("test-secret", "planhub", time.Hour)
	require.NoError(t, err)

	svc := NewService(users, sessions, activity, jwtManager, zap.NewNop(), Config{
		SessionTTL:   time.Hour,
		LockDuration: 15 * time.Minute,
	})
	require.NoError(t, svc.Bootstrap(context.Background()))
	return svc, users
}

func createTestUser(t *testing.T, users *repository.UserRepository, username, password, roleName string) *db.User {
	t.Helper()

	role, err := users.GetRoleByName(context.Background(), roleName)
	require.NoError(t, err)

	hash, err := HashPassword(password)
	require.NoError(t, err)

	user := &db.User{
		Username:     NormalizeUsername(username),
		DisplayName:  username,
		PasswordHash: hash,
		IsActive:     true,
		RoleID:       &role.ID,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestBootstrapSeedsRolesAndAdmin(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	roles, err := users.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 7)

	admin, err := users.GetByUsername(ctx, "ADMIN")
	require.NoError(t, err)
	assert.True(t, admin.IsSystemAdmin)
	assert.True(t, admin.MustChangePassword)
	assert.NotEmpty(t, admin.PasswordHash)

	// Running again must not duplicate anything.
	require.NoError(t, svc.Bootstrap(ctx))
	roles, err = users.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 7)
	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestLoginSuccess(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "planner")

	result, err := svc.Login(ctx, `CORP\dupont`, "Secret123", ClientInfo{IP: "10.0.0.5"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "DUPONT", result.User.Username)
	assert.True(t, result.Permissions[CapEditPlanning])
	assert.False(t, result.Permissions[CapManageRights])

	identity, err := svc.ValidateToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "DUPONT", identity.User.Username)
	assert.Equal(t, result.Session.SessionID, identity.Session.SessionID)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody", "whatever", ClientInfo{})
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestLoginWrongPasswordCountsDown(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	// The fifth failure sets the lock and still reports zero remaining.
	for i := 1; i <= 5; i++ {
		_, err := svc.Login(ctx, "dupont", "wrong", ClientInfo{})
		var credErr *CredentialsError
		require.ErrorAs(t, err, &credErr)
		assert.Equal(t, 5-i, credErr.Remaining)
		assert.Equal(t,
			fmt.Sprintf("Identifiants invalides. %d tentative(s) restante(s)", 5-i),
			credErr.Error())
	}
}

func TestLoginLockout(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "dupont", "wrong", ClientInfo{})
		assert.Error(t, err)
	}

	// Even the correct password is refused while locked.
	_, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	var lockedErr *LockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.Greater(t, lockedErr.Minutes, 0)
	assert.LessOrEqual(t, lockedErr.Minutes, 15)
}

func TestLockoutExpiryResetsCounter(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	user := createTestUser(t, users, "dupont", "Secret123", "viewer")

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "dupont", "wrong", ClientInfo{})
		assert.Error(t, err)
	}

	// Move the lock deadline into the past, as if it had run out.
	expired := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, users.RecordLoginFailure(ctx, user.ID, 5, &expired))

	// A wrong password after expiry counts as a fresh first failure, not
	// an immediate re-lock.
	_, err := svc.Login(ctx, "dupont", "wrong", ClientInfo{})
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 4, credErr.Remaining)

	// And the correct password goes through.
	require.NoError(t, users.RecordLoginFailure(ctx, user.ID, 5, &expired))
	_, err = svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	assert.NoError(t, err)
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, "dupont", "wrong", ClientInfo{})
		assert.Error(t, err)
	}
	_, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)

	// The counter restarts from scratch.
	_, err = svc.Login(ctx, "dupont", "wrong", ClientInfo{})
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 4, credErr.Remaining)
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	user := createTestUser(t, users, "dupont", "Secret123", "viewer")

	user.IsActive = false
	require.NoError(t, users.Update(ctx, user))

	_, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	assert.True(t, errors.Is(err, ErrAccountDisabled))
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	result, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)

	identity, err := svc.ValidateToken(ctx, result.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, identity))

	_, err = svc.ValidateToken(ctx, result.Token)
	assert.True(t, errors.Is(err, ErrSessionInvalid))
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	first, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)
	identity, err := svc.ValidateToken(ctx, first.Token)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, identity, ClientInfo{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
	assert.NotEqual(t, first.Session.SessionID, second.Session.SessionID)

	_, err = svc.ValidateToken(ctx, first.Token)
	assert.Error(t, err)
	_, err = svc.ValidateToken(ctx, second.Token)
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	result, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)
	identity, err := svc.ValidateToken(ctx, result.Token)
	require.NoError(t, err)

	// Wrong current password.
	err = svc.ChangePassword(ctx, identity, "nope", "Autre456x")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	// Reuse refused.
	err = svc.ChangePassword(ctx, identity, "Secret123", "Secret123")
	assert.True(t, errors.Is(err, ErrPasswordReuse))

	// Policy violation.
	err = svc.ChangePassword(ctx, identity, "Secret123", "weak")
	var policyErr *PolicyError
	assert.ErrorAs(t, err, &policyErr)

	// Success.
	require.NoError(t, svc.ChangePassword(ctx, identity, "Secret123", "Autre456x"))
	_, err = svc.Login(ctx, "dupont", "Autre456x", ClientInfo{})
	assert.NoError(t, err)
	_, err = svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	assert.Error(t, err)
}

func TestAdminResetPassword(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	temp, err := svc.AdminResetPassword(ctx, "ADMIN", "dupont")
	require.NoError(t, err)
	assert.NoError(t, CheckPasswordPolicy(temp))

	result, err := svc.Login(ctx, "dupont", temp, ClientInfo{})
	require.NoError(t, err)
	assert.True(t, result.User.MustChangePassword)

	_, err = svc.AdminResetPassword(ctx, "ADMIN", "nobody")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestForceDisconnect(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	first, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)
	second, err := svc.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)

	closed, err := svc.ForceDisconnect(ctx, "ADMIN", "dupont")
	require.NoError(t, err)
	assert.EqualValues(t, 2, closed)

	_, err = svc.ValidateToken(ctx, first.Token)
	assert.Error(t, err)
	_, err = svc.ValidateToken(ctx, second.Token)
	assert.Error(t, err)
}

func TestSweepExpiredSessions(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	createTestUser(t, users, "dupont", "Secret123", "viewer")

	short := NewService(svc.users, svc.sessions, svc.activity, svc.jwt, zap.NewNop(), Config{
		SessionTTL:   time.Millisecond,
		LockDuration: 15 * time.Minute,
	})
	_, err := short.Login(ctx, "dupont", "Secret123", ClientInfo{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	swept, err := svc.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)
}
