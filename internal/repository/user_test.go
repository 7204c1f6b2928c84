package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhub-io/planhub/internal/db"
)

func TestUserCreateAndLookup(t *testing.T) {
	database := newTestDB(t)
	repo := NewUserRepository(database)
	ctx := context.Background()

	role := &db.Role{Name: "planner", EditPlanning: true}
	require.NoError(t, repo.CreateRole(ctx, role))

	u := &db.User{Username: "DUPONT", DisplayName: "Dupont", IsActive: true, RoleID: &role.ID}
	require.NoError(t, repo.Create(ctx, u))

	dup := &db.User{Username: "DUPONT", IsActive: true}
	assert.True(t, errors.Is(repo.Create(ctx, dup), ErrConflict))

	got, err := repo.GetByUsername(ctx, "DUPONT")
	require.NoError(t, err)
	require.NotNil(t, got.Role)
	assert.Equal(t, "planner", got.Role.Name)
	assert.True(t, got.Role.EditPlanning)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = repo.GetByUsername(ctx, "NOBODY")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUserLoginFailureBookkeeping(t *testing.T) {
	database := newTestDB(t)
	repo := NewUserRepository(database)
	ctx := context.Background()

	u := &db.User{Username: "DUPONT", IsActive: true}
	require.NoError(t, repo.Create(ctx, u))

	until := time.Now().Add(15 * time.Minute)
	require.NoError(t, repo.RecordLoginFailure(ctx, u.ID, 5, &until))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)

	require.NoError(t, repo.RecordLoginSuccess(ctx, u.ID, time.Now()))
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLogin)
}

func TestRoleUniqueNameAndUpdate(t *testing.T) {
	database := newTestDB(t)
	repo := NewUserRepository(database)
	ctx := context.Background()

	role := &db.Role{Name: "finance"}
	require.NoError(t, repo.CreateRole(ctx, role))
	assert.True(t, errors.Is(repo.CreateRole(ctx, &db.Role{Name: "finance"}), ErrConflict))

	role.ViewFinance = true
	require.NoError(t, repo.UpdateRole(ctx, role))

	got, err := repo.GetRoleByName(ctx, "finance")
	require.NoError(t, err)
	assert.True(t, got.ViewFinance)

	roles, err := repo.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}
