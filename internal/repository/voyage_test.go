package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhub-io/planhub/internal/db"
)

func TestVoyageCodeUppercasedAndUnique(t *testing.T) {
	database := newTestDB(t)
	repo := NewVoyageRepository(database)
	ctx := context.Background()

	v := &db.Voyage{Code: "lyo-01", Nom: "Lyon matin", IsActive: true}
	require.NoError(t, repo.Create(ctx, v))
	assert.Equal(t, "LYO-01", v.Code)

	dup := &db.Voyage{Code: "LYO-01", Nom: "Doublon", IsActive: true}
	assert.True(t, errors.Is(repo.Create(ctx, dup), ErrConflict))

	got, err := repo.GetByCode(ctx, "lyo-01")
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
}

func TestVoyageListActiveOnly(t *testing.T) {
	database := newTestDB(t)
	repo := NewVoyageRepository(database)
	ctx := context.Background()

	createVoyage(t, repo, "AAA")
	bbb := createVoyage(t, repo, "BBB")
	require.NoError(t, repo.Deactivate(ctx, bbb.ID, "ADMIN"))

	all, err := repo.List(ctx, false, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.List(ctx, true, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "AAA", active[0].Code)
}

func TestVoyageListFilterByPays(t *testing.T) {
	database := newTestDB(t)
	repo := NewVoyageRepository(database)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &db.Voyage{Code: "LYO", Nom: "Lyon", Pays: "FR", IsActive: true}))
	require.NoError(t, repo.Create(ctx, &db.Voyage{Code: "ANV", Nom: "Anvers", Pays: "BE", IsActive: true}))

	french, err := repo.List(ctx, true, "FR")
	require.NoError(t, err)
	require.Len(t, french, 1)
	assert.Equal(t, "LYO", french[0].Code)

	all, err := repo.List(ctx, true, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVoyageDeactivateKeepsRow(t *testing.T) {
	database := newTestDB(t)
	repo := NewVoyageRepository(database)
	ctx := context.Background()

	v := createVoyage(t, repo, "AAA")
	require.NoError(t, repo.Deactivate(ctx, v.ID, "ADMIN"))

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "ADMIN", got.UpdatedBy)

	assert.True(t, errors.Is(repo.Deactivate(ctx, 9999, "ADMIN"), ErrNotFound))
}
