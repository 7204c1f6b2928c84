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

func TestChauffeurCodeUppercasedAndUnique(t *testing.T) {
	database := newTestDB(t)
	repo := NewChauffeurRepository(database)
	ctx := context.Background()

	c := &db.Chauffeur{Code: "mar-p", Nom: "Martin", Prenom: "Paul", IsActive: true}
	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, "MAR-P", c.Code)

	dup := &db.Chauffeur{Code: "MAR-P", Nom: "Autre", IsActive: true}
	assert.True(t, errors.Is(repo.Create(ctx, dup), ErrConflict))
}

func TestChauffeurListOrderedByName(t *testing.T) {
	database := newTestDB(t)
	repo := NewChauffeurRepository(database)
	ctx := context.Background()

	createChauffeur(t, repo, "CH2", "Martin", "Paul")
	createChauffeur(t, repo, "CH1", "Dubois", "Anne")
	inactive := createChauffeur(t, repo, "CH3", "Albert", "Zoe")
	require.NoError(t, repo.Deactivate(ctx, inactive.ID, "ADMIN"))

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Albert", all[0].Nom)

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Dubois", active[0].Nom)
	assert.Equal(t, "Martin", active[1].Nom)
}

func TestChauffeurDispos(t *testing.T) {
	database := newTestDB(t)
	repo := NewChauffeurRepository(database)
	ctx := context.Background()

	driver := createChauffeur(t, repo, "CH1", "Martin", "Paul")

	window := &db.ChauffeurDispo{
		ChauffeurID: driver.ID,
		DateDebut:   db.NewDate(2025, time.July, 1),
		DateFin:     db.NewDate(2025, time.July, 15),
		TypeAbsence: "conges",
		Motif:       "Congés d'été",
	}
	require.NoError(t, repo.CreateDispo(ctx, window))

	dispos, err := repo.ListDispos(ctx, driver.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, dispos, 1)
	assert.Equal(t, "conges", dispos[0].TypeAbsence)

	// Covered date, boundary dates included.
	for _, d := range []db.Date{
		db.NewDate(2025, time.July, 1),
		db.NewDate(2025, time.July, 8),
		db.NewDate(2025, time.July, 15),
	} {
		hit, err := repo.IsUnavailable(ctx, driver.ID, d)
		require.NoError(t, err)
		require.NotNil(t, hit, "expected %s to be covered", d)
		assert.Equal(t, window.ID, hit.ID)
	}

	// Outside the window the driver is free.
	hit, err := repo.IsUnavailable(ctx, driver.ID, db.NewDate(2025, time.July, 16))
	require.NoError(t, err)
	assert.Nil(t, hit)

	require.NoError(t, repo.DeleteDispo(ctx, window.ID))
	assert.True(t, errors.Is(repo.DeleteDispo(ctx, window.ID), ErrNotFound))
}

func TestChauffeurGetByCode(t *testing.T) {
	database := newTestDB(t)
	repo := NewChauffeurRepository(database)
	ctx := context.Background()

	created := createChauffeur(t, repo, "MAR-P", "Martin", "Paul")

	got, err := repo.GetByCode(ctx, "mar-p")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.GetByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestChauffeurListDisposWindow(t *testing.T) {
	database := newTestDB(t)
	repo := NewChauffeurRepository(database)
	ctx := context.Background()

	driver := createChauffeur(t, repo, "CH1", "Martin", "Paul")
	for _, w := range []struct{ from, to db.Date }{
		{db.NewDate(2025, time.June, 1), db.NewDate(2025, time.June, 5)},
		{db.NewDate(2025, time.July, 1), db.NewDate(2025, time.July, 15)},
		{db.NewDate(2025, time.August, 20), db.NewDate(2025, time.August, 25)},
	} {
		require.NoError(t, repo.CreateDispo(ctx, &db.ChauffeurDispo{
			ChauffeurID: driver.ID, DateDebut: w.from, DateFin: w.to, TypeAbsence: "conges",
		}))
	}

	// Overlap semantics: a window straddling the range boundary still counts.
	from := db.NewDate(2025, time.July, 10)
	to := db.NewDate(2025, time.August, 31)
	dispos, err := repo.ListDispos(ctx, driver.ID, &from, &to)
	require.NoError(t, err)
	require.Len(t, dispos, 2)
	// Chronological order.
	assert.Equal(t, "2025-07-01", dispos[0].DateDebut.String())
	assert.Equal(t, "2025-08-20", dispos[1].DateDebut.String())
}

func TestChauffeurAvailabilityPartition(t *testing.T) {
	database := newTestDB(t)
	repo := NewChauffeurRepository(database)
	ctx := context.Background()

	free := createChauffeur(t, repo, "CH1", "Dubois", "Anne")
	away := createChauffeur(t, repo, "CH2", "Martin", "Paul")
	inactive := createChauffeur(t, repo, "CH3", "Albert", "Zoe")
	require.NoError(t, repo.Deactivate(ctx, inactive.ID, "ADMIN"))

	require.NoError(t, repo.CreateDispo(ctx, &db.ChauffeurDispo{
		ChauffeurID: away.ID,
		DateDebut:   db.NewDate(2025, time.July, 1),
		DateFin:     db.NewDate(2025, time.July, 15),
		TypeAbsence: "maladie",
	}))

	avail, err := repo.AvailabilityOn(ctx, db.NewDate(2025, time.July, 8))
	require.NoError(t, err)
	require.Len(t, avail.Disponibles, 1)
	assert.Equal(t, free.ID, avail.Disponibles[0].ID)
	require.Len(t, avail.Indisponibles, 1)
	assert.Equal(t, away.ID, avail.Indisponibles[0].Chauffeur.ID)
	assert.Equal(t, "maladie", avail.Indisponibles[0].Dispo.TypeAbsence)

	// Everyone active is free outside the window.
	avail, err = repo.AvailabilityOn(ctx, db.NewDate(2025, time.August, 1))
	require.NoError(t, err)
	assert.Len(t, avail.Disponibles, 2)
	assert.Empty(t, avail.Indisponibles)
}
