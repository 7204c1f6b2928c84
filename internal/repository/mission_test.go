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

func TestMissionCreateAndGet(t *testing.T) {
	database := newTestDB(t)
	repo := NewMissionRepository(database)
	ctx := context.Background()

	m := &db.Mission{
		DateMission: db.NewDate(2025, time.March, 14),
		HeureDebut:  "08:00",
		TypeMission: db.MissionLivraison,
		Destination: "Lyon",
		Pays:        "FR",
		NbPalettes:  20,
		Statut:      db.MissionPlanifie,
	}
	require.NoError(t, repo.Create(ctx, m))
	assert.NotZero(t, m.ID)
	assert.NotEmpty(t, m.UUID)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", got.DateMission.String())
	assert.Equal(t, "Lyon", got.Destination)

	byHandle, err := repo.GetByUUID(ctx, m.UUID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byHandle.ID)

	_, err = repo.GetByID(ctx, 9999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMissionListOrdering(t *testing.T) {
	database := newTestDB(t)
	repo := NewMissionRepository(database)
	ctx := context.Background()

	day1 := db.NewDate(2025, time.March, 10)
	day2 := db.NewDate(2025, time.March, 11)
	for _, m := range []*db.Mission{
		{DateMission: day1, HeureDebut: "14:00", Statut: db.MissionPlanifie},
		{DateMission: day2, HeureDebut: "", Statut: db.MissionPlanifie},
		{DateMission: day2, HeureDebut: "06:00", Statut: db.MissionPlanifie},
		{DateMission: day1, HeureDebut: "08:00", Statut: db.MissionPlanifie},
	} {
		require.NoError(t, repo.Create(ctx, m))
	}

	missions, total, err := repo.List(ctx, MissionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, missions, 4)

	// Newest date first; within a date, start time ascending with missing
	// start times last.
	assert.Equal(t, "2025-03-11", missions[0].DateMission.String())
	assert.Equal(t, "06:00", missions[0].HeureDebut)
	assert.Equal(t, "", missions[1].HeureDebut)
	assert.Equal(t, "2025-03-10", missions[2].DateMission.String())
	assert.Equal(t, "08:00", missions[2].HeureDebut)
	assert.Equal(t, "14:00", missions[3].HeureDebut)
}

func TestMissionListFilters(t *testing.T) {
	database := newTestDB(t)
	repo := NewMissionRepository(database)
	chauffeurs := NewChauffeurRepository(database)
	ctx := context.Background()

	driver := createChauffeur(t, chauffeurs, "CH1", "Martin", "Paul")
	date := db.NewDate(2025, time.March, 14)

	require.NoError(t, repo.Create(ctx, &db.Mission{
		DateMission: date, ChauffeurID: &driver.ID, Statut: db.MissionPlanifie, TypeMission: db.MissionLivraison,
	}))
	require.NoError(t, repo.Create(ctx, &db.Mission{
		DateMission: date, Statut: db.MissionAnnule, TypeMission: db.MissionRamasse,
	}))

	missions, total, err := repo.List(ctx, MissionFilter{ChauffeurID: &driver.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, missions, 1)
	assert.Equal(t, db.MissionLivraison, missions[0].TypeMission)

	_, total, err = repo.List(ctx, MissionFilter{Statut: db.MissionAnnule})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	from := db.NewDate(2025, time.March, 15)
	_, total, err = repo.List(ctx, MissionFilter{DateFrom: &from})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestMissionCreateBulkAllOrNothing(t *testing.T) {
	database := newTestDB(t)
	repo := NewMissionRepository(database)
	ctx := context.Background()

	date := db.NewDate(2025, time.March, 14)
	good := &db.Mission{DateMission: date, Statut: db.MissionPlanifie}
	dup := &db.Mission{DateMission: date, Statut: db.MissionPlanifie}
	dup.UUID = "fixed-handle"
	clash := &db.Mission{DateMission: date, Statut: db.MissionPlanifie}
	clash.UUID = "fixed-handle"

	err := repo.CreateBulk(ctx, []*db.Mission{good, dup, clash})
	require.Error(t, err)

	_, total, err := repo.List(ctx, MissionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total, "a failed bulk insert must leave nothing behind")
}

func TestMissionCountOnDateExcludesCancelled(t *testing.T) {
	database := newTestDB(t)
	repo := NewMissionRepository(database)
	chauffeurs := NewChauffeurRepository(database)
	ctx := context.Background()

	driver := createChauffeur(t, chauffeurs, "CH1", "Martin", "Paul")
	date := db.NewDate(2025, time.March, 14)

	require.NoError(t, repo.Create(ctx, &db.Mission{DateMission: date, ChauffeurID: &driver.ID, Statut: db.MissionPlanifie}))
	require.NoError(t, repo.Create(ctx, &db.Mission{DateMission: date, ChauffeurID: &driver.ID, Statut: db.MissionAnnule}))

	n, err := repo.CountOnDate(ctx, driver.ID, date)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMissionUpdateAndDelete(t *testing.T) {
	database := newTestDB(t)
	repo := NewMissionRepository(database)
	ctx := context.Background()

	m := &db.Mission{DateMission: db.NewDate(2025, time.March, 14), Statut: db.MissionPlanifie}
	require.NoError(t, repo.Create(ctx, m))

	m.Statut = db.MissionTermine
	require.NoError(t, repo.Update(ctx, m))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MissionTermine, got.Statut)

	require.NoError(t, repo.Delete(ctx, m.ID))
	_, err = repo.GetByID(ctx, m.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, m.ID), ErrNotFound))
}
