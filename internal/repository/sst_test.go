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

func TestSSTCodeUppercasedAndUnique(t *testing.T) {
	database := newTestDB(t)
	repo := NewSSTRepository(database)
	ctx := context.Background()

	s := &db.SST{Code: "trx", Nom: "TransExpress", IsActive: true}
	require.NoError(t, repo.Create(ctx, s))
	assert.Equal(t, "TRX", s.Code)

	dup := &db.SST{Code: "TRX", Nom: "Doublon", IsActive: true}
	assert.True(t, errors.Is(repo.Create(ctx, dup), ErrConflict))
}

func TestSSTTarifs(t *testing.T) {
	database := newTestDB(t)
	repo := NewSSTRepository(database)
	ctx := context.Background()

	s := createSST(t, repo, "TRX", "TransExpress")

	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: s.ID, Destination: "Lyon", Prix: 450, Unite: "voyage", IsActive: true,
	}))
	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: s.ID, Destination: "Bordeaux", Prix: 12.5, Unite: "palette", IsActive: true,
	}))

	tarifs, err := repo.ListTarifs(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, tarifs, 2)
	assert.Equal(t, "Bordeaux", tarifs[0].Destination)
	assert.Equal(t, "Lyon", tarifs[1].Destination)

	other := createSST(t, repo, "AAA", "Autre")
	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: other.ID, Destination: "Lille", Prix: 300, Unite: "voyage", IsActive: true,
	}))

	all, err := repo.ListAllTarifs(ctx, TarifFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSSTGetByCode(t *testing.T) {
	database := newTestDB(t)
	repo := NewSSTRepository(database)
	ctx := context.Background()

	created := createSST(t, repo, "TRX", "TransExpress")

	got, err := repo.GetByCode(ctx, "trx")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.GetByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSSTListAllTarifsFilters(t *testing.T) {
	database := newTestDB(t)
	repo := NewSSTRepository(database)
	ctx := context.Background()

	trx := createSST(t, repo, "TRX", "TransExpress")
	other := createSST(t, repo, "AAA", "Autre")

	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: trx.ID, Destination: "Lyon Nord", Prix: 450, Unite: "voyage", IsActive: true,
	}))
	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: trx.ID, Destination: "Bordeaux", Prix: 500, Unite: "voyage", IsActive: false,
	}))
	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: other.ID, Destination: "Lyon Sud", Prix: 300, Unite: "voyage", IsActive: true,
	}))

	// active_only drops the deactivated Bordeaux tariff.
	active, err := repo.ListAllTarifs(ctx, TarifFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// Destination is a substring match.
	lyon, err := repo.ListAllTarifs(ctx, TarifFilter{Destination: "Lyon"})
	require.NoError(t, err)
	assert.Len(t, lyon, 2)

	// Subcontractor code is matched case-insensitively via its upper-case form.
	byCode, err := repo.ListAllTarifs(ctx, TarifFilter{SSTCode: "trx"})
	require.NoError(t, err)
	require.Len(t, byCode, 2)
	for _, tarif := range byCode {
		assert.Equal(t, trx.ID, tarif.SSTID)
	}

	combined, err := repo.ListAllTarifs(ctx, TarifFilter{SSTCode: "TRX", Destination: "Lyon", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "Lyon Nord", combined[0].Destination)
}

func TestSSTActiveTarifForWindow(t *testing.T) {
	database := newTestDB(t)
	repo := NewSSTRepository(database)
	ctx := context.Background()

	s := createSST(t, repo, "TRX", "TransExpress")
	from := db.NewDate(2025, time.January, 1)
	to := db.NewDate(2025, time.June, 30)

	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: s.ID, Destination: "Lyon", Prix: 450, Unite: "voyage",
		DateDebut: &from, DateFin: &to, IsActive: true,
	}))
	// Open-ended tariff taking over afterwards.
	later := db.NewDate(2025, time.July, 1)
	require.NoError(t, repo.CreateTarif(ctx, &db.TarifSST{
		SSTID: s.ID, Destination: "Lyon", Prix: 480, Unite: "voyage",
		DateDebut: &later, IsActive: true,
	}))

	tarif, err := repo.ActiveTarifFor(ctx, s.ID, "Lyon", db.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, 450.0, tarif.Prix)

	tarif, err = repo.ActiveTarifFor(ctx, s.ID, "Lyon", db.NewDate(2025, time.August, 1))
	require.NoError(t, err)
	assert.Equal(t, 480.0, tarif.Prix)

	_, err = repo.ActiveTarifFor(ctx, s.ID, "Marseille", db.NewDate(2025, time.March, 10))
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deactivated tariffs never match.
	tarif, err = repo.ActiveTarifFor(ctx, s.ID, "Lyon", db.NewDate(2025, time.August, 1))
	require.NoError(t, err)
	tarif.IsActive = false
	require.NoError(t, repo.UpdateTarif(ctx, tarif))
	_, err = repo.ActiveTarifFor(ctx, s.ID, "Lyon", db.NewDate(2025, time.August, 1))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSSTEmailPrimaryDemotion(t *testing.T) {
	database := newTestDB(t)
	repo := NewSSTRepository(database)
	ctx := context.Background()

	s := createSST(t, repo, "TRX", "TransExpress")

	first := &db.SSTEmail{SSTID: s.ID, Email: "contact@trx.example", IsPrimary: true}
	require.NoError(t, repo.CreateEmail(ctx, first))
	second := &db.SSTEmail{SSTID: s.ID, Email: "compta@trx.example", IsPrimary: true}
	require.NoError(t, repo.CreateEmail(ctx, second))

	emails, err := repo.ListEmails(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "compta@trx.example", emails[0].Email)
	assert.True(t, emails[0].IsPrimary)
	assert.False(t, emails[1].IsPrimary)

	// A non-primary address leaves the current primary alone.
	third := &db.SSTEmail{SSTID: s.ID, Email: "exploitation@trx.example"}
	require.NoError(t, repo.CreateEmail(ctx, third))
	emails, err = repo.ListEmails(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, emails, 3)
	assert.True(t, emails[0].IsPrimary)

	require.NoError(t, repo.DeleteEmail(ctx, third.ID))
	assert.True(t, errors.Is(repo.DeleteEmail(ctx, third.ID), ErrNotFound))
}
