package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/planhub-io/planhub/internal/db"
)

// newTestDB opens a throwaway SQLite database with the full schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.New(db.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return database
}

func createVoyage(t *testing.T, repo *VoyageRepository, code string) *db.Voyage {
	t.Helper()
	v := &db.Voyage{Code: code, Nom: "Ligne " + code, IsActive: true}
	require.NoError(t, repo.Create(context.Background(), v))
	return v
}

func createChauffeur(t *testing.T, repo *ChauffeurRepository, code, nom, prenom string) *db.Chauffeur {
	t.Helper()
	c := &db.Chauffeur{Code: code, Nom: nom, Prenom: prenom, IsActive: true}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func createSST(t *testing.T, repo *SSTRepository, code, nom string) *db.SST {
	t.Helper()
	s := &db.SST{Code: code, Nom: nom, IsActive: true}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}
