package backup

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "live.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("live database contents"), 0o644))
	dir := filepath.Join(t.TempDir(), "backups")
	svc, err := NewService(dbPath, dir, zap.NewNop())
	require.NoError(t, err)
	return svc, dbPath, dir
}

// plantSnapshot drops a snapshot and its sidecar directly in the backup
// directory with a chosen creation time.
func plantSnapshot(t *testing.T, dir, filename string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte("old snapshot"), 0o644))
	data, err := json.Marshal(Info{Filename: filename, CreatedAt: createdAt, SizeBytes: 12})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename+".json"), data, 0o644))
}

func TestCreateWritesSnapshotAndSidecar(t *testing.T) {
	svc, _, dir := newTestService(t)

	info, err := svc.Create("Sauvegarde manuelle")
	require.NoError(t, err)
	assert.Contains(t, info.Filename, backupPrefix)
	assert.Equal(t, "Sauvegarde manuelle", info.Description)
	assert.EqualValues(t, len("live database contents"), info.SizeBytes)

	copied, err := os.ReadFile(filepath.Join(dir, info.Filename))
	require.NoError(t, err)
	assert.Equal(t, "live database contents", string(copied))

	_, err = os.Stat(filepath.Join(dir, info.Filename+".json"))
	assert.NoError(t, err)
}

func TestListNewestFirst(t *testing.T) {
	svc, _, dir := newTestService(t)

	now := time.Now().UTC()
	plantSnapshot(t, dir, "backup_20240101_120000.db", now.AddDate(0, 0, -30))
	plantSnapshot(t, dir, "backup_20240201_120000.db", now.AddDate(0, 0, -10))
	// Stray files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	infos, err := svc.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "backup_20240201_120000.db", infos[0].Filename)
	assert.Equal(t, "backup_20240101_120000.db", infos[1].Filename)
}

func TestListReconstructsMissingSidecar(t *testing.T) {
	svc, _, dir := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup_20240101_120000.db"), []byte("orphan"), 0o644))

	infos, err := svc.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "backup_20240101_120000.db", infos[0].Filename)
	assert.EqualValues(t, 6, infos[0].SizeBytes)
}

func TestRestoreTakesSafetyCopy(t *testing.T) {
	svc, dbPath, dir := newTestService(t)
	plantSnapshot(t, dir, "backup_20240101_120000.db", time.Now().UTC())

	safetyCopy, err := svc.Restore("backup_20240101_120000.db")
	require.NoError(t, err)
	assert.Contains(t, safetyCopy, preRestorePrefix)

	restored, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "old snapshot", string(restored))

	saved, err := os.ReadFile(filepath.Join(dir, safetyCopy))
	require.NoError(t, err)
	assert.Equal(t, "live database contents", string(saved))
}

func TestResolveRejectsEscapes(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, name := range []string{
		"../live.db",
		"/etc/passwd",
		"pre_restore_20240101_120000.db",
		"backup_missing.db",
	} {
		_, err := svc.Restore(name)
		assert.True(t, errors.Is(err, ErrBackupNotFound), "expected rejection for %q", name)
	}
}

func TestDeleteRemovesSnapshotAndSidecar(t *testing.T) {
	svc, _, dir := newTestService(t)
	plantSnapshot(t, dir, "backup_20240101_120000.db", time.Now().UTC())

	require.NoError(t, svc.Delete("backup_20240101_120000.db"))
	_, err := os.Stat(filepath.Join(dir, "backup_20240101_120000.db"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "backup_20240101_120000.db.json"))
	assert.True(t, os.IsNotExist(err))

	assert.True(t, errors.Is(svc.Delete("backup_20240101_120000.db"), ErrBackupNotFound))
}

func TestCleanupHonorsRetention(t *testing.T) {
	svc, _, dir := newTestService(t)

	now := time.Now().UTC()
	plantSnapshot(t, dir, "backup_20240101_120000.db", now.AddDate(0, 0, -45))
	plantSnapshot(t, dir, "backup_20240201_120000.db", now.AddDate(0, 0, -5))

	removed, err := svc.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	infos, err := svc.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "backup_20240201_120000.db", infos[0].Filename)

	// Retention disabled means nothing is touched.
	removed, err = svc.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		512:              "512 B",
		2048:             "2.0 KB",
		5 * 1024 * 1024:  "5.0 MB",
		3 << 30:          "3.0 GB",
		int64(2) << 40:   "2.0 TB",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatSize(in))
	}
}
