// Package backup implements database snapshots: timestamped copies of the
// SQLite file plus a JSON sidecar with metadata, restore with a safety copy,
// and retention cleanup.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	backupPrefix     = "backup_"
	preRestorePrefix = "pre_restore_"
	timestampLayout  = "20060102_150405"
)

// ErrBackupNotFound is returned when the named snapshot does not exist.
var ErrBackupNotFound = errors.New("backup: not found")

// Info is the metadata stored in the JSON sidecar next to each snapshot.
type Info struct {
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
	SizeBytes   int64     `json:"size_bytes"`
	OriginalDB  string    `json:"original_db"`
}

// Service copies the live database file in and out of the backup directory.
// Restores assume the caller quiesces writes (single-writer SQLite keeps the
// copy consistent enough for this workload); a pre_restore safety copy is
// always taken first.
type Service struct {
	dbPath string
	dir    string
	log    *zap.Logger
}

// NewService builds the snapshot service and ensures the backup directory
// exists.
func NewService(dbPath, dir string, log *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: creating directory: %w", err)
	}
	return &Service{dbPath: dbPath, dir: dir, log: log.Named("backup")}, nil
}

// Create copies the live database to backup_<YYYYMMDD_HHMMSS>.db and writes
// the sidecar. Returns the snapshot metadata.
func (s *Service) Create(description string) (*Info, error) {
	filename := backupPrefix + time.Now().UTC().Format(timestampLayout) + ".db"
	dest := filepath.Join(s.dir, filename)

	size, err := copyFile(s.dbPath, dest)
	if err != nil {
		return nil, fmt.Errorf("backup: copying database: %w", err)
	}

	info := &Info{
		Filename:    filename,
		CreatedAt:   time.Now().UTC(),
		Description: description,
		SizeBytes:   size,
		OriginalDB:  filepath.Base(s.dbPath),
	}
	if err := s.writeSidecar(info); err != nil {
		// Remove the orphan copy so list stays consistent.
		_ = os.Remove(dest)
		return nil, err
	}

	s.log.Info("backup created",
		zap.String("file", filename),
		zap.Int64("size_bytes", size))
	return info, nil
}

// List returns all snapshots, newest first. Snapshots missing their sidecar
// are listed with metadata reconstructed from the file itself.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: reading directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := s.readSidecar(name)
		if err != nil {
			fi, statErr := entry.Info()
			if statErr != nil {
				continue
			}
			info = &Info{
				Filename:  name,
				CreatedAt: fi.ModTime().UTC(),
				SizeBytes: fi.Size(),
			}
		}
		infos = append(infos, *info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Restore replaces the live database with the named snapshot after writing
// a pre_restore_<ts>.db safety copy next to it. The server should be
// restarted afterwards; that is the operator's responsibility.
func (s *Service) Restore(filename string) (safetyCopy string, err error) {
	src, err := s.resolve(filename)
	if err != nil {
		return "", err
	}

	safetyCopy = preRestorePrefix + time.Now().UTC().Format(timestampLayout) + ".db"
	if _, err := copyFile(s.dbPath, filepath.Join(s.dir, safetyCopy)); err != nil {
		return "", fmt.Errorf("backup: writing safety copy: %w", err)
	}

	if _, err := copyFile(src, s.dbPath); err != nil {
		return "", fmt.Errorf("backup: restoring database: %w", err)
	}

	s.log.Warn("database restored from backup",
		zap.String("file", filename),
		zap.String("safety_copy", safetyCopy))
	return safetyCopy, nil
}

// Delete removes a snapshot and its sidecar.
func (s *Service) Delete(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("backup: deleting %s: %w", filename, err)
	}
	_ = os.Remove(path + ".json")
	s.log.Info("backup deleted", zap.String("file", filename))
	return nil
}

// Cleanup deletes snapshots older than retentionDays and returns how many
// were removed.
func (s *Service) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	infos, err := s.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, info := range infos {
		if info.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.Delete(info.Filename); err != nil {
			s.log.Warn("cleanup failed for backup", zap.String("file", info.Filename), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("backup cleanup done",
			zap.Int("removed", removed),
			zap.Int("retention_days", retentionDays))
	}
	return removed, nil
}

// DatabaseSize returns the on-disk size of the live database file.
func (s *Service) DatabaseSize() (int64, error) {
	fi, err := os.Stat(s.dbPath)
	if err != nil {
		return 0, fmt.Errorf("backup: stat database: %w", err)
	}
	return fi.Size(), nil
}

// resolve validates a snapshot name and returns its absolute path. Names
// with path separators or without the backup prefix are rejected so callers
// cannot escape the backup directory.
func (s *Service) resolve(filename string) (string, error) {
	if filepath.Base(filename) != filename || !strings.HasPrefix(filename, backupPrefix) {
		return "", ErrBackupNotFound
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrBackupNotFound
	}
	return path, nil
}

func (s *Service) writeSidecar(info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encoding sidecar: %w", err)
	}
	path := filepath.Join(s.dir, info.Filename+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("backup: writing sidecar: %w", err)
	}
	return nil
}

func (s *Service) readSidecar(filename string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filename+".json"))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// copyFile copies src to dst and returns the number of bytes written. Both
// handles are released on every exit path.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, err
	}
	return n, out.Close()
}

// FormatSize renders a byte count in human form (B, KB, MB, GB, TB).
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	value := float64(bytes)
	for _, suffix := range []string{"KB", "MB", "GB", "TB"} {
		value /= unit
		if value < unit || suffix == "TB" {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}
