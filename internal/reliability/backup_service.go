package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/standardized"
	"github.com/aristath/custodian/internal/work"
	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "custodian-backup-"
	archiveSuffix   = ".tar.gz"
	timestampLayout = "2006-01-02-150405"
	metadataFile    = "backup-metadata.json"

	// TaskType is the work task type of a backup.
	TaskType = "backup"
)

// minBackupsToKeep survive rotation regardless of age.
const minBackupsToKeep = 3

// BackupMetadata describes an archive's contents.
type BackupMetadata struct {
	Timestamp         time.Time      `json:"timestamp"`
	Version           string         `json:"version"`
	Databases         []FileMetadata `json:"databases"`
	StandardizedFiles []FileMetadata `json:"standardized_files"`
}

// FileMetadata is one archived file.
type FileMetadata struct {
	Name      string `json:"name"` // path inside the archive
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is one stored archive.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService archives the portfolio database (a VACUUM INTO copy) and
// every standardized file, and uploads the archive to an ObjectStore.
type BackupService struct {
	store      ObjectStore
	databases  []*database.DB
	outputRoot string
	stagingDir string
	prefix     string
	events     *events.Manager
	log        zerolog.Logger
}

// NewBackupService creates the backup service. events may be nil.
func NewBackupService(
	store ObjectStore,
	databases []*database.DB,
	outputRoot string,
	stagingDir string,
	prefix string,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:      store,
		databases:  databases,
		outputRoot: outputRoot,
		stagingDir: stagingDir,
		prefix:     strings.Trim(prefix, "/"),
		events:     eventManager,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

func (s *BackupService) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Backup builds and uploads one archive.
func (s *BackupService) Backup(ctx context.Context, progress *work.ProgressReporter) (*BackupInfo, error) {
	s.log.Info().Msg("Starting backup")
	start := time.Now()

	staging, err := os.MkdirTemp(s.stagingDir, "backup-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	metadata := BackupMetadata{
		Timestamp: start.UTC(),
		Version:   "1",
	}
	var entries []archiveEntry

	progress.ReportPhase("databases", "Copying databases")
	for _, db := range s.databases {
		name := db.Name() + ".db"
		copyPath := filepath.Join(staging, name)
		if err := db.VacuumInto(ctx, copyPath); err != nil {
			return nil, fmt.Errorf("failed to back up %s: %w", db.Name(), err)
		}
		meta, err := describe(copyPath, name)
		if err != nil {
			return nil, err
		}
		metadata.Databases = append(metadata.Databases, meta)
		entries = append(entries, archiveEntry{source: copyPath, name: name})
	}

	progress.ReportPhase("standardized", "Collecting standardized files")
	files, err := s.standardizedFiles()
	if err != nil {
		return nil, err
	}
	for _, rel := range files {
		name := path.Join("output", filepath.ToSlash(rel))
		meta, err := describe(filepath.Join(s.outputRoot, rel), name)
		if err != nil {
			return nil, err
		}
		metadata.StandardizedFiles = append(metadata.StandardizedFiles, meta)
		entries = append(entries, archiveEntry{source: filepath.Join(s.outputRoot, rel), name: name})
	}

	metadataPath := filepath.Join(staging, metadataFile)
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	entries = append(entries, archiveEntry{source: metadataPath, name: metadataFile})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress.ReportPhase("archiving", "Creating archive")
	archiveName := archivePrefix + start.UTC().Format(timestampLayout) + archiveSuffix
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, entries); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	progress.ReportPhase("uploading", "Uploading archive")
	key := s.key(archiveName)
	if err := s.store.Upload(ctx, key, archive, info.Size()); err != nil {
		return nil, err
	}

	s.log.Info().
		Dur("duration", time.Since(start)).
		Str("key", key).
		Int("databases", len(metadata.Databases)).
		Int("standardized_files", len(metadata.StandardizedFiles)).
		Int64("size_bytes", info.Size()).
		Msg("Backup completed")

	s.events.EmitTyped(events.BackupCompleted, "reliability", &events.BackupCompletedData{
		Key:       key,
		SizeBytes: info.Size(),
	})

	return &BackupInfo{Key: key, Timestamp: metadata.Timestamp.Truncate(time.Second), SizeBytes: info.Size()}, nil
}

// Spec wraps Backup as a work task.
func (s *BackupService) Spec() work.Spec {
	return work.Spec{
		Type:        TaskType,
		Description: "off-site backup",
		Run: func(ctx context.Context, progress *work.ProgressReporter) (any, error) {
			return s.Backup(ctx, progress)
		},
	}
}

// ScheduledSpec is Spec followed by rotation. A rotation failure is logged;
// the fresh archive is already stored by then.
func (s *BackupService) ScheduledSpec(retentionDays int) work.Spec {
	spec := s.Spec()
	spec.Run = func(ctx context.Context, progress *work.ProgressReporter) (any, error) {
		info, err := s.Backup(ctx, progress)
		if err != nil {
			return nil, err
		}
		progress.ReportPhase("rotating", "Rotating old backups")
		if deleted, err := s.RotateOldBackups(ctx, retentionDays); err != nil {
			s.log.Error().Err(err).Msg("Backup rotation failed")
		} else if deleted > 0 {
			s.log.Info().Int("deleted", deleted).Msg("Rotated old backups")
		}
		return info, nil
	}
	return spec
}

// ListBackups lists stored archives, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.key(archivePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		name := path.Base(*obj.Key)
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
		ts, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", *obj.Key).Msg("Failed to parse timestamp from backup name")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			Key:       *obj.Key,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays, always keeping
// the newest three. Zero retention keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[minBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("key", b.Key).Time("timestamp", b.Timestamp).Msg("Deleted old backup")
		deleted++
	}
	return deleted, nil
}

// standardizedFiles lists every file in a dated standardized directory,
// relative to the output root.
func (s *BackupService) standardizedFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.outputRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == s.outputRoot {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Base(filepath.Dir(p)) != standardized.DirStandardized {
			return nil
		}
		rel, err := filepath.Rel(s.outputRoot, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect standardized files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

type archiveEntry struct {
	source string
	name   string
}

func describe(p, name string) (FileMetadata, error) {
	f, err := os.Open(p)
	if err != nil {
		return FileMetadata{}, err
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to checksum %s: %w", name, err)
	}
	return FileMetadata{Name: name, SizeBytes: size, Checksum: fmt.Sprintf("sha256:%x", hash.Sum(nil))}, nil
}

func writeMetadata(p string, metadata BackupMetadata) error {
	file, err := os.Create(p)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath string, entries []archiveEntry) (err error) {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := archiveFile.Close(); err == nil {
			err = cerr
		}
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		if err := addFileToArchive(tarWriter, e.source, e.name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", e.name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
