package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/refit/pkg/fsutil"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/version"
	"github.com/otiai10/copy"
	"github.com/rs/zerolog"
)

const (
	// ManifestFile is the sidecar metadata file inside each snapshot
	ManifestFile = "backup.json"

	// treeDir holds the copied installation inside a snapshot
	treeDir = "tree"

	// DefaultRetention is the number of snapshots kept
	DefaultRetention = 5

	nameLayout = "20060102-150405.000000000"
)

// DefaultExclusions are never copied into a snapshot
var DefaultExclusions = []string{
	".git", "__pycache__", ".cache", ".pytest_cache", "node_modules/.cache",
	"backups", "logs", "tmp", "*.log", "*.tmp", "*.pyc",
}

// copyFunc matches copy.Copy; replaced in tests to inject failures
type copyFunc func(src, dest string, opts ...copy.Options) error

// Config configures a Manager
type Config struct {
	// InstallRoot is the live installation tree
	InstallRoot string
	// Root is the directory holding one sub-directory per snapshot
	Root string
	// Retention is the number of snapshots kept, default 5
	Retention int
	// Exclude lists base-name globs or root-relative paths skipped on create
	Exclude []string
}

// Manager creates, lists, prunes and restores snapshots of an installation
type Manager struct {
	cfg    Config
	mu     sync.Mutex
	copy   copyFunc
	now    func() time.Time
	logger zerolog.Logger
}

// NewManager creates a backup manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.InstallRoot == "" {
		return nil, fmt.Errorf("install root is required")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("backups root is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultExclusions
	}

	return &Manager{
		cfg:    cfg,
		copy:   copy.Copy,
		now:    time.Now,
		logger: log.WithComponent("backup"),
	}, nil
}

// Root returns the backups root
func (m *Manager) Root() string {
	return m.cfg.Root
}

// Create snapshots the installation tree. On any copy failure the partial
// snapshot is removed and a BackupFailed error is returned; a manifest is
// only written once the tree is complete.
func (m *Manager) Create(name string) (*types.BackupManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.cfg.Root, 0755); err != nil {
		return nil, types.NewError(types.ErrBackupFailed, err, "failed to create backups root")
	}

	createdAt := m.now().UTC()
	if name == "" {
		name = "backup-" + createdAt.Format(nameLayout)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, types.NewError(types.ErrBackupFailed, nil, "invalid backup name %q", name)
	}
	name = m.uniqueName(name)
	snapshotDir := filepath.Join(m.cfg.Root, name)

	if err := os.Mkdir(snapshotDir, 0755); err != nil {
		return nil, types.NewError(types.ErrBackupFailed, err, "failed to create snapshot directory")
	}

	var size int64
	opts := copy.Options{
		Skip: func(info os.FileInfo, src, dest string) (bool, error) {
			if m.excluded(src, info) {
				return true, nil
			}
			if info.Mode().IsRegular() {
				size += info.Size()
			}
			return false, nil
		},
		OnSymlink: func(src string) copy.SymlinkAction {
			return copy.Shallow
		},
		PreserveTimes: true,
		Sync:          true,
	}

	if err := m.copy(m.cfg.InstallRoot, filepath.Join(snapshotDir, treeDir), opts); err != nil {
		m.discard(snapshotDir)
		return nil, types.NewError(types.ErrBackupFailed, err, "failed to copy installation")
	}

	manifest := &types.BackupManifest{
		Name:           name,
		Path:           snapshotDir,
		CreatedAt:      createdAt,
		SourceRevision: sourceRevision(m.cfg.InstallRoot),
		SizeBytes:      size,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		m.discard(snapshotDir)
		return nil, types.NewError(types.ErrBackupFailed, err, "failed to encode manifest")
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(snapshotDir, ManifestFile), data, 0644); err != nil {
		m.discard(snapshotDir)
		return nil, types.NewError(types.ErrBackupFailed, err, "failed to write manifest")
	}

	metrics.BackupsCreated.Inc()
	m.logger.Info().
		Str("name", manifest.Name).
		Str("revision", manifest.SourceRevision).
		Int64("size_bytes", manifest.SizeBytes).
		Msg("Backup created")

	if err := m.prune(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to apply backup retention")
	}

	return manifest, nil
}

// List returns all snapshots with a readable manifest, newest first
func (m *Manager) List() ([]*types.BackupManifest, error) {
	entries, err := os.ReadDir(m.cfg.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backups root: %w", err)
	}

	var manifests []*types.BackupManifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifest, err := readManifest(filepath.Join(m.cfg.Root, e.Name()))
		if err != nil {
			continue
		}
		manifests = append(manifests, manifest)
	}

	sort.SliceStable(manifests, func(i, j int) bool {
		if manifests[i].CreatedAt.Equal(manifests[j].CreatedAt) {
			return manifests[i].Name > manifests[j].Name
		}
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
	return manifests, nil
}

// Get returns the snapshot with the given name
func (m *Manager) Get(name string) (*types.BackupManifest, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid backup name %q", name)
	}
	manifest, err := readManifest(filepath.Join(m.cfg.Root, name))
	if err != nil {
		return nil, fmt.Errorf("backup not found: %s", name)
	}
	return manifest, nil
}

// Latest returns the newest snapshot, or nil when there is none
func (m *Manager) Latest() (*types.BackupManifest, error) {
	manifests, err := m.List()
	if err != nil || len(manifests) == 0 {
		return nil, err
	}
	return manifests[0], nil
}

// Delete removes a snapshot
func (m *Manager) Delete(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid backup name %q", name)
	}
	if err := os.RemoveAll(filepath.Join(m.cfg.Root, name)); err != nil {
		return fmt.Errorf("failed to delete backup %s: %w", name, err)
	}
	return nil
}

// Restore copies every file of the snapshot over the live tree. Missing
// directories are created and existing files overwritten; live files absent
// from the snapshot are left in place.
func (m *Manager) Restore(manifest *types.BackupManifest) error {
	if manifest == nil {
		return types.NewError(types.ErrRestoreFailed, nil, "no backup to restore")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src := filepath.Join(manifest.Path, treeDir)
	if _, err := os.Stat(src); err != nil {
		return types.NewError(types.ErrRestoreFailed, err, "snapshot %s is missing its tree", manifest.Name)
	}

	var restored int
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(m.cfg.InstallRoot, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(dst, 0755)
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := fsutil.RemoveFile(dst); err != nil {
				return err
			}
			return os.Symlink(target, dst)
		case d.Type().IsRegular():
			restored++
			return fsutil.ReplaceFile(path, dst)
		}
		return nil
	})
	if err != nil {
		return types.NewError(types.ErrRestoreFailed, err, "failed to restore %s", manifest.Name)
	}

	m.logger.Info().
		Str("name", manifest.Name).
		Int("files", restored).
		Msg("Backup restored")
	return nil
}

// prune deletes the oldest snapshots beyond the retention count
func (m *Manager) prune() error {
	manifests, err := m.List()
	if err != nil {
		return err
	}
	if len(manifests) <= m.cfg.Retention {
		return nil
	}

	for _, old := range manifests[m.cfg.Retention:] {
		if err := m.Delete(old.Name); err != nil {
			return err
		}
		m.logger.Info().Str("name", old.Name).Msg("Pruned old backup")
	}
	return nil
}

func (m *Manager) uniqueName(name string) string {
	candidate := name
	for i := 1; fsutil.Exists(filepath.Join(m.cfg.Root, candidate)); i++ {
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
	return candidate
}

func (m *Manager) discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error().Err(err).Str("path", dir).Msg("Failed to remove partial backup")
	}
}

// excluded reports whether a source path is left out of snapshots
func (m *Manager) excluded(src string, info os.FileInfo) bool {
	if sameDir(src, m.cfg.Root) {
		return true
	}

	rel, err := filepath.Rel(m.cfg.InstallRoot, src)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(src)

	for _, pattern := range m.cfg.Exclude {
		if strings.Contains(pattern, "/") {
			if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func sameDir(a, b string) bool {
	a, errA := filepath.Abs(a)
	b, errB := filepath.Abs(b)
	return errA == nil && errB == nil && a == b
}

func readManifest(dir string) (*types.BackupManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var manifest types.BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	// The snapshot may have been moved along with its backups root
	manifest.Path = dir
	return &manifest, nil
}

// sourceRevision identifies the snapshot contents on a best-effort basis
func sourceRevision(root string) string {
	if v := version.ReadMarker(root); v != "" {
		return v
	}
	if commit := version.HeadCommit(root); commit != "" {
		return commit
	}
	return version.Unknown
}
