package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
)

// dataRoot is the subdirectory of a project's data_dir holding every stage.
const dataRoot = "data"

// StageDir maps a node type to its directory below <data_dir>/data.
func StageDir(nodeType models.NodeType) string {
	switch nodeType {
	case models.NodeImageSource:
		return models.StageOriginal
	case models.NodePreprocess:
		return "preprocessed"
	default:
		return path.Join("results", string(nodeType))
	}
}

// DataManager bridges processors to the lineage tables and the project
// directory. A DataManager is bound to one gorm handle; use WithDB to get a
// copy bound to a transaction.
type DataManager struct {
	db      *gorm.DB
	project *models.Project
	cfg     config.StorageConfig
	logger  *zap.Logger

	mu      sync.Mutex
	written []writtenFile
}

type writtenFile struct {
	path    string
	existed bool
	prev    []byte
}

// New creates a DataManager for an already loaded project.
func New(db *gorm.DB, project *models.Project, cfg config.StorageConfig, logger *zap.Logger) *DataManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataManager{
		db:      db,
		project: project,
		cfg:     cfg,
		logger: logger.With(
			zap.String("component", "data_manager"),
			zap.Uint("project_id", project.ProjectID),
		),
	}
}

// Load fetches the project and returns a DataManager for it.
func Load(ctx context.Context, db *gorm.DB, projectID uint, cfg config.StorageConfig, logger *zap.Logger) (*DataManager, error) {
	var project models.Project
	if err := db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("project", projectID)
		}
		return nil, types.NewPersistenceError("load project", err)
	}
	return New(db, &project, cfg, logger), nil
}

// WithDB returns a copy bound to db (typically a transaction) with an empty
// write journal.
func (m *DataManager) WithDB(db *gorm.DB) *DataManager {
	return &DataManager{db: db, project: m.project, cfg: m.cfg, logger: m.logger}
}

// DB returns the bound gorm handle.
func (m *DataManager) DB() *gorm.DB { return m.db }

// Project returns the bound project.
func (m *DataManager) Project() *models.Project { return m.project }

// Logger returns the project-scoped logger.
func (m *DataManager) Logger() *zap.Logger { return m.logger }

// Config returns the storage configuration.
func (m *DataManager) Config() config.StorageConfig { return m.cfg }

// BasePath is <data_dir>/data.
func (m *DataManager) BasePath() string {
	return filepath.Join(m.project.DataDir, dataRoot)
}

// FullPath resolves a stored relative path. A leading "data/" is tolerated.
func (m *DataManager) FullPath(rel string) string {
	return filepath.Join(m.BasePath(), filepath.FromSlash(CleanRelative(rel)))
}

// CleanRelative normalizes a relative artifact path to slash form without a
// leading "data/" segment.
func CleanRelative(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "/")
	rel = strings.TrimPrefix(rel, dataRoot+"/")
	return path.Clean(rel)
}

// EnsureDir creates <data_dir>/data/<rel> if missing.
func (m *DataManager) EnsureDir(rel string) error {
	dir := m.FullPath(rel)
	if err := os.MkdirAll(dir, fs.FileMode(m.cfg.DirPerm)); err != nil {
		return fmt.Errorf("create stage directory %s: %w", dir, err)
	}
	return nil
}

// ReadFile reads an artifact's backing file.
func (m *DataManager) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(m.FullPath(rel))
}

// WriteFile writes an artifact file, creating its directory, and journals the
// write so it can be undone by Rollback.
func (m *DataManager) WriteFile(rel string, content []byte) error {
	full := m.FullPath(rel)
	if err := m.EnsureDir(path.Dir(CleanRelative(rel))); err != nil {
		return err
	}

	entry := writtenFile{path: full}
	if prev, err := os.ReadFile(full); err == nil {
		entry.existed = true
		entry.prev = prev
	}

	if err := os.WriteFile(full, content, fs.FileMode(m.cfg.FilePerm)); err != nil {
		return fmt.Errorf("write %s: %w", full, err)
	}

	m.mu.Lock()
	m.written = append(m.written, entry)
	m.mu.Unlock()
	return nil
}

// Written returns the absolute paths written since creation or the last
// Commit/Rollback.
func (m *DataManager) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.written))
	for i, w := range m.written {
		out[i] = w.path
	}
	return out
}

// Commit forgets the write journal.
func (m *DataManager) Commit() {
	m.mu.Lock()
	m.written = nil
	m.mu.Unlock()
}

// Rollback undoes journaled writes in reverse order: new files are removed,
// overwritten files get their previous content back.
func (m *DataManager) Rollback() {
	m.mu.Lock()
	written := m.written
	m.written = nil
	m.mu.Unlock()

	for i := len(written) - 1; i >= 0; i-- {
		w := written[i]
		var err error
		if w.existed {
			err = os.WriteFile(w.path, w.prev, fs.FileMode(m.cfg.FilePerm))
		} else {
			err = os.Remove(w.path)
			if errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
		}
		if err != nil {
			m.logger.Warn("failed to undo artifact write", zap.String("path", w.path), zap.Error(err))
		}
	}
}

// ListSourceImages returns the file names in <data_dir>/data/original with a
// supported extension, sorted by name.
func (m *DataManager) ListSourceImages() ([]string, error) {
	dir := m.FullPath(models.StageOriginal)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read source directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m.supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *DataManager) supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range m.cfg.ImageExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
