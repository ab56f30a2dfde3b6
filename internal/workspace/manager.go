// Package workspace materializes submitted content (raw text, base64
// blobs, or tar.gz archives) into an isolated, quota-enforced directory
// per spec.md §4.1.
package workspace

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/models"
)

// gzipMagic is the two leading bytes of a gzip stream (RFC 1952).
var gzipMagic = [2]byte{0x1f, 0x8b}

// Quotas bounds workspace provisioning. Defaults match spec.md §4.1.
type Quotas struct {
	MaxSingleFileBytes int64
	MaxArchiveBytes    int64
	MaxFileCount       int
}

// DefaultQuotas returns the defaults named in the specification.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxSingleFileBytes: 10 * 1024 * 1024,
		MaxArchiveBytes:    500 * 1024 * 1024,
		MaxFileCount:       1000,
	}
}

// ExtensionAllowlist and BlockedSegments gate which extracted files survive
// archive extraction (spec.md §3, Workspace invariants).
var (
	ExtensionAllowlist = map[string]struct{}{
		".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
		".mjs": {}, ".cjs": {}, ".java": {}, ".rb": {}, ".rs": {},
		".md": {}, ".markdown": {}, ".json": {}, ".yaml": {}, ".yml": {},
		".toml": {}, ".txt": {}, ".sh": {}, ".css": {}, ".html": {},
	}

	BlockedSegments = map[string]struct{}{
		"node_modules": {}, ".git": {}, "dist": {}, "build": {},
		"vendor": {}, ".cache": {}, "__pycache__": {},
	}
)

// Manager is the Workspace Manager: it owns a base directory and
// materializes one uniquely-named subdirectory per request or job.
type Manager struct {
	baseDir    string
	quotas     Quotas
	defaultTTL time.Duration
}

// NewManager creates a Manager rooted at baseDir, creating it if needed.
func NewManager(baseDir string, quotas Quotas, defaultTTL time.Duration) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base directory: %w", err)
	}
	return &Manager{baseDir: baseDir, quotas: quotas, defaultTTL: defaultTTL}, nil
}

// newWorkspaceDir allocates a fresh, uniquely-named directory under the
// base directory. Strong randomness (uuid v4) keeps two concurrent
// creations from colliding.
func (m *Manager) newWorkspaceDir() (string, error) {
	id := uuid.New().String()
	path := filepath.Join(m.baseDir, id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return path, nil
}

func (m *Manager) toWorkspace(path string) (*models.Workspace, error) {
	files, size, err := m.scan(path)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &models.Workspace{
		Path:      path,
		Files:     files,
		SizeBytes: size,
		CreatedAt: now,
		CleanupAt: now.Add(m.defaultTTL),
	}, nil
}

// CreateFromText writes a single file named filename (defaulting to
// code.txt) containing content.
func (m *Manager) CreateFromText(content []byte, filename string) (*models.Workspace, error) {
	if int64(len(content)) > m.quotas.MaxSingleFileBytes {
		return nil, models.NewAppError(models.ErrContentTooLarge,
			fmt.Sprintf("content of %d bytes exceeds the %d byte single-file quota", len(content), m.quotas.MaxSingleFileBytes), nil)
	}

	if filename == "" {
		filename = "code.txt"
	}
	filename = filepath.Base(filename)

	path, err := m.newWorkspaceDir()
	if err != nil {
		return nil, models.NewAppError(models.ErrWorkspace, "failed to provision workspace", err)
	}

	if err := os.WriteFile(filepath.Join(path, filename), content, 0o644); err != nil {
		_ = m.Cleanup(path)
		return nil, models.NewAppError(models.ErrWorkspace, "failed to write workspace file", err)
	}

	return m.toWorkspace(path)
}

// CreateFromBase64 decodes encoded. If the decoded payload looks like a
// gzip stream it is treated as a tar.gz archive; otherwise it is written
// as a single text file.
func (m *Manager) CreateFromBase64(encoded string, filename string) (*models.Workspace, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, models.NewAppError(models.ErrWorkspace, "invalid base64 payload", err)
	}

	if len(raw) >= 2 && raw[0] == gzipMagic[0] && raw[1] == gzipMagic[1] {
		return m.CreateFromBuffer(raw, "tar.gz")
	}

	return m.CreateFromText(raw, filename)
}

// CreateFromBuffer routes buf into the extractor named by kind. Only
// "tar.gz" is currently recognized.
func (m *Manager) CreateFromBuffer(buf []byte, kind string) (*models.Workspace, error) {
	if kind != "tar.gz" {
		return nil, models.NewAppError(models.ErrWorkspace, fmt.Sprintf("unsupported buffer kind: %s", kind), nil)
	}

	path, err := m.newWorkspaceDir()
	if err != nil {
		return nil, models.NewAppError(models.ErrWorkspace, "failed to provision workspace", err)
	}

	if err := extractTarGz(buf, path, m.quotas); err != nil {
		_ = m.Cleanup(path)
		return nil, err
	}

	return m.toWorkspace(path)
}

// Validate reports whether path is a usable workspace: it must exist and
// contain at least one file.
func (m *Manager) Validate(path string) (*models.ValidationResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return &models.ValidationResult{Valid: false, Errors: []string{"workspace does not exist"}}, nil
	}
	if !info.IsDir() {
		return &models.ValidationResult{Valid: false, Errors: []string{"workspace path is not a directory"}}, nil
	}

	files, _, err := m.scan(path)
	if err != nil {
		return nil, models.NewAppError(models.ErrWorkspace, "failed to enumerate workspace", err)
	}
	if len(files) == 0 {
		return &models.ValidationResult{Valid: false, Errors: []string{"workspace contains no files"}}, nil
	}
	return &models.ValidationResult{Valid: true}, nil
}

// ListFiles returns the sorted, workspace-relative paths of every regular
// file under path.
func (m *Manager) ListFiles(path string) ([]string, error) {
	files, _, err := m.scan(path)
	return files, err
}

func (m *Manager) scan(path string) ([]string, int64, error) {
	var files []string
	var total int64

	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Strings(files)
	return files, total, nil
}

// Cleanup recursively removes the workspace directory. It is idempotent
// and never raises on a missing path.
func (m *Manager) Cleanup(path string) error {
	if err := os.RemoveAll(path); err != nil {
		logger.Warnf("failed to clean up workspace %s: %v", path, err)
		return nil
	}
	return nil
}

// CleanupExpired walks the base directory and removes any workspace whose
// cleanup_at has passed. It is driven by the expires-on-mtime convention:
// a workspace directory older than ttl is considered expired, since
// per-workspace cleanup_at isn't separately persisted for orphaned dirs
// left behind by a crashed request.
func (m *Manager) CleanupExpired(ttl time.Duration) error {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return fmt.Errorf("failed to list workspace base directory: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		full := filepath.Join(m.baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := m.Cleanup(full); err != nil {
				logger.Warnf("failed to clean up expired workspace %s: %v", full, err)
			}
		}
	}
	return nil
}
