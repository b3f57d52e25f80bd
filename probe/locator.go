package probe

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// DefaultManifestSuffix is the file suffix that marks a build manifest.
const DefaultManifestSuffix = ".cabal"

// ManifestCheckResult is the outcome of one successful manifest lookup.
type ManifestCheckResult struct {
	Found        bool   `json:"found"`
	Message      string `json:"message"`
	ManifestPath string `json:"manifest_path,omitempty"`
}

// LocatorConfig configures a Locator.
type LocatorConfig struct {
	// Suffix selects manifest files by name (default ".cabal").
	Suffix string
	Logger *slog.Logger
}

// Locator finds the build manifest directly inside a project directory.
type Locator struct {
	suffix string
	logger *slog.Logger
}

// NewLocator creates a locator, filling defaults for empty config fields.
func NewLocator(cfg LocatorConfig) *Locator {
	suffix := strings.TrimSpace(cfg.Suffix)
	if suffix == "" {
		suffix = DefaultManifestSuffix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{suffix: suffix, logger: logger}
}

// Locate validates path and returns the first manifest found among its direct
// children. Entries are taken in lexicographic name order, so the choice is
// stable when several manifests are present; that case is logged but is not
// an error.
func (l *Locator) Locate(ctx context.Context, path string) (ManifestCheckResult, error) {
	start := time.Now()
	result, candidates, err := l.locate(ctx, path)

	observation := LocateObservation{
		Path:         path,
		ManifestPath: result.ManifestPath,
		Candidates:   candidates,
		DurationMS:   elapsedMS(start),
		Success:      err == nil,
		ErrorCode:    ErrorCode(err),
		StartedAt:    start.UTC(),
	}
	emitLocateObservation(observation)

	if err != nil {
		l.logger.Debug("manifest lookup failed",
			"path", path,
			"error_code", observation.ErrorCode,
			"error", err,
		)
		return ManifestCheckResult{}, err
	}
	return result, nil
}

func (l *Locator) locate(ctx context.Context, path string) (ManifestCheckResult, int, error) {
	if err := ctx.Err(); err != nil {
		return ManifestCheckResult{}, 0, newIOError(err)
	}
	if err := statDirectory(path); err != nil {
		return ManifestCheckResult{}, 0, err
	}

	// os.ReadDir returns entries sorted by file name.
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return ManifestCheckResult{}, 0, newPermissionDenied(path, err)
		}
		return ManifestCheckResult{}, 0, newIOError(err)
	}

	var matches []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), l.suffix) || isDirectoryEntry(path, entry) {
			continue
		}
		matches = append(matches, filepath.Join(path, entry.Name()))
	}

	switch len(matches) {
	case 0:
		return ManifestCheckResult{}, 0, newNoManifest(path)
	case 1:
	default:
		l.logger.Warn("multiple manifests found, using the first",
			"path", path,
			"using", matches[0],
			"candidates", matches,
		)
	}

	manifest := matches[0]
	l.logger.Debug("manifest found", "path", path, "manifest", manifest)
	return ManifestCheckResult{
		Found:        true,
		Message:      "Found " + l.suffix + " file: " + manifest,
		ManifestPath: manifest,
	}, len(matches), nil
}

// isDirectoryEntry reports whether entry is a directory or a symlink that
// resolves to one.
func isDirectoryEntry(dir string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.IsDir()
}

// statDirectory maps the existence and kind of path onto the taxonomy.
func statDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return classifyStatError(path, err)
	}
	if !info.IsDir() {
		return newNotADirectory(path)
	}
	return nil
}

func statExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return classifyStatError(path, err)
	}
	return nil
}

func classifyStatError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return newPathNotFound(path, err)
	case errors.Is(err, fs.ErrPermission):
		return newPermissionDenied(path, err)
	default:
		return newIOError(err)
	}
}
