// Package workspace connects the reconciliation engine to the file system:
// reading files, listing scan candidates and watching for changes.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spetr/doit/pkg/types"
)

// FileSource reads and lists files below a workspace root.
type FileSource struct {
	root   string
	filter *Filter
}

// NewFileSource creates a file source rooted at root.
func NewFileSource(root string, filter *Filter) (*FileSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	return &FileSource{root: abs, filter: filter}, nil
}

// Root returns the absolute workspace root.
func (s *FileSource) Root() string {
	return s.root
}

// Rel normalizes p to a workspace-relative path with forward slashes.
// Paths outside the workspace keep their absolute form.
func (s *FileSource) Rel(p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(s.root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			p = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// Abs resolves a workspace-relative path.
func (s *FileSource) Abs(rel string) string {
	p := filepath.FromSlash(rel)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.root, p)
}

// Contains reports whether p resolves to a path inside the workspace.
func (s *FileSource) Contains(p string) bool {
	rel, err := filepath.Rel(s.root, s.Abs(p))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Eligible reports whether p is inside the workspace and accepted by the filter.
func (s *FileSource) Eligible(p string) bool {
	if !s.Contains(p) {
		return false
	}
	return s.filter == nil || s.filter.Include(s.Rel(p))
}

// ReadFileText returns the current text of a file. Errors wrap
// types.ErrFileUnreadable; a missing file also matches fs.ErrNotExist.
// Paths resolving outside the workspace are never read.
func (s *FileSource) ReadFileText(rel string) (string, error) {
	if !s.Contains(rel) {
		return "", fmt.Errorf("%w: %s: outside the workspace", types.ErrFileUnreadable, rel)
	}
	data, err := os.ReadFile(s.Abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: %w", types.ErrFileUnreadable, rel, fs.ErrNotExist)
		}
		return "", fmt.Errorf("%w: %s: %v", types.ErrFileUnreadable, rel, err)
	}
	return string(data), nil
}

// ListFiles walks the workspace and returns every file the filter accepts.
func (s *FileSource) ListFiles(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel := s.Rel(path)
		if d.IsDir() {
			if s.filter.ExcludedDir(rel) {
				slog.Debug("excluding directory", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.filter.Include(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
