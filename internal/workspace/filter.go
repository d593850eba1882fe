package workspace

import (
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/spetr/doit/internal/config"
)

// ExcludedDirs are path segments that are never scanned or watched.
var ExcludedDirs = []string{
	".doit",
	"node_modules", "chunks", "dist", "build", "out", ".git", ".vscode",
	"vendor", "target", "bin", "obj", ".next", ".nuxt", "coverage",
	".nyc_output", "logs", ".webpack", ".parcel-cache", "__pycache__",
	".pytest_cache", ".idea", ".venv", "venv", "env", "next-env", "README",
}

// ExcludedFiles are substrings that exclude a file wherever they appear in its path.
var ExcludedFiles = []string{".min.js", ".bundle.js", ".chunk.js", ".DS_Store", "next-env.d.ts"}

// Filter decides which workspace paths are eligible for scanning.
// Paths are workspace-relative with forward slashes.
type Filter struct {
	extensions map[string]struct{}
	excludes   []*regexp.Regexp
}

// NewFilter builds a filter from the supported extensions (without dot) and
// custom exclude patterns. Patterns that fail to compile are logged and ignored.
func NewFilter(extensions, customExcludes []string) *Filter {
	f := &Filter{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			f.extensions[ext] = struct{}{}
		}
	}
	for _, p := range customExcludes {
		re, err := config.CompileExclude(p)
		if err != nil {
			slog.Warn("ignoring exclude pattern", "pattern", p, "error", err)
			continue
		}
		f.excludes = append(f.excludes, re)
	}
	return f
}

// FromConfig builds a filter from the scan section of cfg.
func FromConfig(cfg *config.Config) *Filter {
	return NewFilter(cfg.Scan.SupportedExtensions, cfg.Scan.Exclude)
}

// ExcludedDir reports whether a directory should be skipped entirely.
func (f *Filter) ExcludedDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	if hasExcludedSegment(rel) {
		return true
	}
	return f.matchesCustom(rel)
}

// Include reports whether a file should be scanned.
func (f *Filter) Include(rel string) bool {
	if rel == "" || hasExcludedSegment(rel) {
		return false
	}

	lower := strings.ToLower(rel)
	for _, name := range ExcludedFiles {
		if strings.Contains(lower, strings.ToLower(name)) {
			return false
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(rel), "."))
	if _, ok := f.extensions[ext]; !ok {
		return false
	}

	return !f.matchesCustom(rel)
}

func (f *Filter) matchesCustom(rel string) bool {
	for _, re := range f.excludes {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

func hasExcludedSegment(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		for _, dir := range ExcludedDirs {
			if strings.EqualFold(seg, dir) {
				return true
			}
		}
	}
	return false
}
