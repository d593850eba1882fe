package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/pkg/types"
)

// Validate re-checks every tracked pending task against the current
// annotations of its file. Only one validation runs at a time; a call made
// while one is in progress returns at once with Skipped set.
func (e *Engine) Validate(ctx context.Context) types.Report {
	if !e.validating.CompareAndSwap(false, true) {
		slog.Debug("validation already running, skipping")
		return types.Report{Skipped: true}
	}
	defer e.validating.Store(false)

	r := e.validate(ctx, e.trackedByFile(""))
	e.announce(validationSummary(r))
	return r
}

// ValidateFile re-checks the tracked pending tasks of one file.
func (e *Engine) ValidateFile(ctx context.Context, path string) types.Report {
	r := e.validate(ctx, e.trackedByFile(e.opts.Normalize(path)))
	e.announce(validationSummary(r))
	return r
}

// Run validates at the configured interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.opts.ValidationInterval
	if interval <= 0 {
		interval = DefaultOptions().ValidationInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r := e.Validate(ctx)
			if !r.Skipped && !r.Empty() {
				slog.Info("validation complete", "completed", r.Completed, "deleted", r.Deleted)
			}
		}
	}
}

// trackedByFile groups the IDs of tracked pending tasks by origin file,
// limited to one file when only is set.
func (e *Engine) trackedByFile(only string) map[string][]string {
	byFile := make(map[string][]string)
	for _, t := range e.store.All() {
		if t.Completed || !t.Tracked() {
			continue
		}
		if only != "" && t.Origin.FilePath != only {
			continue
		}
		byFile[t.Origin.FilePath] = append(byFile[t.Origin.FilePath], t.ID)
	}
	return byFile
}

type fileResult struct {
	annotations []types.Annotation
	err         error
}

func (e *Engine) validate(ctx context.Context, byFile map[string][]string) types.Report {
	if len(byFile) == 0 {
		return types.Report{}
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	var mu sync.Mutex
	results := make(map[string]fileResult, len(files))

	g := new(errgroup.Group)
	g.SetLimit(e.opts.BatchSize)
	for _, f := range files {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			annotations, err := e.fileAnnotations(f)
			mu.Lock()
			results[f] = fileResult{annotations: annotations, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return types.Report{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var report types.Report
	err := e.store.Batch(func(tx *tasks.Tx) error {
		report = types.Report{}
		p := &pass{engine: e, tx: tx, report: &report}

		for _, f := range files {
			res := results[f]
			if errors.Is(res.err, types.ErrFileTooLarge) {
				slog.Debug("skipping validation of large file", "file", f)
				continue
			}
			if res.err != nil {
				slog.Warn("file unreadable, treating its annotations as removed", "file", f, "error", res.err)
			}

			for _, id := range byFile[f] {
				t, ok := tx.Get(id)
				// Changed since the snapshot was taken
				if !ok || t.Completed || !t.Tracked() || t.Origin.FilePath != f {
					continue
				}
				if res.err == nil && p.track(t, res.annotations) {
					continue
				}
				p.remove(t)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to apply validation results", "error", err)
		return types.Report{}
	}

	return report
}
