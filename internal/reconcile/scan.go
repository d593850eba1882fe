package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spetr/doit/pkg/types"
)

// ScanFile reads one file and ingests its text. Files rejected by the
// Include option fail with types.ErrFileExcluded, files larger than the size
// limit with types.ErrFileTooLarge; read failures wrap types.ErrFileUnreadable.
func (e *Engine) ScanFile(ctx context.Context, path string) (types.Report, error) {
	r, err := e.scanFile(ctx, path)
	if err != nil {
		return r, err
	}
	e.announce(ingestSummary(r, e.opts.AutoComplete))
	return r, nil
}

func (e *Engine) scanFile(ctx context.Context, path string) (types.Report, error) {
	if err := ctx.Err(); err != nil {
		return types.Report{}, err
	}

	path = e.opts.Normalize(path)
	if e.opts.Include != nil && !e.opts.Include(path) {
		return types.Report{}, fmt.Errorf("%w: %s", types.ErrFileExcluded, path)
	}

	text, err := e.read(path)
	if err != nil {
		return types.Report{}, err
	}

	r := e.ingest(path, text)
	r.Files = 1
	return r, nil
}

// ScanWorkspace scans every listed file in groups of BatchSize concurrent
// reads, pausing BatchPause between groups. Per-file failures are logged and
// skipped.
func (e *Engine) ScanWorkspace(ctx context.Context) (types.Report, error) {
	files, err := e.lister.ListFiles(ctx)
	if err != nil {
		return types.Report{}, fmt.Errorf("failed to list workspace files: %w", err)
	}

	slog.Info("scanning workspace", "files", len(files))
	start := time.Now()

	var (
		mu    sync.Mutex
		total types.Report
	)

	for i := 0; i < len(files); i += e.opts.BatchSize {
		batch := files[i:min(i+e.opts.BatchSize, len(files))]

		g, gctx := errgroup.WithContext(ctx)
		for _, path := range batch {
			g.Go(func() error {
				r, err := e.scanFile(gctx, path)
				if err != nil {
					logScanError(path, err)
					return nil
				}
				mu.Lock()
				total.Merge(r)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return total, err
		}

		if i+e.opts.BatchSize < len(files) && e.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(e.opts.BatchPause):
			}
		}
	}

	slog.Info("workspace scan complete",
		"files", total.Files,
		"added", total.Added,
		"updated", total.Updated,
		"removed", total.Completed+total.Deleted,
		"duration", time.Since(start))

	e.announce(ingestSummary(total, e.opts.AutoComplete))
	return total, nil
}

func logScanError(path string, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, types.ErrFileTooLarge):
		slog.Debug("skipping large file", "file", path, "error", err)
	case errors.Is(err, types.ErrFileExcluded):
		slog.Debug("skipping excluded file", "file", path)
	default:
		slog.Warn("failed to scan file", "file", path, "error", err)
	}
}

// HandleSave reacts to a saved file. Without AutoScan only the cached
// annotations of the file are dropped.
func (e *Engine) HandleSave(ctx context.Context, path string) {
	path = e.opts.Normalize(path)
	e.cache.Invalidate(path)
	if !e.opts.AutoScan {
		slog.Debug("auto scan disabled, not ingesting saved file", "file", path)
		return
	}
	if _, err := e.ScanFile(ctx, path); err != nil {
		logScanError(path, err)
	}
}

// HandleDelete reacts to a deleted file: its tasks are validated, which
// applies the removal policy since the file can no longer be read.
func (e *Engine) HandleDelete(ctx context.Context, path string) types.Report {
	path = e.opts.Normalize(path)
	e.cache.Invalidate(path)
	e.forget(path)
	return e.ValidateFile(ctx, path)
}

// Rescan forgets every seen annotation and cached file, then scans the workspace.
func (e *Engine) Rescan(ctx context.Context) (types.Report, error) {
	e.forget("")
	e.cache.Clear()
	return e.ScanWorkspace(ctx)
}
