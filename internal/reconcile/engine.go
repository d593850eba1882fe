// Package reconcile keeps the task list in step with the annotations found in
// workspace files.
//
// Two modes share one matching core. Ingest handles the annotations of a file
// that was just scanned: unseen annotations either claim an existing task of
// the same file whose text was edited, or become new tasks, and tasks of that
// file whose text disappeared get the removal policy. Validate periodically
// re-checks every tracked task against its file.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spetr/doit/internal/extract"
	"github.com/spetr/doit/internal/scancache"
	"github.com/spetr/doit/internal/similarity"
	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/pkg/types"
)

// FileReader returns the current text of a workspace file.
type FileReader interface {
	ReadFileText(path string) (string, error)
}

// FileLister lists the workspace files eligible for scanning.
type FileLister interface {
	ListFiles(ctx context.Context) ([]string, error)
}

// Options configures an Engine.
type Options struct {
	SimilarityThreshold float64
	AutoComplete        bool // false = delete tasks whose annotation disappeared
	AutoScan            bool // HandleSave ingests saved files
	ValidationInterval  time.Duration
	BatchSize           int           // files read concurrently during a workspace scan
	BatchPause          time.Duration // pause between batches
	MaxFileSize         int64         // bytes; 0 = unlimited
	Project             string        // assigned to new tasks

	// Normalize maps a path to its workspace-relative form. Defaults to
	// cleaning the path and converting separators to forward slashes.
	Normalize func(path string) string

	// Include reports whether a normalized path may be scanned. Nil accepts
	// every path.
	Include func(path string) bool

	// Now is the clock used for CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.7,
		AutoComplete:        true,
		AutoScan:            true,
		ValidationInterval:  3 * time.Minute,
		BatchSize:           10,
		BatchPause:          10 * time.Millisecond,
		MaxFileSize:         1024 * 1024,
	}
}

// Engine reconciles annotations with the task store.
type Engine struct {
	store    *tasks.Store
	reader   FileReader
	lister   FileLister
	cache    *scancache.Cache
	notifier Notifier
	opts     Options

	// mu serializes reconciliation passes and guards seen.
	mu   sync.Mutex
	seen map[string]map[string]struct{} // file -> seen keys

	validating atomic.Bool
}

// New creates an engine. A nil cache gets the default TTL; a nil notifier logs.
func New(store *tasks.Store, reader FileReader, lister FileLister, cache *scancache.Cache, notifier Notifier, opts Options) *Engine {
	if cache == nil {
		cache = scancache.New(scancache.DefaultTTL)
	}
	if notifier == nil {
		notifier = SlogNotifier{}
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Normalize == nil {
		opts.Normalize = func(p string) string { return filepath.ToSlash(filepath.Clean(p)) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		store:    store,
		reader:   reader,
		lister:   lister,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
		seen:     make(map[string]map[string]struct{}),
	}
}

// Store returns the task store the engine mutates.
func (e *Engine) Store() *tasks.Store {
	return e.store
}

// Ingest reconciles the given text of one file and announces what changed.
func (e *Engine) Ingest(path, text string) types.Report {
	r := e.ingest(path, text)
	e.announce(ingestSummary(r, e.opts.AutoComplete))
	return r
}

func (e *Engine) ingest(path, text string) types.Report {
	path = e.opts.Normalize(path)
	current := extract.Extract(text)
	e.cache.Put(path, current)

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := e.seen[path]
	if seen == nil {
		seen = make(map[string]struct{})
		e.seen[path] = seen
	}

	var fresh []types.Annotation
	for _, a := range extract.Filter(current) {
		key := types.SeenKey(path, a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		return types.Report{}
	}

	var report types.Report
	err := e.store.Batch(func(tx *tasks.Tx) error {
		report = types.Report{}
		p := &pass{engine: e, tx: tx, report: &report}
		p.reconcileFile(path, fresh, current)
		return nil
	})
	if err != nil {
		slog.Error("failed to apply scan results", "file", path, "error", err)
		// Let the next scan retry these annotations
		for _, a := range fresh {
			delete(seen, types.SeenKey(path, a))
		}
		return types.Report{}
	}

	return report
}

// forget drops the seen keys of one file, or of every file when path is empty.
func (e *Engine) forget(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if path == "" {
		e.seen = make(map[string]map[string]struct{})
		return
	}
	delete(e.seen, path)
}

func (e *Engine) announce(message string) {
	if message != "" {
		e.notifier.Notify(message)
	}
}

// pass holds the bookkeeping of one store batch.
type pass struct {
	engine *Engine
	tx     *tasks.Tx
	report *types.Report
}

func (p *pass) record(c types.Change) {
	p.report.Record(c)
	p.tx.Record(c)
}

// reconcileFile applies the unseen annotations of one file.
//
// Every tracked pending task of the file is a candidate. Each unseen
// annotation claims the first unclaimed candidate, in store order, scoring at
// least the threshold, or becomes a new task. Candidates it does not claim
// get a presence check: a task whose text is still in the file stays (its
// line is refreshed), the others are marked missing. Missing candidates can
// still be claimed by a later annotation of the pass and get the removal
// policy at the end.
func (p *pass) reconcileFile(path string, fresh, current []types.Annotation) {
	threshold := p.engine.opts.SimilarityThreshold

	var candidates []string
	for _, t := range p.tx.Tasks() {
		if !t.Completed && t.Tracked() && t.Origin.FilePath == path {
			candidates = append(candidates, t.ID)
		}
	}

	claimed := make(map[string]bool)
	missing := make(map[string]bool)

	for _, a := range fresh {
		text := strings.TrimSpace(a.Text)
		id := types.TaskID(path, text)

		if existing, ok := p.tx.Get(id); ok {
			p.track(existing, current)
			continue
		}

		origin := &types.Origin{
			FilePath: path,
			Line:     a.Line,
			RawLine:  a.RawLine,
			Tag:      a.Tag,
			Status:   types.OriginInFile,
		}

		matched := false
		for _, cid := range candidates {
			if claimed[cid] {
				continue
			}
			t, ok := p.tx.Get(cid)
			if !ok {
				continue
			}

			if score := similarity.Score(t.Text, text); !matched && score >= threshold {
				if p.claim(t, id, text, origin, score) {
					claimed[cid] = true
					delete(missing, cid)
					matched = true
					continue
				}
			}

			if !missing[cid] && !p.track(t, current) {
				missing[cid] = true
			}
		}
		if matched {
			continue
		}

		task := types.Task{
			ID:        id,
			Text:      text,
			Project:   p.engine.opts.Project,
			CreatedAt: p.engine.opts.Now(),
			Origin:    origin,
		}
		if err := p.tx.Insert(task); err != nil {
			slog.Warn("failed to add task", "task", id, "error", err)
			continue
		}
		p.record(types.Change{Kind: types.ChangeAdded, TaskID: id, Text: text})
	}

	for _, cid := range candidates {
		if !missing[cid] {
			continue
		}
		if t, ok := p.tx.Get(cid); ok {
			p.remove(t)
		}
	}
}

// claim rewrites t in place to the annotation it was edited into.
func (p *pass) claim(t types.Task, id, text string, origin *types.Origin, score float64) bool {
	previous := t.ID
	t.ID = id
	t.Text = text
	t.Origin = origin
	if err := p.tx.Put(previous, t); err != nil {
		slog.Warn("failed to update task", "task", previous, "error", err)
		return false
	}
	slog.Debug("annotation edited in place", "file", origin.FilePath, "from", previous, "to", id, "score", score)
	p.record(types.Change{Kind: types.ChangeUpdated, TaskID: id, PreviousID: previous, Text: text})
	return true
}

// track reports whether t's text is among the annotations and refreshes its
// line when it drifted.
func (p *pass) track(t types.Task, annotations []types.Annotation) bool {
	if t.Origin == nil {
		return false
	}
	a, ok := locate(annotations, t.Text, t.Origin.Line)
	if !ok {
		return false
	}
	if t.Completed || (a.Line == t.Origin.Line && a.RawLine == t.Origin.RawLine) {
		return true
	}

	t.Origin.Line = a.Line
	t.Origin.RawLine = a.RawLine
	if err := p.tx.Put(t.ID, t); err != nil {
		slog.Warn("failed to refresh task line", "task", t.ID, "error", err)
		return true
	}
	p.record(types.Change{Kind: types.ChangeMoved, TaskID: t.ID})
	return true
}

// remove applies the removal policy to t.
func (p *pass) remove(t types.Task) {
	if !p.engine.opts.AutoComplete {
		if err := p.tx.Delete(t.ID); err != nil {
			slog.Warn("failed to delete task", "task", t.ID, "error", err)
			return
		}
		p.record(types.Change{Kind: types.ChangeDeleted, TaskID: t.ID, Text: t.Text})
		return
	}

	t.Completed = true
	t.Origin.Status = types.OriginRemoved
	if err := p.tx.Put(t.ID, t); err != nil {
		slog.Warn("failed to complete task", "task", t.ID, "error", err)
		return
	}
	p.record(types.Change{Kind: types.ChangeCompleted, TaskID: t.ID, Text: t.Text})
}

// locate finds the annotation whose trimmed text equals text, preferring the
// one at line.
func locate(annotations []types.Annotation, text string, line int) (types.Annotation, bool) {
	text = strings.TrimSpace(text)
	var found types.Annotation
	ok := false
	for _, a := range annotations {
		if strings.TrimSpace(a.Text) != text {
			continue
		}
		if a.Line == line {
			return a, true
		}
		if !ok {
			found, ok = a, true
		}
	}
	return found, ok
}

// fileAnnotations returns the annotations of a file from the cache or a fresh read.
func (e *Engine) fileAnnotations(path string) ([]types.Annotation, error) {
	if annotations, ok := e.cache.Get(path); ok {
		return annotations, nil
	}

	text, err := e.read(path)
	if err != nil {
		return nil, err
	}

	annotations := extract.Extract(text)
	e.cache.Put(path, annotations)
	return annotations, nil
}

// read returns the file text, enforcing the size limit.
func (e *Engine) read(path string) (string, error) {
	text, err := e.reader.ReadFileText(path)
	if err != nil {
		e.cache.Invalidate(path)
		if !errors.Is(err, types.ErrFileUnreadable) {
			err = fmt.Errorf("%w: %s: %w", types.ErrFileUnreadable, path, err)
		}
		return "", err
	}
	if e.opts.MaxFileSize > 0 && int64(len(text)) > e.opts.MaxFileSize {
		return "", fmt.Errorf("%w: %s (%d bytes)", types.ErrFileTooLarge, path, len(text))
	}
	return text, nil
}
