package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spetr/doit/internal/scancache"
	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/pkg/types"
)

// memFS is an in-memory workspace.
type memFS struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]error
	reads int
}

func newMemFS() *memFS {
	return &memFS{files: make(map[string]string), fail: make(map[string]error)}
}

func (m *memFS) set(path, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = text
}

func (m *memFS) remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

func (m *memFS) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *memFS) ReadFileText(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := m.fail[path]; err != nil {
		return "", err
	}
	text, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s: %w", types.ErrFileUnreadable, path, fs.ErrNotExist)
	}
	return text, nil
}

func (m *memFS) ListFiles(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := make([]string, 0, len(m.files))
	for f := range m.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine   *Engine
	store    *tasks.Store
	fs       *memFS
	messages []string
}

func newFixture(t *testing.T, cache *scancache.Cache, configure func(*Options)) *fixture {
	t.Helper()

	store, err := tasks.Open(tasks.NewJSONLPersister(filepath.Join(t.TempDir(), "tasks.jsonl")))
	if err != nil {
		t.Fatal(err)
	}

	if cache == nil {
		cache = scancache.New(0)
	}

	f := &fixture{store: store, fs: newMemFS()}
	opts := DefaultOptions()
	opts.BatchPause = 0
	opts.Project = "alpha"
	if configure != nil {
		configure(&opts)
	}

	var mu sync.Mutex
	notifier := NotifierFunc(func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		f.messages = append(f.messages, msg)
	})

	f.engine = New(store, f.fs, f.fs, cache, notifier, opts)
	return f
}

func (f *fixture) tasksOf(path string) []types.Task {
	var out []types.Task
	for _, t := range f.store.All() {
		if t.Origin != nil && t.Origin.FilePath == path {
			out = append(out, t)
		}
	}
	return out
}

func TestIngestAddsMeaningfulAnnotations(t *testing.T) {
	f := newFixture(t, nil, nil)

	r := f.engine.Ingest("src/a.go", "package a\n// TODO: refactor the config loader\n// todo fix\n")
	if r.Added != 1 {
		t.Fatalf("Added = %d, want 1", r.Added)
	}

	task, err := f.store.Get("src/a.go:refactor the config loader")
	if err != nil {
		t.Fatalf("task not stored: %v", err)
	}
	if task.Project != "alpha" || task.Completed {
		t.Errorf("task = %+v", task)
	}
	want := types.Origin{
		FilePath: "src/a.go",
		Line:     1,
		RawLine:  "// TODO: refactor the config loader",
		Tag:      types.TagTODO,
		Status:   types.OriginInFile,
	}
	if *task.Origin != want {
		t.Errorf("Origin = %+v, want %+v", *task.Origin, want)
	}
	if len(f.messages) != 1 || f.messages[0] != "Added 1 tasks from files" {
		t.Errorf("messages = %q", f.messages)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	text := "// TODO: refactor the config loader\n# FIXME: handle nil pointer in parser\n"

	first := f.engine.Ingest("a.go", text)
	second := f.engine.Ingest("a.go", text)

	if first.Added != 2 {
		t.Errorf("first Added = %d, want 2", first.Added)
	}
	if !second.Empty() || len(second.Changes) != 0 {
		t.Errorf("second ingest = %+v, want no changes", second)
	}
	if f.store.Count() != 2 {
		t.Errorf("Count = %d, want 2", f.store.Count())
	}
	if len(f.messages) != 1 {
		t.Errorf("messages = %q, want one summary", f.messages)
	}
}

func TestEditInPlace(t *testing.T) {
	f := newFixture(t, nil, nil)
	prefix := strings.Repeat("\n", 10)

	f.engine.Ingest("F.go", prefix+"// TODO: call the API")
	r := f.engine.Ingest("F.go", prefix+"// TODO: call the REST API")

	if r.Updated != 1 || r.Added != 0 || r.Completed != 0 {
		t.Fatalf("report = %+v, want one update", r)
	}
	if r.Changes[0].PreviousID != "F.go:call the API" || r.Changes[0].TaskID != "F.go:call the REST API" {
		t.Errorf("change = %+v", r.Changes[0])
	}

	got := f.tasksOf("F.go")
	if len(got) != 1 {
		t.Fatalf("tasks for F.go = %d, want 1", len(got))
	}
	if got[0].Text != "call the REST API" || got[0].Origin.Line != 10 || got[0].Origin.RawLine != "// TODO: call the REST API" {
		t.Errorf("task = %+v origin %+v", got[0], *got[0].Origin)
	}
	if f.messages[len(f.messages)-1] != "Updated 1 tasks from files" {
		t.Errorf("last message = %q", f.messages[len(f.messages)-1])
	}
}

func TestIngestRemovalPolicy(t *testing.T) {
	before := "// TODO: refactor the config loader\n// FIXME: handle nil pointer in parser\n"
	after := "// TODO: refactor the config loader\n// NOTE: document the public API surface\n"

	tests := []struct {
		name         string
		autoComplete bool
		wantCount    int
		wantMessage  string
	}{
		{"auto-complete", true, 3, "Added 1 tasks from files, Completed 1 tasks in files"},
		{"auto-delete", false, 2, "Added 1 tasks from files, Removed 1 tasks in files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, func(o *Options) { o.AutoComplete = tt.autoComplete })

			f.engine.Ingest("a.go", before)
			r := f.engine.Ingest("a.go", after)

			if r.Added != 1 || r.Completed+r.Deleted != 1 {
				t.Fatalf("report = %+v", r)
			}
			if f.store.Count() != tt.wantCount {
				t.Errorf("Count = %d, want %d", f.store.Count(), tt.wantCount)
			}

			kept, err := f.store.Get("a.go:refactor the config loader")
			if err != nil || kept.Completed {
				t.Errorf("unchanged annotation's task = %+v, %v", kept, err)
			}

			gone, err := f.store.Get("a.go:handle nil pointer in parser")
			if tt.autoComplete {
				if err != nil || !gone.Completed || gone.Origin.Status != types.OriginRemoved {
					t.Errorf("removed task = %+v, %v; want completed and removed", gone, err)
				}
			} else if !errors.Is(err, types.ErrNotFound) {
				t.Errorf("Get(removed) error = %v, want ErrNotFound", err)
			}

			if got := f.messages[len(f.messages)-1]; got != tt.wantMessage {
				t.Errorf("message = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestClaimedTaskIsNotReconsidered(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.engine.Ingest("a.go", "// TODO: update the user guide")
	r := f.engine.Ingest("a.go", "// TODO: update the user guides\n// TODO: update the user guide now")

	if r.Updated != 1 || r.Added != 1 {
		t.Fatalf("report = %+v, want one update and one add", r)
	}
	if _, err := f.store.Get("a.go:update the user guides"); err != nil {
		t.Errorf("first annotation should claim the task: %v", err)
	}
	if _, err := f.store.Get("a.go:update the user guide now"); err != nil {
		t.Errorf("second annotation should be a new task: %v", err)
	}
}

func TestDuplicateAnnotationRefreshesLine(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.engine.Ingest("a.go", "// TODO: refactor the config loader")
	r := f.engine.Ingest("a.go", "\n\n// TODO: refactor the config loader")

	if !r.Empty() {
		t.Errorf("report = %+v, want no counted changes", r)
	}
	task, _ := f.store.Get("a.go:refactor the config loader")
	if task.Origin.Line != 2 {
		t.Errorf("Line = %d, want 2", task.Origin.Line)
	}
	if f.store.Count() != 1 {
		t.Errorf("Count = %d, want 1", f.store.Count())
	}
}

func TestOtherFilesAreNotCandidates(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.engine.Ingest("a.go", "// TODO: call the API")
	r := f.engine.Ingest("b.go", "// TODO: call the REST API")

	if r.Added != 1 || r.Updated != 0 {
		t.Errorf("report = %+v, want a new task", r)
	}
	if f.store.Count() != 2 {
		t.Errorf("Count = %d, want 2", f.store.Count())
	}
}

func TestManualTasksAreNeverTouched(t *testing.T) {
	f := newFixture(t, nil, nil)
	manual, _ := f.store.Add("call the API", "alpha")

	f.fs.set("a.go", "// TODO: call the REST API")
	f.engine.ScanFile(context.Background(), "a.go")
	f.engine.Validate(context.Background())

	got, err := f.store.Get(manual.ID)
	if err != nil || got.Completed || got.Text != "call the API" {
		t.Errorf("manual task = %+v, %v", got, err)
	}
}

func TestScanFileErrors(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.MaxFileSize = 16 })
	f.fs.set("big.go", "// TODO: this file is far too large to scan")

	if _, err := f.engine.ScanFile(context.Background(), "big.go"); !errors.Is(err, types.ErrFileTooLarge) {
		t.Errorf("ScanFile(big) error = %v, want ErrFileTooLarge", err)
	}
	if _, err := f.engine.ScanFile(context.Background(), "missing.go"); !errors.Is(err, types.ErrFileUnreadable) {
		t.Errorf("ScanFile(missing) error = %v, want ErrFileUnreadable", err)
	}

	f.fs.fail["denied.go"] = errors.New("permission denied")
	if _, err := f.engine.ScanFile(context.Background(), "denied.go"); !errors.Is(err, types.ErrFileUnreadable) {
		t.Errorf("ScanFile(denied) error = %v, want ErrFileUnreadable", err)
	}
	if f.store.Count() != 0 {
		t.Errorf("Count = %d, want 0", f.store.Count())
	}
}

func TestScanWorkspace(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.BatchSize = 10 })
	for i := range 25 {
		f.fs.set(fmt.Sprintf("pkg/f%02d.go", i), fmt.Sprintf("// TODO: implement feature number %d", i))
	}
	f.fs.fail["pkg/f07.go"] = errors.New("i/o error")

	r, err := f.engine.ScanWorkspace(context.Background())
	if err != nil {
		t.Fatalf("ScanWorkspace failed: %v", err)
	}
	if r.Files != 24 || r.Added != 24 {
		t.Errorf("report Files=%d Added=%d, want 24 and 24", r.Files, r.Added)
	}
	if len(f.messages) != 1 || f.messages[0] != "Added 24 tasks from files" {
		t.Errorf("messages = %q, want one summary", f.messages)
	}
}

func TestScanWorkspaceCancelled(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.BatchSize = 1 })
	f.fs.set("a.go", "// TODO: implement the first feature")
	f.fs.set("b.go", "// TODO: implement the second feature")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.engine.ScanWorkspace(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRescanForgetsSeenAnnotations(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.fs.set("a.go", "// TODO: refactor the config loader")
	ctx := context.Background()

	f.engine.ScanWorkspace(ctx)
	f.store.Reset()

	if r, _ := f.engine.ScanWorkspace(ctx); r.Added != 0 {
		t.Errorf("plain scan re-added %d tasks, want 0", r.Added)
	}
	if r, _ := f.engine.Rescan(ctx); r.Added != 1 {
		t.Errorf("Rescan Added = %d, want 1", r.Added)
	}
}

func TestHandleSaveAndDelete(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.fs.set("a.go", "// TODO: refactor the config loader")
	f.engine.HandleSave(ctx, "a.go")
	if f.store.Count() != 1 {
		t.Fatalf("Count = %d after save, want 1", f.store.Count())
	}

	f.fs.remove("a.go")
	r := f.engine.HandleDelete(ctx, "a.go")
	if r.Completed != 1 {
		t.Fatalf("HandleDelete report = %+v, want one completion", r)
	}
	task, _ := f.store.Get("a.go:refactor the config loader")
	if !task.Completed || task.Origin.Status != types.OriginRemoved {
		t.Errorf("task = %+v", task)
	}
}

func TestSimilarAnnotationClaimsUnchangedTask(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.engine.Ingest("f.go", "// TODO: call the API endpoint")
	r := f.engine.Ingest("f.go", "// TODO: call the API endpoint\n// TODO: call the REST API endpoint")

	if r.Updated != 1 || r.Added != 0 {
		t.Fatalf("report = %+v, want one update", r)
	}
	got := f.tasksOf("f.go")
	if len(got) != 1 {
		t.Fatalf("tasks for f.go = %d, want 1", len(got))
	}
	if got[0].Text != "call the REST API endpoint" || got[0].Origin.Line != 1 {
		t.Errorf("task = %+v origin %+v", got[0], *got[0].Origin)
	}
}

func TestFirstMatchingCandidateWins(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.store.Batch(func(tx *tasks.Tx) error {
		for i, text := range []string{"update the user guide", "update the user guides"} {
			task := types.Task{
				ID:   types.TaskID("a.go", text),
				Text: text,
				Origin: &types.Origin{
					FilePath: "a.go",
					Line:     i,
					RawLine:  "// TODO: " + text,
					Tag:      types.TagTODO,
					Status:   types.OriginInFile,
				},
			}
			if err := tx.Insert(task); err != nil {
				return err
			}
			tx.Record(types.Change{Kind: types.ChangeAdded, TaskID: task.ID})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	r := f.engine.Ingest("a.go", "// TODO: update the user guide\n// TODO: update the user guides\n// TODO: update the user guide now")

	if r.Updated != 1 || r.Added != 0 {
		t.Fatalf("report = %+v, want one update", r)
	}
	if _, err := f.store.Get("a.go:update the user guide now"); err != nil {
		t.Errorf("first candidate should have been claimed: %v", err)
	}
	if _, err := f.store.Get("a.go:update the user guides"); err != nil {
		t.Errorf("later candidate should be left in place: %v", err)
	}
	if f.store.Count() != 2 {
		t.Errorf("Count = %d, want 2", f.store.Count())
	}
}

func TestSimultaneousEditsKeepTheirTasks(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.engine.Ingest("a.go", "// TODO: refactor the config loader\n// FIXME: handle nil pointer in parser")
	r := f.engine.Ingest("a.go", "// TODO: refactor the config loaders\n// FIXME: handle nil pointers in parser")

	if r.Updated != 2 || r.Added != 0 || r.Completed != 0 {
		t.Fatalf("report = %+v, want two updates", r)
	}
	if f.store.Count() != 2 {
		t.Errorf("Count = %d, want 2", f.store.Count())
	}
}

func TestScanFileOutsideScope(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) {
		o.Include = func(path string) bool { return !strings.HasPrefix(path, "node_modules/") }
	})
	f.fs.set("node_modules/x.js", "// TODO: excluded vendored file content")

	_, err := f.engine.ScanFile(context.Background(), "node_modules/x.js")
	if !errors.Is(err, types.ErrFileExcluded) {
		t.Errorf("ScanFile error = %v, want ErrFileExcluded", err)
	}
	if f.fs.readCount() != 0 {
		t.Errorf("excluded file was read %d times", f.fs.readCount())
	}
	if f.store.Count() != 0 {
		t.Errorf("Count = %d, want 0", f.store.Count())
	}
}

func TestHandleSaveWithoutAutoScan(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.AutoScan = false })
	ctx := context.Background()

	f.fs.set("a.go", "// TODO: refactor the config loader")
	f.engine.HandleSave(ctx, "a.go")
	if f.store.Count() != 0 {
		t.Errorf("Count = %d after save, want 0", f.store.Count())
	}

	if r, err := f.engine.ScanFile(ctx, "a.go"); err != nil || r.Added != 1 {
		t.Errorf("explicit ScanFile = %+v, %v; want one added", r, err)
	}
}
