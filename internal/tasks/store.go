// Package tasks holds the authoritative task list, its views and its
// persistence backends.
package tasks

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spetr/doit/pkg/types"
)

// Persister loads and stores the complete task list.
type Persister interface {
	Load() ([]types.Task, error)
	Save(tasks []types.Task) error
}

// Store is the in-memory task list. Every mutation is persisted before it
// becomes visible and is announced to subscribers afterwards.
type Store struct {
	persister Persister
	now       func() time.Time

	mu    sync.RWMutex
	tasks []types.Task

	subsMu      sync.Mutex
	subscribers []func([]types.Change)
}

// Open loads the last stored list. A persister with nothing stored yields an empty list.
func Open(p Persister) (*Store, error) {
	loaded, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	s := &Store{
		persister: p,
		now:       time.Now,
		tasks:     loaded,
	}
	slog.Debug("task store opened", "tasks", len(loaded))
	return s, nil
}

// Subscribe registers fn to receive the changes of every committed mutation.
func (s *Store) Subscribe(fn func([]types.Change)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(changes []types.Change) {
	if len(changes) == 0 {
		return
	}
	s.subsMu.Lock()
	subs := append([]func([]types.Change){}, s.subscribers...)
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(changes)
	}
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.tasks, id); i >= 0 {
		return s.tasks[i].Clone(), nil
	}
	return types.Task{}, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
}

// All returns a copy of every task in list order.
func (s *Store) All() []types.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.tasks)
}

// Count returns the number of tasks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Add creates a manual task.
func (s *Store) Add(text, project string) (types.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Task{}, types.ErrEmptyText
	}

	task := types.Task{
		ID:        "manual_" + uuid.NewString(),
		Text:      text,
		Project:   project,
		CreatedAt: s.now(),
	}

	err := s.Batch(func(tx *Tx) error {
		if err := tx.Insert(task); err != nil {
			return err
		}
		tx.Record(types.Change{Kind: types.ChangeAdded, TaskID: task.ID, Text: task.Text})
		return nil
	})
	if err != nil {
		return types.Task{}, err
	}
	return task, nil
}

// Edit replaces the text of a task. The ID is kept.
func (s *Store) Edit(id, text string) (types.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Task{}, types.ErrEmptyText
	}

	var edited types.Task
	err := s.Batch(func(tx *Tx) error {
		t, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
		}
		t.Text = text
		if err := tx.Put(id, t); err != nil {
			return err
		}
		edited = t
		tx.Record(types.Change{Kind: types.ChangeEdited, TaskID: id, Text: text})
		return nil
	})
	return edited, err
}

// Delete removes a task.
func (s *Store) Delete(id string) error {
	return s.Batch(func(tx *Tx) error {
		t, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
		}
		if err := tx.Delete(id); err != nil {
			return err
		}
		tx.Record(types.Change{Kind: types.ChangeDeleted, TaskID: id, Text: t.Text})
		return nil
	})
}

// Toggle flips the completed state. Tasks whose annotation was removed from
// their file refuse with ErrTaskRemoved; use Revive instead.
func (s *Store) Toggle(id string) (types.Task, error) {
	var toggled types.Task
	err := s.Batch(func(tx *Tx) error {
		t, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
		}
		if t.Origin != nil && t.Origin.Status == types.OriginRemoved {
			return fmt.Errorf("%w: %s", types.ErrTaskRemoved, id)
		}
		t.Completed = !t.Completed
		if err := tx.Put(id, t); err != nil {
			return err
		}
		toggled = t
		tx.Record(types.Change{Kind: types.ChangeToggled, TaskID: id, Text: t.Text})
		return nil
	})
	return toggled, err
}

// Revive reopens a completed task. A task whose annotation was removed is
// kept as stale, so reconciliation no longer completes or deletes it.
func (s *Store) Revive(id string) (types.Task, error) {
	var revived types.Task
	err := s.Batch(func(tx *Tx) error {
		t, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
		}
		revived = t
		if !t.Completed {
			return nil
		}
		t.Completed = false
		if t.Origin != nil && t.Origin.Status == types.OriginRemoved {
			t.Origin.Status = types.OriginStale
		}
		if err := tx.Put(id, t); err != nil {
			return err
		}
		revived = t
		tx.Record(types.Change{Kind: types.ChangeRevived, TaskID: id, Text: t.Text})
		return nil
	})
	return revived, err
}

// Reset removes every task.
func (s *Store) Reset() error {
	return s.Batch(func(tx *Tx) error {
		if len(tx.tasks) == 0 {
			return nil
		}
		tx.tasks = nil
		tx.Record(types.Change{Kind: types.ChangeReset})
		return nil
	})
}

// Batch runs fn against a working copy of the list. If fn succeeds and
// modified the copy, it is persisted once, swapped in and the recorded
// changes are announced once. On any error nothing is applied.
func (s *Store) Batch(fn func(tx *Tx) error) error {
	s.mu.Lock()

	tx := &Tx{tasks: cloneAll(s.tasks)}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if !tx.dirty && len(tx.changes) == 0 {
		s.mu.Unlock()
		return nil
	}

	if err := s.persister.Save(tx.tasks); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	s.tasks = tx.tasks
	s.mu.Unlock()

	s.notify(tx.changes)
	return nil
}

// Tx is a working copy of the task list inside a Batch.
type Tx struct {
	tasks   []types.Task
	changes []types.Change
	dirty   bool
}

// Get returns a copy of the task with the given ID.
func (tx *Tx) Get(id string) (types.Task, bool) {
	if i := indexOf(tx.tasks, id); i >= 0 {
		return tx.tasks[i].Clone(), true
	}
	return types.Task{}, false
}

// Tasks returns copies of all tasks in list order.
func (tx *Tx) Tasks() []types.Task {
	return cloneAll(tx.tasks)
}

// Put replaces the task stored under id with t. t.ID may differ from id, in
// which case it must not collide with another task.
func (tx *Tx) Put(id string, t types.Task) error {
	i := indexOf(tx.tasks, id)
	if i < 0 {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	if t.ID != id && indexOf(tx.tasks, t.ID) >= 0 {
		return fmt.Errorf("%w: %s", types.ErrDuplicateTask, t.ID)
	}
	tx.tasks[i] = t.Clone()
	tx.dirty = true
	return nil
}

// Insert appends a new task.
func (tx *Tx) Insert(t types.Task) error {
	if indexOf(tx.tasks, t.ID) >= 0 {
		return fmt.Errorf("%w: %s", types.ErrDuplicateTask, t.ID)
	}
	tx.tasks = append(tx.tasks, t.Clone())
	tx.dirty = true
	return nil
}

// Delete removes the task with the given ID.
func (tx *Tx) Delete(id string) error {
	i := indexOf(tx.tasks, id)
	if i < 0 {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	tx.tasks = append(tx.tasks[:i], tx.tasks[i+1:]...)
	tx.dirty = true
	return nil
}

// Record notes a change to announce when the batch commits.
func (tx *Tx) Record(c types.Change) {
	tx.changes = append(tx.changes, c)
}

func indexOf(tasks []types.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(tasks []types.Task) []types.Task {
	out := make([]types.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// NewPersister returns the persister for a backend name ("jsonl" or "sqlite").
func NewPersister(backend, path string) (Persister, error) {
	switch backend {
	case "", "jsonl":
		return NewJSONLPersister(path), nil
	case "sqlite":
		return NewSQLitePersister(path)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", types.ErrInvalidConfig, backend)
	}
}
