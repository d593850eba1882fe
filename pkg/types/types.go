// Package types contains shared data types used across the doit project.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Tag is the marker word that introduces an annotation in a comment.
type Tag string

const (
	TagTODO  Tag = "TODO"
	TagFIXME Tag = "FIXME"
	TagHACK  Tag = "HACK"
	TagNOTE  Tag = "NOTE"
	TagBUG   Tag = "BUG"
)

// AllTags lists the recognized tags in display order.
var AllTags = []Tag{TagTODO, TagFIXME, TagHACK, TagNOTE, TagBUG}

// ParseTag parses a tag case-insensitively.
func ParseTag(s string) (Tag, bool) {
	t := Tag(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllTags {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Annotation is a tagged comment found in a file during one scan.
// Its identity is positional and does not survive edits.
type Annotation struct {
	Tag     Tag    `json:"tag"`
	Text    string `json:"text"`
	Line    int    `json:"line"`     // 0-based
	RawLine string `json:"raw_line"` // trimmed source line
}

// OriginStatus describes how a file-derived task relates to its source annotation.
type OriginStatus string

const (
	// OriginInFile means the annotation was present the last time it was checked.
	OriginInFile OriginStatus = "in-file"
	// OriginRemoved means the annotation disappeared and the task was auto-completed.
	OriginRemoved OriginStatus = "removed"
	// OriginStale means the user reopened a removed task; reconciliation leaves it alone.
	OriginStale OriginStatus = "stale"
)

// Origin links a task to the annotation it was created from.
type Origin struct {
	FilePath string       `json:"file"`
	Line     int          `json:"line"`
	RawLine  string       `json:"raw_line"`
	Tag      Tag          `json:"tag"`
	Status   OriginStatus `json:"status"`
}

// Task is the durable unit shown to users.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Origin    *Origin   `json:"origin,omitempty"`
}

// IsManual reports whether the task was created by a user rather than from a file.
func (t *Task) IsManual() bool {
	return t.Origin == nil
}

// Tracked reports whether reconciliation may complete or delete the task.
func (t *Task) Tracked() bool {
	return t.Origin != nil && t.Origin.Status != OriginStale
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	if t.Origin != nil {
		o := *t.Origin
		t.Origin = &o
	}
	return t
}

// TaskID derives the ID of a file-derived task.
func TaskID(filePath, text string) string {
	return filePath + ":" + strings.TrimSpace(text)
}

// SeenKey derives the key used to suppress re-processing an unchanged annotation.
func SeenKey(filePath string, a Annotation) string {
	return fmt.Sprintf("%s:%d:%s:%s", filePath, a.Line, a.Tag, strings.TrimSpace(a.Text))
}

// ChangeKind classifies a mutation of the task list.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeMoved     ChangeKind = "moved" // line drift refreshed, not counted in reports
	ChangeCompleted ChangeKind = "completed"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeEdited    ChangeKind = "edited"
	ChangeToggled   ChangeKind = "toggled"
	ChangeRevived   ChangeKind = "revived"
	ChangeReset     ChangeKind = "reset"
)

// Change describes one mutation of the task list.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	TaskID     string     `json:"task_id,omitempty"`
	PreviousID string     `json:"previous_id,omitempty"` // set when a match rewrote the ID
	Text       string     `json:"text,omitempty"`
}

// Report summarizes a reconciliation pass.
type Report struct {
	Added     int      `json:"added"`
	Updated   int      `json:"updated"`
	Completed int      `json:"completed"`
	Deleted   int      `json:"deleted"`
	Files     int      `json:"files,omitempty"`
	Skipped   bool     `json:"skipped,omitempty"` // validation already running
	Changes   []Change `json:"changes,omitempty"`
}

// Record adds a change and bumps the matching counter.
func (r *Report) Record(c Change) {
	switch c.Kind {
	case ChangeAdded:
		r.Added++
	case ChangeUpdated:
		r.Updated++
	case ChangeCompleted:
		r.Completed++
	case ChangeDeleted:
		r.Deleted++
	}
	r.Changes = append(r.Changes, c)
}

// Merge folds another report into r.
func (r *Report) Merge(o Report) {
	r.Added += o.Added
	r.Updated += o.Updated
	r.Completed += o.Completed
	r.Deleted += o.Deleted
	r.Files += o.Files
	r.Changes = append(r.Changes, o.Changes...)
}

// Empty reports whether the pass changed nothing.
func (r *Report) Empty() bool {
	return r.Added == 0 && r.Updated == 0 && r.Completed == 0 && r.Deleted == 0
}

// TaskStats contains task list statistics.
type TaskStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Removed   int `json:"removed"`
	FromFiles int `json:"from_files"`
	Manual    int `json:"manual"`
}
