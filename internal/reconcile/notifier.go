package reconcile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spetr/doit/pkg/types"
)

// Notifier receives best-effort, human-readable summaries.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }

// SlogNotifier logs summaries at Info level.
type SlogNotifier struct{}

// Notify logs the message.
func (SlogNotifier) Notify(message string) {
	slog.Info(message)
}

// ingestSummary renders the summary of a scan pass, or "" when nothing changed.
func ingestSummary(r types.Report, autoComplete bool) string {
	var parts []string
	if r.Added > 0 {
		parts = append(parts, fmt.Sprintf("Added %d tasks from files", r.Added))
	}
	if r.Updated > 0 {
		parts = append(parts, fmt.Sprintf("Updated %d tasks from files", r.Updated))
	}
	if removed := r.Completed + r.Deleted; removed > 0 {
		action := "Completed"
		if !autoComplete {
			action = "Removed"
		}
		parts = append(parts, fmt.Sprintf("%s %d tasks in files", action, removed))
	}
	return strings.Join(parts, ", ")
}

// validationSummary renders the summary of a validation pass, or "" when nothing changed.
func validationSummary(r types.Report) string {
	switch {
	case r.Completed == 1:
		return "1 task completed (removed from file)"
	case r.Completed > 1:
		return fmt.Sprintf("%d tasks completed (removed from files)", r.Completed)
	case r.Deleted == 1:
		return "1 task deleted (removed from file)"
	case r.Deleted > 1:
		return fmt.Sprintf("%d tasks deleted (removed from files)", r.Deleted)
	}
	return ""
}
