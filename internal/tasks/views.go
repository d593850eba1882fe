package tasks

import (
	"sort"

	"github.com/spetr/doit/pkg/types"
)

// Predicate selects tasks for a view.
type Predicate func(t *types.Task) bool

// IsPending selects tasks that are not completed.
func IsPending(t *types.Task) bool { return !t.Completed }

// IsCompleted selects completed tasks.
func IsCompleted(t *types.Task) bool { return t.Completed }

// InProject selects tasks of one project. An empty project selects everything.
func InProject(project string) Predicate {
	return func(t *types.Task) bool {
		return project == "" || t.Project == project
	}
}

// HasTag selects tasks whose annotation carries tag. Manual tasks have no tag.
func HasTag(tag types.Tag) Predicate {
	return func(t *types.Task) bool {
		return t.Origin != nil && t.Origin.Tag == tag
	}
}

// Filter returns the tasks matching every predicate, newest first.
func Filter(tasks []types.Task, preds ...Predicate) []types.Task {
	var out []types.Task
	for i := range tasks {
		if matchAll(&tasks[i], preds) {
			out = append(out, tasks[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matchAll(t *types.Task, preds []Predicate) bool {
	for _, p := range preds {
		if !p(t) {
			return false
		}
	}
	return true
}

// Pending returns the pending view for a project.
func (s *Store) Pending(project string) []types.Task {
	return Filter(s.All(), IsPending, InProject(project))
}

// Completed returns the completed view for a project.
func (s *Store) Completed(project string) []types.Task {
	return Filter(s.All(), IsCompleted, InProject(project))
}

// Stats summarizes the tasks of a project.
func (s *Store) Stats(project string) types.TaskStats {
	var stats types.TaskStats
	for _, t := range Filter(s.All(), InProject(project)) {
		stats.Total++
		if t.Completed {
			stats.Completed++
		} else {
			stats.Pending++
		}
		if t.IsManual() {
			stats.Manual++
			continue
		}
		stats.FromFiles++
		if t.Origin.Status == types.OriginRemoved {
			stats.Removed++
		}
	}
	return stats
}
