package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/spetr/doit/pkg/types"
)

var (
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	removedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	staleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	tagStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

// taskIcon returns the status marker of a task.
func taskIcon(t types.Task) string {
	switch {
	case t.Origin != nil && t.Origin.Status == types.OriginRemoved:
		return removedStyle.Render("✗")
	case t.Completed:
		return completedStyle.Render("✓")
	default:
		return pendingStyle.Render("◷")
	}
}

// describeTask renders the second line of a list entry: "◈ TAG | file:line".
func describeTask(t types.Task) string {
	if t.Origin == nil {
		return mutedStyle.Render("manual")
	}
	desc := fmt.Sprintf("%s %s", tagStyle.Render("◈ "+string(t.Origin.Tag)), mutedStyle.Render(fmt.Sprintf("| %s:%d", t.Origin.FilePath, t.Origin.Line+1)))
	switch t.Origin.Status {
	case types.OriginRemoved:
		desc += " " + removedStyle.UnsetStrikethrough().Render("(removed from file)")
	case types.OriginStale:
		desc += " " + staleStyle.Render("(no longer tracked)")
	}
	return desc
}

func printTasks(w io.Writer, title string, list []types.Task) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No tasks"))
		return
	}

	fmt.Fprintf(w, "%s (%d):\n\n", title, len(list))
	for _, t := range list {
		text := t.Text
		if t.Origin != nil && t.Origin.Status == types.OriginRemoved {
			text = removedStyle.Render(text)
		}
		fmt.Fprintf(w, "  %s %s\n", taskIcon(t), text)
		fmt.Fprintf(w, "      %s  %s\n", describeTask(t), mutedStyle.Render(t.ID))
	}
}

func printTask(w io.Writer, verb string, t types.Task) {
	fmt.Fprintf(w, "%s %s %s\n", taskIcon(t), verb, t.Text)
	fmt.Fprintf(w, "  %s\n", mutedStyle.Render(t.ID))
}

func printStats(w io.Writer, project string, s types.TaskStats) {
	scope := project
	if scope == "" {
		scope = "all projects"
	}
	fmt.Fprintf(w, "Tasks (%s):\n", scope)
	fmt.Fprintf(w, "  Total:      %d\n", s.Total)
	fmt.Fprintf(w, "  Pending:    %s\n", pendingStyle.Render(fmt.Sprint(s.Pending)))
	fmt.Fprintf(w, "  Completed:  %s\n", completedStyle.Render(fmt.Sprint(s.Completed)))
	fmt.Fprintf(w, "  From files: %d (%d removed)\n", s.FromFiles, s.Removed)
	fmt.Fprintf(w, "  Manual:     %d\n", s.Manual)
}

func printReport(w io.Writer, r types.Report) {
	var parts []string
	if r.Files > 0 {
		parts = append(parts, fmt.Sprintf("%d files scanned", r.Files))
	}
	if r.Skipped {
		parts = append(parts, "skipped (already running)")
	}
	if r.Empty() && !r.Skipped {
		parts = append(parts, "no changes")
	}
	fmt.Fprintln(w, mutedStyle.Render(strings.Join(parts, ", ")))
}

// writerNotifier prints engine summaries for the user.
type writerNotifier struct {
	w io.Writer
}

func (n writerNotifier) Notify(message string) {
	fmt.Fprintln(n.w, noticeStyle.Render("• "+message))
}

// changeLogger returns a store subscriber that logs every task change.
// Line drift is only interesting when debugging.
func changeLogger(logger *slog.Logger) func([]types.Change) {
	return func(changes []types.Change) {
		for _, c := range changes {
			level := slog.LevelInfo
			if c.Kind == types.ChangeMoved {
				level = slog.LevelDebug
			}
			logger.Log(context.Background(), level, "task changed", "kind", c.Kind, "task", c.TaskID)
		}
	}
}
