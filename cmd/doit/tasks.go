package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/pkg/types"
)

func addTaskCommands(root *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			completed, _ := cmd.Flags().GetBool("completed")
			all, _ := cmd.Flags().GetBool("all")
			allProjects, _ := cmd.Flags().GetBool("all-projects")
			tag, _ := cmd.Flags().GetString("tag")
			return runList(completed, all, allProjects, tag)
		},
	}
	listCmd.Flags().Bool("completed", false, "show completed tasks instead of pending ones")
	listCmd.Flags().BoolP("all", "a", false, "show pending and completed tasks")
	listCmd.Flags().Bool("all-projects", false, "include tasks of every project")
	listCmd.Flags().String("tag", "", "only tasks from annotations with this tag (TODO, FIXME, HACK, NOTE, BUG)")

	addCmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a manual task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				t, err := a.store.Add(strings.Join(args, " "), a.project)
				if err != nil {
					return fmt.Errorf("failed to add task: %w", err)
				}
				printTask(os.Stdout, "Added", t)
				return nil
			})
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Change the text of a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				t, err := a.store.Edit(args[0], strings.Join(args[1:], " "))
				if err != nil {
					return fmt.Errorf("failed to edit task: %w", err)
				}
				printTask(os.Stdout, "Edited", t)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if err := a.store.Delete(args[0]); err != nil {
					return fmt.Errorf("failed to delete task: %w", err)
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				t, err := a.store.Toggle(args[0])
				if errors.Is(err, types.ErrTaskRemoved) {
					return fmt.Errorf("the annotation of %s was removed from its file; use 'doit revive' to reopen it", args[0])
				}
				if err != nil {
					return fmt.Errorf("failed to toggle task: %w", err)
				}
				verb := "Reopened"
				if t.Completed {
					verb = "Completed"
				}
				printTask(os.Stdout, verb, t)
				return nil
			})
		},
	}

	reviveCmd := &cobra.Command{
		Use:   "revive <id>",
		Short: "Reopen a completed task",
		Long: `Reopen a completed task. A task whose annotation was removed from its
file is kept as stale: it stays pending and reconciliation leaves it alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				t, err := a.store.Revive(args[0])
				if err != nil {
					return fmt.Errorf("failed to revive task: %w", err)
				}
				printTask(os.Stdout, "Revived", t)
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return runReset(force)
		},
	}
	resetCmd.Flags().BoolP("force", "f", false, "reset without confirmation")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			allProjects, _ := cmd.Flags().GetBool("all-projects")
			return withApp(func(a *app) error {
				scope := a.listScope(allProjects)
				printStats(os.Stdout, scope, a.store.Stats(scope))
				return nil
			})
		},
	}
	statsCmd.Flags().Bool("all-projects", false, "count tasks of every project")

	root.AddCommand(listCmd, addCmd, editCmd, deleteCmd, toggleCmd, reviveCmd, resetCmd, statsCmd)
}

// withApp opens the workspace, runs fn and closes the store.
func withApp(fn func(a *app) error) error {
	a, err := openApp(writerNotifier{w: os.Stdout})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runList(completed, all, allProjects bool, tag string) error {
	preds, err := tagFilter(tag)
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		preds = append(preds, tasks.InProject(a.listScope(allProjects)))
		switch {
		case all:
			printTasks(os.Stdout, "Tasks", tasks.Filter(a.store.All(), preds...))
		case completed:
			printTasks(os.Stdout, "Completed tasks", tasks.Filter(a.store.All(), append(preds, tasks.IsCompleted)...))
		default:
			printTasks(os.Stdout, "Pending tasks", tasks.Filter(a.store.All(), append(preds, tasks.IsPending)...))
		}
		return nil
	})
}

// tagFilter returns the predicate for a --tag value, or none when it is empty.
func tagFilter(tag string) ([]tasks.Predicate, error) {
	if tag == "" {
		return nil, nil
	}
	t, ok := types.ParseTag(tag)
	if !ok {
		return nil, fmt.Errorf("unknown tag %q (valid: %v)", tag, types.AllTags)
	}
	return []tasks.Predicate{tasks.HasTag(t)}, nil
}

func runReset(force bool) error {
	return withApp(func(a *app) error {
		n := a.store.Count()
		if n == 0 {
			fmt.Println("No tasks to remove")
			return nil
		}

		if !force {
			fmt.Printf("Remove all %d tasks? [y/N]: ", n)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			answer = strings.ToLower(strings.TrimSpace(answer))
			if answer != "y" && answer != "yes" {
				fmt.Println("Cancelled")
				return nil
			}
		}

		if err := a.store.Reset(); err != nil {
			return fmt.Errorf("failed to reset tasks: %w", err)
		}
		fmt.Printf("Removed %d tasks\n", n)
		return nil
	})
}
