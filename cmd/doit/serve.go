package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spetr/doit/internal/api"
	"github.com/spetr/doit/internal/mcp"
	"github.com/spetr/doit/internal/reconcile"
	"github.com/spetr/doit/internal/workspace"
)

func addScanCommands(root *cobra.Command) {
	scanCmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Scan the workspace (or one file) for annotations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if len(args) == 1 {
					path, err := filepath.Abs(args[0])
					if err != nil {
						return err
					}
					r, err := a.engine.ScanFile(ctx, a.source.Rel(path))
					if err != nil {
						return err
					}
					printReport(os.Stdout, r)
					return nil
				}

				r, err := a.engine.ScanWorkspace(ctx)
				if err != nil {
					return err
				}
				printReport(os.Stdout, r)
				return nil
			})
		},
	}

	rescanCmd := &cobra.Command{
		Use:   "rescan",
		Short: "Forget what was seen and scan the whole workspace again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				r, err := a.engine.Rescan(ctx)
				if err != nil {
					return err
				}
				printReport(os.Stdout, r)
				return nil
			})
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check tracked tasks against their files now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				r := a.engine.Validate(context.Background())
				printReport(os.Stdout, r)
				return nil
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the workspace and keep tasks in step with annotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(writerNotifier{w: os.Stdout})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Watching %s for changes (press Ctrl+C to stop)\n", a.root)
			return runBackground(ctx, a, nil)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tasks over MCP (stdio) and/or HTTP while watching the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdio, _ := cmd.Flags().GetBool("stdio")
			httpAddr, _ := cmd.Flags().GetString("http")
			return runServe(stdio, httpAddr, cmd.Flags().Changed("http"))
		},
	}
	serveCmd.Flags().Bool("stdio", false, "serve MCP over stdio")
	serveCmd.Flags().String("http", "", "serve the HTTP API on this address (default from config)")

	root.AddCommand(scanCmd, rescanCmd, validateCmd, watchCmd, serveCmd)
}

func runServe(stdio bool, httpAddr string, httpSet bool) error {
	// stdout carries the MCP transport, so summaries go to the log
	var notifier reconcile.Notifier = writerNotifier{w: os.Stdout}
	if stdio {
		notifier = reconcile.SlogNotifier{}
	}

	a, err := openApp(notifier)
	if err != nil {
		return err
	}
	defer a.Close()

	if !stdio || httpSet {
		httpAddr = firstNonEmpty(httpAddr, a.cfg.Server.HTTPAddr)
	} else {
		httpAddr = ""
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var servers []func(ctx context.Context) error

	if stdio {
		srv, err := mcp.New(mcp.Config{Engine: a.engine, Project: a.project, Version: version})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		servers = append(servers, func(ctx context.Context) error {
			slog.Info("MCP server running on stdio")
			return srv.Listen(ctx, os.Stdin, os.Stdout)
		})
	}

	if httpAddr != "" {
		handler := api.NewAppHandler(api.AppDeps{Engine: a.engine, Project: a.project})
		servers = append(servers, func(ctx context.Context) error {
			return api.Serve(ctx, httpAddr, handler)
		})
	}

	return runBackground(ctx, a, servers)
}

// runBackground runs the watcher, periodic validation and any extra servers
// until ctx is cancelled or one of them fails.
func runBackground(ctx context.Context, a *app, servers []func(ctx context.Context) error) error {
	watcher, err := workspace.NewWatcher(workspace.WatcherConfig{
		Source:   a.source,
		Filter:   a.filter,
		OnSave:   a.engine.HandleSave,
		OnDelete: func(ctx context.Context, path string) { a.engine.HandleDelete(ctx, path) },

		DebounceTime: a.cfg.Watch.Debounce,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	a.store.Subscribe(changeLogger(slog.Default()))

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Scan.AutoScan {
		g.Go(func() error {
			if _, err := a.engine.ScanWorkspace(ctx); err != nil && !isShutdown(err) {
				slog.Warn("initial scan failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error { return ignoreShutdown(watcher.Watch(ctx)) })
	g.Go(func() error { return ignoreShutdown(a.engine.Run(ctx)) })
	for _, serve := range servers {
		g.Go(func() error {
			if err := serve(ctx); err != nil {
				return ignoreShutdown(err)
			}
			// A server that returns (stdin closed) ends the whole run
			return errServerStopped
		})
	}

	err = g.Wait()
	slog.Info("stopped")
	if errors.Is(err, errServerStopped) {
		return nil
	}
	return err
}

var errServerStopped = errors.New("server stopped")

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func ignoreShutdown(err error) error {
	if err == nil || isShutdown(err) {
		return nil
	}
	return err
}
