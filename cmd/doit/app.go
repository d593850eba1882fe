package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spetr/doit/internal/config"
	"github.com/spetr/doit/internal/reconcile"
	"github.com/spetr/doit/internal/scancache"
	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/internal/workspace"
)

// app bundles everything a command needs for one workspace.
type app struct {
	root      string
	cfg       *config.Config
	filter    *workspace.Filter
	source    *workspace.FileSource
	persister tasks.Persister
	store     *tasks.Store
	engine    *reconcile.Engine
	project   string
}

func workspaceRoot() (string, error) {
	root, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return root, nil
}

// loadConfig loads the workspace configuration and applies its logging
// settings unless overridden on the command line.
func loadConfig() (string, *config.Config, error) {
	root, err := workspaceRoot()
	if err != nil {
		return "", nil, err
	}

	cfg, warnings, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	setupLogging(firstNonEmpty(logLevel, cfg.Logging.Level), firstNonEmpty(logFormat, cfg.Logging.Format))
	for _, w := range warnings {
		slog.Debug(w)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		return "", nil, errors.Join(errs...)
	}
	return root, cfg, nil
}

// openApp wires the workspace, the task store and the engine.
func openApp(notifier reconcile.Notifier) (*app, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	filter := workspace.FromConfig(cfg)
	source, err := workspace.NewFileSource(root, filter)
	if err != nil {
		return nil, err
	}

	persister, err := tasks.NewPersister(cfg.Store.Backend, config.TasksPath(root, cfg))
	if err != nil {
		return nil, err
	}
	store, err := tasks.Open(persister)
	if err != nil {
		closePersister(persister)
		return nil, err
	}

	project := cfg.ProjectName(root)
	engine := reconcile.New(store, source, source, scancache.New(cfg.Reconcile.FileCacheTTL), notifier, reconcile.Options{
		SimilarityThreshold: cfg.Reconcile.SimilarityThreshold,
		AutoComplete:        cfg.Reconcile.AutoComplete,
		ValidationInterval:  cfg.Reconcile.ValidationInterval,
		BatchSize:           cfg.Scan.BatchSize,
		BatchPause:          cfg.Scan.BatchPause,
		MaxFileSize:         cfg.MaxFileSizeBytes(),
		AutoScan:            cfg.Scan.AutoScan,
		Project:             project,
		Normalize:           source.Rel,
		Include:             source.Eligible,
	})

	slog.Debug("workspace opened", "root", root, "project", project, "backend", cfg.Store.Backend, "tasks", store.Count())

	return &app{
		root:      root,
		cfg:       cfg,
		filter:    filter,
		source:    source,
		persister: persister,
		store:     store,
		engine:    engine,
		project:   project,
	}, nil
}

func (a *app) Close() {
	closePersister(a.persister)
}

func closePersister(p tasks.Persister) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close task store", "error", err)
		}
	}
}

// listScope returns the project filter for list-style commands.
func (a *app) listScope(allProjects bool) string {
	if allProjects {
		return ""
	}
	return a.project
}
