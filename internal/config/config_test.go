package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spetr/doit/pkg/types"
)

func TestValidateStoreBackend(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"jsonl", false},
		{"sqlite", false},
		{"", true},
		{"postgres", true},
		{"JSONL", true}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Store.Backend = tt.backend
			errs := Validate(cfg)

			if hasErr := len(errs) > 0; hasErr != tt.wantErr {
				t.Errorf("Validate(Store.Backend=%q) hasErr=%v, want %v (%v)", tt.backend, hasErr, tt.wantErr, errs)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	if errs := Validate(DefaultConfig()); len(errs) != 0 {
		t.Errorf("DefaultConfig() is invalid: %v", errs)
	}
}

func TestValidateReportsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reconcile.SimilarityThreshold = 1.5
	cfg.Scan.BatchSize = 0
	cfg.Scan.MaxFileSize = "lots"
	cfg.Scan.Exclude = []string{"(unclosed"}

	errs := Validate(cfg)
	if len(errs) != 4 {
		t.Fatalf("Validate returned %d errors, want 4: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, types.ErrInvalidConfig) {
			t.Errorf("error %v does not wrap ErrInvalidConfig", err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Reconcile.SimilarityThreshold != 0.7 {
		t.Errorf("SimilarityThreshold = %v, want 0.7", cfg.Reconcile.SimilarityThreshold)
	}
	if !cfg.Reconcile.AutoComplete {
		t.Error("AutoComplete should default to true")
	}
	if cfg.Reconcile.ValidationInterval != 3*time.Minute {
		t.Errorf("ValidationInterval = %v, want 3m", cfg.Reconcile.ValidationInterval)
	}
	if cfg.Scan.BatchSize != 10 || cfg.Scan.BatchPause != 10*time.Millisecond {
		t.Errorf("batching = %d/%v, want 10/10ms", cfg.Scan.BatchSize, cfg.Scan.BatchPause)
	}
	if cfg.MaxFileSizeBytes() != 1024*1024 {
		t.Errorf("MaxFileSizeBytes = %d, want 1MiB", cfg.MaxFileSizeBytes())
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning for missing config file")
	}
	if cfg.Store.Backend != "jsonl" {
		t.Errorf("Store.Backend = %q, want jsonl", cfg.Store.Backend)
	}
}

func TestLoadPartialFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(ConfigDir(dir), 0755); err != nil {
		t.Fatal(err)
	}
	content := `reconcile:
  auto_complete: false
  validation_interval: 90s
store:
  backend: sqlite
`
	if err := os.WriteFile(ConfigPath(dir), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Reconcile.AutoComplete {
		t.Error("AutoComplete should be false from file")
	}
	if cfg.Reconcile.ValidationInterval != 90*time.Second {
		t.Errorf("ValidationInterval = %v, want 90s", cfg.Reconcile.ValidationInterval)
	}
	if cfg.Reconcile.SimilarityThreshold != 0.7 {
		t.Errorf("SimilarityThreshold = %v, want default 0.7", cfg.Reconcile.SimilarityThreshold)
	}
	if got := TasksPath(dir, cfg); got != filepath.Join(dir, ".doit", "tasks.db") {
		t.Errorf("TasksPath = %q", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Store.Project = "alpha"
	cfg.Scan.Exclude = []string{"*.gen.go"}
	cfg.Watch.Debounce = 250 * time.Millisecond

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if loaded.Store.Project != "alpha" {
		t.Errorf("Project = %q, want alpha", loaded.Store.Project)
	}
	if len(loaded.Scan.Exclude) != 1 || loaded.Scan.Exclude[0] != "*.gen.go" {
		t.Errorf("Exclude = %v", loaded.Scan.Exclude)
	}
	if loaded.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", loaded.Watch.Debounce)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1MB", 1024 * 1024, false},
		{"512kb", 512 * 1024, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{"100B", 100, false},
		{"100", 100, false},
		{"", 0, true},
		{"MB", 0, true},
		{"-1MB", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAddExclude(t *testing.T) {
	cfg := DefaultConfig()

	added, err := cfg.AddExclude("*.pb.go")
	if err != nil || !added {
		t.Fatalf("AddExclude = %v, %v; want true, nil", added, err)
	}
	added, err = cfg.AddExclude("*.pb.go")
	if err != nil || added {
		t.Errorf("second AddExclude = %v, %v; want false, nil", added, err)
	}

	if _, err := cfg.AddExclude("[bad"); !errors.Is(err, types.ErrInvalidPattern) {
		t.Errorf("AddExclude([bad) error = %v, want ErrInvalidPattern", err)
	}
	if len(cfg.Scan.Exclude) != 1 {
		t.Errorf("Exclude = %v, want one entry", cfg.Scan.Exclude)
	}
}

func TestCompileExclude(t *testing.T) {
	re, err := CompileExclude("*.Generated.*")
	if err != nil {
		t.Fatal(err)
	}
	if !re.MatchString("src/api.generated.ts") {
		t.Error("pattern should match case-insensitively")
	}
	if re.MatchString("src/api.ts") {
		t.Error("pattern should not match unrelated file")
	}
}

func TestProjectName(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ProjectName("/work/my-app"); got != "my-app" {
		t.Errorf("ProjectName = %q, want my-app", got)
	}
	cfg.Store.Project = "custom"
	if got := cfg.ProjectName("/work/my-app"); got != "custom" {
		t.Errorf("ProjectName = %q, want custom", got)
	}
}
