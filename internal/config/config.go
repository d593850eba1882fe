// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/spetr/doit/pkg/types"
)

// Config represents the complete configuration.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan" yaml:"scan"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ScanConfig controls which files are read and how fast.
type ScanConfig struct {
	AutoScan            bool          `mapstructure:"auto_scan" yaml:"auto_scan"`                       // initial scan on watch/serve, ingest on save
	MaxFileSize         string        `mapstructure:"max_file_size" yaml:"max_file_size"`               // e.g., "1MB"
	SupportedExtensions []string      `mapstructure:"supported_extensions" yaml:"supported_extensions"` // without dot
	Exclude             []string      `mapstructure:"exclude" yaml:"exclude"`                           // custom patterns, * wildcard
	BatchSize           int           `mapstructure:"batch_size" yaml:"batch_size"`                     // files read concurrently
	BatchPause          time.Duration `mapstructure:"batch_pause" yaml:"batch_pause"`                   // pause between batches
}

// ReconcileConfig contains matching and validation policy.
type ReconcileConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	AutoComplete        bool          `mapstructure:"auto_complete" yaml:"auto_complete"` // false = auto-delete
	ValidationInterval  time.Duration `mapstructure:"validation_interval" yaml:"validation_interval"`
	FileCacheTTL        time.Duration `mapstructure:"file_cache_ttl" yaml:"file_cache_ttl"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // jsonl, sqlite
	Project string `mapstructure:"project" yaml:"project"` // empty = workspace directory name
}

// WatchConfig contains file watcher settings.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// ServerConfig contains outer surface settings.
type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			AutoScan:    true,
			MaxFileSize: "1MB",
			SupportedExtensions: []string{
				"js", "ts", "jsx", "tsx", "py", "java", "cs", "cpp", "c", "php",
				"go", "rs", "html", "css", "scss", "sql", "md", "txt", "vue",
				"svelte", "rb", "swift", "kt", "scala", "clj",
			},
			Exclude:    []string{},
			BatchSize:  10,
			BatchPause: 10 * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			SimilarityThreshold: 0.7,
			AutoComplete:        true,
			ValidationInterval:  3 * time.Minute,
			FileCacheTTL:        5 * time.Second,
		},
		Store: StoreConfig{
			Backend: "jsonl",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:7341",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to .doit directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".doit")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// TasksPath returns the path of the task file for the configured backend.
func TasksPath(projectRoot string, cfg *Config) string {
	if cfg.Store.Backend == "sqlite" {
		return filepath.Join(ConfigDir(projectRoot), "tasks.db")
	}
	return filepath.Join(ConfigDir(projectRoot), "tasks.jsonl")
}

// Load loads configuration from file, falling back to defaults.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	// Check if config exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Scan.MaxFileSize == "" {
		cfg.Scan.MaxFileSize = "1MB"
	}
	if len(cfg.Scan.SupportedExtensions) == 0 {
		cfg.Scan.SupportedExtensions = DefaultConfig().Scan.SupportedExtensions
		warnings = append(warnings, "No supported extensions configured, using defaults")
	}
	if cfg.Scan.BatchSize == 0 {
		cfg.Scan.BatchSize = 10
	}
	if cfg.Reconcile.SimilarityThreshold == 0 {
		cfg.Reconcile.SimilarityThreshold = 0.7
	}
	if cfg.Reconcile.ValidationInterval == 0 {
		cfg.Reconcile.ValidationInterval = 3 * time.Minute
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "jsonl"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = "127.0.0.1:7341"
	}

	return cfg, warnings, nil
}

// Save writes configuration to .doit/config.yaml.
func Save(projectRoot string, cfg *Config) error {
	configDir := ConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	path := ConfigPath(projectRoot)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Marshal renders the configuration as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	// Validate scan
	if _, err := ParseSize(cfg.Scan.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("%w: scan.max_file_size: %v", types.ErrInvalidConfig, err))
	}
	if cfg.Scan.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("%w: scan.batch_size must be at least 1, got %d", types.ErrInvalidConfig, cfg.Scan.BatchSize))
	}
	if cfg.Scan.BatchPause < 0 {
		errs = append(errs, fmt.Errorf("%w: scan.batch_pause must not be negative", types.ErrInvalidConfig))
	}
	for _, p := range cfg.Scan.Exclude {
		if _, err := CompileExclude(p); err != nil {
			errs = append(errs, fmt.Errorf("%w: scan.exclude: %v", types.ErrInvalidConfig, err))
		}
	}

	// Validate reconcile
	if t := cfg.Reconcile.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("%w: reconcile.similarity_threshold must be in (0, 1], got %v", types.ErrInvalidConfig, t))
	}
	if cfg.Reconcile.ValidationInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: reconcile.validation_interval must be positive", types.ErrInvalidConfig))
	}

	// Validate store
	validBackends := map[string]bool{
		"jsonl": true, "sqlite": true,
	}
	if !validBackends[cfg.Store.Backend] {
		errs = append(errs, fmt.Errorf("%w: invalid store backend: %s (valid: jsonl, sqlite)", types.ErrInvalidConfig, cfg.Store.Backend))
	}

	// Validate logging
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("%w: invalid logging level: %s", types.ErrInvalidConfig, cfg.Logging.Level))
	}
	validFormats := map[string]bool{
		"text": true, "json": true, "": true,
	}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("%w: invalid logging format: %s (valid: text, json)", types.ErrInvalidConfig, cfg.Logging.Format))
	}

	return errs
}

// ProjectName returns the configured project, or the workspace directory name.
func (c *Config) ProjectName(projectRoot string) string {
	if c.Store.Project != "" {
		return c.Store.Project
	}
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return filepath.Base(projectRoot)
	}
	return filepath.Base(abs)
}

// MaxFileSizeBytes returns scan.max_file_size in bytes, or 0 when unparsable.
func (c *Config) MaxFileSizeBytes() int64 {
	n, err := ParseSize(c.Scan.MaxFileSize)
	if err != nil {
		return 0
	}
	return n
}

// AddExclude appends a custom exclude pattern unless already present.
// It reports whether the pattern was added.
func (c *Config) AddExclude(pattern string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if _, err := CompileExclude(pattern); err != nil {
		return false, err
	}
	if slices.Contains(c.Scan.Exclude, pattern) {
		return false, nil
	}
	c.Scan.Exclude = append(c.Scan.Exclude, pattern)
	return true, nil
}

// CompileExclude turns a custom exclude pattern into a case-insensitive
// regular expression where * matches any run of characters.
func CompileExclude(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: empty pattern", types.ErrInvalidPattern)
	}
	re, err := regexp.Compile("(?i)" + strings.ReplaceAll(pattern, "*", ".*"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", types.ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// ParseSize parses a human-readable size such as "512KB" or "1MB".
func ParseSize(size string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(size))

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid size %q", size)
	}
	return value * multiplier, nil
}
