// Package config loads stagectl configuration through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete stagectl configuration
type Config struct {
	Project    string           `mapstructure:"project"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Store      StoreConfig      `mapstructure:"store"`
	Ignore     IgnoreConfig     `mapstructure:"ignore"`
	Lock       LockConfig       `mapstructure:"lock"`
	Batch      ValidateConfig   `mapstructure:"validate"`
	Editor     EditorConfig     `mapstructure:"editor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolicyConfig holds the submission admission policy
type PolicyConfig struct {
	// DiffThreshold is the diff magnitude above which the review team is added.
	DiffThreshold int `mapstructure:"diff_threshold"`
	// ReviewTeam is the group asked to review sources. Empty disables it.
	ReviewTeam string `mapstructure:"review_team"`
	// RepoChecker is the user asked to verify the build. Empty disables it.
	RepoChecker string `mapstructure:"repo_checker"`
	// SkipAddReviews suppresses every escalation.
	SkipAddReviews bool `mapstructure:"skip_add_reviews"`
	// IgnoreDevel skips the devel ownership check.
	IgnoreDevel bool `mapstructure:"ignore_devel"`
	// DevelWhitelistFile lists projects allowed to submit without a devel
	// relationship, one per line.
	DevelWhitelistFile string `mapstructure:"devel_whitelist_file"`
	// BootstrapRing is the ring whose packages require a bootstrapped staging.
	BootstrapRing string `mapstructure:"bootstrap_ring"`
}

// ClassifierConfig configures the external diff classifier
type ClassifierConfig struct {
	// Command is the argv prefix; the old and new directories are appended.
	Command []string `mapstructure:"command"`
	// Timeout bounds one classifier run.
	Timeout time.Duration `mapstructure:"timeout"`
	// WorkDir holds per-request scratch checkouts.
	WorkDir string `mapstructure:"work_dir"`
}

// SnapshotsConfig locates package sources
type SnapshotsConfig struct {
	// GitRoot contains one git repository per <project>/<package>.
	GitRoot string `mapstructure:"git_root"`
}

// StoreConfig selects the catalog database
type StoreConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// IgnoreConfig selects where the ignore list is persisted
type IgnoreConfig struct {
	// Backend is "file", "redis" or "database"
	Backend  string `mapstructure:"backend"`
	File     string `mapstructure:"file"`
	RedisURL string `mapstructure:"redis_url"`
}

// LockConfig controls the cross-invocation exclusivity lock
type LockConfig struct {
	// Backend is "file" or "redis"
	Backend  string        `mapstructure:"backend"`
	Dir      string        `mapstructure:"dir"`
	RedisURL string        `mapstructure:"redis_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// TTL is the redis lease; a crashed holder releases after it expires.
	TTL time.Duration `mapstructure:"ttl"`
}

// ValidateConfig controls batch validation
type ValidateConfig struct {
	// Parallelism bounds concurrent validations.
	Parallelism int `mapstructure:"parallelism"`
}

// EditorConfig controls interactive proposal amendment
type EditorConfig struct {
	// Command overrides $EDITOR and $VISUAL.
	Command string `mapstructure:"command"`
	// WaitForWrite waits for the proposal file to change instead of for the
	// editor process, for editors that detach (xdg-open).
	WaitForWrite bool `mapstructure:"wait_for_write"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Backend names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

// Default returns a Config with sensible default values
func Default() *Config {
	data := DataDir()
	return &Config{
		Project: "openSUSE:Factory",
		Policy: PolicyConfig{
			DiffThreshold: 8,
			ReviewTeam:    "opensuse-review-team",
			RepoChecker:   "factory-repo-checker",
			BootstrapRing: "0-Bootstrap",
		},
		Classifier: ClassifierConfig{
			Command: []string{"source-checker.pl"},
			Timeout: 10 * time.Minute,
			WorkDir: filepath.Join(os.TempDir(), "stagectl"),
		},
		Snapshots: SnapshotsConfig{
			GitRoot: filepath.Join(data, "sources"),
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    filepath.Join(data, "catalog.db"),
		},
		Ignore: IgnoreConfig{
			Backend: BackendFile,
			File:    filepath.Join(data, "ignore.yaml"),
		},
		Lock: LockConfig{
			Backend: BackendFile,
			Dir:     filepath.Join(data, "locks"),
			Timeout: 30 * time.Second,
			TTL:     10 * time.Minute,
		},
		Batch: ValidateConfig{
			Parallelism: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        filepath.Join(data, "logs"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("project", defaults.Project)

	viper.SetDefault("policy.diff_threshold", defaults.Policy.DiffThreshold)
	viper.SetDefault("policy.review_team", defaults.Policy.ReviewTeam)
	viper.SetDefault("policy.repo_checker", defaults.Policy.RepoChecker)
	viper.SetDefault("policy.skip_add_reviews", defaults.Policy.SkipAddReviews)
	viper.SetDefault("policy.ignore_devel", defaults.Policy.IgnoreDevel)
	viper.SetDefault("policy.devel_whitelist_file", defaults.Policy.DevelWhitelistFile)
	viper.SetDefault("policy.bootstrap_ring", defaults.Policy.BootstrapRing)

	viper.SetDefault("classifier.command", defaults.Classifier.Command)
	viper.SetDefault("classifier.timeout", defaults.Classifier.Timeout)
	viper.SetDefault("classifier.work_dir", defaults.Classifier.WorkDir)

	viper.SetDefault("snapshots.git_root", defaults.Snapshots.GitRoot)

	viper.SetDefault("store.driver", defaults.Store.Driver)
	viper.SetDefault("store.dsn", defaults.Store.DSN)

	viper.SetDefault("ignore.backend", defaults.Ignore.Backend)
	viper.SetDefault("ignore.file", defaults.Ignore.File)
	viper.SetDefault("ignore.redis_url", defaults.Ignore.RedisURL)

	viper.SetDefault("lock.backend", defaults.Lock.Backend)
	viper.SetDefault("lock.dir", defaults.Lock.Dir)
	viper.SetDefault("lock.redis_url", defaults.Lock.RedisURL)
	viper.SetDefault("lock.timeout", defaults.Lock.Timeout)
	viper.SetDefault("lock.ttl", defaults.Lock.TTL)

	viper.SetDefault("validate.parallelism", defaults.Batch.Parallelism)

	viper.SetDefault("editor.command", defaults.Editor.Command)
	viper.SetDefault("editor.wait_for_write", defaults.Editor.WaitForWrite)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Project = FullProjectName(cfg.Project)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults on error
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// FullProjectName deduces the full project name from a short one:
// "Factory" becomes "openSUSE:Factory" and "SLE-12" becomes "SUSE:SLE-12".
// Unrecognized names are returned unchanged.
func FullProjectName(project string) string {
	switch {
	case project == "":
		return project
	case strings.HasPrefix(project, "openSUSE"), strings.HasPrefix(project, "SUSE"):
		return project
	case strings.Contains(project, "Factory"), strings.Contains(project, "openSUSE"):
		return "openSUSE:" + project
	case strings.Contains(project, "SLE"):
		return "SUSE:" + project
	default:
		return project
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stagectl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stagectl"
	}
	return filepath.Join(home, ".config", "stagectl")
}

// ConfigFile returns the default config file path
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory holding the local catalog, ignore list and locks
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "stagectl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stagectl"
	}
	return filepath.Join(home, ".local", "share", "stagectl")
}
