package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/KostasZigo/gitree/internal/constants"
)

// Config represents the complete gitree configuration
type Config struct {
	Repo    RepoConfig    `yaml:"repo"`
	Author  AuthorConfig  `yaml:"author"`
	Sync    SyncConfig    `yaml:"sync"`
	Journal JournalConfig `yaml:"journal"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

// RepoConfig locates the repository
type RepoConfig struct {
	Path   string `yaml:"path"`
	Branch string `yaml:"branch"`
	// Worktree keeps a checked out working tree in step with every commit.
	Worktree bool `yaml:"worktree"`
}

// AuthorConfig signs the commits produced by mutations
type AuthorConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// SyncConfig configures the reconciler
type SyncConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Remote         string        `yaml:"remote"`
	Interval       time.Duration `yaml:"interval"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	Watch          bool          `yaml:"watch"`
}

// JournalConfig configures the operation journal
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig sizes the resolver cache
type CacheConfig struct {
	Size int `yaml:"size"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default(repoPath string) *Config {
	cfg := &Config{Repo: RepoConfig{Path: repoPath}}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()

	// The repo path defaults to, and is resolved against, the directory
	// holding the config file.
	if cfg.Repo.Path == "" {
		cfg.Repo.Path = filepath.Dir(path)
	} else if !filepath.IsAbs(cfg.Repo.Path) {
		cfg.Repo.Path = filepath.Join(filepath.Dir(path), cfg.Repo.Path)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Repo.Path = os.ExpandEnv(c.Repo.Path)
	c.Repo.Branch = os.ExpandEnv(c.Repo.Branch)
	c.Author.Name = os.ExpandEnv(c.Author.Name)
	c.Author.Email = os.ExpandEnv(c.Author.Email)
	c.Sync.Remote = os.ExpandEnv(c.Sync.Remote)
	c.Journal.Path = os.ExpandEnv(c.Journal.Path)
	c.Log.Level = os.ExpandEnv(c.Log.Level)
	c.Log.Format = os.ExpandEnv(c.Log.Format)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Path == "" {
		c.Repo.Path = "."
	}
	if c.Repo.Branch == "" {
		c.Repo.Branch = constants.DefaultBranch
	}
	if c.Author.Name == "" {
		c.Author.Name = constants.DefaultAuthorName
	}
	if c.Author.Email == "" {
		c.Author.Email = constants.DefaultAuthorEmail
	}
	if c.Sync.Remote == "" {
		c.Sync.Remote = constants.DefaultRemote
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = constants.SyncInterval
	}
	if c.Sync.CommandTimeout == 0 {
		c.Sync.CommandTimeout = constants.SyncCommandTimeout
	}
	if c.Sync.RestartDelay == 0 {
		c.Sync.RestartDelay = constants.SyncRestartDelay
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = constants.ResolverCacheSize
	}
	if c.Log.Level == "" {
		c.Log.Level = constants.DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = constants.DefaultLogFormat
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path is required")
	}
	if c.Sync.Enabled && !c.Repo.Worktree {
		return fmt.Errorf("sync.enabled requires repo.worktree, the reconciler works on the checked out tree")
	}
	if c.Sync.Interval < 0 || c.Sync.CommandTimeout < 0 || c.Sync.RestartDelay < 0 {
		return fmt.Errorf("sync durations must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative: %d", c.Cache.Size)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	switch c.Log.Format {
	case "json", "console":
		// valid
	default:
		return fmt.Errorf("invalid log.format: %s (must be json or console)", c.Log.Format)
	}

	return nil
}

// JournalPath returns where the journal is stored.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Repo.Path, constants.GitDir, constants.JournalDir)
}
