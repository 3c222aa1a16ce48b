package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/config"
	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/internal/logging"
	"github.com/KostasZigo/gitree/internal/treestore"
)

// rootCmd defines the base command for the gitree CLI.
// All subcommands register under this root.
var rootCmd = &cobra.Command{
	Use:   "gitree",
	Short: "A versioned tree store on top of a git repository",
	Long: `gitree keeps a hierarchy of directories and files inside a git repository.
Every change is an atomic, conflict checked commit on the tracked branch, and
the branch can be kept in step with a remote by the sync command.`,
}

var (
	repoFlag      string
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
)

func init() {
	addPersistentFlags(rootCmd)
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository path (default: nearest directory containing .git)")
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: <repo>/"+constants.ConfigFileName+" when present)")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "log format: console or json")
}

// Exit codes. User-correctable failures (conflicts, missing or existing
// entries, invalid input) exit with ExitUserError.
const (
	ExitFailure   = 1
	ExitUserError = 2
)

// Execute runs the root command and handles exit codes.
// Called from main.go to start CLI execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind.UserCorrectable() {
		return ExitUserError
	}
	return ExitFailure
}

// loadConfig resolves the configuration from flags, an optional config
// file and defaults, in that order of precedence.
func loadConfig() (*config.Config, error) {
	repoPath := repoFlag
	if repoPath == "" && configFlag == "" {
		root, err := findRepoRoot()
		if err != nil {
			return nil, err
		}
		repoPath = root
	}

	configPath := configFlag
	if configPath == "" {
		candidate := filepath.Join(repoPath, constants.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to check config file: %w", err)
		}
	}

	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default(repoPath)
	}

	if repoFlag != "" {
		cfg.Repo.Path = repoFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Log.Format = logFormatFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the tree store selected by the persistent flags.
func openStore() (*treestore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	store, err := treestore.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", cfg.Repo.Path, err)
	}
	return store, nil
}

// findRepoRoot locates .git directory by walking up directory tree.
func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		gitPath := filepath.Join(dir, constants.GitDir)
		if info, err := os.Stat(gitPath); err == nil && info.IsDir() {
			return dir, nil
		}

		// Dir returns all but the last element of path
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s directory not found", constants.GitDir)
		}
		dir = parent
	}
}

// exactArgs validates command receives exactly n positional arguments.
// enables usage printing in case of error
func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			cmd.SilenceUsage = false
			return fmt.Errorf("%s command requires exactly %d argument(s) (%s), received %d", cmd.Name(), n, what, len(args))
		}
		return nil
	}
}

// maximumArgs validates command receives at most n positional arguments.
// Returns error with usage help if argument limit exceeded.
func maximumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			cmd.SilenceUsage = false
			return fmt.Errorf("%s command accepts at most %d arg(s), received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}
