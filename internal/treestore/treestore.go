// Package treestore wires the object resolver, the command serializer, the
// journal and the sync reconciler into one handle.
package treestore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/config"
	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/internal/gitcli"
	"github.com/KostasZigo/gitree/internal/journal"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/reconciler"
	"github.com/KostasZigo/gitree/internal/repository"
	"github.com/KostasZigo/gitree/internal/resolver"
	"github.com/KostasZigo/gitree/internal/serializer"
	"github.com/KostasZigo/gitree/utils"
)

type Store struct {
	repo       *repository.Repository
	resolver   *resolver.Resolver
	serializer *serializer.Serializer
	journal    *journal.Journal
	reconciler *reconciler.Reconciler
	logger     *zap.Logger
}

// cachedObjects reads trees through the resolver cache and writes to the
// loose object store.
type cachedObjects struct {
	*resolver.Resolver
	store *objects.ObjectStore
}

func (c cachedObjects) Store(obj objects.Object) error {
	return c.store.Store(obj)
}

// Open attaches to the repository described by cfg.
func Open(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := repository.Open(cfg.Repo.Path, logger.Named("repository"))
	if err != nil {
		return nil, err
	}
	if repo.Branch() != cfg.Repo.Branch {
		logger.Warn("HEAD names a different branch than configured, following HEAD",
			zap.String("head", repo.Branch()),
			zap.String("configured", cfg.Repo.Branch))
	}

	res, err := resolver.New(repo.Objects(), cfg.Cache.Size, logger.Named("resolver"))
	if err != nil {
		return nil, err
	}

	s := &Store{
		repo:     repo,
		resolver: res,
		logger:   logger,
	}

	opts := serializer.Options{
		AuthorName:  cfg.Author.Name,
		AuthorEmail: cfg.Author.Email,
		Objects:     cachedObjects{Resolver: res, store: repo.Objects()},
	}

	if cfg.Journal.Enabled {
		if s.journal, err = journal.Open(cfg.JournalPath(), logger.Named("journal")); err != nil {
			return nil, err
		}
		opts.Recorder = s.journal
	}

	var git *gitcli.ShellClient
	if cfg.Repo.Worktree || cfg.Sync.Enabled {
		git = gitcli.NewShellClient(repo.Root(), cfg.Sync.Remote, repo.Branch(),
			cfg.Author.Name, cfg.Author.Email, logger.Named("git"))
	}
	if cfg.Repo.Worktree {
		opts.Worktree = git
	}

	if s.serializer, err = serializer.New(repo, logger.Named("serializer"), opts); err != nil {
		s.closeJournal()
		return nil, err
	}

	if cfg.Repo.Worktree {
		s.alignWorktree(git)
	}

	if cfg.Sync.Enabled {
		syncOpts := reconciler.Options{
			Interval:       cfg.Sync.Interval,
			CommandTimeout: cfg.Sync.CommandTimeout,
			RestartDelay:   cfg.Sync.RestartDelay,
		}
		if cfg.Sync.Watch {
			syncOpts.WatchDir = repo.Root()
		}
		s.reconciler = reconciler.New(git, s.serializer, logger.Named("reconciler"), syncOpts)
	}

	logger.Info("tree store opened",
		zap.String("path", repo.Root()),
		zap.String("branch", repo.Branch()),
		zap.String("commit", s.Root().Commit),
		zap.Bool("journal", s.journal != nil),
		zap.Bool("sync", s.reconciler != nil))
	return s, nil
}

// alignWorktree brings a working tree that lags the branch tip up to date
// before anything can auto-save it. Failures are logged; every sync cycle
// retries before its auto save.
func (s *Store) alignWorktree(git *gitcli.ShellClient) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.WorktreeAlignTimeout)
	defer cancel()
	if err := s.serializer.Exclusive(ctx, "align worktree", git.AlignWorktree); err != nil {
		s.logger.Warn("failed to align working tree with branch tip", zap.Error(err))
	}
}

func (s *Store) Repository() *repository.Repository {
	return s.repo
}

// Root returns the current version.
func (s *Store) Root() serializer.Version {
	return s.serializer.Pointer().Load()
}

// Resolve returns the blob or tree stored under id.
func (s *Store) Resolve(id string) (*resolver.Object, error) {
	return s.resolver.Resolve(id)
}

// ResolvePath resolves path against the current root.
func (s *Store) ResolvePath(path []string) (*resolver.Object, error) {
	return s.resolver.ResolvePath(s.Root().Tree, path)
}

// ListPath returns the entries of the directory at path in the current root.
func (s *Store) ListPath(path []string) ([]resolver.Entry, error) {
	obj, err := s.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if !obj.IsDir() {
		return nil, apperr.NotADirectory(utils.JoinPath(path))
	}
	return obj.Entries, nil
}

// Mutate applies cmd and returns the version it committed.
func (s *Store) Mutate(ctx context.Context, cmd serializer.Command) (serializer.Version, error) {
	return s.serializer.Submit(ctx, cmd)
}

// Sync runs a single reconciliation cycle.
func (s *Store) Sync(ctx context.Context) error {
	if s.reconciler == nil {
		return apperr.Invalid("", "sync is not enabled")
	}
	return s.reconciler.Cycle(ctx)
}

// RunSync runs the supervised reconciler until ctx is done.
func (s *Store) RunSync(ctx context.Context) error {
	if s.reconciler == nil {
		return apperr.Invalid("", "sync is not enabled")
	}
	return s.reconciler.Supervise(ctx)
}

// Journal returns up to limit recent journal entries, newest first.
func (s *Store) Journal(limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, apperr.Invalid("", "journal is not enabled")
	}
	return s.journal.Recent(limit)
}

// Close stops the serializer and closes the journal.
func (s *Store) Close() error {
	s.serializer.Close()
	return s.closeJournal()
}

func (s *Store) closeJournal() error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
