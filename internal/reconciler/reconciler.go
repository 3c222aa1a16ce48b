// Package reconciler keeps the local branch in step with its remote replica.
//
// A cycle first brings a lagging working tree up to the branch tip, then
// commits stray working tree edits, fetches, and then tries to make
// the local and remote tips equal: first by merging, then by rebasing and
// force pushing. A cycle that cannot converge returns SyncUnrecoverable,
// which stops Run; Supervise restarts it after a delay.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/constants"
)

// Git is the set of git operations a cycle needs. gitcli.ShellClient
// implements it.
type Git interface {
	AlignWorktree(ctx context.Context) error
	IsDirty(ctx context.Context) (bool, error)
	CommitAll(ctx context.Context, message string) error
	Fetch(ctx context.Context) error
	LocalTip(ctx context.Context) (string, error)
	RemoteTip(ctx context.Context) (string, error)
	Merge(ctx context.Context) error
	MergeAbort(ctx context.Context) error
	Rebase(ctx context.Context) error
	RebaseAbort(ctx context.Context) error
	ForcePush(ctx context.Context) error
}

// Executor runs a cycle with exclusive access to the repository.
// serializer.Serializer implements it.
type Executor interface {
	Exclusive(ctx context.Context, name string, task func(ctx context.Context) error) error
}

type Options struct {
	Interval        time.Duration
	CommandTimeout  time.Duration
	RestartDelay    time.Duration
	AutoSaveMessage string
	// WatchDir, when set, is watched for changes that trigger an early cycle.
	WatchDir string
}

type Reconciler struct {
	git      Git
	executor Executor
	opts     Options
	logger   *zap.Logger
	trigger  chan struct{}

	cycles   atomic.Int64
	restarts atomic.Int64
}

func New(git Git, executor Executor, logger *zap.Logger, opts Options) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = constants.SyncInterval
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = constants.SyncCommandTimeout
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = constants.SyncRestartDelay
	}
	if opts.AutoSaveMessage == "" {
		opts.AutoSaveMessage = constants.AutoSaveMessage
	}
	return &Reconciler{
		git:      git,
		executor: executor,
		opts:     opts,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a cycle before the next tick. Requests made while one
// is already pending are coalesced.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Cycles returns the number of cycles started.
func (r *Reconciler) Cycles() int64 {
	return r.cycles.Load()
}

// Restarts returns how many times Supervise restarted Run.
func (r *Reconciler) Restarts() int64 {
	return r.restarts.Load()
}

// Cycle runs one reconciliation, through the executor when there is one.
func (r *Reconciler) Cycle(ctx context.Context) error {
	r.cycles.Add(1)
	if r.executor == nil {
		return r.cycle(ctx)
	}
	return r.executor.Exclusive(ctx, "sync", r.cycle)
}

func (r *Reconciler) cycle(ctx context.Context) error {
	start := time.Now()

	// A working tree left behind the tip must not be auto-saved as is, or
	// the commits it lags would be reverted.
	if err := r.step(ctx, "align worktree", r.git.AlignWorktree); err != nil {
		return err
	}

	dirty, err := r.isDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		if err := r.step(ctx, "commit", func(ctx context.Context) error {
			return r.git.CommitAll(ctx, r.opts.AutoSaveMessage)
		}); err != nil {
			return err
		}
		r.logger.Info("committed local changes", zap.String("message", r.opts.AutoSaveMessage))
	}

	if err := r.step(ctx, "fetch", r.git.Fetch); err != nil {
		r.logger.Warn("fetch failed, continuing with stale remote tip", zap.Error(err))
	}

	if r.synced(ctx) {
		r.logger.Debug("already in sync", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	if err := r.step(ctx, "merge", r.git.Merge); err != nil {
		r.logger.Info("merge failed, aborting", zap.Error(err))
		r.abort(ctx, "merge abort", r.git.MergeAbort)
	}
	if r.synced(ctx) {
		r.logger.Info("synced by merge", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	if err := r.step(ctx, "rebase", r.git.Rebase); err != nil {
		r.logger.Info("rebase failed, aborting", zap.Error(err))
		r.abort(ctx, "rebase abort", r.git.RebaseAbort)
	}
	pushErr := r.step(ctx, "push", r.git.ForcePush)
	if pushErr != nil {
		r.logger.Warn("force push failed", zap.Error(pushErr))
	}
	if r.synced(ctx) {
		r.logger.Info("synced by force push", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	if pushErr != nil {
		return apperr.SyncUnrecoverable("local and remote still diverge after merge, rebase and push: %v", pushErr)
	}
	return apperr.SyncUnrecoverable("local and remote still diverge after merge, rebase and push")
}

func (r *Reconciler) isDirty(ctx context.Context) (bool, error) {
	var dirty bool
	err := r.step(ctx, "status", func(ctx context.Context) error {
		var err error
		dirty, err = r.git.IsDirty(ctx)
		return err
	})
	return dirty, err
}

// synced compares the local and remote tips. An unreadable tip counts as
// empty, so two unborn branches are in sync.
func (r *Reconciler) synced(ctx context.Context) bool {
	local := r.tip(ctx, "local tip", r.git.LocalTip)
	remote := r.tip(ctx, "remote tip", r.git.RemoteTip)
	return local == remote
}

func (r *Reconciler) tip(ctx context.Context, name string, read func(context.Context) (string, error)) string {
	var tip string
	err := r.step(ctx, name, func(ctx context.Context) error {
		var err error
		tip, err = read(ctx)
		return err
	})
	if err != nil {
		r.logger.Debug("tip unavailable", zap.String("ref", name), zap.Error(err))
		return ""
	}
	return tip
}

func (r *Reconciler) abort(ctx context.Context, name string, fn func(context.Context) error) {
	if err := r.step(ctx, name, fn); err != nil {
		r.logger.Warn("abort failed", zap.String("step", name), zap.Error(err))
	}
}

// step runs fn with the per-command timeout. A timeout is reported as the
// step's failure.
func (r *Reconciler) step(ctx context.Context, name string, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.opts.CommandTimeout)
	defer cancel()

	if err := fn(stepCtx); err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s timed out after %s: %w", name, r.opts.CommandTimeout, err)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Run executes cycles every Interval, or sooner when triggered, until ctx
// is done or a cycle fails unrecoverably.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.opts.WatchDir != "" {
		stop, err := r.watch(ctx, r.opts.WatchDir)
		if err != nil {
			r.logger.Warn("file watching disabled", zap.String("dir", r.opts.WatchDir), zap.Error(err))
		} else {
			defer stop()
		}
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		if err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, apperr.ErrSyncUnrecoverable) {
				return err
			}
			r.logger.Warn("sync cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.trigger:
		}
	}
}

// Supervise keeps Run going until ctx is done, restarting it RestartDelay
// after it stops.
func (r *Reconciler) Supervise(ctx context.Context) error {
	for {
		err := r.runProtected(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("reconciler stopped, scheduling restart",
			zap.Duration("delay", r.opts.RestartDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.RestartDelay):
		}
		r.restarts.Add(1)
	}
}

func (r *Reconciler) runProtected(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reconciler panic: %v", p)
		}
	}()
	return r.Run(ctx)
}
