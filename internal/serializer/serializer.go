// Package serializer applies namespace mutations one at a time.
//
// A single goroutine owns the repository handle. Requests are queued in
// arrival order; each one computes a new root against the current version,
// commits it, moves the branch ref with a compare-and-swap and only then
// publishes the new Version.
package serializer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/repository"
)

// ErrClosed is returned by Submit and Exclusive after Close.
var ErrClosed = errors.New("serializer closed")

// Record describes one processed request.
type Record struct {
	RequestID string    `json:"request_id"`
	Kind      Kind      `json:"kind"`
	Target    string    `json:"target"`
	Before    Version   `json:"before"`
	After     Version   `json:"after"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Recorder receives a Record for every mutation request, successful or not.
type Recorder interface {
	Record(rec Record) error
}

// WorktreeUpdater brings a checked out working tree from one root tree to
// another after a commit.
type WorktreeUpdater interface {
	CheckoutTree(ctx context.Context, fromTree, toTree string) error
}

type Options struct {
	AuthorName  string
	AuthorEmail string
	// Now stamps commits. Defaults to time.Now.
	Now      func() time.Time
	Recorder Recorder
	Worktree WorktreeUpdater
	// Objects is where mutations read trees from and flush objects to.
	// Defaults to the repository's object store.
	Objects objects.ReadWriter
}

type request struct {
	ctx   context.Context
	id    string
	cmd   Command
	reply chan response
}

type response struct {
	version Version
	err     error
}

type Serializer struct {
	repo     *repository.Repository
	pointer  *VersionPointer
	opts     Options
	logger   *zap.Logger
	requests chan *request
	quit     chan struct{}
	done     chan struct{}

	closeOnce sync.Once
}

// New loads the branch tip into a fresh VersionPointer and starts the
// request loop.
func New(repo *repository.Repository, logger *zap.Logger, opts Options) (*Serializer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AuthorName == "" {
		opts.AuthorName = constants.DefaultAuthorName
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = constants.DefaultAuthorEmail
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Objects == nil {
		opts.Objects = repo.Objects()
	}

	s := &Serializer{
		repo:     repo,
		pointer:  &VersionPointer{},
		opts:     opts,
		logger:   logger,
		requests: make(chan *request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	go s.loop()
	return s, nil
}

// Pointer returns the version pointer readers consult.
func (s *Serializer) Pointer() *VersionPointer {
	return s.pointer
}

// Submit queues cmd and waits for its outcome. Cancelling ctx abandons the
// wait only; an accepted command still runs to completion.
func (s *Serializer) Submit(ctx context.Context, cmd Command) (Version, error) {
	if cmd == nil {
		return Version{}, apperr.Invalid("", "nil command")
	}
	if _, ok := cmd.(exclusive); ok {
		return Version{}, apperr.Invalid(cmd.Target(), "exclusive tasks must go through Exclusive")
	}
	return s.send(ctx, cmd)
}

// Exclusive runs task on the serializer goroutine, so no mutation can
// interleave with it. The version pointer is reloaded from the branch ref
// once task returns.
func (s *Serializer) Exclusive(ctx context.Context, name string, task func(ctx context.Context) error) error {
	_, err := s.send(ctx, exclusive{name: name, task: task})
	return err
}

func (s *Serializer) send(ctx context.Context, cmd Command) (Version, error) {
	req := &request{
		ctx:   ctx,
		id:    uuid.NewString(),
		cmd:   cmd,
		reply: make(chan response, 1),
	}

	select {
	case s.requests <- req:
	case <-s.quit:
		return Version{}, ErrClosed
	case <-ctx.Done():
		return Version{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.version, resp.err
	case <-ctx.Done():
		return Version{}, ctx.Err()
	}
}

// Close stops accepting requests and waits for the one in flight.
func (s *Serializer) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Serializer) loop() {
	defer close(s.done)
	for {
		select {
		case req := <-s.requests:
			s.handle(req)
		case <-s.quit:
			return
		}
	}
}

func (s *Serializer) handle(req *request) {
	logger := s.logger.With(
		zap.String("request_id", req.id),
		zap.String("kind", string(req.cmd.Kind())),
		zap.String("target", req.cmd.Target()))

	if task, ok := req.cmd.(exclusive); ok {
		req.reply <- response{err: s.runExclusive(req.ctx, task, logger)}
		return
	}

	before := s.pointer.Load()
	after, err := s.mutate(req.cmd)
	if err != nil {
		logger.Info("mutation rejected", zap.String("error_kind", string(apperr.KindOf(err))), zap.Error(err))
	} else {
		logger.Info("mutation committed", zap.String("commit", after.Commit), zap.String("tree", after.Tree))
		s.updateWorktree(req.ctx, before, after, logger)
	}
	s.record(req, before, after, err, logger)
	req.reply <- response{version: after, err: err}
}

func (s *Serializer) mutate(cmd Command) (Version, error) {
	before := s.pointer.Load()
	staging := objects.NewStaging(s.opts.Objects)
	defer staging.Discard()

	newRoot, err := cmd.apply(staging, before.Tree)
	if err != nil {
		return before, apperr.WithOp(string(cmd.Kind()), err)
	}

	author := objects.Author{
		Name:      s.opts.AuthorName,
		Email:     s.opts.AuthorEmail,
		Timestamp: s.opts.Now(),
	}
	commit, err := objects.NewCommit(newRoot, before.Commit, cmd.Message(), author)
	if err != nil {
		return before, apperr.Internal("create commit", err)
	}
	if err := staging.Store(commit); err != nil {
		return before, apperr.Internal("create commit", err)
	}
	if err := staging.Flush(); err != nil {
		return before, apperr.Internal("write objects", err)
	}

	if err := s.repo.UpdateRef(s.repo.BranchRef(), before.Commit, commit.Hash()); err != nil {
		if errors.Is(err, repository.ErrRefMoved) || errors.Is(err, repository.ErrRefLocked) {
			// Someone outside the serializer moved the branch.
			if reloadErr := s.reload(); reloadErr != nil {
				s.logger.Error("failed to reload version after ref conflict", zap.Error(reloadErr))
			}
			return before, &apperr.Error{
				Kind:    apperr.KindConflict,
				Op:      "update ref",
				Path:    s.repo.BranchRef(),
				Message: "branch moved during mutation",
				Err:     err,
			}
		}
		return before, apperr.Internal("update ref", err)
	}

	after := Version{Commit: commit.Hash(), Tree: newRoot}
	s.pointer.store(after)
	return after, nil
}

func (s *Serializer) runExclusive(ctx context.Context, task exclusive, logger *zap.Logger) error {
	start := time.Now()
	err := task.task(ctx)
	if reloadErr := s.reload(); reloadErr != nil {
		logger.Error("failed to reload version", zap.Error(reloadErr))
		if err == nil {
			err = reloadErr
		}
	}
	logger.Debug("exclusive task finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("commit", s.pointer.Load().Commit),
		zap.Error(err))
	return err
}

func (s *Serializer) reload() error {
	commit, tree, err := s.repo.Tip()
	if err != nil {
		return apperr.Internal("load tip", err)
	}
	s.pointer.store(Version{Commit: commit, Tree: tree})
	return nil
}

func (s *Serializer) updateWorktree(ctx context.Context, before, after Version, logger *zap.Logger) {
	if s.opts.Worktree == nil {
		return
	}
	// The commit is already published, so a failed checkout is only logged.
	if err := s.opts.Worktree.CheckoutTree(context.WithoutCancel(ctx), before.Tree, after.Tree); err != nil {
		logger.Warn("failed to update working tree", zap.Error(err))
	}
}

func (s *Serializer) record(req *request, before, after Version, err error, logger *zap.Logger) {
	if s.opts.Recorder == nil {
		return
	}
	rec := Record{
		RequestID: req.id,
		Kind:      req.cmd.Kind(),
		Target:    req.cmd.Target(),
		Before:    before,
		After:     after,
		Time:      s.opts.Now(),
	}
	if err != nil {
		rec.ErrorKind = string(apperr.KindOf(err))
		rec.Error = err.Error()
	}
	if recErr := s.opts.Recorder.Record(rec); recErr != nil {
		logger.Warn("failed to record mutation", zap.Error(recErr))
	}
}
