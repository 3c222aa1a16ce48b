// Package gitcli drives the git binary against a tree store repository.
package gitcli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ShellClient runs git commands in a working tree by shelling out to git.
type ShellClient struct {
	dir         string
	remote      string
	branch      string
	authorName  string
	authorEmail string
	logger      *zap.Logger

	// mu guards behind, the tree the index and working tree still reflect
	// after a checkout failed. Empty when they follow the branch tip.
	mu     sync.Mutex
	behind string
}

// NewShellClient creates a client for the repository at dir that tracks
// branch on remote.
func NewShellClient(dir, remote, branch, authorName, authorEmail string, logger *zap.Logger) *ShellClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShellClient{
		dir:         dir,
		remote:      remote,
		branch:      branch,
		authorName:  authorName,
		authorEmail: authorEmail,
		logger:      logger,
	}
}

// RemoteRef returns the remote tracking branch, e.g. "origin/main".
func (c *ShellClient) RemoteRef() string {
	return c.remote + "/" + c.branch
}

// IsDirty reports whether the working tree has changes not in the branch tip.
func (c *ShellClient) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.output(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages every change in the working tree and commits it.
func (c *ShellClient) CommitAll(ctx context.Context, message string) error {
	if err := c.run(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	if err := c.run(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Fetch updates the remote tracking branch.
func (c *ShellClient) Fetch(ctx context.Context) error {
	if err := c.run(ctx, "fetch", c.remote, c.branch); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// LocalTip returns the commit the local branch points at.
func (c *ShellClient) LocalTip(ctx context.Context) (string, error) {
	return c.revParse(ctx, "refs/heads/"+c.branch)
}

// RemoteTip returns the commit the remote tracking branch points at.
func (c *ShellClient) RemoteTip(ctx context.Context) (string, error) {
	return c.revParse(ctx, "refs/remotes/"+c.RemoteRef())
}

func (c *ShellClient) revParse(ctx context.Context, ref string) (string, error) {
	out, err := c.output(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s failed: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// Merge merges the remote tracking branch into the current branch.
func (c *ShellClient) Merge(ctx context.Context) error {
	if err := c.run(ctx, "merge", "--no-edit", c.RemoteRef()); err != nil {
		return fmt.Errorf("git merge failed: %w", err)
	}
	return nil
}

func (c *ShellClient) MergeAbort(ctx context.Context) error {
	if err := c.run(ctx, "merge", "--abort"); err != nil {
		return fmt.Errorf("git merge --abort failed: %w", err)
	}
	return nil
}

// Rebase replays local commits on top of the remote tracking branch.
func (c *ShellClient) Rebase(ctx context.Context) error {
	if err := c.run(ctx, "rebase", c.RemoteRef()); err != nil {
		return fmt.Errorf("git rebase failed: %w", err)
	}
	return nil
}

func (c *ShellClient) RebaseAbort(ctx context.Context) error {
	if err := c.run(ctx, "rebase", "--abort"); err != nil {
		return fmt.Errorf("git rebase --abort failed: %w", err)
	}
	return nil
}

// ForcePush overwrites the remote branch with the local one.
func (c *ShellClient) ForcePush(ctx context.Context) error {
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", c.branch, c.branch)
	if err := c.run(ctx, "push", "--force", c.remote, refspec); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

func (c *ShellClient) command(ctx context.Context, env []string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_AUTHOR_NAME="+c.authorName,
		"GIT_AUTHOR_EMAIL="+c.authorEmail,
		"GIT_COMMITTER_NAME="+c.authorName,
		"GIT_COMMITTER_EMAIL="+c.authorEmail,
	)
	cmd.Env = append(cmd.Env, env...)
	return cmd
}

// run executes a git command and returns an error with its output on failure.
func (c *ShellClient) run(ctx context.Context, args ...string) error {
	_, err := c.output(ctx, args...)
	return err
}

func (c *ShellClient) output(ctx context.Context, args ...string) (string, error) {
	return c.outputEnv(ctx, nil, args...)
}

// outputEnv runs a git command with extra environment variables.
func (c *ShellClient) outputEnv(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := c.command(ctx, env, args...)
	c.logger.Debug("running git", zap.Strings("args", args))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %s", ctxErr, strings.TrimSpace(string(output)))
		}
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
