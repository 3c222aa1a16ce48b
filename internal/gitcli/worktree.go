package gitcli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/internal/objects"
)

// historyScanDepth bounds how many tip ancestors are searched for the tree
// the index reflects.
const historyScanDepth = 1000

// EditsConflictError reports working tree edits that could not be carried
// onto the branch tip. The working tree was reset to the tip; the edits are
// kept in Commit, which no branch references.
type EditsConflictError struct {
	Commit string
	Err    error
}

func (e *EditsConflictError) Error() string {
	return fmt.Sprintf("local edits conflict with the branch tip and were saved as commit %s: %v", e.Commit, e.Err)
}

func (e *EditsConflictError) Unwrap() error {
	return e.Err
}

// CheckoutTree moves the index and working tree from fromTree to toTree
// with a two-tree read-tree merge. Local edits to untouched paths survive.
// When the merge is refused, usually because a touched path has local
// edits, the edits are carried onto the branch tip instead.
func (c *ShellClient) CheckoutTree(ctx context.Context, fromTree, toTree string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.behind == "" {
		err := c.run(ctx, "read-tree", "-m", "-u", fromTree, toTree)
		if err == nil {
			return nil
		}
		c.logger.Info("read-tree refused, carrying local edits forward",
			zap.String("from", fromTree),
			zap.String("to", toTree),
			zap.Error(err))
		c.behind = fromTree
	}
	return c.align(ctx)
}

// Behind returns the tree the working tree reflects while it lags the
// branch tip, or "" when it follows the tip.
func (c *ShellClient) Behind() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.behind
}

// AlignWorktree brings the index and working tree up to the branch tip
// when they reflect an older tree, as after commits made without a working
// tree or a failed checkout. Local edits made against the older tree are
// carried onto the tip and left uncommitted. An index that matches no tree
// in the tip's history holds staged edits and is left alone.
func (c *ShellClient) AlignWorktree(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.align(ctx)
}

func (c *ShellClient) align(ctx context.Context) error {
	tipRef := "refs/heads/" + c.branch
	tip, err := c.revParse(ctx, tipRef+"^{tree}")
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// Unborn branch: nothing committed can be lost.
		c.behind = ""
		return nil
	}

	base := c.behind
	if base == "" {
		if base, err = c.staleIndexTree(ctx, tipRef, tip); err != nil || base == "" {
			return err
		}
	}
	if base == tip {
		c.behind = ""
		return nil
	}

	edits, err := c.snapshot(ctx, base)
	if err != nil {
		return err
	}
	if edits == base || edits == tip {
		if err := c.run(ctx, "read-tree", "--reset", "-u", tipRef); err != nil {
			return fmt.Errorf("git read-tree failed: %w", err)
		}
		c.behind = ""
		c.logger.Info("working tree moved to branch tip", zap.String("from", base), zap.String("to", tip))
		return nil
	}

	if err := c.carryEdits(ctx, tipRef, base, edits); err != nil {
		return err
	}
	c.behind = ""
	c.logger.Info("local edits carried onto branch tip", zap.String("from", base), zap.String("to", tip))
	return nil
}

// staleIndexTree returns the tree the index reflects when it is an older
// tree of the branch, or "" when the index is current or holds staged edits.
func (c *ShellClient) staleIndexTree(ctx context.Context, tipRef, tip string) (string, error) {
	_, err := os.Stat(filepath.Join(c.dir, constants.GitDir, "index"))
	if errors.Is(err, fs.ErrNotExist) {
		// Never checked out.
		return objects.EmptyTree().Hash(), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check index: %w", err)
	}

	out, err := c.output(ctx, "write-tree")
	if err != nil {
		return "", fmt.Errorf("git write-tree failed: %w", err)
	}
	index := strings.TrimSpace(out)
	if index == tip {
		return "", nil
	}

	out, err = c.output(ctx, "log", "--format=%T", fmt.Sprintf("--max-count=%d", historyScanDepth), tipRef)
	if err != nil {
		return "", fmt.Errorf("git log failed: %w", err)
	}
	for _, tree := range strings.Fields(out) {
		if tree == index {
			return index, nil
		}
	}
	return "", nil
}

// snapshot returns the tree of the working tree as edited on top of base,
// built in a throwaway index so the real index is not touched.
func (c *ShellClient) snapshot(ctx context.Context, base string) (string, error) {
	dir, err := os.MkdirTemp("", "gitree-index-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary index: %w", err)
	}
	defer os.RemoveAll(dir)
	env := []string{"GIT_INDEX_FILE=" + filepath.Join(dir, "index")}

	if _, err := c.outputEnv(ctx, env, "read-tree", base); err != nil {
		return "", fmt.Errorf("git read-tree failed: %w", err)
	}
	if _, err := c.outputEnv(ctx, env, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add failed: %w", err)
	}
	out, err := c.outputEnv(ctx, env, "write-tree")
	if err != nil {
		return "", fmt.Errorf("git write-tree failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// carryEdits records the base to edits change as a detached commit, resets
// the working tree to the tip and replays the change there without
// committing. A conflicting replay leaves the working tree at the tip.
func (c *ShellClient) carryEdits(ctx context.Context, tipRef, base, edits string) error {
	baseCommit, err := c.commitTree(ctx, base, "", "working tree base")
	if err != nil {
		return err
	}
	editCommit, err := c.commitTree(ctx, edits, baseCommit, "working tree edits")
	if err != nil {
		return err
	}

	// Files the edits added are untracked and would block the replay.
	out, err := c.output(ctx, "diff-tree", "-r", "-z", "--name-only", "--no-renames", "--diff-filter=A", base, edits)
	if err != nil {
		return fmt.Errorf("git diff-tree failed: %w", err)
	}
	for _, name := range strings.Split(out, "\x00") {
		if name == "" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, filepath.FromSlash(name))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to set aside %s: %w", name, err)
		}
	}

	if err := c.run(ctx, "read-tree", "--reset", "-u", tipRef); err != nil {
		return fmt.Errorf("git read-tree failed: %w", err)
	}
	if err := c.run(ctx, "cherry-pick", "--no-commit", editCommit); err != nil {
		if resetErr := c.run(ctx, "reset", "--hard", "-q", tipRef); resetErr != nil {
			return fmt.Errorf("git reset after failed cherry-pick failed: %w", errors.Join(err, resetErr))
		}
		c.behind = ""
		return &EditsConflictError{Commit: editCommit, Err: err}
	}
	// Leave the carried edits unstaged, like any other working tree edit.
	if err := c.run(ctx, "reset", "-q", tipRef); err != nil {
		return fmt.Errorf("git reset failed: %w", err)
	}
	return nil
}

func (c *ShellClient) commitTree(ctx context.Context, tree, parent, message string) (string, error) {
	args := []string{"commit-tree", tree, "-m", message}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	out, err := c.output(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git commit-tree failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}
