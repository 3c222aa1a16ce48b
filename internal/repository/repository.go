// Package repository owns the on-disk layout of a tree store: the .git
// directory, HEAD, branch refs and the loose object database.
//
// A Repository handle is not safe for concurrent mutation. The serializer
// is its only writer; readers use the object store directly.
package repository

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/utils"
)

var (
	// ErrNotRepository is returned when path has no .git directory.
	ErrNotRepository = errors.New("not a repository")

	// ErrRefNotFound is returned when a ref has never been written.
	ErrRefNotFound = errors.New("ref not found")

	// ErrRefLocked is returned when another writer holds the ref lock.
	ErrRefLocked = errors.New("ref is locked")

	// ErrRefMoved is returned when a ref no longer holds the expected value.
	ErrRefMoved = errors.New("ref moved")
)

const gitConfigContent = `[core]
	repositoryformatversion = 0
	filemode = true
	bare = false
	logallrefupdates = true
`

// InitRepository creates an empty repository on the default branch.
func InitRepository(path string) error {
	return InitRepositoryWithBranch(path, constants.DefaultBranch)
}

// InitRepositoryWithBranch creates the .git layout with HEAD pointing at branch.
func InitRepositoryWithBranch(path, branch string) (err error) {
	gitDir := filepath.Join(path, constants.GitDir)

	if err := checkRepositoryDoesNotExist(gitDir); err != nil {
		return err
	}
	if err := validateBranchName(branch); err != nil {
		return err
	}

	// A deferred cleanup removes a partially created .git directory.
	// A failed cleanup is reported alongside the init error.
	defer func() {
		if err == nil {
			return
		}
		if cleanupErr := cleanupRepository(gitDir); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
	}()

	directories := []string{
		gitDir,
		filepath.Join(gitDir, constants.Objects),
		filepath.Join(gitDir, constants.Refs),
		filepath.Join(gitDir, constants.Refs, constants.Heads),
		filepath.Join(gitDir, constants.Refs, constants.Tags),
	}

	for _, directory := range directories {
		if err := os.MkdirAll(directory, constants.DirPerms); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", directory, err)
		}
	}

	headFile := filepath.Join(gitDir, constants.Head)
	headContent := constants.DefaultRefPrefix + branch + "\n"
	if err := os.WriteFile(headFile, []byte(headContent), constants.FilePerms); err != nil {
		return fmt.Errorf("failed to create HEAD file: %w", err)
	}

	configFile := filepath.Join(gitDir, constants.GitConfig)
	if err := os.WriteFile(configFile, []byte(gitConfigContent), constants.FilePerms); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	return nil
}

func checkRepositoryDoesNotExist(path string) error {
	_, err := os.Stat(path)

	// If path doesn't exist there is no error
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to check repository path: %w", err)
	}

	return fmt.Errorf("repository already exists at %s", path)
}

// Removes the entire .git directory if it exists
func cleanupRepository(gitDir string) error {
	if _, err := os.Stat(gitDir); err != nil {
		return nil
	}
	if err := os.RemoveAll(gitDir); err != nil {
		return fmt.Errorf("failed to clean up %s: %w", gitDir, err)
	}
	return nil
}

func validateBranchName(branch string) error {
	if branch == "" || strings.ContainsAny(branch, " \t\n~^:?*[\\") || strings.Contains(branch, "..") ||
		strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, "/") || strings.HasSuffix(branch, constants.LockSuffix) {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	return nil
}

// Repository is a handle on an initialized repository.
type Repository struct {
	root    string
	gitDir  string
	branch  string
	objects *objects.ObjectStore
	logger  *zap.Logger
}

// Open attaches to the repository at path. HEAD must name a branch; the
// branch itself may not exist yet.
func Open(path string, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	gitDir := filepath.Join(root, constants.GitDir)

	info, err := os.Stat(filepath.Join(gitDir, constants.Objects))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
	}

	head, err := os.ReadFile(filepath.Join(gitDir, constants.Head))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", constants.Head, err)
	}
	headRef := strings.TrimSpace(string(head))
	if !strings.HasPrefix(headRef, constants.DefaultRefPrefix) {
		return nil, fmt.Errorf("%s must reference a branch, found %q", constants.Head, headRef)
	}
	branch := strings.TrimPrefix(headRef, constants.DefaultRefPrefix)

	repo := &Repository{
		root:    root,
		gitDir:  gitDir,
		branch:  branch,
		objects: objects.NewObjectStore(gitDir, logger.Named("objects")),
		logger:  logger,
	}

	// The empty tree is the root of a branch without commits.
	if err := repo.objects.Store(objects.EmptyTree()); err != nil {
		return nil, fmt.Errorf("failed to store empty tree: %w", err)
	}

	return repo, nil
}

func (r *Repository) Root() string {
	return r.root
}

func (r *Repository) GitDir() string {
	return r.gitDir
}

func (r *Repository) Branch() string {
	return r.branch
}

// BranchRef returns the full ref name of the tracked branch.
func (r *Repository) BranchRef() string {
	return filepath.ToSlash(filepath.Join(constants.Refs, constants.Heads, r.branch))
}

func (r *Repository) Objects() *objects.ObjectStore {
	return r.objects
}

func (r *Repository) refPath(name string) string {
	return filepath.Join(r.gitDir, filepath.FromSlash(name))
}

// ReadRef returns the object id a ref points at. Loose refs take precedence
// over packed-refs, matching git.
func (r *Repository) ReadRef(name string) (string, error) {
	data, err := os.ReadFile(r.refPath(name))
	if err == nil {
		hash := strings.TrimSpace(string(data))
		if !utils.IsValidHash(hash) {
			return "", fmt.Errorf("ref %s holds invalid hash %q", name, hash)
		}
		return hash, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	return r.readPackedRef(name)
}

func (r *Repository) readPackedRef(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.gitDir, "packed-refs"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read packed-refs: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		hash, ref, found := strings.Cut(line, " ")
		if found && ref == name {
			return hash, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRefNotFound, name)
}

// Tip returns the commit the tracked branch points at and its root tree.
// A branch without commits yields an empty commit id and the empty tree.
func (r *Repository) Tip() (commit string, tree string, err error) {
	commit, err = r.ReadRef(r.BranchRef())
	if errors.Is(err, ErrRefNotFound) {
		return "", objects.EmptyTree().Hash(), nil
	}
	if err != nil {
		return "", "", err
	}

	c, err := r.objects.ReadCommit(commit)
	if err != nil {
		return "", "", fmt.Errorf("failed to read tip commit %s: %w", commit, err)
	}
	return commit, c.TreeHash(), nil
}

// UpdateRef atomically moves ref name from oldHash to newHash. An empty
// oldHash requires the ref to not exist yet. The new value is written to
// "<ref>.lock" and renamed over the ref, so readers see either the old or
// the new value.
func (r *Repository) UpdateRef(name, oldHash, newHash string) error {
	if !utils.IsValidHash(newHash) {
		return fmt.Errorf("invalid hash %q for ref %s", newHash, name)
	}

	refFile := r.refPath(name)
	lockFile := refFile + constants.LockSuffix
	if err := os.MkdirAll(filepath.Dir(refFile), constants.DirPerms); err != nil {
		return fmt.Errorf("failed to create ref directory: %w", err)
	}

	lock, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, constants.FilePerms)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrRefLocked, name)
	}
	if err != nil {
		return fmt.Errorf("failed to lock ref %s: %w", name, err)
	}

	committed := false
	defer func() {
		if !committed {
			lock.Close()
			os.Remove(lockFile)
		}
	}()

	current, err := r.ReadRef(name)
	if err != nil && !errors.Is(err, ErrRefNotFound) {
		return err
	}
	if current != oldHash {
		return fmt.Errorf("%w: %s expected %q, found %q", ErrRefMoved, name, oldHash, current)
	}

	if _, err := lock.WriteString(newHash + "\n"); err != nil {
		return fmt.Errorf("failed to write ref lock %s: %w", name, err)
	}
	if err := lock.Sync(); err != nil {
		return fmt.Errorf("failed to sync ref lock %s: %w", name, err)
	}
	if err := lock.Close(); err != nil {
		return fmt.Errorf("failed to close ref lock %s: %w", name, err)
	}
	if err := os.Rename(lockFile, refFile); err != nil {
		os.Remove(lockFile)
		committed = true
		return fmt.Errorf("failed to update ref %s: %w", name, err)
	}
	committed = true

	r.logger.Debug("ref updated",
		zap.String("ref", name),
		zap.String("old", oldHash),
		zap.String("new", newHash))
	return nil
}
