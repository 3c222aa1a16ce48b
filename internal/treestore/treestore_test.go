package treestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/config"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/repository"
	"github.com/KostasZigo/gitree/internal/serializer"
	"github.com/KostasZigo/gitree/testutils"
)

func openStore(t *testing.T, cfg *config.Config) *Store {
	t.Helper()
	store, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRepoConfig(t *testing.T) *config.Config {
	t.Helper()
	repoPath := t.TempDir()
	require.NoError(t, repository.InitRepository(repoPath))
	return config.Default(repoPath)
}

func TestStore_RoundTrip(t *testing.T) {
	store := openStore(t, newRepoConfig(t))
	ctx := context.Background()

	initial := store.Root()
	assert.Empty(t, initial.Commit)

	_, err := store.Mutate(ctx, serializer.CreateDir{Name: "notes"})
	require.NoError(t, err)
	v, err := store.Mutate(ctx, serializer.CreateFile{Path: []string{"notes"}, Rel: []string{"a.txt"}, Content: []byte("hi")})
	require.NoError(t, err)

	root, err := store.Resolve(v.Tree)
	require.NoError(t, err)
	notes, ok := root.Find("notes")
	require.True(t, ok)
	assert.Equal(t, objects.KindDir, notes.Kind)

	dir, err := store.Resolve(notes.ID)
	require.NoError(t, err)
	require.Len(t, dir.Entries, 1)
	file := dir.Entries[0]
	assert.Equal(t, "a.txt", file.Name)
	assert.Equal(t, objects.KindFile, file.Kind)

	blob, err := store.Resolve(file.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), blob.Content)

	_, err = store.Mutate(ctx, serializer.Rename{Path: []string{"notes"}, PrevName: "a.txt", PrevID: file.ID, NewName: "b.txt"})
	require.NoError(t, err)

	entries, err := store.ListPath([]string{"notes"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name)
	assert.Equal(t, file.ID, entries[0].ID)

	// the previous version stays resolvable
	old, err := store.Resolve(v.Tree)
	require.NoError(t, err)
	_, ok = old.Find("notes")
	assert.True(t, ok)
}

func TestStore_MoveToMissingDirectory(t *testing.T) {
	store := openStore(t, newRepoConfig(t))
	ctx := context.Background()

	v, err := store.Mutate(ctx, serializer.CreateFile{Path: nil, Rel: []string{"notes", "b.txt"}, Content: []byte("b")})
	require.NoError(t, err)

	_, err = store.Mutate(ctx, serializer.Move{Path: []string{"notes", "b.txt"}, NewPath: []string{"archive", "b.txt"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, v, store.Root())
}

func TestStore_ListPathErrors(t *testing.T) {
	store := openStore(t, newRepoConfig(t))
	ctx := context.Background()

	_, err := store.Mutate(ctx, serializer.CreateFile{Rel: []string{"file.txt"}, Content: []byte("x")})
	require.NoError(t, err)

	_, err = store.ListPath([]string{"file.txt"})
	assert.ErrorIs(t, err, apperr.ErrNotADirectory)
	_, err = store.ListPath([]string{"missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	entries, err := store.ListPath(nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_ReopenSeesCommittedState(t *testing.T) {
	cfg := newRepoConfig(t)
	ctx := context.Background()

	first, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	v, err := first.Mutate(ctx, serializer.CreateDir{Name: "kept"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openStore(t, cfg)
	assert.Equal(t, v, second.Root())
}

func TestStore_OptionalFeaturesDisabled(t *testing.T) {
	store := openStore(t, newRepoConfig(t))

	_, err := store.Journal(10)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	assert.ErrorIs(t, store.Sync(context.Background()), apperr.ErrInvalid)
	assert.ErrorIs(t, store.RunSync(context.Background()), apperr.ErrInvalid)
}

func TestStore_Journal(t *testing.T) {
	cfg := newRepoConfig(t)
	cfg.Journal.Enabled = true
	store := openStore(t, cfg)
	ctx := context.Background()

	_, err := store.Mutate(ctx, serializer.CreateDir{Name: "notes"})
	require.NoError(t, err)
	_, err = store.Mutate(ctx, serializer.CreateDir{Name: "notes"})
	require.Error(t, err)

	entries, err := store.Journal(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(apperr.KindAlreadyExists), entries[0].ErrorKind)
	testutils.AssertDirExists(t, cfg.JournalPath())
}

func TestStore_WorktreeFollowsCommits(t *testing.T) {
	testutils.RequireGit(t)
	cfg := newRepoConfig(t)
	cfg.Repo.Worktree = true
	store := openStore(t, cfg)
	ctx := context.Background()

	_, err := store.Mutate(ctx, serializer.CreateFile{Rel: []string{"notes", "a.txt"}, Content: []byte("hi\n")})
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(cfg.Repo.Path, "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))

	_, err = store.Mutate(ctx, serializer.Move{Path: []string{"notes", "a.txt"}, NewPath: []string{"a.txt"}})
	require.NoError(t, err)
	testutils.AssertFileNotExists(t, filepath.Join(cfg.Repo.Path, "notes", "a.txt"))
	testutils.AssertFileExists(t, filepath.Join(cfg.Repo.Path, "a.txt"))

	status := testutils.RunGit(t, cfg.Repo.Path, "status", "--porcelain")
	assert.Empty(t, status)
}

// newRemoteRepo creates a repository wired to a bare remote and returns
// both paths.
func newRemoteRepo(t *testing.T) (repoPath, remote string) {
	t.Helper()
	testutils.RequireGit(t)
	base := t.TempDir()
	remote = filepath.Join(base, "remote.git")
	testutils.RunGit(t, base, "init", "--bare", remote)
	testutils.RunGit(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")

	repoPath = filepath.Join(base, "local")
	require.NoError(t, os.Mkdir(repoPath, 0755))
	require.NoError(t, repository.InitRepository(repoPath))
	testutils.RunGit(t, repoPath, "remote", "add", "origin", remote)
	return repoPath, remote
}

func syncConfig(repoPath string) *config.Config {
	cfg := config.Default(repoPath)
	cfg.Repo.Worktree = true
	cfg.Sync.Enabled = true
	return cfg
}

func entryNames(t *testing.T, store *Store) []string {
	t.Helper()
	entries, err := store.ListPath(nil)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestStore_SyncWithRemote(t *testing.T) {
	repoPath, remote := newRemoteRepo(t)
	store := openStore(t, syncConfig(repoPath))
	ctx := context.Background()

	v, err := store.Mutate(ctx, serializer.CreateFile{Rel: []string{"a.txt"}, Content: []byte("one\n")})
	require.NoError(t, err)
	require.NoError(t, store.Sync(ctx))
	assert.Equal(t, v.Commit+"\n", testutils.RunGit(t, remote, "rev-parse", "refs/heads/main"))

	// an edit made directly in the working tree is auto saved and published
	testutils.CreateTestFile(t, repoPath, "external.txt", []byte("from editor\n"))
	require.NoError(t, store.Sync(ctx))

	synced := store.Root()
	assert.NotEqual(t, v.Commit, synced.Commit)
	assert.ElementsMatch(t, []string{"a.txt", "external.txt"}, entryNames(t, store))
	assert.Equal(t, synced.Commit+"\n", testutils.RunGit(t, remote, "rev-parse", "refs/heads/main"))

	// mutations continue on top of the synced tip
	next, err := store.Mutate(ctx, serializer.Delete{Path: []string{"external.txt"}})
	require.NoError(t, err)
	commit, err := store.Repository().Objects().ReadCommit(next.Commit)
	require.NoError(t, err)
	assert.Equal(t, synced.Commit, commit.ParentHash())
}

func TestStore_SyncChecksOutCommitsMadeWithoutWorktree(t *testing.T) {
	repoPath, remote := newRemoteRepo(t)
	ctx := context.Background()

	plain := openStore(t, config.Default(repoPath))
	_, err := plain.Mutate(ctx, serializer.CreateFile{Rel: []string{"a.txt"}, Content: []byte("one\n")})
	require.NoError(t, err)
	require.NoError(t, plain.Close())
	testutils.AssertFileNotExists(t, filepath.Join(repoPath, "a.txt"))

	store := openStore(t, syncConfig(repoPath))
	content, err := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(content))

	require.NoError(t, store.Sync(ctx))
	assert.Equal(t, []string{"a.txt"}, entryNames(t, store))
	assert.Equal(t, store.Root().Tree+"\n", testutils.RunGit(t, remote, "rev-parse", "refs/heads/main^{tree}"))
}

func TestStore_SyncKeepsMoveOverLocalEdit(t *testing.T) {
	repoPath, _ := newRemoteRepo(t)
	store := openStore(t, syncConfig(repoPath))
	ctx := context.Background()

	_, err := store.Mutate(ctx, serializer.CreateFile{Rel: []string{"a.txt"}, Content: []byte("one\n")})
	require.NoError(t, err)
	require.NoError(t, store.Sync(ctx))

	testutils.CreateTestFile(t, repoPath, "a.txt", []byte("edited\n"))
	_, err = store.Mutate(ctx, serializer.Move{
		Path:       []string{"a.txt"},
		ExpectedID: objects.NewBlob([]byte("one\n")).Hash(),
		NewPath:    []string{"b.txt"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Sync(ctx))

	assert.Equal(t, []string{"b.txt"}, entryNames(t, store))
	obj, err := store.ResolvePath([]string{"b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "edited\n", string(obj.Content))
	testutils.AssertFileNotExists(t, filepath.Join(repoPath, "a.txt"))
}
