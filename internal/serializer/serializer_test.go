package serializer

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/repository"
	"github.com/KostasZigo/gitree/utils"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorderFunc func(Record) error

func (f recorderFunc) Record(rec Record) error { return f(rec) }

type fakeWorktree struct {
	mu    sync.Mutex
	calls [][2]string
}

func (w *fakeWorktree) CheckoutTree(_ context.Context, fromTree, toTree string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, [2]string{fromTree, toTree})
	return nil
}

func newTestSerializer(t *testing.T, opts Options) (*Serializer, *repository.Repository) {
	t.Helper()

	repoPath := t.TempDir()
	require.NoError(t, repository.InitRepository(repoPath))
	repo, err := repository.Open(repoPath, zaptest.NewLogger(t))
	require.NoError(t, err)

	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedTime }
	}
	s, err := New(repo, zaptest.NewLogger(t), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, repo
}

// readFile returns the content of the blob at p in the given root.
func readFile(t *testing.T, repo *repository.Repository, root, p string) []byte {
	t.Helper()
	segments := utils.SplitPath(p)
	treeID := root
	for i, segment := range segments {
		tree, err := repo.Objects().ReadTree(treeID)
		require.NoError(t, err)
		entry, ok := tree.FindEntry(segment)
		require.True(t, ok, "missing %s", segment)
		if i == len(segments)-1 {
			blob, err := repo.Objects().ReadBlob(entry.Hash())
			require.NoError(t, err)
			return blob.Content()
		}
		treeID = entry.Hash()
	}
	t.Fatalf("empty path")
	return nil
}

func entryID(t *testing.T, repo *repository.Repository, root string, path ...string) string {
	t.Helper()
	treeID := root
	for i, segment := range path {
		tree, err := repo.Objects().ReadTree(treeID)
		require.NoError(t, err)
		entry, ok := tree.FindEntry(segment)
		require.True(t, ok, "missing %s", segment)
		if i == len(path)-1 {
			return entry.Hash()
		}
		treeID = entry.Hash()
	}
	return ""
}

func countObjects(t *testing.T, repo *repository.Repository) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(filepath.Join(repo.GitDir(), "objects"), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestNew_FreshRepository(t *testing.T) {
	s, _ := newTestSerializer(t, Options{})

	v := s.Pointer().Load()
	assert.Empty(t, v.Commit)
	assert.Equal(t, objects.EmptyTree().Hash(), v.Tree)
}

func TestSubmit_CommitsAndMovesBranch(t *testing.T) {
	s, repo := newTestSerializer(t, Options{AuthorName: "Ash", AuthorEmail: "ash@pallet.town"})
	ctx := context.Background()

	first, err := s.Submit(ctx, CreateDir{Name: "notes"})
	require.NoError(t, err)
	second, err := s.Submit(ctx, CreateFile{Path: []string{"notes"}, Rel: []string{"a.txt"}, Content: []byte("hi")})
	require.NoError(t, err)

	assert.Equal(t, second, s.Pointer().Load())
	ref, err := repo.ReadRef(repo.BranchRef())
	require.NoError(t, err)
	assert.Equal(t, second.Commit, ref)

	commit, err := repo.Objects().ReadCommit(second.Commit)
	require.NoError(t, err)
	assert.Equal(t, first.Commit, commit.ParentHash())
	assert.Equal(t, second.Tree, commit.TreeHash())
	assert.Equal(t, "Create notes/a.txt\n", commit.Message())
	assert.Equal(t, "Ash", commit.Author().Name)
	assert.Equal(t, fixedTime.Unix(), commit.Author().Timestamp.Unix())

	root, err := repo.Objects().ReadCommit(first.Commit)
	require.NoError(t, err)
	assert.True(t, root.IsInitialCommit())

	assert.Equal(t, []byte("hi"), readFile(t, repo, second.Tree, "notes/a.txt"))
}

func TestSubmit_RejectedWritesNothing(t *testing.T) {
	s, repo := newTestSerializer(t, Options{})
	ctx := context.Background()

	v, err := s.Submit(ctx, CreateFile{Rel: []string{"a.txt"}, Content: []byte("one")})
	require.NoError(t, err)
	objectsBefore := countObjects(t, repo)

	_, err = s.Submit(ctx, CreateFile{Rel: []string{"a.txt"}, Content: []byte("two")})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	_, err = s.Submit(ctx, Move{Path: []string{"a.txt"}, NewPath: []string{"archive", "a.txt"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Submit(ctx, SaveContent{Path: []string{"a.txt"}, PrevID: objects.NewBlob([]byte("stale")).Hash(), Content: []byte("x")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.Equal(t, objectsBefore, countObjects(t, repo))
	assert.Equal(t, v, s.Pointer().Load())
	ref, err := repo.ReadRef(repo.BranchRef())
	require.NoError(t, err)
	assert.Equal(t, v.Commit, ref)
}

func TestSubmit_ConcurrentSaveContent(t *testing.T) {
	s, repo := newTestSerializer(t, Options{})
	ctx := context.Background()

	v, err := s.Submit(ctx, CreateFile{Rel: []string{"doc.md"}, Content: []byte("base")})
	require.NoError(t, err)
	prevID := entryID(t, repo, v.Tree, "doc.md")

	contents := [][]byte{[]byte("from alice"), []byte("from bob")}
	errs := make([]error, len(contents))
	var wg sync.WaitGroup
	for i, content := range contents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Submit(ctx, SaveContent{Path: []string{"doc.md"}, PrevID: prevID, Content: content})
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "both saves succeeded")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	require.NotEqual(t, -1, winner, "no save succeeded")
	assert.Equal(t, contents[winner], readFile(t, repo, s.Pointer().Load().Tree, "doc.md"))
}

func TestSubmit_RefUpdateFailureLeavesStateUnchanged(t *testing.T) {
	s, repo := newTestSerializer(t, Options{})
	ctx := context.Background()

	v, err := s.Submit(ctx, CreateFile{Rel: []string{"doc.md"}, Content: []byte("keep")})
	require.NoError(t, err)

	mockError := errors.New("disk quota exceeded")
	patches := gomonkey.ApplyMethod(&repository.Repository{}, "UpdateRef",
		func(_ *repository.Repository, _, _, _ string) error {
			return mockError
		})

	_, err = s.Submit(ctx, SaveContent{Path: []string{"doc.md"}, Content: []byte("lost")})
	patches.Reset()

	require.Error(t, err)
	assert.ErrorIs(t, err, mockError)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.Equal(t, v, s.Pointer().Load())
	ref, err := repo.ReadRef(repo.BranchRef())
	require.NoError(t, err)
	assert.Equal(t, v.Commit, ref)
	assert.Equal(t, []byte("keep"), readFile(t, repo, s.Pointer().Load().Tree, "doc.md"))

	// the serializer keeps working once the fault is gone
	_, err = s.Submit(ctx, SaveContent{Path: []string{"doc.md"}, Content: []byte("saved")})
	require.NoError(t, err)
	assert.Equal(t, []byte("saved"), readFile(t, repo, s.Pointer().Load().Tree, "doc.md"))
}

func TestSubmit_BranchMovedExternally(t *testing.T) {
	s, repo := newTestSerializer(t, Options{})
	ctx := context.Background()

	v, err := s.Submit(ctx, CreateDir{Name: "notes"})
	require.NoError(t, err)

	// another writer commits the empty tree on top of our tip
	external, err := objects.NewCommit(objects.EmptyTree().Hash(), v.Commit, "external", objects.Author{
		Name: "other", Email: "other@example.com", Timestamp: fixedTime,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Objects().Store(external))
	require.NoError(t, repo.UpdateRef(repo.BranchRef(), v.Commit, external.Hash()))

	_, err = s.Submit(ctx, CreateDir{Name: "more"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.ErrorIs(t, err, repository.ErrRefMoved)

	// the pointer was reloaded, so a retry applies on the new tip
	assert.Equal(t, Version{Commit: external.Hash(), Tree: objects.EmptyTree().Hash()}, s.Pointer().Load())
	retried, err := s.Submit(ctx, CreateDir{Name: "more"})
	require.NoError(t, err)
	commit, err := repo.Objects().ReadCommit(retried.Commit)
	require.NoError(t, err)
	assert.Equal(t, external.Hash(), commit.ParentHash())
}

func TestSubmit_ConcurrentRequestsFormLinearHistory(t *testing.T) {
	s, repo := newTestSerializer(t, Options{})
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(ctx, CreateDir{Name: "dir-" + string(rune('a'+i))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v := s.Pointer().Load()
	tree, err := repo.Objects().ReadTree(v.Tree)
	require.NoError(t, err)
	assert.Equal(t, writers, tree.Len())

	depth := 0
	for hash := v.Commit; hash != ""; depth++ {
		commit, err := repo.Objects().ReadCommit(hash)
		require.NoError(t, err)
		hash = commit.ParentHash()
	}
	assert.Equal(t, writers, depth)
}

func TestExclusive_ReloadsPointer(t *testing.T) {
	s, repo := newTestSerializer(t, Options{})
	ctx := context.Background()

	var external *objects.Commit
	err := s.Exclusive(ctx, "test", func(context.Context) error {
		var err error
		external, err = objects.NewInitialCommit(objects.EmptyTree().Hash(), "from outside", objects.Author{
			Name: "other", Email: "other@example.com", Timestamp: fixedTime,
		})
		if err != nil {
			return err
		}
		if err := repo.Objects().Store(external); err != nil {
			return err
		}
		return repo.UpdateRef(repo.BranchRef(), "", external.Hash())
	})
	require.NoError(t, err)
	assert.Equal(t, external.Hash(), s.Pointer().Load().Commit)
}

func TestExclusive_BlocksMutations(t *testing.T) {
	s, _ := newTestSerializer(t, Options{})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	taskErr := make(chan error, 1)
	go func() {
		taskErr <- s.Exclusive(ctx, "blocking", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	submitted := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, CreateDir{Name: "late"})
		submitted <- err
	}()

	select {
	case <-submitted:
		t.Fatal("mutation ran while an exclusive task held the repository")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-taskErr)
	require.NoError(t, <-submitted)
}

func TestExclusive_ReturnsTaskError(t *testing.T) {
	s, _ := newTestSerializer(t, Options{})

	taskErr := apperr.SyncUnrecoverable("still diverged")
	err := s.Exclusive(context.Background(), "sync", func(context.Context) error { return taskErr })
	assert.ErrorIs(t, err, apperr.ErrSyncUnrecoverable)
}

func TestSubmit_RecordsAndUpdatesWorktree(t *testing.T) {
	var (
		mu      sync.Mutex
		records []Record
	)
	worktree := &fakeWorktree{}
	s, _ := newTestSerializer(t, Options{
		Recorder: recorderFunc(func(rec Record) error {
			mu.Lock()
			defer mu.Unlock()
			records = append(records, rec)
			return nil
		}),
		Worktree: worktree,
	})
	ctx := context.Background()

	v, err := s.Submit(ctx, CreateDir{Name: "notes"})
	require.NoError(t, err)
	_, err = s.Submit(ctx, CreateDir{Name: "notes"})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 2)
	assert.Equal(t, KindCreateDir, records[0].Kind)
	assert.Equal(t, "notes", records[0].Target)
	assert.Equal(t, v, records[0].After)
	assert.Empty(t, records[0].ErrorKind)
	assert.NotEmpty(t, records[0].RequestID)
	assert.Equal(t, string(apperr.KindAlreadyExists), records[1].ErrorKind)
	assert.NotEqual(t, records[0].RequestID, records[1].RequestID)

	require.Len(t, worktree.calls, 1)
	assert.Equal(t, [2]string{objects.EmptyTree().Hash(), v.Tree}, worktree.calls[0])
}

func TestSubmit_AfterClose(t *testing.T) {
	s, _ := newTestSerializer(t, Options{})
	s.Close()

	_, err := s.Submit(context.Background(), CreateDir{Name: "notes"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubmit_Invalid(t *testing.T) {
	s, _ := newTestSerializer(t, Options{})

	_, err := s.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = s.Submit(context.Background(), Delete{})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
