package objects

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/testutils"
	"github.com/KostasZigo/gitree/utils"
	"go.uber.org/zap/zaptest"
)

// newTestStore creates an object store rooted in a temporary .git directory.
func newTestStore(t *testing.T) (*ObjectStore, string) {
	t.Helper()

	repoPath := testutils.SetupTestRepoWithGitDir(t)
	gitDir := filepath.Join(repoPath, constants.GitDir)
	return NewObjectStore(gitDir, zaptest.NewLogger(t)), gitDir
}

// assertBlobHash verifies blob hash matches expected value for given content.
func assertBlobHash(t *testing.T, blob *Blob, content []byte) {
	t.Helper()

	expectedHash, err := utils.ComputeHash(content, utils.BlobObjectType)
	if err != nil {
		t.Fatalf("Hash computation failed: %v", err)
	}

	if blob.Hash() != expectedHash {
		t.Fatalf("Expected hash [%s], got [%s]", expectedHash, blob.Hash())
	}
}

// assertBlobContent verifies blob stores exact content and correct size.
func assertBlobContent(t *testing.T, blob *Blob, expectedContent []byte) {
	t.Helper()

	if blob.Size() != len(expectedContent) {
		t.Fatalf("Expected size %d, got %d", len(expectedContent), blob.Size())
	}

	if string(blob.Content()) != string(expectedContent) {
		t.Fatalf("Expected content [%q], got [%q]", expectedContent, blob.Content())
	}
}

// createTreeEntry creates tree entry and fails test on error.
func createTreeEntry(t *testing.T, mode FileMode, name, hash string) TreeEntry {
	t.Helper()

	entry, err := NewTreeEntry(mode, name, hash)
	if err != nil {
		t.Fatalf("Failed to create tree entry: %v", err)
	}

	return *entry
}

// createTree creates tree from entries and fails test on error.
func createTree(t *testing.T, entries []TreeEntry) *Tree {
	t.Helper()

	tree, err := NewTree(entries)
	if err != nil {
		t.Fatalf("Failed to create tree: %v", err)
	}

	return tree
}

// assertTreeEntryEqual verifies two tree entries match.
func assertTreeEntryEqual(t *testing.T, actual, expected TreeEntry) {
	t.Helper()

	if actual.Name() != expected.Name() {
		t.Errorf("Entry name mismatch: expected %s, got %s", expected.Name(), actual.Name())
	}
	if actual.Hash() != expected.Hash() {
		t.Errorf("Entry hash mismatch: expected %s, got %s", expected.Hash(), actual.Hash())
	}
	if actual.Mode() != expected.Mode() {
		t.Errorf("Entry mode mismatch: expected %s, got %s", expected.Mode(), actual.Mode())
	}
}

// createTestAuthor returns test author with a fixed +0200 zone.
func createTestAuthor(name, email string) Author {
	return Author{
		Name:      name,
		Email:     email,
		Timestamp: time.Now().In(time.FixedZone("", 2*constants.SecondsPerHour)).Truncate(time.Second),
	}
}

// assertCommitEqual verifies two commits match in all fields.
func assertCommitEqual(t *testing.T, actual, expected *Commit) {
	t.Helper()

	if actual.Hash() != expected.Hash() {
		t.Errorf("Hash mismatch: expected [%s], got [%s]", expected.Hash(), actual.Hash())
	}
	if actual.TreeHash() != expected.TreeHash() {
		t.Errorf("Tree hash mismatch: expected [%s], got [%s]", expected.TreeHash(), actual.TreeHash())
	}
	if actual.ParentHash() != expected.ParentHash() {
		t.Errorf("Parent mismatch: expected [%s], got [%s]", expected.ParentHash(), actual.ParentHash())
	}
	if actual.Message() != expected.Message() {
		t.Errorf("Message mismatch: expected [%s], got [%s]", expected.Message(), actual.Message())
	}
	if actual.Author().String() != expected.Author().String() {
		t.Errorf("Author mismatch: expected [%s], got [%s]", expected.Author(), actual.Author())
	}
	if !actual.Author().Timestamp.Equal(expected.Author().Timestamp) {
		t.Errorf("Author timestamp mismatch: expected [%s], got [%s]",
			expected.Author().Timestamp.Format("2006-01-02 15:04:05 -0700"),
			actual.Author().Timestamp.Format("2006-01-02 15:04:05 -0700"))
	}
}
