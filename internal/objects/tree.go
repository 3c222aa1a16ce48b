package objects

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/utils"
)

type FileMode string

const (
	ModeRegularFile FileMode = "100644" // Regular non-executable file
	ModeExecutable  FileMode = "100755" // Executable file
	ModeSymlink     FileMode = "120000" // Symbolic link
	ModeDirectory   FileMode = "40000"  // Directory (tree), unpadded as git writes it
	ModeSubmodule   FileMode = "160000" // Git submodule

	// ModeDirectoryPadded is accepted when reading trees written by tools
	// that zero-pad the directory mode. It is preserved verbatim so the
	// containing tree keeps its id.
	ModeDirectoryPadded FileMode = "040000"
)

func (m FileMode) IsValid() bool {
	switch m {
	case ModeRegularFile, ModeExecutable, ModeSymlink, ModeDirectory, ModeDirectoryPadded, ModeSubmodule:
		return true
	default:
		return false
	}
}

// EntryKind is the coarse classification exposed to clients.
type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// TreeEntry represents a single entry in a tree object
type TreeEntry struct {
	mode FileMode
	name string
	hash string // hex id of the blob or subtree
}

func NewTreeEntry(mode FileMode, name string, hash string) (*TreeEntry, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid file mode: %s", mode)
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid entry name: %w", err)
	}
	if !utils.IsValidHash(hash) {
		return nil, fmt.Errorf("invalid object hash %q for entry %s", hash, name)
	}
	return &TreeEntry{
		mode: mode,
		name: name,
		hash: hash,
	}, nil
}

func (e TreeEntry) Mode() FileMode {
	return e.mode
}

func (e TreeEntry) Name() string {
	return e.name
}

func (e TreeEntry) Hash() string {
	return e.hash
}

func (e TreeEntry) IsDirectory() bool {
	return e.mode == ModeDirectory || e.mode == ModeDirectoryPadded
}

func (e TreeEntry) IsExecutable() bool {
	return e.mode == ModeExecutable
}

func (e TreeEntry) Kind() EntryKind {
	if e.IsDirectory() {
		return KindDir
	}
	return KindFile
}

// WithHash returns a copy of the entry pointing at a different object.
func (e TreeEntry) WithHash(hash string) TreeEntry {
	e.hash = hash
	return e
}

// WithName returns a copy of the entry under a different name.
func (e TreeEntry) WithName(name string) TreeEntry {
	e.name = name
	return e
}

// Tree represents a Git tree object (directory)
type Tree struct {
	entries []TreeEntry
	content []byte
	hash    string
}

// NewTree creates a tree object from the list of Tree Entries.
// Duplicate names are rejected.
func NewTree(treeEntries []TreeEntry) (*Tree, error) {
	entries := make([]TreeEntry, len(treeEntries))
	copy(entries, treeEntries)

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.name]; dup {
			return nil, fmt.Errorf("duplicate tree entry name: %s", entry.name)
		}
		seen[entry.name] = struct{}{}
	}

	slices.SortStableFunc(entries, compareTreeEntries)

	treeContent := buildTreeContent(entries)
	hash, err := utils.ComputeHash(treeContent, utils.TreeObjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hash for tree: %w", err)
	}

	return &Tree{
		entries: entries,
		content: treeContent,
		hash:    hash,
	}, nil
}

// EmptyTree returns the tree with no entries.
func EmptyTree() *Tree {
	tree, _ := NewTree(nil)
	return tree
}

// ParseTree decodes raw tree content as stored on disk.
func ParseTree(hash string, content []byte) (*Tree, error) {
	var entries []TreeEntry
	rest := content
	for len(rest) > 0 {
		space := bytes.IndexByte(rest, ' ')
		if space <= 0 {
			return nil, fmt.Errorf("malformed tree %s: missing mode", hash)
		}
		mode := FileMode(rest[:space])
		rest = rest[space+1:]

		nul := bytes.IndexByte(rest, constants.NullByte)
		if nul <= 0 {
			return nil, fmt.Errorf("malformed tree %s: missing name terminator", hash)
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < constants.HashByteLength {
			return nil, fmt.Errorf("malformed tree %s: truncated hash for %s", hash, name)
		}
		entryHash := hex.EncodeToString(rest[:constants.HashByteLength])
		rest = rest[constants.HashByteLength:]

		if !mode.IsValid() {
			return nil, fmt.Errorf("malformed tree %s: invalid mode %s for %s", hash, mode, name)
		}
		entries = append(entries, TreeEntry{mode: mode, name: name, hash: entryHash})
	}

	return &Tree{
		entries: entries,
		content: content,
		hash:    hash,
	}, nil
}

// compareTreeEntries implements Git's tree entry sorting rules:
// - Entries are sorted by name
// - Directory names are treated as if they have a trailing "/" for comparison
// - This ensures correct ordering when directories and files have similar names
func compareTreeEntries(a, b TreeEntry) int {
	return strings.Compare(getSortableName(a), getSortableName(b))
}

// getSortableName returns the name used for sorting.
// For directories, appends "/" to follow Git's sorting convention.
func getSortableName(entry TreeEntry) string {
	if entry.IsDirectory() {
		return entry.Name() + "/"
	}
	return entry.Name()
}

// buildTreeContent creates the raw tree content in git format
// <mode> <name>\0<20-byte binary SHA> , ex:
// 100644 README.md\0[binary SHA for README blob]
// 100644 main.go\0[binary SHA for main.go blob]
// 40000 src\0[binary SHA for src/ tree]
func buildTreeContent(entries []TreeEntry) []byte {
	var buf bytes.Buffer

	for _, entry := range entries {
		buf.WriteString(string(entry.Mode()))
		buf.WriteByte(' ')
		buf.WriteString(entry.Name())
		buf.WriteByte(constants.NullByte)

		// Convert hex hash to binary hash
		hashBytes, _ := hex.DecodeString(entry.Hash())
		buf.Write(hashBytes)
	}

	return buf.Bytes()
}

// Hash returns the SHA-1 hash of the tree
func (t *Tree) Hash() string {
	return t.hash
}

func (t *Tree) Type() utils.ObjectType {
	return utils.TreeObjectType
}

// Entries returns a copy of the tree entries in stored order
func (t *Tree) Entries() []TreeEntry {
	return slices.Clone(t.entries)
}

func (t *Tree) Len() int {
	return len(t.entries)
}

// Size returns the size of the tree content
func (t *Tree) Size() int {
	return len(t.content)
}

// Content returns the raw tree content
func (t *Tree) Content() []byte {
	return t.content
}

func (t *Tree) Data() []byte {
	return encodeObject(utils.TreeObjectType, t.content)
}

// String returns a human-readable representation
func (t *Tree) String() string {
	return fmt.Sprintf("Tree{hash: %s, entries: %d}", t.hash, len(t.entries))
}

// FindEntry finds an entry by name
func (t *Tree) FindEntry(name string) (TreeEntry, bool) {
	for _, entry := range t.entries {
		if entry.Name() == name {
			return entry, true
		}
	}
	return TreeEntry{}, false
}

// WithEntry returns a new tree where entry replaces the entry of the same
// name, or is added when no such entry exists. Every other entry is kept
// as is.
func (t *Tree) WithEntry(entry TreeEntry) (*Tree, error) {
	entries := make([]TreeEntry, 0, len(t.entries)+1)
	for _, e := range t.entries {
		if e.name != entry.name {
			entries = append(entries, e)
		}
	}
	return NewTree(append(entries, entry))
}

// WithoutEntry returns a new tree lacking the named entry.
func (t *Tree) WithoutEntry(name string) (*Tree, error) {
	entries := make([]TreeEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.name != name {
			entries = append(entries, e)
		}
	}
	return NewTree(entries)
}
