package serializer

import (
	"context"
	"fmt"
	"slices"

	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/treeops"
	"github.com/KostasZigo/gitree/utils"
)

type Kind string

const (
	KindCreateFile  Kind = "create_file"
	KindCreateDir   Kind = "create_dir"
	KindRename      Kind = "rename"
	KindDelete      Kind = "delete"
	KindSaveContent Kind = "save_content"
	KindMove        Kind = "move"
	KindExclusive   Kind = "exclusive"
)

// Command is a mutation request. The set of implementations is closed;
// every variant lives in this file.
type Command interface {
	Kind() Kind
	// Target is the repository path the command acts on, for logs and
	// the journal.
	Target() string
	// Message is the commit message recorded for the command.
	Message() string

	apply(rw objects.ReadWriter, rootID string) (string, error)
}

// CreateFile creates Rel under the directory Path. Directories between
// Rel[0] and the file are created too.
type CreateFile struct {
	Path    []string
	Rel     []string
	Content []byte
}

func (c CreateFile) Kind() Kind { return KindCreateFile }

func (c CreateFile) Target() string { return utils.JoinPath(slices.Concat(c.Path, c.Rel)) }

func (c CreateFile) Message() string { return "Create " + c.Target() }

func (c CreateFile) apply(rw objects.ReadWriter, rootID string) (string, error) {
	return treeops.CreateFile(rw, rootID, c.Path, c.Rel, c.Content)
}

// CreateDir creates an empty directory Name under Path.
type CreateDir struct {
	Path []string
	Name string
}

func (c CreateDir) Kind() Kind { return KindCreateDir }

func (c CreateDir) Target() string { return utils.JoinPath(append(slices.Clone(c.Path), c.Name)) }

func (c CreateDir) Message() string { return "Create directory " + c.Target() }

func (c CreateDir) apply(rw objects.ReadWriter, rootID string) (string, error) {
	return treeops.CreateDir(rw, rootID, c.Path, c.Name)
}

// Rename renames PrevName under Path to NewName. PrevID, when set, must
// match the entry's current id.
type Rename struct {
	Path     []string
	PrevName string
	PrevID   string
	NewName  string
}

func (c Rename) Kind() Kind { return KindRename }

func (c Rename) Target() string { return utils.JoinPath(append(slices.Clone(c.Path), c.PrevName)) }

func (c Rename) Message() string {
	return fmt.Sprintf("Rename %s to %s", c.Target(), c.NewName)
}

func (c Rename) apply(rw objects.ReadWriter, rootID string) (string, error) {
	return treeops.Rename(rw, rootID, c.Path, c.PrevName, c.PrevID, c.NewName)
}

// Delete removes the item at Path.
type Delete struct {
	Path       []string
	ExpectedID string
}

func (c Delete) Kind() Kind { return KindDelete }

func (c Delete) Target() string { return utils.JoinPath(c.Path) }

func (c Delete) Message() string { return "Delete " + c.Target() }

func (c Delete) apply(rw objects.ReadWriter, rootID string) (string, error) {
	return treeops.Delete(rw, rootID, c.Path, c.ExpectedID)
}

// SaveContent replaces the content of the file at Path.
type SaveContent struct {
	Path    []string
	PrevID  string
	Content []byte
}

func (c SaveContent) Kind() Kind { return KindSaveContent }

func (c SaveContent) Target() string { return utils.JoinPath(c.Path) }

func (c SaveContent) Message() string { return "Save " + c.Target() }

func (c SaveContent) apply(rw objects.ReadWriter, rootID string) (string, error) {
	return treeops.SaveContent(rw, rootID, c.Path, c.PrevID, c.Content)
}

// Move relocates the item at Path to NewPath.
type Move struct {
	Path       []string
	ExpectedID string
	NewPath    []string
}

func (c Move) Kind() Kind { return KindMove }

func (c Move) Target() string { return utils.JoinPath(c.Path) }

func (c Move) Message() string {
	return fmt.Sprintf("Move %s to %s", c.Target(), utils.JoinPath(c.NewPath))
}

func (c Move) apply(rw objects.ReadWriter, rootID string) (string, error) {
	return treeops.Move(rw, rootID, c.Path, c.ExpectedID, c.NewPath)
}

// exclusive runs task with sole access to the repository. It produces no
// commit of its own.
type exclusive struct {
	name string
	task func(ctx context.Context) error
}

func (c exclusive) Kind() Kind { return KindExclusive }

func (c exclusive) Target() string { return c.name }

func (c exclusive) Message() string { return "" }

func (c exclusive) apply(objects.ReadWriter, string) (string, error) {
	return "", fmt.Errorf("exclusive task %s cannot rewrite trees", c.name)
}
