package treeops

import (
	"slices"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/utils"
)

// CreateFile adds a file at path/rel. When rel has more than one segment
// the directories between rel[0] and the file are created as well.
func CreateFile(rw objects.ReadWriter, rootID string, path, rel []string, content []byte) (string, error) {
	if len(rel) == 0 {
		return "", apperr.Invalid(utils.JoinPath(path), "file name must not be empty")
	}
	if err := validatePath(path, rel); err != nil {
		return "", err
	}

	return Rewrite(rw, rootID, path, func(tree *objects.Tree) (string, error) {
		if _, exists := tree.FindEntry(rel[0]); exists {
			return "", apperr.AlreadyExists(utils.JoinPath(append(slices.Clone(path), rel[0])))
		}

		blob := objects.NewBlob(content)
		if _, err := store(rw, blob); err != nil {
			return "", err
		}
		entry, err := nestEntry(rw, rel, objects.ModeRegularFile, blob.Hash())
		if err != nil {
			return "", err
		}
		return insert(rw, tree, entry)
	})
}

// nestEntry returns the entry for rel[0] whose subtree leads down to a
// single leaf named rel[len(rel)-1].
func nestEntry(rw objects.ReadWriter, rel []string, mode objects.FileMode, hash string) (objects.TreeEntry, error) {
	entry, err := objects.NewTreeEntry(mode, rel[len(rel)-1], hash)
	if err != nil {
		return objects.TreeEntry{}, apperr.Internal("build entry", err)
	}
	for i := len(rel) - 2; i >= 0; i-- {
		dir, err := objects.NewTree([]objects.TreeEntry{*entry})
		if err != nil {
			return objects.TreeEntry{}, apperr.Internal("build tree", err)
		}
		if _, err := store(rw, dir); err != nil {
			return objects.TreeEntry{}, err
		}
		if entry, err = objects.NewTreeEntry(objects.ModeDirectory, rel[i], dir.Hash()); err != nil {
			return objects.TreeEntry{}, apperr.Internal("build entry", err)
		}
	}
	return *entry, nil
}

// CreateDir adds an empty directory named name under path.
func CreateDir(rw objects.ReadWriter, rootID string, path []string, name string) (string, error) {
	if err := validatePath(path, []string{name}); err != nil {
		return "", err
	}

	return Rewrite(rw, rootID, path, func(tree *objects.Tree) (string, error) {
		if _, exists := tree.FindEntry(name); exists {
			return "", apperr.AlreadyExists(utils.JoinPath(append(slices.Clone(path), name)))
		}
		empty := objects.EmptyTree()
		if _, err := store(rw, empty); err != nil {
			return "", err
		}
		entry, err := objects.NewTreeEntry(objects.ModeDirectory, name, empty.Hash())
		if err != nil {
			return "", apperr.Internal("build entry", err)
		}
		return insert(rw, tree, *entry)
	})
}

// Rename changes the name of the entry prevName under path. Renaming an
// entry to its own name leaves the tree unchanged.
func Rename(rw objects.ReadWriter, rootID string, path []string, prevName, prevID, newName string) (string, error) {
	if err := validatePath(path, []string{prevName, newName}); err != nil {
		return "", err
	}

	return Rewrite(rw, rootID, path, func(tree *objects.Tree) (string, error) {
		entry, err := expectEntry(tree, path, prevName, prevID)
		if err != nil {
			return "", err
		}
		if newName == prevName {
			return tree.Hash(), nil
		}
		if _, exists := tree.FindEntry(newName); exists {
			return "", apperr.AlreadyExists(utils.JoinPath(append(slices.Clone(path), newName)))
		}
		without, err := tree.WithoutEntry(prevName)
		if err != nil {
			return "", apperr.Internal("rebuild tree", err)
		}
		return insert(rw, without, entry.WithName(newName))
	})
}

// Delete removes the entry named by itemPath.
func Delete(rw objects.ReadWriter, rootID string, itemPath []string, expectedID string) (string, error) {
	parent, name, err := splitItem(itemPath)
	if err != nil {
		return "", err
	}

	return Rewrite(rw, rootID, parent, func(tree *objects.Tree) (string, error) {
		if _, err := expectEntry(tree, parent, name, expectedID); err != nil {
			return "", err
		}
		return remove(rw, tree, name)
	})
}

// SaveContent replaces the content of the file at itemPath and keeps its
// mode.
func SaveContent(rw objects.ReadWriter, rootID string, itemPath []string, prevID string, content []byte) (string, error) {
	parent, name, err := splitItem(itemPath)
	if err != nil {
		return "", err
	}

	return Rewrite(rw, rootID, parent, func(tree *objects.Tree) (string, error) {
		entry, err := expectEntry(tree, parent, name, prevID)
		if err != nil {
			return "", err
		}
		if entry.IsDirectory() {
			return "", apperr.Invalid(utils.JoinPath(itemPath), "cannot save content to a directory")
		}
		blob := objects.NewBlob(content)
		if _, err := store(rw, blob); err != nil {
			return "", err
		}
		return insert(rw, tree, entry.WithHash(blob.Hash()))
	})
}

// Move detaches the entry at itemPath and attaches it, with the same id and
// mode, at newPath. The destination's parent directory must already exist.
func Move(rw objects.ReadWriter, rootID string, itemPath []string, expectedID string, newPath []string) (string, error) {
	srcParent, srcName, err := splitItem(itemPath)
	if err != nil {
		return "", err
	}
	dstParent, dstName, err := splitItem(newPath)
	if err != nil {
		return "", err
	}

	var moved objects.TreeEntry
	interim, err := Rewrite(rw, rootID, srcParent, func(tree *objects.Tree) (string, error) {
		entry, err := expectEntry(tree, srcParent, srcName, expectedID)
		if err != nil {
			return "", err
		}
		moved = entry
		return remove(rw, tree, srcName)
	})
	if err != nil {
		return "", err
	}

	// The destination is resolved against the interim root. A destination
	// inside the moved subtree therefore no longer exists.
	return Rewrite(rw, interim, dstParent, func(tree *objects.Tree) (string, error) {
		if _, exists := tree.FindEntry(dstName); exists {
			return "", apperr.AlreadyExists(utils.JoinPath(newPath))
		}
		return insert(rw, tree, moved.WithName(dstName))
	})
}

func expectEntry(tree *objects.Tree, parent []string, name, expectedID string) (objects.TreeEntry, error) {
	entry, ok := tree.FindEntry(name)
	if !ok {
		return objects.TreeEntry{}, apperr.NotFound(utils.JoinPath(append(slices.Clone(parent), name)))
	}
	if expectedID != "" && entry.Hash() != expectedID {
		return objects.TreeEntry{}, apperr.Conflict(utils.JoinPath(append(slices.Clone(parent), name)),
			"expected %s but found %s", expectedID, entry.Hash())
	}
	return entry, nil
}

func insert(rw objects.ReadWriter, tree *objects.Tree, entry objects.TreeEntry) (string, error) {
	updated, err := tree.WithEntry(entry)
	if err != nil {
		return "", apperr.Internal("rebuild tree", err)
	}
	return store(rw, updated)
}

func remove(rw objects.ReadWriter, tree *objects.Tree, name string) (string, error) {
	updated, err := tree.WithoutEntry(name)
	if err != nil {
		return "", apperr.Internal("rebuild tree", err)
	}
	return store(rw, updated)
}

// splitItem separates a path naming an item into its parent and name.
func splitItem(itemPath []string) ([]string, string, error) {
	if len(itemPath) == 0 {
		return nil, "", apperr.Invalid("/", "path must name an item, not the root")
	}
	if err := validatePath(itemPath, nil); err != nil {
		return nil, "", err
	}
	return itemPath[:len(itemPath)-1], itemPath[len(itemPath)-1], nil
}

func validatePath(path, names []string) error {
	for _, segment := range slices.Concat(path, names) {
		if err := utils.ValidateName(segment); err != nil {
			return apperr.Invalid(utils.JoinPath(path), "%v", err)
		}
	}
	return nil
}
