// Package treeops rewrites tree objects to apply namespace mutations.
//
// Every mutation is a Terminal function applied to the tree at the end of
// a path. Rewrite rebuilds the ancestors of that tree bottom-up, so a
// mutation at depth d creates at most d+1 new trees and shares every
// untouched subtree and blob with the previous version.
package treeops

import (
	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/utils"
)

// Terminal computes the replacement id for the tree it is given. It must
// validate before it stores anything.
type Terminal func(tree *objects.Tree) (string, error)

// Rewrite applies terminal to the tree reached by following path from
// rootID and returns the id of the rebuilt root.
func Rewrite(rw objects.ReadWriter, rootID string, path []string, terminal Terminal) (string, error) {
	return rewrite(rw, rootID, path, 0, terminal)
}

func rewrite(rw objects.ReadWriter, treeID string, path []string, depth int, terminal Terminal) (string, error) {
	tree, err := rw.ReadTree(treeID)
	if err != nil {
		// The id came from the branch tip or a parent tree, so a missing or
		// mistyped object here is corruption rather than bad input.
		return "", &apperr.Error{Kind: apperr.KindInternal, Op: "read tree", Path: utils.JoinPath(path[:depth]), Err: err}
	}
	if depth == len(path) {
		return terminal(tree)
	}

	name := path[depth]
	child, ok := tree.FindEntry(name)
	if !ok {
		return "", apperr.NotFound(utils.JoinPath(path[:depth+1]))
	}
	if !child.IsDirectory() {
		return "", apperr.NotADirectory(utils.JoinPath(path[:depth+1]))
	}

	newChildID, err := rewrite(rw, child.Hash(), path, depth+1, terminal)
	if err != nil {
		return "", err
	}
	if newChildID == child.Hash() {
		return tree.Hash(), nil
	}

	rebuilt, err := tree.WithEntry(child.WithHash(newChildID))
	if err != nil {
		return "", apperr.Internal("rebuild tree", err)
	}
	return store(rw, rebuilt)
}

// store stages obj and returns its id.
func store(rw objects.ReadWriter, obj objects.Object) (string, error) {
	if err := rw.Store(obj); err != nil {
		return "", apperr.Internal("store "+string(obj.Type()), err)
	}
	return obj.Hash(), nil
}
