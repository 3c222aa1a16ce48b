// Package resolver maps content ids to blobs and trees.
//
// Objects are immutable, so resolution needs no coordination with the
// serializer and any id ever written stays resolvable, including ids no
// longer reachable from the branch tip.
package resolver

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/utils"
)

// Source is the raw object access the resolver decodes from.
type Source interface {
	ReadRaw(hash string) (utils.ObjectType, []byte, error)
}

// Entry is one child of a resolved tree.
type Entry struct {
	Name string
	ID   string
	Kind objects.EntryKind
	Mode objects.FileMode
}

// Object is a resolved blob or tree. Content is set for blobs, Entries for
// trees. Resolved objects are shared through the cache and must be
// treated as read-only.
type Object struct {
	ID      string
	Kind    objects.EntryKind
	Content []byte
	Entries []Entry

	tree *objects.Tree
}

func (o *Object) IsDir() bool {
	return o.Kind == objects.KindDir
}

// Find returns the entry called name.
func (o *Object) Find(name string) (Entry, bool) {
	for _, e := range o.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

type Resolver struct {
	source Source
	cache  *lru.Cache[string, *Object]
	logger *zap.Logger
}

func New(source Source, cacheSize int, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, *Object](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating resolver cache: %w", err)
	}
	return &Resolver{
		source: source,
		cache:  cache,
		logger: logger,
	}, nil
}

// Resolve returns the blob or tree stored under id.
func (r *Resolver) Resolve(id string) (*Object, error) {
	if obj, ok := r.cache.Get(id); ok {
		return obj, nil
	}
	if !utils.IsValidHash(id) {
		return nil, apperr.Invalid(id, "malformed content id")
	}

	objectType, content, err := r.source.ReadRaw(id)
	if errors.Is(err, objects.ErrObjectNotFound) {
		return nil, apperr.NotFound(id)
	}
	if err != nil {
		r.logger.Error("object read failed", zap.String("id", id), zap.Error(err))
		return nil, apperr.Internal("resolve", err)
	}

	var obj *Object
	switch objectType {
	case utils.BlobObjectType:
		obj = &Object{ID: id, Kind: objects.KindFile, Content: content}
	case utils.TreeObjectType:
		tree, err := objects.ParseTree(id, content)
		if err != nil {
			return nil, apperr.Internal("resolve", err)
		}
		obj = treeObject(tree)
	default:
		return nil, apperr.Invalid(id, "content id names a %s, not a blob or tree", objectType)
	}

	r.cache.Add(id, obj)
	return obj, nil
}

func treeObject(tree *objects.Tree) *Object {
	entries := tree.Entries()
	obj := &Object{
		ID:      tree.Hash(),
		Kind:    objects.KindDir,
		Entries: make([]Entry, 0, len(entries)),
		tree:    tree,
	}
	for _, e := range entries {
		obj.Entries = append(obj.Entries, Entry{Name: e.Name(), ID: e.Hash(), Kind: e.Kind(), Mode: e.Mode()})
	}
	return obj
}

// ReadTree resolves id and requires it to be a tree. It satisfies the read
// half of objects.ReadWriter so tree rewrites can use the cache.
func (r *Resolver) ReadTree(id string) (*objects.Tree, error) {
	obj, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	if obj.tree == nil {
		return nil, apperr.NotADirectory(id)
	}
	return obj.tree, nil
}

// ResolvePath walks path from the tree rootID and resolves the final entry.
func (r *Resolver) ResolvePath(rootID string, path []string) (*Object, error) {
	obj, err := r.Resolve(rootID)
	if err != nil {
		return nil, err
	}
	for i, name := range path {
		if !obj.IsDir() {
			return nil, apperr.NotADirectory(utils.JoinPath(path[:i]))
		}
		entry, ok := obj.Find(name)
		if !ok {
			return nil, apperr.NotFound(utils.JoinPath(path[:i+1]))
		}
		if obj, err = r.Resolve(entry.ID); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Cached reports how many decoded objects are held in memory.
func (r *Resolver) Cached() int {
	return r.cache.Len()
}
