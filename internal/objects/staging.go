package objects

import (
	"fmt"

	"github.com/KostasZigo/gitree/utils"
)

// Staging buffers the objects produced while a mutation is computed.
// Reads see staged objects first, then fall through to the base. Nothing
// reaches the base until Flush, so a mutation that fails validation part
// way through leaves the object database untouched.
type Staging struct {
	base    ReadWriter
	pending map[string]Object
	order   []string
}

func NewStaging(base ReadWriter) *Staging {
	return &Staging{
		base:    base,
		pending: make(map[string]Object),
	}
}

// Store stages obj. Staging the same id twice is a no-op.
func (s *Staging) Store(obj Object) error {
	hash := obj.Hash()
	if !utils.IsValidHash(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	if _, ok := s.pending[hash]; ok {
		return nil
	}
	s.pending[hash] = obj
	s.order = append(s.order, hash)
	return nil
}

func (s *Staging) ReadTree(hash string) (*Tree, error) {
	if obj, ok := s.pending[hash]; ok {
		tree, isTree := obj.(*Tree)
		if !isTree {
			return nil, fmt.Errorf("%w: %s is a %s, not a tree", ErrTypeMismatch, hash, obj.Type())
		}
		return tree, nil
	}
	return s.base.ReadTree(hash)
}

// Len returns the number of staged objects.
func (s *Staging) Len() int {
	return len(s.order)
}

// Flush writes staged objects to the base in the order they were staged,
// which is children before parents.
func (s *Staging) Flush() error {
	for _, hash := range s.order {
		if err := s.base.Store(s.pending[hash]); err != nil {
			return fmt.Errorf("failed to flush object %s: %w", hash, err)
		}
	}
	s.Discard()
	return nil
}

// Discard drops every staged object.
func (s *Staging) Discard() {
	s.pending = make(map[string]Object)
	s.order = nil
}
