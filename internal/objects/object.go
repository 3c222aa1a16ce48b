package objects

import (
	"strconv"

	"github.com/KostasZigo/gitree/utils"
)

// Object represents any object that can be stored.
// Blobs, trees and commits all implement this interface.
type Object interface {
	// Hash returns the SHA-1 hash of the object
	Hash() string

	// Type returns the git object type written in the header
	Type() utils.ObjectType

	// Content returns the object body without header
	Content() []byte

	// Data returns the complete object data including header
	// Format: "<type> <size>\0<content>"
	Data() []byte
}

// ReadWriter is the object access a tree rewrite needs: read trees that
// may have been staged earlier in the same mutation, and stage new objects.
type ReadWriter interface {
	ReadTree(hash string) (*Tree, error)
	Store(obj Object) error
}

func encodeObject(objectType utils.ObjectType, content []byte) []byte {
	header := string(objectType) + " " + strconv.Itoa(len(content)) + "\x00"
	data := make([]byte, 0, len(header)+len(content))
	data = append(data, header...)
	return append(data, content...)
}
