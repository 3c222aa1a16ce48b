package objects

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/utils"
)

var (
	// ErrObjectNotFound is returned when no loose object exists for a hash.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidHash is returned for ids that are not 40 lowercase hex chars.
	ErrInvalidHash = errors.New("invalid object hash")

	// ErrTypeMismatch is returned when an object exists but has another type.
	ErrTypeMismatch = errors.New("object type mismatch")
)

// ObjectStore manages loose objects under .git/objects.
// Objects are immutable once written, so reads need no coordination with
// writers: files are written to a temp name and renamed into place.
type ObjectStore struct {
	objectsDir string
	logger     *zap.Logger
}

func NewObjectStore(gitDir string, logger *zap.Logger) *ObjectStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectStore{
		objectsDir: filepath.Join(gitDir, constants.Objects),
		logger:     logger,
	}
}

func (store *ObjectStore) objectPath(hash string) string {
	return filepath.Join(store.objectsDir, hash[:constants.HashDirPrefixLength], hash[constants.HashDirPrefixLength:])
}

// Store saves an object to objects/<first 2 chars>/<rest>.
// Returns nil if object already exists.
func (store *ObjectStore) Store(obj Object) error {
	hash := obj.Hash()
	if !utils.IsValidHash(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	objectFile := store.objectPath(hash)
	objectDir := filepath.Dir(objectFile)

	// Check if object already exists (content-addressable)
	_, err := os.Stat(objectFile)
	if err == nil {
		store.logger.Debug("object already exists", zap.String("hash", hash))
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(objectDir, constants.DirPerms); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	compressedData, err := compressObject(obj)
	if err != nil {
		return fmt.Errorf("failed to compress object: %w", err)
	}

	// Write under a temp name first so concurrent readers never observe a
	// partially written object.
	tmp, err := os.CreateTemp(objectDir, "tmp_obj_*")
	if err != nil {
		return fmt.Errorf("failed to create temp object file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressedData); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close object file: %w", err)
	}
	if err := os.Chmod(tmpName, constants.ObjectPerms); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod object file: %w", err)
	}
	if err := os.Rename(tmpName, objectFile); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move object file into place: %w", err)
	}

	store.logger.Debug("stored object",
		zap.String("hash", hash),
		zap.String("type", string(obj.Type())))
	return nil
}

func compressObject(obj Object) ([]byte, error) {
	var buffer bytes.Buffer
	writer := zlib.NewWriter(&buffer)

	if _, err := writer.Write(obj.Data()); err != nil {
		return nil, err
	}

	// Call Close in order to flush any buffered data
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// ReadRaw reads, decompresses and verifies an object, returning its type
// and body.
func (store *ObjectStore) ReadRaw(hash string) (utils.ObjectType, []byte, error) {
	if !utils.IsValidHash(hash) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	compressedData, err := os.ReadFile(store.objectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("failed to read object file %s: %w (%w)", hash, ErrObjectNotFound, err)
		}
		return "", nil, fmt.Errorf("failed to read object file %s: %w", hash, err)
	}

	reader, err := zlib.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create new reader for decompressed data: %w", err)
	}
	defer reader.Close()

	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(reader); err != nil {
		return "", nil, fmt.Errorf("failed to read decompressed data: %w", err)
	}
	data := buffer.Bytes()

	nullByteIndex := bytes.IndexByte(data, constants.NullByte)
	if nullByteIndex == -1 {
		return "", nil, fmt.Errorf("invalid object format %s: no null byte found", hash)
	}

	objectType, sizeText, found := bytes.Cut(data[:nullByteIndex], []byte(" "))
	if !found {
		return "", nil, fmt.Errorf("invalid object header %s: %q", hash, data[:nullByteIndex])
	}
	content := data[nullByteIndex+1:]
	size, err := strconv.Atoi(string(sizeText))
	if err != nil || size != len(content) {
		return "", nil, fmt.Errorf("invalid object size %s: header %q, content %d bytes", hash, sizeText, len(content))
	}

	computed, err := utils.ComputeHash(content, utils.ObjectType(objectType))
	if err != nil {
		return "", nil, fmt.Errorf("invalid object %s: %w", hash, err)
	}
	if computed != hash {
		return "", nil, fmt.Errorf("hash mismatch: expected %s, got %s", hash, computed)
	}

	return utils.ObjectType(objectType), content, nil
}

// ReadBlob reads a blob from storage by hash
func (store *ObjectStore) ReadBlob(hash string) (*Blob, error) {
	objectType, content, err := store.ReadRaw(hash)
	if err != nil {
		return nil, err
	}
	if objectType != utils.BlobObjectType {
		return nil, fmt.Errorf("%w: %s is a %s, not a blob", ErrTypeMismatch, hash, objectType)
	}
	return &Blob{content: content, hash: hash}, nil
}

// ReadTree reads a tree from storage by hash
func (store *ObjectStore) ReadTree(hash string) (*Tree, error) {
	objectType, content, err := store.ReadRaw(hash)
	if err != nil {
		return nil, err
	}
	if objectType != utils.TreeObjectType {
		return nil, fmt.Errorf("%w: %s is a %s, not a tree", ErrTypeMismatch, hash, objectType)
	}
	return ParseTree(hash, content)
}

// ReadCommit reads a commit from storage by hash
func (store *ObjectStore) ReadCommit(hash string) (*Commit, error) {
	objectType, content, err := store.ReadRaw(hash)
	if err != nil {
		return nil, err
	}
	if objectType != utils.CommitObjectType {
		return nil, fmt.Errorf("%w: %s is a %s, not a commit", ErrTypeMismatch, hash, objectType)
	}
	return ParseCommit(hash, content)
}

// Exists checks if an object exists in storage
func (store *ObjectStore) Exists(hash string) bool {
	if !utils.IsValidHash(hash) {
		return false
	}
	_, err := os.Stat(store.objectPath(hash))
	return err == nil
}
