package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KostasZigo/gitree/internal/constants"
)

type ObjectType string

const (
	BlobObjectType   ObjectType = "blob"
	TreeObjectType   ObjectType = "tree"
	CommitObjectType ObjectType = "commit"
)

func (ot ObjectType) IsValid() bool {
	switch ot {
	case BlobObjectType, TreeObjectType, CommitObjectType:
		return true
	default:
		return false
	}
}

// ComputeHash calculates the git object id for content of the given type.
func ComputeHash(content []byte, objectType ObjectType) (string, error) {
	if !objectType.IsValid() {
		return "", fmt.Errorf("invalid object type: %s - hash not computed", objectType)
	}

	// format: "ObjectType <size>\0<content>"
	h := sha1.New()
	fmt.Fprintf(h, "%v %d\x00", objectType, len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsValidHash reports whether s is a lowercase 40 character hex object id.
func IsValidHash(s string) bool {
	if len(s) != constants.HashStringLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// BuildDirPath constructs os-agnostic display direcotry path with trailing separator preserving all components.
// Unlike filepath.Join, does not normalize "." or remove redundant separators.
func BuildDirPath(dirs ...string) string {
	return strings.Join(dirs, string(filepath.Separator)) + string(filepath.Separator)
}

// SplitPath turns a slash separated repository path into its segments.
// Leading, trailing and doubled slashes are ignored, so "", "/" and "."
// all name the root.
func SplitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		segments = append(segments, s)
	}
	return segments
}

// JoinPath is the inverse of SplitPath. The root is rendered as "/".
func JoinPath(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return strings.Join(segments, "/")
}

// ValidateName rejects entry names that cannot appear in a tree.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name must not be empty")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is reserved", name)
	case name == constants.GitDir:
		return fmt.Errorf("name %q is reserved for repository metadata", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("name %q contains a path separator or NUL byte", name)
	}
	return nil
}
