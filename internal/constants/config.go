package constants

import (
	"os"
	"time"
)

// Command name constants used in tests and error messages.
// Cobra Use fields remain inline for CLI discoverability.
const (
	InitCmdName       = "init"
	HashObjectCmdName = "hash-object"
	RootCmdName       = "root"
	ShowCmdName       = "show"
	ListCmdName       = "ls"
	MkdirCmdName      = "mkdir"
	CreateFileCmdName = "create-file"
	RenameCmdName     = "rename"
	RemoveCmdName     = "rm"
	MoveCmdName       = "mv"
	SaveCmdName       = "save"
	JournalCmdName    = "journal"
	SyncCmdName       = "sync"
)

// Repository directory and file names follow the git on-disk layout so the
// sync reconciler can drive the same repository with the git binary.
const (
	// GitDir is the repository metadata directory.
	GitDir = ".git"

	// Objects stores content-addressable objects (blobs, trees, commits).
	Objects = "objects"

	// Refs contains branch and tag references.
	Refs = "refs"

	// Heads stores branch pointers under refs/.
	Heads = "heads"

	// Tags stores tag pointers under refs/.
	Tags = "tags"

	// Remotes stores remote tracking branches under refs/.
	Remotes = "remotes"

	// Head points to current branch.
	Head = "HEAD"

	// GitConfig is the repository-local git configuration file.
	GitConfig = "config"

	// JournalDir holds the badger operation journal inside GitDir.
	JournalDir = "gitree-journal"

	// LockSuffix marks a ref being rewritten.
	LockSuffix = ".lock"
)

// Default repository values.
const (
	// DefaultBranch is the initial branch name for new repositories.
	DefaultBranch = "main"

	// DefaultRefPrefix is prepended to branch names in HEAD file.
	DefaultRefPrefix = "ref: refs/heads/"

	// DefaultRemote is the remote the reconciler synchronizes with.
	DefaultRemote = "origin"

	// DefaultAuthorName and DefaultAuthorEmail sign commits when no author is configured.
	DefaultAuthorName  = "gitree"
	DefaultAuthorEmail = "gitree@localhost"
)

// File system permissions for created files and directories.
const (
	// DirPerms grants read/write/execute to owner, read/execute to others (rwxr-xr-x).
	DirPerms os.FileMode = 0755

	// FilePerms grants read/write to owner, read-only to others (rw-r--r--).
	FilePerms os.FileMode = 0644

	// ObjectPerms marks loose objects read-only, as git does.
	ObjectPerms os.FileMode = 0444
)

// Cryptographic hash properties.
const (
	// HashByteLength is byte length of SHA-1 hash (20 bytes).
	HashByteLength = 20

	// HashStringLength is hex string length of SHA-1 hash (40 characters).
	HashStringLength = 40

	// HashDirPrefixLength is subdirectory prefix length under objects/ (2 characters).
	HashDirPrefixLength = 2
)

// Git object type prefixes used in object headers and commit metadata.
const (
	// CommitTreePrefix marks the tree line in commit objects.
	CommitTreePrefix = "tree "

	// CommitParentPrefix marks parent commit lines in commit objects.
	CommitParentPrefix = "parent "

	// CommitAuthorPrefix marks author metadata in commit objects.
	CommitAuthorPrefix = "author "

	// CommitCommitterPrefix marks committer metadata in commit objects.
	CommitCommitterPrefix = "committer "
)

// Object format constants.
const (
	// NullByte separates header from content in Git objects.
	NullByte = '\x00'
)

// Time conversion constants for timezone formatting.
const (
	SecondsPerHour   = 3600
	SecondsPerMinute = 60
)

// Sync reconciler defaults.
const (
	// SyncInterval is the period between reconciliation cycles.
	SyncInterval = 5 * time.Second

	// SyncCommandTimeout bounds every git invocation made by the reconciler.
	SyncCommandTimeout = 7 * time.Second

	// SyncRestartDelay is how long the supervisor waits before restarting a failed reconciler.
	SyncRestartDelay = 10 * time.Second

	// WorktreeAlignTimeout bounds bringing a lagging working tree up to the branch tip at open.
	WorktreeAlignTimeout = 30 * time.Second

	// AutoSaveMessage is the commit message for uncommitted working tree changes.
	AutoSaveMessage = "auto save"
)

// ResolverCacheSize is the default number of decoded objects kept by the resolver.
const ResolverCacheSize = 4096

// Default config file name looked up in the repository root.
const ConfigFileName = ".gitree.yaml"

// Logging defaults.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "console"
)
