package objects

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/utils"
)

// Represents commit author/committer
type Author struct {
	Name      string
	Email     string
	Timestamp time.Time
}

func (a Author) String() string {
	return fmt.Sprintf("%s <%s>",
		a.Name,
		a.Email)
}

// signature renders the author line payload: "Name <email> <unix> <±HHMM>".
func (a Author) signature() string {
	_, offset := a.Timestamp.Zone()
	return fmt.Sprintf("%s <%s> %d %s", a.Name, a.Email, a.Timestamp.Unix(), calculateTimezone(offset))
}

// Represents a snapshot of the repository
type Commit struct {
	hash      string
	treeHash  string
	parents   []string
	author    Author
	committer Author
	message   string
	content   []byte
}

// NewCommit builds a commit with at most one parent; an empty parentHash
// creates a root commit. A non-empty message is terminated with a newline.
func NewCommit(treeHash, parentHash, message string, author Author) (*Commit, error) {
	if !utils.IsValidHash(treeHash) {
		return nil, fmt.Errorf("invalid tree hash for commit: %q", treeHash)
	}
	var parents []string
	if parentHash != "" {
		if !utils.IsValidHash(parentHash) {
			return nil, fmt.Errorf("invalid parent hash for commit: %q", parentHash)
		}
		parents = []string{parentHash}
	}
	if len(message) > 0 && message[len(message)-1] != '\n' {
		message += "\n"
	}

	content := buildCommitContent(treeHash, parents, message, author, author)
	hash, err := utils.ComputeHash(content, utils.CommitObjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hash for commit: %w", err)
	}

	return &Commit{
		hash:      hash,
		treeHash:  treeHash,
		parents:   parents,
		author:    author,
		committer: author,
		message:   message,
		content:   content,
	}, nil
}

func NewInitialCommit(treeHash, message string, author Author) (*Commit, error) {
	return NewCommit(treeHash, "", message, author)
}

func buildCommitContent(treeHash string, parents []string, message string, author, committer Author) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s%s\n", constants.CommitTreePrefix, treeHash)
	for _, parent := range parents {
		fmt.Fprintf(&buf, "%s%s\n", constants.CommitParentPrefix, parent)
	}
	fmt.Fprintf(&buf, "%s%s\n", constants.CommitAuthorPrefix, author.signature())
	fmt.Fprintf(&buf, "%s%s\n", constants.CommitCommitterPrefix, committer.signature())

	// Blank line before message
	buf.WriteByte('\n')
	buf.WriteString(message)

	return buf.Bytes()
}

// ParseCommit decodes raw commit content. Commits written by git (merge
// commits, signed commits) are accepted; unknown headers are skipped and
// the raw content is kept so the id stays stable.
func ParseCommit(hash string, content []byte) (*Commit, error) {
	header, message, found := bytes.Cut(content, []byte("\n\n"))
	if !found {
		return nil, fmt.Errorf("malformed commit %s: missing message separator", hash)
	}

	commit := &Commit{hash: hash, message: string(message), content: content}
	for _, line := range strings.Split(string(header), "\n") {
		switch {
		case strings.HasPrefix(line, constants.CommitTreePrefix):
			commit.treeHash = strings.TrimPrefix(line, constants.CommitTreePrefix)
		case strings.HasPrefix(line, constants.CommitParentPrefix):
			commit.parents = append(commit.parents, strings.TrimPrefix(line, constants.CommitParentPrefix))
		case strings.HasPrefix(line, constants.CommitAuthorPrefix):
			author, err := parseSignature(strings.TrimPrefix(line, constants.CommitAuthorPrefix))
			if err != nil {
				return nil, fmt.Errorf("malformed commit %s author: %w", hash, err)
			}
			commit.author = author
		case strings.HasPrefix(line, constants.CommitCommitterPrefix):
			committer, err := parseSignature(strings.TrimPrefix(line, constants.CommitCommitterPrefix))
			if err != nil {
				return nil, fmt.Errorf("malformed commit %s committer: %w", hash, err)
			}
			commit.committer = committer
		}
	}

	if !utils.IsValidHash(commit.treeHash) {
		return nil, fmt.Errorf("malformed commit %s: invalid tree %q", hash, commit.treeHash)
	}
	return commit, nil
}

// parseSignature reads "Name <email> <unix> <±HHMM>".
func parseSignature(s string) (Author, error) {
	open := strings.LastIndex(s, " <")
	closing := strings.LastIndex(s, "> ")
	if open < 0 || closing < open {
		return Author{}, fmt.Errorf("invalid signature %q", s)
	}
	fields := strings.Fields(s[closing+2:])
	if len(fields) != 2 {
		return Author{}, fmt.Errorf("invalid signature time %q", s)
	}
	unix, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Author{}, fmt.Errorf("invalid signature timestamp %q: %w", fields[0], err)
	}
	offset, err := parseTimezone(fields[1])
	if err != nil {
		return Author{}, err
	}
	return Author{
		Name:      s[:open],
		Email:     s[open+2 : closing],
		Timestamp: time.Unix(unix, 0).In(time.FixedZone("", offset)),
	}, nil
}

func calculateTimezone(offset int) string {
	// offset is in seconds, convert to ±HHMM format
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	hours := offset / constants.SecondsPerHour
	minutes := (offset % constants.SecondsPerHour) / constants.SecondsPerMinute

	return fmt.Sprintf("%c%02d%02d", sign, hours, minutes)
}

func parseTimezone(tz string) (int, error) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return 0, fmt.Errorf("invalid timezone %q", tz)
	}
	hours, err := strconv.Atoi(tz[1:3])
	if err != nil {
		return 0, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	minutes, err := strconv.Atoi(tz[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	offset := hours*constants.SecondsPerHour + minutes*constants.SecondsPerMinute
	if tz[0] == '-' {
		offset = -offset
	}
	return offset, nil
}

func (c *Commit) Hash() string {
	return c.hash
}

func (c *Commit) Type() utils.ObjectType {
	return utils.CommitObjectType
}

func (c *Commit) TreeHash() string {
	return c.treeHash
}

// ParentHash returns the first parent, or "" for a root commit.
func (c *Commit) ParentHash() string {
	if len(c.parents) == 0 {
		return ""
	}
	return c.parents[0]
}

func (c *Commit) Parents() []string {
	return c.parents
}

func (c *Commit) Author() Author {
	return c.author
}

func (c *Commit) Committer() Author {
	return c.committer
}

func (c *Commit) Message() string {
	return c.message
}

func (c *Commit) Content() []byte {
	return c.content
}

func (c *Commit) Size() int {
	return len(c.content)
}

func (c *Commit) Data() []byte {
	return encodeObject(utils.CommitObjectType, c.content)
}

func (c *Commit) IsInitialCommit() bool {
	return len(c.parents) == 0
}

func (c *Commit) String() string {
	return fmt.Sprintf("Commit{hash: %s, tree: %s, parent: %s, author: %s, message: %q}",
		c.hash, c.treeHash, c.ParentHash(), c.author.String(), c.message)
}
