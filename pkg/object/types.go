package object

import (
	"strings"
	"time"
)

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ChangeID is the stable identity of a change. It is generated once when a
// change is created and carried forward by every rewrite of it.
type ChangeID string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob     ObjectType = "blob"
	TypeTree     ObjectType = "tree"
	TypeConflict ObjectType = "conflict"
	TypeCommit   ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	// TreeModeConflict marks an entry whose hash names a ConflictObj.
	TreeModeConflict = "conflict"
)

var (
	// RootCommitID is the id of the synthetic root commit every history
	// descends from. It is never written to a store.
	RootCommitID = Hash(strings.Repeat("0", 64))
	// RootChangeID is the change id of the root commit.
	RootChangeID = ChangeID(strings.Repeat("0", 32))
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeValue is the value a path has in a tree. The zero value means the
// path is absent.
type TreeValue struct {
	Mode string
	Hash Hash
}

// IsAbsent reports whether v represents a missing path.
func (v TreeValue) IsAbsent() bool { return v.Hash == "" }

func (v TreeValue) IsDir() bool      { return v.Mode == TreeModeDir }
func (v TreeValue) IsConflict() bool { return v.Mode == TreeModeConflict }

// IsFile reports whether v is a regular or executable file.
func (v TreeValue) IsFile() bool {
	return v.Mode == TreeModeFile || v.Mode == TreeModeExecutable
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// Value returns the entry's mode and hash as a TreeValue.
func (e TreeEntry) Value() TreeValue { return TreeValue{Mode: e.Mode, Hash: e.Hash} }

// IsDir reports whether the entry refers to a subtree.
func (e TreeEntry) IsDir() bool { return e.Mode == TreeModeDir }

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name
}

// Entry returns the entry with the given name.
func (t *TreeObj) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// ConflictObj is the persisted form of an unresolved tree value: the states
// that were removed and the states that were added by the merge that
// produced it. len(Adds) is always len(Removes)+1.
type ConflictObj struct {
	Removes []TreeValue
	Adds    []TreeValue
}

// Signature records who made a commit and when.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash    Hash
	Parents     []Hash
	ChangeID    ChangeID
	Author      Signature
	Committer   Signature
	Signature   string
	Description string
}

// IsRoot reports whether c is the synthetic root commit.
func (c *CommitObj) IsRoot() bool {
	return c.ChangeID == RootChangeID && len(c.Parents) == 0
}
