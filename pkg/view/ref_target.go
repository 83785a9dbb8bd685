package view

import (
	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
)

// RefTarget is what a bookmark or tag points at: absent, one commit, or a
// conflict between several candidate commits. The empty hash inside the
// merge stands for "absent". The zero value is absent.
type RefTarget struct {
	m merge.Merge[object.Hash]
}

// Absent returns the target of a missing ref.
func Absent() RefTarget {
	return RefTarget{m: merge.Resolved(object.Hash(""))}
}

// Normal returns a target pointing at a single commit.
func Normal(id object.Hash) RefTarget {
	return RefTarget{m: merge.Resolved(id)}
}

// FromMerge wraps an arbitrary merge of commit ids.
func FromMerge(m merge.Merge[object.Hash]) RefTarget {
	return RefTarget{m: m}
}

// Merge returns the target as a merge of commit ids.
func (t RefTarget) Merge() merge.Merge[object.Hash] {
	if t.m.NumSides() == 0 {
		return merge.Resolved(object.Hash(""))
	}
	return t.m
}

// IsAbsent reports whether the ref does not exist.
func (t RefTarget) IsAbsent() bool {
	id, ok := t.Merge().AsResolved()
	return ok && id == ""
}

// IsPresent reports whether the ref exists.
func (t RefTarget) IsPresent() bool { return !t.IsAbsent() }

// HasConflict reports whether the ref has more than one candidate target.
func (t RefTarget) HasConflict() bool { return !t.Merge().IsResolved() }

// AsNormal returns the single target commit of a non-conflicted present ref.
func (t RefTarget) AsNormal() (object.Hash, bool) {
	id, ok := t.Merge().AsResolved()
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// AddedIDs returns the present commit ids on the added side.
func (t RefTarget) AddedIDs() []object.Hash {
	return presentIDs(t.Merge().Adds())
}

// RemovedIDs returns the present commit ids on the removed side.
func (t RefTarget) RemovedIDs() []object.Hash {
	return presentIDs(t.Merge().Removes())
}

// Equal reports whether both targets have identical terms.
func (t RefTarget) Equal(other RefTarget) bool {
	return t.Merge().Equal(other.Merge())
}

func presentIDs(ids []object.Hash) []object.Hash {
	out := make([]object.Hash, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// RemoteRefState records whether a remote bookmark is tracked by the local
// bookmark of the same name.
type RemoteRefState int

const (
	// RemoteRefNew is an untracked remote bookmark.
	RemoteRefNew RemoteRefState = iota
	// RemoteRefTracking means remote movements merge into the local bookmark.
	RemoteRefTracking
)

func (s RemoteRefState) String() string {
	if s == RemoteRefTracking {
		return "tracking"
	}
	return "new"
}

// RemoteRef is the last known position of a bookmark on a remote.
type RemoteRef struct {
	Target RefTarget
	State  RemoteRefState
}

// IsTracking reports whether the remote ref is tracked.
func (r RemoteRef) IsTracking() bool { return r.State == RemoteRefTracking }

// RemoteRefSymbol names a bookmark on a remote.
type RemoteRefSymbol struct {
	Name   string
	Remote string
}

func (s RemoteRefSymbol) String() string { return s.Name + "@" + s.Remote }
