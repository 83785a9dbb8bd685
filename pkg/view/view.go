// Package view holds the snapshot of repository state recorded by every
// operation: visible heads, bookmarks, tags and working-copy commits.
package view

import (
	"sort"

	"github.com/odvcencio/jig/pkg/object"
)

// View is the complete, immutable-by-convention repository state at one
// operation. Mutations happen on a copy made with Clone.
type View struct {
	HeadIDs         map[object.Hash]struct{}
	LocalBookmarks  map[string]RefTarget
	RemoteBookmarks map[RemoteRefSymbol]RemoteRef
	Tags            map[string]RefTarget
	WorkingCopies   map[string]object.Hash
}

// New returns an empty view.
func New() *View {
	return &View{
		HeadIDs:         make(map[object.Hash]struct{}),
		LocalBookmarks:  make(map[string]RefTarget),
		RemoteBookmarks: make(map[RemoteRefSymbol]RemoteRef),
		Tags:            make(map[string]RefTarget),
		WorkingCopies:   make(map[string]object.Hash),
	}
}

// Root returns the view of an empty repository: only the root commit is
// visible.
func Root() *View {
	v := New()
	v.HeadIDs[object.RootCommitID] = struct{}{}
	return v
}

// Clone returns a deep copy of v.
func (v *View) Clone() *View {
	out := New()
	for id := range v.HeadIDs {
		out.HeadIDs[id] = struct{}{}
	}
	for k, t := range v.LocalBookmarks {
		out.LocalBookmarks[k] = t
	}
	for k, r := range v.RemoteBookmarks {
		out.RemoteBookmarks[k] = r
	}
	for k, t := range v.Tags {
		out.Tags[k] = t
	}
	for k, id := range v.WorkingCopies {
		out.WorkingCopies[k] = id
	}
	return out
}

// Heads returns the head ids sorted.
func (v *View) Heads() []object.Hash {
	out := make([]object.Hash, 0, len(v.HeadIDs))
	for id := range v.HeadIDs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (v *View) AddHead(id object.Hash)    { v.HeadIDs[id] = struct{}{} }
func (v *View) RemoveHead(id object.Hash) { delete(v.HeadIDs, id) }

// LocalBookmark returns the target of a local bookmark, absent if unset.
func (v *View) LocalBookmark(name string) RefTarget {
	if t, ok := v.LocalBookmarks[name]; ok {
		return t
	}
	return Absent()
}

// SetLocalBookmark sets or, for an absent target, deletes a local bookmark.
func (v *View) SetLocalBookmark(name string, t RefTarget) {
	if t.IsAbsent() {
		delete(v.LocalBookmarks, name)
		return
	}
	v.LocalBookmarks[name] = t
}

// RemoteBookmark returns the recorded remote position, absent and
// untracked if unknown.
func (v *View) RemoteBookmark(sym RemoteRefSymbol) RemoteRef {
	if r, ok := v.RemoteBookmarks[sym]; ok {
		return r
	}
	return RemoteRef{Target: Absent()}
}

// SetRemoteBookmark records a remote position. An absent target removes the
// record.
func (v *View) SetRemoteBookmark(sym RemoteRefSymbol, r RemoteRef) {
	if r.Target.IsAbsent() {
		delete(v.RemoteBookmarks, sym)
		return
	}
	v.RemoteBookmarks[sym] = r
}

// Tag returns the target of a tag, absent if unset.
func (v *View) Tag(name string) RefTarget {
	if t, ok := v.Tags[name]; ok {
		return t
	}
	return Absent()
}

// SetTag sets or, for an absent target, deletes a tag.
func (v *View) SetTag(name string, t RefTarget) {
	if t.IsAbsent() {
		delete(v.Tags, name)
		return
	}
	v.Tags[name] = t
}

// BookmarkNames returns every local or remote bookmark name, sorted.
func (v *View) BookmarkNames() []string {
	seen := make(map[string]struct{})
	for name := range v.LocalBookmarks {
		seen[name] = struct{}{}
	}
	for sym := range v.RemoteBookmarks {
		seen[sym.Name] = struct{}{}
	}
	return sortedKeys(seen)
}

// RemoteSymbols returns the remote bookmark symbols sorted by name then
// remote.
func (v *View) RemoteSymbols() []RemoteRefSymbol {
	out := make([]RemoteRefSymbol, 0, len(v.RemoteBookmarks))
	for sym := range v.RemoteBookmarks {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Remote < out[j].Remote
	})
	return out
}

// ReferencedCommits lists every commit a ref or working copy points at.
func (v *View) ReferencedCommits() []object.Hash {
	var out []object.Hash
	for _, t := range v.LocalBookmarks {
		out = append(out, t.AddedIDs()...)
		out = append(out, t.RemovedIDs()...)
	}
	for _, r := range v.RemoteBookmarks {
		out = append(out, r.Target.AddedIDs()...)
		out = append(out, r.Target.RemovedIDs()...)
	}
	for _, t := range v.Tags {
		out = append(out, t.AddedIDs()...)
		out = append(out, t.RemovedIDs()...)
	}
	for _, id := range v.WorkingCopies {
		out = append(out, id)
	}
	return object.UniqueHashes(out)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
