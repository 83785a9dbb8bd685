package conflicts

import (
	"fmt"
	"strings"

	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
)

// FromObject converts a stored conflict into a merge of tree values.
func FromObject(c *object.ConflictObj) merge.Merge[object.TreeValue] {
	return merge.New(c.Removes, c.Adds)
}

// ToObject converts a merge of tree values into its stored form.
func ToObject(m merge.Merge[object.TreeValue]) *object.ConflictObj {
	return &object.ConflictObj{Removes: m.Removes(), Adds: m.Adds()}
}

// ReadContent loads the file contents of every term of m. It reports false
// when a term is a directory or a nested conflict; absent terms read as
// empty content.
func ReadContent(store *object.Store, m merge.Merge[object.TreeValue]) (merge.Merge[string], bool, error) {
	for _, v := range m.Terms() {
		if !v.IsAbsent() && !v.IsFile() {
			return merge.Merge[string]{}, false, nil
		}
	}
	content, err := merge.TryMap(m, func(v object.TreeValue) (string, error) {
		if v.IsAbsent() {
			return "", nil
		}
		blob, err := store.ReadBlob(v.Hash)
		if err != nil {
			return "", fmt.Errorf("read conflict term %s: %w", v.Hash, err)
		}
		return string(blob.Data), nil
	})
	if err != nil {
		return merge.Merge[string]{}, false, err
	}
	return content, true, nil
}

// WriteContent stores every term of content as a blob, reusing the modes of
// the matching terms of orig. A term that was absent in orig and is still
// empty stays absent. content must have as many sides as orig.
func WriteContent(store *object.Store, orig merge.Merge[object.TreeValue], content merge.Merge[string]) (merge.Merge[object.TreeValue], error) {
	if content.NumSides() != orig.NumSides() {
		return merge.Merge[object.TreeValue]{}, fmt.Errorf("write conflict content: %d sides, want %d", content.NumSides(), orig.NumSides())
	}
	origTerms := orig.Terms()
	terms := content.Terms()
	out := make([]object.TreeValue, len(terms))
	for i, text := range terms {
		prev := origTerms[i]
		if prev.IsAbsent() && text == "" {
			continue
		}
		h, err := store.WriteBlob(&object.Blob{Data: []byte(text)})
		if err != nil {
			return merge.Merge[object.TreeValue]{}, err
		}
		mode := prev.Mode
		if prev.IsAbsent() {
			mode = object.TreeModeFile
		}
		out[i] = object.TreeValue{Mode: mode, Hash: h}
	}
	return merge.FromTerms(out), nil
}

// Describe renders a conflict that cannot be shown with markers, such as a
// file on one side and a directory on the other.
func Describe(m merge.Merge[object.TreeValue]) string {
	var b strings.Builder
	b.WriteString("Conflict:\n")
	for _, v := range m.Removes() {
		fmt.Fprintf(&b, "  Removing %s\n", describeValue(v))
	}
	for _, v := range m.Adds() {
		fmt.Fprintf(&b, "  Adding %s\n", describeValue(v))
	}
	return b.String()
}

func describeValue(v object.TreeValue) string {
	switch {
	case v.IsAbsent():
		return "nothing"
	case v.IsDir():
		return "tree " + v.Hash.Short(12)
	case v.Mode == object.TreeModeExecutable:
		return "executable file " + v.Hash.Short(12)
	case v.IsConflict():
		return "conflict " + v.Hash.Short(12)
	default:
		return "file " + v.Hash.Short(12)
	}
}
