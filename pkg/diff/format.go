package diff

import (
	"fmt"
	"strings"

	"github.com/odvcencio/jig/pkg/conflicts"
	"github.com/odvcencio/jig/pkg/diff3"
	"github.com/odvcencio/jig/pkg/object"
)

// FormatSummary produces one line per changed path.
//
// Output format:
//
//	M path/to/file
//	A new/file
//	D removed/file
//	C conflicted/file
func FormatSummary(d *TreeDiff) string {
	var b strings.Builder
	for _, c := range d.Changes {
		marker := c.Type.String()
		if c.After.IsConflict() {
			marker = "C"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, c.Path)
	}
	return b.String()
}

// FormatLineDiff produces a unified-diff-style listing of every change.
// Conflicted values are shown as their materialized text, or as a
// description when a term is not a regular file.
//
// Output format for a modified file:
//
//	--- a/path
//	+++ b/path
//	-old line
//	+new line
func FormatLineDiff(store *object.Store, d *TreeDiff) (string, error) {
	var b strings.Builder
	for _, c := range d.Changes {
		before, err := renderValue(store, c.Before)
		if err != nil {
			return "", fmt.Errorf("%s: %w", c.Path, err)
		}
		after, err := renderValue(store, c.After)
		if err != nil {
			return "", fmt.Errorf("%s: %w", c.Path, err)
		}

		switch c.Type {
		case Added:
			fmt.Fprintf(&b, "--- /dev/null\n+++ b/%s\n", c.Path)
		case Removed:
			fmt.Fprintf(&b, "--- a/%s\n+++ /dev/null\n", c.Path)
		case Modified:
			fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", c.Path, c.Path)
			if c.Before.Mode != c.After.Mode {
				fmt.Fprintf(&b, "mode %s -> %s\n", c.Before.Mode, c.After.Mode)
			}
		}
		for _, dl := range diff3.LineDiff(before, after) {
			switch dl.Type {
			case diff3.Delete:
				fmt.Fprintf(&b, "-%s\n", dl.Content)
			case diff3.Insert:
				fmt.Fprintf(&b, "+%s\n", dl.Content)
			case diff3.Equal:
				fmt.Fprintf(&b, " %s\n", dl.Content)
			}
		}
	}
	return b.String(), nil
}

func renderValue(store *object.Store, v object.TreeValue) ([]byte, error) {
	switch {
	case v.IsAbsent():
		return nil, nil
	case v.IsConflict():
		c, err := store.ReadConflict(v.Hash)
		if err != nil {
			return nil, err
		}
		m := conflicts.FromObject(c)
		content, ok, err := conflicts.ReadContent(store, m)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []byte(conflicts.Describe(m)), nil
		}
		return conflicts.Materialize(content), nil
	}
	blob, err := store.ReadBlob(v.Hash)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}
