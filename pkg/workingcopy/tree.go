package workingcopy

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/jig/pkg/object"
)

// FlattenTree returns every non-directory entry of tree keyed by its
// slash-separated path. Conflict entries are included as they are.
func FlattenTree(store *object.Store, tree object.Hash) (map[string]object.TreeValue, error) {
	out := make(map[string]object.TreeValue)
	if err := flattenInto(store, tree, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(store *object.Store, h object.Hash, prefix string, out map[string]object.TreeValue) error {
	tr, err := store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree %s: %w", h.Short(12), err)
	}
	for _, e := range tr.Entries {
		p := e.Name
		if prefix != "" {
			p = path.Join(prefix, e.Name)
		}
		if e.IsDir() {
			if err := flattenInto(store, e.Hash, p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = e.Value()
	}
	return nil
}

// BuildTree writes the directory hierarchy for a flat path map and returns
// the root tree id.
func BuildTree(store *object.Store, files map[string]object.TreeValue) (object.Hash, error) {
	return buildDir(store, files, "")
}

func buildDir(store *object.Store, files map[string]object.TreeValue, prefix string) (object.Hash, error) {
	direct := make(map[string]object.TreeValue)
	subdirs := make(map[string]struct{})
	for p, v := range files {
		rel := p
		if prefix != "" {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rel = p[len(prefix)+1:]
		}
		if dir, _, ok := strings.Cut(rel, "/"); ok {
			subdirs[dir] = struct{}{}
		} else {
			direct[rel] = v
		}
	}

	names := make([]string, 0, len(direct)+len(subdirs))
	for name := range direct {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := direct[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]object.TreeEntry, 0, len(names))
	for _, name := range names {
		if v, ok := direct[name]; ok {
			entries = append(entries, object.TreeEntry{Name: name, Mode: v.Mode, Hash: v.Hash})
			continue
		}
		child := name
		if prefix != "" {
			child = prefix + "/" + name
		}
		h, err := buildDir(store, files, child)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", child, err)
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: object.TreeModeDir, Hash: h})
	}
	h, err := store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree %q: %w", prefix, err)
	}
	return h, nil
}
