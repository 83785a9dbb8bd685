package diff

import (
	"strings"
	"testing"

	"github.com/odvcencio/jig/pkg/conflicts"
	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
	"github.com/odvcencio/jig/pkg/workingcopy"
)

func file(t *testing.T, store *object.Store, content string) object.TreeValue {
	t.Helper()
	h, err := store.WriteBlob(&object.Blob{Data: []byte(content)})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	return object.TreeValue{Mode: object.TreeModeFile, Hash: h}
}

func tree(t *testing.T, store *object.Store, files map[string]object.TreeValue) object.Hash {
	t.Helper()
	h, err := workingcopy.BuildTree(store, files)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	return h
}

func TestTrees(t *testing.T) {
	store := object.NewStore(t.TempDir())
	before := tree(t, store, map[string]object.TreeValue{
		"same.txt":    file(t, store, "same\n"),
		"gone.txt":    file(t, store, "gone\n"),
		"dir/mod.txt": file(t, store, "one\ntwo\n"),
	})
	after := tree(t, store, map[string]object.TreeValue{
		"same.txt":    file(t, store, "same\n"),
		"dir/mod.txt": file(t, store, "one\nTWO\n"),
		"dir/new.txt": file(t, store, "new\n"),
	})

	d, err := Trees(store, before, after)
	if err != nil {
		t.Fatalf("Trees: %v", err)
	}
	want := []struct {
		typ  ChangeType
		path string
	}{
		{Modified, "dir/mod.txt"},
		{Added, "dir/new.txt"},
		{Removed, "gone.txt"},
	}
	if len(d.Changes) != len(want) {
		t.Fatalf("expected %d changes, got %d: %+v", len(want), len(d.Changes), d.Changes)
	}
	for i, w := range want {
		if d.Changes[i].Type != w.typ || d.Changes[i].Path != w.path {
			t.Errorf("change %d = %v %s, want %v %s", i, d.Changes[i].Type, d.Changes[i].Path, w.typ, w.path)
		}
	}

	summary := FormatSummary(d)
	if summary != "M dir/mod.txt\nA dir/new.txt\nD gone.txt\n" {
		t.Errorf("unexpected summary:\n%s", summary)
	}

	text, err := FormatLineDiff(store, d)
	if err != nil {
		t.Fatalf("FormatLineDiff: %v", err)
	}
	for _, want := range []string{
		"--- a/dir/mod.txt\n+++ b/dir/mod.txt\n one\n-two\n+TWO\n",
		"--- /dev/null\n+++ b/dir/new.txt\n+new\n",
		"--- a/gone.txt\n+++ /dev/null\n-gone\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("line diff missing %q:\n%s", want, text)
		}
	}
}

func TestTreesIdentical(t *testing.T) {
	store := object.NewStore(t.TempDir())
	h := tree(t, store, map[string]object.TreeValue{"a": file(t, store, "a")})
	d, err := Trees(store, h, h)
	if err != nil {
		t.Fatalf("Trees: %v", err)
	}
	if len(d.Changes) != 0 {
		t.Fatalf("expected no changes, got %+v", d.Changes)
	}
	if FormatSummary(d) != "" {
		t.Fatal("expected empty summary")
	}
}

func TestTreesModeChange(t *testing.T) {
	store := object.NewStore(t.TempDir())
	v := file(t, store, "#!/bin/sh\n")
	exec := object.TreeValue{Mode: object.TreeModeExecutable, Hash: v.Hash}
	d, err := Trees(store,
		tree(t, store, map[string]object.TreeValue{"run": v}),
		tree(t, store, map[string]object.TreeValue{"run": exec}))
	if err != nil {
		t.Fatalf("Trees: %v", err)
	}
	if len(d.Changes) != 1 || d.Changes[0].Type != Modified {
		t.Fatalf("unexpected changes %+v", d.Changes)
	}
	text, err := FormatLineDiff(store, d)
	if err != nil {
		t.Fatalf("FormatLineDiff: %v", err)
	}
	if !strings.Contains(text, "mode 100644 -> 100755") {
		t.Errorf("missing mode line:\n%s", text)
	}
}

func TestConflictsListed(t *testing.T) {
	store := object.NewStore(t.TempDir())
	m := merge.Three(file(t, store, "base\n"), file(t, store, "left\n"), file(t, store, "right\n"))
	id, err := store.WriteConflict(conflicts.ToObject(m))
	if err != nil {
		t.Fatalf("WriteConflict: %v", err)
	}
	d, err := Trees(store,
		tree(t, store, map[string]object.TreeValue{"f": file(t, store, "base\n")}),
		tree(t, store, map[string]object.TreeValue{"f": {Mode: object.TreeModeConflict, Hash: id}}))
	if err != nil {
		t.Fatalf("Trees: %v", err)
	}
	if got := d.Conflicts(); len(got) != 1 || got[0] != "f" {
		t.Fatalf("Conflicts() = %v", got)
	}
	if FormatSummary(d) != "C f\n" {
		t.Errorf("unexpected summary %q", FormatSummary(d))
	}
	text, err := FormatLineDiff(store, d)
	if err != nil {
		t.Fatalf("FormatLineDiff: %v", err)
	}
	if !strings.Contains(text, "+<<<<<<< conflict 1 of 1") {
		t.Errorf("conflict markers not shown:\n%s", text)
	}
}
