package view

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/jig/pkg/merge"
	"github.com/odvcencio/jig/pkg/object"
)

// Marshal encodes a view canonically: every section sorted, names quoted.
// Equal views always produce identical bytes.
//
//	head H
//	bookmark "name" TARGET
//	remote-bookmark "name" "remote" new|tracking TARGET
//	tag "name" TARGET
//	working-copy "workspace" H
//
// TARGET is a bare hash, "-" for absent, or "conflict" followed by terms
// prefixed with - (remove) or + (add) where "~" marks an absent term.
func Marshal(v *View) []byte {
	var buf bytes.Buffer
	for _, id := range v.Heads() {
		fmt.Fprintf(&buf, "head %s\n", id)
	}
	for _, name := range sortedKeys(v.LocalBookmarks) {
		fmt.Fprintf(&buf, "bookmark %s %s\n", strconv.Quote(name), formatTarget(v.LocalBookmarks[name]))
	}
	for _, sym := range v.RemoteSymbols() {
		r := v.RemoteBookmarks[sym]
		fmt.Fprintf(&buf, "remote-bookmark %s %s %s %s\n",
			strconv.Quote(sym.Name), strconv.Quote(sym.Remote), r.State, formatTarget(r.Target))
	}
	for _, name := range sortedKeys(v.Tags) {
		fmt.Fprintf(&buf, "tag %s %s\n", strconv.Quote(name), formatTarget(v.Tags[name]))
	}
	workspaces := make([]string, 0, len(v.WorkingCopies))
	for ws := range v.WorkingCopies {
		workspaces = append(workspaces, ws)
	}
	sort.Strings(workspaces)
	for _, ws := range workspaces {
		fmt.Fprintf(&buf, "working-copy %s %s\n", strconv.Quote(ws), v.WorkingCopies[ws])
	}
	return buf.Bytes()
}

// Unmarshal parses the encoding produced by Marshal.
func Unmarshal(data []byte) (*View, error) {
	v := New()
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return v, nil
	}
	for _, line := range strings.Split(text, "\n") {
		kind, rest, _ := strings.Cut(line, " ")
		if err := parseLine(v, kind, rest); err != nil {
			return nil, fmt.Errorf("unmarshal view: %q: %w", line, err)
		}
	}
	return v, nil
}

func parseLine(v *View, kind, rest string) error {
	switch kind {
	case "head":
		v.HeadIDs[object.Hash(rest)] = struct{}{}
	case "bookmark", "tag":
		name, rest, err := unquoteField(rest)
		if err != nil {
			return err
		}
		t, err := parseTarget(rest)
		if err != nil {
			return err
		}
		if kind == "tag" {
			v.Tags[name] = t
		} else {
			v.LocalBookmarks[name] = t
		}
	case "remote-bookmark":
		name, rest, err := unquoteField(rest)
		if err != nil {
			return err
		}
		remote, rest, err := unquoteField(rest)
		if err != nil {
			return err
		}
		stateText, rest, _ := strings.Cut(rest, " ")
		var state RemoteRefState
		switch stateText {
		case "new":
			state = RemoteRefNew
		case "tracking":
			state = RemoteRefTracking
		default:
			return fmt.Errorf("unknown remote ref state %q", stateText)
		}
		t, err := parseTarget(rest)
		if err != nil {
			return err
		}
		v.RemoteBookmarks[RemoteRefSymbol{Name: name, Remote: remote}] = RemoteRef{Target: t, State: state}
	case "working-copy":
		ws, rest, err := unquoteField(rest)
		if err != nil {
			return err
		}
		v.WorkingCopies[ws] = object.Hash(rest)
	default:
		return fmt.Errorf("unknown record %q", kind)
	}
	return nil
}

func unquoteField(s string) (string, string, error) {
	q, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", fmt.Errorf("bad quoted name: %w", err)
	}
	name, err := strconv.Unquote(q)
	if err != nil {
		return "", "", err
	}
	return name, strings.TrimPrefix(s[len(q):], " "), nil
}

func formatTarget(t RefTarget) string {
	m := t.Merge()
	if id, ok := m.AsResolved(); ok {
		if id == "" {
			return "-"
		}
		return string(id)
	}
	var b strings.Builder
	b.WriteString("conflict")
	term := func(prefix string, id object.Hash) {
		b.WriteString(" ")
		b.WriteString(prefix)
		if id == "" {
			b.WriteString("~")
		} else {
			b.WriteString(string(id))
		}
	}
	for _, id := range m.Removes() {
		term("-", id)
	}
	for _, id := range m.Adds() {
		term("+", id)
	}
	return b.String()
}

func parseTarget(s string) (RefTarget, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return RefTarget{}, fmt.Errorf("missing target")
	}
	if fields[0] != "conflict" {
		if len(fields) != 1 {
			return RefTarget{}, fmt.Errorf("malformed target %q", s)
		}
		if fields[0] == "-" {
			return Absent(), nil
		}
		return Normal(object.Hash(fields[0])), nil
	}
	var removes, adds []object.Hash
	for _, f := range fields[1:] {
		if len(f) < 2 {
			return RefTarget{}, fmt.Errorf("malformed term %q", f)
		}
		id := object.Hash(f[1:])
		if id == "~" {
			id = ""
		}
		switch f[0] {
		case '-':
			removes = append(removes, id)
		case '+':
			adds = append(adds, id)
		default:
			return RefTarget{}, fmt.Errorf("malformed term %q", f)
		}
	}
	m, err := merge.FromSlices(removes, adds)
	if err != nil {
		return RefTarget{}, err
	}
	return FromMerge(m), nil
}
