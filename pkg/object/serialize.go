package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	mode hash name
//
// The name comes last so it may contain spaces.
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		mode := e.Mode
		if strings.TrimSpace(mode) == "" {
			mode = TreeModeFile
		}
		fmt.Fprintf(&buf, "%s %s %s\n", mode, e.Hash, e.Name)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 || parts[2] == "" {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		if err := checkTreeMode(parts[0]); err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name: parts[2],
			Mode: parts[0],
			Hash: Hash(parts[1]),
		})
	}
	return tr, nil
}

func checkTreeMode(mode string) error {
	switch mode {
	case TreeModeDir, TreeModeFile, TreeModeExecutable, TreeModeConflict:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// ConflictObj
// ---------------------------------------------------------------------------

// MarshalConflict serializes a ConflictObj, one term per line in order:
//
//	remove mode hash
//	add mode hash
//
// An absent term is written as "remove -" or "add -".
func MarshalConflict(c *ConflictObj) []byte {
	var buf bytes.Buffer
	writeTerm := func(kind string, v TreeValue) {
		if v.IsAbsent() {
			fmt.Fprintf(&buf, "%s -\n", kind)
			return
		}
		fmt.Fprintf(&buf, "%s %s %s\n", kind, v.Mode, v.Hash)
	}
	for _, v := range c.Removes {
		writeTerm("remove", v)
	}
	for _, v := range c.Adds {
		writeTerm("add", v)
	}
	return buf.Bytes()
}

// UnmarshalConflict parses a ConflictObj from its serialized form.
func UnmarshalConflict(data []byte) (*ConflictObj, error) {
	c := &ConflictObj{}
	text := strings.TrimRight(string(data), "\n")
	for _, line := range strings.Split(text, "\n") {
		kind, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal conflict: malformed line %q", line)
		}
		var v TreeValue
		if rest != "-" {
			mode, h, ok := strings.Cut(rest, " ")
			if !ok {
				return nil, fmt.Errorf("unmarshal conflict: malformed term %q", line)
			}
			if err := checkTreeMode(mode); err != nil {
				return nil, fmt.Errorf("unmarshal conflict: %w", err)
			}
			v = TreeValue{Mode: mode, Hash: Hash(h)}
		}
		switch kind {
		case "remove":
			c.Removes = append(c.Removes, v)
		case "add":
			c.Adds = append(c.Adds, v)
		default:
			return nil, fmt.Errorf("unmarshal conflict: unknown term kind %q", kind)
		}
	}
	if len(c.Adds) != len(c.Removes)+1 {
		return nil, fmt.Errorf("unmarshal conflict: %d adds for %d removes", len(c.Adds), len(c.Removes))
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (one or more)
//	change C
//	author Name <email> unix +hhmm
//	committer Name <email> unix +hhmm
//	signature S  (optional)
//
//	description
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "change %s\n", c.ChangeID)
	fmt.Fprintf(&buf, "author %s\n", formatSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", formatSignature(c.Committer))
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Description)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/description separator")
	}
	header := string(data[:idx])

	c := &CommitObj{Description: string(data[idx+2:])}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "change":
			c.ChangeID = ChangeID(val)
		case "author", "committer":
			sig, err := parseSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %s: %w", key, err)
			}
			if key == "author" {
				c.Author = sig
			} else {
				c.Committer = sig
			}
		case "signature":
			c.Signature = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}

func formatSignature(s Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

func parseSignature(val string) (Signature, error) {
	open := strings.LastIndexByte(val, '<')
	closeIdx := strings.LastIndexByte(val, '>')
	if open < 0 || closeIdx < open {
		return Signature{}, fmt.Errorf("malformed signature %q", val)
	}
	sig := Signature{
		Name:  strings.TrimSuffix(val[:open], " "),
		Email: val[open+1 : closeIdx],
	}
	fields := strings.Fields(val[closeIdx+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("malformed signature time %q", val)
	}
	unix, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}
	zone, err := time.Parse("-0700", fields[1])
	if err != nil {
		return Signature{}, fmt.Errorf("bad timezone %q: %w", fields[1], err)
	}
	sig.When = time.Unix(unix, 0).In(zone.Location())
	return sig, nil
}
