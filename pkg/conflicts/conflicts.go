// Package conflicts renders unresolved file contents as text with conflict
// markers and parses edited text back into merge values.
package conflicts

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/odvcencio/jig/pkg/diff3"
	"github.com/odvcencio/jig/pkg/merge"
)

const (
	markerLen   = 7
	startMarker = "<<<<<<<"
	endMarker   = ">>>>>>>"
	addMarker   = "+++++++"
	removeMark  = "-------"

	// noEOLLine follows a term that did not end in a newline.
	noEOLLine = `\ No newline at end of term`
)

// MergeHunks splits a content merge into hunks. Resolved hunks are regions
// every side agrees on after the merge; unresolved hunks keep the terms of
// the region. Two-sided merges are split line by line; merges with more
// sides are kept as a single hunk.
func MergeHunks(m merge.Merge[string]) []merge.Merge[string] {
	m = m.Resolve()
	if v, ok := m.AsResolved(); ok {
		if v == "" {
			return nil
		}
		return []merge.Merge[string]{merge.Resolved(v)}
	}
	if m.NumSides() != 2 {
		return []merge.Merge[string]{m}
	}

	removes, adds := m.Removes(), m.Adds()
	res := diff3.Merge([]byte(removes[0]), []byte(adds[0]), []byte(adds[1]))
	hunks := make([]merge.Merge[string], 0, len(res.Hunks))
	for _, h := range res.Hunks {
		if h.Type == diff3.HunkClean {
			hunks = append(hunks, merge.Resolved(string(h.Merged)))
			continue
		}
		hunks = append(hunks, merge.New(
			[]string{string(h.Base)},
			[]string{string(h.Ours), string(h.Theirs)},
		))
	}
	return hunks
}

// Resolve returns the merged content when every hunk resolves cleanly.
func Resolve(m merge.Merge[string]) (string, bool) {
	var b strings.Builder
	for _, h := range MergeHunks(m) {
		v, ok := h.AsResolved()
		if !ok {
			return "", false
		}
		b.WriteString(v)
	}
	return b.String(), true
}

// Materialize renders m as text. Resolved regions are written verbatim and
// each unresolved region as
//
//	<<<<<<< conflict 1 of 2
//	+++++++ side #1
//	...
//	------- base #1
//	...
//	+++++++ side #2
//	...
//	>>>>>>> conflict 1 of 2 ends
//
// with sides and bases interleaved in term order. A term without a final
// newline gets one, followed by a noEOLLine so Parse can drop it again.
func Materialize(m merge.Merge[string]) []byte {
	hunks := MergeHunks(m)
	total := 0
	for _, h := range hunks {
		if !h.IsResolved() {
			total++
		}
	}

	var buf bytes.Buffer
	n := 0
	for _, h := range hunks {
		if v, ok := h.AsResolved(); ok {
			buf.WriteString(v)
			continue
		}
		n++
		fmt.Fprintf(&buf, "%s conflict %d of %d\n", startMarker, n, total)
		for i, term := range h.Terms() {
			if i%2 == 0 {
				fmt.Fprintf(&buf, "%s side #%d\n", addMarker, i/2+1)
			} else {
				fmt.Fprintf(&buf, "%s base #%d\n", removeMark, i/2+1)
			}
			buf.WriteString(term)
			if term != "" && !strings.HasSuffix(term, "\n") {
				buf.WriteByte('\n')
				buf.WriteString(noEOLLine + "\n")
			}
		}
		fmt.Fprintf(&buf, "%s conflict %d of %d ends\n", endMarker, n, total)
	}
	return buf.Bytes()
}

// Parse splits content into hunks, recognising conflict regions written by
// Materialize for a merge with numSides sides. Marker blocks with the wrong
// number or order of terms are treated as plain text. It reports false when
// no conflict region was found.
func Parse(content []byte, numSides int) ([]merge.Merge[string], bool) {
	lines := diff3.SplitLines(content)
	var hunks []merge.Merge[string]
	var plain strings.Builder
	found := false

	flushPlain := func() {
		if plain.Len() > 0 {
			hunks = append(hunks, merge.Resolved(plain.String()))
			plain.Reset()
		}
	}

	for i := 0; i < len(lines); i++ {
		if !isMarker(lines[i], startMarker) {
			plain.WriteString(lines[i])
			continue
		}
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if isMarker(lines[j], endMarker) {
				end = j
				break
			}
		}
		if end < 0 {
			plain.WriteString(lines[i])
			continue
		}
		hunk, ok := parseConflictBlock(lines[i+1:end], numSides)
		if !ok {
			for _, l := range lines[i : end+1] {
				plain.WriteString(l)
			}
			i = end
			continue
		}
		flushPlain()
		hunks = append(hunks, hunk)
		found = true
		i = end
	}
	flushPlain()
	return hunks, found
}

func parseConflictBlock(lines []string, numSides int) (merge.Merge[string], bool) {
	var terms []string
	for _, l := range lines {
		isAdd, isRemove := isMarker(l, addMarker), isMarker(l, removeMark)
		switch {
		case isAdd && len(terms)%2 == 0, isRemove && len(terms)%2 == 1:
			terms = append(terms, "")
		case isAdd, isRemove, len(terms) == 0:
			return merge.Merge[string]{}, false
		case strings.TrimSuffix(l, "\n") == noEOLLine:
			terms[len(terms)-1] = strings.TrimSuffix(terms[len(terms)-1], "\n")
		default:
			terms[len(terms)-1] += l
		}
	}
	if len(terms) != 2*numSides-1 {
		return merge.Merge[string]{}, false
	}
	return merge.FromTerms(terms), true
}

func isMarker(line, marker string) bool {
	if !strings.HasPrefix(line, marker) {
		return false
	}
	rest := line[markerLen:]
	return rest == "" || rest[0] == ' ' || rest[0] == '\n'
}

// UpdateFromContent interprets edited text for a previously materialized
// merge. Unedited text yields m itself. Text without conflict regions is a
// resolution. Otherwise each term of the result is rebuilt from the parsed
// hunks, with resolved regions shared by every term.
func UpdateFromContent(m merge.Merge[string], content []byte) merge.Merge[string] {
	if bytes.Equal(content, Materialize(m)) {
		return m
	}
	hunks, ok := Parse(content, m.NumSides())
	if !ok {
		return merge.Resolved(string(content))
	}
	terms := make([]strings.Builder, 2*m.NumSides()-1)
	for _, h := range hunks {
		if v, ok := h.AsResolved(); ok {
			for i := range terms {
				terms[i].WriteString(v)
			}
			continue
		}
		for i, t := range h.Terms() {
			terms[i].WriteString(t)
		}
	}
	out := make([]string, len(terms))
	for i := range terms {
		out[i] = terms[i].String()
	}
	return merge.FromTerms(out)
}
