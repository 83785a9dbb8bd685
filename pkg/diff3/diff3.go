package diff3

import (
	"bytes"
	"strings"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // Hunk was merged cleanly.
	HunkConflict                 // Both sides changed the same region differently.
)

// Hunk is a contiguous section of the merge output. Clean hunks carry
// Merged; conflict hunks carry the base region and both sides' versions.
type Hunk struct {
	Type               HunkType
	Base, Ours, Theirs []byte
	Merged             []byte
}

// Result holds the outcome of a three-way merge. Adjacent clean hunks are
// coalesced, so conflict hunks are always separated by at most one clean
// hunk.
type Result struct {
	HasConflicts bool
	Hunks        []Hunk // in document order
}

// Merged returns the merged content. It is only meaningful when the merge
// has no conflicts.
func (r Result) Merged() []byte {
	var buf bytes.Buffer
	for _, h := range r.Hunks {
		buf.Write(h.Merged)
	}
	return buf.Bytes()
}

// DiffLine is a single line in the output of LineDiff.
type DiffLine struct {
	Type    DiffType
	Content string
}

// LineDiff computes a line-level diff between byte slices a and b. Content
// excludes the line terminator.
func LineDiff(a, b []byte) []DiffLine {
	ops := MyersDiff(SplitLines(a), SplitLines(b))
	result := make([]DiffLine, len(ops))
	for i, op := range ops {
		result[i] = DiffLine{Type: op.Type, Content: strings.TrimSuffix(op.Line, "\n")}
	}
	return result
}

// Merge performs a line-level three-way merge of base, ours, and theirs.
// Concatenating the hunks reproduces each input byte for byte, including a
// missing final newline.
//
// Both sides are diffed against base and turned into chunk sequences
// aligned on base positions. Regions changed by only one side take that
// side; regions changed identically by both are clean; the rest conflict.
func Merge(base, ours, theirs []byte) Result {
	switch {
	case bytes.Equal(ours, theirs), bytes.Equal(base, theirs):
		return cleanResult(ours)
	case bytes.Equal(base, ours):
		return cleanResult(theirs)
	}

	baseLines := SplitLines(base)
	oursChunks := buildChunks(baseLines, SplitLines(ours))
	theirsChunks := buildChunks(baseLines, SplitLines(theirs))
	return mergeChunks(baseLines, oursChunks, theirsChunks)
}

func cleanResult(data []byte) Result {
	if len(data) == 0 {
		return Result{}
	}
	return Result{Hunks: []Hunk{{Type: HunkClean, Merged: data}}}
}

// SplitLines splits data into lines, each keeping its trailing newline. The
// last line has no newline when data does not end with one.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	lines := make([]string, 0, strings.Count(s, "\n")+1)
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

// chunk represents a contiguous region relative to the base.
type chunk struct {
	baseStart, baseEnd int      // range [baseStart, baseEnd) in base
	lines              []string // replacement lines for this region
	changed            bool     // true if this region differs from base
}

// buildChunks converts a two-way diff (base → side) into a list of chunks.
func buildChunks(base, side []string) []chunk {
	ops := MyersDiff(base, side)

	var chunks []chunk
	baseIdx := 0
	i := 0
	for i < len(ops) {
		if ops[i].Type == Equal {
			chunks = append(chunks, chunk{
				baseStart: baseIdx,
				baseEnd:   baseIdx + 1,
				lines:     []string{ops[i].Line},
			})
			baseIdx++
			i++
			continue
		}

		start := baseIdx
		var sideLines []string
		for i < len(ops) && ops[i].Type != Equal {
			if ops[i].Type == Delete {
				baseIdx++
			} else {
				sideLines = append(sideLines, ops[i].Line)
			}
			i++
		}
		chunks = append(chunks, chunk{
			baseStart: start,
			baseEnd:   baseIdx,
			lines:     sideLines,
			changed:   true,
		})
	}
	return chunks
}

// mergeChunks walks both chunk sequences in parallel, grouping overlapping
// chunks into regions of base and deciding each region.
func mergeChunks(baseLines []string, oursChunks, theirsChunks []chunk) Result {
	var res Result
	oi, ti := 0, 0
	for oi < len(oursChunks) || ti < len(theirsChunks) {
		if oi == len(oursChunks) {
			res.appendClean(theirsChunks[ti].lines)
			ti++
			continue
		}
		if ti == len(theirsChunks) {
			res.appendClean(oursChunks[oi].lines)
			oi++
			continue
		}

		oc, tc := oursChunks[oi], theirsChunks[ti]
		if oc.baseStart == tc.baseStart && oc.baseEnd == tc.baseEnd {
			res.decide(baseLines[oc.baseStart:oc.baseEnd], []chunk{oc}, []chunk{tc})
			oi++
			ti++
			continue
		}

		// Misaligned: gather every chunk overlapping the region until
		// neither side extends it further.
		regionStart := min(oc.baseStart, tc.baseStart)
		regionEnd := max(oc.baseEnd, tc.baseEnd)
		var oursRegion, theirsRegion []chunk
		for {
			grew := false
			for oi < len(oursChunks) && oursChunks[oi].baseStart < regionEnd {
				oursRegion = append(oursRegion, oursChunks[oi])
				regionEnd = max(regionEnd, oursChunks[oi].baseEnd)
				oi++
				grew = true
			}
			for ti < len(theirsChunks) && theirsChunks[ti].baseStart < regionEnd {
				theirsRegion = append(theirsRegion, theirsChunks[ti])
				regionEnd = max(regionEnd, theirsChunks[ti].baseEnd)
				ti++
				grew = true
			}
			if !grew {
				break
			}
		}
		res.decide(baseLines[regionStart:regionEnd], oursRegion, theirsRegion)
	}
	return res
}

func (r *Result) decide(baseRegion []string, oursRegion, theirsRegion []chunk) {
	oursOut := assembleRegion(oursRegion)
	theirsOut := assembleRegion(theirsRegion)
	oursChanged := anyChanged(oursRegion)
	theirsChanged := anyChanged(theirsRegion)

	switch {
	case !oursChanged && !theirsChanged:
		r.appendClean(baseRegion)
	case oursChanged && !theirsChanged:
		r.appendClean(oursOut)
	case !oursChanged && theirsChanged:
		r.appendClean(theirsOut)
	case linesEqual(oursOut, theirsOut):
		r.appendClean(oursOut)
	default:
		r.HasConflicts = true
		r.Hunks = append(r.Hunks, Hunk{
			Type:   HunkConflict,
			Base:   joinLines(baseRegion),
			Ours:   joinLines(oursOut),
			Theirs: joinLines(theirsOut),
		})
	}
}

func (r *Result) appendClean(lines []string) {
	if len(lines) == 0 {
		return
	}
	if n := len(r.Hunks); n > 0 && r.Hunks[n-1].Type == HunkClean {
		r.Hunks[n-1].Merged = append(r.Hunks[n-1].Merged, joinLines(lines)...)
		return
	}
	r.Hunks = append(r.Hunks, Hunk{Type: HunkClean, Merged: joinLines(lines)})
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, ""))
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assembleRegion(chunks []chunk) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, c.lines...)
	}
	return lines
}

func anyChanged(chunks []chunk) bool {
	for _, c := range chunks {
		if c.changed {
			return true
		}
	}
	return false
}
