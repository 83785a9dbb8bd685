package diff3

import "slices"

// DiffType classifies a line in an edit script.
type DiffType int

const (
	Equal  DiffType = iota // Line is unchanged between a and b.
	Insert                 // Line was inserted (present in b only).
	Delete                 // Line was deleted (present in a only).
)

// DiffOp is a single operation in an edit script produced by MyersDiff.
type DiffOp struct {
	Type DiffType
	Line string
}

// MyersDiff computes the shortest edit script to transform a into b
// using the Myers diff algorithm operating on whole lines.
//
// Common leading and trailing lines are matched up front; the remaining
// middle runs in O((N+M)*D) time where D is the size of the edit script.
func MyersDiff(a, b []string) []DiffOp {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	ops := make([]DiffOp, 0, len(a)+len(b)-prefix-suffix)
	for _, line := range a[:prefix] {
		ops = append(ops, DiffOp{Type: Equal, Line: line})
	}
	ops = append(ops, myers(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix])...)
	for _, line := range a[len(a)-suffix:] {
		ops = append(ops, DiffOp{Type: Equal, Line: line})
	}
	if len(ops) == 0 {
		return nil
	}
	return ops
}

func myers(a, b []string) []DiffOp {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		return uniform(Insert, b)
	case m == 0:
		return uniform(Delete, a)
	}
	ia, ib := internLines(a, b)

	off := n + m
	v := make([]int, 2*off+2)
	// frontier[d] holds the furthest x reached on diagonals -d..d when
	// round d starts.
	var frontier [][]int
	for d := 0; d <= n+m; d++ {
		frontier = append(frontier, slices.Clone(v[off-d:off+d+1]))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
				x = v[off+k+1]
			} else {
				x = v[off+k-1] + 1
			}
			y := x - k
			for x < n && y < m && ia[x] == ib[y] {
				x++
				y++
			}
			v[off+k] = x
			if x >= n && y >= m {
				return walkBack(frontier, a, b, d)
			}
		}
	}
	return nil
}

// walkBack rebuilds the edit script from the end of the last round back to
// the origin.
func walkBack(frontier [][]int, a, b []string, last int) []DiffOp {
	x, y := len(a), len(b)
	var ops []DiffOp
	for d := last; d > 0; d-- {
		prev := frontier[d]
		at := func(k int) int { return prev[k+d] }

		k := x - y
		pk := k - 1
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			pk = k + 1
		}
		px := at(pk)
		py := px - pk
		for x > px && y > py {
			x--
			y--
			ops = append(ops, DiffOp{Type: Equal, Line: a[x]})
		}
		if pk == k-1 {
			x--
			ops = append(ops, DiffOp{Type: Delete, Line: a[x]})
		} else {
			y--
			ops = append(ops, DiffOp{Type: Insert, Line: b[y]})
		}
	}
	for x > 0 {
		x--
		ops = append(ops, DiffOp{Type: Equal, Line: a[x]})
	}
	slices.Reverse(ops)
	return ops
}

func uniform(t DiffType, lines []string) []DiffOp {
	ops := make([]DiffOp, len(lines))
	for i, line := range lines {
		ops[i] = DiffOp{Type: t, Line: line}
	}
	return ops
}

// internLines maps each distinct line to a small integer so the inner loop
// compares ints.
func internLines(a, b []string) ([]int, []int) {
	ids := make(map[string]int, len(a))
	intern := func(lines []string) []int {
		out := make([]int, len(lines))
		for i, l := range lines {
			id, ok := ids[l]
			if !ok {
				id = len(ids)
				ids[l] = id
			}
			out[i] = id
		}
		return out
	}
	return intern(a), intern(b)
}
