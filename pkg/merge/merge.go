// Package merge implements first-class merge values: a state expressed as
// alternating added and removed terms, of which a resolved value is the
// special case with a single added term.
package merge

import "fmt"

// Merge is a value that may be unresolved. It holds one more added term
// than removed terms; conceptually the value is
// adds[0] - removes[0] + adds[1] - ... + adds[n].
type Merge[T comparable] struct {
	removes []T
	adds    []T
}

// Resolved returns a merge holding the single value v.
func Resolved[T comparable](v T) Merge[T] {
	return Merge[T]{adds: []T{v}}
}

// New builds a merge from its removed and added terms. It panics when
// len(adds) != len(removes)+1.
func New[T comparable](removes, adds []T) Merge[T] {
	m, err := FromSlices(removes, adds)
	if err != nil {
		panic(err)
	}
	return m
}

// FromSlices is like New but reports an arity mismatch as an error.
func FromSlices[T comparable](removes, adds []T) (Merge[T], error) {
	if len(adds) != len(removes)+1 {
		return Merge[T]{}, fmt.Errorf("merge: %d adds for %d removes", len(adds), len(removes))
	}
	return Merge[T]{
		removes: append([]T(nil), removes...),
		adds:    append([]T(nil), adds...),
	}, nil
}

// FromTerms builds a merge from interleaved terms
// add0, remove0, add1, remove1, ..., addN. It panics on an even count.
func FromTerms[T comparable](terms []T) Merge[T] {
	if len(terms)%2 == 0 {
		panic(fmt.Sprintf("merge: %d terms, want an odd count", len(terms)))
	}
	m := Merge[T]{}
	for i, t := range terms {
		if i%2 == 0 {
			m.adds = append(m.adds, t)
		} else {
			m.removes = append(m.removes, t)
		}
	}
	return m
}

// Three is the three-way merge of two sides against a common base. Trivial
// cases resolve: a side equal to the base yields the other side, and equal
// sides yield that value. Anything else is a conflict with base removed
// and both sides added, in that order.
func Three[T comparable](base, side1, side2 T) Merge[T] {
	m := New([]T{base}, []T{side1, side2})
	if v, ok := m.ResolveTrivial(); ok {
		return Resolved(v)
	}
	return m
}

// Removes returns a copy of the removed terms.
func (m Merge[T]) Removes() []T { return append([]T(nil), m.removes...) }

// Adds returns a copy of the added terms.
func (m Merge[T]) Adds() []T { return append([]T(nil), m.adds...) }

// NumSides is the number of added terms.
func (m Merge[T]) NumSides() int { return len(m.adds) }

// Terms returns the interleaved terms add0, remove0, add1, ..., addN.
func (m Merge[T]) Terms() []T {
	out := make([]T, 0, len(m.adds)+len(m.removes))
	for i, a := range m.adds {
		out = append(out, a)
		if i < len(m.removes) {
			out = append(out, m.removes[i])
		}
	}
	return out
}

// IsResolved reports whether the merge holds a single value.
func (m Merge[T]) IsResolved() bool { return len(m.removes) == 0 && len(m.adds) == 1 }

// AsResolved returns the value of a resolved merge.
func (m Merge[T]) AsResolved() (T, bool) {
	if m.IsResolved() {
		return m.adds[0], true
	}
	var zero T
	return zero, false
}

// Equal reports whether both merges have identical terms in identical order.
func (m Merge[T]) Equal(other Merge[T]) bool {
	if len(m.adds) != len(other.adds) || len(m.removes) != len(other.removes) {
		return false
	}
	for i := range m.adds {
		if m.adds[i] != other.adds[i] {
			return false
		}
	}
	for i := range m.removes {
		if m.removes[i] != other.removes[i] {
			return false
		}
	}
	return true
}

// ResolveTrivial returns the value the merge resolves to without looking
// inside the terms, if there is one.
func (m Merge[T]) ResolveTrivial() (T, bool) {
	var zero T
	switch len(m.adds) {
	case 0:
		return zero, false
	case 1:
		return m.adds[0], true
	case 2:
		switch {
		case m.adds[0] == m.adds[1]:
			return m.adds[0], true
		case m.adds[0] == m.removes[0]:
			return m.adds[1], true
		case m.adds[1] == m.removes[0]:
			return m.adds[0], true
		}
		return zero, false
	}

	// Count adds as +1 and removes as -1 so identical terms cancel.
	counts := make(map[T]int, len(m.adds))
	order := make([]T, 0, len(m.adds)+len(m.removes))
	bump := func(v T, d int) {
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v] += d
	}
	for _, a := range m.adds {
		bump(a, 1)
	}
	for _, r := range m.removes {
		bump(r, -1)
	}
	var remaining []T
	for _, v := range order {
		if counts[v] != 0 {
			remaining = append(remaining, v)
		}
	}
	switch len(remaining) {
	case 1:
		if counts[remaining[0]] == 1 {
			return remaining[0], true
		}
	case 2:
		// Every side made the same change.
		if counts[remaining[0]] > 0 {
			return remaining[0], true
		}
		return remaining[1], true
	}
	return zero, false
}

// Simplify cancels added terms against identical removed terms. The first
// matching remove wins, so the result is deterministic for a given term
// order.
func (m Merge[T]) Simplify() Merge[T] {
	removes := append([]T(nil), m.removes...)
	adds := append([]T(nil), m.adds...)
	addIdx := 0
	for addIdx < len(adds) {
		removeIdx := -1
		for i, r := range removes {
			if r == adds[addIdx] {
				removeIdx = i
				break
			}
		}
		if removeIdx < 0 {
			addIdx++
			continue
		}
		adds[removeIdx+1], adds[addIdx] = adds[addIdx], adds[removeIdx+1]
		removes = append(removes[:removeIdx], removes[removeIdx+1:]...)
		adds = append(adds[:removeIdx+1], adds[removeIdx+2:]...)
	}
	return Merge[T]{removes: removes, adds: adds}
}

// Resolve simplifies m and returns the trivial result when there is one,
// or the simplified merge otherwise.
func (m Merge[T]) Resolve() Merge[T] {
	if v, ok := m.ResolveTrivial(); ok {
		return Resolved(v)
	}
	s := m.Simplify()
	if v, ok := s.ResolveTrivial(); ok {
		return Resolved(v)
	}
	return s
}

// Map applies f to every term.
func Map[T, U comparable](m Merge[T], f func(T) U) Merge[U] {
	out := Merge[U]{
		removes: make([]U, len(m.removes)),
		adds:    make([]U, len(m.adds)),
	}
	for i, r := range m.removes {
		out.removes[i] = f(r)
	}
	for i, a := range m.adds {
		out.adds[i] = f(a)
	}
	return out
}

// TryMap applies f to every term, stopping at the first error.
func TryMap[T, U comparable](m Merge[T], f func(T) (U, error)) (Merge[U], error) {
	out := Merge[U]{
		removes: make([]U, len(m.removes)),
		adds:    make([]U, len(m.adds)),
	}
	for i, r := range m.removes {
		v, err := f(r)
		if err != nil {
			return Merge[U]{}, err
		}
		out.removes[i] = v
	}
	for i, a := range m.adds {
		v, err := f(a)
		if err != nil {
			return Merge[U]{}, err
		}
		out.adds[i] = v
	}
	return out, nil
}

// Flatten turns a merge whose terms are themselves merges into a single
// merge, keeping every pairwise diff of the nested terms. The nested merge
// is given by its removed and added terms, with len(adds) == len(removes)+1.
func Flatten[T comparable](removes, adds []Merge[T]) Merge[T] {
	if len(adds) != len(removes)+1 {
		panic(fmt.Sprintf("merge: flatten %d adds for %d removes", len(adds), len(removes)))
	}
	result := Merge[T]{
		removes: adds[0].Removes(),
		adds:    adds[0].Adds(),
	}
	for i, remove := range removes {
		// Removed merges contribute their terms with the sides swapped; the
		// first add goes last so the diffs pair up.
		result.removes = append(result.removes, remove.adds[1:]...)
		result.removes = append(result.removes, remove.adds[0])
		result.adds = append(result.adds, remove.removes...)
		add := adds[i+1]
		result.removes = append(result.removes, add.removes...)
		result.adds = append(result.adds, add.adds...)
	}
	return result
}
