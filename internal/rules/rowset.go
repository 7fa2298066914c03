package rules

import "sort"

// RowSet is a set of zero-based row positions.
type RowSet map[int]struct{}

// Add inserts a row position.
func (s RowSet) Add(i int) {
	s[i] = struct{}{}
}

// Has reports whether i is in the set.
func (s RowSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Union adds every position of other to s.
func (s RowSet) Union(other RowSet) {
	for i := range other {
		s[i] = struct{}{}
	}
}

// Sorted returns the positions in ascending order.
func (s RowSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
