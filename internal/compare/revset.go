package compare

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// RevisionSet is an insertion ordered set of revision numbers
type RevisionSet struct {
	order []int64
	seen  mapset.Set[int64]
}

func NewRevisionSet() *RevisionSet {
	return &RevisionSet{
		seen: mapset.NewThreadUnsafeSet[int64](),
	}
}

// Add appends rev unless it is already a member
func (s *RevisionSet) Add(rev int64) bool {
	if !s.seen.Add(rev) {
		return false
	}
	s.order = append(s.order, rev)
	return true
}

func (s *RevisionSet) Contains(rev int64) bool {
	return s.seen.Contains(rev)
}

func (s *RevisionSet) Len() int {
	return len(s.order)
}

// Values returns the members in insertion order
func (s *RevisionSet) Values() []int64 {
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

// RevisionPins maps a resource identity to the one revision its remote change is reported in
type RevisionPins struct {
	pins map[string]int64
}

func NewRevisionPins() *RevisionPins {
	return &RevisionPins{pins: make(map[string]int64)}
}

// Pin records rev for the identity. The first pin wins; later calls return false.
func (p *RevisionPins) Pin(id string, rev int64) bool {
	if _, ok := p.pins[id]; ok {
		return false
	}
	p.pins[id] = rev
	return true
}

func (p *RevisionPins) Lookup(id string) (int64, bool) {
	rev, ok := p.pins[id]
	return rev, ok
}

func (p *RevisionPins) Len() int {
	return len(p.pins)
}
