package pin

import "fmt"

// Space enumerates candidates: every first half while Key1WIP, then every
// second half while Key2WIP with the first half pinned at its accepted value.
// Each half is a queue of values in trial order; the index marks the next
// untried position.
type Space struct {
	p1      []uint16
	p2      []uint16
	p1Index int
	p2Index int
	status  KeyStatus

	static     Candidate
	hasStatic  bool
	staticFull bool
}

// NewSpace returns a space in ascending order, positioned at 0000/000.
func NewSpace() *Space {
	s := &Space{
		p1: make([]uint16, P1Size),
		p2: make([]uint16, P2Size),
	}
	for i := range s.p1 {
		s.p1[i] = uint16(i)
	}
	for i := range s.p2 {
		s.p2[i] = uint16(i)
	}
	return s
}

func (s *Space) Status() KeyStatus { return s.status }

func (s *Space) SetStatus(st KeyStatus) { s.status = st }

// Indices returns the queue positions of both halves.
func (s *Space) Indices() (p1, p2 int) { return s.p1Index, s.p2Index }

// Restore positions the space from a saved session.
func (s *Space) Restore(p1, p2 int, st KeyStatus) error {
	if p1 < 0 || p1 > P1Size || p2 < 0 || p2 > P2Size {
		return fmt.Errorf("%w: p1=%d p2=%d", ErrIndexRange, p1, p2)
	}
	if st > KeyDone {
		return fmt.Errorf("invalid key status %d", st)
	}
	s.p1Index, s.p2Index, s.status = p1, p2, st
	return nil
}

// Order returns copies of the queues whose trial order was changed by a
// jump. A half still in ascending order comes back nil.
func (s *Space) Order() (p1, p2 []uint16) {
	return reordered(s.p1), reordered(s.p2)
}

func reordered(queue []uint16) []uint16 {
	for i, v := range queue {
		if int(v) != i {
			return append([]uint16(nil), queue...)
		}
	}
	return nil
}

// SetOrder replaces the trial order of each half. A nil slice keeps that
// half as it is; anything else must be a permutation of the half.
func (s *Space) SetOrder(p1, p2 []uint16) error {
	if p1 != nil {
		if err := checkPermutation(p1, P1Size); err != nil {
			return fmt.Errorf("first half order: %w", err)
		}
	}
	if p2 != nil {
		if err := checkPermutation(p2, P2Size); err != nil {
			return fmt.Errorf("second half order: %w", err)
		}
	}
	if p1 != nil {
		copy(s.p1, p1)
	}
	if p2 != nil {
		copy(s.p2, p2)
	}
	return nil
}

func checkPermutation(queue []uint16, size int) error {
	if len(queue) != size {
		return fmt.Errorf("%w: %d values, want %d", ErrIndexRange, len(queue), size)
	}
	seen := make([]bool, size)
	for _, v := range queue {
		if int(v) >= size || seen[v] {
			return fmt.Errorf("%w: value %d repeated or out of range", ErrIndexRange, v)
		}
		seen[v] = true
	}
	return nil
}

// Next returns the candidate for the current position without consuming it.
func (s *Space) Next() (Candidate, error) {
	switch s.status {
	case Key1WIP:
		if s.p1Index >= P1Size {
			return Candidate{}, ErrExhausted
		}
	case Key2WIP:
		if s.p1Index >= P1Size || s.p2Index >= P2Size {
			return Candidate{}, ErrExhausted
		}
	}
	return s.current(), nil
}

func (s *Space) current() Candidate {
	p1 := s.p1[min(s.p1Index, P1Size-1)]
	p2 := s.p2[min(s.p2Index, P2Size-1)]
	return Candidate{p1: p1, p2: p2}
}

// Advance discards the current value of the half being searched.
func (s *Space) Advance() {
	switch s.status {
	case Key1WIP:
		s.p1Index++
	case Key2WIP:
		s.p2Index++
	}
}

// JumpP1 makes value the next first half to try. It reports false, leaving
// the queue untouched, when value was already tried.
func (s *Space) JumpP1(value int) bool {
	return jump(s.p1, s.p1Index, value)
}

// JumpP2 is JumpP1 for the second half (three digits, no checksum).
func (s *Space) JumpP2(value int) bool {
	return jump(s.p2, s.p2Index, value)
}

func jump(queue []uint16, index, value int) bool {
	if value < 0 || value >= len(queue) || index >= len(queue) {
		return false
	}
	pos := -1
	for i, v := range queue {
		if int(v) == value {
			pos = i
			break
		}
	}
	if pos < index {
		return false
	}
	v := queue[pos]
	copy(queue[index+1:pos+1], queue[index:pos])
	queue[index] = v
	return true
}

// ForceStatic positions both queues on a user supplied PIN. Eight digits are
// checked against the checksum, seven get it appended, four pin only the
// first half.
func (s *Space) ForceStatic(pin string) error {
	if !isDigits(pin) {
		return ErrInvalidPIN
	}
	var c Candidate
	switch len(pin) {
	case 8:
		var err error
		if c, err = Parse(pin); err != nil {
			return err
		}
	case 7:
		c = NewCandidate(atoi(pin[:4]), atoi(pin[4:]))
	case 4:
		c = NewCandidate(atoi(pin), 0)
	default:
		return ErrInvalidPIN
	}

	s.JumpP1(c.P1())
	if len(pin) > 4 {
		s.JumpP2(c.P2())
	}
	s.static, s.hasStatic, s.staticFull = c, true, len(pin) > 4
	return nil
}

// Static returns the forced PIN, if any, and whether both halves were given.
func (s *Space) Static() (c Candidate, full, ok bool) {
	return s.static, s.staticFull, s.hasStatic
}

// Tested counts the keyspace already eliminated. Once the first half is
// known, its whole half-space counts as covered.
func (s *Space) Tested() int {
	switch s.status {
	case Key1WIP:
		return s.p1Index + s.p2Index
	case Key2WIP:
		return P1Size + s.p2Index
	default:
		return P1Size + P2Size
	}
}

// Progress returns the percent of the reduced keyspace covered.
func (s *Space) Progress() float64 {
	return float64(s.Tested()) / float64(P1Size+P2Size) * 100
}
