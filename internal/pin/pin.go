// Package pin models the WPS PIN keyspace: the 8th-digit checksum, candidate
// values and the two-half search order.
package pin

import (
	"errors"
	"fmt"
)

// Half sizes. The checksum digit is derived, so the second half only has
// three searchable digits.
const (
	P1Size = 10000
	P2Size = 1000
)

var (
	ErrExhausted       = errors.New("pin space exhausted")
	ErrInvalidChecksum = errors.New("pin checksum digit is invalid")
	ErrInvalidPIN      = errors.New("pin must be 4, 7 or 8 decimal digits")
	ErrIndexRange      = errors.New("pin index out of range")
)

// KeyStatus tracks which half of the PIN is being searched.
type KeyStatus uint8

const (
	Key1WIP KeyStatus = iota
	Key2WIP
	KeyDone
)

func (s KeyStatus) String() string {
	switch s {
	case Key1WIP:
		return "KEY1_WIP"
	case Key2WIP:
		return "KEY2_WIP"
	case KeyDone:
		return "KEY_DONE"
	default:
		return fmt.Sprintf("KeyStatus(%d)", uint8(s))
	}
}

// ParseKeyStatus is the inverse of KeyStatus.String.
func ParseKeyStatus(s string) (KeyStatus, error) {
	switch s {
	case "KEY1_WIP":
		return Key1WIP, nil
	case "KEY2_WIP":
		return Key2WIP, nil
	case "KEY_DONE":
		return KeyDone, nil
	}
	return 0, fmt.Errorf("unknown key status %q", s)
}

func (s KeyStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *KeyStatus) UnmarshalText(text []byte) error {
	v, err := ParseKeyStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Checksum returns the WPS check digit for a 7-digit prefix (0..9999999).
func Checksum(prefix uint32) uint8 {
	var accum uint32
	for prefix > 0 {
		accum += 3 * (prefix % 10)
		prefix /= 10
		accum += prefix % 10
		prefix /= 10
	}
	return uint8((10 - accum%10) % 10)
}

// Validate reports whether s is an 8-digit PIN whose last digit is the
// checksum of the first seven.
func Validate(s string) bool {
	c, err := Parse(s)
	return err == nil && c.String() == s
}

// Candidate is one full 8-digit PIN. The zero value is "00000000".
type Candidate struct {
	p1 uint16
	p2 uint16
}

// NewCandidate builds a candidate from a first half (0..9999) and the three
// searchable digits of the second half (0..999).
func NewCandidate(p1, p2 int) Candidate {
	return Candidate{p1: uint16(p1 % P1Size), p2: uint16(p2 % P2Size)}
}

// Parse reads an 8-digit PIN and rejects a wrong check digit.
func Parse(s string) (Candidate, error) {
	if len(s) != 8 || !isDigits(s) {
		return Candidate{}, ErrInvalidPIN
	}
	c := NewCandidate(atoi(s[:4]), atoi(s[4:7]))
	if c.Checksum() != s[7]-'0' {
		return Candidate{}, fmt.Errorf("%w: %s", ErrInvalidChecksum, s)
	}
	return c, nil
}

func (c Candidate) P1() int { return int(c.p1) }
func (c Candidate) P2() int { return int(c.p2) }

func (c Candidate) Checksum() uint8 {
	return Checksum(uint32(c.p1)*1000 + uint32(c.p2))
}

// FirstHalf is the 4-digit half verified by M5.
func (c Candidate) FirstHalf() string { return fmt.Sprintf("%04d", c.p1) }

// SecondHalf is the 3 digits plus checksum verified by M7.
func (c Candidate) SecondHalf() string { return fmt.Sprintf("%03d%d", c.p2, c.Checksum()) }

func (c Candidate) String() string {
	return c.FirstHalf() + c.SecondHalf()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
