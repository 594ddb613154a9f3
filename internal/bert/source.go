package bert

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"
)

// ByteSource yields the byte to transmit in each cycle
type ByteSource interface {
	Next() byte
}

// DefaultPattern returns every octet value in ascending order
func DefaultPattern() []byte {
	p := make([]byte, 256)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

// ParsePattern decodes a hex string such as "55aa00ff". An optional 0x
// prefix is accepted.
func ParsePattern(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidPattern, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return b, nil
}

// Sequence walks a fixed pattern, wrapping at the end
type Sequence struct {
	pattern []byte
	pos     int
}

// NewSequence copies pattern. An empty pattern falls back to DefaultPattern.
func NewSequence(pattern []byte) *Sequence {
	if len(pattern) == 0 {
		pattern = DefaultPattern()
	}
	return &Sequence{pattern: append([]byte(nil), pattern...)}
}

func (s *Sequence) Next() byte {
	b := s.pattern[s.pos]
	s.pos = (s.pos + 1) % len(s.pattern)
	return b
}

// Len is the pattern length
func (s *Sequence) Len() int {
	return len(s.pattern)
}

// Random draws uniformly distributed bytes
type Random struct {
	rng *rand.Rand
}

// NewRandom uses rng, or the process-wide generator when rng is nil
func NewRandom(rng *rand.Rand) *Random {
	return &Random{rng: rng}
}

func (r *Random) Next() byte {
	if r.rng == nil {
		return byte(rand.Uint32())
	}
	return byte(r.rng.Uint32())
}
