package engine

import (
	"crypto/sha256"
	"encoding/binary"
)

// DomainDraw separates draw hashes from every other hash in the system.
const DomainDraw = "cvdsim/draw/v1"

// Draws returns a uniform value in [0, 1) for a named decision. The same
// key always yields the same value from a given Draws.
type Draws func(key string) float64

// Stream is a counter-based random source. Every draw is a hash of
// (seed, simulant, step, key), so draws are independent of population
// size and evaluation order.
type Stream struct {
	seed uint64
}

// NewStream creates a stream for a run seed.
func NewStream(seed uint64) *Stream {
	return &Stream{seed: seed}
}

// Seed returns the run seed.
func (s *Stream) Seed() uint64 { return s.seed }

// Uniform returns the draw for one decision.
func (s *Stream) Uniform(simulant, step int64, key string) float64 {
	buf := make([]byte, 0, len(DomainDraw)+1+8*4+len(key))
	buf = append(buf, DomainDraw...)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint64(buf, s.seed)
	buf = binary.BigEndian.AppendUint64(buf, uint64(simulant))
	buf = binary.BigEndian.AppendUint64(buf, uint64(step))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(key)))
	buf = append(buf, key...)

	sum := sha256.Sum256(buf)
	// 53 high bits give every representable float64 in [0, 1) with the
	// same spacing.
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53)
}

// For returns the draws for one simulant in one step.
func (s *Stream) For(simulant, step int64) Draws {
	return func(key string) float64 {
		return s.Uniform(simulant, step, key)
	}
}

// Bernoulli reports whether a draw u succeeds with probability p.
// p = 0 never succeeds and p = 1 always does.
func Bernoulli(u, p float64) bool {
	return u < p
}
