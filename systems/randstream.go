package systems

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Stream is the deterministic pseudo-random generator shared by all
// participants of a session. Streams for the same (world seed, cell)
// pair produce identical sequences on every platform; the generator
// is implemented locally instead of delegating to math/rand so the
// algorithm can never drift between peers on a toolchain update.
//
// Stream implements the math/rand/v2 Source interface, which lets
// gonum's distuv distributions draw from it.
type Stream struct {
	state [4]uint64
}

// NewStream derives a stream for a cell of the given world.
func NewStream(worldSeed int64, cell CellID) *Stream {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(worldSeed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(cell))
	return newStreamFromSeed(xxhash.Sum64(buf[:]))
}

// NewWorldStream derives a stream that is not bound to a cell.
func NewWorldStream(worldSeed int64) *Stream {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(worldSeed))
	return newStreamFromSeed(xxhash.Sum64(buf[:]))
}

// Fork derives an independently seeded stream. Draws from the fork do
// not perturb the parent's sequence, so e.g. cell-info sampling cannot
// shift the layout sampling order.
func (s *Stream) Fork(label string) *Stream {
	d := xxhash.New()
	var buf [32]byte
	for i, w := range s.state {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	d.Write(buf[:])
	d.WriteString(label)
	return newStreamFromSeed(d.Sum64())
}

// newStreamFromSeed expands a 64-bit seed into generator state via
// splitmix64. The expansion cannot produce the all-zero state.
func newStreamFromSeed(seed uint64) *Stream {
	s := &Stream{}
	for i := range s.state {
		seed += 0x9e3779b97f4a7c15
		z := seed
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		s.state[i] = z ^ (z >> 31)
	}
	return s
}

// Seed re-derives the generator state. Together with Uint64 this
// satisfies both rand source interfaces in circulation.
func (s *Stream) Seed(seed uint64) {
	*s = *newStreamFromSeed(seed)
}

func rotl(x uint64, k uint) uint64 {
	return (x << k) | (x >> (64 - k))
}

// Uint64 returns the next value of the sequence (xoshiro256**).
func (s *Stream) Uint64() uint64 {
	result := rotl(s.state[1]*5, 7) * 9

	t := s.state[1] << 17
	s.state[2] ^= s.state[0]
	s.state[3] ^= s.state[1]
	s.state[1] ^= s.state[2]
	s.state[0] ^= s.state[3]
	s.state[2] ^= t
	s.state[3] = rotl(s.state[3], 45)

	return result
}

// Float64 returns a value in [0, 1) with 53 bits of precision.
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// IntN returns a value in [0, n). n must be positive.
func (s *Stream) IntN(n int) int {
	return int(s.Uint64() % uint64(n))
}

// Range returns a value in [lo, hi).
func (s *Stream) Range(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// Angle returns a value in [0, 2π).
func (s *Stream) Angle() float64 {
	return s.Float64() * 2 * math.Pi
}

// State returns the raw generator state for snapshotting.
func (s *Stream) State() [4]uint64 {
	return s.state
}

// SetState restores a snapshotted generator state.
func (s *Stream) SetState(st [4]uint64) {
	s.state = st
}
