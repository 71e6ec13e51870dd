package state

import "github.com/cespare/xxhash/v2"

// Hasher is the rolling digest used to detect simulation divergence
// between peers. Only reproducible state may be fed into it;
// presentation-only systems are excluded.
type Hasher struct {
	digest *xxhash.Digest
	err    error
}

// NewHasher creates an empty hasher.
func NewHasher() *Hasher {
	return &Hasher{digest: xxhash.New()}
}

// Put folds a system's packetized state into the digest.
func (h *Hasher) Put(p Packetizer) {
	if h.err != nil {
		return
	}
	w := NewWriter(h.digest)
	p.Packetize(w)
	h.err = w.Err()
}

// Sum64 returns the digest over everything folded in so far.
func (h *Hasher) Sum64() uint64 {
	return h.digest.Sum64()
}

// Err returns the first serialization error, if any.
func (h *Hasher) Err() error { return h.err }

// Reset clears the digest for the next hash frame.
func (h *Hasher) Reset() {
	h.digest.Reset()
	h.err = nil
}
