package state

import (
	"bytes"
	"testing"
)

type samplePacket struct {
	id    uint64
	frame int64
	ratio float64
	live  bool
	name  string
}

func (p *samplePacket) Packetize(w *Writer) {
	w.PutUint64(p.id)
	w.PutInt64(p.frame)
	w.PutFloat64(p.ratio)
	w.PutBool(p.live)
	w.PutString(p.name)
}

func (p *samplePacket) Depacketize(r *Reader) error {
	p.id = r.Uint64()
	p.frame = r.Int64()
	p.ratio = r.Float64()
	p.live = r.Bool()
	p.name = r.String()
	return r.Err()
}

func TestPacketRoundTrip(t *testing.T) {
	in := &samplePacket{id: 42, frame: -17, ratio: 0.75, live: true, name: "alpha"}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out samplePacket
	if err := Unmarshal(&out, data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != *in {
		t.Errorf("round trip %+v -> %+v", *in, out)
	}
}

func TestReaderStickyError(t *testing.T) {
	// Truncated input: every later read returns the zero value and
	// the one sticky error.
	in := &samplePacket{id: 1, name: "x"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	r := NewReader(bytes.NewReader(data[:2]))
	var out samplePacket
	if err := out.Depacketize(r); err == nil {
		t.Fatal("no error from truncated input")
	}
	if out.name != "" {
		t.Error("field populated after the error point")
	}
}

func TestMarshalStable(t *testing.T) {
	in := &samplePacket{id: 9, frame: 4, ratio: 1.5, live: false, name: "beta"}
	a, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical state marshaled to different bytes")
	}
}

func TestHasherDistinguishesState(t *testing.T) {
	a := &samplePacket{id: 1, name: "a"}
	b := &samplePacket{id: 2, name: "a"}

	sum := func(p Packetizer) uint64 {
		h := NewHasher()
		h.Put(p)
		if err := h.Err(); err != nil {
			t.Fatalf("hash: %v", err)
		}
		return h.Sum64()
	}

	if sum(a) == sum(b) {
		t.Error("different state hashed equal")
	}
	if sum(a) != sum(a) {
		t.Error("same state hashed differently")
	}
}

func TestHasherReset(t *testing.T) {
	p := &samplePacket{id: 5}
	h := NewHasher()
	h.Put(p)
	first := h.Sum64()

	h.Reset()
	h.Put(p)
	if h.Sum64() != first {
		t.Error("reset hasher disagrees with a fresh one")
	}
}
