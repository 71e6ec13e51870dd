// Package state provides the ordered binary serialization used for
// save-state transfer between simulation instances and for hash-based
// consistency checks across networked replicas.
package state

import (
	"bytes"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Packetizer is implemented by every core system whose state is part
// of the replicated simulation. Packetize and Depacketize must write
// and read fields in the same fixed order; the layout round-trips
// losslessly.
type Packetizer interface {
	Packetize(w *Writer)
	Depacketize(r *Reader) error
}

// Writer serializes values in order. Errors stick; callers check Err
// once after the final write.
type Writer struct {
	enc *msgpack.Encoder
	err error
}

// NewWriter creates a writer targeting out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{enc: msgpack.NewEncoder(out)}
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error { return w.err }

// PutUint64 writes an unsigned value.
func (w *Writer) PutUint64(v uint64) {
	if w.err == nil {
		w.err = w.enc.EncodeUint(v)
	}
}

// PutInt64 writes a signed value.
func (w *Writer) PutInt64(v int64) {
	if w.err == nil {
		w.err = w.enc.EncodeInt(v)
	}
}

// PutInt writes a count or index.
func (w *Writer) PutInt(v int) { w.PutInt64(int64(v)) }

// PutFloat64 writes a float.
func (w *Writer) PutFloat64(v float64) {
	if w.err == nil {
		w.err = w.enc.EncodeFloat64(v)
	}
}

// PutBool writes a bool.
func (w *Writer) PutBool(v bool) {
	if w.err == nil {
		w.err = w.enc.EncodeBool(v)
	}
}

// PutString writes a string.
func (w *Writer) PutString(v string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(v)
	}
}

// Reader deserializes values in the order they were written. Errors
// stick; zero values are returned after the first failure.
type Reader struct {
	dec *msgpack.Decoder
	err error
}

// NewReader creates a reader over in.
func NewReader(in io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(in)}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Uint64 reads an unsigned value.
func (r *Reader) Uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeUint64()
	r.err = err
	return v
}

// Int64 reads a signed value.
func (r *Reader) Int64() int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeInt64()
	r.err = err
	return v
}

// Int reads a count or index.
func (r *Reader) Int() int { return int(r.Int64()) }

// Float64 reads a float.
func (r *Reader) Float64() float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.DecodeFloat64()
	r.err = err
	return v
}

// Bool reads a bool.
func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.DecodeBool()
	r.err = err
	return v
}

// String reads a string.
func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	v, err := r.dec.DecodeString()
	r.err = err
	return v
}

// Marshal packetizes p into a byte slice.
func Marshal(p Packetizer) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	p.Packetize(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal depacketizes p from data.
func Unmarshal(p Packetizer, data []byte) error {
	r := NewReader(bytes.NewReader(data))
	if err := p.Depacketize(r); err != nil {
		return err
	}
	return r.Err()
}
