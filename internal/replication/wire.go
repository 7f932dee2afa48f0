package replication

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ticworld/kernel/internal/core/ecs"
)

// Writer builds one frame. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes.
func (w *Writer) WriteD(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteQ writes 8 bytes.
func (w *Writer) WriteQ(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteValue writes a kind tag followed by the value's fixed encoding.
func (w *Writer) WriteValue(v ecs.Value) {
	w.buf = append(w.buf, byte(v.Kind))
	w.buf = v.AppendBinary(w.buf)
}

// PutD overwrites 4 bytes at off. Used to patch counts after the fact.
func (w *Writer) PutD(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

// Reader reads frame fields. The first short read sets a sticky error and
// every later read returns zero values.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrBadFrame, n, r.off, len(r.data)-r.off)
		return false
	}
	return true
}

// ReadC reads 1 byte.
func (r *Reader) ReadC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadH reads 2 bytes.
func (r *Reader) ReadH() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes.
func (r *Reader) ReadD() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes.
func (r *Reader) ReadQ() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadValue reads a kind-tagged value.
func (r *Reader) ReadValue() ecs.Value {
	k := ecs.Kind(r.ReadC())
	if r.err != nil {
		return ecs.Value{}
	}
	switch k {
	case ecs.KindI8:
		return ecs.IntValue(k, int64(int8(r.ReadC())))
	case ecs.KindU8:
		return ecs.UintValue(k, uint64(r.ReadC()))
	case ecs.KindI16:
		return ecs.IntValue(k, int64(int16(r.ReadH())))
	case ecs.KindU16:
		return ecs.UintValue(k, uint64(r.ReadH()))
	case ecs.KindI32:
		return ecs.IntValue(k, int64(int32(r.ReadD())))
	case ecs.KindU32:
		return ecs.UintValue(k, uint64(r.ReadD()))
	case ecs.KindI64:
		return ecs.IntValue(k, int64(r.ReadQ()))
	case ecs.KindU64:
		return ecs.UintValue(k, r.ReadQ())
	case ecs.KindF32:
		return ecs.FloatValue(k, float64(math.Float32frombits(r.ReadD())))
	case ecs.KindF64:
		return ecs.FloatValue(k, math.Float64frombits(r.ReadQ()))
	case ecs.KindString:
		n := r.ReadD()
		return ecs.StringValue(string(r.ReadBytes(int(n))))
	case ecs.KindEntity:
		return ecs.EntityValue(ecs.EntityID(r.ReadQ()))
	}
	r.err = fmt.Errorf("%w: unknown value kind %d at offset %d", ErrBadFrame, k, r.off-1)
	return ecs.Value{}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
