// Package replication streams component state to remote consumers as a
// full snapshot followed by deltas of created, destroyed, added, removed
// and updated components.
package replication

import (
	"errors"
	"fmt"

	"github.com/ticworld/kernel/internal/core/ecs"
)

var (
	// ErrBadFrame reports bytes that do not parse as a frame.
	ErrBadFrame = errors.New("malformed replication frame")
	// ErrDesync reports a well-formed frame that does not fit the
	// receiver's state: unknown entity or component, or a field mismatch.
	ErrDesync = errors.New("replication desync")
)

// Magic opens every frame.
const Magic = "TWRP"

// Version is the wire version written into every frame header.
const Version = 1

// Kind is the frame type.
type Kind uint8

const (
	KindSnapshot Kind = 1
	KindDelta    Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// OpCode identifies one operation inside a frame.
type OpCode uint8

const (
	OpEntityCreated    OpCode = 1
	OpEntityDestroyed  OpCode = 2
	OpComponentAdded   OpCode = 3
	OpComponentRemoved OpCode = 4
	OpComponentUpdated OpCode = 5
)

var opNames = [...]string{
	OpEntityCreated:    "created",
	OpEntityDestroyed:  "destroyed",
	OpComponentAdded:   "added",
	OpComponentRemoved: "removed",
	OpComponentUpdated: "updated",
}

func (o OpCode) String() string {
	if o >= OpEntityCreated && o <= OpComponentUpdated {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

func (o OpCode) hasComponent() bool { return o >= OpComponentAdded }
func (o OpCode) hasValues() bool    { return o == OpComponentAdded || o == OpComponentUpdated }

// headerSize is magic + version + kind + tic + op count.
const headerSize = 4 + 1 + 1 + 8 + 4

// Header is the fixed frame prefix.
type Header struct {
	Version uint8
	Kind    Kind
	Tic     uint64
	Ops     uint32
}

// Op is one decoded operation. Entity is the sender's entity id; Component
// is the index into the tracked component list both ends agree on.
type Op struct {
	Code      OpCode
	Entity    ecs.EntityID
	Component uint16
	Values    []ecs.Value
}

// Frame is a decoded frame.
type Frame struct {
	Header
	Ops []Op
}

// Encode writes a frame.
func Encode(kind Kind, tic uint64, ops []Op) []byte {
	w := NewWriter()
	w.WriteBytes([]byte(Magic))
	w.WriteC(Version)
	w.WriteC(byte(kind))
	w.WriteQ(tic)
	w.WriteD(uint32(len(ops)))
	for _, op := range ops {
		w.WriteC(byte(op.Code))
		w.WriteQ(uint64(op.Entity))
		if op.Code.hasComponent() {
			w.WriteH(op.Component)
		}
		if op.Code.hasValues() {
			w.WriteC(byte(len(op.Values)))
			for _, v := range op.Values {
				w.WriteValue(v)
			}
		}
	}
	return w.Bytes()
}

// ReadHeader parses only the frame header.
func ReadHeader(b []byte) (Header, error) {
	r := NewReader(b)
	return readHeader(r)
}

func readHeader(r *Reader) (Header, error) {
	magic := r.ReadBytes(len(Magic))
	h := Header{Version: r.ReadC(), Kind: Kind(r.ReadC()), Tic: r.ReadQ(), Ops: r.ReadD()}
	if err := r.Err(); err != nil {
		return Header{}, err
	}
	if string(magic) != Magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrBadFrame, magic)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrBadFrame, h.Version)
	}
	if h.Kind != KindSnapshot && h.Kind != KindDelta {
		return Header{}, fmt.Errorf("%w: unknown frame kind %d", ErrBadFrame, h.Kind)
	}
	return h, nil
}

// Decode parses a whole frame. Trailing bytes are an error.
func Decode(b []byte) (Frame, error) {
	r := NewReader(b)
	h, err := readHeader(r)
	if err != nil {
		return Frame{}, err
	}
	// Every op takes at least 9 bytes; reject impossible counts up front.
	if uint64(h.Ops)*9 > uint64(r.Remaining()) {
		return Frame{}, fmt.Errorf("%w: %d ops cannot fit in %d bytes", ErrBadFrame, h.Ops, r.Remaining())
	}
	f := Frame{Header: h, Ops: make([]Op, 0, h.Ops)}
	for i := uint32(0); i < h.Ops; i++ {
		op := Op{Code: OpCode(r.ReadC()), Entity: ecs.EntityID(r.ReadQ())}
		if op.Code < OpEntityCreated || op.Code > OpComponentUpdated {
			if r.Err() == nil {
				return Frame{}, fmt.Errorf("%w: unknown op %d", ErrBadFrame, op.Code)
			}
			break
		}
		if op.Code.hasComponent() {
			op.Component = r.ReadH()
		}
		if op.Code.hasValues() {
			n := int(r.ReadC())
			op.Values = make([]ecs.Value, 0, n)
			for j := 0; j < n && r.Err() == nil; j++ {
				op.Values = append(op.Values, r.ReadValue())
			}
		}
		if r.Err() != nil {
			break
		}
		f.Ops = append(f.Ops, op)
	}
	if err := r.Err(); err != nil {
		return Frame{}, err
	}
	if r.Remaining() != 0 {
		return Frame{}, fmt.Errorf("%w: %d trailing bytes", ErrBadFrame, r.Remaining())
	}
	return f, nil
}
