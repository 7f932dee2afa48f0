package kernel

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Digest hashes the tic counter and every component value of every live
// entity, in creation order, with BLAKE2b-256. Two worlds with equal
// digests hold identical state.
func (w *World) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	buf := make([]byte, 0, 256)
	buf = binary.LittleEndian.AppendUint64(buf, w.tic)
	stores := w.ecs.Registry().Stores()
	for _, id := range w.ecs.Entities() {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
		for _, s := range stores {
			if !s.Has(id) {
				continue
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s.ID()))
			for _, v := range s.Row(id) {
				buf = v.AppendBinary(buf)
			}
		}
		h.Write(buf)
		buf = buf[:0]
	}
	h.Write(buf)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// DigestHex is Digest as a lowercase hex string.
func (w *World) DigestHex() string {
	d := w.Digest()
	return hex.EncodeToString(d[:])
}
