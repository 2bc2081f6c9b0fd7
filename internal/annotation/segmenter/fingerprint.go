package segmenter

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint digests the surviving annotation set of a plan in render order.
// Two documents render identically iff their content digests and plan
// fingerprints match, so this is the annotation half of every render cache
// key. Dropped annotations do not contribute: they are invisible to renders.
func (p Plan) Fingerprint() string {
	h := blake3.New()
	var buf [8]byte
	for _, s := range p.Segments {
		if s.Annotation == nil {
			continue
		}
		_, _ = h.Write([]byte(s.Annotation.ID.String()))
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Start))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(s.End))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte(s.Annotation.Motivation))
		if s.Annotation.Resolved() {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
