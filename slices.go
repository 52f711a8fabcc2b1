package vkdecode

import "math"

// startCode is the Annex B slice prefix.
var startCode = [3]byte{0x00, 0x00, 0x01}

// AddSlice appends one slice to the picture's bitstream, optionally
// prefixed with a start code, and records its start offset. It returns the
// offsets of all slices added so far. Buffers grow geometrically and
// never shrink.
func (p *Picture) AddSlice(data []byte, insertStartCode bool) ([]uint32, error) {
	prefix := 0
	if insertStartCode {
		prefix = len(startCode)
	}

	offset := len(p.slices)
	need := uint64(offset) + uint64(prefix) + uint64(len(data))
	if need > math.MaxUint32 {
		return p.offsets, stageError(StageSlice, "", ErrSliceTooLarge)
	}

	p.slices = growBytes(p.slices, int(need))
	if insertStartCode {
		p.slices = append(p.slices, startCode[:]...)
	}
	p.slices = append(p.slices, data...)

	if len(p.offsets) == cap(p.offsets) {
		grown := make([]uint32, len(p.offsets), max(4, 2*cap(p.offsets)))
		copy(grown, p.offsets)
		p.offsets = grown
	}
	p.offsets = append(p.offsets, uint32(offset))
	return p.offsets, nil
}

// growBytes makes room for need bytes in b, at least doubling capacity.
func growBytes(b []byte, need int) []byte {
	if need <= cap(b) {
		return b
	}
	grown := make([]byte, len(b), max(need, 2*cap(b)))
	copy(grown, b)
	return grown
}
