package vkdecode

import "math/bits"

// BitstreamBuffer is a pooled host-visible staging buffer for slice data.
type BitstreamBuffer struct {
	mem MappedBuffer
}

// Capacity returns the buffer size in bytes, or 0 for an empty entry.
func (b *BitstreamBuffer) Capacity() uint64 {
	if b.mem == nil {
		return 0
	}
	return b.mem.Size()
}

// Bytes returns the mapped contents.
func (b *BitstreamBuffer) Bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem.Mapped()
}

// bitstreamPool hands out staging buffers. Entries keep their allocation
// between uses so capacity only grows.
type bitstreamPool struct {
	res       ResourceAllocator
	sizeAlign uint64
	minSize   uint64

	free        []*BitstreamBuffer
	outstanding int
	allocations int
	closed      bool
}

func newBitstreamPool(res ResourceAllocator, sizeAlign, minSize uint64) *bitstreamPool {
	return &bitstreamPool{res: res, sizeAlign: sizeAlign, minSize: minSize}
}

// bitstreamBufferSize returns the allocation size for a request: at least
// minSize, aligned, then rounded to a power of two.
func bitstreamBufferSize(req, minSize, align uint64) uint64 {
	size := max(req, minSize)
	size = alignUp64(size, align)
	return nextPow2(size)
}

func nextPow2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

// acquire checks out a buffer of at least minSize bytes. A buffer that is
// already large enough is returned untouched. On allocation failure the
// entry goes back to the pool empty.
func (p *bitstreamPool) acquire(minSize uint64) (*BitstreamBuffer, error) {
	var b *BitstreamBuffer
	if n := len(p.free); n > 0 {
		b = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		b = &BitstreamBuffer{}
	}
	p.outstanding++

	if b.mem != nil && b.mem.Size() >= minSize {
		return b, nil
	}

	size := bitstreamBufferSize(minSize, p.minSize, p.sizeAlign)
	if b.mem != nil {
		b.mem.Destroy()
		b.mem = nil
	}
	mem, err := p.res.CreateBuffer(size)
	if err != nil {
		p.release(b)
		return nil, err
	}
	b.mem = mem
	p.allocations++
	Logger().Debug("vkdecode: bitstream buffer allocated", "requested", minSize, "size", size)
	return b, nil
}

// release returns b to the pool. After close the allocation is freed.
func (p *bitstreamPool) release(b *BitstreamBuffer) {
	if b == nil {
		return
	}
	p.outstanding--
	if p.closed {
		if b.mem != nil {
			b.mem.Destroy()
			b.mem = nil
		}
		return
	}
	p.free = append(p.free, b)
}

// close frees pooled buffers. Buffers still checked out are freed when
// they are released.
func (p *bitstreamPool) close() {
	p.closed = true
	for _, b := range p.free {
		if b.mem != nil {
			b.mem.Destroy()
			b.mem = nil
		}
	}
	p.free = nil
}
