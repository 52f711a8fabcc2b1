// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"fmt"
	"sync"

	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/timeline"
)

// Buffer is a simulated host-visible buffer.
type Buffer struct {
	ID       int
	res      *Resources
	data     []byte
	coherent bool
}

// ImageHandle is the handle of a simulated image.
type ImageHandle struct {
	ID   int
	Desc vkdecode.ImageDescriptor
}

// View is the handle of a simulated image view.
type View struct {
	ID     int
	Image  *vkdecode.Image
	Layer  uint32
	Aspect vkdecode.AspectMask
}

// FlushRange records one Flush call.
type FlushRange struct {
	Buffer       *Buffer
	Offset, Size uint64
}

// Resources implements vkdecode.ResourceAllocator in host memory.
type Resources struct {
	// NonCoherent makes buffers require explicit flushes.
	NonCoherent bool

	// AtomSize is the non-coherent flush granularity.
	AtomSize uint64

	// FailBuffer, FailImage and FailFlush, when set, fail every call of
	// that kind.
	FailBuffer error
	FailImage  error
	FailFlush  error

	// FailView fails the nth view creation (1-based).
	FailView int

	mu               sync.Mutex
	nextID           int
	buffersCreated   int
	buffersDestroyed int
	imagesCreated    int
	imagesDestroyed  int
	viewsCreated     int
	viewsDestroyed   int
	viewAttempts     int
	bufferSizes      []uint64
	flushes          []FlushRange
}

// NewResources returns coherent resources with a 64 byte atom.
func NewResources() *Resources {
	return &Resources{AtomSize: 64}
}

func (r *Resources) id() int {
	r.nextID++
	return r.nextID
}

// CreateBuffer implements vkdecode.ResourceAllocator.
func (r *Resources) CreateBuffer(size uint64) (vkdecode.MappedBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailBuffer != nil {
		return nil, r.FailBuffer
	}
	r.buffersCreated++
	r.bufferSizes = append(r.bufferSizes, size)
	return &Buffer{ID: r.id(), res: r, data: make([]byte, size), coherent: !r.NonCoherent}, nil
}

// CreateImage implements vkdecode.ResourceAllocator.
func (r *Resources) CreateImage(desc *vkdecode.ImageDescriptor) (*vkdecode.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailImage != nil {
		return nil, r.FailImage
	}
	r.imagesCreated++
	layers := max(desc.Layers, 1)
	return &vkdecode.Image{
		Handle:      &ImageHandle{ID: r.id(), Desc: *desc},
		Format:      desc.Format,
		Extent:      desc.Extent,
		Layers:      layers,
		Usage:       desc.Usage,
		Layout:      desc.InitialLayout,
		QueueFamily: vkdecode.QueueFamilyIgnored,
		Timeline:    timeline.NewSimulated(0),
	}, nil
}

// DestroyImage implements vkdecode.ResourceAllocator.
func (r *Resources) DestroyImage(*vkdecode.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imagesDestroyed++
}

// CreateView implements vkdecode.ResourceAllocator.
func (r *Resources) CreateView(img *vkdecode.Image, desc *vkdecode.ViewDescriptor) (vkdecode.ViewHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.viewAttempts++
	if r.FailView == r.viewAttempts {
		return nil, fmt.Errorf("sim: view %d: %w", r.viewAttempts, vkdecode.ErrAllocation)
	}
	if desc.BaseLayer >= img.Layers {
		return nil, fmt.Errorf("sim: layer %d of %d: %w", desc.BaseLayer, img.Layers, vkdecode.ErrInvalidConfiguration)
	}
	r.viewsCreated++
	return &View{ID: r.id(), Image: img, Layer: desc.BaseLayer, Aspect: desc.Aspect}, nil
}

// DestroyView implements vkdecode.ResourceAllocator.
func (r *Resources) DestroyView(vkdecode.ViewHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewsDestroyed++
}

// NewTimeline implements vkdecode.ResourceAllocator.
func (r *Resources) NewTimeline() (timeline.Counter, error) {
	return timeline.NewSimulated(0), nil
}

// NonCoherentAtomSize implements vkdecode.ResourceAllocator.
func (r *Resources) NonCoherentAtomSize() uint64 { return r.AtomSize }

// Counts reports object creation and destruction totals.
type Counts struct {
	BuffersCreated, BuffersDestroyed int
	ImagesCreated, ImagesDestroyed   int
	ViewsCreated, ViewsDestroyed     int
}

// LiveBuffers returns buffers not yet destroyed.
func (c Counts) LiveBuffers() int { return c.BuffersCreated - c.BuffersDestroyed }

// LiveImages returns images not yet destroyed.
func (c Counts) LiveImages() int { return c.ImagesCreated - c.ImagesDestroyed }

// LiveViews returns views not yet destroyed.
func (c Counts) LiveViews() int { return c.ViewsCreated - c.ViewsDestroyed }

// Counts returns the current totals.
func (r *Resources) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Counts{
		BuffersCreated:   r.buffersCreated,
		BuffersDestroyed: r.buffersDestroyed,
		ImagesCreated:    r.imagesCreated,
		ImagesDestroyed:  r.imagesDestroyed,
		ViewsCreated:     r.viewsCreated,
		ViewsDestroyed:   r.viewsDestroyed,
	}
}

// BufferSizes returns the size of every buffer created, in order.
func (r *Resources) BufferSizes() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.bufferSizes...)
}

// Flushes returns every Flush call made on buffers of r.
func (r *Resources) Flushes() []FlushRange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FlushRange(nil), r.flushes...)
}

// Handle implements vkdecode.MappedBuffer.
func (b *Buffer) Handle() vkdecode.BufferHandle { return b }

// Size implements vkdecode.MappedBuffer.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Mapped implements vkdecode.MappedBuffer.
func (b *Buffer) Mapped() []byte { return b.data }

// Coherent implements vkdecode.MappedBuffer.
func (b *Buffer) Coherent() bool { return b.coherent }

// Flush implements vkdecode.MappedBuffer.
func (b *Buffer) Flush(offset, size uint64) error {
	b.res.mu.Lock()
	defer b.res.mu.Unlock()

	if b.res.FailFlush != nil {
		return b.res.FailFlush
	}
	if offset+size > uint64(len(b.data)) {
		return fmt.Errorf("sim: flush [%d, %d) beyond buffer size %d", offset, offset+size, len(b.data))
	}
	b.res.flushes = append(b.res.flushes, FlushRange{Buffer: b, Offset: offset, Size: size})
	return nil
}

// Destroy implements vkdecode.MappedBuffer.
func (b *Buffer) Destroy() {
	b.res.mu.Lock()
	defer b.res.mu.Unlock()
	b.res.buffersDestroyed++
	b.data = nil
}
