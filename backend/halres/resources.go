// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halres

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/timeline"
	"github.com/gogpu/wgpu/hal"
)

// copyBufferAlignment is the granularity of Queue.WriteBuffer uploads.
const copyBufferAlignment = 4

var (
	ErrNilDevice         = errors.New("halres: device is nil")
	ErrNilQueue          = errors.New("halres: queue is nil")
	ErrNoHALProvider     = errors.New("halres: provider does not expose HAL types")
	ErrUnsupportedFormat = errors.New("halres: format has no texture equivalent")
	ErrFlushRange        = errors.New("halres: flush range outside buffer")
	ErrForeignHandle     = errors.New("halres: handle was not created by halres")
)

// Stats counts live hal objects.
type Stats struct {
	Buffers   int
	Textures  int
	Views     int
	Timelines int
	Uploaded  uint64
}

// Resources allocates decode resources on a hal device.
type Resources struct {
	device hal.Device
	queue  hal.Queue

	mu    sync.Mutex
	stats Stats
}

// New wraps device and queue.
func New(device hal.Device, queue hal.Queue) (*Resources, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	return &Resources{device: device, queue: queue}, nil
}

// FromProvider wraps the hal device of a host application. The provider
// must expose HalDevice() and HalQueue() returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider) (*Resources, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return New(device, queue)
}

// Stats returns current object counts.
func (r *Resources) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Resources) count(f func(s *Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

// CreateBuffer implements vkdecode.ResourceAllocator.
func (r *Resources) CreateBuffer(size uint64) (vkdecode.MappedBuffer, error) {
	size = alignUp(size, copyBufferAlignment)
	raw, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vkdecode_bitstream",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("halres: bitstream buffer (%d bytes): %w: %w", size, vkdecode.ErrAllocation, err)
	}
	r.count(func(s *Stats) { s.Buffers++ })
	vkdecode.Logger().Debug("halres: buffer created", "size", size)
	return &buffer{res: r, raw: raw, shadow: make([]byte, size)}, nil
}

// CreateImage implements vkdecode.ResourceAllocator.
func (r *Resources) CreateImage(desc *vkdecode.ImageDescriptor) (*vkdecode.Image, error) {
	format, ok := desc.Format.TextureFormat()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	layers := max(desc.Layers, 1)

	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("halres: texture %q: %w: %w", desc.Label, vkdecode.ErrAllocation, err)
	}

	r.count(func(s *Stats) { s.Textures++ })

	return &vkdecode.Image{
		Handle:      tex,
		Format:      desc.Format,
		Extent:      desc.Extent,
		Layers:      layers,
		Usage:       desc.Usage,
		Layout:      desc.InitialLayout,
		QueueFamily: vkdecode.QueueFamilyIgnored,
		Timeline:    r.newTimeline(),
	}, nil
}

// textureUsage maps decode image usage to texture usage. Decode usages have
// no texture counterpart; every image is at least copyable.
func textureUsage(u vkdecode.ImageUsage) gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopyDst
	if u.Contains(vkdecode.UsageTransferSrc) || u.Contains(vkdecode.UsageDecodeDst) {
		usage |= gputypes.TextureUsageCopySrc
	}
	if u.Contains(vkdecode.UsageSampled) {
		usage |= gputypes.TextureUsageTextureBinding
	}
	return usage
}

// DestroyImage implements vkdecode.ResourceAllocator.
func (r *Resources) DestroyImage(img *vkdecode.Image) {
	if img == nil {
		return
	}
	if tex, ok := img.Handle.(hal.Texture); ok && tex != nil {
		r.device.DestroyTexture(tex)
		r.count(func(s *Stats) { s.Textures-- })
	}
	if tl, ok := img.Timeline.(*Timeline); ok {
		tl.Destroy()
	}
	img.Handle = nil
	img.Timeline = nil
}

// CreateView implements vkdecode.ResourceAllocator.
func (r *Resources) CreateView(img *vkdecode.Image, desc *vkdecode.ViewDescriptor) (vkdecode.ViewHandle, error) {
	tex, ok := img.Handle.(hal.Texture)
	if !ok || tex == nil {
		return nil, ErrForeignHandle
	}
	format, ok := desc.Format.TextureFormat()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	if desc.BaseLayer >= img.Layers {
		return nil, fmt.Errorf("halres: view layer %d of %d: %w", desc.BaseLayer, img.Layers, vkdecode.ErrInvalidConfiguration)
	}

	view, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("vkdecode_view_layer%d", desc.BaseLayer),
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  desc.BaseLayer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("halres: texture view: %w: %w", vkdecode.ErrAllocation, err)
	}
	r.count(func(s *Stats) { s.Views++ })
	return view, nil
}

// DestroyView implements vkdecode.ResourceAllocator.
func (r *Resources) DestroyView(view vkdecode.ViewHandle) {
	if v, ok := view.(hal.TextureView); ok && v != nil {
		r.device.DestroyTextureView(v)
		r.count(func(s *Stats) { s.Views-- })
	}
}

// NewTimeline implements vkdecode.ResourceAllocator.
func (r *Resources) NewTimeline() (timeline.Counter, error) {
	return r.newTimeline(), nil
}

func (r *Resources) newTimeline() *Timeline {
	r.count(func(s *Stats) { s.Timelines++ })
	return &Timeline{res: r}
}

// NonCoherentAtomSize implements vkdecode.ResourceAllocator.
func (r *Resources) NonCoherentAtomSize() uint64 { return copyBufferAlignment }

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
