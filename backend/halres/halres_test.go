// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halres

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/vkdecode"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestResources(t *testing.T) *Resources {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	res, err := New(device, queue)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return res
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without HAL access.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (m *mockProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

// halProvider adds HAL accessors to mockProvider.
type halProvider struct {
	mockProvider
	device any
	queue  any
}

func (h *halProvider) HalDevice() any { return h.device }
func (h *halProvider) HalQueue() any  { return h.queue }

func TestNewRejectsNil(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := New(nil, queue); !errors.Is(err, ErrNilDevice) {
		t.Errorf("New(nil, queue) = %v, want ErrNilDevice", err)
	}
	if _, err := New(device, nil); !errors.Is(err, ErrNilQueue) {
		t.Errorf("New(device, nil) = %v, want ErrNilQueue", err)
	}
}

func TestFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		wantErr  bool
	}{
		{"no hal accessors", &mockProvider{}, true},
		{"wrong device type", &halProvider{device: "device", queue: queue}, true},
		{"wrong queue type", &halProvider{device: device, queue: 42}, true},
		{"hal provider", &halProvider{device: device, queue: queue}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := FromProvider(tt.provider)
			if tt.wantErr {
				if !errors.Is(err, ErrNoHALProvider) {
					t.Errorf("FromProvider() error = %v, want ErrNoHALProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromProvider() error = %v", err)
			}
			if res.device != device {
				t.Error("device not stored correctly")
			}
		})
	}
}

func TestBufferFlush(t *testing.T) {
	res := newTestResources(t)

	buf, err := res.CreateBuffer(1001)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if buf.Size() != 1004 {
		t.Errorf("Size() = %d, want 1004", buf.Size())
	}
	if buf.Coherent() {
		t.Error("shadowed buffers must report non-coherent memory")
	}
	if len(buf.Mapped()) != int(buf.Size()) {
		t.Errorf("len(Mapped()) = %d, want %d", len(buf.Mapped()), buf.Size())
	}
	if res.NonCoherentAtomSize() != 4 {
		t.Errorf("NonCoherentAtomSize() = %d, want 4", res.NonCoherentAtomSize())
	}

	copy(buf.Mapped(), []byte{0, 0, 1, 0x65})
	if err := buf.Flush(0, 64); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := res.Stats().Uploaded; got != 64 {
		t.Errorf("Uploaded = %d, want 64", got)
	}
	if err := buf.Flush(1000, 8); !errors.Is(err, ErrFlushRange) {
		t.Errorf("Flush past end = %v, want ErrFlushRange", err)
	}

	if res.Stats().Buffers != 1 {
		t.Errorf("Buffers = %d, want 1", res.Stats().Buffers)
	}
	buf.Destroy()
	buf.Destroy()
	if res.Stats().Buffers != 0 {
		t.Errorf("Buffers after Destroy = %d, want 0", res.Stats().Buffers)
	}
	if err := buf.Flush(0, 4); !errors.Is(err, ErrFlushRange) {
		t.Errorf("Flush after Destroy = %v, want ErrFlushRange", err)
	}
}

func TestImageLifecycle(t *testing.T) {
	res := newTestResources(t)

	img, err := res.CreateImage(&vkdecode.ImageDescriptor{
		Label:         "dpb",
		Format:        vkdecode.FormatG8B8R82Plane420,
		Extent:        vkdecode.Extent2D{Width: 1920, Height: 1088},
		Layers:        3,
		Usage:         vkdecode.UsageDecodeDPB | vkdecode.UsageSampled,
		InitialLayout: vkdecode.LayoutDecodeDPB,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if img.Layers != 3 {
		t.Errorf("Layers = %d, want 3", img.Layers)
	}
	if img.Layout != vkdecode.LayoutDecodeDPB {
		t.Errorf("Layout = %v, want %v", img.Layout, vkdecode.LayoutDecodeDPB)
	}
	if img.QueueFamily != vkdecode.QueueFamilyIgnored {
		t.Errorf("QueueFamily = %d, want ignored", img.QueueFamily)
	}
	if img.Timeline == nil {
		t.Fatal("image has no timeline")
	}

	for layer := range uint32(3) {
		view, err := res.CreateView(img, &vkdecode.ViewDescriptor{
			Format:    img.Format,
			Aspect:    vkdecode.AspectPlane0 | vkdecode.AspectPlane1,
			BaseLayer: layer,
		})
		if err != nil {
			t.Fatalf("CreateView(layer %d): %v", layer, err)
		}
		defer res.DestroyView(view)
	}
	if _, err := res.CreateView(img, &vkdecode.ViewDescriptor{Format: img.Format, BaseLayer: 3}); !errors.Is(err, vkdecode.ErrInvalidConfiguration) {
		t.Errorf("CreateView(layer 3) = %v, want ErrInvalidConfiguration", err)
	}

	want := Stats{Textures: 1, Views: 3, Timelines: 1}
	if got := res.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	res.DestroyImage(img)
	if img.Handle != nil || img.Timeline != nil {
		t.Error("DestroyImage must clear handle and timeline")
	}
	if got := res.Stats(); got.Textures != 0 || got.Timelines != 0 {
		t.Errorf("Stats() after DestroyImage = %+v", got)
	}
}

func TestCreateImageUnsupportedFormat(t *testing.T) {
	res := newTestResources(t)

	_, err := res.CreateImage(&vkdecode.ImageDescriptor{
		Format: vkdecode.FormatG10X6B10X6R10X62Plane420,
		Extent: vkdecode.Extent2D{Width: 64, Height: 64},
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("CreateImage(10-bit) = %v, want ErrUnsupportedFormat", err)
	}
	if got := res.Stats(); got.Textures != 0 || got.Timelines != 0 {
		t.Errorf("failed CreateImage leaked objects: %+v", got)
	}
}

func TestCreateViewForeignHandle(t *testing.T) {
	res := newTestResources(t)

	img := &vkdecode.Image{Handle: "not a texture", Format: vkdecode.FormatR8Unorm, Layers: 1}
	if _, err := res.CreateView(img, &vkdecode.ViewDescriptor{Format: img.Format}); !errors.Is(err, ErrForeignHandle) {
		t.Errorf("CreateView(foreign) = %v, want ErrForeignHandle", err)
	}
}

func TestTextureUsage(t *testing.T) {
	tests := []struct {
		in   vkdecode.ImageUsage
		want gputypes.TextureUsage
	}{
		{vkdecode.UsageDecodeDPB, gputypes.TextureUsageCopyDst},
		{vkdecode.UsageDecodeDst, gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc},
		{
			vkdecode.UsageDecodeDPB | vkdecode.UsageSampled,
			gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
		},
		{
			vkdecode.UsageDecodeDst | vkdecode.UsageSampled | vkdecode.UsageTransferSrc,
			gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
		},
	}
	for _, tt := range tests {
		if got := textureUsage(tt.in); got != tt.want {
			t.Errorf("textureUsage(%#x) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestTimeline(t *testing.T) {
	res := newTestResources(t)

	tl := res.newTimeline()
	defer tl.Destroy()

	if ok, err := tl.Wait(0, 0); !ok || err != nil {
		t.Errorf("Wait(0) = %v, %v; want true, nil", ok, err)
	}
	if ok, err := tl.Wait(1, time.Second); ok || err != nil {
		t.Errorf("Wait(unsignaled) = %v, %v; want false, nil", ok, err)
	}
	if err := tl.Signal(2); err != nil {
		t.Fatalf("Signal(2): %v", err)
	}
	if err := tl.Signal(1); err != nil {
		t.Errorf("Signal below current value = %v, want nil", err)
	}
	if tl.signaled != 2 || len(tl.pending) != 1 {
		t.Errorf("signaled = %d with %d pending, want 2 with 1", tl.signaled, len(tl.pending))
	}
	if ok, err := tl.Wait(2, time.Second); !ok || err != nil {
		t.Errorf("Wait(2) = %v, %v; want true, nil", ok, err)
	}
	if tl.reached != 2 || len(tl.pending) != 0 {
		t.Errorf("reached = %d with %d pending, want 2 with 0", tl.reached, len(tl.pending))
	}
	if ok, err := tl.Wait(3, 0); ok || err != nil {
		t.Errorf("Wait(3) poll = %v, %v; want false, nil", ok, err)
	}

	tl.Destroy()
	if ok, err := tl.Wait(5, time.Second); !ok || err != nil {
		t.Errorf("Wait on destroyed timeline = %v, %v; want true, nil", ok, err)
	}
	if res.Stats().Timelines != 0 {
		t.Errorf("Timelines = %d, want 0", res.Stats().Timelines)
	}
}
