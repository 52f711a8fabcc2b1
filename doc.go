// Package vkdecode implements the host side of hardware video decoding on
// Vulkan-class devices.
//
// # Overview
//
// A decode session moves compressed slices from CPU memory into a device
// video session and tracks every device resource a decoded picture touches
// until the device reports that the work using it has retired. The package
// does not parse bitstreams. Codec front-ends hand it already-parsed slices
// and codec-specific picture descriptions; vkdecode owns the device-facing
// half of the job:
//
//   - capability negotiation and decoded-picture-buffer (DPB) mode selection
//   - video session creation with atomic memory binding
//   - per-picture resource preparation (views, DPB slots, slice storage)
//   - slice assembly with optional Annex B start-code insertion
//   - command recording with layout barriers and dependency tracking
//   - asynchronous submission with timeline-based completion
//   - deferred release gated on completion, and orderly teardown
//
// # Quick Start
//
//	n, err := vkdecode.Negotiate(dev, &vkdecode.Request{
//	    Codec:       vkdecode.CodecH264,
//	    Profile:     vkdecode.ProfileH264High,
//	    Level:       41,
//	    PixelFormat: vkdecode.PixelFormatNV12,
//	    CodedWidth:  1920,
//	    CodedHeight: 1088,
//	})
//	if err != nil {
//	    return err
//	}
//	dec, err := vkdecode.NewDecoder(dev, n)
//	if err != nil {
//	    return err
//	}
//	defer dec.Close()
//
//	pic := &vkdecode.Picture{Image: out}
//	if err := dec.Prepare(pic, true, slot); err != nil {
//	    return err
//	}
//	for _, s := range slices {
//	    if _, err := pic.AddSlice(s, true); err != nil {
//	        return err
//	    }
//	}
//	if err := dec.Submit(pic, refs, codecInfo); err != nil {
//	    return err
//	}
//	// ...
//	dec.Release(pic) // blocks until the device is done with pic
//
// # Devices
//
// A [Device] bundles three backend contracts: a [VideoDriver] for
// capability queries and video session objects, a [ResourceAllocator] for
// buffers, images, views and timelines, and a [Queue] that records and
// submits command buffers. The backend/halres package provides a
// ResourceAllocator on top of gogpu/wgpu hal devices; backend/sim provides
// a scriptable software device for tests and demos. Package backend keeps
// a registry of named device sources and picks one by priority.
//
// # Logging
//
// vkdecode is silent by default. Call [SetLogger] to receive capability
// dumps (Debug), fallback notices (Warn) and decode status failures (Error).
package vkdecode
