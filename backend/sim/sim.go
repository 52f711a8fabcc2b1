// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim is a software video decode device.
//
// It implements the three vkdecode backend contracts in memory: a Driver
// answering capability, format and session queries, Resources allocating
// buffers, images, views and simulated timelines, and a Queue that records
// command buffers and retires submissions either immediately or when the
// caller says so. Capabilities, formats and failures are scriptable, and
// every object creation is counted, which makes the package suitable for
// tests that assert ordering and leak freedom.
//
//	b := sim.New(vkdecode.DPBDedicatedLayered)
//	b.Queue.Manual = true
//	n, err := vkdecode.Negotiate(b.Device(), req)
package sim

import (
	"errors"

	"github.com/gogpu/vkdecode"
)

// Errors returned by the simulated device.
var (
	// ErrDeviceLost simulates an unrecoverable device failure.
	ErrDeviceLost = errors.New("sim: device lost")

	// ErrNotRecording is returned by End on a command buffer that was
	// never begun.
	ErrNotRecording = errors.New("sim: command buffer not recording")
)

// Backend groups a Driver, Resources and Queue sharing one device.
type Backend struct {
	Driver    *Driver
	Resources *Resources
	Queue     *Queue
}

// New returns a backend advertising the capabilities of mode.
func New(mode vkdecode.DPBMode) *Backend {
	return &Backend{
		Driver:    NewDriver(Capabilities(mode)),
		Resources: NewResources(),
		Queue:     NewQueue(),
	}
}

// Device returns the backend as a vkdecode.Device.
func (b *Backend) Device() vkdecode.Device {
	return vkdecode.Device{Video: b.Driver, Resources: b.Resources, Queue: b.Queue}
}

// Capabilities returns a plausible capability set whose flags select mode.
func Capabilities(mode vkdecode.DPBMode) vkdecode.Capabilities {
	caps := vkdecode.Capabilities{
		MinBitstreamBufferOffsetAlignment: 256,
		MinBitstreamBufferSizeAlignment:   256,
		PictureAccessGranularity:          vkdecode.Extent2D{Width: 16, Height: 16},
		MinCodedExtent:                    vkdecode.Extent2D{Width: 64, Height: 64},
		MaxCodedExtent:                    vkdecode.Extent2D{Width: 4096, Height: 4096},
		MaxDpbSlots:                       17,
		MaxActiveReferencePictures:        16,
		MaxLevel:                          52,
		HeaderVersion:                     1<<22 | 0<<12 | 9,
	}
	switch mode {
	case vkdecode.DPBCoincident:
		caps.DecodeFlags = vkdecode.DecodeDPBAndOutputCoincide
		caps.Flags = vkdecode.CapabilitySeparateReferenceImages
	case vkdecode.DPBDedicatedPerSlot:
		caps.DecodeFlags = vkdecode.DecodeDPBAndOutputDistinct
		caps.Flags = vkdecode.CapabilitySeparateReferenceImages
	case vkdecode.DPBDedicatedLayered:
		caps.DecodeFlags = vkdecode.DecodeDPBAndOutputDistinct
	}
	return caps
}
