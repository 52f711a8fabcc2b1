// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halres implements vkdecode.ResourceAllocator on a gogpu/wgpu hal
// device.
//
// Staging buffers keep a host shadow copy; Flush uploads the written range
// with Queue.WriteBuffer, so buffers always report non-coherent memory.
// Images are hal textures with one array layer per DPB slot, views are
// single-layer texture views. A completion timeline maps each signalled
// value to the index of an empty queue submission and counts the value as
// reached once Queue.PollCompleted passes that index.
//
// Resources can wrap a device directly with New or share a host
// application's device through a gpucontext.DeviceProvider:
//
//	res, err := halres.FromProvider(provider)
//	if err != nil {
//	    return err
//	}
//	dev := vkdecode.Device{Video: driver, Resources: res, Queue: queue}
package halres
