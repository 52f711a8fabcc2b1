// Package backend provides a registry of pluggable decode devices.
//
// A decode device is the trio of a vkdecode.VideoDriver, a
// vkdecode.ResourceAllocator and a vkdecode.Queue. Backend packages
// register a factory under a name, and tools select one at runtime
// without importing every implementation.
//
// # Backend Registration
//
// Backends are registered via init() functions. The simulated device
// registers itself on import:
//
//	import _ "github.com/gogpu/vkdecode/backend/sim"
//
// # Backend Selection
//
// Use Default() to open the best available backend, or Get() to request
// a specific backend by name:
//
//	b, err := backend.Get(backend.BackendSim, sim.Capabilities(vkdecode.DPBDedicatedLayered))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	n, err := vkdecode.Negotiate(b.Device(), req)
//
// # Available Backends
//
//   - "sim": in-memory driver, allocator and queue
//   - "sim-hal": simulated driver and queue with images, views and timelines
//     allocated on a gogpu/wgpu hal device (registered by vkdecode-demo)
package backend
