// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/backend"
)

// init registers the simulated device on package import.
// This enables automatic backend selection when using backend.Default().
//
//	import _ "github.com/gogpu/vkdecode/backend/sim"
func init() {
	backend.Register(backend.BackendSim, func(caps vkdecode.Capabilities) (backend.DeviceBackend, error) {
		if caps.DecodeFlags == 0 {
			return nil, backend.ErrNoCapabilities
		}
		return &Backend{
			Driver:    NewDriver(caps),
			Resources: NewResources(),
			Queue:     NewQueue(),
		}, nil
	})
}

// Name implements backend.DeviceBackend.
func (b *Backend) Name() string { return backend.BackendSim }

// Close implements backend.DeviceBackend. Pending submissions are retired
// so nothing blocks on them.
func (b *Backend) Close() {
	_ = b.Queue.CompleteAll()
}
