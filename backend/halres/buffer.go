// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halres

import (
	"fmt"

	"github.com/gogpu/vkdecode"
	"github.com/gogpu/wgpu/hal"
)

// buffer is a hal buffer with a host shadow. Host writes land in the
// shadow and reach the device on Flush.
type buffer struct {
	res    *Resources
	raw    hal.Buffer
	shadow []byte
}

func (b *buffer) Handle() vkdecode.BufferHandle { return b.raw }
func (b *buffer) Size() uint64                  { return uint64(len(b.shadow)) }
func (b *buffer) Mapped() []byte                { return b.shadow }
func (b *buffer) Coherent() bool                { return false }

// Flush uploads [offset, offset+size) of the shadow.
func (b *buffer) Flush(offset, size uint64) error {
	if b.raw == nil {
		return fmt.Errorf("%w: buffer destroyed", ErrFlushRange)
	}
	end := offset + size
	if end < offset || end > uint64(len(b.shadow)) {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrFlushRange, offset, end, len(b.shadow))
	}
	if size == 0 {
		return nil
	}
	if err := b.res.queue.WriteBuffer(b.raw, offset, b.shadow[offset:end]); err != nil {
		return fmt.Errorf("halres: upload: %w", err)
	}
	b.res.count(func(s *Stats) { s.Uploaded += size })
	return nil
}

func (b *buffer) Destroy() {
	if b.raw == nil {
		return
	}
	b.res.device.DestroyBuffer(b.raw)
	b.res.count(func(s *Stats) { s.Buffers-- })
	b.raw = nil
	b.shadow = nil
}
