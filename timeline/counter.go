// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package timeline provides monotonic completion counters.
//
// A counter is advanced by the device as submitted work retires. CPU-side
// owners of GPU-visible resources record the counter value a submission
// will signal and wait for it before freeing anything that submission
// could touch. Backends implement [Counter] on top of their native
// primitive (a Vulkan timeline semaphore, a hal fence); [Simulated] is a
// pure CPU implementation for tests and software devices.
package timeline

import (
	"errors"
	"math"
	"time"
)

// Forever is the wait horizon for callers that block until the counter is
// reached, however long the device takes.
const Forever = time.Duration(math.MaxInt64)

// ErrNotReached is returned by [Point.Wait] when an unbounded wait returns
// without the counter reaching the requested value.
var ErrNotReached = errors.New("timeline: counter did not reach value")

// Counter is a monotonically increasing 64-bit value.
type Counter interface {
	// Signal advances the counter to value. Values at or below the
	// current one are ignored.
	Signal(value uint64) error

	// Wait blocks until the counter reaches value or timeout elapses and
	// reports whether value was reached. A zero timeout polls.
	Wait(value uint64, timeout time.Duration) (bool, error)
}

// Point is a position on a counter. The zero Point has no counter and is
// always reached.
type Point struct {
	Counter Counter
	Value   uint64
}

// IsZero reports whether p refers to no counter.
func (p Point) IsZero() bool { return p.Counter == nil }

// Reached polls whether the counter has passed p.
func (p Point) Reached() (bool, error) {
	if p.Counter == nil {
		return true, nil
	}
	return p.Counter.Wait(p.Value, 0)
}

// Wait blocks until the counter passes p or timeout elapses.
// With [Forever] a false result is reported as [ErrNotReached].
func (p Point) Wait(timeout time.Duration) (bool, error) {
	if p.Counter == nil {
		return true, nil
	}
	ok, err := p.Counter.Wait(p.Value, timeout)
	if err != nil {
		return false, err
	}
	if !ok && timeout == Forever {
		return false, ErrNotReached
	}
	return ok, nil
}
