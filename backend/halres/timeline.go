// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halres

import (
	"sync"
	"time"
)

const (
	minPollInterval = 10 * time.Microsecond
	maxPollInterval = time.Millisecond
)

// mark ties a counter value to the queue submission that signals it.
type mark struct {
	value      uint64
	submission uint64
}

// Timeline is a completion counter driven by hal queue submission
// indices. Signal records an empty submission; the value is reached once
// the queue reports that submission completed.
type Timeline struct {
	res *Resources

	mu        sync.Mutex
	signaled  uint64
	reached   uint64
	pending   []mark
	destroyed bool
}

// Signal submits an empty batch that marks value. Values at or below the
// last signal are ignored.
func (t *Timeline) Signal(value uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed || value <= t.signaled {
		return nil
	}
	idx, err := t.res.queue.Submit(nil)
	if err != nil {
		return err
	}
	t.pending = append(t.pending, mark{value: value, submission: idx})
	t.signaled = value
	return nil
}

// Wait polls the queue until value is reached or timeout elapses. A value
// that was never signaled is never reached.
func (t *Timeline) Wait(value uint64, timeout time.Duration) (bool, error) {
	if value == 0 {
		return true, nil
	}
	var deadline time.Time
	if timeout > 0 && timeout < time.Duration(1<<62) {
		deadline = time.Now().Add(timeout)
	}
	interval := minPollInterval
	for {
		done, final := t.poll(value)
		if done || final || timeout == 0 {
			return done, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(interval)
		interval = min(2*interval, maxPollInterval)
	}
}

// poll retires completed marks. final is true when value can no longer be
// reached by polling.
func (t *Timeline) poll(value uint64) (done, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return true, true
	}
	completed := t.res.queue.PollCompleted()
	n := 0
	for _, m := range t.pending {
		if m.submission > completed {
			break
		}
		t.reached = m.value
		n++
	}
	t.pending = t.pending[n:]
	if t.reached >= value {
		return true, true
	}
	return false, value > t.signaled
}

// Destroy drops pending marks. Waits on a destroyed timeline succeed.
func (t *Timeline) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return
	}
	t.destroyed = true
	t.pending = nil
	t.res.count(func(s *Stats) { s.Timelines-- })
}
