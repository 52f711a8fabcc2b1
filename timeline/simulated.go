// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package timeline

import (
	"sync"
	"time"
)

// Simulated is a CPU-only [Counter]. It is safe for concurrent use.
type Simulated struct {
	mu      sync.Mutex
	value   uint64
	waiters []*waiter
	signals int
}

type waiter struct {
	value uint64
	done  chan struct{}
}

// NewSimulated returns a counter starting at initial.
func NewSimulated(initial uint64) *Simulated {
	return &Simulated{value: initial}
}

// Value returns the current counter value.
func (s *Simulated) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Waiting returns the number of goroutines blocked in Wait.
func (s *Simulated) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// Signals returns how many Signal calls advanced the counter.
func (s *Simulated) Signals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals
}

// Signal implements [Counter].
func (s *Simulated) Signal(value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value <= s.value {
		return nil
	}
	s.value = value
	s.signals++

	kept := s.waiters[:0]
	for _, w := range s.waiters {
		if w.value <= value {
			close(w.done)
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(s.waiters); i++ {
		s.waiters[i] = nil
	}
	s.waiters = kept
	return nil
}

// Wait implements [Counter].
func (s *Simulated) Wait(value uint64, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	if s.value >= value {
		s.mu.Unlock()
		return true, nil
	}
	if timeout <= 0 {
		s.mu.Unlock()
		return false, nil
	}
	w := &waiter{value: value, done: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	if timeout == Forever {
		<-w.done
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return true, nil
	case <-timer.C:
		s.remove(w)
		// Signal may have raced the timer.
		select {
		case <-w.done:
			return true, nil
		default:
			return false, nil
		}
	}
}

func (s *Simulated) remove(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.waiters {
		if cur == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
