// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"fmt"
	"sync"

	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/timeline"
)

// Op is a recorded command kind.
type Op int

const (
	OpBarrier Op = iota
	OpBeginCoding
	OpControl
	OpDecode
	OpBeginQuery
	OpEndQuery
	OpEndCoding
)

func (o Op) String() string {
	switch o {
	case OpBarrier:
		return "barrier"
	case OpBeginCoding:
		return "begin-coding"
	case OpControl:
		return "control"
	case OpDecode:
		return "decode"
	case OpBeginQuery:
		return "begin-query"
	case OpEndQuery:
		return "end-query"
	case OpEndCoding:
		return "end-coding"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one recorded command. Only the fields of its Op are set.
type Command struct {
	Op       Op
	Barriers []vkdecode.ImageBarrier
	Begin    *vkdecode.BeginCodingInfo
	Control  vkdecode.CodingControlFlags
	Decode   *vkdecode.DecodeInfo
	Slot     uint32
}

// Submission is one accepted queue submission.
type Submission struct {
	Commands []Command
	Signals  []timeline.Point
	Done     bool
}

// Ops returns the command kinds of s in order.
func (s *Submission) Ops() []Op {
	ops := make([]Op, len(s.Commands))
	for i, c := range s.Commands {
		ops[i] = c.Op
	}
	return ops
}

// Find returns the first command of kind op, or nil.
func (s *Submission) Find(op Op) *Command {
	for i := range s.Commands {
		if s.Commands[i].Op == op {
			return &s.Commands[i]
		}
	}
	return nil
}

// Queue implements vkdecode.Queue. Submissions retire immediately unless
// Manual is set, in which case Complete retires them in order.
type Queue struct {
	FamilyIndex   uint32
	StatusQueries bool
	Manual        bool

	// Status is the result written to query slots on retirement.
	Status int64

	FailSubmit error
	FailQuery  error

	mu          sync.Mutex
	submissions []*Submission
	pending     []*Submission
	queryState  map[uint32]queryState
}

type queryState struct {
	ready  bool
	result int64
}

// NewQueue returns an auto-completing queue on family 0 with status
// queries and a successful status result.
func NewQueue() *Queue {
	return &Queue{StatusQueries: true, Status: 1, queryState: make(map[uint32]queryState)}
}

// Family implements vkdecode.Queue.
func (q *Queue) Family() uint32 { return q.FamilyIndex }

// SupportsStatusQueries implements vkdecode.Queue.
func (q *Queue) SupportsStatusQueries() bool { return q.StatusQueries }

// NewCommandBuffer implements vkdecode.Queue.
func (q *Queue) NewCommandBuffer() (vkdecode.CommandBuffer, error) {
	return &Recorder{}, nil
}

// Submit implements vkdecode.Queue.
func (q *Queue) Submit(cmd vkdecode.CommandBuffer, signals []timeline.Point) error {
	rec, ok := cmd.(*Recorder)
	if !ok {
		return fmt.Errorf("sim: foreign command buffer %T", cmd)
	}

	q.mu.Lock()
	if q.FailSubmit != nil {
		err := q.FailSubmit
		q.mu.Unlock()
		return err
	}
	s := &Submission{
		Commands: append([]Command(nil), rec.commands...),
		Signals:  append([]timeline.Point(nil), signals...),
	}
	q.submissions = append(q.submissions, s)
	if q.queryState == nil {
		q.queryState = make(map[uint32]queryState)
	}
	for _, c := range s.Commands {
		if c.Op == OpEndQuery {
			q.queryState[c.Slot] = queryState{}
		}
	}
	q.pending = append(q.pending, s)
	manual := q.Manual
	q.mu.Unlock()

	if manual {
		return nil
	}
	_, err := q.Complete(1)
	return err
}

// Complete retires up to n pending submissions, oldest first, signalling
// their timelines. It returns how many were retired.
func (q *Queue) Complete(n int) (int, error) {
	q.mu.Lock()
	n = min(n, len(q.pending))
	done := append([]*Submission(nil), q.pending[:n]...)
	q.pending = q.pending[n:]
	for _, s := range done {
		s.Done = true
		for _, c := range s.Commands {
			if c.Op == OpEndQuery {
				q.queryState[c.Slot] = queryState{ready: true, result: q.Status}
			}
		}
	}
	q.mu.Unlock()

	for _, s := range done {
		for _, p := range s.Signals {
			if p.Counter == nil {
				continue
			}
			if err := p.Counter.Signal(p.Value); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// CompleteAll retires every pending submission.
func (q *Queue) CompleteAll() error {
	_, err := q.Complete(q.Pending())
	return err
}

// Pending returns the number of submissions not yet retired.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Submissions returns every accepted submission in order.
func (q *Queue) Submissions() []*Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Submission(nil), q.submissions...)
}

// Last returns the most recent submission, or nil.
func (q *Queue) Last() *Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.submissions) == 0 {
		return nil
	}
	return q.submissions[len(q.submissions)-1]
}

// QueryResult implements vkdecode.Queue.
func (q *Queue) QueryResult(slot uint32) (int64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.FailQuery != nil {
		return 0, false, q.FailQuery
	}
	st, ok := q.queryState[slot]
	if !ok || !st.ready {
		return 0, false, nil
	}
	return st.result, true, nil
}

// Recorder is a simulated command buffer.
type Recorder struct {
	commands  []Command
	recording bool
}

// Begin implements vkdecode.CommandBuffer.
func (r *Recorder) Begin() error {
	r.commands = r.commands[:0]
	r.recording = true
	return nil
}

// PipelineBarrier implements vkdecode.CommandBuffer.
func (r *Recorder) PipelineBarrier(barriers []vkdecode.ImageBarrier) {
	r.commands = append(r.commands, Command{
		Op:       OpBarrier,
		Barriers: append([]vkdecode.ImageBarrier(nil), barriers...),
	})
}

// BeginVideoCoding implements vkdecode.CommandBuffer.
func (r *Recorder) BeginVideoCoding(info *vkdecode.BeginCodingInfo) {
	begin := *info
	begin.ReferenceSlots = append([]vkdecode.ReferenceSlot(nil), info.ReferenceSlots...)
	r.commands = append(r.commands, Command{Op: OpBeginCoding, Begin: &begin})
}

// ControlVideoCoding implements vkdecode.CommandBuffer.
func (r *Recorder) ControlVideoCoding(flags vkdecode.CodingControlFlags) {
	r.commands = append(r.commands, Command{Op: OpControl, Control: flags})
}

// DecodeVideo implements vkdecode.CommandBuffer.
func (r *Recorder) DecodeVideo(info *vkdecode.DecodeInfo) {
	decode := *info
	decode.SliceOffsets = append([]uint32(nil), info.SliceOffsets...)
	decode.ReferenceSlots = append([]vkdecode.ReferenceSlot(nil), info.ReferenceSlots...)
	if info.Setup != nil {
		setup := *info.Setup
		decode.Setup = &setup
	}
	r.commands = append(r.commands, Command{Op: OpDecode, Decode: &decode})
}

// BeginQuery implements vkdecode.CommandBuffer.
func (r *Recorder) BeginQuery(slot uint32) {
	r.commands = append(r.commands, Command{Op: OpBeginQuery, Slot: slot})
}

// EndQuery implements vkdecode.CommandBuffer.
func (r *Recorder) EndQuery(slot uint32) {
	r.commands = append(r.commands, Command{Op: OpEndQuery, Slot: slot})
}

// EndVideoCoding implements vkdecode.CommandBuffer.
func (r *Recorder) EndVideoCoding() {
	r.commands = append(r.commands, Command{Op: OpEndCoding})
}

// End implements vkdecode.CommandBuffer.
func (r *Recorder) End() error {
	if !r.recording {
		return ErrNotRecording
	}
	r.recording = false
	return nil
}
