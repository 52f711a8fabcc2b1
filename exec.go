package vkdecode

import (
	"fmt"

	"github.com/gogpu/vkdecode/timeline"
)

// execContext is one reusable command recording slot. Its fence advances
// once per submission; images and buffers registered as dependencies stay
// referenced until the fence passes.
type execContext struct {
	index   uint32
	cmd     CommandBuffer
	fence   timeline.Counter
	value   uint64
	pending bool
	queried bool

	images  []*Image
	buffers []*BitstreamBuffer
}

// execPool cycles through a fixed set of exec contexts round robin.
type execPool struct {
	queue     Queue
	bitstream *bitstreamPool
	contexts  []*execContext
	next      int
	queries   bool

	submissions int
}

func newExecPool(dev Device, size int, queries bool, bitstream *bitstreamPool) (*execPool, error) {
	p := &execPool{
		queue:     dev.Queue,
		bitstream: bitstream,
		queries:   queries,
	}
	for i := 0; i < size; i++ {
		cmd, err := dev.Queue.NewCommandBuffer()
		if err != nil {
			p.destroyFences()
			return nil, fmt.Errorf("command buffer %d: %w", i, err)
		}
		fence, err := dev.Resources.NewTimeline()
		if err != nil {
			p.destroyFences()
			return nil, fmt.Errorf("exec timeline %d: %w", i, err)
		}
		p.contexts = append(p.contexts, &execContext{index: uint32(i), cmd: cmd, fence: fence})
	}
	return p, nil
}

// get returns the next context in round-robin order without waiting on it.
func (p *execPool) get() *execContext {
	e := p.contexts[p.next]
	p.next = (p.next + 1) % len(p.contexts)
	return e
}

// wait blocks until the previous submission of e has retired and drops its
// dependencies.
func (p *execPool) wait(e *execContext) error {
	if !e.pending {
		return nil
	}
	if _, err := (timeline.Point{Counter: e.fence, Value: e.value}).Wait(timeline.Forever); err != nil {
		return err
	}
	e.pending = false
	p.discard(e)
	return nil
}

// start waits for e and opens its command buffer for recording.
func (p *execPool) start(e *execContext) error {
	if err := p.wait(e); err != nil {
		return err
	}
	e.queried = false
	return e.cmd.Begin()
}

func (e *execContext) addImage(img *Image) {
	for _, cur := range e.images {
		if cur == img {
			return
		}
	}
	e.images = append(e.images, img)
}

func (e *execContext) addBuffer(b *BitstreamBuffer) {
	e.buffers = append(e.buffers, b)
}

// discard releases e's dependencies.
func (p *execPool) discard(e *execContext) {
	for i, b := range e.buffers {
		p.bitstream.release(b)
		e.buffers[i] = nil
	}
	e.buffers = e.buffers[:0]
	for i := range e.images {
		e.images[i] = nil
	}
	e.images = e.images[:0]
}

// submit ends recording and submits e. The exec fence and every dependency
// image timeline are signalled one past their current value. Image values
// only advance once the queue accepts the work.
func (p *execPool) submit(e *execContext) error {
	if err := e.cmd.End(); err != nil {
		p.discard(e)
		return err
	}

	signals := make([]timeline.Point, 0, 1+len(e.images))
	signals = append(signals, timeline.Point{Counter: e.fence, Value: e.value + 1})
	for _, img := range e.images {
		if img.Timeline != nil {
			signals = append(signals, timeline.Point{Counter: img.Timeline, Value: img.Value + 1})
		}
	}

	if err := p.queue.Submit(e.cmd, signals); err != nil {
		p.discard(e)
		return err
	}

	e.value++
	e.pending = true
	for _, img := range e.images {
		if img.Timeline != nil {
			img.Value++
		}
	}
	p.submissions++
	return nil
}

// destroy waits for every context, drops all dependencies and frees the
// exec timelines.
func (p *execPool) destroy() error {
	var first error
	for _, e := range p.contexts {
		if err := p.wait(e); err != nil && first == nil {
			first = err
		}
		p.discard(e)
	}
	p.destroyFences()
	return first
}

func (p *execPool) destroyFences() {
	for _, e := range p.contexts {
		if d, ok := e.fence.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
}
