package vkdecode

import "github.com/gogpu/vkdecode/timeline"

// Picture is the decode state of one frame, either the one being decoded
// or one held as a reference. The caller supplies Image; everything else
// is filled in by Decoder.Prepare, AddSlice, SetParameters and Submit and
// torn down by Decoder.Release.
type Picture struct {
	// Image is the caller-owned output image.
	Image *Image

	outView   ViewHandle
	refView   ViewHandle
	outAspect AspectMask
	refAspect AspectMask

	// dpb is the dedicated DPB image backing refView, nil in coincident mode.
	dpb       *Image
	dpbPooled bool
	slot      uint32

	slices  []byte
	offsets []uint32

	params     ParametersHandle
	completion timeline.Point
}

// OutputView returns the view decoded into, nil until prepared as current.
func (p *Picture) OutputView() ViewHandle { return p.outView }

// ReferenceView returns the DPB view of p.
func (p *Picture) ReferenceView() ViewHandle { return p.refView }

// OutputAspect returns the plane aspects of the output view.
func (p *Picture) OutputAspect() AspectMask { return p.outAspect }

// ReferenceAspect returns the plane aspects of the reference view.
func (p *Picture) ReferenceAspect() AspectMask { return p.refAspect }

// DPBImage returns the dedicated DPB image backing p, or nil.
func (p *Picture) DPBImage() *Image { return p.dpb }

// Slot returns the DPB slot assigned in Prepare.
func (p *Picture) Slot() uint32 { return p.slot }

// Slices returns the assembled slice data.
func (p *Picture) Slices() []byte { return p.slices }

// SliceOffsets returns the start offset of every slice in Slices.
func (p *Picture) SliceOffsets() []uint32 { return p.offsets }

// Parameters returns the picture's session parameters, or nil.
func (p *Picture) Parameters() ParametersHandle { return p.params }

// Completion returns the timeline point after which the device no longer
// uses p. The zero Point means p was never submitted.
func (p *Picture) Completion() timeline.Point { return p.completion }

// Prepared reports whether p has a reference view.
func (p *Picture) Prepared() bool { return p.refView != nil }

// pictureTracker creates and destroys per-picture device resources and
// remembers every picture holding any, so teardown can release them.
type pictureTracker struct {
	res       ResourceAllocator
	video     VideoDriver
	mode      DPBMode
	format    DeviceFormat
	dpb       *dpbPool
	sliceSize int

	live map[*Picture]struct{}
}

func newPictureTracker(dev Device, n *Negotiated, dpb *dpbPool, sliceSize int) *pictureTracker {
	return &pictureTracker{
		res:       dev.Resources,
		video:     dev.Video,
		mode:      n.Mode,
		format:    n.Format,
		dpb:       dpb,
		sliceSize: sliceSize,
		live:      make(map[*Picture]struct{}),
	}
}

// prepare wires p for decoding. It is a no-op for a picture that already
// has a reference view, apart from resetting its slice data.
func (t *pictureTracker) prepare(p *Picture, isCurrent bool, slot uint32) error {
	p.slices = p.slices[:0]
	p.offsets = p.offsets[:0]

	if p.refView != nil {
		return nil
	}

	if isCurrent && cap(p.slices) < t.sliceSize {
		p.slices = make([]byte, 0, t.sliceSize)
	}
	p.slot = slot
	aspect := t.format.Aspect()

	if t.mode.Dedicated() {
		img, pooled, err := t.dpb.get(slot)
		if err != nil {
			return err
		}
		layer := uint32(0)
		if t.mode.Layered() {
			layer = slot
		}
		view, err := t.res.CreateView(img, &ViewDescriptor{Format: t.format, Aspect: AspectColor, BaseLayer: layer})
		if err != nil {
			if pooled {
				t.dpb.put(img)
			}
			return err
		}
		p.dpb, p.dpbPooled = img, pooled
		p.refView, p.refAspect = view, aspect
		t.live[p] = struct{}{}
	}

	if !t.mode.Dedicated() || isCurrent {
		if p.Image == nil {
			t.undoDPB(p)
			return ErrNoImage
		}
		view, err := t.res.CreateView(p.Image, &ViewDescriptor{Format: t.format, Aspect: AspectColor})
		if err != nil {
			t.undoDPB(p)
			return err
		}
		p.outView, p.outAspect = view, aspect
		if !t.mode.Dedicated() {
			p.refView, p.refAspect = view, aspect
		}
		t.live[p] = struct{}{}
	}
	return nil
}

// undoDPB drops the DPB view and backing created by a failed prepare.
func (t *pictureTracker) undoDPB(p *Picture) {
	if p.refView != nil {
		t.res.DestroyView(p.refView)
		p.refView = nil
	}
	if p.dpb != nil && p.dpbPooled {
		t.dpb.put(p.dpb)
	}
	p.dpb, p.dpbPooled = nil, false
	delete(t.live, p)
}

// release waits for p's recorded completion point, then frees everything
// p holds. Resources are freed even if the wait fails; the wait error is
// returned.
func (t *pictureTracker) release(p *Picture) error {
	var waitErr error
	if !p.completion.IsZero() {
		if _, err := p.completion.Wait(timeline.Forever); err != nil {
			waitErr = err
		}
	}
	// Later decodes may still read the reference image.
	if ref := t.referenceImage(p); ref != nil && ref.Timeline != nil && waitErr == nil {
		if _, err := ref.Completion().Wait(timeline.Forever); err != nil {
			waitErr = err
		}
	}

	p.slices = nil
	p.offsets = nil

	if p.params != nil {
		t.video.DestroyParameters(p.params)
		p.params = nil
	}
	if p.outView != nil && p.outView != p.refView {
		t.res.DestroyView(p.outView)
	}
	p.outView = nil
	if p.refView != nil {
		t.res.DestroyView(p.refView)
		p.refView = nil
	}
	if p.dpb != nil && p.dpbPooled {
		t.dpb.put(p.dpb)
	}
	p.dpb, p.dpbPooled = nil, false
	p.completion = timeline.Point{}

	delete(t.live, p)
	return waitErr
}

// referenceImage returns the image later decodes read p's reconstruction
// from: the output image in coincident mode, otherwise its DPB image.
func (t *pictureTracker) referenceImage(p *Picture) *Image {
	if t.mode.Dedicated() {
		return p.dpb
	}
	return p.Image
}

// releaseAll releases every tracked picture.
func (t *pictureTracker) releaseAll() []error {
	var errs []error
	for p := range t.live {
		if err := t.release(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
