package vkdecode

import (
	"fmt"

	"github.com/gogpu/vkdecode/timeline"
)

// Reference is a reference picture used by one decode and the DPB slot it
// occupies.
type Reference struct {
	Picture *Picture
	Slot    int32
}

// Submit records and submits the decode of pic. pic must have been
// prepared as the current picture and carry its slices; refs must be
// prepared. codecInfo is passed through to the decode command. Submit
// does not wait for the decode to finish; Release does.
func (d *Decoder) Submit(pic *Picture, refs []Reference, codecInfo any) error {
	if d.closed {
		return stageError(StageSubmit, "", ErrDecoderClosed)
	}
	if err := d.checkSubmission(pic, refs); err != nil {
		return stageError(StageSubmit, "", err)
	}
	log := Logger()
	caps := &d.cfg.Caps

	e := d.exec.get()
	if d.exec.queries {
		if err := d.previousStatus(e); err != nil {
			return err
		}
	}

	dataSize := alignUp64(uint64(len(pic.slices)), caps.MinBitstreamBufferSizeAlignment)
	buf, err := d.bitstream.acquire(dataSize)
	if err != nil {
		return stageError(StageSubmit, "bitstream buffer", err)
	}
	copy(buf.Bytes(), pic.slices)
	if !buf.mem.Coherent() {
		flushSize := min(alignUp64(dataSize, d.dev.Resources.NonCoherentAtomSize()), buf.Capacity())
		if err := buf.mem.Flush(0, flushSize); err != nil {
			d.bitstream.release(buf)
			return stageErrorKind(StageSubmit, ErrExternalDevice, "flush", err)
		}
	}

	if err := d.exec.start(e); err != nil {
		d.bitstream.release(buf)
		return stageError(StageSubmit, "exec start", err)
	}

	e.addBuffer(buf)
	e.addImage(pic.Image)

	fb := newFrameBuild(e, d.dev.Queue.Family(), d.dpb)
	fb.outputBarrier(pic)
	referenceStrategies[d.cfg.Mode](fb, pic, refs)

	cmd := e.cmd
	cmd.PipelineBarrier(fb.barriers)

	extent := d.cfg.CodedExtent
	slots := make([]ReferenceSlot, 0, len(refs))
	for _, ref := range refs {
		slots = append(slots, ReferenceSlot{
			SlotIndex: ref.Slot,
			Resource:  PictureResource{View: ref.Picture.refView, CodedExtent: extent},
		})
	}
	setup := &ReferenceSlot{
		SlotIndex: int32(pic.slot),
		Resource:  PictureResource{View: pic.refView, CodedExtent: extent},
	}
	beginSlots := append(append(make([]ReferenceSlot, 0, len(slots)+1), slots...),
		ReferenceSlot{SlotIndex: -1, Resource: setup.Resource})

	params := pic.params
	if params == nil {
		params = d.session.emptyParams
	}

	cmd.BeginVideoCoding(&BeginCodingInfo{
		Session:        d.session.handle,
		Parameters:     params,
		ReferenceSlots: beginSlots,
	})
	if d.exec.queries {
		cmd.BeginQuery(e.index)
	}
	cmd.DecodeVideo(&DecodeInfo{
		SrcBuffer:      buf.mem.Handle(),
		SrcOffset:      0,
		SrcRange:       dataSize,
		SliceOffsets:   pic.offsets,
		Dst:            PictureResource{View: pic.outView, CodedExtent: extent},
		Setup:          setup,
		ReferenceSlots: slots,
		Codec:          codecInfo,
	})
	if d.exec.queries {
		cmd.EndQuery(e.index)
		e.queried = true
	}
	cmd.EndVideoCoding()

	prev := pic.completion
	pic.completion = timeline.Point{Counter: pic.Image.Timeline, Value: pic.Image.Value + 1}

	if err := d.exec.submit(e); err != nil {
		pic.completion = prev
		return stageErrorKind(StageSubmit, ErrExternalDevice, "queue submit", err)
	}
	fb.commit()

	log.Debug("vkdecode: decode submitted",
		"slices", len(pic.offsets), "bytes", len(pic.slices), "staging", buf.Capacity(),
		"barriers", len(fb.barriers), "refs", len(refs), "exec", e.index)
	return nil
}

// checkSubmission validates pic and refs before anything is recorded.
func (d *Decoder) checkSubmission(pic *Picture, refs []Reference) error {
	if pic == nil {
		return ErrNilPicture
	}
	if pic.Image == nil {
		return ErrNoImage
	}
	if pic.outView == nil || pic.refView == nil {
		return fmt.Errorf("current picture: %w", ErrPictureNotPrepared)
	}
	if len(pic.slices) == 0 {
		return ErrNoSliceData
	}
	if len(refs) > MaxReferences {
		return fmt.Errorf("%d references, limit %d: %w", len(refs), MaxReferences, ErrTooManyReferences)
	}
	for i, ref := range refs {
		if ref.Picture == nil {
			return fmt.Errorf("reference %d: %w", i, ErrNilPicture)
		}
		if ref.Picture.refView == nil {
			return fmt.Errorf("reference %d: %w", i, ErrPictureNotPrepared)
		}
		if !d.cfg.Mode.Dedicated() && ref.Picture.Image == nil {
			return fmt.Errorf("reference %d: %w", i, ErrNoImage)
		}
	}
	return nil
}

// previousStatus waits for the previous use of e and logs the status its
// decode reported. Decode errors are per picture and do not fail the new
// submission.
func (d *Decoder) previousStatus(e *execContext) error {
	if err := d.exec.wait(e); err != nil {
		return stageError(StageSubmit, "exec wait", err)
	}
	if !e.queried {
		return nil
	}
	result, ready, err := d.dev.Queue.QueryResult(e.index)
	if err != nil {
		return stageErrorKind(StageSubmit, ErrExternalDevice, "status query", err)
	}
	if !ready {
		return nil
	}
	if result < 0 {
		Logger().Error("vkdecode: previous decode failed", "result", result, "exec", e.index)
	} else {
		Logger().Debug("vkdecode: previous decode result", "result", result, "exec", e.index)
	}
	return nil
}
