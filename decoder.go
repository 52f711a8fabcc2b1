package vkdecode

import (
	"errors"
	"fmt"

	"github.com/gogpu/vkdecode/timeline"
)

// Decoder drives one decode session. A Decoder is not safe for concurrent
// use; run one per goroutine.
type Decoder struct {
	dev  Device
	cfg  *Negotiated
	opts options

	session   *Session
	bitstream *bitstreamPool
	dpb       *dpbPool
	exec      *execPool
	tracker   *pictureTracker

	closed bool
}

// Stats reports decoder resource usage.
type Stats struct {
	BitstreamAllocations int
	BitstreamOutstanding int
	DPBImages            int
	LivePictures         int
	Submissions          int
	ExecContexts         int
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats{bitstream: %d allocs/%d out, dpb: %d, pictures: %d, submissions: %d, exec: %d}",
		s.BitstreamAllocations, s.BitstreamOutstanding, s.DPBImages, s.LivePictures, s.Submissions, s.ExecContexts)
}

// NewDecoder creates the session for n, sets up the staging, DPB and exec
// pools and resets the session. Any failure tears down what was built.
func NewDecoder(dev Device, n *Negotiated, opts ...Option) (*Decoder, error) {
	if err := dev.validate(); err != nil {
		return nil, stageError(StageSession, "device", err)
	}
	if n == nil {
		return nil, stageErrorKind(StageSession, ErrInvalidConfiguration, "config", errors.New("nil negotiated configuration"))
	}

	d := &Decoder{dev: dev, cfg: n, opts: buildOptions(opts)}

	session, err := createSession(dev, n)
	if err != nil {
		return nil, err
	}
	d.session = session

	d.bitstream = newBitstreamPool(dev.Resources, n.Caps.MinBitstreamBufferSizeAlignment, d.opts.minBitstreamSize)

	queries := d.opts.statusQueries && dev.Queue.SupportsStatusQueries()
	d.exec, err = newExecPool(dev, execContextsPerThread*d.opts.threadCount, queries, d.bitstream)
	if err != nil {
		d.teardown()
		return nil, stageError(StageSession, "exec pool", err)
	}

	if n.Mode.Dedicated() {
		d.dpb, err = newDPBPool(dev.Resources, n)
		if err != nil {
			d.teardown()
			return nil, stageError(StageSession, "dpb pool", err)
		}
	}

	d.tracker = newPictureTracker(dev, n, d.dpb, d.opts.sliceBufferSize)

	if err := d.flush(); err != nil {
		d.teardown()
		return nil, stageError(StageSession, "initial reset", err)
	}

	Logger().Info("vkdecode: decoder ready",
		"codec", n.Codec, "mode", n.Mode, "format", n.Format,
		"exec_contexts", len(d.exec.contexts), "status_queries", queries)
	return d, nil
}

// Config returns the negotiated configuration.
func (d *Decoder) Config() *Negotiated { return d.cfg }

// Mode returns the DPB mode.
func (d *Decoder) Mode() DPBMode { return d.cfg.Mode }

// Session returns the device session, nil after Close.
func (d *Decoder) Session() *Session { return d.session }

// Stats returns current resource usage.
func (d *Decoder) Stats() Stats {
	s := Stats{DPBImages: d.dpb.images()}
	if d.bitstream != nil {
		s.BitstreamAllocations = d.bitstream.allocations
		s.BitstreamOutstanding = d.bitstream.outstanding
	}
	if d.tracker != nil {
		s.LivePictures = len(d.tracker.live)
	}
	if d.exec != nil {
		s.Submissions = d.exec.submissions
		s.ExecContexts = len(d.exec.contexts)
	}
	return s
}

// NewOutputImage allocates an image suitable as Picture.Image.
func (d *Decoder) NewOutputImage(label string) (*Image, error) {
	if d.closed {
		return nil, stageError(StagePrepare, "", ErrDecoderClosed)
	}
	profile := d.cfg.Profile
	img, err := d.dev.Resources.CreateImage(&ImageDescriptor{
		Label:         label,
		Format:        d.cfg.Format,
		Extent:        d.cfg.FrameSize(),
		Layers:        1,
		Usage:         d.cfg.OutputUsage(),
		Profile:       &profile,
		InitialLayout: LayoutUndefined,
	})
	if err != nil {
		return nil, stageError(StagePrepare, "output image", err)
	}
	return img, nil
}

// DestroyOutputImage waits for all submitted work on img, then frees it.
func (d *Decoder) DestroyOutputImage(img *Image) error {
	if img == nil {
		return nil
	}
	var err error
	if img.Timeline != nil {
		_, err = img.Completion().Wait(timeline.Forever)
	}
	d.dev.Resources.DestroyImage(img)
	if err != nil {
		return stageError(StageRelease, "output image", err)
	}
	return nil
}

// Prepare creates the views a picture needs. isCurrent marks the picture
// about to be decoded; slot is its DPB slot (the layer index in layered
// mode). Preparing an already prepared picture only resets its slices.
func (d *Decoder) Prepare(pic *Picture, isCurrent bool, slot uint32) error {
	if d.closed {
		return stageError(StagePrepare, "", ErrDecoderClosed)
	}
	if pic == nil {
		return stageError(StagePrepare, "", ErrNilPicture)
	}
	return stageError(StagePrepare, "", d.tracker.prepare(pic, isCurrent, slot))
}

// AddSlice appends a slice to pic. See Picture.AddSlice.
func (d *Decoder) AddSlice(pic *Picture, data []byte, insertStartCode bool) ([]uint32, error) {
	if pic == nil {
		return nil, stageError(StageSlice, "", ErrNilPicture)
	}
	return pic.AddSlice(data, insertStartCode)
}

// SetParameters creates a session parameters object from codecParams and
// attaches it to pic, replacing any previous one. It is destroyed when pic
// is released.
func (d *Decoder) SetParameters(pic *Picture, codecParams any) error {
	if d.closed {
		return stageError(StagePrepare, "", ErrDecoderClosed)
	}
	if pic == nil {
		return stageError(StagePrepare, "", ErrNilPicture)
	}
	params, err := d.dev.Video.CreateParameters(d.session.handle, codecParams)
	if err != nil {
		return stageError(StagePrepare, "session parameters", err)
	}
	if pic.params != nil {
		if _, err := pic.completion.Wait(timeline.Forever); err != nil {
			d.dev.Video.DestroyParameters(params)
			return stageError(StagePrepare, "session parameters", err)
		}
		d.dev.Video.DestroyParameters(pic.params)
	}
	pic.params = params
	d.tracker.live[pic] = struct{}{}
	return nil
}

// Release waits until the device is done with pic and frees its
// resources. Releasing an unprepared or already released picture is a
// no-op. After Close every picture has already been released.
func (d *Decoder) Release(pic *Picture) error {
	if pic == nil {
		return nil
	}
	if d.tracker == nil {
		return nil
	}
	if _, ok := d.tracker.live[pic]; !ok {
		pic.slices, pic.offsets = nil, nil
		return nil
	}
	return stageError(StageRelease, "wait", d.tracker.release(pic))
}

// Flush resets the session, e.g. after a seek.
func (d *Decoder) Flush() error {
	if d.closed {
		return stageError(StageFlush, "", ErrDecoderClosed)
	}
	if err := d.flush(); err != nil {
		return stageError(StageFlush, "", err)
	}
	Logger().Info("vkdecode: session reset")
	return nil
}

func (d *Decoder) flush() error {
	e := d.exec.get()
	if err := d.exec.start(e); err != nil {
		return err
	}
	cmd := e.cmd
	cmd.BeginVideoCoding(&BeginCodingInfo{
		Session:    d.session.handle,
		Parameters: d.session.emptyParams,
	})
	cmd.ControlVideoCoding(CodingControlReset)
	cmd.EndVideoCoding()
	return d.exec.submit(e)
}

// Close waits for all in-flight work and frees every resource the decoder
// owns, including pictures that were never released. Close is idempotent.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	errs := d.teardown()
	Logger().Info("vkdecode: decoder closed")
	if err := errors.Join(errs...); err != nil {
		return stageError(StageTeardown, "", err)
	}
	return nil
}

// teardown frees resources in dependency order. It tolerates a partially
// constructed decoder.
func (d *Decoder) teardown() []error {
	d.closed = true
	var errs []error

	if d.exec != nil {
		if err := d.exec.destroy(); err != nil {
			errs = append(errs, fmt.Errorf("exec pool: %w", err))
		}
	}
	if d.tracker != nil {
		for _, err := range d.tracker.releaseAll() {
			Logger().Warn("vkdecode: picture release failed during teardown", "err", err)
			errs = append(errs, err)
		}
	}
	d.dpb.destroy()
	d.session.destroy()
	d.session = nil
	if d.bitstream != nil {
		d.bitstream.close()
	}
	return errs
}
