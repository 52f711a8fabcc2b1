package vkdecode_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/backend/sim"
	"github.com/gogpu/vkdecode/timeline"
)

// newDecoder negotiates and opens a decoder on a fresh simulated backend.
// configure runs before negotiation.
func newDecoder(t *testing.T, mode vkdecode.DPBMode, configure func(b *sim.Backend), opts ...vkdecode.Option) (*sim.Backend, *vkdecode.Decoder) {
	t.Helper()
	b := sim.New(mode)
	if configure != nil {
		configure(b)
	}
	n, err := vkdecode.Negotiate(b.Device(), h264Request(), opts...)
	require.NoError(t, err)
	d, err := vkdecode.NewDecoder(b.Device(), n, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.Queue.CompleteAll()
		_ = d.Close()
	})
	return b, d
}

// decodeFrame prepares a current picture in slot with one slice and
// submits it against refs.
func decodeFrame(t *testing.T, d *vkdecode.Decoder, slot uint32, refs ...vkdecode.Reference) *vkdecode.Picture {
	t.Helper()
	img, err := d.NewOutputImage(fmt.Sprintf("frame-%d", slot))
	require.NoError(t, err)
	pic := &vkdecode.Picture{Image: img}
	require.NoError(t, d.Prepare(pic, true, slot))
	_, err = d.AddSlice(pic, bytes.Repeat([]byte{0x65}, 300), true)
	require.NoError(t, err)
	require.NoError(t, d.Submit(pic, refs, nil))
	return pic
}

func ref(p *vkdecode.Picture) vkdecode.Reference {
	return vkdecode.Reference{Picture: p, Slot: int32(p.Slot())}
}

func signals(s *sim.Submission, c timeline.Counter) int {
	n := 0
	for _, p := range s.Signals {
		if p.Counter == c {
			n++
		}
	}
	return n
}

func TestNewDecoderResetsSession(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil, vkdecode.WithThreadCount(2))

	subs := b.Queue.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, []sim.Op{sim.OpBeginCoding, sim.OpControl, sim.OpEndCoding}, subs[0].Ops())
	assert.Equal(t, vkdecode.CodingControlReset, subs[0].Find(sim.OpControl).Control)
	assert.Equal(t, d.Session().EmptyParameters(), subs[0].Find(sim.OpBeginCoding).Begin.Parameters)

	stats := d.Stats()
	assert.Equal(t, 8, stats.ExecContexts)
	assert.Equal(t, 1, stats.DPBImages)
	assert.Equal(t, 2, d.Session().MemoryBindings())

	sessions, memory, params := b.Driver.Live()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 2, memory)
	assert.Equal(t, 1, params)

	info := b.Driver.LastSession().Info
	assert.Equal(t, d.Config().Format, info.PictureFormat)
	assert.Equal(t, uint32(17), info.MaxDpbSlots)
}

func TestCoincidentDecode(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBCoincident, nil)

	r0 := decodeFrame(t, d, 0)
	r1 := decodeFrame(t, d, 1, ref(r0))
	assert.Same(t, r0.OutputView(), r0.ReferenceView())
	assert.Nil(t, r0.DPBImage())

	cur := decodeFrame(t, d, 2, ref(r0), ref(r1))
	assert.Equal(t, 0, d.Stats().DPBImages)

	last := b.Queue.Last()
	barriers := last.Find(sim.OpBarrier).Barriers
	require.Len(t, barriers, 3)

	out := barriers[0]
	assert.Same(t, cur.Image, out.Image)
	assert.Equal(t, vkdecode.LayoutUndefined, out.OldLayout)
	assert.Equal(t, vkdecode.LayoutDecodeDst, out.NewLayout)
	assert.Equal(t, vkdecode.AccessDecodeWrite, out.DstAccess)
	assert.Equal(t, vkdecode.PipelineStageVideoDecode, out.DstStage)
	assert.Equal(t, cur.OutputAspect(), out.Aspect)

	for i, want := range []*vkdecode.Picture{r0, r1} {
		bar := barriers[i+1]
		assert.Same(t, want.Image, bar.Image)
		assert.Equal(t, vkdecode.LayoutDecodeDPB, bar.NewLayout)
		assert.Equal(t, vkdecode.AccessDecodeRead|vkdecode.AccessDecodeWrite, bar.DstAccess)
		assert.Equal(t, vkdecode.QueueFamilyIgnored, bar.SrcQueueFamily)
		assert.Equal(t, 1, signals(last, want.Image.Timeline), "reference %d dependency", i)
	}
	// r0 was already moved to the DPB layout by the decode of r1.
	assert.Equal(t, vkdecode.LayoutDecodeDPB, barriers[1].OldLayout)
	assert.Equal(t, vkdecode.LayoutDecodeDst, barriers[2].OldLayout)
	assert.Equal(t, 1, signals(last, cur.Image.Timeline))

	decode := last.Find(sim.OpDecode).Decode
	assert.Equal(t, cur.OutputView(), decode.Dst.View)
	assert.Equal(t, cur.ReferenceView(), decode.Setup.Resource.View)
}

func TestLayeredDecode(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil)
	imagesBefore := b.Resources.Counts().ImagesCreated

	refs := make([]*vkdecode.Picture, 3)
	for i := range refs {
		refs[i] = &vkdecode.Picture{}
		require.NoError(t, d.Prepare(refs[i], false, uint32(i)))
	}
	assert.Equal(t, imagesBefore, b.Resources.Counts().ImagesCreated, "layered image is allocated once")
	assert.Equal(t, 1, d.Stats().DPBImages)

	layered := refs[0].DPBImage()
	require.NotNil(t, layered)
	assert.Equal(t, uint32(17), layered.Layers)
	for i, p := range refs {
		view := p.ReferenceView().(*sim.View)
		assert.Same(t, layered, view.Image)
		assert.Equal(t, uint32(i), view.Layer)
		assert.Nil(t, p.OutputView())
	}

	cur := decodeFrame(t, d, 3, ref(refs[0]), ref(refs[1]), ref(refs[2]))
	assert.Same(t, layered, cur.DPBImage())
	assert.NotEqual(t, cur.OutputView(), cur.ReferenceView())
	assert.Equal(t, uint32(3), cur.ReferenceView().(*sim.View).Layer)

	last := b.Queue.Last()
	assert.Len(t, last.Find(sim.OpBarrier).Barriers, 1, "only the output image needs a barrier")
	assert.Equal(t, 1, signals(last, layered.Timeline), "exactly one dependency on the layered image")
	assert.Equal(t, 1, signals(last, cur.Image.Timeline))
}

func TestLayeredSlotOutOfRange(t *testing.T) {
	_, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil)

	err := d.Prepare(&vkdecode.Picture{}, false, 17)
	assert.ErrorIs(t, err, vkdecode.ErrInvalidConfiguration)
}

func TestPerSlotDecode(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedPerSlot, nil)
	assert.Equal(t, 0, d.Stats().DPBImages)

	r0 := decodeFrame(t, d, 0)
	r1 := decodeFrame(t, d, 1, ref(r0))
	cur := decodeFrame(t, d, 2, ref(r0), ref(r1))
	assert.Equal(t, 3, d.Stats().DPBImages)

	last := b.Queue.Last()
	assert.Len(t, last.Find(sim.OpBarrier).Barriers, 1)
	for _, p := range []*vkdecode.Picture{r0, r1, cur} {
		require.NotNil(t, p.DPBImage())
		assert.Equal(t, 1, signals(last, p.DPBImage().Timeline))
	}
	assert.NotSame(t, r0.DPBImage(), r1.DPBImage())

	// Released DPB images are reused.
	dpb := r0.DPBImage()
	require.NoError(t, d.Release(r0))
	next := &vkdecode.Picture{}
	require.NoError(t, d.Prepare(next, false, 0))
	assert.Same(t, dpb, next.DPBImage())
	assert.Equal(t, 3, d.Stats().DPBImages)
}

func TestPrepareIdempotent(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedPerSlot, nil)

	img, err := d.NewOutputImage("idempotent")
	require.NoError(t, err)
	pic := &vkdecode.Picture{Image: img}
	require.NoError(t, d.Prepare(pic, true, 4))
	views := b.Resources.Counts().ViewsCreated
	refView := pic.ReferenceView()

	_, err = d.AddSlice(pic, []byte{1, 2, 3}, true)
	require.NoError(t, err)
	require.NoError(t, d.Prepare(pic, true, 4))

	assert.Equal(t, views, b.Resources.Counts().ViewsCreated)
	assert.Equal(t, refView, pic.ReferenceView())
	assert.Empty(t, pic.Slices(), "prepare resets slice data")
	assert.Empty(t, pic.SliceOffsets())
	assert.Equal(t, 1, d.Stats().DPBImages)
}

func TestPrepareFailures(t *testing.T) {
	t.Run("nil picture", func(t *testing.T) {
		_, d := newDecoder(t, vkdecode.DPBCoincident, nil)
		assert.ErrorIs(t, d.Prepare(nil, true, 0), vkdecode.ErrNilPicture)
	})

	t.Run("coincident without image", func(t *testing.T) {
		b, d := newDecoder(t, vkdecode.DPBCoincident, nil)
		err := d.Prepare(&vkdecode.Picture{}, false, 0)
		assert.ErrorIs(t, err, vkdecode.ErrNoImage)
		assert.ErrorIs(t, err, vkdecode.ErrInvalidConfiguration)
		assert.Zero(t, b.Resources.Counts().LiveViews())
	})

	t.Run("output view failure rolls back", func(t *testing.T) {
		b, d := newDecoder(t, vkdecode.DPBDedicatedPerSlot, nil)
		img, err := d.NewOutputImage("rollback")
		require.NoError(t, err)

		b.Resources.FailView = 2
		pic := &vkdecode.Picture{Image: img}
		err = d.Prepare(pic, true, 0)
		assert.ErrorIs(t, err, vkdecode.ErrOutOfMemory)
		assert.False(t, pic.Prepared())
		assert.Zero(t, b.Resources.Counts().LiveViews())
		assert.Zero(t, d.Stats().LivePictures)

		// The DPB image went back to the pool.
		require.NoError(t, d.Prepare(pic, true, 0))
		assert.Equal(t, 1, d.Stats().DPBImages)
	})
}

func TestSubmitCommandOrder(t *testing.T) {
	tests := []struct {
		name    string
		queries bool
		want    []sim.Op
	}{
		{"with status queries", true, []sim.Op{
			sim.OpBarrier, sim.OpBeginCoding, sim.OpBeginQuery, sim.OpDecode, sim.OpEndQuery, sim.OpEndCoding,
		}},
		{"without status queries", false, []sim.Op{
			sim.OpBarrier, sim.OpBeginCoding, sim.OpDecode, sim.OpEndCoding,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil, vkdecode.WithStatusQueries(tt.queries))

			r0 := &vkdecode.Picture{}
			require.NoError(t, d.Prepare(r0, false, 5))
			cur := decodeFrame(t, d, 6, ref(r0))

			last := b.Queue.Last()
			assert.Equal(t, tt.want, last.Ops())

			begin := last.Find(sim.OpBeginCoding).Begin
			require.Len(t, begin.ReferenceSlots, 2)
			assert.Equal(t, int32(5), begin.ReferenceSlots[0].SlotIndex)
			assert.Equal(t, int32(-1), begin.ReferenceSlots[1].SlotIndex)
			assert.Equal(t, cur.ReferenceView(), begin.ReferenceSlots[1].Resource.View)
			assert.Equal(t, d.Session().EmptyParameters(), begin.Parameters)

			decode := last.Find(sim.OpDecode).Decode
			assert.Equal(t, int32(6), decode.Setup.SlotIndex)
			assert.Equal(t, uint64(512), decode.SrcRange, "303 bytes aligned to 256")
			assert.Equal(t, uint64(0), decode.SrcOffset)
			assert.Equal(t, []uint32{0}, decode.SliceOffsets)
			assert.Equal(t, vkdecode.Extent2D{Width: 1920, Height: 1080}, decode.Dst.CodedExtent)
			require.Len(t, decode.ReferenceSlots, 1)
			assert.Equal(t, r0.ReferenceView(), decode.ReferenceSlots[0].Resource.View)

			staging := decode.SrcBuffer.(*sim.Buffer)
			assert.Equal(t, cur.Slices(), staging.Mapped()[:len(cur.Slices())])

			assert.Equal(t, timeline.Point{Counter: cur.Image.Timeline, Value: 1}, cur.Completion())
			assert.Equal(t, uint64(1), cur.Image.Value)
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	_, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil)

	img, err := d.NewOutputImage("validation")
	require.NoError(t, err)
	pic := &vkdecode.Picture{Image: img}
	require.NoError(t, d.Prepare(pic, true, 0))

	assert.ErrorIs(t, d.Submit(pic, nil, nil), vkdecode.ErrNoSliceData)

	_, err = d.AddSlice(pic, []byte{1}, true)
	require.NoError(t, err)

	tooMany := make([]vkdecode.Reference, vkdecode.MaxReferences+1)
	err = d.Submit(pic, tooMany, nil)
	assert.ErrorIs(t, err, vkdecode.ErrTooManyReferences)
	assert.ErrorIs(t, err, vkdecode.ErrInvalidConfiguration)

	err = d.Submit(pic, []vkdecode.Reference{{Picture: &vkdecode.Picture{}}}, nil)
	assert.ErrorIs(t, err, vkdecode.ErrPictureNotPrepared)

	assert.ErrorIs(t, d.Submit(&vkdecode.Picture{}, nil, nil), vkdecode.ErrNoImage)
	assert.ErrorIs(t, d.Submit(nil, nil, nil), vkdecode.ErrNilPicture)
}

func TestSubmitFlushesNonCoherentMemory(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, func(b *sim.Backend) {
		b.Resources.NonCoherent = true
		b.Resources.AtomSize = 1024
	})

	decodeFrame(t, d, 0)

	flushes := b.Resources.Flushes()
	require.Len(t, flushes, 1)
	assert.Equal(t, uint64(0), flushes[0].Offset)
	assert.Equal(t, uint64(1024), flushes[0].Size, "512 data bytes rounded up to the atom")
}

func TestSubmitFlushFailure(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, func(b *sim.Backend) {
		b.Resources.NonCoherent = true
	})
	b.Resources.FailFlush = sim.ErrDeviceLost

	img, err := d.NewOutputImage("flush")
	require.NoError(t, err)
	pic := &vkdecode.Picture{Image: img}
	require.NoError(t, d.Prepare(pic, true, 0))
	_, err = d.AddSlice(pic, []byte{1, 2, 3}, true)
	require.NoError(t, err)

	before := len(b.Queue.Submissions())
	err = d.Submit(pic, nil, nil)
	assert.ErrorIs(t, err, vkdecode.ErrExternalDevice)
	assert.ErrorIs(t, err, sim.ErrDeviceLost)
	assert.Zero(t, d.Stats().BitstreamOutstanding, "staging buffer returned to the pool")
	assert.Len(t, b.Queue.Submissions(), before)
	assert.True(t, pic.Completion().IsZero())
}

func TestSubmitQueueFailure(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedPerSlot, nil)

	img, err := d.NewOutputImage("queue")
	require.NoError(t, err)
	pic := &vkdecode.Picture{Image: img}
	require.NoError(t, d.Prepare(pic, true, 0))
	_, err = d.AddSlice(pic, []byte{1, 2, 3}, true)
	require.NoError(t, err)

	b.Queue.FailSubmit = sim.ErrDeviceLost
	err = d.Submit(pic, nil, nil)
	assert.ErrorIs(t, err, vkdecode.ErrExternalDevice)
	assert.True(t, pic.Completion().IsZero())
	assert.Zero(t, pic.Image.Value)
	assert.Zero(t, pic.DPBImage().Value)
	assert.Zero(t, d.Stats().BitstreamOutstanding)

	assert.Equal(t, vkdecode.LayoutUndefined, pic.Image.Layout, "layout tracks only accepted submissions")
	assert.Zero(t, pic.Image.Access)

	b.Queue.FailSubmit = nil
	require.NoError(t, d.Submit(pic, nil, nil))
	assert.Equal(t, uint64(1), pic.Completion().Value)

	barriers := b.Queue.Last().Find(sim.OpBarrier).Barriers
	require.Len(t, barriers, 1)
	assert.Equal(t, vkdecode.LayoutUndefined, barriers[0].OldLayout)
	assert.Equal(t, vkdecode.LayoutDecodeDst, pic.Image.Layout)
}

func TestStatusQueries(t *testing.T) {
	t.Run("negative result is logged", func(t *testing.T) {
		logs := captureLogs(t)
		b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil)
		b.Queue.Status = -1

		// Four exec contexts; the fifth decode reuses the first one
		// that carried a query.
		for i := range 5 {
			decodeFrame(t, d, uint32(i))
		}
		assert.Contains(t, logs.String(), "previous decode failed")
		assert.Contains(t, logs.String(), "result=-1")
	})

	t.Run("readback failure", func(t *testing.T) {
		b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil)
		for i := range 4 {
			decodeFrame(t, d, uint32(i))
		}
		b.Queue.FailQuery = sim.ErrDeviceLost

		img, err := d.NewOutputImage("status")
		require.NoError(t, err)
		pic := &vkdecode.Picture{Image: img}
		require.NoError(t, d.Prepare(pic, true, 4))
		_, err = d.AddSlice(pic, []byte{1}, true)
		require.NoError(t, err)

		err = d.Submit(pic, nil, nil)
		assert.ErrorIs(t, err, vkdecode.ErrExternalDevice)
	})

	t.Run("unsupported by queue", func(t *testing.T) {
		b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, func(b *sim.Backend) {
			b.Queue.StatusQueries = false
		})
		decodeFrame(t, d, 0)
		assert.Nil(t, b.Queue.Last().Find(sim.OpBeginQuery))
	})
}

func TestReleaseWaitsForCompletion(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, func(b *sim.Backend) {
		b.Queue.Manual = true
	})

	pic := decodeFrame(t, d, 0)
	liveViews := b.Resources.Counts().LiveViews()
	tl := pic.Image.Timeline.(*timeline.Simulated)

	done := make(chan error, 1)
	go func() { done <- d.Release(pic) }()

	require.Eventually(t, func() bool { return tl.Waiting() > 0 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("Release returned before the decode completed")
	default:
	}
	assert.Equal(t, liveViews, b.Resources.Counts().LiveViews(), "views stay alive while the decode runs")

	require.NoError(t, b.Queue.CompleteAll())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Release did not return after completion")
	}
	assert.Equal(t, liveViews-2, b.Resources.Counts().LiveViews())
	assert.False(t, pic.Prepared())
	assert.Zero(t, d.Stats().LivePictures)

	// Releasing twice is a no-op.
	assert.NoError(t, d.Release(pic))
}

func TestReleaseWaitsForLaterReferences(t *testing.T) {
	for _, mode := range []vkdecode.DPBMode{
		vkdecode.DPBCoincident,
		vkdecode.DPBDedicatedPerSlot,
		vkdecode.DPBDedicatedLayered,
	} {
		t.Run(mode.String(), func(t *testing.T) {
			b, d := newDecoder(t, mode, func(b *sim.Backend) {
				b.Queue.Manual = true
			})

			r0 := decodeFrame(t, d, 0)
			decodeFrame(t, d, 1, ref(r0))
			// Retire the session reset and the decode of r0; the decode
			// reading r0 keeps running.
			n, err := b.Queue.Complete(2)
			require.NoError(t, err)
			require.Equal(t, 2, n)
			reached, err := r0.Completion().Reached()
			require.NoError(t, err)
			require.True(t, reached)

			read := r0.Image
			if mode.Dedicated() {
				read = r0.DPBImage()
			}
			tl := read.Timeline.(*timeline.Simulated)
			liveViews := b.Resources.Counts().LiveViews()

			done := make(chan error, 1)
			go func() { done <- d.Release(r0) }()

			require.Eventually(t, func() bool { return tl.Waiting() > 0 }, time.Second, time.Millisecond)
			select {
			case <-done:
				t.Fatal("Release returned while a later decode reads the reference")
			default:
			}
			assert.Equal(t, liveViews, b.Resources.Counts().LiveViews())

			require.NoError(t, b.Queue.CompleteAll())
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("Release did not return after completion")
			}
			assert.False(t, r0.Prepared())
		})
	}
}

func TestCoincidentDuplicateReference(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBCoincident, nil)

	r0 := decodeFrame(t, d, 0)
	cur := decodeFrame(t, d, 1, ref(r0), ref(r0))

	last := b.Queue.Last()
	barriers := last.Find(sim.OpBarrier).Barriers
	require.Len(t, barriers, 2)
	assert.Same(t, cur.Image, barriers[0].Image)
	assert.Same(t, r0.Image, barriers[1].Image)
	assert.Equal(t, vkdecode.LayoutDecodeDst, barriers[1].OldLayout)
	assert.Equal(t, vkdecode.LayoutDecodeDPB, barriers[1].NewLayout)
	assert.Equal(t, 1, signals(last, r0.Image.Timeline))
	assert.Equal(t, vkdecode.LayoutDecodeDPB, r0.Image.Layout)
}

func TestSetParameters(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBDedicatedLayered, nil)

	img, err := d.NewOutputImage("params")
	require.NoError(t, err)
	pic := &vkdecode.Picture{Image: img}
	require.NoError(t, d.Prepare(pic, true, 0))

	require.NoError(t, d.SetParameters(pic, "sps/pps v1"))
	require.NoError(t, d.SetParameters(pic, "sps/pps v2"))
	_, _, params := b.Driver.Live()
	assert.Equal(t, 2, params, "empty parameters plus the latest picture parameters")
	assert.Equal(t, "sps/pps v2", pic.Parameters().(*sim.Parameters).Codec)

	_, err = d.AddSlice(pic, []byte{1}, true)
	require.NoError(t, err)
	require.NoError(t, d.Submit(pic, nil, "picture info"))

	last := b.Queue.Last()
	assert.Equal(t, pic.Parameters(), last.Find(sim.OpBeginCoding).Begin.Parameters)
	assert.Equal(t, "picture info", last.Find(sim.OpDecode).Decode.Codec)

	require.NoError(t, d.Release(pic))
	_, _, params = b.Driver.Live()
	assert.Equal(t, 1, params)
	assert.Nil(t, pic.Parameters())

	b.Driver.FailParameters = vkdecode.ErrAllocation
	assert.ErrorIs(t, d.SetParameters(pic, "v3"), vkdecode.ErrOutOfMemory)
}

func TestFlush(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBCoincident, nil)
	decodeFrame(t, d, 0)

	require.NoError(t, d.Flush())
	last := b.Queue.Last()
	assert.Equal(t, []sim.Op{sim.OpBeginCoding, sim.OpControl, sim.OpEndCoding}, last.Ops())
	assert.Empty(t, last.Find(sim.OpBeginCoding).Begin.ReferenceSlots)
}

func TestCloseReleasesEverything(t *testing.T) {
	for _, mode := range []vkdecode.DPBMode{vkdecode.DPBCoincident, vkdecode.DPBDedicatedPerSlot, vkdecode.DPBDedicatedLayered} {
		t.Run(mode.String(), func(t *testing.T) {
			b, d := newDecoder(t, mode, nil)

			var pics []*vkdecode.Picture
			for i := range 6 {
				var refs []vkdecode.Reference
				if i > 0 {
					refs = append(refs, ref(pics[i-1]))
				}
				pic := decodeFrame(t, d, uint32(i), refs...)
				require.NoError(t, d.SetParameters(pic, i))
				pics = append(pics, pic)
			}
			require.NoError(t, d.Release(pics[0]))

			require.NoError(t, d.Close())
			assert.Nil(t, d.Session())

			sessions, memory, params := b.Driver.Live()
			assert.Zero(t, sessions)
			assert.Zero(t, memory)
			assert.Zero(t, params)

			counts := b.Resources.Counts()
			assert.Zero(t, counts.LiveViews())
			assert.Zero(t, counts.LiveBuffers())
			assert.Equal(t, len(pics), counts.LiveImages(), "only caller-owned output images remain")

			for _, p := range pics {
				assert.NoError(t, d.Release(p), "release after close is a no-op")
				assert.NoError(t, d.DestroyOutputImage(p.Image))
			}
			assert.Zero(t, b.Resources.Counts().LiveImages())

			assert.NoError(t, d.Close())
			assert.ErrorIs(t, d.Submit(pics[1], nil, nil), vkdecode.ErrDecoderClosed)
			assert.ErrorIs(t, d.Prepare(&vkdecode.Picture{}, true, 0), vkdecode.ErrDecoderClosed)
			assert.ErrorIs(t, d.Flush(), vkdecode.ErrDecoderClosed)
		})
	}
}

func TestNewDecoderFailureIsAtomic(t *testing.T) {
	tests := []struct {
		name      string
		mode      vkdecode.DPBMode
		configure func(b *sim.Backend)
		kind      error
	}{
		{"session create", vkdecode.DPBCoincident, func(b *sim.Backend) { b.Driver.FailCreateSession = sim.ErrDeviceLost }, vkdecode.ErrExternalDevice},
		{"second memory allocation", vkdecode.DPBCoincident, func(b *sim.Backend) { b.Driver.FailAllocation = 2 }, vkdecode.ErrOutOfMemory},
		{"memory bind", vkdecode.DPBCoincident, func(b *sim.Backend) { b.Driver.FailBind = sim.ErrDeviceLost }, vkdecode.ErrExternalDevice},
		{"empty parameters", vkdecode.DPBCoincident, func(b *sim.Backend) { b.Driver.FailParameters = vkdecode.ErrAllocation }, vkdecode.ErrOutOfMemory},
		{"layered image", vkdecode.DPBDedicatedLayered, func(b *sim.Backend) { b.Resources.FailImage = vkdecode.ErrAllocation }, vkdecode.ErrOutOfMemory},
		{"initial reset", vkdecode.DPBDedicatedLayered, func(b *sim.Backend) { b.Queue.FailSubmit = sim.ErrDeviceLost }, vkdecode.ErrExternalDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sim.New(tt.mode)
			n, err := vkdecode.Negotiate(b.Device(), h264Request())
			require.NoError(t, err)

			tt.configure(b)
			d, err := vkdecode.NewDecoder(b.Device(), n)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.kind)

			var se *vkdecode.StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, vkdecode.StageSession, se.Stage)

			sessions, memory, params := b.Driver.Live()
			assert.Zero(t, sessions)
			assert.Zero(t, memory)
			assert.Zero(t, params)
			assert.Zero(t, b.Resources.Counts().LiveImages())
		})
	}
}

func TestNewDecoderIncompleteDevice(t *testing.T) {
	b := sim.New(vkdecode.DPBCoincident)
	n, err := vkdecode.Negotiate(b.Device(), h264Request())
	require.NoError(t, err)

	dev := b.Device()
	dev.Queue = nil
	_, err = vkdecode.NewDecoder(dev, n)
	assert.ErrorIs(t, err, vkdecode.ErrIncompleteDevice)
}

func TestDestroyOutputImageWaits(t *testing.T) {
	b, d := newDecoder(t, vkdecode.DPBCoincident, func(b *sim.Backend) {
		b.Queue.Manual = true
	})
	pic := decodeFrame(t, d, 0)
	require.NoError(t, b.Queue.CompleteAll())

	// The next decode reads pic as a reference and is left running.
	decodeFrame(t, d, 1, ref(pic))
	require.Equal(t, uint64(2), pic.Image.Value)
	img := pic.Image
	tl := img.Timeline.(*timeline.Simulated)

	done := make(chan error, 1)
	go func() { done <- d.DestroyOutputImage(img) }()
	require.Eventually(t, func() bool { return tl.Waiting() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, b.Queue.CompleteAll())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("DestroyOutputImage did not return")
	}
}
