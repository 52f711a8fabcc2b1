package vkdecode

// frameBuild collects the dependencies and barriers of one submission.
// Tracked image state changes only once commit is called.
type frameBuild struct {
	exec     *execContext
	family   uint32
	dpb      *dpbPool
	barriers []ImageBarrier
}

func newFrameBuild(exec *execContext, family uint32, dpb *dpbPool) *frameBuild {
	return &frameBuild{
		exec:     exec,
		family:   family,
		dpb:      dpb,
		barriers: make([]ImageBarrier, 0, 1+MaxReferences),
	}
}

// referenceStrategy registers the reference pictures of a submission.
type referenceStrategy func(b *frameBuild, cur *Picture, refs []Reference)

// referenceStrategies is indexed by DPBMode.
var referenceStrategies = [...]referenceStrategy{
	DPBCoincident:       coincidentReferences,
	DPBDedicatedPerSlot: perSlotReferences,
	DPBDedicatedLayered: layeredReferences,
}

// coincidentReferences depends on every reference image and moves each
// into the DPB layout; it may still be in a sampling layout.
func coincidentReferences(b *frameBuild, _ *Picture, refs []Reference) {
	for _, ref := range refs {
		img := ref.Picture.Image
		if b.transitioned(img) {
			continue
		}
		b.exec.addImage(img)
		b.barrier(img, ref.Picture.refAspect, PipelineStageVideoDecode,
			AccessDecodeRead|AccessDecodeWrite, LayoutDecodeDPB)
	}
}

// perSlotReferences depends on the DPB image of the current picture and
// of every reference. DPB images never leave the DPB layout.
func perSlotReferences(b *frameBuild, cur *Picture, refs []Reference) {
	if cur.dpb != nil {
		b.exec.addImage(cur.dpb)
	}
	for _, ref := range refs {
		if ref.Picture.dpb != nil {
			b.exec.addImage(ref.Picture.dpb)
		}
	}
}

// layeredReferences depends once on the shared layered image.
func layeredReferences(b *frameBuild, _ *Picture, _ []Reference) {
	if b.dpb != nil && b.dpb.layered != nil {
		b.exec.addImage(b.dpb.layered)
	}
}

// outputBarrier moves the output image to the decode destination layout.
func (b *frameBuild) outputBarrier(p *Picture) {
	b.barrier(p.Image, p.outAspect, PipelineStageVideoDecode, AccessDecodeWrite, LayoutDecodeDst)
}

// transitioned reports whether img already has a barrier in this build.
func (b *frameBuild) transitioned(img *Image) bool {
	for i := range b.barriers {
		if b.barriers[i].Image == img {
			return true
		}
	}
	return false
}

// barrier appends a transition of img from its tracked state.
func (b *frameBuild) barrier(img *Image, aspect AspectMask, dstStage PipelineStage, dstAccess AccessFlags, layout ImageLayout) {
	src, dst := QueueFamilyIgnored, QueueFamilyIgnored
	if img.QueueFamily != QueueFamilyIgnored && img.QueueFamily != b.family {
		src, dst = img.QueueFamily, b.family
	}
	b.barriers = append(b.barriers, ImageBarrier{
		Image:          img,
		SrcStage:       PipelineStageAllCommands,
		DstStage:       dstStage,
		SrcAccess:      img.Access,
		DstAccess:      dstAccess,
		OldLayout:      img.Layout,
		NewLayout:      layout,
		SrcQueueFamily: src,
		DstQueueFamily: dst,
		Aspect:         aspect,
		LayerCount:     1,
	})
}

// commit records the new layout, access and owning family of every
// transitioned image. Call it once the submission is accepted.
func (b *frameBuild) commit() {
	for i := range b.barriers {
		bar := &b.barriers[i]
		bar.Image.Layout = bar.NewLayout
		bar.Image.Access = bar.DstAccess
		bar.Image.QueueFamily = b.family
	}
}
