package vkdecode

import "fmt"

// dpbPool owns the dedicated DPB images of a session: either one layered
// image shared by every slot or a free list of single-layer images.
type dpbPool struct {
	res     ResourceAllocator
	desc    ImageDescriptor
	layered *Image

	free []*Image
	all  []*Image
}

func newDPBPool(res ResourceAllocator, n *Negotiated) (*dpbPool, error) {
	profile := n.Profile
	p := &dpbPool{
		res: res,
		desc: ImageDescriptor{
			Label:         "vkdecode_dpb",
			Format:        n.Format,
			Extent:        n.FrameSize(),
			Layers:        1,
			Usage:         UsageDecodeDPB | UsageSampled,
			Profile:       &profile,
			InitialLayout: LayoutDecodeDPB,
		},
	}
	if !n.Mode.Layered() {
		return p, nil
	}

	desc := p.desc
	desc.Label = "vkdecode_dpb_layered"
	desc.Layers = max(n.Caps.MaxDpbSlots, 1)
	img, err := res.CreateImage(&desc)
	if err != nil {
		return nil, fmt.Errorf("layered dpb image: %w", err)
	}
	p.layered = img
	p.all = append(p.all, img)
	return p, nil
}

// get returns the image backing slot. pooled is true when the image must be
// handed back with put.
func (p *dpbPool) get(slot uint32) (img *Image, pooled bool, err error) {
	if p.layered != nil {
		if slot >= p.layered.Layers {
			return nil, false, fmt.Errorf("dpb slot %d out of %d layers: %w", slot, p.layered.Layers, ErrInvalidConfiguration)
		}
		return p.layered, false, nil
	}
	if n := len(p.free); n > 0 {
		img = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return img, true, nil
	}
	img, err = p.res.CreateImage(&p.desc)
	if err != nil {
		return nil, false, fmt.Errorf("dpb image: %w", err)
	}
	p.all = append(p.all, img)
	return img, true, nil
}

func (p *dpbPool) put(img *Image) {
	if img == nil || img == p.layered {
		return
	}
	p.free = append(p.free, img)
}

// images returns the number of DPB images ever allocated.
func (p *dpbPool) images() int {
	if p == nil {
		return 0
	}
	return len(p.all)
}

// destroy frees every DPB image.
func (p *dpbPool) destroy() {
	if p == nil {
		return
	}
	for _, img := range p.all {
		p.res.DestroyImage(img)
	}
	p.all, p.free, p.layered = nil, nil, nil
}
