package vkdecode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Request describes the stream a decoder is negotiated for.
type Request struct {
	Codec   Codec
	Profile int
	Level   int

	// PixelFormat is the stream's software pixel format. It supplies the
	// chroma subsampling and bit depth of the queried profile.
	PixelFormat PixelFormat

	CodedWidth  uint32
	CodedHeight uint32

	// ContextFormat is the format the caller's frames are already
	// configured with, or PixelFormatNone.
	ContextFormat PixelFormat

	// Interlaced selects interleaved field decoding for H.264.
	Interlaced bool
}

// Negotiated is the configuration a decode session is created with.
type Negotiated struct {
	Codec       Codec
	Profile     VideoProfile
	Caps        Capabilities
	Mode        DPBMode
	Format      DeviceFormat
	PixelFormat PixelFormat
	CodedExtent Extent2D
}

// FrameSize returns the coded extent aligned to the picture access
// granularity. Output images must be at least this large.
func (n *Negotiated) FrameSize() Extent2D {
	return Extent2D{
		Width:  alignUp32(n.CodedExtent.Width, n.Caps.PictureAccessGranularity.Width),
		Height: alignUp32(n.CodedExtent.Height, n.Caps.PictureAccessGranularity.Height),
	}
}

// OutputUsage returns the usage output images need. Coincident mode also
// decodes references into them.
func (n *Negotiated) OutputUsage() ImageUsage {
	u := UsageTransferSrc | UsageSampled | UsageDecodeDst
	if !n.Mode.Dedicated() {
		u |= UsageDecodeDPB
	}
	return u
}

// formatQueryUsage is the usage formats are enumerated for.
func formatQueryUsage(mode DPBMode) ImageUsage {
	if mode.Dedicated() {
		return UsageDecodeDPB
	}
	return UsageDecodeDPB | UsageDecodeDst | UsageSampled | UsageTransferSrc
}

// Negotiate queries the device for req and derives the session
// configuration. Options WithAllowProfileMismatch and WithIgnoreLevel
// relax the checks.
func Negotiate(dev Device, req *Request, opts ...Option) (*Negotiated, error) {
	if dev.Video == nil {
		return nil, stageError(StageNegotiate, "device", ErrIncompleteDevice)
	}
	if req == nil {
		return nil, stageErrorKind(StageNegotiate, ErrInvalidConfiguration, "request", errors.New("nil request"))
	}
	o := buildOptions(opts)
	log := Logger()

	info, ok := codecTable[req.Codec]
	if !ok {
		return nil, stageErrorKind(StageNegotiate, ErrUnsupported, "codec",
			fmt.Errorf("unsupported codec %v", req.Codec))
	}

	profile := profileFor(req, info)
	caps, err := dev.Video.Capabilities(&profile)
	if errors.Is(err, ErrProfileOperationNotSupported) &&
		o.allowProfileMismatch && profile.ProfileIDC != info.baseProfile {
		log.Warn("vkdecode: profile not supported, retrying with base profile",
			"codec", req.Codec, "profile", profile.ProfileIDC, "base", info.baseProfile)
		profile.ProfileIDC = info.baseProfile
		caps, err = dev.Video.Capabilities(&profile)
	}
	if err != nil {
		return nil, stageError(StageNegotiate, capabilityErrorCode(err, req, profile), err)
	}
	if caps == nil {
		return nil, stageErrorKind(StageNegotiate, ErrExternalDevice, "capabilities",
			errors.New("driver returned no capabilities"))
	}

	logCapabilities(log, req.Codec, &profile, caps)

	if req.CodedWidth < caps.MinCodedExtent.Width || req.CodedHeight < caps.MinCodedExtent.Height ||
		req.CodedWidth > caps.MaxCodedExtent.Width || req.CodedHeight > caps.MaxCodedExtent.Height {
		return nil, stageErrorKind(StageNegotiate, ErrInvalidConfiguration, "extent",
			fmt.Errorf("coded size %dx%d outside %v..%v",
				req.CodedWidth, req.CodedHeight, caps.MinCodedExtent, caps.MaxCodedExtent))
	}
	if !o.ignoreLevel && req.Level > caps.MaxLevel {
		return nil, stageErrorKind(StageNegotiate, ErrInvalidConfiguration, "level",
			fmt.Errorf("level %d above device maximum %d", req.Level, caps.MaxLevel))
	}

	mode, err := dpbModeFor(caps)
	if err != nil {
		log.Error("vkdecode: driver reported inconsistent decode capabilities",
			"decode_flags", caps.DecodeFlags, "flags", caps.Flags, "err", err)
		return nil, stageErrorKind(StageNegotiate, ErrDriverContractViolation, "capabilities", err)
	}

	formats, err := dev.Video.Formats(&profile, formatQueryUsage(mode))
	if err != nil {
		return nil, stageError(StageNegotiate, "formats", err)
	}
	if len(formats) == 0 {
		return nil, stageErrorKind(StageNegotiate, ErrInvalidConfiguration, "formats",
			errors.New("device reports no decode formats"))
	}

	for i, f := range formats {
		if p, score := f.PixelFormat(); p != PixelFormatNone {
			log.Debug("vkdecode: decode format candidate", "index", i, "format", f, "pixel", p, "score", score)
		}
	}

	format, pix, exact, ok := selectFormat(formats, req.ContextFormat)
	if !ok {
		return nil, stageErrorKind(StageNegotiate, ErrInvalidConfiguration, "formats",
			errors.New("no valid pixel format for decoding"))
	}
	if req.ContextFormat != PixelFormatNone && !exact {
		log.Warn("vkdecode: frames format not available for decoding, using fallback",
			"want", req.ContextFormat, "chosen", pix)
	}
	log.Info("vkdecode: negotiated", "codec", req.Codec, "profile", profile.ProfileIDC,
		"mode", mode, "format", format, "pixel", pix)

	return &Negotiated{
		Codec:       req.Codec,
		Profile:     profile,
		Caps:        *caps,
		Mode:        mode,
		Format:      format,
		PixelFormat: pix,
		CodedExtent: Extent2D{Width: req.CodedWidth, Height: req.CodedHeight},
	}, nil
}

func profileFor(req *Request, info codecInfo) VideoProfile {
	depth := DepthFromBits(req.PixelFormat.Depth())
	p := VideoProfile{
		Operation:   info.operation,
		Codec:       req.Codec,
		ProfileIDC:  req.Profile,
		Chroma:      req.PixelFormat.Chroma(),
		LumaDepth:   depth,
		ChromaDepth: depth,
	}
	if req.Codec == CodecH264 && req.Interlaced {
		p.Layout = PictureInterlacedInterleaved
	}
	return p
}

// dpbModeFor derives the DPB layout from the decode capability flags and
// rejects inconsistent flag sets.
func dpbModeFor(caps *Capabilities) (DPBMode, error) {
	modes := caps.DecodeFlags & (DecodeDPBAndOutputCoincide | DecodeDPBAndOutputDistinct)
	switch {
	case modes == 0:
		return 0, errors.New("neither coincident nor distinct DPB mode reported")
	case modes == DecodeDPBAndOutputCoincide && caps.Flags&CapabilitySeparateReferenceImages == 0:
		return 0, errors.New("coincident DPB reported without separate reference images")
	}

	if caps.DecodeFlags&DecodeDPBAndOutputCoincide != 0 {
		return DPBCoincident, nil
	}
	if caps.Flags&CapabilitySeparateReferenceImages == 0 {
		return DPBDedicatedLayered, nil
	}
	return DPBDedicatedPerSlot, nil
}

func capabilityErrorCode(err error, req *Request, profile VideoProfile) string {
	switch {
	case errors.Is(err, ErrProfileOperationNotSupported):
		return fmt.Sprintf("%v profile %d not supported", req.Codec, profile.ProfileIDC)
	case errors.Is(err, ErrProfileFormatNotSupported):
		return fmt.Sprintf("format %v not supported", req.PixelFormat)
	}
	return "capabilities"
}

func logCapabilities(log *slog.Logger, codec Codec, profile *VideoProfile, caps *Capabilities) {
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	log.Debug("vkdecode: decoder capabilities",
		"codec", codec,
		"profile", profile.ProfileIDC,
		"max_level", caps.MaxLevel,
		"min_extent", caps.MinCodedExtent,
		"max_extent", caps.MaxCodedExtent,
		"granularity", caps.PictureAccessGranularity,
		"bitstream_offset_align", caps.MinBitstreamBufferOffsetAlignment,
		"bitstream_size_align", caps.MinBitstreamBufferSizeAlignment,
		"max_dpb_slots", caps.MaxDpbSlots,
		"max_active_refs", caps.MaxActiveReferencePictures,
		"header_version", caps.HeaderVersion,
		"decode_modes", decodeModeNames(caps.DecodeFlags),
		"flags", capabilityNames(caps.Flags),
	)
}

func decodeModeNames(f DecodeCapabilityFlags) string {
	var names []string
	if f&DecodeDPBAndOutputCoincide != 0 {
		names = append(names, "reuse_dst_dpb")
	}
	if f&DecodeDPBAndOutputDistinct != 0 {
		names = append(names, "dedicated_dpb")
	}
	if len(names) == 0 {
		return "invalid"
	}
	return strings.Join(names, ",")
}

func capabilityNames(f CapabilityFlags) string {
	var names []string
	if f&CapabilityProtectedContent != 0 {
		names = append(names, "protected")
	}
	if f&CapabilitySeparateReferenceImages != 0 {
		names = append(names, "separate_references")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func alignUp32(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

func alignUp64(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
