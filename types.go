package vkdecode

import (
	"fmt"

	"github.com/gogpu/vkdecode/timeline"
)

// Codec identifies a video coding standard.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
)

func (c Codec) String() string {
	if info, ok := codecTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Codec(%d)", int(c))
}

// CodecOperation is the device-side decode operation bit for a codec.
type CodecOperation uint32

const (
	OperationDecodeH264 CodecOperation = 0x00000001
	OperationDecodeH265 CodecOperation = 0x00000002
)

// Profile IDCs.
const (
	ProfileH264Baseline            = 66
	ProfileH264ConstrainedBaseline = 66 | 1<<9
	ProfileH264Main                = 77
	ProfileH264High                = 100
	ProfileH264High10              = 110
	ProfileH264High422             = 122
	ProfileH264High444Predictive   = 244

	ProfileH265Main      = 1
	ProfileH265Main10    = 2
	ProfileH265MainStill = 3
	ProfileH265RExt      = 4
)

type codecInfo struct {
	name        string
	operation   CodecOperation
	baseProfile int
}

var codecTable = map[Codec]codecInfo{
	CodecH264: {name: "h264", operation: OperationDecodeH264, baseProfile: ProfileH264ConstrainedBaseline},
	CodecH265: {name: "hevc", operation: OperationDecodeH265, baseProfile: ProfileH265Main},
}

// ChromaSubsampling is a device chroma subsampling bit.
type ChromaSubsampling uint32

const (
	ChromaInvalid    ChromaSubsampling = 0
	ChromaMonochrome ChromaSubsampling = 0x1
	Chroma420        ChromaSubsampling = 0x2
	Chroma422        ChromaSubsampling = 0x4
	Chroma444        ChromaSubsampling = 0x8
)

func (c ChromaSubsampling) String() string {
	switch c {
	case ChromaMonochrome:
		return "monochrome"
	case Chroma420:
		return "4:2:0"
	case Chroma422:
		return "4:2:2"
	case Chroma444:
		return "4:4:4"
	}
	return "invalid"
}

// chromaFromLog2 maps log2 chroma shifts to a subsampling bit.
func chromaFromLog2(components, log2W, log2H int) ChromaSubsampling {
	if components == 1 {
		return ChromaMonochrome
	}
	switch {
	case log2W == 1 && log2H == 1:
		return Chroma420
	case log2W == 1 && log2H == 0:
		return Chroma422
	case log2W == 0 && log2H == 0:
		return Chroma444
	}
	return ChromaInvalid
}

// BitDepth is a device component bit depth bit.
type BitDepth uint32

const (
	DepthInvalid BitDepth = 0
	Depth8       BitDepth = 0x01
	Depth10      BitDepth = 0x04
	Depth12      BitDepth = 0x10
)

// DepthFromBits converts a bit count to a BitDepth.
func DepthFromBits(bits int) BitDepth {
	switch bits {
	case 8:
		return Depth8
	case 10:
		return Depth10
	case 12:
		return Depth12
	}
	return DepthInvalid
}

func (d BitDepth) String() string {
	switch d {
	case Depth8:
		return "8"
	case Depth10:
		return "10"
	case Depth12:
		return "12"
	}
	return "invalid"
}

// PictureLayout selects progressive or interlaced decoding (H.264 only).
type PictureLayout int

const (
	PictureProgressive PictureLayout = iota
	PictureInterlacedInterleaved
)

// VideoProfile describes a codec configuration queried from the device.
type VideoProfile struct {
	Operation   CodecOperation
	Codec       Codec
	ProfileIDC  int
	Chroma      ChromaSubsampling
	LumaDepth   BitDepth
	ChromaDepth BitDepth
	Layout      PictureLayout
}

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width, Height uint32
}

func (e Extent2D) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

// CapabilityFlags are generic video capability bits.
type CapabilityFlags uint32

const (
	CapabilityProtectedContent        CapabilityFlags = 0x1
	CapabilitySeparateReferenceImages CapabilityFlags = 0x2
)

// DecodeCapabilityFlags are decode-specific capability bits.
type DecodeCapabilityFlags uint32

const (
	DecodeDPBAndOutputCoincide DecodeCapabilityFlags = 0x1
	DecodeDPBAndOutputDistinct DecodeCapabilityFlags = 0x2
)

// Capabilities is the device answer to a capability query.
type Capabilities struct {
	Flags       CapabilityFlags
	DecodeFlags DecodeCapabilityFlags

	MinBitstreamBufferOffsetAlignment uint64
	MinBitstreamBufferSizeAlignment   uint64
	PictureAccessGranularity          Extent2D
	MinCodedExtent                    Extent2D
	MaxCodedExtent                    Extent2D
	MaxDpbSlots                       uint32
	MaxActiveReferencePictures        uint32

	// MaxLevel is the codec-specific maximum level IDC.
	MaxLevel int

	// HeaderVersion is the codec standard header version.
	HeaderVersion uint32
}

// DPBMode is the decoded picture buffer layout selected at negotiation.
type DPBMode int

const (
	// DPBCoincident uses the output image as the reference image.
	DPBCoincident DPBMode = iota
	// DPBDedicatedPerSlot uses one pooled DPB image per reference slot.
	DPBDedicatedPerSlot
	// DPBDedicatedLayered uses one DPB image with a layer per slot.
	DPBDedicatedLayered
)

// Dedicated reports whether DPB images are separate from output images.
func (m DPBMode) Dedicated() bool { return m != DPBCoincident }

// Layered reports whether all DPB slots share one layered image.
func (m DPBMode) Layered() bool { return m == DPBDedicatedLayered }

func (m DPBMode) String() string {
	switch m {
	case DPBCoincident:
		return "coincident"
	case DPBDedicatedPerSlot:
		return "dedicated-per-slot"
	case DPBDedicatedLayered:
		return "dedicated-layered"
	}
	return fmt.Sprintf("DPBMode(%d)", int(m))
}

// ImageUsage is a set of image usage bits.
type ImageUsage uint32

const (
	UsageTransferSrc ImageUsage = 1 << iota
	UsageTransferDst
	UsageSampled
	UsageStorage
	UsageDecodeDst
	UsageDecodeSrc
	UsageDecodeDPB
)

// Contains reports whether u includes all bits of other.
func (u ImageUsage) Contains(other ImageUsage) bool { return u&other == other }

// AspectMask selects image planes.
type AspectMask uint32

const (
	AspectNone   AspectMask = 0
	AspectColor  AspectMask = 0x01
	AspectPlane0 AspectMask = 0x10
	AspectPlane1 AspectMask = 0x20
	AspectPlane2 AspectMask = 0x40
)

// ImageLayout is the tracked layout of an image.
type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutDecodeDst
	LayoutDecodeDPB
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutDecodeDst:
		return "decode-dst"
	case LayoutDecodeDPB:
		return "decode-dpb"
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

// AccessFlags is a set of memory access bits.
type AccessFlags uint64

const (
	AccessNone          AccessFlags = 0
	AccessShaderRead    AccessFlags = 1 << 5
	AccessTransferRead  AccessFlags = 1 << 11
	AccessTransferWrite AccessFlags = 1 << 12
	AccessHostWrite     AccessFlags = 1 << 14
	AccessMemoryRead    AccessFlags = 1 << 15
	AccessDecodeRead    AccessFlags = 1 << 35
	AccessDecodeWrite   AccessFlags = 1 << 36
)

// PipelineStage is a synchronization scope.
type PipelineStage uint64

const (
	PipelineStageNone        PipelineStage = 0
	PipelineStageTopOfPipe   PipelineStage = 1 << 0
	PipelineStageAllCommands PipelineStage = 1 << 16
	PipelineStageVideoDecode PipelineStage = 1 << 26
)

// QueueFamilyIgnored marks an image that has no queue-family owner.
const QueueFamilyIgnored = ^uint32(0)

// MaxReferences is the largest number of reference pictures any supported
// codec uses in one decode.
const MaxReferences = 36

// Opaque backend handles.
type (
	SessionHandle    any
	ParametersHandle any
	MemoryHandle     any
	ViewHandle       any
	BufferHandle     any
)

// Image is a device image together with the state the decoder tracks for
// it: current layout, access and queue-family owner, and its completion
// timeline. Value is the last timeline value a submission touching the
// image will signal.
type Image struct {
	Handle any
	Format DeviceFormat
	Extent Extent2D
	Layers uint32
	Usage  ImageUsage

	Layout      ImageLayout
	Access      AccessFlags
	QueueFamily uint32

	Timeline timeline.Counter
	Value    uint64
}

// Completion returns the point at which all submitted work on img is done.
func (img *Image) Completion() timeline.Point {
	return timeline.Point{Counter: img.Timeline, Value: img.Value}
}

// ImageDescriptor describes an image to allocate.
type ImageDescriptor struct {
	Label   string
	Format  DeviceFormat
	Extent  Extent2D
	Layers  uint32
	Usage   ImageUsage
	Profile *VideoProfile

	// InitialLayout is the layout the backend leaves the image in.
	InitialLayout ImageLayout
}

// ViewDescriptor describes a single-layer view of an image.
type ViewDescriptor struct {
	Format    DeviceFormat
	Aspect    AspectMask
	BaseLayer uint32
}

// MemoryRequirement is one memory binding a video session needs.
type MemoryRequirement struct {
	BindIndex      uint32
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// MemoryBinding binds an allocation to a session binding index.
type MemoryBinding struct {
	BindIndex uint32
	Memory    MemoryHandle
	Offset    uint64
	Size      uint64
}

// SessionCreateInfo describes a video session.
type SessionCreateInfo struct {
	Profile             VideoProfile
	QueueFamily         uint32
	MaxCodedExtent      Extent2D
	PictureFormat       DeviceFormat
	ReferenceFormat     DeviceFormat
	MaxDpbSlots         uint32
	MaxActiveReferences uint32
	HeaderVersion       uint32
}

// ImageBarrier is one image memory barrier.
type ImageBarrier struct {
	Image          *Image
	SrcStage       PipelineStage
	DstStage       PipelineStage
	SrcAccess      AccessFlags
	DstAccess      AccessFlags
	OldLayout      ImageLayout
	NewLayout      ImageLayout
	SrcQueueFamily uint32
	DstQueueFamily uint32
	Aspect         AspectMask
	BaseLayer      uint32
	LayerCount     uint32
}

// PictureResource is a view and the region of it used by a decode.
type PictureResource struct {
	View        ViewHandle
	CodedExtent Extent2D
}

// ReferenceSlot binds a DPB slot index to a picture resource.
// SlotIndex -1 marks a slot being activated by the current decode.
type ReferenceSlot struct {
	SlotIndex int32
	Resource  PictureResource
}

// BeginCodingInfo opens a video coding scope.
type BeginCodingInfo struct {
	Session        SessionHandle
	Parameters     ParametersHandle
	ReferenceSlots []ReferenceSlot
}

// CodingControlFlags are video coding control bits.
type CodingControlFlags uint32

const (
	CodingControlReset CodingControlFlags = 0x1
)

// DecodeInfo is the decode command.
type DecodeInfo struct {
	SrcBuffer      BufferHandle
	SrcOffset      uint64
	SrcRange       uint64
	SliceOffsets   []uint32
	Dst            PictureResource
	Setup          *ReferenceSlot
	ReferenceSlots []ReferenceSlot

	// Codec is the codec-specific picture description, passed through.
	Codec any
}
