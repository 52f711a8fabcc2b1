package vkdecode

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// PixelFormat is a device-independent pixel layout.
type PixelFormat int

const (
	PixelFormatNone PixelFormat = iota
	PixelFormatGray8
	PixelFormatGray16
	PixelFormatBGRA
	PixelFormatRGBA
	PixelFormatRGB24
	PixelFormatBGR24
	PixelFormatNV12
	PixelFormatYUV420P
	PixelFormatP010
	PixelFormatYUV420P12
	PixelFormatYUV420P16
	PixelFormatNV16
	PixelFormatYUV422P
	PixelFormatNV20
	PixelFormatYUV422P10
	PixelFormatYUV422P12
	PixelFormatYUV422P16
	PixelFormatNV24
	PixelFormatYUV444P
	PixelFormatYUV444P10
	PixelFormatYUV444P12
	PixelFormatYUV444P16
)

// pixelDesc describes the component layout of a pixel format.
type pixelDesc struct {
	name        string
	components  int
	log2ChromaW int
	log2ChromaH int
	depth       int
}

var pixelDescs = map[PixelFormat]pixelDesc{
	PixelFormatGray8:     {"gray8", 1, 0, 0, 8},
	PixelFormatGray16:    {"gray16", 1, 0, 0, 16},
	PixelFormatBGRA:      {"bgra", 4, 0, 0, 8},
	PixelFormatRGBA:      {"rgba", 4, 0, 0, 8},
	PixelFormatRGB24:     {"rgb24", 3, 0, 0, 8},
	PixelFormatBGR24:     {"bgr24", 3, 0, 0, 8},
	PixelFormatNV12:      {"nv12", 3, 1, 1, 8},
	PixelFormatYUV420P:   {"yuv420p", 3, 1, 1, 8},
	PixelFormatP010:      {"p010", 3, 1, 1, 10},
	PixelFormatYUV420P12: {"yuv420p12", 3, 1, 1, 12},
	PixelFormatYUV420P16: {"yuv420p16", 3, 1, 1, 16},
	PixelFormatNV16:      {"nv16", 3, 1, 0, 8},
	PixelFormatYUV422P:   {"yuv422p", 3, 1, 0, 8},
	PixelFormatNV20:      {"nv20", 3, 1, 0, 10},
	PixelFormatYUV422P10: {"yuv422p10", 3, 1, 0, 10},
	PixelFormatYUV422P12: {"yuv422p12", 3, 1, 0, 12},
	PixelFormatYUV422P16: {"yuv422p16", 3, 1, 0, 16},
	PixelFormatNV24:      {"nv24", 3, 0, 0, 8},
	PixelFormatYUV444P:   {"yuv444p", 3, 0, 0, 8},
	PixelFormatYUV444P10: {"yuv444p10", 3, 0, 0, 10},
	PixelFormatYUV444P12: {"yuv444p12", 3, 0, 0, 12},
	PixelFormatYUV444P16: {"yuv444p16", 3, 0, 0, 16},
}

func (p PixelFormat) String() string {
	if d, ok := pixelDescs[p]; ok {
		return d.name
	}
	if p == PixelFormatNone {
		return "none"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(p))
}

// Chroma returns the chroma subsampling of p.
func (p PixelFormat) Chroma() ChromaSubsampling {
	d, ok := pixelDescs[p]
	if !ok {
		return ChromaInvalid
	}
	return chromaFromLog2(d.components, d.log2ChromaW, d.log2ChromaH)
}

// Depth returns the component bit count of p, or 0 if unknown.
func (p PixelFormat) Depth() int {
	return pixelDescs[p].depth
}

// DeviceFormat is a device image format.
type DeviceFormat int

const (
	FormatUndefined DeviceFormat = iota
	FormatR8Unorm
	FormatR10X6UnormPack16
	FormatR12X4UnormPack16
	FormatR16Unorm
	FormatB8G8R8A8Unorm
	FormatR8G8B8A8Unorm
	FormatR8G8B8Unorm
	FormatB8G8R8Unorm
	FormatG8B8R82Plane420
	FormatG8B8R83Plane420
	FormatG10X6B10X6R10X62Plane420
	FormatG10X6B10X6R10X63Plane420
	FormatG12X4B12X4R12X42Plane420
	FormatG12X4B12X4R12X43Plane420
	FormatG16B16R163Plane420
	FormatG8B8R82Plane422
	FormatG8B8R83Plane422
	FormatG10X6B10X6R10X62Plane422
	FormatG10X6B10X6R10X63Plane422
	FormatG12X4B12X4R12X42Plane422
	FormatG12X4B12X4R12X43Plane422
	FormatG16B16R163Plane422
	FormatG8B8R82Plane444
	FormatG8B8R83Plane444
	FormatG10X6B10X6R10X62Plane444
	FormatG10X6B10X6R10X63Plane444
	FormatG12X4B12X4R12X42Plane444
	FormatG12X4B12X4R12X43Plane444
	FormatG16B16R163Plane444
)

const (
	aspectTwoPlane   = AspectPlane0 | AspectPlane1
	aspectThreePlane = AspectPlane0 | AspectPlane1 | AspectPlane2
)

// deviceFormatInfo maps a device format to its abstract format, preference
// score (lower is better) and plane aspects. Formats with no abstract
// counterpart have pix == PixelFormatNone.
type deviceFormatInfo struct {
	name   string
	pix    PixelFormat
	score  int
	aspect AspectMask
}

var deviceFormats = map[DeviceFormat]deviceFormatInfo{
	FormatR8Unorm:          {"r8-unorm", PixelFormatGray8, 1, AspectColor},
	FormatR10X6UnormPack16: {"r10x6-unorm", PixelFormatGray16, 2, AspectColor},
	FormatR12X4UnormPack16: {"r12x4-unorm", PixelFormatGray16, 2, AspectColor},
	FormatR16Unorm:         {"r16-unorm", PixelFormatGray16, 1, AspectColor},
	FormatB8G8R8A8Unorm:    {"b8g8r8a8-unorm", PixelFormatBGRA, 1, AspectColor},
	FormatR8G8B8A8Unorm:    {"r8g8b8a8-unorm", PixelFormatRGBA, 1, AspectColor},
	FormatR8G8B8Unorm:      {"r8g8b8-unorm", PixelFormatRGB24, 1, AspectColor},
	FormatB8G8R8Unorm:      {"b8g8r8-unorm", PixelFormatBGR24, 1, AspectColor},

	FormatG8B8R82Plane420:          {"g8-b8r8-2plane-420", PixelFormatNV12, 1, aspectTwoPlane},
	FormatG8B8R83Plane420:          {"g8-b8-r8-3plane-420", PixelFormatYUV420P, 1, aspectThreePlane},
	FormatG10X6B10X6R10X62Plane420: {"g10x6-b10x6r10x6-2plane-420", PixelFormatP010, 2, aspectTwoPlane},
	FormatG10X6B10X6R10X63Plane420: {"g10x6-b10x6-r10x6-3plane-420", PixelFormatYUV420P16, 2, aspectThreePlane},
	FormatG12X4B12X4R12X42Plane420: {"g12x4-b12x4r12x4-2plane-420", PixelFormatNone, 0, AspectNone},
	FormatG12X4B12X4R12X43Plane420: {"g12x4-b12x4-r12x4-3plane-420", PixelFormatYUV420P12, 2, aspectThreePlane},
	FormatG16B16R163Plane420:       {"g16-b16-r16-3plane-420", PixelFormatYUV420P16, 1, aspectThreePlane},

	FormatG8B8R82Plane422:          {"g8-b8r8-2plane-422", PixelFormatNV16, 1, aspectTwoPlane},
	FormatG8B8R83Plane422:          {"g8-b8-r8-3plane-422", PixelFormatYUV422P, 1, aspectThreePlane},
	FormatG10X6B10X6R10X62Plane422: {"g10x6-b10x6r10x6-2plane-422", PixelFormatNV20, 2, aspectTwoPlane},
	FormatG10X6B10X6R10X63Plane422: {"g10x6-b10x6-r10x6-3plane-422", PixelFormatYUV422P10, 2, aspectThreePlane},
	FormatG12X4B12X4R12X42Plane422: {"g12x4-b12x4r12x4-2plane-422", PixelFormatNone, 0, AspectNone},
	FormatG12X4B12X4R12X43Plane422: {"g12x4-b12x4-r12x4-3plane-422", PixelFormatYUV422P12, 2, aspectThreePlane},
	FormatG16B16R163Plane422:       {"g16-b16-r16-3plane-422", PixelFormatYUV422P16, 1, aspectThreePlane},

	FormatG8B8R82Plane444:          {"g8-b8r8-2plane-444", PixelFormatNV24, 1, aspectTwoPlane},
	FormatG8B8R83Plane444:          {"g8-b8-r8-3plane-444", PixelFormatYUV444P, 1, aspectThreePlane},
	FormatG10X6B10X6R10X62Plane444: {"g10x6-b10x6r10x6-2plane-444", PixelFormatNone, 0, AspectNone},
	FormatG10X6B10X6R10X63Plane444: {"g10x6-b10x6-r10x6-3plane-444", PixelFormatYUV444P10, 2, aspectThreePlane},
	FormatG12X4B12X4R12X42Plane444: {"g12x4-b12x4r12x4-2plane-444", PixelFormatNone, 0, AspectNone},
	FormatG12X4B12X4R12X43Plane444: {"g12x4-b12x4-r12x4-3plane-444", PixelFormatYUV444P12, 2, aspectThreePlane},
	FormatG16B16R163Plane444:       {"g16-b16-r16-3plane-444", PixelFormatYUV444P16, 1, aspectThreePlane},
}

func (f DeviceFormat) String() string {
	if info, ok := deviceFormats[f]; ok {
		return info.name
	}
	if f == FormatUndefined {
		return "undefined"
	}
	return fmt.Sprintf("DeviceFormat(%d)", int(f))
}

// PixelFormat returns the abstract format of f and its preference score.
// It returns PixelFormatNone for formats the decoder cannot output.
func (f DeviceFormat) PixelFormat() (PixelFormat, int) {
	info := deviceFormats[f]
	return info.pix, info.score
}

// Aspect returns the plane aspects of f.
func (f DeviceFormat) Aspect() AspectMask {
	return deviceFormats[f].aspect
}

// TextureFormat returns the gputypes format used to store f in a
// general-purpose texture. Multi-planar 8-bit formats map to their luma
// plane. ok is false when no gputypes format can hold f.
func (f DeviceFormat) TextureFormat() (gputypes.TextureFormat, bool) {
	switch f {
	case FormatB8G8R8A8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, true
	case FormatR8G8B8A8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case FormatR8Unorm,
		FormatG8B8R82Plane420, FormatG8B8R83Plane420,
		FormatG8B8R82Plane422, FormatG8B8R83Plane422,
		FormatG8B8R82Plane444, FormatG8B8R83Plane444:
		return gputypes.TextureFormatR8Unorm, true
	}
	return gputypes.TextureFormatUndefined, false
}

// selectFormat picks the device format to decode into. An exact match for
// want wins outright; otherwise the lowest score wins, ties going to the
// earliest candidate. ok is false if no candidate maps to a known format.
func selectFormat(candidates []DeviceFormat, want PixelFormat) (best DeviceFormat, pix PixelFormat, exact, ok bool) {
	bestScore := int(^uint(0) >> 1)
	for _, f := range candidates {
		p, score := f.PixelFormat()
		if p == PixelFormatNone {
			continue
		}
		if want != PixelFormatNone && p == want {
			return f, p, true, true
		}
		if score < bestScore {
			bestScore = score
			best, pix, ok = f, p, true
		}
	}
	return best, pix, false, ok
}
