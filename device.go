package vkdecode

import "github.com/gogpu/vkdecode/timeline"

// VideoDriver is the device video API: capability queries and video
// session objects.
type VideoDriver interface {
	// Capabilities queries decode capabilities for profile. Unsupported
	// profiles report ErrProfileOperationNotSupported or
	// ErrProfileFormatNotSupported.
	Capabilities(profile *VideoProfile) (*Capabilities, error)

	// Formats lists the image formats usable for profile with usage.
	Formats(profile *VideoProfile, usage ImageUsage) ([]DeviceFormat, error)

	CreateSession(info *SessionCreateInfo) (SessionHandle, error)
	DestroySession(session SessionHandle)

	// SessionMemoryRequirements returns one entry per memory binding the
	// session needs.
	SessionMemoryRequirements(session SessionHandle) ([]MemoryRequirement, error)
	AllocateMemory(req MemoryRequirement) (MemoryHandle, error)
	FreeMemory(mem MemoryHandle)
	BindSessionMemory(session SessionHandle, binds []MemoryBinding) error

	// CreateParameters creates a session parameters object. A nil
	// codecParams creates an empty object.
	CreateParameters(session SessionHandle, codecParams any) (ParametersHandle, error)
	DestroyParameters(params ParametersHandle)
}

// ResourceAllocator creates the buffers, images, views and timelines a
// decoder uses.
type ResourceAllocator interface {
	// CreateBuffer creates a host-visible, persistently mapped buffer of
	// at least size bytes usable as a decode source.
	CreateBuffer(size uint64) (MappedBuffer, error)

	// CreateImage creates an image. The returned Image must carry a
	// timeline and report QueueFamilyIgnored and desc.InitialLayout.
	CreateImage(desc *ImageDescriptor) (*Image, error)
	DestroyImage(img *Image)

	CreateView(img *Image, desc *ViewDescriptor) (ViewHandle, error)
	DestroyView(view ViewHandle)

	// NewTimeline creates a completion counter starting at zero.
	NewTimeline() (timeline.Counter, error)

	// NonCoherentAtomSize is the flush granularity of non-coherent memory.
	NonCoherentAtomSize() uint64
}

// MappedBuffer is a host-visible buffer.
type MappedBuffer interface {
	Handle() BufferHandle
	Size() uint64

	// Mapped returns the host view of the buffer, Size bytes long.
	Mapped() []byte

	// Coherent reports whether host writes are visible without Flush.
	Coherent() bool

	// Flush makes host writes to [offset, offset+size) visible to the device.
	Flush(offset, size uint64) error

	Destroy()
}

// Queue records and submits command buffers.
type Queue interface {
	// Family is the queue family index used for ownership transfers.
	Family() uint32

	// SupportsStatusQueries reports whether decode result status queries
	// are available.
	SupportsStatusQueries() bool

	NewCommandBuffer() (CommandBuffer, error)

	// Submit executes cmd asynchronously and advances every counter in
	// signals to its value when the work retires.
	Submit(cmd CommandBuffer, signals []timeline.Point) error

	// QueryResult reads the status recorded at query slot. ready is false
	// while the result is unavailable. Negative results are decode errors.
	QueryResult(slot uint32) (result int64, ready bool, err error)
}

// CommandBuffer records video commands. A command buffer is reused after
// its previous submission has retired.
type CommandBuffer interface {
	Begin() error
	PipelineBarrier(barriers []ImageBarrier)
	BeginVideoCoding(info *BeginCodingInfo)
	ControlVideoCoding(flags CodingControlFlags)
	DecodeVideo(info *DecodeInfo)
	BeginQuery(slot uint32)
	EndQuery(slot uint32)
	EndVideoCoding()
	End() error
}

// Device bundles the three backend contracts a decoder needs.
type Device struct {
	Video     VideoDriver
	Resources ResourceAllocator
	Queue     Queue
}

func (d Device) validate() error {
	if d.Video == nil || d.Resources == nil || d.Queue == nil {
		return ErrIncompleteDevice
	}
	return nil
}
