package vkdecode

import "fmt"

// Session owns a device video session, the memory bound to it and its
// empty parameters object.
type Session struct {
	video       VideoDriver
	handle      SessionHandle
	memory      []MemoryHandle
	boundBytes  uint64
	emptyParams ParametersHandle
}

// Handle returns the device session handle.
func (s *Session) Handle() SessionHandle { return s.handle }

// EmptyParameters returns the parameters object used when a picture has
// none of its own.
func (s *Session) EmptyParameters() ParametersHandle { return s.emptyParams }

// MemoryBindings returns the number of memory allocations bound to s.
func (s *Session) MemoryBindings() int { return len(s.memory) }

// createSession creates the device session, binds every memory
// requirement and creates the empty parameters object. On failure
// everything created so far is destroyed.
func createSession(dev Device, n *Negotiated) (*Session, error) {
	s := &Session{video: dev.Video}

	info := &SessionCreateInfo{
		Profile:             n.Profile,
		QueueFamily:         dev.Queue.Family(),
		MaxCodedExtent:      n.Caps.MaxCodedExtent,
		PictureFormat:       n.Format,
		ReferenceFormat:     n.Format,
		MaxDpbSlots:         n.Caps.MaxDpbSlots,
		MaxActiveReferences: n.Caps.MaxActiveReferencePictures,
		HeaderVersion:       n.Caps.HeaderVersion,
	}

	handle, err := dev.Video.CreateSession(info)
	if err != nil {
		return nil, stageError(StageSession, "create", err)
	}
	s.handle = handle

	if err := s.bindMemory(); err != nil {
		s.destroy()
		return nil, err
	}

	params, err := dev.Video.CreateParameters(s.handle, nil)
	if err != nil {
		s.destroy()
		return nil, stageError(StageSession, "empty parameters", err)
	}
	s.emptyParams = params

	Logger().Info("vkdecode: session created",
		"bindings", len(s.memory), "bytes", s.boundBytes, "format", n.Format)
	return s, nil
}

func (s *Session) bindMemory() error {
	reqs, err := s.video.SessionMemoryRequirements(s.handle)
	if err != nil {
		return stageError(StageSession, "memory requirements", err)
	}

	binds := make([]MemoryBinding, 0, len(reqs))
	for _, req := range reqs {
		mem, err := s.video.AllocateMemory(req)
		if err != nil {
			return stageError(StageSession, fmt.Sprintf("allocate binding %d", req.BindIndex), err)
		}
		s.memory = append(s.memory, mem)
		s.boundBytes += req.Size
		binds = append(binds, MemoryBinding{
			BindIndex: req.BindIndex,
			Memory:    mem,
			Size:      req.Size,
		})
	}

	if err := s.video.BindSessionMemory(s.handle, binds); err != nil {
		return stageError(StageSession, "bind memory", err)
	}
	return nil
}

// destroy releases whatever s holds. Safe on a partially built session
// and idempotent.
func (s *Session) destroy() {
	if s == nil {
		return
	}
	if s.emptyParams != nil {
		s.video.DestroyParameters(s.emptyParams)
		s.emptyParams = nil
	}
	if s.handle != nil {
		s.video.DestroySession(s.handle)
		s.handle = nil
	}
	for _, mem := range s.memory {
		s.video.FreeMemory(mem)
	}
	s.memory = nil
	s.boundBytes = 0
}
