// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"fmt"
	"sync"

	"github.com/gogpu/vkdecode"
)

// Session is the handle of a simulated video session.
type Session struct {
	ID    int
	Info  vkdecode.SessionCreateInfo
	Bound []vkdecode.MemoryBinding
}

// Memory is the handle of a simulated session memory allocation.
type Memory struct {
	ID   int
	Size uint64
}

// Parameters is the handle of a simulated session parameters object.
type Parameters struct {
	ID      int
	Session *Session
	Codec   any
}

// Driver implements vkdecode.VideoDriver. Exported fields script its
// answers and must be set before the driver is used.
type Driver struct {
	// Caps is returned for every supported profile.
	Caps vkdecode.Capabilities

	// FormatList is returned by format queries.
	FormatList []vkdecode.DeviceFormat

	// UnsupportedProfiles fail with ErrProfileOperationNotSupported.
	UnsupportedProfiles map[int]bool

	// CapsErr and FormatsErr, when set, fail every query of that kind.
	CapsErr    error
	FormatsErr error

	// MemoryBindings is the number of memory requirements of a session.
	MemoryBindings int

	// FailAllocation fails the nth memory allocation (1-based).
	FailAllocation int

	FailCreateSession error
	FailBind          error
	FailParameters    error

	mu            sync.Mutex
	nextID        int
	capQueries    []vkdecode.VideoProfile
	formatQueries []vkdecode.ImageUsage
	allocations   int
	liveSessions  int
	liveMemory    int
	liveParams    int
	lastSession   *Session
}

// NewDriver returns a driver advertising caps and NV12/P010 output.
func NewDriver(caps vkdecode.Capabilities) *Driver {
	return &Driver{
		Caps: caps,
		FormatList: []vkdecode.DeviceFormat{
			vkdecode.FormatG8B8R82Plane420,
			vkdecode.FormatG10X6B10X6R10X62Plane420,
		},
		MemoryBindings: 2,
	}
}

func (d *Driver) id() int {
	d.nextID++
	return d.nextID
}

// Capabilities implements vkdecode.VideoDriver.
func (d *Driver) Capabilities(profile *vkdecode.VideoProfile) (*vkdecode.Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.capQueries = append(d.capQueries, *profile)
	if d.CapsErr != nil {
		return nil, d.CapsErr
	}
	if d.UnsupportedProfiles[profile.ProfileIDC] {
		return nil, fmt.Errorf("sim: profile %d: %w", profile.ProfileIDC, vkdecode.ErrProfileOperationNotSupported)
	}
	caps := d.Caps
	return &caps, nil
}

// Formats implements vkdecode.VideoDriver.
func (d *Driver) Formats(_ *vkdecode.VideoProfile, usage vkdecode.ImageUsage) ([]vkdecode.DeviceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.formatQueries = append(d.formatQueries, usage)
	if d.FormatsErr != nil {
		return nil, d.FormatsErr
	}
	return append([]vkdecode.DeviceFormat(nil), d.FormatList...), nil
}

// CreateSession implements vkdecode.VideoDriver.
func (d *Driver) CreateSession(info *vkdecode.SessionCreateInfo) (vkdecode.SessionHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailCreateSession != nil {
		return nil, d.FailCreateSession
	}
	s := &Session{ID: d.id(), Info: *info}
	d.liveSessions++
	d.lastSession = s
	return s, nil
}

// DestroySession implements vkdecode.VideoDriver.
func (d *Driver) DestroySession(vkdecode.SessionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.liveSessions--
}

// SessionMemoryRequirements implements vkdecode.VideoDriver.
func (d *Driver) SessionMemoryRequirements(vkdecode.SessionHandle) ([]vkdecode.MemoryRequirement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reqs := make([]vkdecode.MemoryRequirement, d.MemoryBindings)
	for i := range reqs {
		reqs[i] = vkdecode.MemoryRequirement{
			BindIndex:      uint32(i),
			Size:           uint64(i+1) << 16,
			Alignment:      4096,
			MemoryTypeBits: 0x1,
		}
	}
	return reqs, nil
}

// AllocateMemory implements vkdecode.VideoDriver.
func (d *Driver) AllocateMemory(req vkdecode.MemoryRequirement) (vkdecode.MemoryHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocations++
	if d.FailAllocation == d.allocations {
		return nil, fmt.Errorf("sim: session memory %d: %w", req.BindIndex, vkdecode.ErrAllocation)
	}
	d.liveMemory++
	return &Memory{ID: d.id(), Size: req.Size}, nil
}

// FreeMemory implements vkdecode.VideoDriver.
func (d *Driver) FreeMemory(vkdecode.MemoryHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.liveMemory--
}

// BindSessionMemory implements vkdecode.VideoDriver.
func (d *Driver) BindSessionMemory(session vkdecode.SessionHandle, binds []vkdecode.MemoryBinding) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailBind != nil {
		return d.FailBind
	}
	s := session.(*Session)
	s.Bound = append(s.Bound, binds...)
	return nil
}

// CreateParameters implements vkdecode.VideoDriver.
func (d *Driver) CreateParameters(session vkdecode.SessionHandle, codecParams any) (vkdecode.ParametersHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailParameters != nil {
		return nil, d.FailParameters
	}
	d.liveParams++
	return &Parameters{ID: d.id(), Session: session.(*Session), Codec: codecParams}, nil
}

// DestroyParameters implements vkdecode.VideoDriver.
func (d *Driver) DestroyParameters(vkdecode.ParametersHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.liveParams--
}

// CapabilityQueries returns every profile queried so far.
func (d *Driver) CapabilityQueries() []vkdecode.VideoProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vkdecode.VideoProfile(nil), d.capQueries...)
}

// FormatQueries returns the usage of every format query so far.
func (d *Driver) FormatQueries() []vkdecode.ImageUsage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vkdecode.ImageUsage(nil), d.formatQueries...)
}

// LastSession returns the most recently created session.
func (d *Driver) LastSession() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSession
}

// Live returns the number of sessions, memory allocations and parameter
// objects not yet destroyed.
func (d *Driver) Live() (sessions, memory, params int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveSessions, d.liveMemory, d.liveParams
}
