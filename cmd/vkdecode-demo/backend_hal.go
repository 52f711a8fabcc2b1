// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package main

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/backend"
	"github.com/gogpu/vkdecode/backend/halres"
	"github.com/gogpu/vkdecode/backend/sim"
)

func init() {
	backend.Register(backend.BackendSimHAL, openSimHAL)
}

// simHAL pairs the simulated driver and queue with images, views and
// timelines allocated on a noop hal device.
type simHAL struct {
	sim      *sim.Backend
	res      *halres.Resources
	instance hal.Instance
	device   hal.Device
}

func openSimHAL(caps vkdecode.Capabilities) (backend.DeviceBackend, error) {
	if caps.DecodeFlags == 0 {
		return nil, backend.ErrNoCapabilities
	}
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("hal instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("hal: no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("hal open: %w", err)
	}
	res, err := halres.New(open.Device, open.Queue)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	b := &sim.Backend{
		Driver:    sim.NewDriver(caps),
		Resources: sim.NewResources(),
		Queue:     sim.NewQueue(),
	}
	return &simHAL{
		sim:      b,
		res:      res,
		instance: instance,
		device:   open.Device,
	}, nil
}

func (b *simHAL) Name() string { return backend.BackendSimHAL }

func (b *simHAL) Device() vkdecode.Device {
	return vkdecode.Device{Video: b.sim.Driver, Resources: b.res, Queue: b.sim.Queue}
}

func (b *simHAL) Close() {
	b.sim.Close()
	vkdecode.Logger().Debug("hal resources released", "stats", fmt.Sprintf("%+v", b.res.Stats()))
	b.device.Destroy()
	b.instance.Destroy()
}
