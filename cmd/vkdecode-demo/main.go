// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command vkdecode-demo drives several decode sessions concurrently, each on
// its own device opened from the backend registry, and reports resource
// usage per stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/vkdecode"
	"github.com/gogpu/vkdecode/backend"
	"github.com/gogpu/vkdecode/backend/sim"
)

type config struct {
	streams int
	frames  int
	refs    int
	slices  int
	threads int
	mode    vkdecode.DPBMode
	codec   vkdecode.Codec
	backend string
}

var modes = map[string]vkdecode.DPBMode{
	"coincident": vkdecode.DPBCoincident,
	"per-slot":   vkdecode.DPBDedicatedPerSlot,
	"layered":    vkdecode.DPBDedicatedLayered,
}

var codecs = map[string]vkdecode.Codec{
	"h264": vkdecode.CodecH264,
	"hevc": vkdecode.CodecH265,
}

func main() {
	var (
		streams = flag.Int("streams", 4, "concurrent decode sessions")
		frames  = flag.Int("frames", 120, "frames per stream")
		refs    = flag.Int("refs", 2, "reference pictures per frame")
		slices  = flag.Int("slices", 3, "slices per frame")
		threads = flag.Int("threads", 1, "decoder threads per stream")
		mode    = flag.String("mode", "layered", "DPB mode: coincident, per-slot or layered")
		codec   = flag.String("codec", "h264", "codec: h264 or hevc")
		device  = flag.String("backend", "", "device backend name (default: best available)")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	vkdecode.SetLogger(slog.Default())

	cfg := config{
		streams: *streams,
		frames:  *frames,
		refs:    min(max(*refs, 0), vkdecode.MaxReferences),
		slices:  max(*slices, 1),
		threads: *threads,
		backend: *device,
	}
	var ok bool
	if cfg.mode, ok = modes[*mode]; !ok {
		slog.Error("unknown DPB mode", "mode", *mode)
		os.Exit(2)
	}
	if cfg.codec, ok = codecs[*codec]; !ok {
		slog.Error("unknown codec", "codec", *codec)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting", "backends", backend.Available(), "mode", cfg.mode, "codec", cfg.codec)
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.streams {
		g.Go(func() error {
			if err := runStream(ctx, i, cfg); err != nil {
				return fmt.Errorf("stream %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("decode failed", "error", err)
		os.Exit(1)
	}
	slog.Info("all streams decoded",
		"streams", cfg.streams, "frames", cfg.streams*cfg.frames, "elapsed", time.Since(start))
}

func request(codec vkdecode.Codec) *vkdecode.Request {
	req := &vkdecode.Request{
		Codec:         codec,
		Profile:       vkdecode.ProfileH264High,
		Level:         41,
		PixelFormat:   vkdecode.PixelFormatNV12,
		CodedWidth:    1920,
		CodedHeight:   1080,
		ContextFormat: vkdecode.PixelFormatNV12,
	}
	if codec == vkdecode.CodecH265 {
		req.Profile = vkdecode.ProfileH265Main
	}
	return req
}

// runStream decodes cfg.frames synthetic frames on a private device. Each
// frame references the previous cfg.refs frames.
func runStream(ctx context.Context, id int, cfg config) error {
	log := slog.With("stream", id)

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	dev := b.Device()

	n, err := vkdecode.Negotiate(dev, request(cfg.codec), vkdecode.WithAllowProfileMismatch())
	if err != nil {
		return err
	}
	d, err := vkdecode.NewDecoder(dev, n, vkdecode.WithThreadCount(cfg.threads))
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	rng := rand.New(rand.NewPCG(uint64(id), 0x766b6465636f6465))
	slots := max(n.Caps.MaxDpbSlots, 1)
	var window []*vkdecode.Picture

	for frame := range cfg.frames {
		if err := ctx.Err(); err != nil {
			return err
		}

		pic, err := decodeFrame(d, rng, uint32(frame)%slots, window, cfg.slices)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}

		window = append(window, pic)
		if len(window) > cfg.refs {
			old := window[0]
			window = window[1:]
			if err := d.Release(old); err != nil {
				return err
			}
			if err := d.DestroyOutputImage(old.Image); err != nil {
				return err
			}
		}
	}

	for _, pic := range window {
		if err := d.Release(pic); err != nil {
			return err
		}
		if err := d.DestroyOutputImage(pic.Image); err != nil {
			return err
		}
	}
	log.Info("stream done", "backend", b.Name(), "mode", d.Mode(), "format", n.Format, "stats", d.Stats())
	return nil
}

// openBackend opens the configured backend with capabilities selecting
// cfg.mode.
func openBackend(cfg config) (backend.DeviceBackend, error) {
	caps := sim.Capabilities(cfg.mode)
	if cfg.backend == "" {
		return backend.Default(caps)
	}
	return backend.Get(cfg.backend, caps)
}

func decodeFrame(d *vkdecode.Decoder, rng *rand.Rand, slot uint32, window []*vkdecode.Picture, slices int) (*vkdecode.Picture, error) {
	img, err := d.NewOutputImage(fmt.Sprintf("frame-slot%d", slot))
	if err != nil {
		return nil, err
	}
	pic := &vkdecode.Picture{Image: img}
	fail := func(err error) (*vkdecode.Picture, error) {
		_ = d.Release(pic)
		_ = d.DestroyOutputImage(img)
		return nil, err
	}

	if err := d.Prepare(pic, true, slot); err != nil {
		return fail(err)
	}
	if err := d.SetParameters(pic, fmt.Sprintf("params-slot%d", slot)); err != nil {
		return fail(err)
	}

	for range slices {
		data := make([]byte, 64+rng.IntN(4096))
		for i := range data {
			data[i] = byte(rng.Uint32())
		}
		if _, err := d.AddSlice(pic, data, true); err != nil {
			return fail(err)
		}
	}

	refs := make([]vkdecode.Reference, 0, len(window))
	for _, r := range window {
		refs = append(refs, vkdecode.Reference{Picture: r, Slot: int32(r.Slot())})
	}
	if err := d.Submit(pic, refs, nil); err != nil {
		return fail(err)
	}
	return pic, nil
}
