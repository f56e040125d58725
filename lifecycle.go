package frameq

import (
	"fmt"
	"image"
)

// Window is the windowing collaborator the pipeline observes between
// ticks. It is consumed only to detect and react to framebuffer size
// changes; frameq never creates windows itself.
type Window interface {
	// Dimensions returns the window's logical size.
	Dimensions() image.Point

	// DevicePixelRatio is the framebuffer-pixels-per-logical-unit
	// scale factor.
	DevicePixelRatio() float32

	// Resize notifies the window of a logical size change so it can
	// reconfigure its framebuffer.
	Resize(dims image.Point)
}

// DefaultArenaCapacity is the initial payload arena size per frame when
// Config.ArenaCapacity is zero.
const DefaultArenaCapacity = 64 << 10

// Config configures a pipeline.
type Config struct {
	// Window is the windowing collaborator. Required.
	Window Window

	// Device is the graphics backend. Required; it is initialized by
	// New and owned by the pipeline afterwards.
	Device Device

	// ArenaCapacity is the initial per-frame payload arena size in
	// bytes. Zero means DefaultArenaCapacity.
	ArenaCapacity int

	// MeshSource and TextureSource back asynchronous, content-keyed
	// resource creation. Optional.
	MeshSource    MeshSource
	TextureSource TextureSource
}

// FrameStats describes the most recently dispatched frame.
type FrameStats struct {
	// Commands is the number of commands replayed.
	Commands int

	// ArenaBytes is the payload arena length at dispatch.
	ArenaBytes int

	// Framebuffer is the pixel dimensions dispatch targeted.
	Framebuffer image.Point
}

// New initializes the device and returns a running pipeline. Must be
// called from the goroutine that will drive the tick loop; that
// goroutine becomes the consumer and is the only one allowed to call
// OnPreUpdate, OnPostUpdate and Close.
//
// Initialization fails, leaving the device untouched by any further
// call, when the device's context does not meet the pipeline's minimum
// capability floors.
func New(cfg Config) (*VideoSystem, error) {
	if cfg.Window == nil {
		return nil, fmt.Errorf("%w: config without window", ErrValidation)
	}
	if cfg.Device == nil {
		return nil, fmt.Errorf("%w: config without device", ErrValidation)
	}
	capacity := cfg.ArenaCapacity
	if capacity <= 0 {
		capacity = DefaultArenaCapacity
	}

	if err := cfg.Device.Init(); err != nil {
		return nil, fmt.Errorf("init %s device: %w", cfg.Device.Name(), err)
	}
	if err := cfg.Device.MakeCurrent(); err != nil {
		return nil, err
	}

	caps := cfg.Device.Capabilities()
	Logger().Info("video pipeline up",
		"backend", cfg.Device.Name(),
		"version", caps.Version.String(),
		"extensions", len(caps.Extensions),
		"maxColorAttachments", caps.MaxColorAttachments,
		"maxTextureSize", caps.MaxTextureSize,
	)

	vs := NewVideoSystem(NewDoubleBuf(capacity), cfg.MeshSource, cfg.TextureSource)
	vs.window = cfg.Window
	vs.device = cfg.Device
	vs.lastDims = cfg.Window.Dimensions()
	return vs, nil
}

// Device returns the pipeline's device, or nil for a recording-only
// system.
func (vs *VideoSystem) Device() Device { return vs.device }

// OnPreUpdate starts a tick: it observes the window so a size change
// applies before producer code runs. Call exactly once per tick, from
// the consumer goroutine.
func (vs *VideoSystem) OnPreUpdate() {
	if vs.window == nil {
		return
	}
	dims := vs.window.Dimensions()
	if dims != vs.lastDims {
		vs.window.Resize(dims)
		vs.lastDims = dims
	}
}

// OnPostUpdate finishes a tick: it flips the frame pair, replays the
// tick's recorded commands on the device and presents. Everything
// enqueued since the previous OnPostUpdate executes here, in recording
// order, before the next tick's producers run.
//
// A context-lost error drops the in-flight frame's commands; the host
// decides whether to Rebuild the device or abandon it.
func (vs *VideoSystem) OnPostUpdate() error {
	if vs.device == nil {
		return fmt.Errorf("%w: recording-only pipeline", ErrNotInitialized)
	}

	ratio := vs.window.DevicePixelRatio()
	fb := image.Pt(
		int(float32(vs.lastDims.X)*ratio),
		int(float32(vs.lastDims.Y)*ratio),
	)

	// The flip makes this tick's recordings the back frame; producers
	// recording for the next tick get the cleared counterpart.
	vs.buf.Swap()
	back := vs.buf.WriteBack()
	dispatchErr := vs.device.Dispatch(back, fb)

	vs.mu.Lock()
	vs.stats = FrameStats{
		Commands:    back.Len(),
		ArenaBytes:  back.arena.Len(),
		Framebuffer: fb,
	}
	vs.mu.Unlock()

	Logger().Debug("frame dispatched",
		"commands", back.Len(),
		"arenaBytes", back.arena.Len(),
		"framebuffer", fb,
	)

	// Drop the frame's contents whether or not dispatch succeeded;
	// commands are never retried.
	back.Clear()

	if dispatchErr != nil {
		return dispatchErr
	}
	return vs.device.SwapBuffers()
}

// FrameStats returns statistics for the most recently dispatched frame.
func (vs *VideoSystem) FrameStats() FrameStats {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.stats
}

// Close releases the device and its resources. The pipeline must not be
// used afterwards.
func (vs *VideoSystem) Close() error {
	if vs.device == nil {
		return nil
	}
	return vs.device.Close()
}
