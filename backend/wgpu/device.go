// Package wgpu drives a real GPU through the gogpu/wgpu hardware
// abstraction layer. Frames recorded by the coordinator are replayed as
// buffer/texture uploads and render passes; WGSL shader sources are
// compiled to SPIR-V with naga at shader creation time.
package wgpu

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import the Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/frameq"
	"github.com/gogpu/frameq/backend"
)

func init() {
	backend.Register(backend.BackendWgpu, func() frameq.Device {
		return New(Options{})
	})
}

// fenceTimeout bounds how long a frame submission may take before the
// device is considered lost.
const fenceTimeout = 5 * time.Second

// Options configures a wgpu device.
type Options struct {
	// Backend selects the hal backend. Zero means Vulkan.
	Backend gputypes.Backend

	// Provider optionally supplies a shared GPU device from a host
	// application instead of the device opening its own. Sharing
	// requires the provider to also expose HalDevice() any and
	// HalQueue() any returning hal.Device and hal.Queue; otherwise the
	// device falls back to opening its own adapter.
	Provider gpucontext.DeviceProvider
}

// Device executes frames on a GPU. It implements frameq.Device; all
// methods except Name must be called from the consumer goroutine.
type Device struct {
	opts Options

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// externalDevice is true when Provider supplied the hal device;
	// shared resources are not destroyed on Close.
	externalDevice bool

	state   frameq.DeviceState
	current atomic.Bool
	caps    frameq.Capabilities

	res *resources
}

var _ frameq.Device = (*Device)(nil)

// New returns an uninitialized wgpu device.
func New(opts Options) *Device {
	if opts.Backend == 0 {
		opts.Backend = gputypes.BackendVulkan
	}
	return &Device{opts: opts}
}

// Name implements frameq.Device.
func (d *Device) Name() string { return backend.BackendWgpu }

// Init implements frameq.Device. It acquires a hal device (or adopts
// the one supplied by Options.Provider), negotiates capabilities and
// enters the active state. On any failure the device stays
// uninitialized.
func (d *Device) Init() error {
	if d.state == frameq.DeviceActive {
		return nil
	}

	if d.opts.Provider == nil || !d.adoptProvider(d.opts.Provider) {
		if err := d.acquireGPU(); err != nil {
			return err
		}
	}

	// WebGPU-class hardware exceeds every legacy capability floor;
	// report a desktop-4.3-equivalent feature level.
	d.caps = frameq.Capabilities{
		Version:             frameq.GL(4, 3),
		MaxColorAttachments: frameq.MaxColorAttachments,
		MaxTextureSize:      int(gputypes.DefaultLimits().MaxTextureDimension2D),
	}
	if err := d.caps.CheckMinimal(); err != nil {
		d.releaseGPU()
		return err
	}

	d.res = newResources(d.device, d.queue)
	d.state = frameq.DeviceActive
	return nil
}

func (d *Device) acquireGPU() error {
	api, ok := hal.GetBackend(d.opts.Backend)
	if !ok {
		return fmt.Errorf("wgpu: %v backend not available: %w", d.opts.Backend, backend.ErrNotAvailable)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("wgpu: no GPU adapters found: %w", backend.ErrNotAvailable)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("wgpu: open device: %w", err)
	}

	d.instance = instance
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.externalDevice = false

	frameq.Logger().Info("wgpu device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType,
	)
	return nil
}

// adoptProvider wires a shared hal device from a host application.
// Sharing is best-effort: a provider without HAL accessors is skipped
// and the device opens its own adapter.
func (d *Device) adoptProvider(provider gpucontext.DeviceProvider) bool {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		frameq.Logger().Debug("wgpu provider has no HAL accessors, opening own device")
		return false
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return false
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return false
	}
	d.device = device
	d.queue = queue
	d.externalDevice = true

	frameq.Logger().Debug("wgpu using shared GPU device")
	return true
}

func (d *Device) releaseGPU() {
	if d.res != nil {
		d.res.destroyAll()
		d.res = nil
	}
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.externalDevice = false
}

// Capabilities implements frameq.Device.
func (d *Device) Capabilities() frameq.Capabilities { return d.caps }

// MakeCurrent implements frameq.Device. wgpu contexts are not bound to
// OS threads; the flag records the claim for IsCurrent.
func (d *Device) MakeCurrent() error {
	if d.state == frameq.DeviceUninitialized {
		return frameq.ErrNotInitialized
	}
	d.current.Store(true)
	return nil
}

// IsCurrent implements frameq.Device.
func (d *Device) IsCurrent() bool { return d.current.Load() }

// SwapBuffers implements frameq.Device. Presentation is owned by the
// windowing collaborator's swapchain; here the device verifies the GPU
// is still alive and fails fast once it is lost.
func (d *Device) SwapBuffers() error {
	if d.state == frameq.DeviceLost {
		return frameq.ErrContextLost
	}
	if d.state == frameq.DeviceUninitialized {
		return frameq.ErrNotInitialized
	}
	return nil
}

// Rebuild implements frameq.Device. Device-side resources are gone with
// the old context; the coordinator recreates them through subsequent
// frames.
func (d *Device) Rebuild() error {
	if d.state != frameq.DeviceLost {
		return nil
	}
	d.releaseGPU()
	d.state = frameq.DeviceUninitialized
	if err := d.Init(); err != nil {
		return err
	}
	frameq.Logger().Info("wgpu device rebuilt")
	return nil
}

// Close implements frameq.Device.
func (d *Device) Close() error {
	d.releaseGPU()
	d.state = frameq.DeviceUninitialized
	d.current.Store(false)
	return nil
}

// markLost transitions the device into the lost state and wraps err
// with the distinguished context-lost sentinel.
func (d *Device) markLost(err error) error {
	d.state = frameq.DeviceLost
	frameq.Logger().Error("wgpu context lost", "err", err)
	return fmt.Errorf("%w: %v", frameq.ErrContextLost, err)
}

// Dispatch implements frameq.Device, replaying one frame. Resource
// commands execute immediately in recorded order; draws are gathered
// per surface and encoded as render passes after the log is consumed,
// ranked by surface order. Draws on a sequenced surface keep their
// submission order; other surfaces may be state-sorted.
func (d *Device) Dispatch(f *frameq.Frame, framebuffer image.Point) error {
	switch d.state {
	case frameq.DeviceUninitialized:
		return frameq.ErrNotInitialized
	case frameq.DeviceLost:
		return frameq.ErrContextLost
	}

	plan, err := d.replay(f)
	if err != nil {
		return err
	}
	if err := d.encode(plan, framebuffer); err != nil {
		// A missing handle is a bad frame, not a dying device. Loss is
		// reserved for encoder, submission and fence failures.
		if errors.Is(err, frameq.ErrNotFound) {
			return err
		}
		return d.markLost(err)
	}
	return nil
}
