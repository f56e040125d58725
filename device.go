package frameq

import (
	"fmt"
	"image"
)

// DeviceState tracks the lifecycle of a device.
type DeviceState uint8

const (
	// DeviceUninitialized means Init has not succeeded yet.
	DeviceUninitialized DeviceState = iota
	// DeviceActive means the device accepts dispatches.
	DeviceActive
	// DeviceLost means the underlying context was lost; all operations
	// fail fast with ErrContextLost until Rebuild succeeds.
	DeviceLost
)

var deviceStateNames = [...]string{
	DeviceUninitialized: "Uninitialized",
	DeviceActive:        "Active",
	DeviceLost:          "Lost",
}

func (s DeviceState) String() string {
	if int(s) < len(deviceStateNames) {
		return deviceStateNames[s]
	}
	return fmt.Sprintf("DeviceState(%d)", s)
}

// Version is a graphics API version, split into the desktop and ES
// families. Versions only compare within a family.
type Version struct {
	Major, Minor int
	ES           bool
}

// GL returns a desktop version.
func GL(major, minor int) Version { return Version{Major: major, Minor: minor} }

// GLES returns an embedded version.
func GLES(major, minor int) Version { return Version{Major: major, Minor: minor, ES: true} }

func (v Version) String() string {
	if v.ES {
		return fmt.Sprintf("ES %d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v meets the floor for its own family. A
// desktop version never satisfies an ES floor and vice versa.
func (v Version) AtLeast(desktop, es Version) bool {
	floor := desktop
	if v.ES {
		floor = es
	}
	if v.Major != floor.Major {
		return v.Major > floor.Major
	}
	return v.Minor >= floor.Minor
}

// Capabilities describes what a device's context supports.
type Capabilities struct {
	Version    Version
	Extensions []string

	MaxColorAttachments int
	MaxTextureSize      int
}

// HasExtension reports whether the named extension is present.
func (c *Capabilities) HasExtension(name string) bool {
	for _, e := range c.Extensions {
		if e == name {
			return true
		}
	}
	return false
}

// requirement is one capability floor: satisfied when the context
// version meets the family floor or any of the listed extensions is
// present.
type requirement struct {
	name       string
	desktop    Version
	es         Version
	extensions []string
}

var minimumRequirements = []requirement{
	{
		name:       "buffer objects",
		desktop:    GL(1, 5),
		es:         GLES(2, 0),
		extensions: []string{"GL_ARB_vertex_buffer_object"},
	},
	{
		name:       "shader objects",
		desktop:    GL(2, 0),
		es:         GLES(2, 0),
		extensions: []string{"GL_ARB_shader_objects", "GL_ARB_vertex_shader", "GL_ARB_fragment_shader"},
	},
	{
		name:       "framebuffer objects",
		desktop:    GL(3, 0),
		es:         GLES(2, 0),
		extensions: []string{"GL_ARB_framebuffer_object", "GL_EXT_framebuffer_object"},
	},
	{
		name:       "framebuffer blit",
		desktop:    GL(3, 0),
		es:         GLES(2, 0),
		extensions: []string{"GL_EXT_framebuffer_blit"},
	},
	{
		name:       "uniform buffer objects",
		desktop:    GL(3, 1),
		es:         GLES(3, 0),
		extensions: []string{"GL_ARB_uniform_buffer_object"},
	},
	{
		name:       "vertex array objects",
		desktop:    GL(3, 0),
		es:         GLES(3, 0),
		extensions: []string{"GL_ARB_vertex_array_object", "GL_APPLE_vertex_array_object", "GL_OES_vertex_array_object"},
	},
}

// CheckMinimal verifies that the capabilities satisfy every feature
// floor the pipeline depends on. The error names the first missing
// feature and wraps ErrCapabilityUnmet.
func (c *Capabilities) CheckMinimal() error {
	for _, r := range minimumRequirements {
		if c.Version.AtLeast(r.desktop, r.es) {
			continue
		}
		ok := false
		for _, ext := range r.extensions {
			if c.HasExtension(ext) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %s requires %s (or ES %s) or one of %v, context is %s",
				ErrCapabilityUnmet, r.name, r.desktop, r.es, r.extensions, c.Version)
		}
	}
	return nil
}

// Device is the graphics backend a pipeline replays frames against. All
// methods except Name are called only from the consumer goroutine.
//
// Implementations live in the backend subpackages and register
// themselves with the backend driver registry.
type Device interface {
	// Name identifies the backend, for example "wgpu" or "headless".
	Name() string

	// Init acquires the underlying context. Capability floors are
	// checked here; on ErrCapabilityUnmet the device stays
	// uninitialized.
	Init() error

	// Capabilities reports the initialized context's capabilities.
	Capabilities() Capabilities

	// Dispatch replays one frame's commands in order against the
	// framebuffer of the given pixel dimensions.
	Dispatch(f *Frame, framebuffer image.Point) error

	// MakeCurrent claims the context for the calling goroutine.
	MakeCurrent() error

	// IsCurrent reports whether the context is claimed.
	IsCurrent() bool

	// SwapBuffers presents the frame. Reports ErrContextLost when the
	// context died; the device then stays lost until Rebuild.
	SwapBuffers() error

	// Rebuild recreates a lost context and its device-side state.
	Rebuild() error

	// Close releases the context and all device resources.
	Close() error
}
