// Package headless provides a device that executes frames without any
// GPU. It replays command logs against in-memory resource tables,
// enforcing the same ordering and handle rules a real device would, so
// pipelines can run in tests and on servers with no graphics stack.
package headless

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/frameq"
	"github.com/gogpu/frameq/backend"
)

func init() {
	backend.Register(backend.BackendHeadless, func() frameq.Device {
		return New()
	})
}

// DrawRecord is one executed draw, kept for inspection.
type DrawRecord struct {
	Surface frameq.SurfaceHandle
	Call    frameq.DrawCall
	Scissor frameq.Scissor
}

// Stats counts work executed across the device's lifetime.
type Stats struct {
	Frames   int
	Commands int
	Draws    int
}

type meshStore struct {
	params   frameq.MeshParams
	vertices []byte
	indices  []byte
}

type textureStore struct {
	params frameq.TextureParams
	pixels []byte
}

// Device executes frames against in-memory state. All methods except
// Name must be called from the consumer goroutine, matching the
// frameq.Device contract.
type Device struct {
	caps    frameq.Capabilities
	state   frameq.DeviceState
	current atomic.Bool

	loseNextSwap bool

	surfaces       map[frameq.SurfaceHandle]frameq.SurfaceParams
	shaders        map[frameq.ShaderHandle]frameq.ShaderParams
	renderTextures map[frameq.RenderTextureHandle]frameq.RenderTextureParams
	meshes         map[frameq.MeshHandle]*meshStore
	textures       map[frameq.TextureHandle]*textureStore

	scissor frameq.Scissor
	drawLog []DrawRecord
	stats   Stats
}

var _ frameq.Device = (*Device)(nil)

// New returns a headless device reporting fully modern capabilities.
func New() *Device {
	return NewWithCapabilities(frameq.Capabilities{
		Version:             frameq.GL(4, 3),
		MaxColorAttachments: frameq.MaxColorAttachments,
		MaxTextureSize:      16384,
	})
}

// NewWithCapabilities returns a headless device reporting caps.
// Initialization applies the same capability floors as a real device,
// so sub-floor caps make Init fail.
func NewWithCapabilities(caps frameq.Capabilities) *Device {
	return &Device{caps: caps}
}

// Name implements frameq.Device.
func (d *Device) Name() string { return backend.BackendHeadless }

// Init implements frameq.Device.
func (d *Device) Init() error {
	if d.state == frameq.DeviceActive {
		return nil
	}
	if err := d.caps.CheckMinimal(); err != nil {
		return err
	}
	d.reset()
	d.state = frameq.DeviceActive
	return nil
}

func (d *Device) reset() {
	d.surfaces = make(map[frameq.SurfaceHandle]frameq.SurfaceParams)
	d.shaders = make(map[frameq.ShaderHandle]frameq.ShaderParams)
	d.renderTextures = make(map[frameq.RenderTextureHandle]frameq.RenderTextureParams)
	d.meshes = make(map[frameq.MeshHandle]*meshStore)
	d.textures = make(map[frameq.TextureHandle]*textureStore)
	d.scissor = frameq.Scissor{}
}

// State returns the device's lifecycle state.
func (d *Device) State() frameq.DeviceState { return d.state }

// Capabilities implements frameq.Device.
func (d *Device) Capabilities() frameq.Capabilities { return d.caps }

// MakeCurrent implements frameq.Device.
func (d *Device) MakeCurrent() error {
	d.current.Store(true)
	return nil
}

// IsCurrent implements frameq.Device.
func (d *Device) IsCurrent() bool { return d.current.Load() }

// SwapBuffers implements frameq.Device. ForceContextLoss makes the next
// call report the context as lost.
func (d *Device) SwapBuffers() error {
	if d.state == frameq.DeviceLost {
		return frameq.ErrContextLost
	}
	if d.loseNextSwap {
		d.loseNextSwap = false
		d.state = frameq.DeviceLost
		return frameq.ErrContextLost
	}
	return nil
}

// ForceContextLoss arms a simulated context loss: the next SwapBuffers
// reports ErrContextLost and the device enters the lost state.
func (d *Device) ForceContextLoss() { d.loseNextSwap = true }

// Rebuild implements frameq.Device. Device-side resources do not
// survive a loss; the tables start empty and the coordinator's next
// frames recreate them.
func (d *Device) Rebuild() error {
	if d.state != frameq.DeviceLost {
		return nil
	}
	d.reset()
	d.state = frameq.DeviceActive
	return nil
}

// Close implements frameq.Device.
func (d *Device) Close() error {
	d.state = frameq.DeviceUninitialized
	d.surfaces = nil
	d.shaders = nil
	d.renderTextures = nil
	d.meshes = nil
	d.textures = nil
	d.drawLog = nil
	return nil
}

// Dispatch implements frameq.Device, replaying the frame strictly in
// recorded order. Commands referencing handles the device has not
// created are reported as errors, never silently skipped.
func (d *Device) Dispatch(f *frameq.Frame, _ image.Point) error {
	switch d.state {
	case frameq.DeviceUninitialized:
		return frameq.ErrNotInitialized
	case frameq.DeviceLost:
		return frameq.ErrContextLost
	}

	d.stats.Frames++
	for _, cmd := range f.Commands() {
		if err := d.execute(f, cmd); err != nil {
			return err
		}
		d.stats.Commands++
	}
	return nil
}

func (d *Device) execute(f *frameq.Frame, cmd frameq.Command) error {
	switch c := cmd.(type) {
	case frameq.CreateSurfaceCmd:
		if _, ok := d.surfaces[c.Handle]; ok {
			return fmt.Errorf("headless: surface %v created twice", c.Handle)
		}
		d.surfaces[c.Handle] = c.Params

	case frameq.DeleteSurfaceCmd:
		if _, ok := d.surfaces[c.Handle]; !ok {
			return fmt.Errorf("headless: delete of unknown surface %v: %w", c.Handle, frameq.ErrNotFound)
		}
		delete(d.surfaces, c.Handle)

	case frameq.CreateShaderCmd:
		if _, ok := d.shaders[c.Handle]; ok {
			return fmt.Errorf("headless: shader %v created twice", c.Handle)
		}
		d.shaders[c.Handle] = c.Params

	case frameq.DeleteShaderCmd:
		if _, ok := d.shaders[c.Handle]; !ok {
			return fmt.Errorf("headless: delete of unknown shader %v: %w", c.Handle, frameq.ErrNotFound)
		}
		delete(d.shaders, c.Handle)

	case frameq.CreateRenderTextureCmd:
		if _, ok := d.renderTextures[c.Handle]; ok {
			return fmt.Errorf("headless: render texture %v created twice", c.Handle)
		}
		d.renderTextures[c.Handle] = c.Params

	case frameq.DeleteRenderTextureCmd:
		if _, ok := d.renderTextures[c.Handle]; !ok {
			return fmt.Errorf("headless: delete of unknown render texture %v: %w", c.Handle, frameq.ErrNotFound)
		}
		delete(d.renderTextures, c.Handle)

	case frameq.CreateMeshCmd:
		if _, ok := d.meshes[c.Handle]; ok {
			return fmt.Errorf("headless: mesh %v created twice", c.Handle)
		}
		m := &meshStore{
			params:   c.Params,
			vertices: make([]byte, c.Params.VertexBytes()),
			indices:  make([]byte, c.Params.IndexBytes()),
		}
		copy(m.vertices, f.Bytes(c.Vertices))
		copy(m.indices, f.Bytes(c.Indices))
		d.meshes[c.Handle] = m

	case frameq.UpdateVertexBufferCmd:
		m, ok := d.meshes[c.Handle]
		if !ok {
			return fmt.Errorf("headless: update of unknown mesh %v: %w", c.Handle, frameq.ErrNotFound)
		}
		data := f.Bytes(c.Data)
		if int(c.Offset)+len(data) > len(m.vertices) {
			return fmt.Errorf("headless: vertex write past capacity of mesh %v", c.Handle)
		}
		copy(m.vertices[c.Offset:], data)

	case frameq.UpdateIndexBufferCmd:
		m, ok := d.meshes[c.Handle]
		if !ok {
			return fmt.Errorf("headless: update of unknown mesh %v: %w", c.Handle, frameq.ErrNotFound)
		}
		data := f.Bytes(c.Data)
		if int(c.Offset)+len(data) > len(m.indices) {
			return fmt.Errorf("headless: index write past capacity of mesh %v", c.Handle)
		}
		copy(m.indices[c.Offset:], data)

	case frameq.DeleteMeshCmd:
		if _, ok := d.meshes[c.Handle]; !ok {
			return fmt.Errorf("headless: delete of unknown mesh %v: %w", c.Handle, frameq.ErrNotFound)
		}
		delete(d.meshes, c.Handle)

	case frameq.CreateTextureCmd:
		if _, ok := d.textures[c.Handle]; ok {
			return fmt.Errorf("headless: texture %v created twice", c.Handle)
		}
		tex := &textureStore{
			params: c.Params,
			pixels: make([]byte, c.Params.ByteSize()),
		}
		copy(tex.pixels, f.Bytes(c.Pixels))
		d.textures[c.Handle] = tex

	case frameq.UpdateTextureCmd:
		tex, ok := d.textures[c.Handle]
		if !ok {
			return fmt.Errorf("headless: update of unknown texture %v: %w", c.Handle, frameq.ErrNotFound)
		}
		if err := d.blit(tex, c, f.Bytes(c.Pixels)); err != nil {
			return err
		}

	case frameq.DeleteTextureCmd:
		if _, ok := d.textures[c.Handle]; !ok {
			return fmt.Errorf("headless: delete of unknown texture %v: %w", c.Handle, frameq.ErrNotFound)
		}
		delete(d.textures, c.Handle)

	case frameq.SetScissorCmd:
		d.scissor = c.Scissor

	case frameq.DrawCmd:
		if _, ok := d.surfaces[c.Surface]; !ok {
			return fmt.Errorf("headless: draw to unknown surface %v: %w", c.Surface, frameq.ErrNotFound)
		}
		if _, ok := d.shaders[c.Call.Shader]; !ok {
			return fmt.Errorf("headless: draw with unknown shader %v: %w", c.Call.Shader, frameq.ErrNotFound)
		}
		if _, ok := d.meshes[c.Call.Mesh]; !ok {
			return fmt.Errorf("headless: draw with unknown mesh %v: %w", c.Call.Mesh, frameq.ErrNotFound)
		}
		d.drawLog = append(d.drawLog, DrawRecord(c))
		d.stats.Draws++

	default:
		return fmt.Errorf("headless: unknown command %s", cmd.Type())
	}
	return nil
}

// blit copies a texture subregion row by row. The region and payload
// are validated first; a frame pushed through the raw Frame API can
// carry bounds the coordinator never checked.
func (d *Device) blit(tex *textureStore, c frameq.UpdateTextureCmd, pixels []byte) error {
	if uint64(c.X)+uint64(c.W) > uint64(tex.params.Width) ||
		uint64(c.Y)+uint64(c.H) > uint64(tex.params.Height) {
		return fmt.Errorf("headless: region %dx%d+%d+%d outside %dx%d texture %v",
			c.W, c.H, c.X, c.Y, tex.params.Width, tex.params.Height, c.Handle)
	}
	bpp := tex.params.Format.BytesPerPixel()
	rowLen := int(c.W) * bpp
	if len(pixels) < rowLen*int(c.H) {
		return fmt.Errorf("headless: %d payload bytes for a %dx%d update of texture %v, want %d",
			len(pixels), c.W, c.H, c.Handle, rowLen*int(c.H))
	}
	stride := int(tex.params.Width) * bpp
	for row := 0; row < int(c.H); row++ {
		dst := (int(c.Y)+row)*stride + int(c.X)*bpp
		src := row * rowLen
		copy(tex.pixels[dst:dst+rowLen], pixels[src:src+rowLen])
	}
	return nil
}

// DrawLog returns every executed draw in execution order.
func (d *Device) DrawLog() []DrawRecord { return d.drawLog }

// Stats returns lifetime execution counters.
func (d *Device) Stats() Stats { return d.stats }

// MeshVertices returns the current contents of a mesh's vertex buffer.
func (d *Device) MeshVertices(h frameq.MeshHandle) ([]byte, bool) {
	m, ok := d.meshes[h]
	if !ok {
		return nil, false
	}
	return m.vertices, true
}

// TexturePixels returns the current contents of a texture.
func (d *Device) TexturePixels(h frameq.TextureHandle) ([]byte, bool) {
	tex, ok := d.textures[h]
	if !ok {
		return nil, false
	}
	return tex.pixels, true
}
