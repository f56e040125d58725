package frameq

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/frameq/handle"
	"github.com/gogpu/frameq/registry"
)

// MeshSource loads mesh params and data for a content key.
type MeshSource = registry.Source[MeshParams, MeshData]

// TextureSource loads texture params and pixels for a content key.
type TextureSource = registry.Source[TextureParams, TextureData]

// VideoSystem is the thread-safe coordinator of the pipeline. Producers
// call its resource and draw methods from any goroutine; every mutation
// records a command into the front frame for the device to replay at
// the end of the tick.
//
// Creation is logically synchronous: handles are valid from the moment
// a create call returns, even though the device-side resource does not
// exist until dispatch.
type VideoSystem struct {
	buf *DoubleBuf

	mu             sync.RWMutex
	surfaces       *handle.Pool[SurfaceParams]
	shaders        *handle.Pool[ShaderParams]
	renderTextures *handle.Pool[RenderTextureParams]

	meshes   *registry.Registry[MeshParams, MeshData]
	textures *registry.Registry[TextureParams, TextureData]

	// Set by New; nil in a recording-only system.
	window Window
	device Device

	lastDims image.Point
	stats    FrameStats
}

// NewVideoSystem builds a coordinator recording into buf. meshSource
// and textureSource back the CreateMeshFrom / CreateTextureFrom
// families and may be nil, in which case source-backed creation fails.
func NewVideoSystem(buf *DoubleBuf, meshSource MeshSource, textureSource TextureSource) *VideoSystem {
	vs := &VideoSystem{
		buf:            buf,
		surfaces:       handle.NewPool[SurfaceParams](),
		shaders:        handle.NewPool[ShaderParams](),
		renderTextures: handle.NewPool[RenderTextureParams](),
	}
	if meshSource == nil {
		meshSource = noSource[MeshParams, MeshData]("mesh")
	}
	if textureSource == nil {
		textureSource = noSource[TextureParams, TextureData]("texture")
	}
	vs.meshes = registry.New(meshSource, vs.commitMesh, Logger)
	vs.textures = registry.New(textureSource, vs.commitTexture, Logger)
	return vs
}

func noSource[P, D any](kind string) registry.SourceFunc[P, D] {
	return func(_ context.Context, key string) (P, D, error) {
		var p P
		var d D
		return p, d, fmt.Errorf("%w: no %s source configured (key %q)", ErrLoadFailed, kind, key)
	}
}

// Surfaces.

// CreateSurface allocates a surface and enqueues its device-side
// creation. Attachment handles, when set, must reference live render
// textures of the matching class.
func (vs *VideoSystem) CreateSurface(params SurfaceParams) (SurfaceHandle, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	for _, att := range params.Colors {
		if att.Nil() {
			continue
		}
		rt, ok := vs.renderTextures.Get(handle.Handle(att))
		if !ok {
			return SurfaceHandle{}, fmt.Errorf("%w: color attachment %v", ErrNotFound, att)
		}
		if !rt.Format.IsColor() {
			return SurfaceHandle{}, fmt.Errorf("%w: %s render texture as color attachment",
				ErrValidation, rt.Format)
		}
	}
	if att := params.DepthStencil; !att.Nil() {
		rt, ok := vs.renderTextures.Get(handle.Handle(att))
		if !ok {
			return SurfaceHandle{}, fmt.Errorf("%w: depth-stencil attachment %v", ErrNotFound, att)
		}
		if rt.Format.IsColor() {
			return SurfaceHandle{}, fmt.Errorf("%w: %s render texture as depth-stencil attachment",
				ErrValidation, rt.Format)
		}
	}

	h := SurfaceHandle(vs.surfaces.Create(params))
	vs.buf.Write(func(f *Frame) {
		f.Push(CreateSurfaceCmd{Handle: h, Params: params})
	})
	return h, nil
}

// Surface returns the surface's current parameters.
func (vs *VideoSystem) Surface(h SurfaceHandle) (SurfaceParams, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	params, ok := vs.surfaces.Get(handle.Handle(h))
	if !ok {
		return SurfaceParams{}, fmt.Errorf("%w: surface %v", ErrNotFound, h)
	}
	return params, nil
}

// DeleteSurface frees the surface. Deleting a stale handle reports
// ErrNotFound and enqueues nothing.
func (vs *VideoSystem) DeleteSurface(h SurfaceHandle) error {
	vs.mu.Lock()
	_, ok := vs.surfaces.Free(handle.Handle(h))
	vs.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: surface %v", ErrNotFound, h)
	}
	vs.buf.Write(func(f *Frame) {
		f.Push(DeleteSurfaceCmd{Handle: h})
	})
	return nil
}

// Shaders.

// CreateShader validates and allocates a shader program.
func (vs *VideoSystem) CreateShader(params ShaderParams) (ShaderHandle, error) {
	if err := params.Validate(); err != nil {
		return ShaderHandle{}, err
	}
	vs.mu.Lock()
	h := ShaderHandle(vs.shaders.Create(params))
	vs.mu.Unlock()
	vs.buf.Write(func(f *Frame) {
		f.Push(CreateShaderCmd{Handle: h, Params: params})
	})
	return h, nil
}

// Shader returns the shader's parameters.
func (vs *VideoSystem) Shader(h ShaderHandle) (ShaderParams, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	params, ok := vs.shaders.Get(handle.Handle(h))
	if !ok {
		return ShaderParams{}, fmt.Errorf("%w: shader %v", ErrNotFound, h)
	}
	return params, nil
}

// DeleteShader frees the shader program.
func (vs *VideoSystem) DeleteShader(h ShaderHandle) error {
	vs.mu.Lock()
	_, ok := vs.shaders.Free(handle.Handle(h))
	vs.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: shader %v", ErrNotFound, h)
	}
	vs.buf.Write(func(f *Frame) {
		f.Push(DeleteShaderCmd{Handle: h})
	})
	return nil
}

// Render textures.

// CreateRenderTexture allocates an offscreen render target.
func (vs *VideoSystem) CreateRenderTexture(params RenderTextureParams) (RenderTextureHandle, error) {
	if err := params.Validate(); err != nil {
		return RenderTextureHandle{}, err
	}
	vs.mu.Lock()
	h := RenderTextureHandle(vs.renderTextures.Create(params))
	vs.mu.Unlock()
	vs.buf.Write(func(f *Frame) {
		f.Push(CreateRenderTextureCmd{Handle: h, Params: params})
	})
	return h, nil
}

// RenderTexture returns the render texture's parameters.
func (vs *VideoSystem) RenderTexture(h RenderTextureHandle) (RenderTextureParams, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	params, ok := vs.renderTextures.Get(handle.Handle(h))
	if !ok {
		return RenderTextureParams{}, fmt.Errorf("%w: render texture %v", ErrNotFound, h)
	}
	return params, nil
}

// DeleteRenderTexture frees the render target.
func (vs *VideoSystem) DeleteRenderTexture(h RenderTextureHandle) error {
	vs.mu.Lock()
	_, ok := vs.renderTextures.Free(handle.Handle(h))
	vs.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: render texture %v", ErrNotFound, h)
	}
	vs.buf.Write(func(f *Frame) {
		f.Push(DeleteRenderTextureCmd{Handle: h})
	})
	return nil
}

// Meshes.

// CreateMesh allocates a mesh with the given data. Data slices may be
// shorter than the declared capacities, or empty, leaving the remainder
// undefined until updated.
func (vs *VideoSystem) CreateMesh(params MeshParams, data MeshData) (MeshHandle, error) {
	if err := params.Validate(); err != nil {
		return MeshHandle{}, err
	}
	if len(data.Vertices) > params.VertexBytes() {
		return MeshHandle{}, fmt.Errorf("%w: %d vertex bytes exceed capacity %d",
			ErrValidation, len(data.Vertices), params.VertexBytes())
	}
	if len(data.Indices) > params.IndexBytes() {
		return MeshHandle{}, fmt.Errorf("%w: %d index bytes exceed capacity %d",
			ErrValidation, len(data.Indices), params.IndexBytes())
	}

	h := MeshHandle(vs.meshes.CreateLocal(params))
	vs.commitMesh(handle.Handle(h), params, data)
	return h, nil
}

// commitMesh enqueues the device-side mesh creation. Called directly by
// CreateMesh and by the registry when an async load resolves.
func (vs *VideoSystem) commitMesh(h handle.Handle, params MeshParams, data MeshData) {
	vs.buf.Write(func(f *Frame) {
		f.Push(CreateMeshCmd{
			Handle:   MeshHandle(h),
			Params:   params,
			Vertices: f.Extend(data.Vertices),
			Indices:  f.Extend(data.Indices),
		})
	})
}

// CreateMeshFrom starts loading a mesh from the configured source. The
// returned handle is valid immediately; poll MeshState for the outcome.
// Requests for the same key share one load and one handle.
func (vs *VideoSystem) CreateMeshFrom(ctx context.Context, key string) MeshHandle {
	return MeshHandle(vs.meshes.Create(ctx, key))
}

// CreateMeshFromID loads a mesh by content id.
func (vs *VideoSystem) CreateMeshFromID(ctx context.Context, id uuid.UUID) MeshHandle {
	return vs.CreateMeshFrom(ctx, id.String())
}

// Mesh returns the mesh's parameters once it is Ready. Pending and
// stale handles report ErrNotFound; failed loads report ErrLoadFailed.
func (vs *VideoSystem) Mesh(h MeshHandle) (MeshParams, error) {
	hh := handle.Handle(h)
	if state, ok := vs.meshes.State(hh); ok && state == registry.Failed {
		return MeshParams{}, fmt.Errorf("%w: mesh %v: %v", ErrLoadFailed, h, vs.meshes.Err(hh))
	}
	params, ok := vs.meshes.Params(hh)
	if !ok {
		return MeshParams{}, fmt.Errorf("%w: mesh %v", ErrNotFound, h)
	}
	return params, nil
}

// MeshState reports the mesh's load state.
func (vs *VideoSystem) MeshState(h MeshHandle) (registry.State, error) {
	state, ok := vs.meshes.State(handle.Handle(h))
	if !ok {
		return 0, fmt.Errorf("%w: mesh %v", ErrNotFound, h)
	}
	return state, nil
}

// UpdateMesh replaces the mesh's contents from the start of both
// buffers. If the data exceeds the mesh's capacity the mesh is
// recreated with capacity grown to the next power of two, transparently
// to the caller: the handle stays valid throughout.
func (vs *VideoSystem) UpdateMesh(h MeshHandle, data MeshData) error {
	hh := handle.Handle(h)
	params, ok := vs.meshes.Params(hh)
	if !ok {
		return fmt.Errorf("%w: mesh %v", ErrNotFound, h)
	}
	if params.Hint == BufferHintStatic {
		return fmt.Errorf("%w: mesh %v is static", ErrValidation, h)
	}

	if len(data.Vertices) > params.VertexBytes() || len(data.Indices) > params.IndexBytes() {
		grown := params
		if need := ceilDiv(uint32(len(data.Vertices)), params.VertexStride); need > grown.VertexCount {
			grown.VertexCount = nextPow2(need)
		}
		if need := ceilDiv(uint32(len(data.Indices)), uint32(params.IndexFormat.Size())); need > grown.IndexCount {
			grown.IndexCount = nextPow2(need)
		}
		vs.meshes.SetParams(hh, grown)
		vs.buf.Write(func(f *Frame) {
			f.Push(DeleteMeshCmd{Handle: h})
			f.Push(CreateMeshCmd{
				Handle:   h,
				Params:   grown,
				Vertices: f.Extend(data.Vertices),
				Indices:  f.Extend(data.Indices),
			})
		})
		return nil
	}

	vs.buf.Write(func(f *Frame) {
		if len(data.Vertices) > 0 {
			f.Push(UpdateVertexBufferCmd{Handle: h, Data: f.Extend(data.Vertices)})
		}
		if len(data.Indices) > 0 {
			f.Push(UpdateIndexBufferCmd{Handle: h, Data: f.Extend(data.Indices)})
		}
	})
	return nil
}

// UpdateVertexBuffer uploads bytes into the vertex buffer at a byte
// offset. Unlike UpdateMesh it never grows the mesh; writes past the
// capacity are a validation error.
func (vs *VideoSystem) UpdateVertexBuffer(h MeshHandle, offset uint32, data []byte) error {
	params, ok := vs.meshes.Params(handle.Handle(h))
	if !ok {
		return fmt.Errorf("%w: mesh %v", ErrNotFound, h)
	}
	if params.Hint == BufferHintStatic {
		return fmt.Errorf("%w: mesh %v is static", ErrValidation, h)
	}
	if int(offset)+len(data) > params.VertexBytes() {
		return fmt.Errorf("%w: vertex write [%d, %d) past capacity %d",
			ErrValidation, offset, int(offset)+len(data), params.VertexBytes())
	}
	vs.buf.Write(func(f *Frame) {
		f.Push(UpdateVertexBufferCmd{Handle: h, Offset: offset, Data: f.Extend(data)})
	})
	return nil
}

// UpdateIndexBuffer uploads bytes into the index buffer at a byte
// offset.
func (vs *VideoSystem) UpdateIndexBuffer(h MeshHandle, offset uint32, data []byte) error {
	params, ok := vs.meshes.Params(handle.Handle(h))
	if !ok {
		return fmt.Errorf("%w: mesh %v", ErrNotFound, h)
	}
	if params.Hint == BufferHintStatic {
		return fmt.Errorf("%w: mesh %v is static", ErrValidation, h)
	}
	if int(offset)+len(data) > params.IndexBytes() {
		return fmt.Errorf("%w: index write [%d, %d) past capacity %d",
			ErrValidation, offset, int(offset)+len(data), params.IndexBytes())
	}
	vs.buf.Write(func(f *Frame) {
		f.Push(UpdateIndexBufferCmd{Handle: h, Offset: offset, Data: f.Extend(data)})
	})
	return nil
}

// DeleteMesh frees the mesh. The device-side deletion is enqueued only
// when a device-side mesh exists.
func (vs *VideoSystem) DeleteMesh(h MeshHandle) error {
	wasReady, ok := vs.meshes.Delete(handle.Handle(h))
	if !ok {
		return fmt.Errorf("%w: mesh %v", ErrNotFound, h)
	}
	if wasReady {
		vs.buf.Write(func(f *Frame) {
			f.Push(DeleteMeshCmd{Handle: h})
		})
	}
	return nil
}

// Textures.

// CreateTexture allocates a sampled texture. Pixels must be empty or
// exactly fill the texture.
func (vs *VideoSystem) CreateTexture(params TextureParams, data TextureData) (TextureHandle, error) {
	if err := params.Validate(); err != nil {
		return TextureHandle{}, err
	}
	if n := len(data.Pixels); n != 0 && n != params.ByteSize() {
		return TextureHandle{}, fmt.Errorf("%w: %d pixel bytes for a %d byte texture",
			ErrValidation, n, params.ByteSize())
	}

	h := TextureHandle(vs.textures.CreateLocal(params))
	vs.commitTexture(handle.Handle(h), params, data)
	return h, nil
}

func (vs *VideoSystem) commitTexture(h handle.Handle, params TextureParams, data TextureData) {
	vs.buf.Write(func(f *Frame) {
		f.Push(CreateTextureCmd{
			Handle: TextureHandle(h),
			Params: params,
			Pixels: f.Extend(data.Pixels),
		})
	})
}

// CreateTextureFrom starts loading a texture from the configured
// source. Requests for the same key share one load and one handle.
func (vs *VideoSystem) CreateTextureFrom(ctx context.Context, key string) TextureHandle {
	return TextureHandle(vs.textures.Create(ctx, key))
}

// CreateTextureFromID loads a texture by content id.
func (vs *VideoSystem) CreateTextureFromID(ctx context.Context, id uuid.UUID) TextureHandle {
	return vs.CreateTextureFrom(ctx, id.String())
}

// Texture returns the texture's parameters once it is Ready.
func (vs *VideoSystem) Texture(h TextureHandle) (TextureParams, error) {
	hh := handle.Handle(h)
	if state, ok := vs.textures.State(hh); ok && state == registry.Failed {
		return TextureParams{}, fmt.Errorf("%w: texture %v: %v", ErrLoadFailed, h, vs.textures.Err(hh))
	}
	params, ok := vs.textures.Params(hh)
	if !ok {
		return TextureParams{}, fmt.Errorf("%w: texture %v", ErrNotFound, h)
	}
	return params, nil
}

// TextureState reports the texture's load state.
func (vs *VideoSystem) TextureState(h TextureHandle) (registry.State, error) {
	state, ok := vs.textures.State(handle.Handle(h))
	if !ok {
		return 0, fmt.Errorf("%w: texture %v", ErrNotFound, h)
	}
	return state, nil
}

// UpdateTexture uploads pixels into a subregion of the texture. The
// region must lie within the texture and pixels must exactly fill it.
func (vs *VideoSystem) UpdateTexture(h TextureHandle, region image.Rectangle, pixels []byte) error {
	params, ok := vs.textures.Params(handle.Handle(h))
	if !ok {
		return fmt.Errorf("%w: texture %v", ErrNotFound, h)
	}
	bounds := image.Rect(0, 0, int(params.Width), int(params.Height))
	if region.Empty() || !region.In(bounds) {
		return fmt.Errorf("%w: region %v outside texture %v", ErrValidation, region, bounds)
	}
	if want := region.Dx() * region.Dy() * params.Format.BytesPerPixel(); len(pixels) != want {
		return fmt.Errorf("%w: %d pixel bytes for a %d byte region", ErrValidation, len(pixels), want)
	}
	vs.buf.Write(func(f *Frame) {
		f.Push(UpdateTextureCmd{
			Handle: h,
			X:      uint32(region.Min.X), // #nosec G115 -- bounds-checked above
			Y:      uint32(region.Min.Y),
			W:      uint32(region.Dx()),
			H:      uint32(region.Dy()),
			Pixels: f.Extend(pixels),
		})
	})
	return nil
}

// DeleteTexture frees the texture.
func (vs *VideoSystem) DeleteTexture(h TextureHandle) error {
	wasReady, ok := vs.textures.Delete(handle.Handle(h))
	if !ok {
		return fmt.Errorf("%w: texture %v", ErrNotFound, h)
	}
	if wasReady {
		vs.buf.Write(func(f *Frame) {
			f.Push(DeleteTextureCmd{Handle: h})
		})
	}
	return nil
}

// Draws.

// SetScissor updates the scissor state applied to subsequent draws in
// the current frame. The scissor resets to disabled at every swap.
func (vs *VideoSystem) SetScissor(s Scissor) {
	vs.buf.Write(func(f *Frame) {
		f.SetScissor(s)
		f.Push(SetScissorCmd{Scissor: s})
	})
}

// Submit records one draw call against a surface under the frame's
// current scissor state.
func (vs *VideoSystem) Submit(surface SurfaceHandle, call DrawCall) error {
	vs.mu.RLock()
	if _, ok := vs.surfaces.Get(handle.Handle(surface)); !ok {
		vs.mu.RUnlock()
		return fmt.Errorf("%w: surface %v", ErrNotFound, surface)
	}
	shader, shaderOK := vs.shaders.Get(handle.Handle(call.Shader))
	vs.mu.RUnlock()
	if !shaderOK {
		return fmt.Errorf("%w: shader %v", ErrNotFound, call.Shader)
	}
	if err := call.Validate(&shader); err != nil {
		return err
	}
	if _, ok := vs.meshes.State(handle.Handle(call.Mesh)); !ok {
		return fmt.Errorf("%w: mesh %v", ErrNotFound, call.Mesh)
	}

	call.Uniforms = slices.Clone(call.Uniforms)
	vs.buf.Write(func(f *Frame) {
		f.Push(DrawCmd{Surface: surface, Call: call, Scissor: f.Scissor()})
	})
	return nil
}

// SubmitScissor sets the scissor state and records a draw under it, as
// one producer-side operation.
func (vs *VideoSystem) SubmitScissor(surface SurfaceHandle, s Scissor, call DrawCall) error {
	vs.SetScissor(s)
	return vs.Submit(surface, call)
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}

func nextPow2(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
