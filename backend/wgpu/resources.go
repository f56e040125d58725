package wgpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameq"
)

// surfaceEntry is a device-side surface: its params plus a creation
// sequence used to break order ties deterministically.
type surfaceEntry struct {
	params frameq.SurfaceParams
	seq    uint64
}

type shaderEntry struct {
	params   frameq.ShaderParams
	vertex   hal.ShaderModule
	fragment hal.ShaderModule
}

type meshEntry struct {
	params    frameq.MeshParams
	vertexBuf hal.Buffer
	indexBuf  hal.Buffer
}

type textureEntry struct {
	params  frameq.TextureParams
	texture hal.Texture
	view    hal.TextureView
}

type renderTextureEntry struct {
	params  frameq.RenderTextureParams
	texture hal.Texture
	view    hal.TextureView
}

// resources owns every device-side object created from commands.
type resources struct {
	device hal.Device
	queue  hal.Queue

	surfaces       map[frameq.SurfaceHandle]*surfaceEntry
	shaders        map[frameq.ShaderHandle]*shaderEntry
	meshes         map[frameq.MeshHandle]*meshEntry
	textures       map[frameq.TextureHandle]*textureEntry
	renderTextures map[frameq.RenderTextureHandle]*renderTextureEntry

	pipelines map[pipelineKey]*pipelineEntry
	nextSeq   uint64

	// Shared samplers, created on first texture bind.
	samplerLinear  hal.Sampler
	samplerNearest hal.Sampler

	// Backbuffer for surfaces with no attachments, sized to the
	// framebuffer and recreated when it changes.
	bbSize      image.Point
	bbColor     hal.Texture
	bbColorView hal.TextureView
	bbDepth     hal.Texture
	bbDepthView hal.TextureView
}

func newResources(device hal.Device, queue hal.Queue) *resources {
	return &resources{
		device:         device,
		queue:          queue,
		surfaces:       make(map[frameq.SurfaceHandle]*surfaceEntry),
		shaders:        make(map[frameq.ShaderHandle]*shaderEntry),
		meshes:         make(map[frameq.MeshHandle]*meshEntry),
		textures:       make(map[frameq.TextureHandle]*textureEntry),
		renderTextures: make(map[frameq.RenderTextureHandle]*renderTextureEntry),
		pipelines:      make(map[pipelineKey]*pipelineEntry),
	}
}

func (r *resources) createSurface(h frameq.SurfaceHandle, params frameq.SurfaceParams) error {
	if _, ok := r.surfaces[h]; ok {
		return fmt.Errorf("wgpu: surface %v created twice", h)
	}
	r.nextSeq++
	r.surfaces[h] = &surfaceEntry{params: params, seq: r.nextSeq}
	return nil
}

func (r *resources) deleteSurface(h frameq.SurfaceHandle) error {
	if _, ok := r.surfaces[h]; !ok {
		return fmt.Errorf("wgpu: delete of unknown surface %v: %w", h, frameq.ErrNotFound)
	}
	delete(r.surfaces, h)
	return nil
}

func (r *resources) createShader(h frameq.ShaderHandle, params frameq.ShaderParams) error {
	if _, ok := r.shaders[h]; ok {
		return fmt.Errorf("wgpu: shader %v created twice", h)
	}
	vertex, err := compileModule(r.device, "vs", params.VertexSource)
	if err != nil {
		return fmt.Errorf("wgpu: shader %v vertex stage: %w", h, err)
	}
	fragment, err := compileModule(r.device, "fs", params.FragmentSource)
	if err != nil {
		r.device.DestroyShaderModule(vertex)
		return fmt.Errorf("wgpu: shader %v fragment stage: %w", h, err)
	}
	r.shaders[h] = &shaderEntry{params: params, vertex: vertex, fragment: fragment}
	return nil
}

func (r *resources) deleteShader(h frameq.ShaderHandle) error {
	e, ok := r.shaders[h]
	if !ok {
		return fmt.Errorf("wgpu: delete of unknown shader %v: %w", h, frameq.ErrNotFound)
	}
	r.device.DestroyShaderModule(e.vertex)
	r.device.DestroyShaderModule(e.fragment)
	r.dropPipelinesFor(h)
	delete(r.shaders, h)
	return nil
}

func (r *resources) createMesh(h frameq.MeshHandle, params frameq.MeshParams, vertices, indices []byte) error {
	if _, ok := r.meshes[h]; ok {
		return fmt.Errorf("wgpu: mesh %v created twice", h)
	}

	vertexBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "frameq_mesh_vertices",
		Size:  uint64(params.VertexBytes()),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create vertex buffer for mesh %v: %w", h, err)
	}
	var indexBuf hal.Buffer
	if params.IndexCount > 0 {
		indexBuf, err = r.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "frameq_mesh_indices",
			Size:  uint64(params.IndexBytes()),
			Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			r.device.DestroyBuffer(vertexBuf)
			return fmt.Errorf("wgpu: create index buffer for mesh %v: %w", h, err)
		}
	}

	if len(vertices) > 0 {
		r.queue.WriteBuffer(vertexBuf, 0, vertices)
	}
	if len(indices) > 0 && indexBuf != nil {
		r.queue.WriteBuffer(indexBuf, 0, indices)
	}

	r.meshes[h] = &meshEntry{params: params, vertexBuf: vertexBuf, indexBuf: indexBuf}
	return nil
}

func (r *resources) updateVertexBuffer(h frameq.MeshHandle, offset uint32, data []byte) error {
	m, ok := r.meshes[h]
	if !ok {
		return fmt.Errorf("wgpu: update of unknown mesh %v: %w", h, frameq.ErrNotFound)
	}
	if len(data) > 0 {
		r.queue.WriteBuffer(m.vertexBuf, uint64(offset), data)
	}
	return nil
}

func (r *resources) updateIndexBuffer(h frameq.MeshHandle, offset uint32, data []byte) error {
	m, ok := r.meshes[h]
	if !ok {
		return fmt.Errorf("wgpu: update of unknown mesh %v: %w", h, frameq.ErrNotFound)
	}
	if m.indexBuf == nil {
		return fmt.Errorf("wgpu: mesh %v has no index buffer", h)
	}
	if len(data) > 0 {
		r.queue.WriteBuffer(m.indexBuf, uint64(offset), data)
	}
	return nil
}

func (r *resources) deleteMesh(h frameq.MeshHandle) error {
	m, ok := r.meshes[h]
	if !ok {
		return fmt.Errorf("wgpu: delete of unknown mesh %v: %w", h, frameq.ErrNotFound)
	}
	r.device.DestroyBuffer(m.vertexBuf)
	if m.indexBuf != nil {
		r.device.DestroyBuffer(m.indexBuf)
	}
	delete(r.meshes, h)
	return nil
}

func (r *resources) createTexture(h frameq.TextureHandle, params frameq.TextureParams, pixels []byte) error {
	if _, ok := r.textures[h]; ok {
		return fmt.Errorf("wgpu: texture %v created twice", h)
	}

	format := sampledFormat(params.Format)
	texture, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: "frameq_texture",
		Size: hal.Extent3D{
			Width:              params.Width,
			Height:             params.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create texture %v: %w", h, err)
	}
	view, err := r.device.CreateTextureView(texture, &hal.TextureViewDescriptor{
		Label:         "frameq_texture_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(texture)
		return fmt.Errorf("wgpu: create texture view %v: %w", h, err)
	}

	entry := &textureEntry{params: params, texture: texture, view: view}
	r.textures[h] = entry
	if len(pixels) > 0 {
		r.writeTexture(entry, 0, 0, params.Width, params.Height, pixels)
	}
	return nil
}

func (r *resources) updateTexture(h frameq.TextureHandle, c frameq.UpdateTextureCmd, pixels []byte) error {
	entry, ok := r.textures[h]
	if !ok {
		return fmt.Errorf("wgpu: update of unknown texture %v: %w", h, frameq.ErrNotFound)
	}
	r.writeTexture(entry, c.X, c.Y, c.W, c.H, pixels)
	return nil
}

func (r *resources) writeTexture(entry *textureEntry, x, y, w, h uint32, pixels []byte) {
	bpp := uint32(entry.params.Format.BytesPerPixel()) // #nosec G115 -- bytes per pixel is 1..4
	r.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  entry.texture,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: x, Y: y, Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		pixels,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * bpp,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
}

func (r *resources) deleteTexture(h frameq.TextureHandle) error {
	entry, ok := r.textures[h]
	if !ok {
		return fmt.Errorf("wgpu: delete of unknown texture %v: %w", h, frameq.ErrNotFound)
	}
	r.device.DestroyTextureView(entry.view)
	r.device.DestroyTexture(entry.texture)
	delete(r.textures, h)
	return nil
}

func (r *resources) createRenderTexture(h frameq.RenderTextureHandle, params frameq.RenderTextureParams) error {
	if _, ok := r.renderTextures[h]; ok {
		return fmt.Errorf("wgpu: render texture %v created twice", h)
	}

	format := attachmentFormat(params.Format)
	usage := gputypes.TextureUsageRenderAttachment
	if params.Format.IsColor() {
		usage |= gputypes.TextureUsageTextureBinding
	}
	texture, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: "frameq_render_texture",
		Size: hal.Extent3D{
			Width:              params.Width,
			Height:             params.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create render texture %v: %w", h, err)
	}
	view, err := r.device.CreateTextureView(texture, &hal.TextureViewDescriptor{
		Label:         "frameq_render_texture_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(texture)
		return fmt.Errorf("wgpu: create render texture view %v: %w", h, err)
	}
	r.renderTextures[h] = &renderTextureEntry{params: params, texture: texture, view: view}
	return nil
}

func (r *resources) deleteRenderTexture(h frameq.RenderTextureHandle) error {
	entry, ok := r.renderTextures[h]
	if !ok {
		return fmt.Errorf("wgpu: delete of unknown render texture %v: %w", h, frameq.ErrNotFound)
	}
	r.device.DestroyTextureView(entry.view)
	r.device.DestroyTexture(entry.texture)
	delete(r.renderTextures, h)
	return nil
}

func (r *resources) destroyAll() {
	for h := range r.shaders {
		_ = r.deleteShader(h)
	}
	for h := range r.meshes {
		_ = r.deleteMesh(h)
	}
	for h := range r.textures {
		_ = r.deleteTexture(h)
	}
	for h := range r.renderTextures {
		_ = r.deleteRenderTexture(h)
	}
	for key, p := range r.pipelines {
		p.destroy(r.device)
		delete(r.pipelines, key)
	}
	if r.samplerLinear != nil {
		r.device.DestroySampler(r.samplerLinear)
		r.samplerLinear = nil
	}
	if r.samplerNearest != nil {
		r.device.DestroySampler(r.samplerNearest)
		r.samplerNearest = nil
	}
	r.destroyBackbuffer()
	r.surfaces = make(map[frameq.SurfaceHandle]*surfaceEntry)
}

func (r *resources) dropPipelinesFor(h frameq.ShaderHandle) {
	for key, p := range r.pipelines {
		if key.shader == h {
			p.destroy(r.device)
			delete(r.pipelines, key)
		}
	}
}

// sampler returns the shared sampler matching a texture filter,
// creating it on first use.
func (r *resources) sampler(filter frameq.FilterMode) (hal.Sampler, error) {
	mode := gputypes.FilterModeLinear
	cached := &r.samplerLinear
	label := "frameq_sampler_linear"
	if filter == frameq.FilterNearest {
		mode = gputypes.FilterModeNearest
		cached = &r.samplerNearest
		label = "frameq_sampler_nearest"
	}
	if *cached != nil {
		return *cached, nil
	}
	s, err := r.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    mode,
		MinFilter:    mode,
		MipmapFilter: mode,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler: %w", err)
	}
	*cached = s
	return s, nil
}

// sampledFormat maps a texture format onto the hal format space.
func sampledFormat(f frameq.TextureFormat) gputypes.TextureFormat {
	switch f {
	case frameq.TextureFormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case frameq.TextureFormatR8:
		return gputypes.TextureFormatR8Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// attachmentFormat maps a render texture format onto the hal format
// space.
func attachmentFormat(f frameq.RenderTextureFormat) gputypes.TextureFormat {
	switch f {
	case frameq.RenderTextureFormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case frameq.RenderTextureFormatDepth24Stencil8:
		return gputypes.TextureFormatDepth24PlusStencil8
	case frameq.RenderTextureFormatDepth32Float:
		return gputypes.TextureFormatDepth32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func halIndexFormat(f frameq.IndexFormat) gputypes.IndexFormat {
	if f == frameq.IndexFormatU32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

func halCullMode(c frameq.CullFace) gputypes.CullMode {
	switch c {
	case frameq.CullFront:
		return gputypes.CullModeFront
	case frameq.CullBack:
		return gputypes.CullModeBack
	default:
		return gputypes.CullModeNone
	}
}
