package wgpu

import (
	"fmt"
	"image"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameq"
)

// surfacePass collects the draws submitted to one surface during a
// frame, in submission order.
type surfacePass struct {
	handle  frameq.SurfaceHandle
	surface *surfaceEntry
	draws   []frameq.DrawCmd
}

// framePlan is the outcome of replaying a frame's resource commands:
// the remaining draws, bucketed per surface.
type framePlan struct {
	passes []*surfacePass
}

// replay executes a frame's resource commands in recorded order and
// buckets its draws per target surface. Scissor state travels inside
// each DrawCmd, so SetScissor markers need no action here.
func (d *Device) replay(f *frameq.Frame) (*framePlan, error) {
	plan := &framePlan{}
	bySurface := make(map[frameq.SurfaceHandle]*surfacePass)

	for _, cmd := range f.Commands() {
		var err error
		switch c := cmd.(type) {
		case frameq.CreateSurfaceCmd:
			err = d.res.createSurface(c.Handle, c.Params)
		case frameq.DeleteSurfaceCmd:
			err = d.res.deleteSurface(c.Handle)
		case frameq.CreateShaderCmd:
			err = d.res.createShader(c.Handle, c.Params)
		case frameq.DeleteShaderCmd:
			err = d.res.deleteShader(c.Handle)
		case frameq.CreateRenderTextureCmd:
			err = d.res.createRenderTexture(c.Handle, c.Params)
		case frameq.DeleteRenderTextureCmd:
			err = d.res.deleteRenderTexture(c.Handle)
		case frameq.CreateMeshCmd:
			err = d.res.createMesh(c.Handle, c.Params, f.Bytes(c.Vertices), f.Bytes(c.Indices))
		case frameq.UpdateVertexBufferCmd:
			err = d.res.updateVertexBuffer(c.Handle, c.Offset, f.Bytes(c.Data))
		case frameq.UpdateIndexBufferCmd:
			err = d.res.updateIndexBuffer(c.Handle, c.Offset, f.Bytes(c.Data))
		case frameq.DeleteMeshCmd:
			err = d.res.deleteMesh(c.Handle)
		case frameq.CreateTextureCmd:
			err = d.res.createTexture(c.Handle, c.Params, f.Bytes(c.Pixels))
		case frameq.UpdateTextureCmd:
			err = d.res.updateTexture(c.Handle, c, f.Bytes(c.Pixels))
		case frameq.DeleteTextureCmd:
			err = d.res.deleteTexture(c.Handle)
		case frameq.SetScissorCmd:
			// Captured per draw at record time.
		case frameq.DrawCmd:
			if err := d.res.checkDraw(&c.Call); err != nil {
				return nil, err
			}
			pass, ok := bySurface[c.Surface]
			if !ok {
				surface, live := d.res.surfaces[c.Surface]
				if !live {
					return nil, fmt.Errorf("wgpu: draw on unknown surface %v: %w",
						c.Surface, frameq.ErrNotFound)
				}
				pass = &surfacePass{handle: c.Surface, surface: surface}
				bySurface[c.Surface] = pass
				plan.passes = append(plan.passes, pass)
			}
			pass.draws = append(pass.draws, c)
		default:
			err = fmt.Errorf("wgpu: unhandled command %v", cmd.Type())
		}
		if err != nil {
			return nil, err
		}
	}

	sortPasses(plan.passes)
	return plan, nil
}

// checkDraw verifies every handle a draw references against the live
// resource tables. Runs at replay time so a draw binding a missing or
// still-loading resource fails the dispatch without costing the device.
func (r *resources) checkDraw(call *frameq.DrawCall) error {
	if _, ok := r.shaders[call.Shader]; !ok {
		return fmt.Errorf("wgpu: draw with unknown shader %v: %w", call.Shader, frameq.ErrNotFound)
	}
	if _, ok := r.meshes[call.Mesh]; !ok {
		return fmt.Errorf("wgpu: draw with unknown mesh %v: %w", call.Mesh, frameq.ErrNotFound)
	}
	for _, u := range call.Uniforms {
		if u.Kind != frameq.UniformTexture {
			continue
		}
		if _, ok := r.textures[u.Texture]; !ok {
			return fmt.Errorf("wgpu: draw binding unknown texture %v: %w", u.Texture, frameq.ErrNotFound)
		}
	}
	return nil
}

// sortPasses ranks surfaces by declared order, breaking ties with the
// surface creation sequence, and state-sorts draws inside every
// non-sequenced surface. Draws on a sequenced surface keep their
// submission order.
func sortPasses(passes []*surfacePass) {
	sort.SliceStable(passes, func(i, j int) bool {
		a, b := passes[i], passes[j]
		if a.surface.params.Order != b.surface.params.Order {
			return a.surface.params.Order < b.surface.params.Order
		}
		return a.surface.seq < b.surface.seq
	})
	for _, pass := range passes {
		if pass.surface.params.Sequence {
			continue
		}
		sortDraws(pass.draws)
	}
}

// sortDraws groups draws by shader then mesh to reduce pipeline and
// buffer rebinds. The sort is stable so equal-state draws keep their
// relative order.
func sortDraws(draws []frameq.DrawCmd) {
	sort.SliceStable(draws, func(i, j int) bool {
		a, b := draws[i].Call, draws[j].Call
		if a.Shader.Index != b.Shader.Index {
			return a.Shader.Index < b.Shader.Index
		}
		return a.Mesh.Index < b.Mesh.Index
	})
}

// transientSet tracks per-frame GPU objects that must outlive the
// submission and die after the fence signals.
type transientSet struct {
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
}

func (t *transientSet) destroy(device hal.Device) {
	for _, bg := range t.bindGroups {
		device.DestroyBindGroup(bg)
	}
	for _, b := range t.buffers {
		device.DestroyBuffer(b)
	}
}

// encode turns a frame plan into render passes, submits them and waits
// for completion. Any error here is treated as device loss by the
// caller.
func (d *Device) encode(plan *framePlan, framebuffer image.Point) error {
	if len(plan.passes) == 0 {
		return nil
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "frameq_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frameq_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	var transients transientSet
	for _, pass := range plan.passes {
		if err := d.encodePass(encoder, pass, framebuffer, &transients); err != nil {
			encoder.DiscardEncoding()
			transients.destroy(d.device)
			return err
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		transients.destroy(d.device)
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)
	defer transients.destroy(d.device)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	return nil
}

// passTarget describes the attachments one render pass draws into.
type passTarget struct {
	size        image.Point
	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat
}

func (d *Device) encodePass(encoder hal.CommandEncoder, pass *surfacePass, framebuffer image.Point, transients *transientSet) error {
	params := &pass.surface.params

	desc, target, err := d.renderPassDescriptor(params, framebuffer)
	if err != nil {
		return err
	}

	rp := encoder.BeginRenderPass(desc)
	for i := range pass.draws {
		if err := d.encodeDraw(rp, &pass.draws[i], target, transients); err != nil {
			rp.End()
			return err
		}
	}
	rp.End()
	return nil
}

// renderPassDescriptor builds the hal render pass for a surface. A
// surface with no attachments targets the internal backbuffer sized to
// the framebuffer.
func (d *Device) renderPassDescriptor(params *frameq.SurfaceParams, framebuffer image.Point) (*hal.RenderPassDescriptor, passTarget, error) {
	colorLoad := gputypes.LoadOpLoad
	if params.Clear.Has(frameq.ClearColor) {
		colorLoad = gputypes.LoadOpClear
	}
	clearValue := gputypes.Color{
		R: float64(params.ClearColorValue.R) / 255,
		G: float64(params.ClearColorValue.G) / 255,
		B: float64(params.ClearColorValue.B) / 255,
		A: float64(params.ClearColorValue.A) / 255,
	}

	desc := &hal.RenderPassDescriptor{Label: "frameq_pass"}
	var target passTarget

	attachments := 0
	for _, h := range params.Colors {
		if h.Nil() {
			continue
		}
		rt, ok := d.res.renderTextures[h]
		if !ok {
			return nil, target, fmt.Errorf("wgpu: surface color attachment %v: %w", h, frameq.ErrNotFound)
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       rt.view,
			LoadOp:     colorLoad,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearValue,
		})
		if attachments == 0 {
			target.size = image.Pt(int(rt.params.Width), int(rt.params.Height))
			target.colorFormat = attachmentFormat(rt.params.Format)
		}
		attachments++
	}

	var depthView hal.TextureView
	if h := params.DepthStencil; !h.Nil() {
		rt, ok := d.res.renderTextures[h]
		if !ok {
			return nil, target, fmt.Errorf("wgpu: surface depth attachment %v: %w", h, frameq.ErrNotFound)
		}
		depthView = rt.view
		target.depthFormat = attachmentFormat(rt.params.Format)
		if attachments == 0 {
			target.size = image.Pt(int(rt.params.Width), int(rt.params.Height))
		}
	}

	if attachments == 0 && depthView == nil {
		// Default framebuffer surface.
		if err := d.res.ensureBackbuffer(framebuffer); err != nil {
			return nil, target, err
		}
		desc.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:       d.res.bbColorView,
			LoadOp:     colorLoad,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearValue,
		}}
		depthView = d.res.bbDepthView
		target.size = framebuffer
		target.colorFormat = gputypes.TextureFormatRGBA8Unorm
		target.depthFormat = gputypes.TextureFormatDepth24PlusStencil8
	}

	if depthView != nil {
		depthLoad := gputypes.LoadOpLoad
		if params.Clear.Has(frameq.ClearDepth) {
			depthLoad = gputypes.LoadOpClear
		}
		stencilLoad := gputypes.LoadOpLoad
		if params.Clear.Has(frameq.ClearStencil) {
			stencilLoad = gputypes.LoadOpClear
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              depthView,
			DepthLoadOp:       depthLoad,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   params.ClearDepthValue,
			StencilLoadOp:     stencilLoad,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: uint32(params.ClearStencilValue), // #nosec G115 -- stencil reference is 0..255
		}
	}
	return desc, target, nil
}

func (d *Device) encodeDraw(rp hal.RenderPassEncoder, draw *frameq.DrawCmd, target passTarget, transients *transientSet) error {
	call := &draw.Call
	shader, ok := d.res.shaders[call.Shader]
	if !ok {
		return fmt.Errorf("wgpu: draw with unknown shader %v: %w", call.Shader, frameq.ErrNotFound)
	}
	mesh, ok := d.res.meshes[call.Mesh]
	if !ok {
		return fmt.Errorf("wgpu: draw with unknown mesh %v: %w", call.Mesh, frameq.ErrNotFound)
	}

	block, textures := packUniforms(&shader.params, call.Uniforms)

	pipeline, err := d.res.ensurePipeline(pipelineKey{
		shader:   call.Shader,
		color:    target.colorFormat,
		depth:    target.depthFormat,
		textures: len(textures),
	}, shader)
	if err != nil {
		return err
	}

	bindGroup, err := d.buildBindGroup(pipeline.bindLayout, block, textures, transients)
	if err != nil {
		return err
	}

	setScissor(rp, draw.Scissor, target.size)

	rp.SetPipeline(pipeline.pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	rp.SetVertexBuffer(0, mesh.vertexBuf, 0)
	if mesh.indexBuf != nil {
		count := call.IndexCount
		if count == 0 {
			count = mesh.params.IndexCount - call.FirstIndex
		}
		rp.SetIndexBuffer(mesh.indexBuf, halIndexFormat(mesh.params.IndexFormat), 0)
		rp.DrawIndexed(count, 1, call.FirstIndex, 0, 0)
	} else {
		rp.Draw(mesh.params.VertexCount, 1, 0, 0)
	}
	return nil
}

// buildBindGroup creates the per-draw bind group: the packed uniform
// block at binding 0, then texture/sampler pairs per the shared binding
// convention.
func (d *Device) buildBindGroup(layout hal.BindGroupLayout, block []byte, textures []frameq.TextureHandle, transients *transientSet) (hal.BindGroup, error) {
	uniformBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "frameq_uniforms",
		Size:  uint64(len(block)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create uniform buffer: %w", err)
	}
	transients.buffers = append(transients.buffers, uniformBuf)
	d.queue.WriteBuffer(uniformBuf, 0, block)

	entries := []gputypes.BindGroupEntry{{
		Binding: uniformBinding,
		Resource: gputypes.BufferBinding{
			Buffer: uniformBuf.NativeHandle(),
			Offset: 0,
			Size:   uint64(len(block)),
		},
	}}
	for i, h := range textures {
		tex, ok := d.res.textures[h]
		if !ok {
			return nil, fmt.Errorf("wgpu: draw with unknown texture %v: %w", h, frameq.ErrNotFound)
		}
		sampler, err := d.res.sampler(tex.params.Filter)
		if err != nil {
			return nil, err
		}
		texBind, sampBind := textureBindings(i)
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding: texBind,
				Resource: gputypes.TextureViewBinding{
					TextureView: tex.view.NativeHandle(),
				},
			},
			gputypes.BindGroupEntry{
				Binding: sampBind,
				Resource: gputypes.SamplerBinding{
					Sampler: sampler.NativeHandle(),
				},
			},
		)
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "frameq_bind",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}
	transients.bindGroups = append(transients.bindGroups, bg)
	return bg, nil
}

// setScissor applies a draw's scissor, clamped to the target, or resets
// it to the full target when disabled.
func setScissor(rp hal.RenderPassEncoder, s frameq.Scissor, size image.Point) {
	full := image.Rect(0, 0, size.X, size.Y)
	rect := full
	if s.Enabled {
		rect = s.Rect.Intersect(full)
	}
	w := rect.Dx()
	h := rect.Dy()
	if w < 0 || h < 0 {
		w, h = 0, 0
	}
	rp.SetScissorRect(uint32(rect.Min.X), uint32(rect.Min.Y), uint32(w), uint32(h)) // #nosec G115 -- clamped to target bounds
}

// ensureBackbuffer creates or resizes the internal color+depth targets
// used by surfaces with no attachments.
func (r *resources) ensureBackbuffer(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("wgpu: framebuffer %v has no area", size)
	}
	if r.bbColor != nil && r.bbSize == size {
		return nil
	}
	r.destroyBackbuffer()

	w := uint32(size.X) // #nosec G115 -- positive framebuffer dimensions
	h := uint32(size.Y) // #nosec G115 -- positive framebuffer dimensions

	color, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "frameq_backbuffer",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create backbuffer: %w", err)
	}
	colorView, err := r.device.CreateTextureView(color, &hal.TextureViewDescriptor{
		Label:         "frameq_backbuffer_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(color)
		return fmt.Errorf("wgpu: create backbuffer view: %w", err)
	}
	depth, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "frameq_backbuffer_depth",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		r.device.DestroyTextureView(colorView)
		r.device.DestroyTexture(color)
		return fmt.Errorf("wgpu: create backbuffer depth: %w", err)
	}
	depthView, err := r.device.CreateTextureView(depth, &hal.TextureViewDescriptor{
		Label:         "frameq_backbuffer_depth_view",
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(depth)
		r.device.DestroyTextureView(colorView)
		r.device.DestroyTexture(color)
		return fmt.Errorf("wgpu: create backbuffer depth view: %w", err)
	}

	r.bbSize = size
	r.bbColor = color
	r.bbColorView = colorView
	r.bbDepth = depth
	r.bbDepthView = depthView
	return nil
}

func (r *resources) destroyBackbuffer() {
	if r.bbDepthView != nil {
		r.device.DestroyTextureView(r.bbDepthView)
		r.bbDepthView = nil
	}
	if r.bbDepth != nil {
		r.device.DestroyTexture(r.bbDepth)
		r.bbDepth = nil
	}
	if r.bbColorView != nil {
		r.device.DestroyTextureView(r.bbColorView)
		r.bbColorView = nil
	}
	if r.bbColor != nil {
		r.device.DestroyTexture(r.bbColor)
		r.bbColor = nil
	}
	r.bbSize = image.Point{}
}
