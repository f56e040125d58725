package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameq"
)

// compileModule compiles WGSL source to SPIR-V and wraps it in a hal
// shader module. SPIR-V is little-endian 32-bit words.
func compileModule(device hal.Device, label, source string) (hal.ShaderModule, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile WGSL: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
}

// pipelineKey identifies one compiled pipeline variant. The same shader
// needs distinct pipelines per target format pair and per bound texture
// count, because the bind group layout bakes the texture slots in.
type pipelineKey struct {
	shader   frameq.ShaderHandle
	color    gputypes.TextureFormat
	depth    gputypes.TextureFormat
	textures int
}

// pipelineEntry owns a pipeline and the layouts it was built against.
type pipelineEntry struct {
	pipeline   hal.RenderPipeline
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
}

func (p *pipelineEntry) destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
	}
}

// Binding layout convention shared with frameq WGSL shaders: the packed
// uniform block sits at binding 0; texture uniform i occupies bindings
// 1+2i (texture_2d) and 2+2i (sampler), in shader declaration order.
const uniformBinding = 0

func textureBindings(i int) (texture, sampler uint32) {
	return uint32(1 + 2*i), uint32(2 + 2*i) // #nosec G115 -- i < MaxUniforms
}

// ensurePipeline returns the cached pipeline for the key, building it on
// first use from the shader's modules and render state.
func (r *resources) ensurePipeline(key pipelineKey, shader *shaderEntry) (*pipelineEntry, error) {
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}

	layoutEntries := []gputypes.BindGroupLayoutEntry{{
		Binding:    uniformBinding,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for i := 0; i < key.textures; i++ {
		texBind, sampBind := textureBindings(i)
		layoutEntries = append(layoutEntries,
			gputypes.BindGroupLayoutEntry{
				Binding:    texBind,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    sampBind,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		)
	}

	bindLayout, err := r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "frameq_bind_layout",
		Entries: layoutEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group layout: %w", err)
	}
	pipeLayout, err := r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "frameq_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		r.device.DestroyBindGroupLayout(bindLayout)
		return nil, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	target := gputypes.ColorTargetState{
		Format:    key.color,
		WriteMask: gputypes.ColorWriteMaskAll,
	}
	if shader.params.State.Blend {
		premulBlend := gputypes.BlendStatePremultiplied()
		target.Blend = &premulBlend
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  "frameq_pipeline",
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader.vertex,
			EntryPoint: "vs_main",
			Buffers:    vertexLayout(shader.params.VertexStride),
		},
		Fragment: &hal.FragmentState{
			Module:     shader.fragment,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: halCullMode(shader.params.State.Cull),
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if key.depth != 0 {
		compare := gputypes.CompareFunctionAlways
		if shader.params.State.DepthTest {
			compare = gputypes.CompareFunctionLess
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            key.depth,
			DepthWriteEnabled: shader.params.State.DepthTest && shader.params.State.DepthWrite,
			DepthCompare:      compare,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
		}
	}

	pipeline, err := r.device.CreateRenderPipeline(desc)
	if err != nil {
		r.device.DestroyPipelineLayout(pipeLayout)
		r.device.DestroyBindGroupLayout(bindLayout)
		return nil, fmt.Errorf("wgpu: create render pipeline: %w", err)
	}

	entry := &pipelineEntry{pipeline: pipeline, bindLayout: bindLayout, pipeLayout: pipeLayout}
	r.pipelines[key] = entry
	return entry, nil
}

// vertexLayout derives generic vertex attributes from the byte stride:
// consecutive float32x4 locations, with a narrower tail attribute when
// the stride is not a multiple of 16.
func vertexLayout(stride uint32) []gputypes.VertexBufferLayout {
	var attrs []gputypes.VertexAttribute
	var offset uint32
	var location uint32
	for offset+16 <= stride {
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         gputypes.VertexFormatFloat32x4,
			Offset:         uint64(offset),
			ShaderLocation: location,
		})
		offset += 16
		location++
	}
	switch stride - offset {
	case 4:
		attrs = append(attrs, gputypes.VertexAttribute{
			Format: gputypes.VertexFormatFloat32, Offset: uint64(offset), ShaderLocation: location,
		})
	case 8:
		attrs = append(attrs, gputypes.VertexAttribute{
			Format: gputypes.VertexFormatFloat32x2, Offset: uint64(offset), ShaderLocation: location,
		})
	case 12:
		attrs = append(attrs, gputypes.VertexAttribute{
			Format: gputypes.VertexFormatFloat32x3, Offset: uint64(offset), ShaderLocation: location,
		})
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(stride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}
}

// uniformSlotSize returns the size a uniform kind occupies in the packed
// uniform block. Scalars are padded to a full 16-byte slot so the block
// layout matches WGSL's uniform address space rules.
func uniformSlotSize(k frameq.UniformKind) int {
	if k == frameq.UniformMat4 {
		return 64
	}
	return 16
}

// packUniforms serializes the call's scalar uniforms into a uniform
// block, slotted in shader declaration order, and collects the texture
// uniforms in the same order. Uniforms the call does not bind occupy
// zeroed slots.
func packUniforms(shader *frameq.ShaderParams, uniforms []frameq.UniformValue) (block []byte, textures []frameq.TextureHandle) {
	byName := make(map[string]*frameq.UniformValue, len(uniforms))
	for i := range uniforms {
		byName[uniforms[i].Name] = &uniforms[i]
	}

	size := 0
	for _, name := range shader.Uniforms {
		if v, ok := byName[name]; ok && v.Kind == frameq.UniformTexture {
			continue
		}
		kind := frameq.UniformVec4
		if v, ok := byName[name]; ok {
			kind = v.Kind
		}
		size += uniformSlotSize(kind)
	}
	if size == 0 {
		size = 16 // empty uniform blocks are not bindable
	}
	block = make([]byte, size)

	off := 0
	for _, name := range shader.Uniforms {
		v, ok := byName[name]
		if ok && v.Kind == frameq.UniformTexture {
			textures = append(textures, v.Texture)
			continue
		}
		if !ok {
			off += 16
			continue
		}
		switch v.Kind {
		case frameq.UniformFloat:
			binary.LittleEndian.PutUint32(block[off:], math.Float32bits(v.Float))
			off += 16
		case frameq.UniformVec4:
			for i, f := range v.Vec4 {
				binary.LittleEndian.PutUint32(block[off+4*i:], math.Float32bits(f))
			}
			off += 16
		case frameq.UniformMat4:
			for i, f := range v.Mat4 {
				binary.LittleEndian.PutUint32(block[off+4*i:], math.Float32bits(f))
			}
			off += 64
		}
	}
	return block, textures
}
