package frameq

import "fmt"

// MaxUniforms is the maximum number of uniform variables a shader may
// declare.
const MaxUniforms = 32

// CullFace selects which triangle faces are discarded.
type CullFace uint8

const (
	// CullNone disables face culling.
	CullNone CullFace = iota
	// CullFront discards front-facing triangles.
	CullFront
	// CullBack discards back-facing triangles.
	CullBack
)

// RenderState is the fixed-function pipeline state baked into a shader.
type RenderState struct {
	// Cull selects face culling.
	Cull CullFace

	// Blend enables premultiplied alpha blending on color targets.
	Blend bool

	// DepthTest enables depth testing against the surface's
	// depth/stencil attachment.
	DepthTest bool

	// DepthWrite enables depth writes. Ignored when DepthTest is false.
	DepthWrite bool
}

// ShaderParams encapsulates everything needed to configure a graphics
// pipeline before drawing: the shader sources, the uniform interface and
// the fixed-function render state. Source semantics (language, entry
// points) are a device concern; this package treats them as opaque text.
type ShaderParams struct {
	// VertexSource and FragmentSource are the shader stage sources.
	VertexSource   string
	FragmentSource string

	// Uniforms are the names of the uniform variables draw calls may
	// bind. Names must be unique.
	Uniforms []string

	// VertexStride is the size in bytes of the vertex this shader
	// consumes; it must match the stride of meshes drawn with it.
	VertexStride uint32

	// State is the fixed-function render state.
	State RenderState
}

// Validate checks the parameter set before any pool slot is allocated.
// Rejected shaders are surfaced synchronously and never reach the device.
func (p ShaderParams) Validate() error {
	if p.VertexSource == "" || p.FragmentSource == "" {
		return fmt.Errorf("%w: shader requires both vertex and fragment sources", ErrValidation)
	}
	if len(p.Uniforms) > MaxUniforms {
		return fmt.Errorf("%w: %d uniforms exceeds the maximum of %d",
			ErrValidation, len(p.Uniforms), MaxUniforms)
	}
	seen := make(map[string]struct{}, len(p.Uniforms))
	for _, name := range p.Uniforms {
		if name == "" {
			return fmt.Errorf("%w: empty uniform name", ErrValidation)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate uniform %q", ErrValidation, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// HasUniform reports whether name is part of the shader's uniform
// interface.
func (p ShaderParams) HasUniform(name string) bool {
	for _, u := range p.Uniforms {
		if u == name {
			return true
		}
	}
	return false
}
