package frameq

import "fmt"

// UniformKind identifies the payload type of a uniform value.
type UniformKind uint8

const (
	// UniformFloat is a single float32.
	UniformFloat UniformKind = iota
	// UniformVec4 is a float32 four-vector.
	UniformVec4
	// UniformMat4 is a column-major float32 4x4 matrix.
	UniformMat4
	// UniformTexture binds a texture to a sampler slot.
	UniformTexture
)

var uniformKindNames = [...]string{
	UniformFloat:   "Float",
	UniformVec4:    "Vec4",
	UniformMat4:    "Mat4",
	UniformTexture: "Texture",
}

func (k UniformKind) String() string {
	if int(k) < len(uniformKindNames) {
		return uniformKindNames[k]
	}
	return fmt.Sprintf("UniformKind(%d)", k)
}

// UniformValue is a single uniform binding in a draw call. Exactly one
// payload field is meaningful, selected by Kind.
type UniformValue struct {
	// Name is the uniform variable name declared by the shader.
	Name string

	Kind UniformKind

	Float   float32
	Vec4    [4]float32
	Mat4    [16]float32
	Texture TextureHandle
}

// Float returns a float uniform binding.
func Float(name string, v float32) UniformValue {
	return UniformValue{Name: name, Kind: UniformFloat, Float: v}
}

// Vec4 returns a four-vector uniform binding.
func Vec4(name string, v [4]float32) UniformValue {
	return UniformValue{Name: name, Kind: UniformVec4, Vec4: v}
}

// Mat4 returns a column-major matrix uniform binding.
func Mat4(name string, v [16]float32) UniformValue {
	return UniformValue{Name: name, Kind: UniformMat4, Mat4: v}
}

// Texture returns a texture sampler uniform binding.
func Texture(name string, h TextureHandle) UniformValue {
	return UniformValue{Name: name, Kind: UniformTexture, Texture: h}
}

// DrawCall describes one draw: the shader and mesh to use, the index
// range to render and the uniform values bound for this call.
type DrawCall struct {
	Shader ShaderHandle
	Mesh   MeshHandle

	// FirstIndex is the offset into the mesh's index buffer.
	FirstIndex uint32

	// IndexCount is the number of indices to render. Zero means the
	// whole mesh from FirstIndex.
	IndexCount uint32

	Uniforms []UniformValue
}

// Validate reports whether the draw call references live-looking handles
// and legal uniforms for the given shader parameters.
func (d *DrawCall) Validate(shader *ShaderParams) error {
	if d.Shader.Nil() {
		return fmt.Errorf("%w: draw call without shader", ErrValidation)
	}
	if d.Mesh.Nil() {
		return fmt.Errorf("%w: draw call without mesh", ErrValidation)
	}
	if shader != nil {
		for i := range d.Uniforms {
			if !shader.HasUniform(d.Uniforms[i].Name) {
				return fmt.Errorf("%w: uniform %q not declared by shader",
					ErrValidation, d.Uniforms[i].Name)
			}
		}
	}
	return nil
}
