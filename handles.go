package frameq

import "github.com/gogpu/frameq/handle"

// Typed handles. Each resource kind gets a distinct type over the same
// generation-tagged token so handles of different kinds cannot be mixed
// up at compile time. The zero value of every handle type is invalid.

// SurfaceHandle identifies a surface: a named, orderable bucket of draw
// calls with clear behavior.
type SurfaceHandle handle.Handle

// Nil reports whether h is the zero handle.
func (h SurfaceHandle) Nil() bool { return handle.Handle(h).Nil() }

// ShaderHandle identifies a shader program and its render state.
type ShaderHandle handle.Handle

// Nil reports whether h is the zero handle.
func (h ShaderHandle) Nil() bool { return handle.Handle(h).Nil() }

// MeshHandle identifies a mesh (vertex buffer + index buffer pair).
type MeshHandle handle.Handle

// Nil reports whether h is the zero handle.
func (h MeshHandle) Nil() bool { return handle.Handle(h).Nil() }

// TextureHandle identifies a sampleable texture.
type TextureHandle handle.Handle

// Nil reports whether h is the zero handle.
func (h TextureHandle) Nil() bool { return handle.Handle(h).Nil() }

// RenderTextureHandle identifies a texture usable as a framebuffer
// attachment.
type RenderTextureHandle handle.Handle

// Nil reports whether h is the zero handle.
func (h RenderTextureHandle) Nil() bool { return handle.Handle(h).Nil() }
