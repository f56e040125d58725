package frameq

import "fmt"

// CommandType identifies a recorded command variant.
type CommandType uint8

const (
	CmdCreateSurface CommandType = iota
	CmdDeleteSurface
	CmdCreateShader
	CmdDeleteShader
	CmdCreateRenderTexture
	CmdDeleteRenderTexture
	CmdCreateMesh
	CmdUpdateVertexBuffer
	CmdUpdateIndexBuffer
	CmdDeleteMesh
	CmdCreateTexture
	CmdUpdateTexture
	CmdDeleteTexture
	CmdSetScissor
	CmdDraw

	numCommandTypes
)

var commandTypeNames = [...]string{
	CmdCreateSurface:       "CreateSurface",
	CmdDeleteSurface:       "DeleteSurface",
	CmdCreateShader:        "CreateShader",
	CmdDeleteShader:        "DeleteShader",
	CmdCreateRenderTexture: "CreateRenderTexture",
	CmdDeleteRenderTexture: "DeleteRenderTexture",
	CmdCreateMesh:          "CreateMesh",
	CmdUpdateVertexBuffer:  "UpdateVertexBuffer",
	CmdUpdateIndexBuffer:   "UpdateIndexBuffer",
	CmdDeleteMesh:          "DeleteMesh",
	CmdCreateTexture:       "CreateTexture",
	CmdUpdateTexture:       "UpdateTexture",
	CmdDeleteTexture:       "DeleteTexture",
	CmdSetScissor:          "SetScissor",
	CmdDraw:                "Draw",
}

func (t CommandType) String() string {
	if int(t) < len(commandTypeNames) {
		return commandTypeNames[t]
	}
	return fmt.Sprintf("CommandType(%d)", t)
}

// Command is a recorded operation replayed against the device during
// frame dispatch. Commands are value types; bulk payloads live in the
// frame's arena and are referenced by Span.
type Command interface {
	Type() CommandType
}

// Span references a byte range inside a frame's arena.
type Span struct {
	Offset uint32
	Len    uint32
}

// Empty reports whether the span references no bytes.
func (s Span) Empty() bool { return s.Len == 0 }

// CreateSurfaceCmd creates the device-side surface for a handle.
type CreateSurfaceCmd struct {
	Handle SurfaceHandle
	Params SurfaceParams
}

// DeleteSurfaceCmd releases device resources for a surface.
type DeleteSurfaceCmd struct {
	Handle SurfaceHandle
}

// CreateShaderCmd compiles and links a shader program.
type CreateShaderCmd struct {
	Handle ShaderHandle
	Params ShaderParams
}

// DeleteShaderCmd releases a shader program.
type DeleteShaderCmd struct {
	Handle ShaderHandle
}

// CreateRenderTextureCmd allocates an offscreen render target.
type CreateRenderTextureCmd struct {
	Handle RenderTextureHandle
	Params RenderTextureParams
}

// DeleteRenderTextureCmd releases a render target.
type DeleteRenderTextureCmd struct {
	Handle RenderTextureHandle
}

// CreateMeshCmd allocates vertex and index buffers. Data spans may be
// empty, leaving buffer contents undefined until updated.
type CreateMeshCmd struct {
	Handle   MeshHandle
	Params   MeshParams
	Vertices Span
	Indices  Span
}

// UpdateVertexBufferCmd uploads bytes into a mesh's vertex buffer at the
// given byte offset.
type UpdateVertexBufferCmd struct {
	Handle MeshHandle
	Offset uint32
	Data   Span
}

// UpdateIndexBufferCmd uploads bytes into a mesh's index buffer at the
// given byte offset.
type UpdateIndexBufferCmd struct {
	Handle MeshHandle
	Offset uint32
	Data   Span
}

// DeleteMeshCmd releases a mesh's buffers.
type DeleteMeshCmd struct {
	Handle MeshHandle
}

// CreateTextureCmd allocates a sampled texture. Pixels may be empty.
type CreateTextureCmd struct {
	Handle TextureHandle
	Params TextureParams
	Pixels Span
}

// UpdateTextureCmd uploads pixels into a texture subregion. The region
// is given in texels as x, y, width, height.
type UpdateTextureCmd struct {
	Handle TextureHandle
	X, Y   uint32
	W, H   uint32
	Pixels Span
}

// DeleteTextureCmd releases a texture.
type DeleteTextureCmd struct {
	Handle TextureHandle
}

// SetScissorCmd updates the scissor state for subsequent draws in the
// frame.
type SetScissorCmd struct {
	Scissor Scissor
}

// DrawCmd submits one draw call to a surface. Scissor carries the
// scissor state active at record time so the device may reorder
// non-sequenced draws without changing their clipping.
type DrawCmd struct {
	Surface SurfaceHandle
	Call    DrawCall
	Scissor Scissor
}

func (CreateSurfaceCmd) Type() CommandType       { return CmdCreateSurface }
func (DeleteSurfaceCmd) Type() CommandType       { return CmdDeleteSurface }
func (CreateShaderCmd) Type() CommandType        { return CmdCreateShader }
func (DeleteShaderCmd) Type() CommandType        { return CmdDeleteShader }
func (CreateRenderTextureCmd) Type() CommandType { return CmdCreateRenderTexture }
func (DeleteRenderTextureCmd) Type() CommandType { return CmdDeleteRenderTexture }
func (CreateMeshCmd) Type() CommandType          { return CmdCreateMesh }
func (UpdateVertexBufferCmd) Type() CommandType  { return CmdUpdateVertexBuffer }
func (UpdateIndexBufferCmd) Type() CommandType   { return CmdUpdateIndexBuffer }
func (DeleteMeshCmd) Type() CommandType          { return CmdDeleteMesh }
func (CreateTextureCmd) Type() CommandType       { return CmdCreateTexture }
func (UpdateTextureCmd) Type() CommandType       { return CmdUpdateTexture }
func (DeleteTextureCmd) Type() CommandType       { return CmdDeleteTexture }
func (SetScissorCmd) Type() CommandType          { return CmdSetScissor }
func (DrawCmd) Type() CommandType                { return CmdDraw }
