package frameq

import (
	"fmt"
	"image"
	"image/color"
)

// MaxColorAttachments is the maximum number of color attachments a
// surface's framebuffer may carry.
const MaxColorAttachments = 8

// ClearFlags selects which buffers a surface clears before its draws.
type ClearFlags uint8

const (
	// ClearColor clears the color attachments.
	ClearColor ClearFlags = 1 << iota
	// ClearDepth clears the depth buffer.
	ClearDepth
	// ClearStencil clears the stencil buffer.
	ClearStencil
)

// Has reports whether all bits in mask are set.
func (f ClearFlags) Has(mask ClearFlags) bool { return f&mask == mask }

// SurfaceParams wraps the common rendering operations applied to a
// render target: clearing, attachment selection and draw ordering. The
// render target is the window framebuffer by default; call
// SetAttachments to target render textures instead.
//
// A surface also acts as a named bucket of draw commands. Draws inside a
// surface may be sorted for state-change efficiency before submission to
// the device. Where submission order has to be preserved (for example
// when rendering GUIs), set Sequence. Sequential order defeats state
// sorting and should be avoided when possible.
type SurfaceParams struct {
	// Colors are the color attachments. Unset entries are the zero
	// handle. All-zero means the default framebuffer.
	Colors [MaxColorAttachments]RenderTextureHandle

	// DepthStencil is the optional depth/stencil attachment.
	DepthStencil RenderTextureHandle

	// ClearColorValue, ClearDepthValue and ClearStencilValue apply for
	// the buffers selected in Clear.
	ClearColorValue   color.NRGBA
	ClearDepthValue   float32
	ClearStencilValue int32

	// Clear selects which buffers are cleared before this surface's
	// draws execute.
	Clear ClearFlags

	// Order ranks this surface against other surfaces. Surfaces
	// execute in ascending order.
	Order uint64

	// Sequence forces draws in this surface to execute in submission
	// order, disabling state-sorting.
	Sequence bool
}

// DefaultSurfaceParams returns surface parameters targeting the default
// framebuffer, clearing color to opaque black and depth to 1.
func DefaultSurfaceParams() SurfaceParams {
	return SurfaceParams{
		ClearColorValue: color.NRGBA{A: 0xff},
		ClearDepthValue: 1,
		Clear:           ClearColor | ClearDepth,
	}
}

// SetAttachments sets the attachments of the internal framebuffer: a set
// of color attachments and an optional depth/stencil attachment. Pass
// the zero handle for depthStencil to omit it.
//
// If no attachment is assigned, the default framebuffer generated by the
// windowing system is used.
func (p *SurfaceParams) SetAttachments(colors []RenderTextureHandle, depthStencil RenderTextureHandle) error {
	if len(colors) > MaxColorAttachments {
		return fmt.Errorf("%w: %d color attachments exceeds the maximum of %d",
			ErrValidation, len(colors), MaxColorAttachments)
	}
	for i := range p.Colors {
		if i < len(colors) {
			p.Colors[i] = colors[i]
		} else {
			p.Colors[i] = RenderTextureHandle{}
		}
	}
	p.DepthStencil = depthStencil
	return nil
}

// ColorAttachments returns the set color attachments in slot order.
func (p *SurfaceParams) ColorAttachments() []RenderTextureHandle {
	var out []RenderTextureHandle
	for _, h := range p.Colors {
		if !h.Nil() {
			out = append(out, h)
		}
	}
	return out
}

// Scissor defines a rectangle in window coordinates. While enabled, only
// pixels inside the box can be modified by draw commands.
type Scissor struct {
	// Enabled turns the scissor test on.
	Enabled bool

	// Rect is the scissor box. Ignored when Enabled is false.
	Rect image.Rectangle
}
