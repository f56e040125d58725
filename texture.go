package frameq

import (
	"fmt"
	"image"
)

// TextureFormat represents the pixel format of a texture.
type TextureFormat uint8

const (
	// TextureFormatRGBA8 is the standard RGBA format with 8 bits per channel.
	TextureFormatRGBA8 TextureFormat = iota

	// TextureFormatBGRA8 is BGRA format, often used for surface presentation.
	TextureFormatBGRA8

	// TextureFormatR8 is single-channel 8-bit format, used for masks.
	TextureFormatR8
)

// String returns a human-readable name for the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatBGRA8:
		return "BGRA8"
	case TextureFormatR8:
		return "R8"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA8, TextureFormatBGRA8:
		return 4
	case TextureFormatR8:
		return 1
	default:
		return 4
	}
}

// FilterMode specifies how a texture is sampled.
type FilterMode uint8

const (
	// FilterLinear uses bilinear interpolation.
	FilterLinear FilterMode = iota
	// FilterNearest uses nearest-neighbor sampling.
	FilterNearest
)

// TextureParams describes a texture: an image loaded in video memory
// which can be sampled in shaders.
type TextureParams struct {
	// Width and Height are the texture dimensions in pixels.
	Width  uint32
	Height uint32

	// Format is the pixel format.
	Format TextureFormat

	// Filter is the sampling mode.
	Filter FilterMode
}

// Validate reports whether the parameters describe a creatable texture.
func (p TextureParams) Validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("%w: texture dimensions %dx%d", ErrValidation, p.Width, p.Height)
	}
	return nil
}

// ByteSize returns the size of one full mip level 0 upload.
func (p TextureParams) ByteSize() int {
	return int(p.Width) * int(p.Height) * p.Format.BytesPerPixel()
}

// TextureData carries the initial pixel payload for a data-backed
// texture creation. Pixels are tightly packed rows in Format order.
type TextureData struct {
	Pixels []byte
}

// RenderTextureFormat represents the format of a render texture.
type RenderTextureFormat uint8

const (
	// RenderTextureFormatRGBA8 is a color attachment format.
	RenderTextureFormatRGBA8 RenderTextureFormat = iota

	// RenderTextureFormatBGRA8 is a color attachment format matching
	// common presentation surfaces.
	RenderTextureFormatBGRA8

	// RenderTextureFormatDepth24Stencil8 is a combined depth/stencil
	// attachment format.
	RenderTextureFormatDepth24Stencil8

	// RenderTextureFormatDepth32Float is a depth-only attachment format.
	RenderTextureFormatDepth32Float
)

// String returns a human-readable name for the format.
func (f RenderTextureFormat) String() string {
	switch f {
	case RenderTextureFormatRGBA8:
		return "RGBA8"
	case RenderTextureFormatBGRA8:
		return "BGRA8"
	case RenderTextureFormatDepth24Stencil8:
		return "Depth24Stencil8"
	case RenderTextureFormatDepth32Float:
		return "Depth32Float"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// IsColor reports whether the format is usable as a color attachment.
func (f RenderTextureFormat) IsColor() bool {
	return f == RenderTextureFormatRGBA8 || f == RenderTextureFormatBGRA8
}

// RenderTextureParams describes a texture that can be attached to a
// surface's framebuffer.
type RenderTextureParams struct {
	Width  uint32
	Height uint32
	Format RenderTextureFormat
}

// Validate reports whether the parameters describe a creatable render
// texture.
func (p RenderTextureParams) Validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("%w: render texture dimensions %dx%d", ErrValidation, p.Width, p.Height)
	}
	return nil
}

// Dimensions returns the render texture size as a point.
func (p RenderTextureParams) Dimensions() image.Point {
	return image.Point{X: int(p.Width), Y: int(p.Height)}
}
