// Command frameqdemo drives the deferred video pipeline against the
// headless backend: it records a textured-quad frame per tick from a
// producer goroutine, dispatches on the consumer side and prints what
// the device executed.
package main

import (
	"encoding/binary"
	"flag"
	"image"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/frameq"
	"github.com/gogpu/frameq/backend"
	_ "github.com/gogpu/frameq/backend/headless"
)

const quadShaderVS = `
struct Uniforms { tint: vec4<f32> };
@group(0) @binding(0) var<uniform> u: Uniforms;

@vertex
fn vs_main(@location(0) pos: vec4<f32>) -> @builtin(position) vec4<f32> {
	return pos;
}
`

const quadShaderFS = `
struct Uniforms { tint: vec4<f32> };
@group(0) @binding(0) var<uniform> u: Uniforms;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
	return u.tint;
}
`

type demoWindow struct {
	dims image.Point
}

func (w *demoWindow) Dimensions() image.Point   { return w.dims }
func (w *demoWindow) DevicePixelRatio() float32 { return 1 }
func (w *demoWindow) Resize(dims image.Point)   { w.dims = dims }

func main() {
	var (
		width  = flag.Int("width", 800, "framebuffer width")
		height = flag.Int("height", 600, "framebuffer height")
		ticks  = flag.Int("ticks", 3, "frames to run")
	)
	flag.Parse()

	frameq.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	device, err := backend.OpenDefault()
	if err != nil {
		log.Fatalf("no backend available: %v", err)
	}

	window := &demoWindow{dims: image.Pt(*width, *height)}
	vs, err := frameq.New(frameq.Config{Window: window, Device: device})
	if err != nil {
		log.Fatalf("pipeline init: %v", err)
	}
	defer vs.Close()

	surface, err := vs.CreateSurface(frameq.DefaultSurfaceParams())
	if err != nil {
		log.Fatalf("create surface: %v", err)
	}
	shader, err := vs.CreateShader(frameq.ShaderParams{
		VertexSource:   quadShaderVS,
		FragmentSource: quadShaderFS,
		Uniforms:       []string{"u_tint"},
		VertexStride:   16,
		State:          frameq.RenderState{Blend: true},
	})
	if err != nil {
		log.Fatalf("create shader: %v", err)
	}
	mesh, err := vs.CreateMesh(quadMesh())
	if err != nil {
		log.Fatalf("create mesh: %v", err)
	}

	for tick := 0; tick < *ticks; tick++ {
		vs.OnPreUpdate()

		// Producer side: one quad, tinted per tick.
		tint := [4]float32{float32(tick+1) / float32(*ticks), 0.2, 0.8, 1}
		if err := vs.Submit(surface, frameq.DrawCall{
			Shader:   shader,
			Mesh:     mesh,
			Uniforms: []frameq.UniformValue{frameq.Vec4("u_tint", tint)},
		}); err != nil {
			log.Fatalf("submit: %v", err)
		}

		// Consumer side: dispatch everything recorded this tick.
		if err := vs.OnPostUpdate(); err != nil {
			log.Fatalf("dispatch: %v", err)
		}
		stats := vs.FrameStats()
		log.Printf("tick %d: %d commands, %d arena bytes, framebuffer %v",
			tick, stats.Commands, stats.ArenaBytes, stats.Framebuffer)
	}
}

// quadMesh builds a unit quad with vec4 positions and u16 indices.
func quadMesh() (frameq.MeshParams, frameq.MeshData) {
	params := frameq.MeshParams{
		VertexCount:  4,
		IndexCount:   6,
		VertexStride: 16,
		IndexFormat:  frameq.IndexFormatU16,
		Hint:         frameq.BufferHintStatic,
	}
	positions := [][4]float32{
		{-1, -1, 0, 1},
		{1, -1, 0, 1},
		{1, 1, 0, 1},
		{-1, 1, 0, 1},
	}
	vertices := make([]byte, 0, params.VertexBytes())
	for _, p := range positions {
		for _, f := range p {
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(f))
		}
	}
	indices := make([]byte, 0, params.IndexBytes())
	for _, i := range []uint16{0, 1, 2, 2, 3, 0} {
		indices = binary.LittleEndian.AppendUint16(indices, i)
	}
	return params, frameq.MeshData{Vertices: vertices, Indices: indices}
}
