package wgpu

import (
	"encoding/binary"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameq"
	"github.com/gogpu/frameq/handle"
)

func surfaceH(idx uint32) frameq.SurfaceHandle {
	return frameq.SurfaceHandle(handle.Handle{Index: idx, Generation: 1})
}

func shaderH(idx uint32) frameq.ShaderHandle {
	return frameq.ShaderHandle(handle.Handle{Index: idx, Generation: 1})
}

func meshH(idx uint32) frameq.MeshHandle {
	return frameq.MeshHandle(handle.Handle{Index: idx, Generation: 1})
}

func textureH(idx uint32) frameq.TextureHandle {
	return frameq.TextureHandle(handle.Handle{Index: idx, Generation: 1})
}

func draw(shader, mesh uint32) frameq.DrawCmd {
	return frameq.DrawCmd{Call: frameq.DrawCall{Shader: shaderH(shader), Mesh: meshH(mesh)}}
}

func TestDispatchMissingTextureFailsFrameNotDevice(t *testing.T) {
	d := &Device{state: frameq.DeviceActive, res: newResources(nil, nil)}
	d.res.surfaces[surfaceH(1)] = &surfaceEntry{seq: 1}
	d.res.shaders[shaderH(1)] = &shaderEntry{}
	d.res.meshes[meshH(1)] = &meshEntry{}

	// A draw may legally reference a texture handle whose async load
	// has not resolved yet; the device must reject the frame without
	// going lost.
	f := frameq.NewFrame(64)
	f.Push(frameq.DrawCmd{
		Surface: surfaceH(1),
		Call: frameq.DrawCall{
			Shader:   shaderH(1),
			Mesh:     meshH(1),
			Uniforms: []frameq.UniformValue{frameq.Texture("u_albedo", textureH(9))},
		},
	})

	err := d.Dispatch(f, image.Pt(64, 64))
	if !errors.Is(err, frameq.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, frameq.ErrContextLost) {
		t.Error("missing texture reported as context loss")
	}
	if d.state != frameq.DeviceActive {
		t.Errorf("state = %v, want Active", d.state)
	}

	// The next frame still dispatches.
	f.Clear()
	if err := d.Dispatch(f, image.Pt(64, 64)); err != nil {
		t.Errorf("dispatch after bad frame: %v", err)
	}
}

func TestCheckDrawValidatesShaderAndMesh(t *testing.T) {
	res := newResources(nil, nil)
	res.shaders[shaderH(1)] = &shaderEntry{}
	res.meshes[meshH(1)] = &meshEntry{}
	res.textures[textureH(1)] = &textureEntry{}

	cases := []struct {
		name string
		call frameq.DrawCall
		ok   bool
	}{
		{"all known", frameq.DrawCall{Shader: shaderH(1), Mesh: meshH(1)}, true},
		{"unknown shader", frameq.DrawCall{Shader: shaderH(9), Mesh: meshH(1)}, false},
		{"unknown mesh", frameq.DrawCall{Shader: shaderH(1), Mesh: meshH(9)}, false},
		{"known texture", frameq.DrawCall{
			Shader:   shaderH(1),
			Mesh:     meshH(1),
			Uniforms: []frameq.UniformValue{frameq.Texture("u_t", textureH(1))},
		}, true},
		{"unknown texture", frameq.DrawCall{
			Shader:   shaderH(1),
			Mesh:     meshH(1),
			Uniforms: []frameq.UniformValue{frameq.Texture("u_t", textureH(9))},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := res.checkDraw(&tc.call)
			if tc.ok && err != nil {
				t.Fatalf("checkDraw: %v", err)
			}
			if !tc.ok && !errors.Is(err, frameq.ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSortPassesRanksByOrderThenSeq(t *testing.T) {
	mk := func(order, seq uint64) *surfacePass {
		return &surfacePass{surface: &surfaceEntry{
			params: frameq.SurfaceParams{Order: order, Sequence: true},
			seq:    seq,
		}}
	}
	a := mk(2, 1)
	b := mk(1, 3)
	c := mk(1, 2)

	passes := []*surfacePass{a, b, c}
	sortPasses(passes)

	want := []*surfacePass{c, b, a}
	for i := range want {
		if passes[i] != want[i] {
			t.Fatalf("passes[%d] = order %d seq %d, want order %d seq %d",
				i, passes[i].surface.params.Order, passes[i].surface.seq,
				want[i].surface.params.Order, want[i].surface.seq)
		}
	}
}

func TestSortPassesKeepsSequencedDrawOrder(t *testing.T) {
	pass := &surfacePass{
		surface: &surfaceEntry{params: frameq.SurfaceParams{Sequence: true}},
		draws:   []frameq.DrawCmd{draw(5, 1), draw(1, 1), draw(3, 1)},
	}
	sortPasses([]*surfacePass{pass})

	wantShaders := []uint32{5, 1, 3}
	for i, w := range wantShaders {
		if got := pass.draws[i].Call.Shader.Index; got != w {
			t.Fatalf("draw %d shader = %d, want %d", i, got, w)
		}
	}
}

func TestSortDrawsGroupsByShaderThenMesh(t *testing.T) {
	draws := []frameq.DrawCmd{
		draw(2, 9),
		draw(1, 4),
		draw(2, 3),
		draw(1, 4),
	}
	sortDraws(draws)

	want := []struct{ shader, mesh uint32 }{
		{1, 4}, {1, 4}, {2, 3}, {2, 9},
	}
	for i, w := range want {
		got := draws[i].Call
		if got.Shader.Index != w.shader || got.Mesh.Index != w.mesh {
			t.Fatalf("draws[%d] = shader %d mesh %d, want shader %d mesh %d",
				i, got.Shader.Index, got.Mesh.Index, w.shader, w.mesh)
		}
	}
}

func TestPackUniformsLayout(t *testing.T) {
	shader := frameq.ShaderParams{
		Uniforms: []string{"u_scale", "u_mvp", "u_tint", "u_albedo"},
	}
	texture := frameq.TextureHandle(handle.Handle{Index: 7, Generation: 2})

	mat := [16]float32{}
	for i := range mat {
		mat[i] = float32(i)
	}
	block, textures := packUniforms(&shader, []frameq.UniformValue{
		frameq.Texture("u_albedo", texture),
		frameq.Mat4("u_mvp", mat),
		frameq.Float("u_scale", 2.5),
		frameq.Vec4("u_tint", [4]float32{1, 0, 0, 1}),
	})

	// Slots follow declaration order: float (16) + mat4 (64) + vec4 (16).
	if len(block) != 96 {
		t.Fatalf("block size = %d, want 96", len(block))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(block[0:])); got != 2.5 {
		t.Errorf("u_scale = %v, want 2.5", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(block[16+4*5:])); got != 5 {
		t.Errorf("u_mvp[5] = %v, want 5", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(block[80+12:])); got != 1 {
		t.Errorf("u_tint.a = %v, want 1", got)
	}

	if len(textures) != 1 || textures[0] != texture {
		t.Fatalf("textures = %v, want [%v]", textures, texture)
	}
}

func TestPackUniformsUnboundSlotsZeroed(t *testing.T) {
	shader := frameq.ShaderParams{Uniforms: []string{"u_a", "u_b"}}
	block, textures := packUniforms(&shader, []frameq.UniformValue{
		frameq.Float("u_b", 1),
	})
	if len(textures) != 0 {
		t.Fatalf("textures = %v, want none", textures)
	}
	if len(block) != 32 {
		t.Fatalf("block size = %d, want 32", len(block))
	}
	for i := 0; i < 16; i++ {
		if block[i] != 0 {
			t.Fatalf("unbound slot byte %d = %d, want 0", i, block[i])
		}
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(block[16:])); got != 1 {
		t.Errorf("u_b = %v, want 1", got)
	}
}

func TestPackUniformsEmptyBlockStillBindable(t *testing.T) {
	shader := frameq.ShaderParams{Uniforms: []string{"u_tex"}}
	tex := frameq.TextureHandle(handle.Handle{Index: 1, Generation: 1})
	block, textures := packUniforms(&shader, []frameq.UniformValue{
		frameq.Texture("u_tex", tex),
	})
	if len(block) == 0 {
		t.Fatal("block is empty, want a bindable minimum")
	}
	if len(textures) != 1 {
		t.Fatalf("textures = %v, want one entry", textures)
	}
}

func TestVertexLayout(t *testing.T) {
	tests := []struct {
		stride      uint32
		wantFormats []gputypes.VertexFormat
	}{
		{16, []gputypes.VertexFormat{gputypes.VertexFormatFloat32x4}},
		{8, []gputypes.VertexFormat{gputypes.VertexFormatFloat32x2}},
		{20, []gputypes.VertexFormat{gputypes.VertexFormatFloat32x4, gputypes.VertexFormatFloat32}},
		{44, []gputypes.VertexFormat{
			gputypes.VertexFormatFloat32x4,
			gputypes.VertexFormatFloat32x4,
			gputypes.VertexFormatFloat32x3,
		}},
	}
	for _, tt := range tests {
		layouts := vertexLayout(tt.stride)
		if len(layouts) != 1 {
			t.Fatalf("stride %d: %d buffer layouts, want 1", tt.stride, len(layouts))
		}
		l := layouts[0]
		if l.ArrayStride != uint64(tt.stride) {
			t.Errorf("stride %d: ArrayStride = %d", tt.stride, l.ArrayStride)
		}
		if len(l.Attributes) != len(tt.wantFormats) {
			t.Fatalf("stride %d: %d attributes, want %d", tt.stride, len(l.Attributes), len(tt.wantFormats))
		}
		for i, want := range tt.wantFormats {
			a := l.Attributes[i]
			if a.Format != want {
				t.Errorf("stride %d attr %d: format = %v, want %v", tt.stride, i, a.Format, want)
			}
			if a.ShaderLocation != uint32(i) {
				t.Errorf("stride %d attr %d: location = %d", tt.stride, i, a.ShaderLocation)
			}
		}
	}
}

func TestFormatMappings(t *testing.T) {
	if got := sampledFormat(frameq.TextureFormatR8); got != gputypes.TextureFormatR8Unorm {
		t.Errorf("sampledFormat(R8) = %v", got)
	}
	if got := attachmentFormat(frameq.RenderTextureFormatDepth32Float); got != gputypes.TextureFormatDepth32Float {
		t.Errorf("attachmentFormat(Depth32Float) = %v", got)
	}
	if got := halIndexFormat(frameq.IndexFormatU32); got != gputypes.IndexFormatUint32 {
		t.Errorf("halIndexFormat(U32) = %v", got)
	}
	if got := halCullMode(frameq.CullBack); got != gputypes.CullModeBack {
		t.Errorf("halCullMode(CullBack) = %v", got)
	}
}

func TestPipelineKeyDistinguishesVariants(t *testing.T) {
	base := pipelineKey{shader: shaderH(1), color: gputypes.TextureFormatRGBA8Unorm}
	withDepth := base
	withDepth.depth = gputypes.TextureFormatDepth24PlusStencil8
	withTex := base
	withTex.textures = 1

	if base == withDepth || base == withTex || withDepth == withTex {
		t.Fatal("pipeline key variants must be distinct map keys")
	}
}
