package frameq

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/frameq/registry"
)

func newTestVideo() (*VideoSystem, *DoubleBuf) {
	buf := NewDoubleBuf(256)
	return NewVideoSystem(buf, nil, nil), buf
}

// drain flips the buffer and returns the commands of the stable back
// frame, the way a tick's dispatch would see them.
func drain(buf *DoubleBuf) []Command {
	buf.Swap()
	back := buf.WriteBack()
	cmds := append([]Command(nil), back.Commands()...)
	back.Clear()
	return cmds
}

func testMeshParams() MeshParams {
	return MeshParams{
		VertexCount:  10,
		IndexCount:   10,
		VertexStride: 4,
		IndexFormat:  IndexFormatU16,
		Hint:         BufferHintDynamic,
	}
}

func TestVideoSystem_CreateGetDelete(t *testing.T) {
	vs, _ := newTestVideo()

	h, err := vs.CreateSurface(DefaultSurfaceParams())
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	if _, err := vs.Surface(h); err != nil {
		t.Fatalf("Surface: %v", err)
	}

	if err := vs.DeleteSurface(h); err != nil {
		t.Fatalf("DeleteSurface: %v", err)
	}
	if _, err := vs.Surface(h); !errors.Is(err, ErrNotFound) {
		t.Errorf("Surface after delete err = %v, want ErrNotFound", err)
	}
}

func TestVideoSystem_DoubleDeleteEnqueuesOnce(t *testing.T) {
	vs, buf := newTestVideo()

	h, err := vs.CreateShader(testShaderParams())
	if err != nil {
		t.Fatalf("CreateShader: %v", err)
	}
	if err := vs.DeleteShader(h); err != nil {
		t.Fatalf("DeleteShader: %v", err)
	}
	if err := vs.DeleteShader(h); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteShader err = %v, want ErrNotFound", err)
	}

	deletes := 0
	for _, cmd := range drain(buf) {
		if cmd.Type() == CmdDeleteShader {
			deletes++
		}
	}
	if deletes != 1 {
		t.Errorf("back frame has %d delete commands, want 1", deletes)
	}
}

func TestVideoSystem_CommandsAreFIFO(t *testing.T) {
	vs, buf := newTestVideo()

	sh, err := vs.CreateShader(testShaderParams())
	if err != nil {
		t.Fatalf("CreateShader: %v", err)
	}
	mh, err := vs.CreateMesh(testMeshParams(), MeshData{})
	if err != nil {
		t.Fatalf("CreateMesh: %v", err)
	}
	surf, err := vs.CreateSurface(DefaultSurfaceParams())
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	if err := vs.Submit(surf, DrawCall{Shader: sh, Mesh: mh}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := vs.DeleteMesh(mh); err != nil {
		t.Fatalf("DeleteMesh: %v", err)
	}

	want := []CommandType{
		CmdCreateShader,
		CmdCreateMesh,
		CmdCreateSurface,
		CmdDraw,
		CmdDeleteMesh,
	}
	cmds := drain(buf)
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, cmd := range cmds {
		if cmd.Type() != want[i] {
			t.Errorf("command %d = %s, want %s", i, cmd.Type(), want[i])
		}
	}
}

func TestVideoSystem_SequencedSurfaceScissorOrder(t *testing.T) {
	vs, buf := newTestVideo()

	params := DefaultSurfaceParams()
	params.Sequence = true
	surf, err := vs.CreateSurface(params)
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	sh, _ := vs.CreateShader(testShaderParams())
	mh, _ := vs.CreateMesh(testMeshParams(), MeshData{})

	scissorA := Scissor{Enabled: true, Rect: image.Rect(0, 0, 10, 10)}
	scissorB := Scissor{Enabled: true, Rect: image.Rect(5, 5, 20, 20)}
	if err := vs.SubmitScissor(surf, scissorA, DrawCall{Shader: sh, Mesh: mh}); err != nil {
		t.Fatalf("SubmitScissor A: %v", err)
	}
	if err := vs.SubmitScissor(surf, scissorB, DrawCall{Shader: sh, Mesh: mh}); err != nil {
		t.Fatalf("SubmitScissor B: %v", err)
	}

	var draws []DrawCmd
	for _, cmd := range drain(buf) {
		if d, ok := cmd.(DrawCmd); ok {
			draws = append(draws, d)
		}
	}
	if len(draws) != 2 {
		t.Fatalf("got %d draws, want 2", len(draws))
	}
	if draws[0].Scissor != scissorA || draws[1].Scissor != scissorB {
		t.Errorf("draw scissors = %+v, %+v; want A then B", draws[0].Scissor, draws[1].Scissor)
	}
}

func TestVideoSystem_SubmitValidates(t *testing.T) {
	vs, _ := newTestVideo()

	surf, _ := vs.CreateSurface(DefaultSurfaceParams())
	sh, _ := vs.CreateShader(testShaderParams())
	mh, _ := vs.CreateMesh(testMeshParams(), MeshData{})

	if err := vs.Submit(SurfaceHandle{Index: 99, Generation: 1}, DrawCall{Shader: sh, Mesh: mh}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown surface err = %v, want ErrNotFound", err)
	}
	if err := vs.Submit(surf, DrawCall{Shader: ShaderHandle{Index: 99, Generation: 1}, Mesh: mh}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown shader err = %v, want ErrNotFound", err)
	}
	call := DrawCall{Shader: sh, Mesh: mh, Uniforms: []UniformValue{Float("u_bogus", 1)}}
	if err := vs.Submit(surf, call); !errors.Is(err, ErrValidation) {
		t.Errorf("undeclared uniform err = %v, want ErrValidation", err)
	}
}

func TestVideoSystem_UpdateVertexBufferRoundTrip(t *testing.T) {
	vs, buf := newTestVideo()

	mh, err := vs.CreateMesh(testMeshParams(), MeshData{})
	if err != nil {
		t.Fatalf("CreateMesh: %v", err)
	}

	data := []byte{10, 20, 30, 40}
	if err := vs.UpdateVertexBuffer(mh, 8, data); err != nil {
		t.Fatalf("UpdateVertexBuffer: %v", err)
	}

	buf.Swap()
	back := buf.WriteBack()
	var upd *UpdateVertexBufferCmd
	for _, cmd := range back.Commands() {
		if u, ok := cmd.(UpdateVertexBufferCmd); ok {
			upd = &u
		}
	}
	if upd == nil {
		t.Fatal("no UpdateVertexBuffer command recorded")
	}
	if upd.Offset != 8 {
		t.Errorf("offset = %d, want 8", upd.Offset)
	}
	if got := back.Bytes(upd.Data); !bytes.Equal(got, data) {
		t.Errorf("payload = %v, want %v", got, data)
	}
}

func TestVideoSystem_UpdateVertexBufferBounds(t *testing.T) {
	vs, _ := newTestVideo()

	mh, _ := vs.CreateMesh(testMeshParams(), MeshData{})
	// Capacity is 10 vertices of stride 4.
	if err := vs.UpdateVertexBuffer(mh, 38, []byte{1, 2, 3, 4}); !errors.Is(err, ErrValidation) {
		t.Errorf("out-of-bounds write err = %v, want ErrValidation", err)
	}

	static := testMeshParams()
	static.Hint = BufferHintStatic
	sh, _ := vs.CreateMesh(static, MeshData{})
	if err := vs.UpdateVertexBuffer(sh, 0, []byte{1}); !errors.Is(err, ErrValidation) {
		t.Errorf("static mesh update err = %v, want ErrValidation", err)
	}
}

func TestVideoSystem_UpdateMeshGrowsOnOverflow(t *testing.T) {
	vs, buf := newTestVideo()

	mh, err := vs.CreateMesh(testMeshParams(), MeshData{})
	if err != nil {
		t.Fatalf("CreateMesh: %v", err)
	}
	drain(buf)

	// 8 vertices fit in the capacity of 10: plain update commands.
	if err := vs.UpdateMesh(mh, MeshData{Vertices: make([]byte, 8*4)}); err != nil {
		t.Fatalf("UpdateMesh(8): %v", err)
	}
	for _, cmd := range drain(buf) {
		if cmd.Type() == CmdDeleteMesh || cmd.Type() == CmdCreateMesh {
			t.Fatalf("in-capacity update recorded %s", cmd.Type())
		}
	}

	// 12 vertices overflow: the mesh is recreated under the same
	// handle with next-power-of-two capacity.
	if err := vs.UpdateMesh(mh, MeshData{Vertices: make([]byte, 12*4)}); err != nil {
		t.Fatalf("UpdateMesh(12): %v", err)
	}
	cmds := drain(buf)
	if len(cmds) != 2 || cmds[0].Type() != CmdDeleteMesh || cmds[1].Type() != CmdCreateMesh {
		t.Fatalf("overflow update recorded %v, want delete then create", cmds)
	}
	created := cmds[1].(CreateMeshCmd)
	if created.Handle != mh {
		t.Errorf("recreated mesh handle = %v, want original %v", created.Handle, mh)
	}
	if created.Params.VertexCount != 16 {
		t.Errorf("grown capacity = %d, want 16", created.Params.VertexCount)
	}

	params, err := vs.Mesh(mh)
	if err != nil {
		t.Fatalf("Mesh after grow: %v", err)
	}
	if params.VertexCount != 16 {
		t.Errorf("pool capacity = %d, want 16", params.VertexCount)
	}
}

func TestVideoSystem_CreateTextureValidatesPixels(t *testing.T) {
	vs, _ := newTestVideo()

	params := TextureParams{Width: 2, Height: 2, Format: TextureFormatRGBA8}
	if _, err := vs.CreateTexture(params, TextureData{Pixels: make([]byte, 5)}); !errors.Is(err, ErrValidation) {
		t.Errorf("short pixels err = %v, want ErrValidation", err)
	}
	if _, err := vs.CreateTexture(params, TextureData{Pixels: make([]byte, 16)}); err != nil {
		t.Errorf("exact pixels rejected: %v", err)
	}
	if _, err := vs.CreateTexture(params, TextureData{}); err != nil {
		t.Errorf("empty pixels rejected: %v", err)
	}
}

func TestVideoSystem_UpdateTextureRegion(t *testing.T) {
	vs, _ := newTestVideo()

	h, err := vs.CreateTexture(TextureParams{Width: 4, Height: 4, Format: TextureFormatR8}, TextureData{})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	if err := vs.UpdateTexture(h, image.Rect(1, 1, 3, 3), make([]byte, 4)); err != nil {
		t.Fatalf("UpdateTexture: %v", err)
	}
	if err := vs.UpdateTexture(h, image.Rect(2, 2, 6, 6), make([]byte, 16)); !errors.Is(err, ErrValidation) {
		t.Errorf("out-of-bounds region err = %v, want ErrValidation", err)
	}
	if err := vs.UpdateTexture(h, image.Rect(1, 1, 3, 3), make([]byte, 3)); !errors.Is(err, ErrValidation) {
		t.Errorf("short region pixels err = %v, want ErrValidation", err)
	}
}

func TestVideoSystem_AttachmentValidation(t *testing.T) {
	vs, _ := newTestVideo()

	color, err := vs.CreateRenderTexture(RenderTextureParams{Width: 8, Height: 8, Format: RenderTextureFormatRGBA8})
	if err != nil {
		t.Fatalf("CreateRenderTexture: %v", err)
	}
	depth, err := vs.CreateRenderTexture(RenderTextureParams{Width: 8, Height: 8, Format: RenderTextureFormatDepth24Stencil8})
	if err != nil {
		t.Fatalf("CreateRenderTexture: %v", err)
	}

	good := DefaultSurfaceParams()
	if err := good.SetAttachments([]RenderTextureHandle{color}, depth); err != nil {
		t.Fatalf("SetAttachments: %v", err)
	}
	if _, err := vs.CreateSurface(good); err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}

	// Depth format in a color slot is rejected.
	swapped := DefaultSurfaceParams()
	if err := swapped.SetAttachments([]RenderTextureHandle{depth}, RenderTextureHandle{}); err != nil {
		t.Fatalf("SetAttachments: %v", err)
	}
	if _, err := vs.CreateSurface(swapped); !errors.Is(err, ErrValidation) {
		t.Errorf("depth-as-color err = %v, want ErrValidation", err)
	}

	// A stale attachment is rejected as not found.
	if err := vs.DeleteRenderTexture(color); err != nil {
		t.Fatalf("DeleteRenderTexture: %v", err)
	}
	if _, err := vs.CreateSurface(good); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale attachment err = %v, want ErrNotFound", err)
	}
}

// countingSource blocks every load on gate and counts invocations.
type countingSource struct {
	gate  chan struct{}
	loads atomic.Int32
	fail  bool
}

func (s *countingSource) Load(_ context.Context, key string) (TextureParams, TextureData, error) {
	s.loads.Add(1)
	<-s.gate
	if s.fail {
		return TextureParams{}, TextureData{}, errors.New("no such asset: " + key)
	}
	params := TextureParams{Width: 1, Height: 1, Format: TextureFormatRGBA8}
	return params, TextureData{Pixels: []byte{1, 2, 3, 4}}, nil
}

func waitForState(t *testing.T, vs *VideoSystem, h TextureHandle, want registry.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := vs.TextureState(h)
		if err != nil {
			t.Fatalf("TextureState: %v", err)
		}
		if state == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("texture never reached %s", want)
}

func TestVideoSystem_TextureLoadDedup(t *testing.T) {
	src := &countingSource{gate: make(chan struct{})}
	buf := NewDoubleBuf(256)
	vs := NewVideoSystem(buf, nil, src)

	const callers = 4
	handles := make([]TextureHandle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = vs.CreateTextureFrom(context.Background(), "textures/brick.png")
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got handle %v, others got %v", i, handles[i], handles[0])
		}
	}

	close(src.gate)
	waitForState(t, vs, handles[0], registry.Ready)

	if got := src.loads.Load(); got != 1 {
		t.Errorf("source fetched %d times, want 1", got)
	}

	// The resolved load recorded exactly one create command.
	creates := 0
	for _, cmd := range drain(buf) {
		if cmd.Type() == CmdCreateTexture {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("recorded %d create commands, want 1", creates)
	}
}

func TestVideoSystem_TextureLoadFailure(t *testing.T) {
	src := &countingSource{gate: make(chan struct{}), fail: true}
	buf := NewDoubleBuf(256)
	vs := NewVideoSystem(buf, nil, src)

	h := vs.CreateTextureFrom(context.Background(), "textures/missing.png")
	close(src.gate)
	waitForState(t, vs, h, registry.Failed)

	if _, err := vs.Texture(h); !errors.Is(err, ErrLoadFailed) {
		t.Errorf("Texture err = %v, want ErrLoadFailed", err)
	}

	// The key was released: a fresh request starts a new load with a
	// new handle.
	src.gate = make(chan struct{})
	h2 := vs.CreateTextureFrom(context.Background(), "textures/missing.png")
	if h2 == h {
		t.Error("retry reused the failed handle")
	}
	close(src.gate)
	waitForState(t, vs, h2, registry.Failed)
	if got := src.loads.Load(); got != 2 {
		t.Errorf("source fetched %d times, want 2", got)
	}
}

func TestVideoSystem_NoSourceConfigured(t *testing.T) {
	vs, _ := newTestVideo()

	h := vs.CreateTextureFrom(context.Background(), "anything")
	waitForState(t, vs, h, registry.Failed)
	if _, err := vs.Texture(h); !errors.Is(err, ErrLoadFailed) {
		t.Errorf("Texture err = %v, want ErrLoadFailed", err)
	}
}
