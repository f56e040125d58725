package asset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"

	"github.com/gogpu/frameq"
)

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func meshBytes(t *testing.T) []byte {
	t.Helper()
	params, data := testMesh(t)
	var buf bytes.Buffer
	if err := EncodeMesh(&buf, params, data); err != nil {
		t.Fatalf("encode mesh: %v", err)
	}
	return buf.Bytes()
}

func TestTextureSourceDecodesPNG(t *testing.T) {
	lib := NewLibrary(fstest.MapFS{
		"textures/red.png": {Data: pngBytes(t, 2, 3, color.NRGBA{R: 255, A: 255})},
	})

	params, data, err := lib.Textures().Load(context.Background(), "textures/red.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if params.Width != 2 || params.Height != 3 {
		t.Errorf("size = %dx%d, want 2x3", params.Width, params.Height)
	}
	if params.Format != frameq.TextureFormatRGBA8 {
		t.Errorf("format = %v, want RGBA8", params.Format)
	}
	if len(data.Pixels) != params.ByteSize() {
		t.Fatalf("pixel bytes = %d, want %d", len(data.Pixels), params.ByteSize())
	}
	if data.Pixels[0] != 255 || data.Pixels[1] != 0 || data.Pixels[3] != 255 {
		t.Errorf("first pixel = %v, want opaque red", data.Pixels[:4])
	}
}

func TestTextureSourceResolvesManifestID(t *testing.T) {
	id := uuid.MustParse("2f0c38f5-afcc-4aab-85d1-2f7e8e6b1d22")
	lib := NewLibrary(fstest.MapFS{
		"textures/tile.png": {Data: pngBytes(t, 1, 1, color.NRGBA{G: 128, A: 255})},
	})
	lib.Register(id, "textures/tile.png")

	params, _, err := lib.Textures().Load(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if params.Width != 1 || params.Height != 1 {
		t.Errorf("size = %dx%d, want 1x1", params.Width, params.Height)
	}
}

func TestTextureSourceUnknownID(t *testing.T) {
	lib := NewLibrary(fstest.MapFS{})
	_, _, err := lib.Textures().Load(context.Background(), uuid.NewString())
	if !errors.Is(err, frameq.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTextureSourceRejectsNonImage(t *testing.T) {
	lib := NewLibrary(fstest.MapFS{
		"meshes/quad.fqm": {Data: meshBytes(t)},
	})
	if _, _, err := lib.Textures().Load(context.Background(), "meshes/quad.fqm"); err == nil {
		t.Fatal("Load accepted a mesh container as an image")
	}
}

func TestTextureSourceCanceledContext(t *testing.T) {
	lib := NewLibrary(fstest.MapFS{
		"a.png": {Data: pngBytes(t, 1, 1, color.NRGBA{A: 255})},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := lib.Textures().Load(ctx, "a.png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMeshSourceLoads(t *testing.T) {
	lib := NewLibrary(fstest.MapFS{
		"meshes/quad.fqm": {Data: meshBytes(t)},
	})

	params, data, err := lib.Meshes().Load(context.Background(), "meshes/quad.fqm")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if params.VertexCount != 4 || params.IndexCount != 6 {
		t.Errorf("params = %+v, want 4 vertices / 6 indices", params)
	}
	if len(data.Vertices) != params.VertexBytes() {
		t.Errorf("vertex bytes = %d, want %d", len(data.Vertices), params.VertexBytes())
	}
}

func TestMeshSourceCachesDecodedPayload(t *testing.T) {
	fsys := fstest.MapFS{
		"meshes/quad.fqm": {Data: meshBytes(t)},
	}
	lib := NewLibrary(fsys)

	if _, _, err := lib.Meshes().Load(context.Background(), "meshes/quad.fqm"); err != nil {
		t.Fatalf("first Load: %v", err)
	}

	// Remove the backing file; the second load must come from cache.
	delete(fsys, "meshes/quad.fqm")
	params, _, err := lib.Meshes().Load(context.Background(), "meshes/quad.fqm")
	if err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if params.VertexCount != 4 {
		t.Errorf("cached params = %+v", params)
	}
}

func TestMeshSourceMissingFile(t *testing.T) {
	lib := NewLibrary(fstest.MapFS{})
	if _, _, err := lib.Meshes().Load(context.Background(), "meshes/missing.fqm"); err == nil {
		t.Fatal("Load of missing file succeeded")
	}
}
