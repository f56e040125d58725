// Package asset loads mesh and texture content for the video pipeline's
// resource registries. A Library resolves content keys against an fs.FS,
// optionally through a UUID manifest, sniffs file types and decodes
// payloads into the parameter/data pairs the registries expect.
package asset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io/fs"
	"sync"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/gogpu/frameq/cache"

	// Register the stdlib and extended image decoders image.Decode
	// dispatches to.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/frameq"
)

// Library resolves content keys to files. Keys that parse as UUIDs go
// through the manifest; anything else is used as a path directly, so
// ad-hoc keys work without registration.
type Library struct {
	fsys fs.FS

	mu       sync.RWMutex
	manifest map[uuid.UUID]string

	// Decoded payloads are memoized per path so a delete-then-recreate
	// of the same content skips the decode.
	meshCache    *cache.Cache[string, meshAsset]
	textureCache *cache.Cache[string, textureAsset]
}

type meshAsset struct {
	params frameq.MeshParams
	data   frameq.MeshData
}

type textureAsset struct {
	params frameq.TextureParams
	data   frameq.TextureData
}

// NewLibrary returns a library over fsys with an empty manifest.
func NewLibrary(fsys fs.FS) *Library {
	return &Library{
		fsys:         fsys,
		manifest:     make(map[uuid.UUID]string),
		meshCache:    cache.New[string, meshAsset](64),
		textureCache: cache.New[string, textureAsset](64),
	}
}

// Register maps a content ID to a path inside the library's filesystem.
func (l *Library) Register(id uuid.UUID, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manifest[id] = path
}

// Resolve maps a content key to the path it loads from.
func (l *Library) Resolve(key string) (string, error) {
	if id, err := uuid.Parse(key); err == nil {
		l.mu.RLock()
		path, ok := l.manifest[id]
		l.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("asset: id %s not in manifest: %w", id, frameq.ErrNotFound)
		}
		return path, nil
	}
	return key, nil
}

func (l *Library) read(path string) ([]byte, error) {
	data, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("asset: read %s: %w", path, err)
	}
	return data, nil
}

// Meshes returns a mesh source backed by the library. Files must be
// mesh containers as written by EncodeMesh.
func (l *Library) Meshes() frameq.MeshSource {
	return meshSource{lib: l}
}

// Textures returns a texture source backed by the library. Files may be
// PNG, JPEG, GIF, BMP, TIFF or WebP; pixels are converted to RGBA8.
func (l *Library) Textures() frameq.TextureSource {
	return textureSource{lib: l}
}

type meshSource struct {
	lib *Library
}

func (s meshSource) Load(ctx context.Context, key string) (frameq.MeshParams, frameq.MeshData, error) {
	if err := ctx.Err(); err != nil {
		return frameq.MeshParams{}, frameq.MeshData{}, err
	}
	path, err := s.lib.Resolve(key)
	if err != nil {
		return frameq.MeshParams{}, frameq.MeshData{}, err
	}
	if hit, ok := s.lib.meshCache.Get(path); ok {
		return hit.params, hit.data, nil
	}

	raw, err := s.lib.read(path)
	if err != nil {
		return frameq.MeshParams{}, frameq.MeshData{}, err
	}
	params, data, err := DecodeMesh(bytes.NewReader(raw))
	if err != nil {
		return params, data, err
	}
	s.lib.meshCache.Set(path, meshAsset{params: params, data: data})
	return params, data, nil
}

type textureSource struct {
	lib *Library
}

func (s textureSource) Load(ctx context.Context, key string) (frameq.TextureParams, frameq.TextureData, error) {
	var params frameq.TextureParams
	var data frameq.TextureData

	if err := ctx.Err(); err != nil {
		return params, data, err
	}
	path, err := s.lib.Resolve(key)
	if err != nil {
		return params, data, err
	}
	if hit, ok := s.lib.textureCache.Get(path); ok {
		return hit.params, hit.data, nil
	}

	raw, err := s.lib.read(path)
	if err != nil {
		return params, data, err
	}

	// Sniff before decoding so unsupported content fails with the
	// detected type instead of a generic decode error.
	if kind, err := filetype.Match(raw); err == nil && kind != filetype.Unknown && !filetype.IsImage(raw) {
		return params, data, fmt.Errorf("asset: %s is %s, not an image", path, kind.MIME.Value)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return params, data, fmt.Errorf("asset: decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != bounds.Dx()*4 {
		converted := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(converted, converted.Bounds(), img, bounds.Min, draw.Src)
		nrgba = converted
	}

	params = frameq.TextureParams{
		Width:  uint32(bounds.Dx()), // #nosec G115 -- image bounds are non-negative
		Height: uint32(bounds.Dy()), // #nosec G115 -- image bounds are non-negative
		Format: frameq.TextureFormatRGBA8,
		Filter: frameq.FilterLinear,
	}
	data = frameq.TextureData{Pixels: nrgba.Pix}
	s.lib.textureCache.Set(path, textureAsset{params: params, data: data})
	return params, data, nil
}
