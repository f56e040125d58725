package asset

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4"

	"github.com/gogpu/frameq"
)

// Mesh container format: a 4-byte magic, a little-endian int32 header
// size, a gob-encoded meshHeader, then one lz4 frame holding the vertex
// bytes immediately followed by the index bytes. Individual blocks are
// not seekable; meshes are small enough to decode whole.

// ErrMeshFormat reports data that is not a mesh container.
var ErrMeshFormat = errors.New("asset: corrupted or not a mesh container")

var meshMagic = [4]byte{'F', 'Q', 'M', 0}

const meshVersion = 1

type meshHeader struct {
	Version      int32
	VertexCount  uint32
	IndexCount   uint32
	VertexStride uint32
	IndexFormat  uint8
	Hint         uint8
}

// EncodeMesh writes params and data as a mesh container. The data
// lengths must match the byte sizes the params imply.
func EncodeMesh(w io.Writer, params frameq.MeshParams, data frameq.MeshData) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if len(data.Vertices) != params.VertexBytes() || len(data.Indices) != params.IndexBytes() {
		return fmt.Errorf("asset: mesh data %d+%d bytes does not match params %d+%d",
			len(data.Vertices), len(data.Indices), params.VertexBytes(), params.IndexBytes())
	}

	header := meshHeader{
		Version:      meshVersion,
		VertexCount:  params.VertexCount,
		IndexCount:   params.IndexCount,
		VertexStride: params.VertexStride,
		IndexFormat:  uint8(params.IndexFormat),
		Hint:         uint8(params.Hint),
	}
	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(header); err != nil {
		return fmt.Errorf("asset: encode mesh header: %w", err)
	}

	if _, err := w.Write(meshMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(encoded.Len())); err != nil { // #nosec G115 -- gob header is tiny
		return err
	}
	if _, err := w.Write(encoded.Bytes()); err != nil {
		return err
	}

	zw := lz4.NewWriter(w)
	if _, err := zw.Write(data.Vertices); err != nil {
		return err
	}
	if _, err := zw.Write(data.Indices); err != nil {
		return err
	}
	return zw.Close()
}

// DecodeMesh reads a mesh container back into params and data.
func DecodeMesh(r io.Reader) (frameq.MeshParams, frameq.MeshData, error) {
	var params frameq.MeshParams
	var data frameq.MeshData

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return params, data, ErrMeshFormat
	}
	if magic != meshMagic {
		return params, data, ErrMeshFormat
	}

	var headerSize int32
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return params, data, ErrMeshFormat
	}
	if headerSize <= 0 || headerSize > 1<<20 {
		return params, data, ErrMeshFormat
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return params, data, ErrMeshFormat
	}
	var header meshHeader
	if err := gob.NewDecoder(bytes.NewReader(headerBytes)).Decode(&header); err != nil {
		return params, data, fmt.Errorf("%w: %v", ErrMeshFormat, err)
	}
	if header.Version != meshVersion {
		return params, data, fmt.Errorf("%w: unsupported version %d", ErrMeshFormat, header.Version)
	}

	params = frameq.MeshParams{
		VertexCount:  header.VertexCount,
		IndexCount:   header.IndexCount,
		VertexStride: header.VertexStride,
		IndexFormat:  frameq.IndexFormat(header.IndexFormat),
		Hint:         frameq.BufferHint(header.Hint),
	}
	if err := params.Validate(); err != nil {
		return params, data, fmt.Errorf("%w: %v", ErrMeshFormat, err)
	}

	zr := lz4.NewReader(r)
	data.Vertices = make([]byte, params.VertexBytes())
	if _, err := io.ReadFull(zr, data.Vertices); err != nil {
		return params, data, fmt.Errorf("%w: short vertex block: %v", ErrMeshFormat, err)
	}
	if n := params.IndexBytes(); n > 0 {
		data.Indices = make([]byte, n)
		if _, err := io.ReadFull(zr, data.Indices); err != nil {
			return params, data, fmt.Errorf("%w: short index block: %v", ErrMeshFormat, err)
		}
	}
	return params, data, nil
}
