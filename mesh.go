package frameq

import "fmt"

// IndexFormat is the storage width of mesh indices.
type IndexFormat uint8

const (
	// IndexFormatU16 stores indices as uint16.
	IndexFormatU16 IndexFormat = iota
	// IndexFormatU32 stores indices as uint32.
	IndexFormatU32
)

// Size returns the index width in bytes.
func (f IndexFormat) Size() int {
	if f == IndexFormatU32 {
		return 4
	}
	return 2
}

// BufferHint tells the device how often a mesh's buffers will change.
type BufferHint uint8

const (
	// BufferHintStatic is for buffers written once.
	BufferHintStatic BufferHint = iota
	// BufferHintDynamic is for buffers updated occasionally.
	BufferHintDynamic
	// BufferHintStream is for buffers rewritten every frame.
	BufferHintStream
)

// MeshParams describes a mesh: a vertex buffer and an index buffer with
// fixed capacities. The vertex attribute layout itself is opaque to this
// package; only the stride matters for capacity accounting.
type MeshParams struct {
	// VertexCount is the vertex capacity.
	VertexCount uint32

	// IndexCount is the index capacity.
	IndexCount uint32

	// VertexStride is the size of one vertex in bytes.
	VertexStride uint32

	// IndexFormat is the index storage width.
	IndexFormat IndexFormat

	// Hint is the update-frequency hint.
	Hint BufferHint
}

// Validate reports whether the parameters describe a creatable mesh.
func (p MeshParams) Validate() error {
	if p.VertexCount == 0 || p.VertexStride == 0 {
		return fmt.Errorf("%w: mesh needs vertices (count=%d stride=%d)",
			ErrValidation, p.VertexCount, p.VertexStride)
	}
	return nil
}

// VertexBytes returns the vertex buffer capacity in bytes.
func (p MeshParams) VertexBytes() int {
	return int(p.VertexCount) * int(p.VertexStride)
}

// IndexBytes returns the index buffer capacity in bytes.
func (p MeshParams) IndexBytes() int {
	return int(p.IndexCount) * p.IndexFormat.Size()
}

// MeshData carries the initial buffer payloads for a data-backed mesh
// creation. Either slice may be empty for buffers filled later via
// update calls.
type MeshData struct {
	Vertices []byte
	Indices  []byte
}
