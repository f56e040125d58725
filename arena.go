package frameq

// Arena is an append-only byte buffer for the bulk payloads of recorded
// commands. Producers copy payload bytes in with Extend and reference
// them by the returned Span; the consumer resolves spans with Bytes
// while replaying. Reset clears the arena after dispatch while keeping
// the allocated storage for the next frame.
//
// Arena is not safe for concurrent use; callers serialize access.
type Arena struct {
	buf []byte
}

// NewArena returns an arena with the given initial capacity.
func NewArena(capacity int) *Arena {
	return &Arena{buf: make([]byte, 0, capacity)}
}

// Extend copies data into the arena and returns a span referencing the
// copy. The copy is stable until Reset.
func (a *Arena) Extend(data []byte) Span {
	off := len(a.buf)
	a.buf = append(a.buf, data...)
	return Span{Offset: uint32(off), Len: uint32(len(data))} // #nosec G115 -- frame payloads stay well under 4 GiB
}

// Bytes resolves a span produced by Extend. The returned slice aliases
// arena storage and is valid until Reset.
func (a *Arena) Bytes(s Span) []byte {
	if s.Len == 0 {
		return nil
	}
	return a.buf[s.Offset : s.Offset+s.Len]
}

// Len returns the number of bytes stored.
func (a *Arena) Len() int { return len(a.buf) }

// Reset discards all spans, retaining storage.
func (a *Arena) Reset() { a.buf = a.buf[:0] }
