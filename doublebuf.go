package frameq

import "sync"

// DoubleBuf owns a pair of frames. Producers record into the front frame
// through Write; once per tick the pipeline flips the pair with Swap,
// after which the consumer drains the back frame through WriteBack while
// producers keep recording into the fresh front frame.
type DoubleBuf struct {
	mu    sync.Mutex
	front *Frame
	back  *Frame
}

// NewDoubleBuf returns a buffer pair whose arenas start with the given
// capacity.
func NewDoubleBuf(arenaCapacity int) *DoubleBuf {
	return &DoubleBuf{
		front: NewFrame(arenaCapacity),
		back:  NewFrame(arenaCapacity),
	}
}

// Write runs fn against the front frame under the buffer lock. Safe to
// call from any goroutine.
func (b *DoubleBuf) Write(fn func(*Frame)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.front)
}

// Swap flips front and back. Called once per tick, between the
// consumer's drains, so the back frame handed to WriteBack is never
// concurrently written.
func (b *DoubleBuf) Swap() {
	b.mu.Lock()
	b.front, b.back = b.back, b.front
	b.mu.Unlock()
}

// WriteBack returns the back frame for the consumer to drain. Only the
// single consumer goroutine may use the returned frame, and only until
// the next Swap.
func (b *DoubleBuf) WriteBack() *Frame {
	return b.back
}
