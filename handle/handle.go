// Package handle provides generation-tagged handles and a generic object
// pool that maps them to resource metadata records.
//
// A Handle is an opaque token identifying a pooled slot. Slots are reused
// after Free, and each reuse increments the slot's generation, so a stale
// handle held by a caller is detectably invalid rather than silently
// aliasing the new occupant.
//
// Pool is not safe for concurrent use. Callers that share a pool across
// goroutines must provide external synchronization.
package handle

// Handle identifies a pooled resource slot for its whole lifetime.
// The zero Handle is never valid: generations start at 1.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Nil reports whether h is the zero handle.
func (h Handle) Nil() bool {
	return h == Handle{}
}

type slot[T any] struct {
	params     T
	generation uint32
	live       bool
}

// Pool is a generic allocator mapping handles to parameter records of type T.
// Freed slots are recycled in LIFO order.
type Pool[T any] struct {
	slots []slot[T]
	free  []uint32
}

// NewPool creates an empty pool.
func NewPool[T any]() *Pool[T] {
	return &Pool[T]{}
}

// Create allocates a slot for params and returns its handle.
// Amortized O(1): a free slot is reused when available, otherwise the
// pool grows.
func (p *Pool[T]) Create(params T) Handle {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		s := &p.slots[idx]
		s.params = params
		s.live = true
		return Handle{Index: idx, Generation: s.generation}
	}

	p.slots = append(p.slots, slot[T]{params: params, generation: 1, live: true})
	// #nosec G115 -- pool size is bounded by available memory, well under uint32 max
	return Handle{Index: uint32(len(p.slots) - 1), Generation: 1}
}

// Get returns the params for h. The second result is false if h is stale
// (its slot was freed, possibly reused) or was never allocated; callers
// translate that absence into a domain error.
func (p *Pool[T]) Get(h Handle) (T, bool) {
	if s := p.lookup(h); s != nil {
		return s.params, true
	}
	var zero T
	return zero, false
}

// Set replaces the params stored for h. Returns false if h is stale.
func (p *Pool[T]) Set(h Handle, params T) bool {
	if s := p.lookup(h); s != nil {
		s.params = params
		return true
	}
	return false
}

// Free releases the slot for h and returns the removed params so the
// caller can enqueue a matching delete command. The slot's generation is
// incremented, invalidating every outstanding copy of h. Freeing a stale
// or unknown handle is a no-op returning ok=false, not a fault.
func (p *Pool[T]) Free(h Handle) (T, bool) {
	s := p.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}

	params := s.params
	var zero T
	s.params = zero
	s.live = false
	s.generation++
	p.free = append(p.free, h.Index)
	return params, true
}

// Len returns the number of live slots.
func (p *Pool[T]) Len() int {
	return len(p.slots) - len(p.free)
}

func (p *Pool[T]) lookup(h Handle) *slot[T] {
	if int(h.Index) >= len(p.slots) {
		return nil
	}
	s := &p.slots[h.Index]
	if !s.live || s.generation != h.Generation {
		return nil
	}
	return s
}
