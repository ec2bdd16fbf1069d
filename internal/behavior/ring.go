package behavior

// Ring is a fixed-capacity FIFO that evicts the oldest element when full.
// It is not safe for concurrent use; Tracker serializes access.
type Ring[T any] struct {
	buf   []T
	limit int
	added int
}

// NewRing returns an empty ring holding at most limit elements. A limit
// below one is treated as one.
func NewRing[T any](limit int) *Ring[T] {
	if limit < 1 {
		limit = 1
	}
	return &Ring[T]{buf: make([]T, 0, limit), limit: limit}
}

// Push appends v, dropping the head first when the ring is full.
func (r *Ring[T]) Push(v T) {
	if len(r.buf) == r.limit {
		r.dropHead(1)
	}
	r.buf = append(r.buf, v)
	r.added++
}

// dropHead shifts the buffer left by k without reallocating and zeroes the
// freed tail so the GC can release anything it referenced.
func (r *Ring[T]) dropHead(k int) {
	n := len(r.buf)
	if k <= 0 || k > n {
		return
	}
	copy(r.buf[0:], r.buf[k:n])
	var zero T
	for i := n - k; i < n; i++ {
		r.buf[i] = zero
	}
	r.buf = r.buf[:n-k]
}

// Len is the number of retained elements.
func (r *Ring[T]) Len() int { return len(r.buf) }

// Cap is the retention limit.
func (r *Ring[T]) Cap() int { return r.limit }

// Total is the number of elements ever pushed, including evicted ones.
func (r *Ring[T]) Total() int { return r.added }

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	if len(r.buf) == 0 {
		var zero T
		return zero, false
	}
	return r.buf[len(r.buf)-1], true
}

// Snapshot copies the retained elements, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, len(r.buf))
	copy(out, r.buf)
	return out
}
