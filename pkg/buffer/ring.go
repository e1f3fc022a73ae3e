package buffer

// Ring is a growable double-ended queue backed by a power-of-two circular
// slice. PushBack and PopFront are O(1) amortized. Ring is not safe for
// concurrent use; callers guard it with their own lock.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring with room for at least capacity items before growing.
func NewRing[T any](capacity int) *Ring[T] {
	n := 16
	for n < capacity {
		n <<= 1
	}
	return &Ring[T]{items: make([]T, n)}
}

// Len returns the number of items in the ring.
func (r *Ring[T]) Len() int {
	return r.size
}

// PushBack appends an item at the back.
func (r *Ring[T]) PushBack(item T) {
	if r.items == nil {
		r.items = make([]T, 16)
	}
	if r.size == len(r.items) {
		r.grow()
	}
	r.items[(r.head+r.size)&(len(r.items)-1)] = item
	r.size++
}

// PopFront removes and returns the front item.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	item := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) & (len(r.items) - 1)
	r.size--
	return item, true
}

// Front returns the front item without removing it.
func (r *Ring[T]) Front() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.items[r.head], true
}

// Back returns the most recently pushed item without removing it.
func (r *Ring[T]) Back() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.items[(r.head+r.size-1)&(len(r.items)-1)], true
}

// At returns the i-th item counted from the front. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("buffer: Ring index out of range")
	}
	return r.items[(r.head+i)&(len(r.items)-1)]
}

// Slice copies the ring contents, front to back, into a new slice.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	r.copyTo(out)
	return out
}

// Clear removes every item while keeping the allocated storage.
func (r *Ring[T]) Clear() {
	clear(r.items)
	r.head, r.size = 0, 0
}

func (r *Ring[T]) copyTo(dst []T) {
	if r.size == 0 {
		return
	}
	end := r.head + r.size
	if end <= len(r.items) {
		copy(dst, r.items[r.head:end])
		return
	}
	n := copy(dst, r.items[r.head:])
	copy(dst[n:], r.items[:end-len(r.items)])
}

func (r *Ring[T]) grow() {
	next := make([]T, len(r.items)*2)
	r.copyTo(next)
	r.items = next
	r.head = 0
}
