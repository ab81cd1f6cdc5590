package ringbuf

// Ring is a fixed-capacity ring buffer. PushFront writes at the head and
// overwrites the oldest element once the ring is full; PopBack evicts the
// oldest element explicitly.
type Ring[T any] struct {
	Data  []T
	Head  int
	Count int
}

func New[T any](size int) *Ring[T] {
	return &Ring[T]{
		Data: make([]T, size),
		Head: 0,
	}
}

func (r *Ring[T]) PushFront(v T) *Ring[T] {
	r.Head = r.Head - 1
	if r.Head < 0 {
		r.Head = len(r.Data) - 1
	}
	r.Data[r.Head] = v
	if r.Count < len(r.Data) {
		r.Count++
	}
	return r
}

// PopBack removes and returns the oldest element.
func (r *Ring[T]) PopBack() (T, bool) {
	var zero T
	if r.Count == 0 {
		return zero, false
	}
	idx := (r.Head + r.Count - 1) % len(r.Data)
	v := r.Data[idx]
	r.Data[idx] = zero
	r.Count--
	return v, true
}

// WalkFirstN visits up to count elements, newest first.
func (r *Ring[T]) WalkFirstN(count int, fn func(T)) {
	if count > r.Count {
		count = r.Count
	}
	for i := 0; i < count; i++ {
		fn(r.Data[(r.Head+i)%len(r.Data)])
	}
}

func (r *Ring[T]) GetN(i int) T {
	idx := r.Head + i
	if idx < 0 {
		idx = len(r.Data) + idx
	}
	return r.Data[(idx)%len(r.Data)]
}

func (r *Ring[T]) Len() int {
	return r.Count
}

func (r *Ring[T]) Cap() int {
	return len(r.Data)
}
