package logring

import (
	"sync"

	"github.com/Hikita1337/crashfeed/internal/entity"
	"github.com/Hikita1337/crashfeed/pkg/ringbuf"
)

// Ring is the bounded diagnostic log: FIFO with both an entry-count cap and a
// byte cap over the encoded lines. Appending beyond either cap evicts the
// oldest entries until both hold again.
type Ring struct {
	mx       sync.RWMutex
	ring     *ringbuf.Ring[entity.LogEntry]
	maxBytes int
	bytes    int
}

func New(maxEntries, maxBytes int) *Ring {
	return &Ring{
		ring:     ringbuf.New[entity.LogEntry](maxEntries),
		maxBytes: maxBytes,
	}
}

// Append stores one entry, evicting from the back first so both caps hold.
// An entry larger than the byte cap on its own has its line truncated to the
// cap; dropping it would hide exactly the diagnostic that mattered.
func (r *Ring) Append(e entity.LogEntry) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if len(e.Line) > r.maxBytes {
		e.Line = e.Line[:r.maxBytes]
	}

	for r.ring.Len() >= r.ring.Cap() {
		r.evictOldest()
	}
	for r.bytes+len(e.Line) > r.maxBytes && r.ring.Len() > 0 {
		r.evictOldest()
	}

	r.ring.PushFront(e)
	r.bytes += len(e.Line)
}

func (r *Ring) evictOldest() {
	old, ok := r.ring.PopBack()
	if ok {
		r.bytes -= len(old.Line)
	}
}

// Recent returns up to n entries, newest first.
func (r *Ring) Recent(n int) []entity.LogEntry {
	r.mx.RLock()
	defer r.mx.RUnlock()

	out := make([]entity.LogEntry, 0, n)
	r.ring.WalkFirstN(n, func(e entity.LogEntry) {
		out = append(out, e)
	})
	return out
}

func (r *Ring) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.ring.Len()
}

func (r *Ring) Bytes() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.bytes
}
