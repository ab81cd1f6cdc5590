package collector

import (
	"sync"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

// Buffer is the append-only in-process store of normalized rounds. Volatile:
// reset when a new run starts or the process restarts.
type Buffer struct {
	mx     sync.RWMutex
	rounds []entity.Round
	lastID int64
}

func NewBuffer() *Buffer {
	return &Buffer{
		rounds: make([]entity.Round, 0),
	}
}

func (b *Buffer) Append(round entity.Round) int {
	b.mx.Lock()
	defer b.mx.Unlock()

	b.rounds = append(b.rounds, round)
	b.lastID = round.ID
	return len(b.rounds)
}

func (b *Buffer) Len() int {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return len(b.rounds)
}

func (b *Buffer) LastID() int64 {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.lastID
}

// Snapshot returns a copy safe to hand to a concurrent reader.
func (b *Buffer) Snapshot() []entity.Round {
	b.mx.RLock()
	defer b.mx.RUnlock()

	out := make([]entity.Round, len(b.rounds))
	copy(out, b.rounds)
	return out
}

func (b *Buffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()

	b.rounds = b.rounds[:0]
	b.lastID = 0
}
