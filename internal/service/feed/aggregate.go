package feed

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Hikita1337/crashfeed/pkg/utils"
)

// Aggregate maps round id to the set of distinct participants observed on the
// push channel. Retained rounds are capped with LRU eviction by round id, so
// the structure cannot grow without bound across a long session.
type Aggregate struct {
	mx     sync.RWMutex
	rounds *lru.Cache[int64, map[int64]struct{}]
}

func NewAggregate(capacity int) *Aggregate {
	return &Aggregate{
		rounds: utils.Must(lru.New[int64, map[int64]struct{}](capacity)),
	}
}

// Add records one participant for a round, deduplicating by user id.
// Returns the round's distinct participant count after the add.
func (a *Aggregate) Add(roundID, userID int64) int {
	a.mx.Lock()
	defer a.mx.Unlock()

	users, ok := a.rounds.Get(roundID)
	if !ok {
		users = make(map[int64]struct{})
		a.rounds.Add(roundID, users)
	}
	users[userID] = struct{}{}
	return len(users)
}

func (a *Aggregate) Participants(roundID int64) int {
	a.mx.RLock()
	defer a.mx.RUnlock()

	users, ok := a.rounds.Get(roundID)
	if !ok {
		return 0
	}
	return len(users)
}

// Snapshot returns round id -> distinct participant count.
func (a *Aggregate) Snapshot() map[int64]int {
	a.mx.RLock()
	defer a.mx.RUnlock()

	out := make(map[int64]int, a.rounds.Len())
	for _, roundID := range a.rounds.Keys() {
		if users, ok := a.rounds.Peek(roundID); ok {
			out[roundID] = len(users)
		}
	}
	return out
}

func (a *Aggregate) Rounds() int {
	a.mx.RLock()
	defer a.mx.RUnlock()
	return a.rounds.Len()
}
