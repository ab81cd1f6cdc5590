package feed

import (
	"sync"
	"time"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

type health struct {
	mx             sync.RWMutex
	connected      bool
	connectedAt    time.Time
	lastPong       time.Time
	reconnects     int
	lastDisconnect *entity.Disconnect
}

func (h *health) markConnected(at time.Time) {
	h.mx.Lock()
	defer h.mx.Unlock()

	h.connected = true
	h.connectedAt = at
}

func (h *health) markPong(at time.Time) {
	h.mx.Lock()
	defer h.mx.Unlock()

	h.lastPong = at
}

func (h *health) markDisconnected(code int, reason string, at time.Time) {
	h.mx.Lock()
	defer h.mx.Unlock()

	var duration time.Duration
	if h.connected {
		duration = at.Sub(h.connectedAt)
	}
	h.connected = false
	h.reconnects++
	h.lastDisconnect = &entity.Disconnect{
		Code:     code,
		Reason:   reason,
		At:       at,
		Duration: duration,
	}
}

func (h *health) snapshot() entity.FeedHealth {
	h.mx.RLock()
	defer h.mx.RUnlock()

	snap := entity.FeedHealth{
		Connected:      h.connected,
		ConnectedAt:    h.connectedAt,
		LastPong:       h.lastPong,
		ReconnectCount: h.reconnects,
		LastDisconnect: h.lastDisconnect,
	}
	if h.connected {
		snap.SessionDuration = time.Since(h.connectedAt)
	}
	return snap
}
