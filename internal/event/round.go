package event

import (
	"time"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

type RoundCollected struct {
	entity.Round

	RunID     string
	Collected int
}

type RunStarted struct {
	RunID   string
	StartID int64
	Target  int
	Mode    string
}

type RunFinished struct {
	RunID     string
	Collected int
	Aborted   bool
}

type RoundSkipped struct {
	RunID string
	ID    int64
}

type FeedConnected struct {
	At time.Time
}

type FeedDisconnected struct {
	Code            int
	Reason          string
	SessionDuration time.Duration
}

type FeedHeartbeat struct {
	Health  entity.FeedHealth
	LogSize int
}

type WagerObserved struct {
	RoundID      int64
	UserID       int64
	Participants int
}
