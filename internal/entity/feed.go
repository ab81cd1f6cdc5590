package entity

import "time"

// FeedHealth is a point-in-time snapshot of the push-channel connection,
// served by /status and /logs.
type FeedHealth struct {
	Connected       bool          `json:"connected"`
	ConnectedAt     time.Time     `json:"connectedAt,omitempty"`
	SessionDuration time.Duration `json:"sessionDuration"`
	LastPong        time.Time     `json:"lastPong,omitempty"`
	ReconnectCount  int           `json:"reconnectCount"`
	LastDisconnect  *Disconnect   `json:"lastDisconnect,omitempty"`
}

type Disconnect struct {
	Code     int           `json:"code"`
	Reason   string        `json:"reason"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"sessionDuration"`
}

// LogEntry is one bounded-log-ring record. Line is the encoded log line;
// its length is what counts against the ring's byte cap.
type LogEntry struct {
	Time    time.Time `json:"ts"`
	Level   string    `json:"level"`
	Message string    `json:"msg"`
	Line    string    `json:"line"`
}
