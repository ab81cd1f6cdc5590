package feed

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Wire frames are JSON objects. An empty object is the protocol keepalive,
// a frame with a request id acknowledges connect/subscribe, and a push frame
// carries a published event whose payload is base64-encoded JSON.
type frame struct {
	ID    int64       `json:"id,omitempty"`
	Error *frameError `json:"error,omitempty"`
	Push  *push       `json:"push,omitempty"`
}

type frameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type push struct {
	Channel string `json:"channel"`
	Pub     *pub   `json:"pub"`
}

type pub struct {
	Data string `json:"data"`
}

type connectFrame struct {
	Connect connectParams `json:"connect"`
	ID      int64         `json:"id"`
}

type connectParams struct {
	Token string `json:"token"`
}

type subscribeFrame struct {
	Subscribe subscribeParams `json:"subscribe"`
	ID        int64           `json:"id"`
}

type subscribeParams struct {
	Channel string `json:"channel"`
}

func isKeepalive(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}"))
}

// wagerEvent is the shape embedded in a publication payload. The data field
// is sometimes a JSON-encoded string rather than an object, so decoding may
// need a secondary parse.
type wagerEvent struct {
	Bet *betEvent `json:"bet"`
}

type betEvent struct {
	GameID int64 `json:"gameId"`
	Status int   `json:"status"`
	User   struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Deposit struct {
		Items []json.RawMessage `json:"items"`
	} `json:"deposit"`
}

const statusActive = 1

// decodePublication unwraps a push payload: base64, then JSON, then the
// optional string-wrapped inner JSON.
func decodePublication(data string) (*wagerEvent, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	var outer struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(outer.Data) == 0 {
		return nil, nil
	}

	inner := outer.Data
	var nested string
	if err := json.Unmarshal(outer.Data, &nested); err == nil {
		// data arrived as an embedded JSON string
		inner = []byte(nested)
	}

	var ev wagerEvent
	if err := json.Unmarshal(inner, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	return &ev, nil
}
