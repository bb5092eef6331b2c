package stream

// Event types pushed to subscribers.
const (
	EventHello    = "hello"
	EventSettings = "settings"
	EventChunk    = "chunk"
	EventPing     = "ping"
)

// Hello is pushed once immediately after a subscriber connects.
type Hello struct {
	Lang     string `json:"lang"`
	ClientID uint64 `json:"clientId"`
}

// Chunk carries one translated batch.
type Chunk struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
	Seq  int64  `json:"seq"`
}

// Ping is the periodic heartbeat payload.
type Ping struct {
	T int64 `json:"t"`
}
