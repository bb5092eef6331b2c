package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Subscriber protocols. The hub is transport-agnostic: each subscriber frames
// events according to its own protocol when a broadcast reaches it.
const (
	protoSSE = "sse"
	protoWS  = "ws"
)

var errSubscriberGone = errors.New("subscriber closed or send buffer full")

// subscriber is one live push-channel connection. Owned by the Hub: created on
// connect, removed on disconnect or on the first failed send.
type subscriber struct {
	id          uint64 // monotonic connection id, the wire clientId
	connID      string // uuid, log correlation only
	lang        string
	proto       string
	connectedAt time.Time

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newSubscriber(id uint64, connID, lang, proto string, buffer int) *subscriber {
	return &subscriber{
		id:          id,
		connID:      connID,
		lang:        lang,
		proto:       proto,
		connectedAt: time.Now(),
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// trySend queues a frame without blocking. A full buffer or a closed
// subscriber is a failed push; the caller treats that as a disconnect.
func (s *subscriber) trySend(frame []byte) error {
	select {
	case <-s.done:
		return errSubscriberGone
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return errSubscriberGone
	default:
		return errSubscriberGone
	}
}

// close signals the transport drain loop to exit. Safe to call more than once.
func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// encodeFrame builds an event frame in this subscriber's protocol format.
// SSE: "event: T\nid: N\ndata: {...}\n\n". WebSocket: {"type","id","data"}.
func (s *subscriber) encodeFrame(eventType string, id uint64, data json.RawMessage) []byte {
	if s.proto == protoWS {
		frame, err := json.Marshal(struct {
			Type string          `json:"type"`
			ID   uint64          `json:"id"`
			Data json.RawMessage `json:"data"`
		}{Type: eventType, ID: id, Data: data})
		if err != nil {
			return nil
		}
		return frame
	}
	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, id, data))
}
