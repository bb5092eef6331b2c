package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/glotcast/relay/internal/settings"
)

const (
	// DefaultHeartbeatInterval is how often ping events are pushed to every
	// subscriber, independently of translation traffic.
	DefaultHeartbeatInterval = 15 * time.Second

	// DefaultSendBuffer is the per-subscriber frame buffer. A subscriber that
	// falls this far behind is pruned on the next send.
	DefaultSendBuffer = 32
)

// Hub tracks live subscriber connections keyed by connection id, each tagged
// with a language, and fans event frames out to them. A failed push removes
// the subscriber immediately and delivery continues with the rest, so dead
// handles never accumulate.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	byLang map[string]map[uint64]*subscriber

	nextClientID atomic.Uint64
	nextEventID  atomic.Uint64

	settings  *settings.Store
	langValid func(string) bool
	heartbeat time.Duration
	buffer    int
	logger    *zap.Logger
}

// NewHub creates a hub. langValid gates subscriptions; nil admits any language.
func NewHub(st *settings.Store, langValid func(string) bool, heartbeat time.Duration, buffer int, logger *zap.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if langValid == nil {
		langValid = func(string) bool { return true }
	}
	return &Hub{
		subs:      make(map[uint64]*subscriber),
		byLang:    make(map[string]map[uint64]*subscriber),
		settings:  st,
		langValid: langValid,
		heartbeat: heartbeat,
		buffer:    buffer,
		logger:    logger,
	}
}

// Run drives the heartbeat loop. Call in a goroutine; returns when the
// context is cancelled, closing every subscriber.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return
		case <-ticker.C:
			h.broadcastAll(EventPing, Ping{T: time.Now().UnixMilli()})
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
	h.byLang = make(map[string]map[uint64]*subscriber)
}

// register adds a subscriber and pushes its hello event, plus a settings
// event if a value is known for its language (late-joiner catch-up).
func (h *Hub) register(lang, proto, connID string) *subscriber {
	sub := newSubscriber(h.nextClientID.Add(1), connID, lang, proto, h.buffer)

	h.mu.Lock()
	h.subs[sub.id] = sub
	if h.byLang[lang] == nil {
		h.byLang[lang] = make(map[uint64]*subscriber)
	}
	h.byLang[lang][sub.id] = sub
	h.mu.Unlock()

	h.logger.Debug("subscriber registered",
		zap.Uint64("clientId", sub.id),
		zap.String("connID", connID),
		zap.String("lang", lang),
		zap.String("proto", proto),
	)

	h.sendTo(sub, EventHello, Hello{Lang: lang, ClientID: sub.id})
	if v, ok := h.settings.Visitor(lang); ok {
		h.sendTo(sub, EventSettings, v)
	}

	return sub
}

// remove deletes a subscriber and closes it. Idempotent.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		if langSubs, ok := h.byLang[sub.lang]; ok {
			delete(langSubs, sub.id)
			if len(langSubs) == 0 {
				delete(h.byLang, sub.lang)
			}
		}
	}
	h.mu.Unlock()

	sub.close()

	h.logger.Debug("subscriber removed",
		zap.Uint64("clientId", sub.id),
		zap.String("connID", sub.connID),
		zap.String("lang", sub.lang),
	)
}

// sendTo pushes one event to a single subscriber with a fresh event id,
// pruning it on failure.
func (h *Hub) sendTo(sub *subscriber, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("event", eventType), zap.Error(err))
		return
	}
	frame := sub.encodeFrame(eventType, h.nextEventID.Add(1), payload)
	if err := sub.trySend(frame); err != nil {
		h.remove(sub)
	}
}

// Broadcast delivers one event to every subscriber of a language and returns
// the number of successful deliveries. Subscribers whose push fails are
// removed and the broadcast continues with the remaining entries.
func (h *Hub) Broadcast(lang, eventType string, data any) int {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("event", eventType), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.byLang[lang]))
	for _, sub := range h.byLang[lang] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	eventID := h.nextEventID.Add(1)
	delivered := 0
	for _, sub := range targets {
		frame := sub.encodeFrame(eventType, eventID, payload)
		if err := sub.trySend(frame); err != nil {
			h.logger.Debug("push failed, pruning subscriber",
				zap.Uint64("clientId", sub.id),
				zap.String("lang", lang),
			)
			h.remove(sub)
			continue
		}
		delivered++
	}

	h.logger.Debug("broadcast",
		zap.String("lang", lang),
		zap.String("event", eventType),
		zap.Int("delivered", delivered),
	)
	return delivered
}

// broadcastAll pushes one event to every subscriber regardless of language.
func (h *Hub) broadcastAll(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	eventID := h.nextEventID.Add(1)
	for _, sub := range targets {
		frame := sub.encodeFrame(eventType, eventID, payload)
		if err := sub.trySend(frame); err != nil {
			h.remove(sub)
		}
	}
}

// CountForLang returns the number of live subscribers for a language.
func (h *Hub) CountForLang(lang string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byLang[lang])
}

// Counts returns the total subscriber count and the per-language breakdown.
func (h *Hub) Counts() (int, map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byLang := make(map[string]int, len(h.byLang))
	for lang, subs := range h.byLang {
		if len(subs) > 0 {
			byLang[lang] = len(subs)
		}
	}
	return len(h.subs), byLang
}
