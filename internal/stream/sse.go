package stream

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandleSSE opens a long-lived server-sent-events channel for one language.
// The subscriber receives hello, settings (if known), chunk and ping events,
// each framed with a globally monotonic id.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		http.Error(w, "missing required 'lang' query parameter", http.StatusBadRequest)
		return
	}
	if !h.langValid(lang) {
		http.Error(w, "unsupported language: "+lang, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sub := h.register(lang, protoSSE, uuid.New().String())
	defer h.remove(sub)

	h.logger.Info("sse subscriber connected",
		zap.Uint64("clientId", sub.id),
		zap.String("lang", lang),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("sse subscriber disconnected",
				zap.Uint64("clientId", sub.id),
				zap.String("lang", lang),
			)
			return
		case <-sub.done:
			return
		case frame := <-sub.send:
			if _, err := w.Write(frame); err != nil {
				h.logger.Debug("failed to write to subscriber",
					zap.Uint64("clientId", sub.id),
					zap.Error(err),
				)
				return
			}
			flusher.Flush()
		}
	}
}
