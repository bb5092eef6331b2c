package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/glotcast/relay/internal/stream"
)

type ingestRequest struct {
	SourceText string   `json:"sourceText"`
	Lang       string   `json:"lang"`
	Seq        *float64 `json:"seq"`
	TS         *int64   `json:"ts"`
}

type ingestResponse struct {
	OK              bool   `json:"ok"`
	HasReceiver     bool   `json:"hasReceiver"`
	ClientCount     int    `json:"clientCount"`
	Accepted        bool   `json:"accepted"`
	SuggestedPreset string `json:"suggestedPreset,omitempty"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// handleIngest validates and admits one producer fragment. The response goes
// out before any translation runs.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	text := strings.TrimSpace(req.SourceText)
	if text == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "sourceText is required"})
		return
	}
	if utf8.RuneCountInString(text) > s.config.Batch.MaxFragmentLen {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "sourceText exceeds maximum length"})
		return
	}
	if req.Lang == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "lang is required"})
		return
	}
	if !s.config.LangSupported(req.Lang) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported lang: " + req.Lang})
		return
	}

	seq := int64(-1)
	if req.Seq != nil {
		if *req.Seq < 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "seq must be non-negative"})
			return
		}
		seq = int64(*req.Seq)
	}

	var ts int64
	if req.TS != nil {
		ts = *req.TS
	}

	clientCount := s.hub.CountForLang(req.Lang)
	accepted := s.engine.Admit(req.Lang, text, seq, ts)

	s.logger.Debug("fragment ingested",
		zap.String("lang", req.Lang),
		zap.Int64("seq", seq),
		zap.Bool("accepted", accepted),
		zap.Int("clientCount", clientCount),
	)

	respondJSON(w, http.StatusOK, ingestResponse{
		OK:              true,
		HasReceiver:     clientCount > 0,
		ClientCount:     clientCount,
		Accepted:        accepted,
		SuggestedPreset: s.settings.Preset(req.Lang),
	})
}

type visitorSettingsRequest struct {
	Lang    string   `json:"lang"`
	TTSRate *float64 `json:"ttsRate"`
}

func (s *Server) handleVisitorSettings(w http.ResponseWriter, r *http.Request) {
	var req visitorSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Lang == "" || !s.config.LangSupported(req.Lang) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported lang: " + req.Lang})
		return
	}
	if req.TTSRate == nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "ttsRate is required"})
		return
	}

	v := s.settings.SetTTSRate(req.Lang, *req.TTSRate)
	sent := s.hub.Broadcast(req.Lang, stream.EventSettings, v)

	s.logger.Info("visitor settings updated",
		zap.String("lang", req.Lang),
		zap.Float64("ttsRate", v.TTSRate),
		zap.Int("sent", sent),
	)

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": sent})
}

type presetSuggestRequest struct {
	Lang   string `json:"lang"`
	Preset string `json:"preset"`
}

func (s *Server) handlePresetSuggest(w http.ResponseWriter, r *http.Request) {
	var req presetSuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Lang == "" || !s.config.LangSupported(req.Lang) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported lang: " + req.Lang})
		return
	}

	s.settings.SuggestPreset(req.Lang, req.Preset)
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type statusResponse struct {
	Clients               int            `json:"clients"`
	ByLang                map[string]int `json:"byLang"`
	UptimeSec             int64          `json:"uptime"`
	TotalChunksTranslated uint64         `json:"totalChunksTranslated"`
	SessionLogEntries     int            `json:"sessionLogEntries"`
	PendingLangs          []string       `json:"pendingLangs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	clients, byLang := s.hub.Counts()
	respondJSON(w, http.StatusOK, statusResponse{
		Clients:               clients,
		ByLang:                byLang,
		UptimeSec:             int64(time.Since(s.startedAt).Seconds()),
		TotalChunksTranslated: s.engine.TotalFlushed(),
		SessionLogEntries:     s.log.Len(),
		PendingLangs:          s.engine.PendingLanguages(),
	})
}

func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.log.Entries())
}

func (s *Server) handleSessionLogCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="session-log.csv"`)
	if err := s.log.WriteCSV(w); err != nil {
		s.logger.Warn("failed to write session log csv", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
