package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/glotcast/relay/internal/batch"
	"github.com/glotcast/relay/internal/config"
	"github.com/glotcast/relay/internal/sessionlog"
	"github.com/glotcast/relay/internal/settings"
	"github.com/glotcast/relay/internal/stream"
	"github.com/glotcast/relay/internal/translate"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			SupportedLangs: []string{"en", "it", "es"},
			WSEnabled:      true,
		},
		Batch: config.BatchConfig{
			Debounce:       30 * time.Millisecond,
			MaxWait:        2 * time.Second,
			MaxFragmentLen: 1000,
		},
		Stream:     config.StreamConfig{HeartbeatInterval: time.Minute, SendBuffer: 32},
		SessionLog: config.SessionLogConfig{Capacity: 1000},
		Translator: config.TranslatorConfig{Mode: "stub"},
		Ingest:     config.IngestConfig{RatePerSecond: 1000, Burst: 1000},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *Server) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	st := settings.NewStore()
	log := sessionlog.New(cfg.SessionLog.Capacity)
	hub := stream.NewHub(st, cfg.LangSupported, cfg.Stream.HeartbeatInterval, cfg.Stream.SendBuffer, logger)
	translator := translate.NewStub(translate.StubConfig{})
	engine := batch.NewEngine(translator, hub, log, batch.Config{
		Debounce: cfg.Batch.Debounce,
		MaxWait:  cfg.Batch.MaxWait,
	}, logger)
	t.Cleanup(engine.Close)

	srv := NewServer(engine, hub, log, st, cfg, logger)
	ts := httptest.NewServer(NewRouter(srv, logger))
	t.Cleanup(ts.Close)
	return ts, srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func TestIngestValidation(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	tests := []struct {
		name    string
		body    map[string]any
		wantErr string
	}{
		{"missing sourceText", map[string]any{"lang": "en"}, "sourceText is required"},
		{"blank sourceText", map[string]any{"sourceText": "   ", "lang": "en"}, "sourceText is required"},
		{"oversized sourceText", map[string]any{"sourceText": strings.Repeat("x", 1001), "lang": "en"}, "maximum length"},
		{"missing lang", map[string]any{"sourceText": "ciao"}, "lang is required"},
		{"unsupported lang", map[string]any{"sourceText": "ciao", "lang": "xx"}, "unsupported lang"},
		{"negative seq", map[string]any{"sourceText": "ciao", "lang": "en", "seq": -1}, "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.URL+"/ingest", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if ok, _ := body["ok"].(bool); ok {
				t.Error("expected ok:false")
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, msg)
			}
		})
	}
}

func TestIngestNoSubscribers(t *testing.T) {
	ts, srv := newTestServer(t, testConfig())

	resp, body := postJSON(t, ts.URL+"/ingest", map[string]any{
		"sourceText": "nessuno ascolta",
		"lang":       "it",
		"seq":        1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ok, _ := body["ok"].(bool); !ok {
		t.Error("expected ok:true")
	}
	if accepted, _ := body["accepted"].(bool); accepted {
		t.Error("expected accepted:false with no subscribers")
	}
	if hasReceiver, _ := body["hasReceiver"].(bool); hasReceiver {
		t.Error("expected hasReceiver:false")
	}

	time.Sleep(100 * time.Millisecond)
	if srv.log.Len() != 0 {
		t.Errorf("expected no session log entries, got %d", srv.log.Len())
	}
}

func subscribeSSE(t *testing.T, baseURL, lang string) (*bufio.Reader, func()) {
	t.Helper()
	resp, err := http.Get(baseURL + "/subscribe?lang=" + lang)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe status %d", resp.StatusCode)
	}
	return bufio.NewReader(resp.Body), func() { resp.Body.Close() }
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	var sb strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		sb.WriteString(line)
		if line == "\n" {
			return sb.String()
		}
	}
}

func TestIngestTranslateBroadcastRoundTrip(t *testing.T) {
	ts, srv := newTestServer(t, testConfig())

	reader, closeSub := subscribeSSE(t, ts.URL, "en")
	defer closeSub()

	hello := readSSEEvent(t, reader)
	if !strings.Contains(hello, "event: hello") {
		t.Fatalf("expected hello event, got %q", hello)
	}

	// Wait until the hub sees the subscriber before ingesting.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.CountForLang("en") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, body := postJSON(t, ts.URL+"/ingest", map[string]any{
		"sourceText": "Buongiorno a tutti",
		"lang":       "en",
		"seq":        1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if accepted, _ := body["accepted"].(bool); !accepted {
		t.Error("expected accepted:true with a live subscriber")
	}
	if count, _ := body["clientCount"].(float64); count != 1 {
		t.Errorf("expected clientCount 1, got %v", body["clientCount"])
	}

	chunk := readSSEEvent(t, reader)
	if !strings.Contains(chunk, "event: chunk") {
		t.Fatalf("expected chunk event, got %q", chunk)
	}
	if !strings.Contains(chunk, "[en] Buongiorno a tutti") {
		t.Errorf("chunk missing translated text: %q", chunk)
	}
	if !strings.Contains(chunk, `"seq":1`) {
		t.Errorf("chunk missing seq: %q", chunk)
	}

	entries := srv.log.Entries()
	if len(entries) != 1 || entries[0].Lang != "en" {
		t.Errorf("expected one en session log entry, got %+v", entries)
	}
}

func TestVisitorSettingsClampAndBroadcast(t *testing.T) {
	ts, srv := newTestServer(t, testConfig())

	resp, body := postJSON(t, ts.URL+"/visitor-settings", map[string]any{
		"lang":    "it",
		"ttsRate": 3.0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ok, _ := body["ok"].(bool); !ok {
		t.Error("expected ok:true")
	}
	if sent, _ := body["sent"].(float64); sent != 0 {
		t.Errorf("expected sent 0 with no subscribers, got %v", sent)
	}

	v, okStored := srv.settings.Visitor("it")
	if !okStored || v.TTSRate != 2.0 {
		t.Errorf("expected stored rate clamped to 2.0, got %v", v.TTSRate)
	}

	// Late joiner receives the clamped value before any chunk.
	reader, closeSub := subscribeSSE(t, ts.URL, "it")
	defer closeSub()

	readSSEEvent(t, reader) // hello
	settingsEvent := readSSEEvent(t, reader)
	if !strings.Contains(settingsEvent, "event: settings") || !strings.Contains(settingsEvent, `"ttsRate":2`) {
		t.Errorf("expected clamped settings event, got %q", settingsEvent)
	}
}

func TestVisitorSettingsValidation(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	resp, _ := postJSON(t, ts.URL+"/visitor-settings", map[string]any{"lang": "xx", "ttsRate": 1.0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported lang, got %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, ts.URL+"/visitor-settings", map[string]any{"lang": "it"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing ttsRate, got %d", resp.StatusCode)
	}
}

func TestPresetSuggestConsultedByIngest(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	resp, body := postJSON(t, ts.URL+"/preset-suggest", map[string]any{
		"lang":   "es",
		"preset": "banner",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ok, _ := body["ok"].(bool); !ok {
		t.Error("expected ok:true")
	}

	_, ingestBody := postJSON(t, ts.URL+"/ingest", map[string]any{
		"sourceText": "hola",
		"lang":       "es",
	})
	if preset, _ := ingestBody["suggestedPreset"].(string); preset != "banner" {
		t.Errorf("expected suggestedPreset banner, got %v", ingestBody["suggestedPreset"])
	}
}

func TestStatus(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.Clients != 0 {
		t.Errorf("expected 0 clients, got %d", status.Clients)
	}
	if status.TotalChunksTranslated != 0 {
		t.Errorf("expected 0 chunks, got %d", status.TotalChunksTranslated)
	}
}

func TestSessionLogEndpoints(t *testing.T) {
	ts, srv := newTestServer(t, testConfig())

	srv.log.Append(sessionlog.Entry{
		Timestamp:      time.Now(),
		Lang:           "en",
		Seq:            1,
		LatencyMS:      10,
		SourceText:     "ciao, mondo",
		TranslatedText: "hello, world",
	})

	resp, err := http.Get(ts.URL + "/session-log")
	if err != nil {
		t.Fatalf("session-log failed: %v", err)
	}
	defer resp.Body.Close()

	var entries []sessionlog.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if len(entries) != 1 || entries[0].TranslatedText != "hello, world" {
		t.Errorf("unexpected entries: %+v", entries)
	}

	csvResp, err := http.Get(ts.URL + "/session-log/csv")
	if err != nil {
		t.Fatalf("session-log/csv failed: %v", err)
	}
	defer csvResp.Body.Close()

	if ct := csvResp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}
	raw, err := io.ReadAll(csvResp.Body)
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if !strings.HasPrefix(string(raw), "ts,lang,seq") {
		t.Errorf("unexpected csv header: %q", string(raw))
	}
	if !strings.Contains(string(raw), `"ciao, mondo"`) {
		t.Errorf("expected quoted source text in csv: %q", string(raw))
	}
}

func TestIngestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.RatePerSecond = 1
	cfg.Ingest.Burst = 1
	ts, _ := newTestServer(t, cfg)

	resp1, _ := postJSON(t, ts.URL+"/ingest", map[string]any{"sourceText": "uno", "lang": "it"})
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("first request should pass, got %d", resp1.StatusCode)
	}

	resp2, body := postJSON(t, ts.URL+"/ingest", map[string]any{"sourceText": "due", "lang": "it"})
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp2.StatusCode)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "rate limit") {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
