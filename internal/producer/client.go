package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is the producer-side client for the relay's ingest API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// IngestResult is the relay's immediate acknowledgement. Accepted is false
// when nobody is subscribed to the language, in which case the fragment was
// acknowledged but not queued.
type IngestResult struct {
	OK              bool   `json:"ok"`
	HasReceiver     bool   `json:"hasReceiver"`
	ClientCount     int    `json:"clientCount"`
	Accepted        bool   `json:"accepted"`
	SuggestedPreset string `json:"suggestedPreset"`
	Error           string `json:"error"`
}

// Status mirrors the relay's /status document.
type Status struct {
	Clients               int            `json:"clients"`
	ByLang                map[string]int `json:"byLang"`
	UptimeSec             int64          `json:"uptime"`
	TotalChunksTranslated uint64         `json:"totalChunksTranslated"`
	SessionLogEntries     int            `json:"sessionLogEntries"`
	PendingLangs          []string       `json:"pendingLangs"`
}

func NewClient(baseURL string, ratePerSec int, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		logger:     logger,
	}
}

// Publish posts one fragment. A 400 response surfaces the relay's reason.
func (c *Client) Publish(ctx context.Context, lang, sourceText string, seq int64) (*IngestResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"sourceText": sourceText,
		"lang":       lang,
		"seq":        seq,
		"ts":         time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("publishing fragment",
		zap.String("lang", lang),
		zap.Int64("seq", seq),
		zap.Int("len", len(sourceText)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading response: %w", readErr)
	}

	var result IngestResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fragment rejected (%d): %s", resp.StatusCode, result.Error)
	}

	return &result, nil
}

// Status fetches the relay's observability document.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &status, nil
}
