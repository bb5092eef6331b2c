package translate

import (
	"context"
	"time"
)

// StubConfig configures the stub translator.
type StubConfig struct {
	// ProcessingDelay simulates gateway latency.
	ProcessingDelay time.Duration
	// Dictionary maps [targetLang][sourceText] to a fixed translation.
	// Missing entries fall back to "[lang] " + sourceText.
	Dictionary map[string]map[string]string
}

// Stub is a deterministic Translator for development and tests.
type Stub struct {
	config StubConfig
}

func NewStub(config StubConfig) *Stub {
	return &Stub{config: config}
}

func (s *Stub) Translate(ctx context.Context, sourceText, targetLang string) (string, error) {
	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if byLang, ok := s.config.Dictionary[targetLang]; ok {
		if translated, ok := byLang[sourceText]; ok {
			return translated, nil
		}
	}
	return "[" + targetLang + "] " + sourceText, nil
}
