package settings

import "sync"

const (
	// MinTTSRate and MaxTTSRate bound the playback-rate hint clients may store.
	MinTTSRate = 0.5
	MaxTTSRate = 2.0
)

// Visitor holds the per-language playback preferences replayed to late joiners.
type Visitor struct {
	TTSRate float64 `json:"ttsRate"`
}

// Store keeps per-language visitor settings and display-preset suggestions.
// Latest write wins for both.
type Store struct {
	mu       sync.RWMutex
	visitors map[string]Visitor
	presets  map[string]string
}

func NewStore() *Store {
	return &Store{
		visitors: make(map[string]Visitor),
		presets:  make(map[string]string),
	}
}

// SetTTSRate stores the rate for a language, clamped to [MinTTSRate, MaxTTSRate],
// and returns the stored value.
func (s *Store) SetTTSRate(lang string, rate float64) Visitor {
	if rate < MinTTSRate {
		rate = MinTTSRate
	}
	if rate > MaxTTSRate {
		rate = MaxTTSRate
	}

	v := Visitor{TTSRate: rate}
	s.mu.Lock()
	s.visitors[lang] = v
	s.mu.Unlock()
	return v
}

// Visitor returns the stored settings for a language, if any.
func (s *Store) Visitor(lang string) (Visitor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visitors[lang]
	return v, ok
}

// SuggestPreset records the latest display preset suggested for a language.
func (s *Store) SuggestPreset(lang, preset string) {
	s.mu.Lock()
	s.presets[lang] = preset
	s.mu.Unlock()
}

// Preset returns the latest suggested preset for a language, or "".
func (s *Store) Preset(lang string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presets[lang]
}
