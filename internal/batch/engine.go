package batch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/glotcast/relay/internal/sessionlog"
	"github.com/glotcast/relay/internal/stream"
	"github.com/glotcast/relay/internal/translate"
)

const (
	// DefaultDebounce is the silence window after which a batch flushes.
	DefaultDebounce = 50 * time.Millisecond

	// DefaultMaxWait caps a batch's total lifetime, bounding worst-case
	// latency under a continuous fragment burst.
	DefaultMaxWait = 3 * time.Second
)

// Receivers is the fan-out surface the engine consults and delivers to.
type Receivers interface {
	CountForLang(lang string) int
	Broadcast(lang, eventType string, data any) int
}

// Config holds the engine timing knobs.
type Config struct {
	Debounce time.Duration
	MaxWait  time.Duration
}

// pendingBatch accumulates fragments for one language. At most one exists per
// language at any instant; it is moved out of the map atomically at flush.
type pendingBatch struct {
	fragments []string
	lastSeq   int64
	firstTS   int64
	debounce  *time.Timer
	maxWait   *time.Timer
}

// Engine coalesces bursty fragment streams per language into single
// translation calls and fans the results out.
type Engine struct {
	translator translate.Translator
	receivers  Receivers
	log        *sessionlog.Log
	cfg        Config
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingBatch
	flushed atomic.Uint64
}

func NewEngine(translator translate.Translator, receivers Receivers, log *sessionlog.Log, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	return &Engine{
		translator: translator,
		receivers:  receivers,
		log:        log,
		cfg:        cfg,
		logger:     logger,
		pending:    make(map[string]*pendingBatch),
	}
}

// Admit accepts one fragment for a language. It returns false without queueing
// when the language has no live subscribers, so translation calls are never
// spent on text nobody will hear. seq < 0 means the producer sent no sequence
// number. Admit never blocks on translation or delivery.
func (e *Engine) Admit(lang, fragment string, seq, ts int64) bool {
	if e.receivers.CountForLang(lang) == 0 {
		e.logger.Debug("no subscribers, skipping fragment", zap.String("lang", lang))
		return false
	}

	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.pending[lang]
	if !ok {
		b = &pendingBatch{firstTS: ts}
		b.maxWait = time.AfterFunc(e.cfg.MaxWait, func() { e.Flush(lang) })
		e.pending[lang] = b
	}

	b.fragments = append(b.fragments, fragment)
	if seq >= 0 {
		b.lastSeq = seq
	}

	// Each fragment resets the debounce window; the max-wait timer armed at
	// batch creation is never rearmed.
	if b.debounce != nil {
		b.debounce.Stop()
	}
	b.debounce = time.AfterFunc(e.cfg.Debounce, func() { e.Flush(lang) })

	return true
}

// Flush closes the pending batch for a language, translates it, records it,
// and broadcasts the result. Racing timers are harmless: whichever call finds
// the batch takes it, the other is a no-op.
func (e *Engine) Flush(lang string) {
	e.mu.Lock()
	b, ok := e.pending[lang]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, lang)
	if b.debounce != nil {
		b.debounce.Stop()
	}
	b.maxWait.Stop()
	e.mu.Unlock()

	// Translation runs outside the lock: fragments arriving for this language
	// during the call start a fresh batch.
	joined := strings.Join(b.fragments, " ")
	start := time.Now()
	translated, err := e.translator.Translate(context.Background(), joined, lang)
	if err != nil {
		// No retry and no re-enqueue; subscribers see silence for this batch.
		e.logger.Warn("translation failed, dropping batch",
			zap.String("lang", lang),
			zap.Int("fragments", len(b.fragments)),
			zap.Error(err),
		)
		return
	}
	latencyMS := time.Since(start).Milliseconds()

	e.log.Append(sessionlog.Entry{
		Timestamp:      time.Now(),
		Lang:           lang,
		Seq:            b.lastSeq,
		LatencyMS:      latencyMS,
		SourceText:     joined,
		TranslatedText: translated,
	})
	e.flushed.Add(1)

	delivered := e.receivers.Broadcast(lang, stream.EventChunk, stream.Chunk{
		Text: translated,
		TS:   b.firstTS,
		Seq:  b.lastSeq,
	})

	e.logger.Debug("batch flushed",
		zap.String("lang", lang),
		zap.Int("fragments", len(b.fragments)),
		zap.Int64("latencyMs", latencyMS),
		zap.Int("delivered", delivered),
	)
}

// PendingLanguages returns the languages with an open batch.
func (e *Engine) PendingLanguages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	langs := make([]string, 0, len(e.pending))
	for lang := range e.pending {
		langs = append(langs, lang)
	}
	return langs
}

// TotalFlushed returns the number of batches translated and broadcast.
func (e *Engine) TotalFlushed() uint64 {
	return e.flushed.Load()
}

// Close cancels all timers and discards open batches.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for lang, b := range e.pending {
		if b.debounce != nil {
			b.debounce.Stop()
		}
		b.maxWait.Stop()
		delete(e.pending, lang)
	}
}
