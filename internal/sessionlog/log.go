package sessionlog

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"
)

// DefaultCapacity bounds the in-memory record of flushed translations.
const DefaultCapacity = 1000

// Entry is one flushed translation. Entries are never mutated after append.
type Entry struct {
	Timestamp      time.Time `json:"ts"`
	Lang           string    `json:"lang"`
	Seq            int64     `json:"seq"`
	LatencyMS      int64     `json:"latencyMs"`
	SourceText     string    `json:"sourceText"`
	TranslatedText string    `json:"translatedText"`
}

// Log is a bounded append-only record of translations. When full, the oldest
// entry is evicted first.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	start    int // ring head
	count    int
	capacity int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append records one entry, evicting the oldest if the log is at capacity.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < l.capacity {
		l.entries[(l.start+l.count)%l.capacity] = e
		l.count++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % l.capacity
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Entries returns a copy of all retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(l.start+i)%l.capacity])
	}
	return out
}

// WriteCSV writes all retained entries as CSV, oldest first. Text fields are
// quoted by the encoder as needed.
func (l *Log) WriteCSV(w io.Writer) error {
	entries := l.Entries()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "lang", "seq", "latency_ms", "source_text", "translated_text"}); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Lang,
			strconv.FormatInt(e.Seq, 10),
			strconv.FormatInt(e.LatencyMS, 10),
			e.SourceText,
			e.TranslatedText,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
