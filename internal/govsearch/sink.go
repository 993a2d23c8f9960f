package govsearch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink appends news records to a jsonl stream, one object per line.
// The stream is append-only; records already written survive any later
// failure (at-least-once append).
type Sink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// OpenSink opens (or creates) the jsonl stream at path in append mode.
func OpenSink(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open news stream %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	// Keep CJK text readable in the artifact.
	enc.SetEscapeHTML(false)
	return &Sink{f: f, enc: enc}, nil
}

// Append writes one record as a single JSON line.
func (s *Sink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("append news record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close news stream: %w", err)
	}
	return nil
}
