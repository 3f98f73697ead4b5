package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
)

// FileSink appends escalation events to a JSON-lines file. It is the
// durable last resort when live delivery fails: an operator or a replay
// job drains the file later. Events are only ever appended.
type FileSink struct {
	path string
	mu   sync.Mutex
}

var _ driven.EscalationSink = (*FileSink)(nil)

// NewFileSink creates a sink writing to the given file, creating parent
// directories as needed.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating fallback directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Publish appends one event as a JSON line. The file is opened, synced
// and closed per event so a crash never loses an acknowledged alert.
func (s *FileSink) Publish(_ context.Context, event domain.EscalationEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling escalation event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening fallback log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending escalation event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing fallback log: %w", err)
	}
	return nil
}

// Drain reads back all events in the file, oldest first. Used by replay
// tooling after an outage.
func (s *FileSink) Drain() ([]domain.EscalationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fallback log: %w", err)
	}

	var events []domain.EscalationEvent
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var event domain.EscalationEvent
		if err := decoder.Decode(&event); err != nil {
			return nil, fmt.Errorf("decoding fallback event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
