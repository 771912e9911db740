package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records one annotate call. The input text itself is never stored,
// only its size.
type Entry struct {
	Timestamp   string         `json:"timestamp"`
	RequestID   string         `json:"request_id,omitempty"`
	Session     string         `json:"session,omitempty"`
	Source      string         `json:"source"`
	TextBytes   int            `json:"text_bytes"`
	Predictions int            `json:"predictions"`
	Emitted     int            `json:"emitted"`
	Tags        map[string]int `json:"tags,omitempty"`
	LatencyMs   float64        `json:"latency_ms"`
	Error       string         `json:"error,omitempty"`
}

type Logger interface {
	Log(entry Entry) error
}

type nopLogger struct{}

func (nopLogger) Log(Entry) error { return nil }

// Nop discards every entry.
func Nop() Logger { return nopLogger{} }

type JSONLLogger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create audit log: %w", err)
	}
	_ = f.Close()
	return &JSONLLogger{path: path, now: time.Now}, nil
}

func (l *JSONLLogger) Path() string { return l.path }

func (l *JSONLLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
