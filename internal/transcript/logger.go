// Package transcript writes an append-only NDJSON record of every battle turn.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/quarrel-labs/internal/engine"
)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

const maxOpenFiles = 64

// Entry is one NDJSON line.
type Entry struct {
	Time      time.Time `json:"ts"`
	OwnerID   string    `json:"owner_id"`
	BattleID  string    `json:"battle_id"`
	EventType string    `json:"event_type"`
	State     string    `json:"state,omitempty"`
	Advisor   string    `json:"advisor,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Content   string    `json:"content,omitempty"`
	Notice    string    `json:"notice,omitempty"`
}

// Logger writes entries asynchronously to <dir>/<owner>/<battle>.ndjson.
// Entries are dropped, not blocked on, when the queue is full.
type Logger struct {
	cfg     Config
	logger  *slog.Logger
	queue   chan Entry
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewLogger starts the writer goroutine. A disabled config returns a logger
// whose Log is a no-op.
func NewLogger(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{cfg: cfg, logger: logger, done: make(chan struct{})}
	if !cfg.Enabled {
		close(l.done)
		return l, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("transcript directory is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
		l.cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	l.queue = make(chan Entry, cfg.QueueSize)
	go l.run()
	return l, nil
}

// Log enqueues e.
func (l *Logger) Log(e Entry) {
	if l == nil || l.queue == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("transcript queue full, dropping entries", "dropped", n)
		}
	}
}

// Observe records an engine event. It is an engine.Observer.
func (l *Logger) Observe(ev engine.Event) {
	e := Entry{
		Time:      ev.At.UTC(),
		OwnerID:   ev.OwnerID,
		BattleID:  ev.BattleID,
		EventType: string(ev.Type),
	}
	switch ev.Type {
	case engine.EventState:
		e.State = ev.State.String()
	case engine.EventThinking:
		e.Advisor = ev.Advisor.String()
	case engine.EventMessage:
		if ev.Message != nil {
			e.MessageID = ev.Message.ID
			e.Speaker = ev.Message.Speaker
			e.Content = ev.Message.Body
		}
	case engine.EventNotice:
		if ev.Notice != nil {
			e.Notice = string(ev.Notice.Kind)
			e.Content = ev.Notice.Text
		}
	}
	l.Log(e)
}

// Dropped returns the number of entries discarded.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close drains the queue and stops the writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	if !l.closed && l.queue != nil {
		close(l.queue)
	}
	l.closed = true
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	files := make(map[string]*os.File)
	closeAll := func() {
		for path, f := range files {
			if err := f.Close(); err != nil {
				l.logger.Warn("failed to close transcript file", "path", path, "error", err)
			}
			delete(files, path)
		}
	}
	defer closeAll()

	for e := range l.queue {
		path := l.path(e)
		f, ok := files[path]
		if !ok {
			if len(files) >= maxOpenFiles {
				closeAll()
			}
			var err error
			f, err = openAppend(path)
			if err != nil {
				l.logger.Warn("failed to open transcript file", "path", path, "error", err)
				continue
			}
			files[path] = f
		}
		line, err := json.Marshal(e)
		if err != nil {
			l.logger.Warn("failed to encode transcript entry", "error", err)
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			l.logger.Warn("failed to write transcript entry", "path", path, "error", err)
		}
	}
}

func (l *Logger) path(e Entry) string {
	return filepath.Join(l.cfg.Dir, safeName(e.OwnerID), safeName(e.BattleID)+".ndjson")
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// safeName keeps path segments inside the transcript directory.
func safeName(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
