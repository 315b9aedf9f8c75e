package transcript

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/engine"
)

func TestLoggerWritesPerBattleNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	msg := domain.Message{ID: "m1", Speaker: "DINGZUI", Body: "分工表写得清清楚楚。"}
	logger.Observe(engine.Event{Type: engine.EventThinking, OwnerID: "owner-1", BattleID: "b1", Advisor: advisor.Dingzui, At: time.Now()})
	logger.Observe(engine.Event{Type: engine.EventMessage, OwnerID: "owner-1", BattleID: "b1", Message: &msg, At: time.Now()})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "owner-1", "b1.ndjson"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var first, second Entry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if first.EventType != "thinking" || first.Advisor != "DINGZUI" {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if second.Speaker != "DINGZUI" || second.Content != msg.Body || second.MessageID != "m1" {
		t.Errorf("unexpected second entry: %+v", second)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: false, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Log(Entry{OwnerID: "o", BattleID: "b", EventType: "state"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestLogAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(Config{Enabled: true, Dir: t.TempDir(), QueueSize: 1}, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	logger.Log(Entry{OwnerID: "o", BattleID: "b"})
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestSafeNameKeepsPathsInside(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           "unknown",
		"../../etc":  "______etc",
		"abc-123_XY": "abc-123_XY",
	}
	for in, want := range tests {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}
