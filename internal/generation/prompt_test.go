package generation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ashureev/quarrel-labs/internal/domain"
)

func TestBuildPromptTruncatesHistory(t *testing.T) {
	t.Parallel()

	var history []domain.Message
	for i := 0; i < HistoryWindow+4; i++ {
		history = append(history, domain.Message{Speaker: "FALI", Body: fmt.Sprintf("line-%02d", i)})
	}
	prompt := BuildPrompt(Request{
		Scenario:     "同事甩锅",
		OpponentLine: "你又不是老板",
		History:      history,
		Labels:       map[string]string{"FALI": "法理狮"},
	})

	if !strings.Contains(prompt, "情景：同事甩锅") || !strings.Contains(prompt, "对方：你又不是老板") {
		t.Fatalf("scenario missing from prompt: %q", prompt)
	}
	if strings.Contains(prompt, "line-03") {
		t.Fatal("expected old history to be truncated")
	}
	if !strings.Contains(prompt, "法理狮：line-04") || !strings.Contains(prompt, "line-11") {
		t.Fatalf("expected labelled recent history: %q", prompt)
	}
}

func TestBuildPromptIncludesPeerContext(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(Request{Scenario: "s", OpponentLine: "o", PeerContext: "【顶嘴侠】反杀"})
	if !strings.Contains(prompt, "【顶嘴侠】反杀") {
		t.Fatalf("peer context missing: %q", prompt)
	}

	prompt = BuildPrompt(Request{Scenario: "s", OpponentLine: "o"})
	if strings.Contains(prompt, "各路军师意见") {
		t.Fatal("peer context header should be omitted when empty")
	}
}
