package generation

import (
	"strings"
)

// HistoryWindow is the number of trailing messages sent with an advisor request.
const HistoryWindow = 8

// BuildPrompt renders an advisor request into the prompt text sent upstream.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("情景：")
	b.WriteString(req.Scenario)
	b.WriteString("\n对方：")
	b.WriteString(req.OpponentLine)

	history := req.History
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	if len(history) > 0 {
		b.WriteString("\n\n【战况回顾】")
		for _, m := range history {
			b.WriteString("\n")
			b.WriteString(label(req.Labels, m.Speaker))
			b.WriteString("：")
			b.WriteString(m.Body)
		}
	}

	if req.PeerContext != "" {
		b.WriteString("\n\n【各路军师意见】\n")
		b.WriteString(req.PeerContext)
	}
	return b.String()
}

func label(labels map[string]string, speaker string) string {
	if name, ok := labels[speaker]; ok && name != "" {
		return name
	}
	return speaker
}
