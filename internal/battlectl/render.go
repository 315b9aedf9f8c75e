package battlectl

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const previewWidth = 40

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0EA5E9"))
	bodyStyle   = lipgloss.NewStyle().PaddingLeft(2)
)

func speakerLabel(reg *advisor.Registry, speaker string) string {
	if speaker == domain.UserSpeaker {
		return userStyle.Render("我方")
	}
	id, err := advisor.ParseID(speaker)
	if err != nil {
		return mutedStyle.Render(speaker)
	}
	p := reg.Profile(id)
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Color))
	label := style.Render(p.DisplayName)
	if p.Title != "" {
		label += " " + mutedStyle.Render(p.Title)
	}
	return label
}

func renderBattle(reg *advisor.Registry, b *domain.Battle) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(b.Scenario))
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%s · %d messages · saved %s",
		b.ID, len(b.Messages), formatTime(b.SavedAt))))
	sb.WriteString("\n")

	for _, m := range b.Messages {
		sb.WriteString("\n")
		sb.WriteString(speakerLabel(reg, m.Speaker))
		sb.WriteString(" ")
		sb.WriteString(mutedStyle.Render(m.ID))
		sb.WriteString("\n")
		sb.WriteString(bodyStyle.Render(m.Body))
		sb.WriteString("\n")
		if m.Attachment != nil {
			sb.WriteString(bodyStyle.Render(mutedStyle.Render(
				fmt.Sprintf("[%s, %d bytes]", m.Attachment.MIMEType, len(m.Attachment.Data)))))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func renderList(battles []*domain.Battle) string {
	if len(battles) == 0 {
		return mutedStyle.Render("no saved battles") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-36s  %-16s  %4s  %s", "ID", "SAVED", "MSGS", "SCENARIO")))
	sb.WriteString("\n")
	for _, b := range battles {
		fmt.Fprintf(&sb, "%-36s  %-16s  %4d  %s\n",
			b.ID, formatTime(b.SavedAt), len(b.Messages), clip(b.Scenario, previewWidth))
	}
	return sb.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
