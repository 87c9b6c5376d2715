package notifier

import (
	"strings"
	"time"
)

// Telegram rejects messages past 4096 bytes; stay under it with headroom for
// the transport's own framing.
const maxStructuredMessageLen = 3800

// MessageSection is one titled block inside an alert.
type MessageSection struct {
	Title string
	Lines []string
}

// bullets renders the section as its title followed by "- " items, dropping
// blank lines. A section with no content renders to nothing.
func (s MessageSection) bullets() []string {
	var out []string
	for _, line := range s.Lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, "- "+escapeFences(text))
		}
	}
	if len(out) == 0 {
		return nil
	}
	if title := strings.TrimSpace(s.Title); title != "" {
		out = append([]string{escapeFences(title)}, out...)
	}
	return out
}

// StructuredMessage is the uniform shape for outbound alerts.
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown produces Markdown text, trimmed to the transport limit.
func (m StructuredMessage) RenderMarkdown() string {
	var blocks []string
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		blocks = append(blocks, header)
	}
	var body []string
	for _, sec := range m.Sections {
		if lines := sec.bullets(); lines != nil {
			body = append(body, strings.Join(lines, "\n"))
		}
	}
	if len(body) > 0 {
		blocks = append(blocks, "```\n"+strings.Join(body, "\n\n")+"\n```")
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		blocks = append(blocks, escapeFences(footer))
	}
	if !m.Timestamp.IsZero() {
		blocks = append(blocks, "time: "+m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	return truncate(strings.Join(blocks, "\n\n"))
}

func truncate(s string) string {
	if len(s) > maxStructuredMessageLen {
		return s[:maxStructuredMessageLen] + "..."
	}
	return s
}

// escapeFences keeps user-supplied text from closing the surrounding code
// fence.
func escapeFences(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
