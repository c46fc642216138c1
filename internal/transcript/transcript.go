// ABOUTME: HTML transcript export for a saved conversation.
// ABOUTME: Agent replies are markdown-rendered; user and director lines stay verbatim.

package transcript

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
)

var markdown = goldmark.New(
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// Export writes an HTML transcript of the given messages. Agent content is
// rendered as markdown; everything else is escaped as-is.
func Export(w io.Writer, title string, messages []chatlog.Message) error {
	if _, err := fmt.Fprintf(w, header, html.EscapeString(title)); err != nil {
		return err
	}

	for _, m := range messages {
		speaker := "User"
		class := "user"
		if m.Role == chatlog.RoleAgent {
			speaker = m.AgentName
			if speaker == "" {
				speaker = m.AgentID
			}
			class = "agent"
		}

		body, err := renderBody(m)
		if err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}

		if _, err := fmt.Fprintf(w,
			"<section class=%q>\n<h2>%s</h2>\n<time>%s</time>\n%s</section>\n",
			class,
			html.EscapeString(speaker),
			m.Timestamp.Format("2006-01-02 15:04:05"),
			body,
		); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, footer)
	return err
}

func renderBody(m chatlog.Message) (string, error) {
	if m.Role != chatlog.RoleAgent {
		return "<p>" + html.EscapeString(m.Content) + "</p>\n", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(m.Content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const header = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
section { margin-bottom: 1.5rem; }
section.user h2 { color: #444; }
section.agent h2 { color: #1a5fb4; }
h2 { font-size: 1rem; margin: 0; }
time { font-size: 0.8rem; color: #888; }
</style>
</head>
<body>
`

const footer = `</body>
</html>
`
