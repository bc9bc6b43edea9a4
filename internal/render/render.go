// Package render implements the `recall render` command: an offline HTML
// export of the current lesson/handoff corpus, repurposing the teacher's
// goldmark+GFM dependency (internal/web/server.go's renderMarkdown
// template func, there used for a live dashboard) for batch export instead.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/pbrown/claude-recall/internal/models"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
	),
)

// ToHTML converts GFM Markdown (a lesson or handoff body) to an HTML
// fragment, same rendering engine and extension set as the teacher's
// dashboard.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

const pageHeader = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>claude-recall export</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; }
section { border-bottom: 1px solid #ddd; padding: 1rem 0; }
h2 { margin-bottom: 0.25rem; }
.meta { color: #666; font-size: 0.85rem; }
.badge { display: inline-block; padding: 0 0.4rem; border-radius: 3px; background: #eee; margin-right: 0.3rem; }
</style>
</head>
<body>
`

const pageFooter = `</body>
</html>
`

// Page renders the full lesson+handoff corpus as a single static HTML
// document.
func Page(lessons []*models.Lesson, handoffs []*models.Handoff) (string, error) {
	var sb strings.Builder
	sb.WriteString(pageHeader)

	sb.WriteString("<h1>Lessons</h1>\n")
	for _, l := range lessons {
		body, err := ToHTML(l.Content)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "<section>\n<h2>[%s] %s</h2>\n", html.EscapeString(l.ID), html.EscapeString(l.Title))
		fmt.Fprintf(&sb, "<div class=\"meta\"><span class=\"badge\">%s</span><span class=\"badge\">%s</span> uses=%d velocity=%.2f</div>\n",
			html.EscapeString(l.Level), html.EscapeString(l.Category), l.Uses, l.Velocity)
		sb.WriteString(body)
		sb.WriteString("</section>\n")
	}

	sb.WriteString("<h1>Handoffs</h1>\n")
	for _, h := range handoffs {
		body, err := ToHTML(h.Description)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "<section>\n<h2>[%s] %s</h2>\n", html.EscapeString(h.ID), html.EscapeString(h.Title))
		fmt.Fprintf(&sb, "<div class=\"meta\"><span class=\"badge\">%s</span><span class=\"badge\">%s</span></div>\n",
			html.EscapeString(h.Status), html.EscapeString(h.Phase))
		sb.WriteString(body)
		sb.WriteString("</section>\n")
	}

	sb.WriteString(pageFooter)
	return sb.String(), nil
}
