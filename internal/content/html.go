// File: internal/content/html.go
package content

import (
	"strings"

	"golang.org/x/net/html"
)

// Lines converts a rich HTML description into plain-text lines for the
// composer: one line per <p> element, tags stripped, entities unescaped.
// Markup without paragraphs collapses to a single line of its text content.
func Lines(htmlText string) []string {
	trimmed := strings.TrimSpace(htmlText)
	if trimmed == "" {
		return nil
	}

	root, err := html.Parse(strings.NewReader(trimmed))
	if err != nil {
		// html.Parse is extremely tolerant; if it does fail, fall back to
		// the raw text so the post still carries content.
		return []string{trimmed}
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			if text := strings.TrimSpace(textContent(n)); text != "" {
				lines = append(lines, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(lines) > 0 {
		return lines
	}
	if text := strings.TrimSpace(textContent(root)); text != "" {
		return []string{text}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
