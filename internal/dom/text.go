// Package dom holds small helpers over parsed HTML snapshots: text
// normalisation, visibility checks, selector queries and CSS paths.
package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Text returns the concatenated text of n and its descendants, skipping
// script-like elements. It mirrors textContent without any normalisation.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectRaw(&b, n)
	return b.String()
}

func collectRaw(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipText(n.Data) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectRaw(b, c)
	}
}

func skipText(tag string) bool {
	switch strings.ToLower(tag) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// CleanText returns the trimmed, whitespace-collapsed, NFC-normalised text of n.
func CleanText(n *html.Node) string {
	return Collapse(Text(n))
}

// Collapse trims s and folds every run of Unicode whitespace into one space.
func Collapse(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// BlockText renders n as lines: block-level elements start new lines and
// each line is whitespace-collapsed. Blank lines are dropped.
func BlockText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectBlocks(&b, n)
	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if c := Collapse(line); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, "\n")
}

func collectBlocks(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		return
	}
	block := false
	if n.Type == html.ElementNode {
		if skipText(n.Data) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "br":
			b.WriteString("\n")
			return
		case "p", "div", "li", "tr", "dt", "dd", "section", "fieldset", "legend",
			"h1", "h2", "h3", "h4", "h5", "h6", "mat-card", "mat-grid-tile",
			"mat-card-title", "mat-card-content", "figure", "header", "footer", "table":
			block = true
			b.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectBlocks(b, c)
	}
	if block {
		b.WriteString("\n")
	}
}
