package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// CSSPath builds a selector that addresses n uniquely within its document
// using an id anchor when one exists and nth-child steps otherwise. The
// same path resolves to the same element in the live page the snapshot was
// taken from, as long as the structure up to n has not changed.
func CSSPath(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	var steps []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id, ok := Attr(cur, "id"); ok && plainIdent(id) {
			steps = append(steps, "#"+id)
			break
		}
		tag := Tag(cur)
		if cur.Parent == nil || cur.Parent.Type != html.ElementNode {
			steps = append(steps, tag)
			break
		}
		steps = append(steps, fmt.Sprintf("%s:nth-child(%d)", tag, childIndex(cur)))
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}

func childIndex(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

// plainIdent reports whether id can be used after '#' without escaping.
func plainIdent(id string) bool {
	if id == "" {
		return false
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r == '-' || (r >= '0' && r <= '9'):
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
