package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// HiddenMarker is set by live browser drivers on elements that have no
// rendered box at snapshot time.
const HiddenMarker = "data-tablexport-hidden"

// ValueMarker carries the live value of form controls into a snapshot.
const ValueMarker = "data-tablexport-value"

// Visible approximates "has a rendered box" for a snapshot. Any element on
// the ancestor chain that is hidden by attribute, inline style or the
// browser marker hides n.
func Visible(n *html.Node) bool {
	if n == nil {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if hiddenElement(cur) {
			return false
		}
	}
	return true
}

func hiddenElement(n *html.Node) bool {
	if _, ok := Attr(n, HiddenMarker); ok {
		return true
	}
	if _, ok := Attr(n, "hidden"); ok {
		return true
	}
	if Tag(n) == "input" && strings.EqualFold(AttrOr(n, "type", ""), "hidden") {
		return true
	}
	style, ok := Attr(n, "style")
	if !ok {
		return false
	}
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden")
}
