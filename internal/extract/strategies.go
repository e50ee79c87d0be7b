package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/dom"
)

const (
	maxLeafText       = 200
	minColonKey       = 2
	maxColonKey       = 49
	minSectionText    = 100
	maxSectionText    = 999
	maxSectionLineKey = 29
)

// strategy contributes to a container's data without overwriting fields
// set by an earlier strategy.
type strategy struct {
	name  string
	apply func(root *html.Node, data *ContainerData)
}

var strategies = []strategy{
	{name: "labeled_figures", apply: labeledFigures},
	{name: "embedded_tables", apply: embeddedTables},
	{name: "colon_scan", apply: colonScan},
	{name: "form_controls", apply: formControls},
	{name: "definition_lists", apply: definitionLists},
	{name: "section_blocks", apply: sectionBlocks},
}

func (s strategy) run(root *html.Node, data *ContainerData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", s.name, r)
		}
	}()
	s.apply(root, data)
	return nil
}

func labeledFigures(root *html.Node, data *ContainerData) {
	labeledPairs(root)(func(k, v string) bool {
		data.ExtractedFields.SetIfAbsent(k, v)
		return true
	})
}

// labeledPairs yields bold label to sibling text pairs in document order.
func labeledPairs(root *html.Node) func(yield func(string, string) bool) {
	return func(yield func(string, string) bool) {
		for _, label := range dom.Find(root, "strong, b") {
			k, v, ok := labeledPair(label)
			if !ok {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

func labeledPair(label *html.Node) (string, string, bool) {
	parent := label.Parent
	if parent == nil || parent.Type != html.ElementNode {
		return "", "", false
	}
	labelText := dom.CleanText(label)
	key := trimLabel(labelText)
	if key == "" {
		return "", "", false
	}
	parentText := dom.CleanText(parent)
	value := strings.Replace(parentText, labelText, "", 1)
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), ":"))
	if value == "" || value == "-" {
		return "", "", false
	}
	return key, value, true
}

// trimLabel strips surrounding space, a trailing colon and a required-field star.
func trimLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "*")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ":"))
	return s
}

const embeddedTableSelector = `table, mat-table, .mat-table, [role="grid"], [role="table"]`

func embeddedTables(root *html.Node, data *ContainerData) {
	for _, t := range dom.Find(root, embeddedTableSelector) {
		rule := mambuRule
		if dom.Tag(t) == "mat-table" || dom.HasClass(t, "mat-table") || len(dom.Find(t, nucleusRule.cells)) > 0 {
			rule = nucleusRule
		}
		parsed := rule.parse(context.Background(), t, nil)
		if len(parsed.rows) == 0 {
			continue
		}
		rows := make([]Fields, len(parsed.rows))
		for i, r := range parsed.rows {
			rows[i] = r.Fields
		}
		data.Tables = append(data.Tables, Table{Headers: parsed.headers, Rows: rows})
	}
}

// keyValueLine matches "key: value" text in colon scans and section lines.
var keyValueLine = regexp.MustCompile(`^([^:]+):\s*(.+)$`)

func colonScan(root *html.Node, data *ContainerData) {
	for _, n := range dom.Find(root, "*") {
		if dom.ElementChildren(n) > 2 {
			continue
		}
		text := dom.CleanText(n)
		if text == "" || utf8.RuneCountInString(text) >= maxLeafText {
			continue
		}
		m := keyValueLine.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		key := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if n := utf8.RuneCountInString(key); n < minColonKey || n > maxColonKey || value == "" {
			continue
		}
		data.ExtractedFields.SetIfAbsent(key, value)
	}
}

func formControls(root *html.Node, data *ContainerData) {
	doc := documentOf(root)
	for _, c := range dom.Find(root, "input, select, textarea") {
		if dom.Tag(c) == "input" {
			switch strings.ToLower(dom.AttrOr(c, "type", "text")) {
			case "hidden", "submit", "button", "reset", "image", "file":
				continue
			}
		}
		label := controlLabel(doc, c)
		if label == "" {
			continue
		}
		value := controlValue(c)
		if value == "" {
			continue
		}
		data.ExtractedFields.SetIfAbsent(label, value)
	}
}

func documentOf(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// controlLabel prefers an associated label element, then placeholder,
// aria-label and name.
func controlLabel(doc, c *html.Node) string {
	if id, ok := dom.Attr(c, "id"); ok && id != "" {
		for _, l := range dom.Find(doc, "label") {
			if dom.AttrOr(l, "for", "") == id {
				if s := trimLabel(dom.CleanText(l)); s != "" {
					return s
				}
			}
		}
	}
	for p := c.Parent; p != nil; p = p.Parent {
		if dom.Tag(p) == "label" {
			if s := trimLabel(dom.CleanText(p)); s != "" {
				return s
			}
			break
		}
	}
	for _, attr := range []string{"placeholder", "aria-label", "name"} {
		if s := strings.TrimSpace(dom.AttrOr(c, attr, "")); s != "" {
			return s
		}
	}
	return ""
}

func controlValue(c *html.Node) string {
	if v, ok := dom.Attr(c, dom.ValueMarker); ok {
		return strings.TrimSpace(v)
	}
	switch dom.Tag(c) {
	case "textarea":
		return strings.TrimSpace(dom.Text(c))
	case "select":
		options := dom.Find(c, "option")
		for _, o := range options {
			if _, ok := dom.Attr(o, "selected"); ok {
				return dom.CleanText(o)
			}
		}
		if len(options) > 0 {
			return dom.CleanText(options[0])
		}
		return ""
	}
	switch strings.ToLower(dom.AttrOr(c, "type", "text")) {
	case "checkbox", "radio":
		_, checked := dom.Attr(c, "checked")
		return strconv.FormatBool(checked)
	}
	return strings.TrimSpace(dom.AttrOr(c, "value", ""))
}

func definitionLists(root *html.Node, data *ContainerData) {
	for _, dl := range dom.Find(root, "dl") {
		terms := dom.Find(dl, "dt")
		defs := dom.Find(dl, "dd")
		for i := 0; i < len(terms) && i < len(defs); i++ {
			k := trimLabel(dom.CleanText(terms[i]))
			v := dom.CleanText(defs[i])
			if k == "" || v == "" {
				continue
			}
			data.ExtractedFields.SetIfAbsent(k, v)
		}
	}
}

const (
	sectionSelector      = "section, fieldset, mat-card, .card, .section, .panel, mat-expansion-panel"
	sectionTitleSelector = "h1, h2, h3, h4, h5, h6, legend, mat-card-title, .title, .section-title, .panel-title"
)

func sectionBlocks(root *html.Node, data *ContainerData) {
	for i, s := range dom.Find(root, sectionSelector) {
		size := utf8.RuneCountInString(dom.CleanText(s))
		if size < minSectionText || size > maxSectionText {
			continue
		}
		var fields Fields
		for _, line := range strings.Split(dom.BlockText(s), "\n") {
			m := keyValueLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			key := strings.TrimSpace(m[1])
			value := strings.TrimSpace(m[2])
			if key == "" || value == "" || utf8.RuneCountInString(key) > maxSectionLineKey {
				continue
			}
			fields.SetIfAbsent(key, value)
		}
		if fields.Len() == 0 {
			continue
		}
		data.Sections = append(data.Sections, Section{Name: sectionName(s, i), Fields: fields})
	}
}

func sectionName(s *html.Node, idx int) string {
	if t := dom.First(s, sectionTitleSelector); t != nil {
		if name := trimLabel(dom.CleanText(t)); name != "" {
			return name
		}
	}
	return "section_" + strconv.Itoa(idx)
}

// dialogContentSelector is the root a row popup's details are read from.
const dialogContentSelector = ".mat-dialog-content, mat-dialog-content, .mat-mdc-dialog-content"

// DialogContent returns the open dialog's content root, if any is visible.
func DialogContent(root *html.Node) *html.Node {
	for _, n := range dom.Find(root, dialogContentSelector) {
		if dom.Visible(n) {
			return n
		}
	}
	return nil
}

// DialogDetails reads the labeled fields of the open dialog's content
// root. It returns nil when no dialog content is present.
func DialogDetails(root *html.Node) *Fields {
	content := DialogContent(root)
	if content == nil {
		return nil
	}
	var details Fields
	labeledPairs(content)(func(k, v string) bool {
		details.SetIfAbsent(k, v)
		return true
	})
	return &details
}
