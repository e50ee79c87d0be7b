package extract

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/dom"
)

// NoPopupFound is the sentinel message returned when no dialog is open.
const NoPopupFound = "No open popup found"

// popupSelectors lists dialog markup in priority order.
var popupSelectors = []string{
	"mat-dialog-container",
	".mat-dialog-container",
	".mat-mdc-dialog-container",
	`[role="dialog"]`,
	`[role="alertdialog"]`,
	`[aria-modal="true"]`,
	".modal.show",
	".modal-dialog",
	".modal-content",
	".cdk-overlay-pane",
	".popup",
	".dialog",
}

// Table is a table found inside a popup.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Fields `json:"rows"`
}

// Section is a group of key/value lines read from one block of a popup.
type Section struct {
	Name   string `json:"name"`
	Fields Fields `json:"fields"`
}

// ContainerData holds everything read from one popup container.
type ContainerData struct {
	ExtractedFields Fields
	Tables          []Table
	Sections        []Section
	Error           string
}

// Equal compares two containers field by field, including order.
func (c ContainerData) Equal(o ContainerData) bool {
	if c.Error != o.Error || !c.ExtractedFields.Equal(o.ExtractedFields) {
		return false
	}
	if len(c.Tables) != len(o.Tables) || len(c.Sections) != len(o.Sections) {
		return false
	}
	for i, t := range c.Tables {
		if !slices.Equal(t.Headers, o.Tables[i].Headers) || len(t.Rows) != len(o.Tables[i].Rows) {
			return false
		}
		for j, r := range t.Rows {
			if !r.Equal(o.Tables[i].Rows[j]) {
				return false
			}
		}
	}
	for i, s := range c.Sections {
		if s.Name != o.Sections[i].Name || !s.Fields.Equal(o.Sections[i].Fields) {
			return false
		}
	}
	return true
}

func (c ContainerData) MarshalJSON() ([]byte, error) {
	var w objectWriter
	if c.ExtractedFields.Len() > 0 {
		if err := w.field("extracted_fields", c.ExtractedFields); err != nil {
			return nil, err
		}
	}
	if len(c.Tables) > 0 {
		if err := w.field("tables", c.Tables); err != nil {
			return nil, err
		}
	}
	if len(c.Sections) > 0 {
		if err := w.field("sections", c.Sections); err != nil {
			return nil, err
		}
	}
	if c.Error != "" {
		if err := w.field("extraction_error", c.Error); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

func (c *ContainerData) UnmarshalJSON(data []byte) error {
	*c = ContainerData{}
	return readObject(data, func(key string, raw json.RawMessage) error {
		switch key {
		case "extracted_fields":
			return json.Unmarshal(raw, &c.ExtractedFields)
		case "tables":
			return json.Unmarshal(raw, &c.Tables)
		case "sections":
			return json.Unmarshal(raw, &c.Sections)
		case "extraction_error":
			return json.Unmarshal(raw, &c.Error)
		}
		return nil
	})
}

// PopupCapture maps synthetic container ids to their data. When no
// container was found Error carries NoPopupFound instead.
type PopupCapture struct {
	ids        []string
	containers map[string]ContainerData
	Error      string
}

// NewPopupCapture returns an empty capture.
func NewPopupCapture() *PopupCapture {
	return &PopupCapture{containers: make(map[string]ContainerData)}
}

// Set stores data under id.
func (p *PopupCapture) Set(id string, data ContainerData) {
	if p.containers == nil {
		p.containers = make(map[string]ContainerData)
	}
	if _, ok := p.containers[id]; !ok {
		p.ids = append(p.ids, id)
	}
	p.containers[id] = data
}

// Get returns the data captured for id.
func (p *PopupCapture) Get(id string) (ContainerData, bool) {
	d, ok := p.containers[id]
	return d, ok
}

// IDs returns container ids in capture order.
func (p *PopupCapture) IDs() []string { return append([]string(nil), p.ids...) }

// Len returns the number of captured containers.
func (p *PopupCapture) Len() int { return len(p.ids) }

// Empty reports whether no container was captured.
func (p *PopupCapture) Empty() bool { return p == nil || len(p.ids) == 0 }

// Equal compares ids, order, containers and the error message.
func (p *PopupCapture) Equal(o *PopupCapture) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Error != o.Error || !slices.Equal(p.ids, o.ids) {
		return false
	}
	for _, id := range p.ids {
		if !p.containers[id].Equal(o.containers[id]) {
			return false
		}
	}
	return true
}

func (p *PopupCapture) MarshalJSON() ([]byte, error) {
	var w objectWriter
	if p == nil {
		return w.bytes(), nil
	}
	if len(p.ids) == 0 && p.Error != "" {
		if err := w.field("error", p.Error); err != nil {
			return nil, err
		}
		return w.bytes(), nil
	}
	for _, id := range p.ids {
		if err := w.field(id, p.containers[id]); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

func (p *PopupCapture) UnmarshalJSON(data []byte) error {
	*p = PopupCapture{containers: make(map[string]ContainerData)}
	return readObject(data, func(key string, raw json.RawMessage) error {
		if key == "error" {
			var msg string
			if err := json.Unmarshal(raw, &msg); err == nil {
				p.Error = msg
				return nil
			}
		}
		var d ContainerData
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("container %q: %w", key, err)
		}
		p.Set(key, d)
		return nil
	})
}

// CapturePopups finds every visible dialog container under root and runs
// the capture strategies over each.
func CapturePopups(root *html.Node) *PopupCapture {
	capture := NewPopupCapture()
	containers := findContainers(root)
	if len(containers) == 0 {
		log.Info().Msg("no visible popup container found")
		capture.Error = NoPopupFound
		return capture
	}
	for i, c := range containers {
		id := "popup_" + strconv.Itoa(i)
		data := captureContainer(c)
		if data.Error != "" {
			log.Warn().Str("container", id).Str("error", data.Error).Msg("popup extraction incomplete")
		}
		capture.Set(id, data)
	}
	return capture
}

// findContainers evaluates popupSelectors in order and keeps the outermost
// visible, non-empty element of every nested chain.
func findContainers(root *html.Node) []*html.Node {
	var kept []*html.Node
	for _, sel := range popupSelectors {
		for _, n := range dom.Find(root, sel) {
			if !dom.Visible(n) || dom.CleanText(n) == "" {
				continue
			}
			kept = keepOutermost(kept, n)
		}
	}
	return kept
}

func keepOutermost(kept []*html.Node, n *html.Node) []*html.Node {
	for _, k := range kept {
		if dom.Contains(k, n) {
			return kept
		}
	}
	out := make([]*html.Node, 0, len(kept)+1)
	placed := false
	for _, k := range kept {
		if dom.Contains(n, k) {
			if !placed {
				out = append(out, n)
				placed = true
			}
			continue
		}
		out = append(out, k)
	}
	if !placed {
		out = append(out, n)
	}
	return out
}

func captureContainer(c *html.Node) ContainerData {
	var data ContainerData
	for _, s := range strategies {
		if err := s.run(c, &data); err != nil {
			data.Error = err.Error()
			break
		}
	}
	return data
}
