// Package export encodes extraction output and delivers it to the user.
package export

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/hyperifyio/tablexport/internal/extract"
)

// ExtractionMethod names how a PopupEnvelope was produced.
const ExtractionMethod = "dialog_selector_scan"

// Encode renders v as UTF-8 JSON with 2-space indentation. HTML characters
// are written as-is.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PopupEnvelope wraps a popup capture for export.
type PopupEnvelope struct {
	CaptureTimestamp string                `json:"capture_timestamp"`
	PopupData        *extract.PopupCapture `json:"popup_data"`
	ExtractionMethod string                `json:"extraction_method"`
}

// timestampLayout is RFC 3339 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NewPopupEnvelope stamps capture with at in UTC.
func NewPopupEnvelope(capture *extract.PopupCapture, at time.Time) PopupEnvelope {
	return PopupEnvelope{
		CaptureTimestamp: at.UTC().Format(timestampLayout),
		PopupData:        capture,
		ExtractionMethod: ExtractionMethod,
	}
}

var filenames = map[string]string{
	"mambu":         "mambu_export.json",
	"nucleus":       "nucleus_export.json",
	"nucleus-popup": "nucleus_popup_export.json",
	"capture-popup": "popup_capture_export.json",
}

// Filename returns the output file name for mode. A non-empty prefix is
// joined with an underscore so several inputs do not overwrite each other.
func Filename(mode, prefix string) string {
	name, ok := filenames[mode]
	if !ok {
		name = "export.json"
	}
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}
