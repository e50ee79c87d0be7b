package export

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hyperifyio/tablexport/internal/extract"
)

// WriteSummary prints a short overview of out as a terminal table.
func WriteSummary(w io.Writer, out extract.Output) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault

	switch v := out.(type) {
	case *extract.Result:
		t.AppendHeader(table.Row{"Table", "Rows", "Columns", "With details"})
		total := 0
		for _, key := range v.Keys() {
			rows, _ := v.Get(key)
			cols, details := 0, 0
			for _, r := range rows {
				if r.Fields.Len() > cols {
					cols = r.Fields.Len()
				}
				if r.PopupDetails != nil {
					details++
				}
			}
			total += len(rows)
			t.AppendRow(table.Row{key, len(rows), cols, details})
		}
		t.AppendFooter(table.Row{"Total", total, "", ""})
	case *extract.PopupCapture:
		t.AppendHeader(table.Row{"Popup", "Fields", "Tables", "Sections", "Error"})
		for _, id := range v.IDs() {
			c, _ := v.Get(id)
			t.AppendRow(table.Row{id, c.ExtractedFields.Len(), len(c.Tables), len(c.Sections), c.Error})
		}
		if v.Empty() {
			t.AppendRow(table.Row{"-", 0, 0, 0, v.Error})
		}
	default:
		return
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}
