package export

import (
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/tablexport/internal/extract"
)

// WritePDF renders res as a plain document: one heading per table and one
// block of "key: value" lines per record.
func WritePDF(res *extract.Result, title, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	for _, key := range res.Keys() {
		rows, _ := res.Get(key)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s (%d rows)", key, len(rows))), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for i, rec := range rows {
			pdf.MultiCell(0, 5, tr(recordText(i+1, rec)), "", "L", false)
			pdf.Ln(2)
		}
		pdf.Ln(3)
	}
	return pdf.OutputFileAndClose(outPath)
}

func recordText(n int, rec extract.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d\n", n)
	writeFields(&b, "", rec.Fields)
	if rec.PopupDetails != nil {
		b.WriteString("details:\n")
		writeFields(&b, "  ", *rec.PopupDetails)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeFields(b *strings.Builder, indent string, f extract.Fields) {
	for _, k := range f.Keys() {
		v, _ := f.Get(k)
		fmt.Fprintf(b, "%s%s: %s\n", indent, k, v)
	}
}
