package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/dom"
)

// RowExpander opens, reads and closes the detail popup of one data row.
// It returns false when the row has no popup or the popup yielded nothing.
type RowExpander interface {
	ExpandRow(ctx context.Context, row *html.Node) (*Fields, bool)
}

// TableOptions selects the discovery rule and optional popup expansion.
type TableOptions struct {
	Site          Site
	IncludePopups bool
	Expander      RowExpander
}

// tableRule is the selector set that recognises one kind of table markup.
type tableRule struct {
	name      string
	tables    string
	headers   string
	dataRows  string
	allRows   string
	cells     string
	keyPrefix string
}

var mambuRule = tableRule{
	name:      "html",
	tables:    "table",
	headers:   "thead th",
	dataRows:  "tbody tr",
	allRows:   "tr",
	cells:     "td",
	keyPrefix: "table_",
}

var nucleusRule = tableRule{
	name:      "material",
	tables:    `mat-table, .mat-table, table[role="grid"]`,
	headers:   `mat-header-cell, .mat-header-cell, th[role="columnheader"]`,
	dataRows:  `mat-row:not(.mat-header-row), .mat-row:not(.mat-header-row), tr[role="row"]:not(:first-child)`,
	allRows:   `mat-row:not(.mat-header-row), .mat-row:not(.mat-header-row), tr[role="row"]:not(:first-child)`,
	cells:     `mat-cell, .mat-cell, td[role="gridcell"]`,
	keyPrefix: "nucleus_table_",
}

func ruleFor(site Site) tableRule {
	if site == SiteNucleus {
		return nucleusRule
	}
	return mambuRule
}

// ExtractTables discovers every table under root using the site's rule and
// returns the non-empty ones keyed by label or position. A table that fails
// to parse is logged and skipped.
func ExtractTables(ctx context.Context, root *html.Node, opts TableOptions) *Result {
	rule := ruleFor(opts.Site)
	var expander RowExpander
	if opts.IncludePopups {
		expander = opts.Expander
	}
	res := NewResult()
	for idx, table := range dom.Find(root, rule.tables) {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("remaining", idx).Msg("table extraction interrupted")
			break
		}
		key := tableKey(table, rule.keyPrefix, idx)
		parsed, err := rule.safeParse(ctx, table, expander)
		if err != nil {
			log.Warn().Err(err).Str("table", key).Msg("table extraction failed; skipping")
			continue
		}
		if len(parsed.rows) == 0 {
			log.Debug().Str("table", key).Msg("table has no data rows")
			continue
		}
		res.Set(key, parsed.rows)
	}
	return res
}

// tableKey prefers the aria-label and falls back to a positional name.
func tableKey(table *html.Node, prefix string, idx int) string {
	if aria, ok := dom.Attr(table, "aria-label"); ok {
		if label := strings.Join(strings.Fields(aria), "_"); label != "" {
			return label
		}
	}
	return prefix + strconv.Itoa(idx)
}

type parsedTable struct {
	headers []string
	rows    []Record
}

func (r tableRule) safeParse(ctx context.Context, table *html.Node, expander RowExpander) (pt parsedTable, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s table: %v", r.name, rec)
		}
	}()
	return r.parse(ctx, table, expander), nil
}

// parse classifies the table as headered or unheadered and builds records.
func (r tableRule) parse(ctx context.Context, table *html.Node, expander RowExpander) parsedTable {
	headerCells := dom.Find(table, r.headers)
	if len(headerCells) == 0 {
		return parsedTable{headers: []string{}, rows: r.parseKeyValue(ctx, table, expander)}
	}
	headers := make([]string, len(headerCells))
	for i, h := range headerCells {
		headers[i] = dom.CleanText(h)
	}
	var rows []Record
	for i, tr := range dom.Find(table, r.dataRows) {
		cells := dom.Find(tr, r.cells)
		var rec Record
		for j, h := range headers {
			if h == "" {
				h = "col" + strconv.Itoa(j)
			}
			value := ""
			if j < len(cells) {
				value = dom.CleanText(cells[j])
			}
			rec.Fields.Set(h, value)
		}
		expandInto(ctx, expander, tr, i, &rec)
		if !rec.Blank() {
			rows = append(rows, rec)
		}
	}
	return parsedTable{headers: headers, rows: rows}
}

// parseKeyValue reads a headerless table as two-column key/value rows.
func (r tableRule) parseKeyValue(ctx context.Context, table *html.Node, expander RowExpander) []Record {
	var rows []Record
	for i, tr := range dom.Find(table, r.allRows) {
		cells := dom.Find(tr, r.cells)
		if len(cells) < 2 {
			continue
		}
		var rec Record
		rec.Fields.Set(dom.CleanText(cells[0]), dom.CleanText(cells[1]))
		expandInto(ctx, expander, tr, i, &rec)
		if !rec.Blank() {
			rows = append(rows, rec)
		}
	}
	return rows
}

func expandInto(ctx context.Context, expander RowExpander, row *html.Node, idx int, rec *Record) {
	if expander == nil || ctx.Err() != nil {
		return
	}
	details, ok := expander.ExpandRow(ctx, row)
	if !ok || details == nil || details.Len() == 0 {
		return
	}
	log.Debug().Int("row", idx+1).Int("fields", details.Len()).Msg("attached popup details")
	rec.PopupDetails = details
}
