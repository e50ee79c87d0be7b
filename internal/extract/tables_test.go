package extract

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func parse(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

const headeredMambu = `<html><body>
<table aria-label=" Loan   Accounts ">
  <thead><tr><th>ID</th><th></th><th>Amount</th></tr></thead>
  <tbody>
    <tr><td>L1</td><td>x</td><td>100</td></tr>
    <tr><td>L2</td></tr>
    <tr><td> </td><td></td><td>  </td></tr>
  </tbody>
</table>
</body></html>`

func TestExtractTables_MambuHeadered(t *testing.T) {
	res := ExtractTables(context.Background(), parse(t, headeredMambu), TableOptions{Site: SiteMambu})
	got := marshal(t, res)
	want := `{"Loan_Accounts":[{"ID":"L1","col1":"x","Amount":"100"},{"ID":"L2","col1":"","Amount":""}]}`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestExtractTables_HeaderedRecordsCarryExactlyTheHeaders(t *testing.T) {
	res := ExtractTables(context.Background(), parse(t, headeredMambu), TableOptions{Site: SiteMambu})
	rows, _ := res.Get("Loan_Accounts")
	for i, r := range rows {
		if diff := cmp.Diff([]string{"ID", "col1", "Amount"}, r.Fields.Keys()); diff != "" {
			t.Fatalf("row %d keys (-want +got):\n%s", i, diff)
		}
	}
}

func TestExtractTables_UnheaderedKeyValue(t *testing.T) {
	doc := parse(t, `<html><body>
<table><tr><td>only one cell</td></tr></table>
<table>
  <tr><td>Name</td><td>Ann</td></tr>
  <tr><td>Status</td><td>Active</td><td>ignored</td></tr>
  <tr><td>single</td></tr>
</table>
</body></html>`)
	res := ExtractTables(context.Background(), doc, TableOptions{Site: SiteMambu})
	if diff := cmp.Diff([]string{"table_1"}, res.Keys()); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	got := marshal(t, res)
	want := `{"table_1":[{"Name":"Ann"},{"Status":"Active"}]}`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestExtractTables_Nucleus(t *testing.T) {
	doc := parse(t, `<html><body>
<mat-table aria-label="Accounts">
  <mat-header-row><mat-header-cell>Account</mat-header-cell><mat-header-cell>Balance</mat-header-cell></mat-header-row>
  <mat-row><mat-cell>A-1</mat-cell><mat-cell>5.00</mat-cell></mat-row>
  <mat-row class="mat-header-row"><mat-cell>ignored</mat-cell></mat-row>
</mat-table>
<table role="grid">
  <tr role="row"><th role="columnheader">Key</th></tr>
  <tr role="row"><td role="gridcell">v</td></tr>
</table>
</body></html>`)
	res := ExtractTables(context.Background(), doc, TableOptions{Site: SiteNucleus})
	got := marshal(t, res)
	want := `{"Accounts":[{"Account":"A-1","Balance":"5.00"}],"nucleus_table_1":[{"Key":"v"}]}`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestExtractTables_SiteRulesDoNotMix(t *testing.T) {
	doc := parse(t, headeredMambu)
	if res := ExtractTables(context.Background(), doc, TableOptions{Site: SiteNucleus}); !res.Empty() {
		t.Fatalf("nucleus rule should not read plain tables, got %v", res.Keys())
	}
}

func TestExtractTables_Idempotent(t *testing.T) {
	doc := parse(t, headeredMambu)
	a := ExtractTables(context.Background(), doc, TableOptions{Site: SiteMambu})
	b := ExtractTables(context.Background(), doc, TableOptions{Site: SiteMambu})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("second run differs (-first +second):\n%s", diff)
	}
}

func TestExtractTables_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := ExtractTables(ctx, parse(t, headeredMambu), TableOptions{Site: SiteMambu}); !res.Empty() {
		t.Fatalf("canceled extraction should return nothing")
	}
}

type stubExpander struct {
	calls int
}

func (s *stubExpander) ExpandRow(_ context.Context, row *html.Node) (*Fields, bool) {
	s.calls++
	var text strings.Builder
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.FirstChild != nil {
			text.WriteString(c.FirstChild.Data)
		}
	}
	if strings.Contains(text.String(), "skip") {
		return nil, false
	}
	var f Fields
	f.Set("Seen", "yes")
	return &f, true
}

const popupNucleus = `<html><body>
<mat-table>
  <mat-header-row><mat-header-cell>ID</mat-header-cell></mat-header-row>
  <mat-row><mat-cell>A</mat-cell></mat-row>
  <mat-row><mat-cell>skip</mat-cell></mat-row>
  <mat-row><mat-cell> </mat-cell></mat-row>
</mat-table>
</body></html>`

func TestExtractTables_AttachesPopupDetails(t *testing.T) {
	exp := &stubExpander{}
	res := ExtractTables(context.Background(), parse(t, popupNucleus), TableOptions{
		Site:          SiteNucleus,
		IncludePopups: true,
		Expander:      exp,
	})
	if exp.calls != 3 {
		t.Fatalf("expander calls = %d, want 3", exp.calls)
	}
	got := marshal(t, res)
	want := `{"nucleus_table_0":[{"ID":"A","popup_details":{"Seen":"yes"}},{"ID":"skip"},{"ID":"","popup_details":{"Seen":"yes"}}]}`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestExtractTables_PopupsOffIgnoresExpander(t *testing.T) {
	exp := &stubExpander{}
	res := ExtractTables(context.Background(), parse(t, popupNucleus), TableOptions{Site: SiteNucleus, Expander: exp})
	if exp.calls != 0 {
		t.Fatalf("expander should not run with popups off")
	}
	rows, _ := res.Get("nucleus_table_0")
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (blank row dropped)", len(rows))
	}
}
