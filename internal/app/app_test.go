package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/browser"
	"github.com/hyperifyio/tablexport/internal/browser/browsertest"
	"github.com/hyperifyio/tablexport/internal/dom"
	"github.com/hyperifyio/tablexport/internal/extract"
)

const mambuPage = `<!DOCTYPE html>
<!-- saved from url=(0036)https://acme.mambu.com/#clients/list -->
<html><body>
<table aria-label="Client list">
  <thead><tr><th>Name</th><th>State</th></tr></thead>
  <tbody><tr><td>Ann</td><td>Active</td></tr><tr><td> </td><td></td></tr></tbody>
</table>
</body></html>`

const nucleusPage = `<html><body>
<mat-table>
  <mat-header-row><mat-header-cell>Account</mat-header-cell><mat-header-cell></mat-header-cell></mat-header-row>
  <mat-row><mat-cell>A-7</mat-cell><mat-cell><mat-icon>visibility</mat-icon></mat-cell></mat-row>
</mat-table>
</body></html>`

func testConfig(t *testing.T, mode string, inputs ...string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.Inputs = inputs
	cfg.OutputDir = t.TempDir()
	cfg.DisableClipboard = true
	cfg.CacheDir = ""
	cfg.OpenDelay, cfg.CloseDelay, cfg.PollInterval = 0, 0, 0
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode output: %v\n%s", err, b)
	}
	return out
}

func TestRun_FileInputWritesMambuExport(t *testing.T) {
	in := writeFile(t, t.TempDir(), "clients.html", mambuPage)
	cfg := testConfig(t, "mambu", in)
	cfg.Summary = true

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	var summary bytes.Buffer
	a.Stdout = &summary
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := readJSON(t, filepath.Join(cfg.OutputDir, "mambu_export.json"))
	rows, ok := out["Client_list"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one non-blank row under Client_list, got %v", out)
	}
	if !strings.Contains(summary.String(), "Client_list") {
		t.Fatalf("summary missing table:\n%s", summary.String())
	}
}

func TestRun_EmptyPageReturnsErrNoData(t *testing.T) {
	in := writeFile(t, t.TempDir(), "empty.html", `<html><body><p>nothing</p></body></html>`)
	cfg := testConfig(t, "mambu", in)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Run(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "mambu_export.json")); !os.IsNotExist(err) {
		t.Fatalf("no file should be written for an empty result")
	}
}

func TestRun_MultipleInputsArePrefixed(t *testing.T) {
	dir := t.TempDir()
	a1 := writeFile(t, dir, "first.html", mambuPage)
	a2 := writeFile(t, dir, "second.html", mambuPage)
	cfg := testConfig(t, "mambu", a1, a2)
	cfg.OutputPDFPath = filepath.Join(cfg.OutputDir, "report.pdf")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"first_mambu_export.json", "second_mambu_export.json", "first_report.pdf", "second_report.pdf"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestRun_URLInputUsesFetchAndCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Cookie") != "sid=1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(nucleusPage))
	}))
	defer srv.Close()

	cfg := testConfig(t, "nucleus", srv.URL+"/accounts")
	cfg.Cookie = "sid=1"
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := readJSON(t, filepath.Join(cfg.OutputDir, "nucleus_export.json"))
	rows, ok := out["nucleus_table_0"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("unexpected output: %v", out)
	}
	row := rows[0].(map[string]any)
	if row["Account"] != "A-7" || row["col1"] != "visibility" {
		t.Fatalf("unexpected row: %v", row)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("hits = %d", got)
	}
	entries, _ := os.ReadDir(cfg.CacheDir)
	if len(entries) == 0 {
		t.Fatalf("expected snapshot cache entries")
	}
}

func TestRun_MissingFileFails(t *testing.T) {
	cfg := testConfig(t, "mambu", filepath.Join(t.TempDir(), "nope.html"))
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	err = a.Run(context.Background())
	if err == nil || errors.Is(err, ErrNoData) {
		t.Fatalf("expected a read error, got %v", err)
	}
}

func TestRun_BrowserNucleusPopup(t *testing.T) {
	page := browsertest.New(nucleusPage)
	page.PageURL = "https://bank.nucleus.example/accounts"
	page.OnClick = func(doc, target *html.Node) error {
		if _, ok := dom.Attr(target, "mat-dialog-close"); ok {
			browsertest.RemoveAll(doc, "mat-dialog-container")
			return nil
		}
		return browsertest.Append(dom.First(doc, "body"),
			`<mat-dialog-container><mat-dialog-content><p><strong>Opened:</strong> 2024-01-02</p></mat-dialog-content><button mat-dialog-close>x</button></mat-dialog-container>`)
	}

	cfg := testConfig(t, "nucleus-popup", page.PageURL)
	cfg.Source = SourceBrowser
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	var opened browser.Options
	a.OpenDriver = func(_ context.Context, opts browser.Options) (browser.Driver, error) {
		opened = opts
		return page, nil
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if opened.URL != page.PageURL || !opened.Headless {
		t.Fatalf("driver options not passed: %+v", opened)
	}
	if !page.Closed() {
		t.Fatalf("driver not closed")
	}

	out := readJSON(t, filepath.Join(cfg.OutputDir, "nucleus_popup_export.json"))
	rows := out["nucleus_table_0"].([]any)
	details, ok := rows[0].(map[string]any)["popup_details"].(map[string]any)
	if !ok || details["Opened"] != "2024-01-02" {
		t.Fatalf("popup details missing: %v", rows[0])
	}
}

func TestRun_BrowserCapturePopup(t *testing.T) {
	page := browsertest.New(`<html><body><div role="dialog"><p><b>Reference:</b> R-1</p></div></body></html>`)
	cfg := testConfig(t, "capture-popup")
	cfg.Source = SourceBrowser
	cfg.ControlURL = "ws://127.0.0.1:9222/devtools/browser/x"
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	a.OpenDriver = func(context.Context, browser.Options) (browser.Driver, error) { return page, nil }
	a.Now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := readJSON(t, filepath.Join(cfg.OutputDir, "popup_capture_export.json"))
	if out["capture_timestamp"] != "2024-05-06T07:08:09.000Z" || out["extraction_method"] != "dialog_selector_scan" {
		t.Fatalf("unexpected envelope: %v", out)
	}
	data := out["popup_data"].(map[string]any)
	popup := data["popup_0"].(map[string]any)
	fields := popup["extracted_fields"].(map[string]any)
	if fields["Reference"] != "R-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestRun_BrowserCaptureWithoutPopup(t *testing.T) {
	page := browsertest.New(`<html><body><p>closed</p></body></html>`)
	cfg := testConfig(t, "capture-popup", "https://acme.mambu.com/")
	cfg.Source = SourceBrowser
	cfg.Summary = true
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	var summary bytes.Buffer
	a.Stdout = &summary
	a.OpenDriver = func(context.Context, browser.Options) (browser.Driver, error) { return page, nil }
	if err := a.Run(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if !strings.Contains(summary.String(), extract.NoPopupFound) {
		t.Fatalf("summary should report the missing popup:\n%s", summary.String())
	}
	if entries, _ := os.ReadDir(cfg.OutputDir); len(entries) != 0 {
		t.Fatalf("nothing should be written, found %d files", len(entries))
	}
}

func TestRun_BrowserOpenFailure(t *testing.T) {
	cfg := testConfig(t, "mambu", "https://acme.mambu.com/")
	cfg.Source = SourceBrowser
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	a.OpenDriver = func(context.Context, browser.Options) (browser.Driver, error) { return nil, browser.ErrNoPage }
	if err := a.Run(context.Background()); !errors.Is(err, browser.ErrNoPage) {
		t.Fatalf("expected ErrNoPage, got %v", err)
	}
}

func TestResolveSite(t *testing.T) {
	m, n := []string{"mambu"}, []string{"nucleus"}
	cases := []struct {
		name     string
		explicit extract.Site
		url      string
		mode     Mode
		want     extract.Site
	}{
		{"explicit wins", extract.SiteNucleus, "https://x.mambu.com", ModeMambu, extract.SiteNucleus},
		{"url detection", extract.SiteUnknown, "https://x.mambu.com", ModeNucleus, extract.SiteMambu},
		{"mode implied", extract.SiteUnknown, "", ModeNucleusPopup, extract.SiteNucleus},
		{"capture unknown", extract.SiteUnknown, "https://other", ModeCapturePopup, extract.SiteUnknown},
	}
	for _, c := range cases {
		if got := ResolveSite(c.explicit, c.url, c.mode, m, n); got != c.want {
			t.Fatalf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDispatch_FallsBackByMode(t *testing.T) {
	mambuDoc, _ := html.Parse(strings.NewReader(mambuPage))
	nucleusDoc, _ := html.Parse(strings.NewReader(nucleusPage))
	ctx := context.Background()

	// A nucleus-mode request on a mambu page reads plain tables.
	res := Dispatch(ctx, ModeNucleus, extract.SiteMambu, mambuDoc, nil).(*extract.Result)
	if _, ok := res.Get("Client_list"); !ok {
		t.Fatalf("expected mambu fallback, got keys %v", res.Keys())
	}
	// A mambu-mode request on a nucleus page reads material tables without popups.
	res = Dispatch(ctx, ModeMambu, extract.SiteNucleus, nucleusDoc, nil).(*extract.Result)
	if _, ok := res.Get("nucleus_table_0"); !ok {
		t.Fatalf("expected nucleus fallback, got keys %v", res.Keys())
	}
	// Unknown site defaults to plain tables.
	res = Dispatch(ctx, ModeNucleusPopup, extract.SiteUnknown, mambuDoc, nil).(*extract.Result)
	if res.Empty() {
		t.Fatalf("expected mambu tables for unknown site")
	}
	if _, ok := Dispatch(ctx, ModeCapturePopup, extract.SiteMambu, mambuDoc, nil).(*extract.PopupCapture); !ok {
		t.Fatalf("capture mode should return a popup capture")
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"mambu", "nucleus", "Nucleus-Popup", " capture-popup "} {
		if _, err := ParseMode(s); err != nil {
			t.Fatalf("ParseMode(%q): %v", s, err)
		}
	}
	if _, err := ParseMode("tables"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestPageURLHint(t *testing.T) {
	cases := map[string]string{
		mambuPage: "https://acme.mambu.com/#clients/list",
		`<html><head><link rel="canonical" href="https://n.nucleus.io/a"></head><body></body></html>`: "https://n.nucleus.io/a",
		`<html><head><base href="https://b.example/"></head><body></body></html>`:                       "https://b.example/",
		`<html><body><!-- saved from url=(0010)https://late --></body></html>`:                            "",
	}
	for markup, want := range cases {
		doc, _ := html.Parse(strings.NewReader(markup))
		if got := pageURLHint(doc); got != want {
			t.Fatalf("pageURLHint = %q, want %q", got, want)
		}
	}
}

func TestInputPrefix(t *testing.T) {
	cases := map[string]string{
		"/tmp/saved/loans page.html":          "loans_page",
		"https://acme.mambu.com/api/clients": "acme.mambu.com_clients",
		"https://acme.mambu.com/":             "acme.mambu.com",
	}
	for in, want := range cases {
		if got := inputPrefix(in); got != want {
			t.Fatalf("inputPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
