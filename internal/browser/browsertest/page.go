// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/browser"
	"github.com/hyperifyio/tablexport/internal/dom"
)

// Page is a browser.Driver over a parsed document. Clicks resolve the
// selector against the document and hand the target to OnClick, which may
// mutate the tree to simulate the page reacting.
type Page struct {
	PageURL  string
	OnClick  func(doc, target *html.Node) error
	OnEscape func(doc *html.Node)

	mu        sync.Mutex
	doc       *html.Node
	clicks    []string
	escapes   int
	snapshots int
	closed    bool
}

var _ browser.Driver = (*Page)(nil)

// New parses markup into a Page. It panics on parse failure.
func New(markup string) *Page {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		panic(err)
	}
	return &Page{doc: doc}
}

// Snapshot returns an independent copy of the current document.
func (p *Page) Snapshot(ctx context.Context) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots++
	return clone(p.doc)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	target := dom.First(p.doc, selector)
	if target == nil {
		return browser.ErrNoElement
	}
	if p.OnClick != nil {
		return p.OnClick(p.doc, target)
	}
	return nil
}

func (p *Page) PressEscape(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapes++
	if p.OnEscape != nil {
		p.OnEscape(p.doc)
	}
	return nil
}

func (p *Page) URL(context.Context) (string, error) { return p.PageURL, nil }

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Mutate runs fn against the live document.
func (p *Page) Mutate(fn func(doc *html.Node)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// Clicks returns the selectors clicked so far.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Escapes returns how many times Escape was pressed.
func (p *Page) Escapes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.escapes
}

// Snapshots returns how many snapshots were taken.
func (p *Page) Snapshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Append parses markup as children of parent and appends them.
func Append(parent *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// RemoveAll detaches every element under doc matching selector.
func RemoveAll(doc *html.Node, selector string) {
	for _, n := range dom.Find(doc, selector) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func clone(doc *html.Node) (*html.Node, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, err
	}
	return html.Parse(&buf)
}
