// Package browser drives a live Chromium tab for snapshotting and for the
// clicks that open and close row popups.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Driver is a live page the extractor can read and poke.
type Driver interface {
	// Snapshot serialises the current DOM, annotated with visibility and
	// live form values, and parses it.
	Snapshot(ctx context.Context) (*html.Node, error)
	// Click dispatches a synthetic click on the element matching selector.
	Click(ctx context.Context, selector string) error
	// PressEscape dispatches an Escape keydown on the document.
	PressEscape(ctx context.Context) error
	// URL returns the page's current location.
	URL(ctx context.Context) (string, error)
	Close() error
}

var (
	// ErrNoElement is returned by Click when the selector matches nothing.
	ErrNoElement = errors.New("no element matches selector")
	// ErrNoPage is returned when an attached browser has no tab matching the
	// requested URL.
	ErrNoPage = errors.New("no matching page in browser")
)

// Options configures how a Driver is obtained.
type Options struct {
	// Driver is "rod" (default) or "chromedp".
	Driver string
	// ControlURL attaches to a running browser (DevTools port or ws URL)
	// instead of launching one.
	ControlURL string
	Bin        string
	Headless   bool
	ProfileDir string
	// URL is navigated to in a launched browser; for an attached browser
	// it selects the tab whose location contains it.
	URL         string
	LoadTimeout time.Duration
}

// Open returns a Driver for opts.Driver.
func Open(ctx context.Context, opts Options) (Driver, error) {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	var (
		d   Driver
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "rod":
		d, err = openRod(ctx, opts)
	case "chromedp":
		d, err = openChromedp(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parseSnapshot(markup string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return doc, nil
}
