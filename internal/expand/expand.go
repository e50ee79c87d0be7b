// Package expand opens the detail popup of each table row on a live page,
// reads it and closes it again, one row at a time.
package expand

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/dom"
	"github.com/hyperifyio/tablexport/internal/extract"
)

// Page is the part of a live browser driver the expander needs.
type Page interface {
	Snapshot(ctx context.Context) (*html.Node, error)
	Click(ctx context.Context, selector string) error
	PressEscape(ctx context.Context) error
}

// Options holds the timing of one row expansion.
type Options struct {
	// OpenDelay is waited after the click before the first snapshot.
	OpenDelay time.Duration
	// CloseDelay is waited after closing before the next row starts.
	CloseDelay time.Duration
	// PollInterval and MaxPolls bound the extra snapshots taken while the
	// dialog content has not rendered yet.
	PollInterval time.Duration
	MaxPolls     int
}

// DefaultOptions matches the delays the target applications need.
func DefaultOptions() Options {
	return Options{
		OpenDelay:    800 * time.Millisecond,
		CloseDelay:   300 * time.Millisecond,
		PollInterval: 250 * time.Millisecond,
		MaxPolls:     3,
	}
}

// Expander implements extract.RowExpander against a live Page.
type Expander struct {
	Page    Page
	Options Options
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	rows int
}

var _ extract.RowExpander = (*Expander)(nil)

const (
	viewControlSelector  = `mat-icon, button, a, [role="button"]`
	closeControlSelector = `[mat-dialog-close], .mat-dialog-close, .close-button, button[aria-label="Close"]`
)

// FindViewControl returns the first visible control in row that opens its
// detail view, or nil.
func FindViewControl(row *html.Node) *html.Node {
	for _, n := range dom.Find(row, viewControlSelector) {
		if looksLikeView(n) && dom.Visible(n) {
			return n
		}
	}
	return nil
}

func looksLikeView(n *html.Node) bool {
	if dom.Tag(n) == "mat-icon" {
		if strings.Contains(dom.CleanText(n), "visibility") || dom.HasClass(n, "cursor-pointer") {
			return true
		}
	}
	for _, attr := range []string{"mattooltip", "title", "aria-label"} {
		if v, ok := dom.Attr(n, attr); ok && strings.Contains(strings.ToLower(v), "view") {
			return true
		}
	}
	return false
}

// ExpandRow runs the open, capture and close sequence for one row. Rows
// without a visible view control are skipped silently; failures are
// logged and reported as no details.
func (e *Expander) ExpandRow(ctx context.Context, row *html.Node) (*extract.Fields, bool) {
	control := FindViewControl(row)
	if control == nil {
		return nil, false
	}
	e.rows++
	run := &rowRun{e: e, idx: e.rows, selector: dom.CSSPath(control)}
	log.Debug().Int("row", run.idx).Str("selector", run.selector).Msg("processing row popup")
	details, err := run.do(ctx)
	if err != nil {
		log.Warn().Err(err).Int("row", run.idx).Str("state", run.state.String()).Msg("row popup failed; continuing")
		return nil, false
	}
	if details == nil || details.Len() == 0 {
		return nil, false
	}
	return details, true
}

func (e *Expander) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type state int

const (
	stateIdle state = iota
	stateTriggered
	stateWaiting
	stateCaptured
	stateClosing
	stateSettling
)

func (s state) String() string {
	switch s {
	case stateTriggered:
		return "triggered"
	case stateWaiting:
		return "waiting"
	case stateCaptured:
		return "captured"
	case stateClosing:
		return "closing"
	case stateSettling:
		return "settling"
	default:
		return "idle"
	}
}

// rowRun is the state of one row moving through the expansion sequence.
type rowRun struct {
	e        *Expander
	idx      int
	selector string
	state    state
}

func (r *rowRun) enter(s state) {
	log.Debug().Int("row", r.idx).Str("from", r.state.String()).Str("to", s.String()).Msg("row popup state")
	r.state = s
}

func (r *rowRun) do(ctx context.Context) (*extract.Fields, error) {
	opts := r.e.Options

	r.enter(stateTriggered)
	if err := r.e.Page.Click(ctx, r.selector); err != nil {
		return nil, fmt.Errorf("open popup: %w", err)
	}

	r.enter(stateWaiting)
	if err := r.e.sleep(ctx, opts.OpenDelay); err != nil {
		return nil, err
	}
	snap, err := r.awaitDialog(ctx)
	if err != nil {
		return nil, err
	}

	r.enter(stateCaptured)
	details := extract.DialogDetails(snap)
	if details == nil {
		log.Debug().Int("row", r.idx).Msg("dialog content did not render")
	}

	r.enter(stateClosing)
	if err := r.closeDialog(ctx, snap); err != nil {
		log.Warn().Err(err).Int("row", r.idx).Msg("could not close popup")
	}

	r.enter(stateSettling)
	if err := r.e.sleep(ctx, opts.CloseDelay); err != nil {
		return details, err
	}
	r.enter(stateIdle)
	return details, nil
}

// awaitDialog snapshots the page until dialog content shows up or the poll
// budget runs out. The last snapshot is returned either way.
func (r *rowRun) awaitDialog(ctx context.Context) (*html.Node, error) {
	snap, err := r.e.Page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := 0; i < r.e.Options.MaxPolls && extract.DialogContent(snap) == nil; i++ {
		if err := r.e.sleep(ctx, r.e.Options.PollInterval); err != nil {
			return nil, err
		}
		if snap, err = r.e.Page.Snapshot(ctx); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// closeDialog clicks the first visible close control or falls back to Escape.
func (r *rowRun) closeDialog(ctx context.Context, snap *html.Node) error {
	for _, n := range dom.Find(snap, closeControlSelector) {
		if !dom.Visible(n) {
			continue
		}
		err := r.e.Page.Click(ctx, dom.CSSPath(n))
		if err == nil {
			return nil
		}
		log.Debug().Err(err).Int("row", r.idx).Msg("close control click failed")
		break
	}
	return r.e.Page.PressEscape(ctx)
}
