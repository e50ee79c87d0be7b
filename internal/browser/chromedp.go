package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"
)

// CDP drives a tab through chromedp. It always works in a fresh tab; with
// a ControlURL that tab lives in the user's browser and shares its session.
type CDP struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

func openChromedp(ctx context.Context, opts Options) (*CDP, error) {
	c := &CDP{}
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if u := strings.TrimSpace(opts.ControlURL); u != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), u)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
		)
		if opts.Bin != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.Bin))
		}
		if opts.ProfileDir != "" {
			execOpts = append(execOpts, chromedp.UserDataDir(opts.ProfileDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}
	c.cancels = append(c.cancels, allocCancel)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	c.cancels = append(c.cancels, browserCancel)
	c.ctx = browserCtx

	actions := []chromedp.Action{}
	if opts.URL != "" {
		actions = append(actions, chromedp.Navigate(opts.URL))
	}
	actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))

	loadCtx, cancel := context.WithTimeout(browserCtx, opts.LoadTimeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		c.Close()
		return nil, err
	}
	if err := chromedp.Run(loadCtx, actions...); err != nil {
		c.Close()
		return nil, fmt.Errorf("load page: %w", err)
	}
	return c, nil
}

func (c *CDP) evaluate(ctx context.Context, out interface{}, fn string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expr, err := invocation(fn, args...)
	if err != nil {
		return err
	}
	return chromedp.Run(c.ctx, chromedp.Evaluate(expr, out))
}

func (c *CDP) Snapshot(ctx context.Context) (*html.Node, error) {
	var markup string
	if err := c.evaluate(ctx, &markup, snapshotJS); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return parseSnapshot(markup)
}

func (c *CDP) Click(ctx context.Context, selector string) error {
	var ok bool
	if err := c.evaluate(ctx, &ok, clickJS, selector); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("click %s: %w", selector, ErrNoElement)
	}
	return nil
}

func (c *CDP) PressEscape(ctx context.Context) error {
	var ok bool
	if err := c.evaluate(ctx, &ok, escapeJS); err != nil {
		return fmt.Errorf("escape: %w", err)
	}
	return nil
}

func (c *CDP) URL(ctx context.Context) (string, error) {
	var loc string
	if err := c.evaluate(ctx, &loc, locationJS); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

func (c *CDP) Close() error {
	for i := len(c.cancels) - 1; i >= 0; i-- {
		c.cancels[i]()
	}
	return nil
}
