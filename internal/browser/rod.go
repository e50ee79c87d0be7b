package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Rod drives a page through go-rod.
type Rod struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	attached bool
}

func openRod(ctx context.Context, opts Options) (*Rod, error) {
	r := &Rod{}
	controlURL := strings.TrimSpace(opts.ControlURL)
	if controlURL != "" {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve control url: %w", err)
		}
		controlURL = u
		r.attached = true
	} else {
		path := opts.Bin
		if path == "" {
			path, _ = launcher.LookPath()
		}
		l := launcher.New().Bin(path).Headless(opts.Headless)
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		r.launcher = l
	}

	r.browser = rod.New().ControlURL(controlURL)
	if err := r.browser.Connect(); err != nil {
		r.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := r.pickPage(opts.URL)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.page = page

	loadCtx, cancel := context.WithTimeout(ctx, opts.LoadTimeout)
	defer cancel()
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		r.Close()
		return nil, fmt.Errorf("wait for page load: %w", err)
	}
	// Do not hang on pages with long-polling connections.
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	return r, nil
}

// pickPage reuses an existing tab when attached and opens a new one otherwise.
func (r *Rod) pickPage(target string) (*rod.Page, error) {
	if !r.attached {
		page, err := r.browser.Page(proto.TargetCreateTarget{URL: target})
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		return page, nil
	}
	pages, err := r.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if target == "" || strings.Contains(info.URL, target) {
			log.Debug().Str("url", info.URL).Msg("attached to existing tab")
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoPage, target)
}

func (r *Rod) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return r.page.Context(ctx).Eval(js, args...)
}

func (r *Rod) Snapshot(ctx context.Context) (*html.Node, error) {
	res, err := r.eval(ctx, snapshotJS)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return parseSnapshot(res.Value.Str())
}

func (r *Rod) Click(ctx context.Context, selector string) error {
	res, err := r.eval(ctx, clickJS, selector)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("click %s: %w", selector, ErrNoElement)
	}
	return nil
}

func (r *Rod) PressEscape(ctx context.Context) error {
	if _, err := r.eval(ctx, escapeJS); err != nil {
		return fmt.Errorf("escape: %w", err)
	}
	return nil
}

func (r *Rod) URL(ctx context.Context) (string, error) {
	res, err := r.eval(ctx, locationJS)
	if err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return res.Value.Str(), nil
}

// Close releases what this driver created. An attached browser and its
// tabs belong to the user and are left running.
func (r *Rod) Close() error {
	if r.attached {
		return nil
	}
	if r.page != nil {
		_ = r.page.Close()
	}
	if r.browser != nil {
		_ = r.browser.Close()
	}
	if r.launcher != nil {
		r.launcher.Kill()
	}
	return nil
}
