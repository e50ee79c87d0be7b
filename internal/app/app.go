// Package app wires configuration, page sources, extraction and export into
// one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/tablexport/internal/browser"
	"github.com/hyperifyio/tablexport/internal/cache"
	"github.com/hyperifyio/tablexport/internal/expand"
	"github.com/hyperifyio/tablexport/internal/export"
	"github.com/hyperifyio/tablexport/internal/extract"
	"github.com/hyperifyio/tablexport/internal/fetch"
)

// ErrNoData is returned when no input produced anything to export.
var ErrNoData = errors.New("no data found to export")

type App struct {
	cfg       Config
	mode      Mode
	site      extract.Site
	fetcher   getter
	transport *http.Client
	deliverer *export.Deliverer

	// Stdout receives the summary table. Nil means os.Stdout.
	Stdout io.Writer
	// OpenDriver opens the live page for the browser source. Nil means
	// browser.Open.
	OpenDriver func(ctx context.Context, opts browser.Options) (browser.Driver, error)
	// Now stamps popup captures. Nil means time.Now.
	Now func() time.Time
}

func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	mode, _ := ParseMode(cfg.Mode)
	site, _ := extract.ParseSite(cfg.Site)
	a := &App{
		cfg:  cfg,
		mode: mode,
		site: site,
		deliverer: &export.Deliverer{
			Dir:              cfg.OutputDir,
			DisableClipboard: cfg.DisableClipboard,
		},
	}
	if cfg.Source == SourceAuto && anyURL(cfg.Inputs) {
		fc := newFetchClient(cfg)
		a.fetcher, a.transport = fc, fc.HTTPClient
	}
	return a, nil
}

func anyURL(inputs []string) bool {
	for _, in := range inputs {
		if isURL(in) {
			return true
		}
	}
	return false
}

func newFetchClient(cfg Config) *fetch.Client {
	c := &fetch.Client{
		HTTPClient:        newSnapshotHTTPClient(cfg.Parallel),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.FetchAttempts,
		PerRequestTimeout: cfg.FetchTimeout,
		MaxConcurrent:     cfg.Parallel,
	}
	if cfg.Cookie != "" {
		c.Header = http.Header{"Cookie": []string{cfg.Cookie}}
	}
	if cfg.CacheDir == "" {
		return c
	}
	if cfg.CacheClear {
		if err := cache.ClearDir(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
		}
	}
	if cfg.CacheMaxAge > 0 {
		n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged expired snapshots")
		}
	}
	c.Cache = &cache.SnapshotCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	return c
}

// Close drops idle snapshot connections.
func (a *App) Close() {
	if a.transport != nil {
		a.transport.CloseIdleConnections()
	}
}

func (a *App) Run(ctx context.Context) error {
	log.Info().Str("mode", string(a.mode)).Str("source", a.cfg.Source).Int("inputs", len(a.cfg.Inputs)).Msg("starting extraction")
	if a.cfg.Source == SourceBrowser {
		return a.runBrowser(ctx)
	}
	return a.runStatic(ctx)
}

type outcome struct {
	input string
	out   extract.Output
}

func (a *App) runStatic(ctx context.Context) error {
	outcomes := make([]outcome, len(a.cfg.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Parallel > 0 {
		g.SetLimit(a.cfg.Parallel)
	}
	for i, input := range a.cfg.Inputs {
		i, input := i, input
		g.Go(func() error {
			snap, err := loadStatic(gctx, a.fetcher, input)
			if err != nil {
				return err
			}
			site := a.resolveSite(snap.url)
			log.Debug().Str("input", input).Str("url", snap.url).Str("site", site.String()).Msg("extracting page")
			outcomes[i] = outcome{input: input, out: Dispatch(gctx, a.mode, site, snap.root, nil)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	multi := len(outcomes) > 1
	seen := make(map[string]int)
	exported := 0
	for _, o := range outcomes {
		prefix := ""
		if multi {
			prefix = inputPrefix(o.input)
			if seen[prefix]++; seen[prefix] > 1 {
				prefix = fmt.Sprintf("%s_%d", prefix, seen[prefix])
			}
		}
		ok, err := a.export(o.input, prefix, o.out)
		if err != nil {
			return err
		}
		if ok {
			exported++
		}
	}
	if exported == 0 {
		return ErrNoData
	}
	return nil
}

func (a *App) runBrowser(ctx context.Context) error {
	open := a.OpenDriver
	if open == nil {
		open = browser.Open
	}
	opts := browser.Options{
		Driver:      a.cfg.Driver,
		ControlURL:  a.cfg.ControlURL,
		Bin:         a.cfg.BrowserBin,
		Headless:    a.cfg.Headless,
		ProfileDir:  a.cfg.ProfileDir,
		LoadTimeout: a.cfg.LoadTimeout,
	}
	if len(a.cfg.Inputs) > 0 {
		opts.URL = a.cfg.Inputs[0]
	}
	drv, err := open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			log.Debug().Err(err).Msg("browser close failed")
		}
	}()

	root, err := drv.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot page: %w", err)
	}
	pageURL, err := drv.URL(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("page URL unavailable")
		pageURL = opts.URL
	}
	site := a.resolveSite(pageURL)

	var expander extract.RowExpander
	if a.mode == ModeNucleusPopup {
		expander = &expand.Expander{Page: drv, Options: expand.Options{
			OpenDelay:    a.cfg.OpenDelay,
			CloseDelay:   a.cfg.CloseDelay,
			PollInterval: a.cfg.PollInterval,
			MaxPolls:     a.cfg.MaxPolls,
		}}
	}
	out := Dispatch(ctx, a.mode, site, root, expander)
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := a.export(pageURL, "", out)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoData
	}
	return nil
}

func (a *App) resolveSite(pageURL string) extract.Site {
	return ResolveSite(a.site, pageURL, a.mode, a.cfg.MambuHosts, a.cfg.NucleusHosts)
}

// export encodes and delivers one output. It reports false without error
// when there was nothing to export.
func (a *App) export(input, prefix string, out extract.Output) (bool, error) {
	if a.cfg.Summary {
		export.WriteSummary(a.stdout(), out)
	}
	if out.Empty() {
		if c, ok := out.(*extract.PopupCapture); ok {
			log.Warn().Str("input", input).Str("error", c.Error).Msg("no popup to export")
		} else {
			log.Warn().Str("input", input).Msg("no data found to export")
		}
		return false, nil
	}

	var payload any = out
	if c, ok := out.(*extract.PopupCapture); ok {
		payload = export.NewPopupEnvelope(c, a.now())
	}
	name := export.Filename(string(a.mode), prefix)
	data, err := export.Encode(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", name, err)
	}
	dest, path, err := a.deliverer.Deliver(name, data)
	if err != nil {
		return false, err
	}
	log.Info().Str("input", input).Str("to", string(dest)).Str("path", path).Msg("export delivered")

	if res, ok := out.(*extract.Result); ok && a.cfg.OutputPDFPath != "" {
		pdfPath := a.cfg.OutputPDFPath
		if prefix != "" {
			pdfPath = filepath.Join(filepath.Dir(pdfPath), prefix+"_"+filepath.Base(pdfPath))
		}
		if err := export.WritePDF(res, input, pdfPath); err != nil {
			log.Warn().Err(err).Str("path", pdfPath).Msg("pdf rendering failed")
		}
	}
	return true, nil
}

func (a *App) stdout() io.Writer {
	if a.Stdout != nil {
		return a.Stdout
	}
	return os.Stdout
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
