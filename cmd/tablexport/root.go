package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/tablexport/internal/app"
)

type runFunc func(ctx context.Context, cfg app.Config) error

// flagValues mirrors the flag set. Only flags the user changed are copied
// onto the resolved config, so file and env values survive flag defaults.
type flagValues struct {
	configPath string
	envFiles   []string
	cfg        app.Config
}

func newRootCmd(runE runFunc) *cobra.Command {
	fv := &flagValues{cfg: app.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "tablexport [flags] [file-or-url...]",
		Short: "Export Mambu and Nucleus tables and dialogs as JSON",
		Long: `tablexport reads a page of the Mambu or Nucleus web applications, either a
saved HTML file, a fetched URL or a live browser tab, extracts its tables or
open dialogs and writes them as JSON.

Examples:
  tablexport --mode mambu saved/clients.html
  tablexport --mode nucleus-popup --source browser https://core.nucleus.example/accounts
  tablexport --mode capture-popup --source browser --control-url http://127.0.0.1:9222`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, fv, args)
			if err != nil {
				return err
			}
			if cfg.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return runE(cmd.Context(), cfg)
		},
	}
	cmd.Version = fmt.Sprintf("%s (commit %s, built %s)", app.BuildVersion, app.BuildCommit, app.BuildDate)

	f := cmd.Flags()
	c := &fv.cfg
	f.StringVar(&fv.configPath, "config", "", "YAML or JSON config file")
	f.StringSliceVar(&fv.envFiles, "env-file", nil, "Extra dotenv files to load (later files win)")

	f.StringVarP(&c.Mode, "mode", "m", c.Mode, "mambu, nucleus, nucleus-popup or capture-popup")
	f.StringVar(&c.Site, "site", "", "Force the site (mambu or nucleus) instead of detecting it from the URL")
	f.StringVar(&c.Source, "source", c.Source, "auto (files and URLs) or browser (live tab)")

	f.StringVarP(&c.OutputDir, "out", "o", c.OutputDir, "Directory for exported JSON files")
	f.StringVar(&c.OutputPDFPath, "output.pdf", "", "Also render table results as PDF to this path")
	f.BoolVar(&c.Summary, "summary", false, "Print a summary table to stdout")
	f.BoolVar(&c.DisableClipboard, "no-clipboard", false, "Do not fall back to the clipboard when the file write fails")

	f.StringVar(&c.Driver, "driver", c.Driver, "Browser driver: rod or chromedp")
	f.StringVar(&c.ControlURL, "control-url", "", "Attach to a running browser (DevTools URL) instead of launching one")
	f.StringVar(&c.BrowserBin, "browser-bin", "", "Chromium binary to launch")
	f.BoolVar(&c.Headless, "headless", c.Headless, "Run a launched browser headless")
	f.StringVar(&c.ProfileDir, "profile", "", "Browser profile directory for authenticated sessions")
	f.DurationVar(&c.LoadTimeout, "load-timeout", c.LoadTimeout, "Page load timeout")

	f.DurationVar(&c.OpenDelay, "open-delay", c.OpenDelay, "Wait after opening a row popup")
	f.DurationVar(&c.CloseDelay, "close-delay", c.CloseDelay, "Wait after closing a row popup")
	f.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Interval between extra checks for dialog content")
	f.IntVar(&c.MaxPolls, "max-polls", c.MaxPolls, "Extra checks for dialog content before giving up")

	f.StringSliceVar(&c.MambuHosts, "mambu-hosts", c.MambuHosts, "URL substrings identifying Mambu")
	f.StringSliceVar(&c.NucleusHosts, "nucleus-hosts", c.NucleusHosts, "URL substrings identifying Nucleus")

	f.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent for URL inputs")
	f.StringVar(&c.Cookie, "cookie", "", "Cookie header for URL inputs")
	f.DurationVar(&c.FetchTimeout, "fetch-timeout", c.FetchTimeout, "Per-request timeout for URL inputs")
	f.IntVar(&c.FetchAttempts, "fetch-attempts", c.FetchAttempts, "Attempts per URL, including the first")
	f.IntVar(&c.Parallel, "parallel", c.Parallel, "Inputs processed at once")

	f.StringVar(&c.CacheDir, "cache.dir", c.CacheDir, "Snapshot cache directory; empty disables caching")
	f.DurationVar(&c.CacheMaxAge, "cache.maxAge", 0, "Purge cached snapshots older than this; 0 disables")
	f.BoolVar(&c.CacheClear, "cache.clear", false, "Clear the snapshot cache before running")
	f.BoolVar(&c.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")

	f.BoolVarP(&c.Verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// resolveConfig layers defaults, config file, environment and changed flags,
// in that order of increasing precedence. Positional args are the inputs.
func resolveConfig(cmd *cobra.Command, fv *flagValues, args []string) (app.Config, error) {
	if err := app.LoadEnvFiles(fv.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if fv.configPath != "" {
		fc, err := app.LoadConfigFile(fv.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	flags := cmd.Flags()
	src := fv.cfg
	for _, b := range flagBindings {
		if flags.Changed(b.name) {
			b.apply(&cfg, src)
		}
	}
	if len(args) > 0 {
		cfg.Inputs = args
	}
	return cfg, nil
}

type flagBinding struct {
	name  string
	apply func(dst *app.Config, src app.Config)
}

var flagBindings = []flagBinding{
	{"mode", func(d *app.Config, s app.Config) { d.Mode = s.Mode }},
	{"site", func(d *app.Config, s app.Config) { d.Site = s.Site }},
	{"source", func(d *app.Config, s app.Config) { d.Source = s.Source }},
	{"out", func(d *app.Config, s app.Config) { d.OutputDir = s.OutputDir }},
	{"output.pdf", func(d *app.Config, s app.Config) { d.OutputPDFPath = s.OutputPDFPath }},
	{"summary", func(d *app.Config, s app.Config) { d.Summary = s.Summary }},
	{"no-clipboard", func(d *app.Config, s app.Config) { d.DisableClipboard = s.DisableClipboard }},
	{"driver", func(d *app.Config, s app.Config) { d.Driver = s.Driver }},
	{"control-url", func(d *app.Config, s app.Config) { d.ControlURL = s.ControlURL }},
	{"browser-bin", func(d *app.Config, s app.Config) { d.BrowserBin = s.BrowserBin }},
	{"headless", func(d *app.Config, s app.Config) { d.Headless = s.Headless }},
	{"profile", func(d *app.Config, s app.Config) { d.ProfileDir = s.ProfileDir }},
	{"load-timeout", func(d *app.Config, s app.Config) { d.LoadTimeout = s.LoadTimeout }},
	{"open-delay", func(d *app.Config, s app.Config) { d.OpenDelay = s.OpenDelay }},
	{"close-delay", func(d *app.Config, s app.Config) { d.CloseDelay = s.CloseDelay }},
	{"poll-interval", func(d *app.Config, s app.Config) { d.PollInterval = s.PollInterval }},
	{"max-polls", func(d *app.Config, s app.Config) { d.MaxPolls = s.MaxPolls }},
	{"mambu-hosts", func(d *app.Config, s app.Config) { d.MambuHosts = s.MambuHosts }},
	{"nucleus-hosts", func(d *app.Config, s app.Config) { d.NucleusHosts = s.NucleusHosts }},
	{"user-agent", func(d *app.Config, s app.Config) { d.UserAgent = s.UserAgent }},
	{"cookie", func(d *app.Config, s app.Config) { d.Cookie = s.Cookie }},
	{"fetch-timeout", func(d *app.Config, s app.Config) { d.FetchTimeout = s.FetchTimeout }},
	{"fetch-attempts", func(d *app.Config, s app.Config) { d.FetchAttempts = s.FetchAttempts }},
	{"parallel", func(d *app.Config, s app.Config) { d.Parallel = s.Parallel }},
	{"cache.dir", func(d *app.Config, s app.Config) { d.CacheDir = s.CacheDir }},
	{"cache.maxAge", func(d *app.Config, s app.Config) { d.CacheMaxAge = s.CacheMaxAge }},
	{"cache.clear", func(d *app.Config, s app.Config) { d.CacheClear = s.CacheClear }},
	{"cache.strictPerms", func(d *app.Config, s app.Config) { d.CacheStrictPerms = s.CacheStrictPerms }},
	{"verbose", func(d *app.Config, s app.Config) { d.Verbose = s.Verbose }},
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tablexport %s\ncommit: %s\nbuilt: %s\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		},
	}
}
