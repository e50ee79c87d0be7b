package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/tablexport/internal/expand"
	"github.com/hyperifyio/tablexport/internal/extract"
)

// Source values for Config.Source.
const (
	// SourceAuto treats http(s) inputs as URLs to fetch and everything else
	// as saved HTML files.
	SourceAuto = "auto"
	// SourceBrowser reads a live tab and enables row popup expansion.
	SourceBrowser = "browser"
)

// Config holds runtime configuration for the application.
type Config struct {
	Mode   string
	Site   string
	Inputs []string
	Source string

	// Output
	OutputDir        string
	OutputPDFPath    string
	Summary          bool
	DisableClipboard bool

	// Browser
	Driver      string
	ControlURL  string
	BrowserBin  string
	Headless    bool
	ProfileDir  string
	LoadTimeout time.Duration

	// Row popup timing
	OpenDelay    time.Duration
	CloseDelay   time.Duration
	PollInterval time.Duration
	MaxPolls     int

	// Site detection by URL host substring
	MambuHosts   []string
	NucleusHosts []string

	// Fetching and cache
	UserAgent        string
	Cookie           string
	FetchTimeout     time.Duration
	FetchAttempts    int
	Parallel         int
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	Verbose bool
}

// DefaultConfig returns the built-in defaults every other layer overrides.
func DefaultConfig() Config {
	timing := expand.DefaultOptions()
	return Config{
		Mode:          string(ModeMambu),
		Source:        SourceAuto,
		OutputDir:     ".",
		Driver:        "rod",
		Headless:      true,
		LoadTimeout:   30 * time.Second,
		OpenDelay:     timing.OpenDelay,
		CloseDelay:    timing.CloseDelay,
		PollInterval:  timing.PollInterval,
		MaxPolls:      timing.MaxPolls,
		MambuHosts:    []string{"mambu"},
		NucleusHosts:  []string{"nucleus"},
		UserAgent:     "tablexport/" + BuildVersion,
		FetchTimeout:  20 * time.Second,
		FetchAttempts: 2,
		Parallel:      4,
		CacheDir:      ".tablexport-cache",
	}
}

// ValidateConfig rejects settings that cannot produce a run.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Mode) == "" {
		return errors.New("config: mode is required")
	}
	if _, err := ParseMode(cfg.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := extract.ParseSite(cfg.Site); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch cfg.Source {
	case SourceAuto:
		if len(cfg.Inputs) == 0 {
			return errors.New("config: at least one input file or URL is required")
		}
	case SourceBrowser:
		if len(cfg.Inputs) > 1 {
			return errors.New("config: the browser source reads a single page")
		}
		if len(cfg.Inputs) == 0 && cfg.ControlURL == "" {
			return errors.New("config: the browser source needs a URL or a control URL to attach to")
		}
	default:
		return fmt.Errorf("config: unknown source %q", cfg.Source)
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "rod", "chromedp":
	default:
		return fmt.Errorf("config: unknown browser driver %q", cfg.Driver)
	}
	if cfg.OpenDelay < 0 || cfg.CloseDelay < 0 || cfg.PollInterval < 0 || cfg.MaxPolls < 0 {
		return errors.New("config: negative popup timings are not allowed")
	}
	if cfg.Parallel < 0 || cfg.FetchAttempts < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
