package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envPrefix namespaces every environment variable the tool reads.
const envPrefix = "TABLEXPORT_"

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file and before flags, so env beats the file
// while flags stay highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}
	list := func(dst *[]string, key string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
			*dst = splitList(v)
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num := func(dst *int, key string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	boolean := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(envPrefix + key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}

	str(&cfg.Mode, "MODE")
	str(&cfg.Site, "SITE")
	list(&cfg.Inputs, "INPUTS")
	str(&cfg.Source, "SOURCE")

	str(&cfg.OutputDir, "OUTPUT_DIR")
	str(&cfg.OutputPDFPath, "OUTPUT_PDF")
	boolean(&cfg.Summary, "SUMMARY")
	boolean(&cfg.DisableClipboard, "NO_CLIPBOARD")

	str(&cfg.Driver, "DRIVER")
	str(&cfg.ControlURL, "CONTROL_URL")
	str(&cfg.BrowserBin, "BROWSER_BIN")
	boolean(&cfg.Headless, "HEADLESS")
	str(&cfg.ProfileDir, "PROFILE_DIR")
	dur(&cfg.LoadTimeout, "LOAD_TIMEOUT")

	dur(&cfg.OpenDelay, "OPEN_DELAY")
	dur(&cfg.CloseDelay, "CLOSE_DELAY")
	dur(&cfg.PollInterval, "POLL_INTERVAL")
	num(&cfg.MaxPolls, "MAX_POLLS")

	list(&cfg.MambuHosts, "MAMBU_HOSTS")
	list(&cfg.NucleusHosts, "NUCLEUS_HOSTS")

	str(&cfg.UserAgent, "USER_AGENT")
	str(&cfg.Cookie, "COOKIE")
	dur(&cfg.FetchTimeout, "FETCH_TIMEOUT")
	num(&cfg.FetchAttempts, "FETCH_ATTEMPTS")
	num(&cfg.Parallel, "PARALLEL")

	str(&cfg.CacheDir, "CACHE_DIR")
	dur(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	boolean(&cfg.CacheClear, "CACHE_CLEAR")
	boolean(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")

	boolean(&cfg.Verbose, "VERBOSE")
}

// splitList splits a comma-separated list, dropping blank items.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
