package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("800ms") or integer milliseconds in
// config files.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms int64
		if jerr := json.Unmarshal(b, &ms); jerr != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Mode   string   `yaml:"mode" json:"mode"`
	Site   string   `yaml:"site" json:"site"`
	Inputs []string `yaml:"inputs" json:"inputs"`
	Source string   `yaml:"source" json:"source"`

	Output struct {
		Dir              string `yaml:"dir" json:"dir"`
		PDF              string `yaml:"pdf" json:"pdf"`
		Summary          bool   `yaml:"summary" json:"summary"`
		DisableClipboard bool   `yaml:"disableClipboard" json:"disableClipboard"`
	} `yaml:"output" json:"output"`

	Browser struct {
		Driver      string   `yaml:"driver" json:"driver"`
		ControlURL  string   `yaml:"controlURL" json:"controlURL"`
		Bin         string   `yaml:"bin" json:"bin"`
		Headless    *bool    `yaml:"headless" json:"headless"`
		Profile     string   `yaml:"profile" json:"profile"`
		LoadTimeout Duration `yaml:"loadTimeout" json:"loadTimeout"`
	} `yaml:"browser" json:"browser"`

	Popup struct {
		OpenDelay    Duration `yaml:"openDelay" json:"openDelay"`
		CloseDelay   Duration `yaml:"closeDelay" json:"closeDelay"`
		PollInterval Duration `yaml:"pollInterval" json:"pollInterval"`
		MaxPolls     *int     `yaml:"maxPolls" json:"maxPolls"`
	} `yaml:"popup" json:"popup"`

	Hosts struct {
		Mambu   []string `yaml:"mambu" json:"mambu"`
		Nucleus []string `yaml:"nucleus" json:"nucleus"`
	} `yaml:"hosts" json:"hosts"`

	Fetch struct {
		UserAgent string   `yaml:"userAgent" json:"userAgent"`
		Cookie    string   `yaml:"cookie" json:"cookie"`
		Timeout   Duration `yaml:"timeout" json:"timeout"`
		Attempts  int      `yaml:"attempts" json:"attempts"`
		Parallel  int      `yaml:"parallel" json:"parallel"`
	} `yaml:"fetch" json:"fetch"`

	Cache struct {
		Dir         string   `yaml:"dir" json:"dir"`
		MaxAge      Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool     `yaml:"clear" json:"clear"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs before
// environment and flag overrides, so it only has to beat the defaults.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v Duration) {
		if v > 0 {
			*dst = time.Duration(v)
		}
	}
	setList := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = append([]string(nil), v...)
		}
	}

	setString(&cfg.Mode, fc.Mode)
	setString(&cfg.Site, fc.Site)
	setList(&cfg.Inputs, fc.Inputs)
	setString(&cfg.Source, fc.Source)

	setString(&cfg.OutputDir, fc.Output.Dir)
	setString(&cfg.OutputPDFPath, fc.Output.PDF)
	cfg.Summary = cfg.Summary || fc.Output.Summary
	cfg.DisableClipboard = cfg.DisableClipboard || fc.Output.DisableClipboard

	setString(&cfg.Driver, fc.Browser.Driver)
	setString(&cfg.ControlURL, fc.Browser.ControlURL)
	setString(&cfg.BrowserBin, fc.Browser.Bin)
	if fc.Browser.Headless != nil {
		cfg.Headless = *fc.Browser.Headless
	}
	setString(&cfg.ProfileDir, fc.Browser.Profile)
	setDuration(&cfg.LoadTimeout, fc.Browser.LoadTimeout)

	setDuration(&cfg.OpenDelay, fc.Popup.OpenDelay)
	setDuration(&cfg.CloseDelay, fc.Popup.CloseDelay)
	setDuration(&cfg.PollInterval, fc.Popup.PollInterval)
	if fc.Popup.MaxPolls != nil {
		cfg.MaxPolls = *fc.Popup.MaxPolls
	}

	setList(&cfg.MambuHosts, fc.Hosts.Mambu)
	setList(&cfg.NucleusHosts, fc.Hosts.Nucleus)

	setString(&cfg.UserAgent, fc.Fetch.UserAgent)
	setString(&cfg.Cookie, fc.Fetch.Cookie)
	setDuration(&cfg.FetchTimeout, fc.Fetch.Timeout)
	if fc.Fetch.Attempts > 0 {
		cfg.FetchAttempts = fc.Fetch.Attempts
	}
	if fc.Fetch.Parallel > 0 {
		cfg.Parallel = fc.Fetch.Parallel
	}

	setString(&cfg.CacheDir, fc.Cache.Dir)
	setDuration(&cfg.CacheMaxAge, fc.Cache.MaxAge)
	cfg.CacheClear = cfg.CacheClear || fc.Cache.Clear
	cfg.CacheStrictPerms = cfg.CacheStrictPerms || fc.Cache.StrictPerms

	cfg.Verbose = cfg.Verbose || fc.Verbose
}
