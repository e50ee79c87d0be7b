package extract

import (
	"fmt"
	"strings"
)

// Site identifies which target application a snapshot came from.
type Site int

const (
	SiteUnknown Site = iota
	SiteMambu
	SiteNucleus
)

func (s Site) String() string {
	switch s {
	case SiteMambu:
		return "mambu"
	case SiteNucleus:
		return "nucleus"
	default:
		return "unknown"
	}
}

// ParseSite accepts "mambu", "nucleus", "unknown" or the empty string.
func ParseSite(s string) (Site, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return SiteUnknown, nil
	case "mambu":
		return SiteMambu, nil
	case "nucleus":
		return SiteNucleus, nil
	}
	return SiteUnknown, fmt.Errorf("unknown site %q", s)
}

// DetectSite classifies a page URL by host substrings. The first list that
// matches wins; mambu is checked before nucleus.
func DetectSite(pageURL string, mambuHosts, nucleusHosts []string) Site {
	u := strings.ToLower(pageURL)
	if u == "" {
		return SiteUnknown
	}
	for _, h := range mambuHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" && strings.Contains(u, h) {
			return SiteMambu
		}
	}
	for _, h := range nucleusHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" && strings.Contains(u, h) {
			return SiteNucleus
		}
	}
	return SiteUnknown
}
