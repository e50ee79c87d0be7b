package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/extract"
)

// Mode selects what a run extracts.
type Mode string

const (
	ModeMambu        Mode = "mambu"
	ModeNucleus      Mode = "nucleus"
	ModeNucleusPopup Mode = "nucleus-popup"
	ModeCapturePopup Mode = "capture-popup"
)

// ErrUnknownMode is returned for mode tokens outside the known set.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode validates a mode token.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeMambu, ModeNucleus, ModeNucleusPopup, ModeCapturePopup:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ImpliedSite is the site a mode targets when nothing else identifies the
// page.
func (m Mode) ImpliedSite() extract.Site {
	switch m {
	case ModeMambu:
		return extract.SiteMambu
	case ModeNucleus, ModeNucleusPopup:
		return extract.SiteNucleus
	}
	return extract.SiteUnknown
}

// ResolveSite picks the site for a page: an explicit site wins, then the
// page URL, then the mode.
func ResolveSite(explicit extract.Site, pageURL string, mode Mode, mambuHosts, nucleusHosts []string) extract.Site {
	if explicit != extract.SiteUnknown {
		return explicit
	}
	if s := extract.DetectSite(pageURL, mambuHosts, nucleusHosts); s != extract.SiteUnknown {
		return s
	}
	return mode.ImpliedSite()
}

// Dispatch runs the extraction a mode asks for on root. expander may be nil
// when the page is not live; popup expansion is then skipped.
func Dispatch(ctx context.Context, mode Mode, site extract.Site, root *html.Node, expander extract.RowExpander) extract.Output {
	logger := log.With().Str("mode", string(mode)).Str("site", site.String()).Logger()
	switch {
	case mode == ModeCapturePopup:
		logger.Debug().Msg("capturing open popups")
		return extract.CapturePopups(root)
	case mode == ModeMambu && site == extract.SiteMambu:
		return extract.ExtractTables(ctx, root, extract.TableOptions{Site: extract.SiteMambu})
	case (mode == ModeNucleus || mode == ModeNucleusPopup) && site == extract.SiteNucleus:
		popups := mode == ModeNucleusPopup
		if popups && expander == nil {
			logger.Warn().Msg("row popups need a live browser page; extracting tables only")
			popups = false
		}
		return extract.ExtractTables(ctx, root, extract.TableOptions{
			Site:          extract.SiteNucleus,
			IncludePopups: popups,
			Expander:      expander,
		})
	case site == extract.SiteNucleus:
		logger.Debug().Msg("mode does not match site; falling back to nucleus tables")
		return extract.ExtractTables(ctx, root, extract.TableOptions{Site: extract.SiteNucleus})
	default:
		logger.Debug().Msg("mode does not match site; falling back to mambu tables")
		return extract.ExtractTables(ctx, root, extract.TableOptions{Site: extract.SiteMambu})
	}
}
