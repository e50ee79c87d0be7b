package app

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/hyperifyio/tablexport/internal/dom"
)

// snapshot is one parsed page plus what is known about where it came from.
type snapshot struct {
	input string
	root  *html.Node
	url   string
}

// getter is the part of fetch.Client the app uses.
type getter interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

func isURL(input string) bool {
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return (s == "http" || s == "https") && u.Host != ""
}

func loadStatic(ctx context.Context, g getter, input string) (snapshot, error) {
	if isURL(input) {
		if g == nil {
			return snapshot{}, fmt.Errorf("fetch %s: no HTTP client configured", input)
		}
		body, _, err := g.Get(ctx, input)
		if err != nil {
			return snapshot{}, fmt.Errorf("fetch %s: %w", input, err)
		}
		root, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return snapshot{}, fmt.Errorf("parse %s: %w", input, err)
		}
		return snapshot{input: input, root: root, url: input}, nil
	}
	b, err := os.ReadFile(input)
	if err != nil {
		return snapshot{}, fmt.Errorf("read %s: %w", input, err)
	}
	root, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return snapshot{}, fmt.Errorf("parse %s: %w", input, err)
	}
	return snapshot{input: input, root: root, url: pageURLHint(root)}, nil
}

var savedFromRe = regexp.MustCompile(`saved from url=\(\d+\)(\S+)`)

// pageURLHint recovers the original location of a saved page from the
// browser's "saved from" comment, a canonical link, og:url or base href.
func pageURLHint(root *html.Node) string {
	if u := savedFromURL(root); u != "" {
		return u
	}
	if n := dom.First(root, `link[rel="canonical"]`); n != nil {
		if v := dom.AttrOr(n, "href", ""); v != "" {
			return v
		}
	}
	if n := dom.First(root, `meta[property="og:url"]`); n != nil {
		if v := dom.AttrOr(n, "content", ""); v != "" {
			return v
		}
	}
	if n := dom.First(root, "base[href]"); n != nil {
		return dom.AttrOr(n, "href", "")
	}
	return ""
}

func savedFromURL(n *html.Node) string {
	if n.Type == html.CommentNode {
		if m := savedFromRe.FindStringSubmatch(n.Data); m != nil {
			return m[1]
		}
		return ""
	}
	if n.Type == html.ElementNode && n.Data == "body" {
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if u := savedFromURL(c); u != "" {
			return u
		}
	}
	return ""
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// inputPrefix derives a filename prefix from an input path or URL.
func inputPrefix(input string) string {
	name := input
	if isURL(input) {
		u, _ := url.Parse(input)
		name = u.Host
		if base := filepath.Base(strings.TrimSuffix(u.Path, "/")); base != "." && base != "/" && base != "" {
			name += "_" + base
		}
	} else {
		name = filepath.Base(input)
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	name = strings.Trim(unsafeNameRe.ReplaceAllString(name, "_"), "_")
	if name == "" {
		return "page"
	}
	return name
}
