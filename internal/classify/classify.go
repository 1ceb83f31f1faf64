// Package classify categorizes intercepted requests so the fetch executor
// can pick a caching strategy. Classification is a pure function of the
// request and the configured rules.
package classify

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Category is the outcome of classifying one request.
type Category int

const (
	// CategoryBypass requests pass straight to the network with no
	// strategy applied: non-GET methods, cross-origin requests and
	// non-http(s) schemes.
	CategoryBypass Category = iota
	// CategoryAPI requests also bypass the cache, but are tracked
	// separately: API responses must always be live.
	CategoryAPI
	// CategoryStatic requests are served cache-first.
	CategoryStatic
	// CategoryPage requests (navigations) are served network-first with
	// an offline fallback.
	CategoryPage
	// CategoryOther requests get network-first with cache as best effort.
	CategoryOther
)

// String returns the category name for logs and metrics labels.
func (c Category) String() string {
	switch c {
	case CategoryBypass:
		return "bypass"
	case CategoryAPI:
		return "api"
	case CategoryStatic:
		return "static"
	case CategoryPage:
		return "page"
	case CategoryOther:
		return "other"
	default:
		return "unknown"
	}
}

// Rules configures the classifier.
type Rules struct {
	// Origin is the application's own origin; requests elsewhere are
	// never cached.
	Origin *url.URL
	// APIPrefix marks live-only paths (e.g. "/api/").
	APIPrefix string
	// StaticExtensions are lowercase file suffixes (with dot) classified
	// as static assets.
	StaticExtensions []string
}

// Classify returns the category for a request. Rules are evaluated in
// strict precedence: method, API prefix, origin, scheme, navigation,
// static extension, fallback.
func (r Rules) Classify(req *http.Request) Category {
	if req.Method != http.MethodGet {
		return CategoryBypass
	}
	if r.APIPrefix != "" && strings.Contains(req.URL.Path, r.APIPrefix) {
		return CategoryAPI
	}
	if !r.sameOrigin(req.URL) {
		return CategoryBypass
	}
	if s := req.URL.Scheme; s != "" && s != "http" && s != "https" {
		return CategoryBypass
	}
	if isNavigation(req) {
		return CategoryPage
	}
	if r.hasStaticExtension(req.URL.Path) {
		return CategoryStatic
	}
	return CategoryOther
}

// sameOrigin reports whether the request URL is on the application's own
// origin. Server-form requests (no host in the URL) are same-origin by
// construction.
func (r Rules) sameOrigin(u *url.URL) bool {
	if u.Host == "" {
		return true
	}
	if r.Origin == nil {
		return false
	}
	if !strings.EqualFold(u.Host, r.Origin.Host) {
		return false
	}
	return u.Scheme == "" || strings.EqualFold(u.Scheme, r.Origin.Scheme)
}

// isNavigation reports whether the request asks for a full HTML page:
// either the browser marked it as a navigation, or it is a GET accepting
// text/html.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func (r Rules) hasStaticExtension(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, known := range r.StaticExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
