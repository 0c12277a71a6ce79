// Package deeplink parses custom-scheme links such as
// insomnia://app/alert?title=T&message=M and dispatches each one to exactly
// one handler.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/greg-hellings/reqdesk/pkg/urlquery"
)

// Default scheme names.
const (
	DefaultScheme    = "insomnia"
	DefaultDevScheme = "insomniadev"
)

// ErrInvalidLink is returned when the input is not an absolute URL.
var ErrInvalidLink = errors.New("invalid args, expected insomnia://x/y/z")

// Route identifies a known deep-link target.
type Route int

const (
	RouteUnknown Route = iota
	RouteAlert
	RouteLogin
	RouteImport
	RoutePluginInstall
	RoutePluginTheme
	RouteGitHubOAuth
	RouteGitLabOAuth
	RouteAuthFinish
)

var routePaths = map[Route]string{
	RouteAlert:         "app/alert",
	RouteLogin:         "app/auth/login",
	RouteImport:        "app/import",
	RoutePluginInstall: "plugins/install",
	RoutePluginTheme:   "plugins/theme",
	RouteGitHubOAuth:   "oauth/github/authenticate",
	RouteGitLabOAuth:   "oauth/gitlab/authenticate",
	RouteAuthFinish:    "app/auth/finish",
}

// String returns the path literal of the route, or "unknown".
func (r Route) String() string {
	if p, ok := routePaths[r]; ok {
		return p
	}
	return "unknown"
}

// Routes lists the known routes in declaration order.
func Routes() []Route {
	return []Route{
		RouteAlert, RouteLogin, RouteImport, RoutePluginInstall,
		RoutePluginTheme, RouteGitHubOAuth, RouteGitLabOAuth, RouteAuthFinish,
	}
}

// LookupRoute maps an exact path literal to its route.
func LookupRoute(path string) Route {
	for r, p := range routePaths {
		if p == path {
			return r
		}
	}
	return RouteUnknown
}

// ParseOptions controls scheme handling.
type ParseOptions struct {
	Scheme    string
	DevScheme string
	// Development enables the DevScheme -> Scheme rewrite before matching.
	Development bool
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.Scheme == "" {
		o.Scheme = DefaultScheme
	}
	if o.DevScheme == "" {
		o.DevScheme = DefaultDevScheme
	}
	return o
}

// Link is one parsed deep link.
type Link struct {
	Raw string
	// Key is the comparison key: the raw string up to the first '?',
	// after the development scheme rewrite.
	Key    string
	Route  Route
	Params map[string]string
}

// Param returns the named query parameter or "".
func (l *Link) Param(name string) string {
	return l.Params[name]
}

// Parse parses raw into a Link. Only the exact key
// <scheme>://<route path> selects a route; anything else is RouteUnknown.
// When a parameter repeats, the last value wins.
func Parse(raw string, opts ParseOptions) (*Link, error) {
	opts = opts.withDefaults()

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme == "" {
		return nil, ErrInvalidLink
	}

	key := raw
	if i := strings.Index(raw, "?"); i > 0 {
		key = raw[:i]
	}
	if opts.Development {
		key = strings.Replace(key, opts.DevScheme+"://", opts.Scheme+"://", 1)
	}

	route := RouteUnknown
	if path, ok := strings.CutPrefix(key, opts.Scheme+"://"); ok {
		route = LookupRoute(path)
	}

	params := urlquery.Last(urlquery.Parse(u.RawQuery))
	return &Link{Raw: raw, Key: key, Route: route, Params: params}, nil
}
