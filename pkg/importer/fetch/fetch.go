// Package fetch imports requests copied with a browser's "Copy as fetch"
// developer-tools action:
//
//	fetch("https://api.example.com/x?a=1", {
//	  "headers": {"authorization": "Bearer tok"},
//	  "body": null,
//	  "method": "GET"
//	});
package fetch

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/greg-hellings/reqdesk/pkg/importer"
	"github.com/greg-hellings/reqdesk/pkg/urlquery"
)

// DefaultName labels requests whose URL could not be parsed.
const DefaultName = "Fetch Import"

var (
	// Chrome emits the options object over several lines with the closing
	// brace at the start of its own line.
	multiLinePattern = regexp.MustCompile(`(?ms)^fetch\("(.+?)", (\{.+?^\})\);`)
	// Hand-written snippets often keep everything on one line.
	singleLinePattern = regexp.MustCompile(`(?ms)^fetch\("(.+?)", (\{.*?\})\);`)
)

// Converter implements importer.Converter for fetch snippets. It holds no
// state and is safe for concurrent use.
type Converter struct{}

// New returns a fetch converter.
func New() *Converter { return &Converter{} }

// ID implements importer.Converter.
func (*Converter) ID() string { return "fetch" }

// Name implements importer.Converter.
func (*Converter) Name() string { return "Fetch" }

// Description implements importer.Converter.
func (*Converter) Description() string { return "Fetch code (from Chrome)" }

type fetchOptions struct {
	Headers json.RawMessage `json:"headers"`
	Body    json.RawMessage `json:"body"`
	Method  string          `json:"method"`
}

// Convert implements importer.Converter. Text that does not look like a
// fetch call yields (nil, nil).
func (c *Converter) Convert(raw string) ([]*importer.Request, error) {
	match := multiLinePattern.FindStringSubmatch(raw)
	if match == nil {
		match = singleLinePattern.FindStringSubmatch(raw)
	}
	if match == nil {
		return nil, nil
	}

	// An unparseable URL is tolerated; method, headers and body are still imported.
	displayURL, parameters := splitURL(match[1])

	var opts fetchOptions
	if err := json.Unmarshal([]byte(match[2]), &opts); err != nil {
		return nil, fmt.Errorf("parse fetch options: %w", err)
	}
	allHeaders, err := orderedHeaders(opts.Headers)
	if err != nil {
		return nil, err
	}
	headers, auth := importAuthentication(allHeaders)

	name := displayURL
	if name == "" {
		name = DefaultName
	}

	return []*importer.Request{
		{
			ID:             importer.RequestIDPlaceholder,
			Type:           "request",
			ParentID:       importer.WorkspaceIDPlaceholder,
			Name:           name,
			URL:            displayURL,
			Method:         opts.Method,
			Body:           opts.Body,
			Headers:        headers,
			Parameters:     parameters,
			Authentication: auth,
		},
	}, nil
}

// defaultPorts are dropped from the display URL.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// splitURL returns origin+path without a trailing slash and the query
// parameters in source order. Anything that is not an absolute URL yields
// an empty URL and no parameters.
func splitURL(raw string) (string, []importer.Parameter) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", []importer.Parameter{}
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if port := u.Port(); port != "" && defaultPorts[scheme] == port {
		host = strings.TrimSuffix(host, ":"+port)
	}
	// Resolving against an empty reference removes dot segments.
	path := u.ResolveReference(&url.URL{}).EscapedPath()
	display := scheme + "://" + host + path
	return strings.TrimSuffix(display, "/"), parseQuery(u.RawQuery)
}

func parseQuery(rawQuery string) []importer.Parameter {
	params := []importer.Parameter{}
	for _, p := range urlquery.Parse(rawQuery) {
		params = append(params, importer.Parameter{Name: p.Name, Value: p.Value})
	}
	return params
}

// orderedHeaders converts the headers object into pairs, preserving key order.
func orderedHeaders(raw json.RawMessage) ([]importer.Header, error) {
	headers := []importer.Header{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return headers, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse headers: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("parse headers: expected an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse headers: %w", err)
		}
		name, _ := keyTok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("parse header %q: %w", name, err)
		}
		headers = append(headers, importer.Header{Name: name, Value: headerValue(value)})
	}
	return headers, nil
}

func headerValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// importAuthentication removes the first header named exactly
// "authorization" and classifies it. The header is removed even when its
// scheme is not recognized.
func importAuthentication(headers []importer.Header) ([]importer.Header, importer.Authentication) {
	idx := -1
	for i, h := range headers {
		if h.Name == "authorization" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return headers, importer.Authentication{}
	}

	value := headers[idx].Value
	rest := make([]importer.Header, 0, len(headers)-1)
	rest = append(rest, headers[:idx]...)
	rest = append(rest, headers[idx+1:]...)

	scheme, credentials, found := strings.Cut(value, " ")
	if !found {
		return rest, importer.Authentication{}
	}

	switch scheme {
	case "Bearer":
		return rest, importer.Bearer(strings.TrimLeftFunc(credentials, unicode.IsSpace))
	case "Basic":
		return rest, basicFromCredentials(credentials)
	default:
		return rest, importer.Authentication{}
	}
}

func basicFromCredentials(encoded string) importer.Authentication {
	decoded := decodeBase64(encoded)
	username, password, found := strings.Cut(decoded, ":")
	if !found {
		return importer.Basic(decoded, nil)
	}
	return importer.Basic(username, &password)
}

// decodeBase64 is lenient: whitespace, missing padding and the URL-safe
// alphabet are accepted. Undecodable input yields an empty string.
func decodeBase64(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '=':
			return -1
		case r == '-':
			return '+'
		case r == '_':
			return '/'
		}
		return r
	}, s)
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(b), "�")
}
