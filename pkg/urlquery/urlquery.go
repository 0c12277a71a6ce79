// Package urlquery parses query strings the way browsers do: pairs are split
// on '&' only, order and duplicates are kept, and malformed percent escapes
// stay as literal text instead of dropping the pair.
package urlquery

import "strings"

// Pair is one name/value from a query string.
type Pair struct {
	Name  string
	Value string
}

// Parse splits rawQuery (without the leading '?') into pairs in source order.
func Parse(rawQuery string) []Pair {
	pairs := []Pair{}
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, Pair{Name: Unescape(name), Value: Unescape(value)})
	}
	return pairs
}

// Last returns the pairs as a map where a repeated name keeps its last value.
func Last(pairs []Pair) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Name] = p.Value
	}
	return m
}

// Unescape decodes '+' as a space and every valid %XX escape. Invalid
// escapes are kept verbatim; invalid UTF-8 becomes U+FFFD.
func Unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
