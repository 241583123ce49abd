// internal/optionkey/optionkey.go

// Package optionkey canonicalizes product option selections into a stable,
// order-independent string key. The key is the join key between cart lines
// and stock rows: two semantically equal option sets must always normalize
// to byte-identical output, whatever the input ordering or representation.
package optionkey

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// FromMap builds the canonical key from an option map: every value is
// stringified (slices join their elements with a comma), entries are sorted
// by key and percent-encoded as "key=value&key=value". A nil or empty map
// normalizes to "" ("no options").
func FromMap(options map[string]interface{}) string {
	if len(options) == 0 {
		return ""
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(stringify(options[k])))
	}
	return b.String()
}

// FromString re-canonicalizes a pre-encoded query string: pairs are parsed
// with blank values preserved, sorted by (key, value) and re-encoded exactly
// like the map path. Tokens without '=' are dropped. An empty string
// normalizes to "".
func FromString(raw string) string {
	pairs := parsePairs(raw)
	if len(pairs) == 0 {
		return ""
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// Parse decodes a canonical key back into a flat map for display. Blank
// values are kept, malformed tokens are ignored.
func Parse(key string) map[string]string {
	out := make(map[string]string)
	for _, p := range parsePairs(key) {
		out[p[0]] = p[1]
	}
	return out
}

func parsePairs(raw string) [][2]string {
	var pairs [][2]string
	for _, tok := range strings.Split(raw, "&") {
		if tok == "" || !strings.Contains(tok, "=") {
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k, err := url.QueryUnescape(kv[0])
		if err != nil {
			continue
		}
		v, err := url.QueryUnescape(kv[1])
		if err != nil {
			continue
		}
		pairs = append(pairs, [2]string{k, v})
	}
	return pairs
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	}

	// Other slice kinds (JSON decoders hand us []float64 and friends).
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}

	return fmt.Sprint(v)
}
