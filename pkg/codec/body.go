package codec

import (
	"encoding/json"
	"mime"
	"net/url"
	"strings"
)

// Media types with dedicated body decoding.
const (
	MediaTypeJSON = "application/json"
	MediaTypeForm = "application/x-www-form-urlencoded"
)

// BodyFormat is the decoding applied to a request body.
type BodyFormat int

const (
	// FormatRaw leaves the body bytes as they are.
	FormatRaw BodyFormat = iota
	// FormatJSON decodes the body as a JSON document.
	FormatJSON
	// FormatForm decodes the body as urlencoded key/value pairs.
	FormatForm
)

// FormatOf picks the body format for a Content-Type header value. Media type
// parameters such as charset are ignored; anything that is neither JSON nor a
// urlencoded form, including a missing header, is raw.
func FormatOf(contentType string) BodyFormat {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case MediaTypeJSON:
		return FormatJSON
	case MediaTypeForm:
		return FormatForm
	default:
		return FormatRaw
	}
}

// DecodeJSON parses body as a JSON document into generic Go values
// (map[string]any, []any, string, float64, bool or nil).
func DecodeJSON(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeForm parses a urlencoded body into a flat map. When a key repeats the
// last value wins.
func DecodeForm(body []byte) map[string]string {
	form := make(map[string]string)
	eachPair(string(body), func(k, v string) {
		form[k] = v
	})
	return form
}

// DecodeQuery parses a urlencoded query string, keeping every value of a
// repeated key in order. Unlike url.ParseQuery, ';' is an ordinary character
// and a bad percent escape is kept as literal text instead of dropping the
// pair.
func DecodeQuery(raw string) url.Values {
	values := make(url.Values)
	eachPair(raw, func(k, v string) {
		values.Add(k, v)
	})
	return values
}

func eachPair(raw string, fn func(key, value string)) {
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		fn(unescape(key), unescape(value))
	}
}

// unescape decodes '+' and valid %XX escapes. A '%' not followed by two hex
// digits stays as it is.
func unescape(s string) string {
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
	return b.String()
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
