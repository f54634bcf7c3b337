package formcodec

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PratikDhanave/form-relay-service/internal/apperr"
	"github.com/PratikDhanave/form-relay-service/internal/models"
)

// Decode turns one application/x-www-form-urlencoded body into a Record.
//
// The whole body is unescaped first (see Unescape) and only then split on
// '&' and on the first '=' of each pair. An escaped '&' or '=' therefore acts
// as a separator. A pair without '=' (including an empty body) fails with
// apperr.ErrMalformedSubmission.
func Decode(body []byte) (models.Record, error) {
	text := Unescape(body)

	rec := models.Record{}
	for _, pair := range strings.Split(text, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("pair %q has no '=': %w", pair, apperr.ErrMalformedSubmission)
		}
		rec[key] = value
	}
	return rec, nil
}

// Unescape decodes '+' as space and every well-formed %XX escape.
// A '%' not followed by two hex digits is kept as literal text, and byte
// sequences that are not valid UTF-8 become U+FFFD. Bodies cut short by the
// relay's bounded read still decode.
func Unescape(body []byte) string {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		switch b := body[i]; {
		case b == '+':
			out = append(out, ' ')
		case b == '%' && i+2 < len(body) && isHex(body[i+1]) && isHex(body[i+2]):
			out = append(out, unhex(body[i+1])<<4|unhex(body[i+2]))
			i += 2
		default:
			out = append(out, b)
		}
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
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

// Encode is the inverse of Decode for records whose keys and values contain
// no '&' or '='. Keys are emitted in sorted order so output is stable.
func Encode(rec models.Record) []byte {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(rec[k]))
	}
	return []byte(sb.String())
}
