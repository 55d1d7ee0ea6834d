package fetcher

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// charsetsByName maps the charset names crawled pages most commonly declare
// to their golang.org/x/text/encoding/charmap encodings. Anything absent
// here falls back to the UTF-8 validity scan below.
var charsetsByName = map[string]encoding.Encoding{
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
}

// toUTF8 decodes body to UTF-8 using the charset declared in contentType,
// falling back to a best-effort repair of the raw bytes when no charset is
// declared or recognised (spec §4.2 "non-UTF-8 content is repaired, not
// rejected").
func toUTF8(body []byte, contentType string) ([]byte, error) {
	charset := charsetFromContentType(contentType)
	if charset == "" {
		return repairUTF8(body), nil
	}
	enc, ok := charsetsByName[charset]
	if !ok {
		return repairUTF8(body), nil
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return nil, fmt.Errorf("decoding charset %q: %w", charset, err)
	}
	return decoded, nil
}

func charsetFromContentType(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// repairUTF8 rewrites any byte sequence that is not valid UTF-8 with the
// Unicode replacement rune, one invalid byte at a time, so a single
// malformed byte never discards the rest of the body (spec §4.2 "UTF-8
// repair" for undeclared or misdeclared charsets).
func repairUTF8(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	var out strings.Builder
	out.Grow(len(body))
	for i := 0; i < len(body); {
		r, size := utf8.DecodeRune(body[i:])
		if r == utf8.RuneError && size <= 1 {
			out.WriteRune(utf8.RuneError)
			i++
			continue
		}
		out.WriteRune(r)
		i += size
	}
	return []byte(out.String())
}
