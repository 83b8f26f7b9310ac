package menulabel

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
)

var charsetParamRe = regexp.MustCompile(`(?i)charset\s*=\s*["']?([A-Za-z0-9._-]+)`)

// decodeBody turns a response body into text. The charset parameter of
// contentType wins when it names a known encoding; otherwise the body is
// tried as UTF-8, then CP949, then Latin-1.
func decodeBody(body []byte, contentType string) string {
	if m := charsetParamRe.FindStringSubmatch(contentType); m != nil {
		if enc, _ := charset.Lookup(m[1]); enc != nil {
			if s, err := enc.NewDecoder().Bytes(body); err == nil {
				return strings.ToValidUTF8(string(s), "")
			}
		}
	}

	if utf8.Valid(body) {
		return string(body)
	}
	if s, err := korean.EUCKR.NewDecoder().Bytes(body); err == nil && !strings.ContainsRune(string(s), utf8.RuneError) {
		return string(s)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "")
	}
	return string(s)
}
