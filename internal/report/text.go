package report

import (
	"net/url"
	"regexp"
	"strings"
)

const maxBreadcrumbSegments = 5

var illegalCellChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// Sanitize removes control characters spreadsheet cells cannot hold.
func Sanitize(s string) string {
	return illegalCellChars.ReplaceAllString(s, "")
}

func sanitizeRow(r Row) Row {
	r.Path = Sanitize(r.Path)
	r.Method = Sanitize(r.Method)
	r.URL = Sanitize(r.URL)
	r.MenuLabel = Sanitize(r.MenuLabel)
	r.MatchScore = Sanitize(r.MatchScore)
	r.Params = Sanitize(r.Params)
	r.Result = Sanitize(r.Result)
	r.Timestamp = Sanitize(r.Timestamp)
	r.Remark = Sanitize(r.Remark)
	return r
}

// Breadcrumb renders the first path segments of a URL as "[a] > [b]".
func Breadcrumb(rawURL string) string {
	var p string
	if u, err := url.Parse(rawURL); err == nil {
		p = u.EscapedPath()
	}

	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return "[메인 페이지]"
	}
	if len(segs) > maxBreadcrumbSegments {
		segs = segs[:maxBreadcrumbSegments]
	}

	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = "[" + s + "]"
	}
	return strings.Join(parts, " > ")
}

// Domain returns the host of a row URL, port included.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
