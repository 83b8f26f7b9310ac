package menulabel

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// IDMarker replaces volatile path segments such as ids, hashes and dates.
const IDMarker = "{id}"

var (
	numericSegmentRe = regexp.MustCompile(`^\d+$`)
	hexSegmentRe     = regexp.MustCompile(`(?i)^[0-9a-f]{8,}$`)
	dateSegmentRe    = regexp.MustCompile(`^\d{4}[-/]?\d{2}([-/]?\d{2})?$`)
	extensionRe      = regexp.MustCompile(`(?i)\.(?:jsp|do|php|aspx|html?|cgi|action)$`)
)

// NormalizeSegment canonicalizes one path segment. Numeric, UUID, long hex
// and date-shaped segments become IDMarker; otherwise a trailing server-side
// extension is removed. Blank segments normalize to "".
func NormalizeSegment(seg string) string {
	s := strings.TrimSpace(seg)
	if s == "" {
		return ""
	}
	if numericSegmentRe.MatchString(s) || isUUID(s) || hexSegmentRe.MatchString(s) || dateSegmentRe.MatchString(s) {
		return IDMarker
	}
	return extensionRe.ReplaceAllString(s, "")
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// PathSegments splits the path of rawURL into normalized, non-empty segments.
func PathSegments(rawURL string) []string {
	var segs []string
	for _, part := range strings.Split(rawPath(rawURL), "/") {
		if n := NormalizeSegment(part); n != "" {
			segs = append(segs, n)
		}
	}
	return segs
}

// rawPath returns the path of rawURL as written, without query, fragment
// and the ";params" of its last segment. Escaped and unescaped spellings of
// a segment stay distinct.
func rawPath(rawURL string) string {
	p, _, _ := strings.Cut(rawURL, "#")
	p, _, _ = strings.Cut(p, "?")

	var authority string
	hasAuthority := false
	if i := strings.Index(p, "://"); i > 0 && !strings.Contains(p[:i], "/") {
		authority, hasAuthority = p[i+3:], true
	} else if rest, ok := strings.CutPrefix(p, "//"); ok {
		authority, hasAuthority = rest, true
	}
	if hasAuthority {
		p = ""
		if i := strings.Index(authority, "/"); i >= 0 {
			p = authority[i:]
		}
	}

	last := strings.LastIndex(p, "/")
	if i := strings.Index(p[last+1:], ";"); i >= 0 {
		p = p[:last+1+i]
	}
	return p
}

// HostKey normalizes the host of a URL, or a bare host, for pool lookups:
// lowercase, without userinfo and without the default ports 80 and 443.
func HostKey(hostOrURL string) string {
	netloc := hostOrURL
	if u, err := url.Parse(hostOrURL); err == nil && u.Host != "" {
		netloc = u.Host
	}
	netloc = strings.ToLower(netloc)
	if _, after, ok := strings.Cut(netloc, "@"); ok {
		netloc = after
	}
	host, port, _ := strings.Cut(netloc, ":")
	if port == "80" || port == "443" {
		return host
	}
	return netloc
}

// lastSegment returns the lowercased, unescaped last normalized segment of
// rawURL so it can be looked up in decoded labels.
func lastSegment(rawURL string) string {
	segs := PathSegments(rawURL)
	if len(segs) == 0 {
		return ""
	}
	seg := segs[len(segs)-1]
	if u, err := url.PathUnescape(seg); err == nil {
		seg = u
	}
	return strings.ToLower(seg)
}
