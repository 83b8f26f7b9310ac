package saz

import (
	"bufio"
	"io"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
)

// AssetExtensions are path extensions of static resources that are never
// reported as diagnosed requests.
var AssetExtensions = map[string]bool{
	".js": true, ".css": true, ".map": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".ico": true, ".webp": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".otf": true, ".pdf": true, ".zip": true, ".rar": true,
	".7z": true, ".mp4": true, ".mp3": true, ".wav": true,
}

// AssetPathKeywords are path fragments typical of static resource folders.
var AssetPathKeywords = []string{"/js/", "/scripts/", "/static/", "/assets/", "/common/js/", "/fonts/"}

var assetContentTypes = []string{"javascript", "text/css", "image/", "font/", "octet-stream"}

// IsProbableAsset reports whether a request URL, or the content type of its
// response, points at a static resource.
func IsProbableAsset(rawURL string, resp *HTTPMessage) bool {
	p := strings.ToLower(urlPath(rawURL))
	if AssetExtensions[path.Ext(p)] {
		return true
	}
	for _, kw := range AssetPathKeywords {
		if strings.Contains(p, kw) {
			return true
		}
	}
	if ct := resp.ContentType(); ct != "" {
		for _, t := range assetContentTypes {
			if strings.Contains(ct, t) {
				return true
			}
		}
	}
	return false
}

func urlPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	s, _, _ := strings.Cut(rawURL, "?")
	s, _, _ = strings.Cut(s, "#")
	if _, rest, ok := strings.Cut(s, "://"); ok {
		if i := strings.Index(rest, "/"); i >= 0 {
			return rest[i:]
		}
		return ""
	}
	return s
}

type Filter struct {
	hostPattern    *regexp.Regexp
	pathPattern    *regexp.Regexp
	urlPattern     *regexp.Regexp
	methods        []string
	bannedPrefix   []string
	bannedRegex    []*regexp.Regexp
	skipAssets     bool
	skipConnect    bool
	vulnerableOnly bool
}

// NewFilter creates a new filter with default settings.
func NewFilter() *Filter {
	return &Filter{}
}

// WithHost filters by host pattern (regex).
func (f *Filter) WithHost(pattern string) *Filter {
	if pattern != "" {
		f.hostPattern, _ = regexp.Compile(pattern)
	}
	return f
}

// WithPath filters by path pattern (regex).
func (f *Filter) WithPath(pattern string) *Filter {
	if pattern != "" {
		f.pathPattern, _ = regexp.Compile(pattern)
	}
	return f
}

// WithURL filters by full URL pattern (regex).
func (f *Filter) WithURL(pattern string) *Filter {
	if pattern != "" {
		f.urlPattern, _ = regexp.Compile(pattern)
	}
	return f
}

// WithMethod filters by HTTP method.
func (f *Filter) WithMethod(methods ...string) *Filter {
	for i, m := range methods {
		methods[i] = strings.ToUpper(m)
	}
	f.methods = methods
	return f
}

// WithBanned excludes URLs whose path starts with one of the prefixes or
// that match one of the regexes. Prefixes that are not absolute paths and
// regexes that do not compile are ignored.
func (f *Filter) WithBanned(prefixes, regexes []string) *Filter {
	for _, pfx := range prefixes {
		p := strings.TrimSpace(pfx)
		if p == "" || strings.HasPrefix(p, "http") || !strings.HasPrefix(p, "/") {
			continue
		}
		f.bannedPrefix = append(f.bannedPrefix, p)
	}
	for _, rx := range regexes {
		re, err := regexp.Compile(rx)
		if err != nil {
			continue
		}
		f.bannedRegex = append(f.bannedRegex, re)
	}
	return f
}

// WithoutAssets excludes static resources.
func (f *Filter) WithoutAssets() *Filter {
	f.skipAssets = true
	return f
}

// WithoutConnect excludes CONNECT tunnels.
func (f *Filter) WithoutConnect() *Filter {
	f.skipConnect = true
	return f
}

// WithVulnerableOnly keeps only sessions whose comment flags them vulnerable.
func (f *Filter) WithVulnerableOnly() *Filter {
	f.vulnerableOnly = true
	return f
}

// IsBanned reports whether a URL is excluded by the banned prefixes or regexes.
func (f *Filter) IsBanned(rawURL string) bool {
	p := urlPath(rawURL)
	if p == "" {
		p = "/"
	}
	for _, pfx := range f.bannedPrefix {
		if strings.HasPrefix(p, pfx) {
			return true
		}
	}
	for _, re := range f.bannedRegex {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Match checks if a session matches the filter criteria.
func (f *Filter) Match(s *Session) bool {
	if f.skipConnect && strings.EqualFold(s.Method, "CONNECT") {
		return false
	}

	if f.hostPattern != nil && !f.hostPattern.MatchString(s.Host) {
		return false
	}

	if f.pathPattern != nil && !f.pathPattern.MatchString(urlPath(s.URL)) {
		return false
	}

	if f.urlPattern != nil && !f.urlPattern.MatchString(s.URL) {
		return false
	}

	if len(f.methods) > 0 {
		found := false
		for _, m := range f.methods {
			if strings.EqualFold(s.Method, m) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.skipAssets && IsProbableAsset(s.URL, s.Response) {
		return false
	}

	if f.vulnerableOnly && !s.Meta.IsMarkedVulnerable() {
		return false
	}

	return !f.IsBanned(s.URL)
}

// FilterSessions filters a slice of sessions.
func FilterSessions(sessions []*Session, f *Filter) []*Session {
	if f == nil {
		return sessions
	}

	var result []*Session
	for _, s := range sessions {
		if f.Match(s) {
			result = append(result, s)
		}
	}
	return result
}

// ParseBannedList reads a banned-URL list: one entry per line, blank lines
// and "#" comments skipped, "re:" entries are regexes, the rest path prefixes.
func ParseBannedList(r io.Reader) (prefixes, regexes []string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) >= 3 && strings.EqualFold(line[:3], "re:") {
			regexes = append(regexes, strings.TrimSpace(line[3:]))
			continue
		}
		prefixes = append(prefixes, line)
	}
	return prefixes, regexes, scanner.Err()
}

// LoadBannedFile reads a banned-URL list from path.
func LoadBannedFile(path string) (prefixes, regexes []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ParseBannedList(f)
}
