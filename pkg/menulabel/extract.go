package menulabel

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var baseHrefRe = regexp.MustCompile(`(?i)<base[^>]+href=["']([^"']+)["']`)

// ExtractCandidates mines an HTML document for (label, absolute URL) pairs:
// navigation tree entries with path-labels first, then plain anchors and
// script-driven navigation. Anchors that also appear in the navigation tree
// take its path-label. The result holds no duplicate pairs and is the same
// for the same input.
func ExtractCandidates(doc, currentURL string) []Candidate {
	base := documentBase(doc, currentURL)
	if base == nil {
		return nil
	}

	tree, leaves := extractMenuTree(doc, base)

	var plain []Candidate
	if d, err := goquery.NewDocumentFromReader(strings.NewReader(doc)); err == nil {
		plain = append(plain, anchorCandidates(d, base)...)
		plain = append(plain, clickCandidates(d, base)...)
	}
	for i, c := range plain {
		if pathLabel, ok := leaves[leafKey{c.Label, c.URL}]; ok {
			plain[i].Label = pathLabel
		}
	}

	return dedupe(append(tree, plain...))
}

// documentBase returns the URL relative links of doc resolve against: its
// <base href> when present, otherwise the page URL.
func documentBase(doc, currentURL string) *url.URL {
	current, err := url.Parse(currentURL)
	if err != nil {
		return nil
	}
	m := baseHrefRe.FindStringSubmatch(doc)
	if m == nil {
		return current
	}
	href, err := url.Parse(strings.TrimSpace(m[1]))
	if err != nil {
		return current
	}
	return current.ResolveReference(href)
}

// resolveURL makes href absolute against base. Script and fragment-only
// links, and results that are not http(s) URLs with a host, yield "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href[0] == '#' || hasPrefixFold(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return ""
	}
	return abs.String()
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// cleanText collapses all whitespace runs to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}
