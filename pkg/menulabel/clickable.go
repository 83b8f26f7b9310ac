package menulabel

import (
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

const maxClickLabel = 80

// urlValue matches the URL literals navigation code passes around:
// absolute, scheme-relative, root-relative, ./ and ../ relative, query-only.
const urlValue = `(?:(?:https?:)?//[^'"\s]+|/[^\s'"]+|\./[^'"\s]+|\.\./[^'"\s]+|\?[^'"\s]+)`

var (
	urlValueRe = regexp.MustCompile(`^` + urlValue + `$`)

	onclickNavRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\blocation\.(?:href|assign|replace)\s*(?:=|\()\s*['"](` + urlValue + `)['"]`),
		regexp.MustCompile(`(?is)\bwindow\.open\s*\(\s*['"](` + urlValue + `)['"]`),
		regexp.MustCompile(`(?is)\b(?:router\.push|navigate|go)\s*\(\s*['"](` + urlValue + `)['"]`),
	}

	selectNavRe = regexp.MustCompile(`(?i)location\.href\s*=\s*this\.value`)

	onclickCallRe = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*)\s*\([^"']*\)\s*;?\s*$`)

	bodyURLRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)location\.(?:href|assign|replace)\s*=\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)document\.location\s*=\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)window\.open\s*\(\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?is)\.action\s*=\s*["']([^"']+)["']\s*;[^;]*?\.submit\s*\(`),
	}
)

// anchorCandidates pairs every a[href] with its text, title or aria-label.
func anchorCandidates(doc *goquery.Document, base *url.URL) []Candidate {
	var out []Candidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := attr(s, "href")
		if href == "" {
			return
		}
		label := elementLabel(s)
		if label == "" {
			return
		}
		if abs := resolveURL(base, href); abs != "" {
			out = append(out, Candidate{Label: label, URL: abs})
		}
	})
	return out
}

// clickCandidates finds navigation wired through handlers and attributes
// rather than plain links.
func clickCandidates(doc *goquery.Document, base *url.URL) []Candidate {
	var out []Candidate
	add := func(label, raw string) {
		if label == "" {
			return
		}
		if abs := resolveURL(base, raw); abs != "" {
			out = append(out, Candidate{Label: label, URL: abs})
		}
	}

	handlers := doc.Find("[onclick]")
	for _, re := range onclickNavRes {
		handlers.Each(func(_ int, s *goquery.Selection) {
			label := truncate(clickLabel(s), maxClickLabel)
			for _, m := range re.FindAllStringSubmatch(attr(s, "onclick"), -1) {
				add(label, m[1])
			}
		})
	}

	doc.Find("[data-url], [data-route], [data-href]").Each(func(_ int, s *goquery.Selection) {
		label := truncate(clickLabel(s), maxClickLabel)
		for _, name := range []string{"data-url", "data-route", "data-href"} {
			if v, ok := s.Attr(name); ok && urlValueRe.MatchString(v) {
				add(label, v)
			}
		}
	})

	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		if v := attr(s, "action"); urlValueRe.MatchString(v) {
			add(truncate(cleanText(s.Text()), maxClickLabel), v)
		}
	})

	doc.Find("[formaction]").Each(func(_ int, s *goquery.Selection) {
		if v := attr(s, "formaction"); urlValueRe.MatchString(v) {
			add(truncate(clickLabel(s), maxClickLabel), v)
		}
	})

	doc.Find("select[onchange]").Each(func(_ int, s *goquery.Selection) {
		if !selectNavRe.MatchString(attr(s, "onchange")) {
			return
		}
		s.Find("option[value]").Each(func(_ int, opt *goquery.Selection) {
			if v := attr(opt, "value"); urlValueRe.MatchString(v) {
				add(truncate(cleanText(opt.Text()), maxClickLabel), v)
			}
		})
	})

	return append(out, onclickFunctionCandidates(doc, base)...)
}

// onclickFunctionCandidates follows onclick="name(...)" calls into the
// inline scripts that define name and pairs the anchor with the URL the
// function navigates to.
func onclickFunctionCandidates(doc *goquery.Document, base *url.URL) []Candidate {
	var names []string
	seen := make(map[string]bool)
	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		if m := onclickCallRe.FindStringSubmatch(attr(s, "onclick")); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	})
	if len(names) == 0 {
		return nil
	}

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})

	type target struct {
		call *regexp.Regexp
		url  string
	}
	var targets []target
	for _, name := range names {
		raw := navigationURL(functionBody(scripts, name))
		if raw == "" {
			continue
		}
		if abs := resolveURL(base, raw); abs != "" {
			targets = append(targets, target{
				call: regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`),
				url:  abs,
			})
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var out []Candidate
	doc.Find("a[onclick]").Each(func(_ int, s *goquery.Selection) {
		onclick := attr(s, "onclick")
		for _, t := range targets {
			if !t.call.MatchString(onclick) {
				continue
			}
			if label := elementLabel(s); label != "" {
				out = append(out, Candidate{Label: label, URL: t.url})
			}
		}
	})
	return out
}

// functionBody returns the body of the first definition of name found in
// the scripts: a function declaration, a function expression assignment or
// an arrow function assignment, in that order within each script.
func functionBody(scripts []string, name string) string {
	q := regexp.QuoteMeta(name)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?is)function\s+` + q + `\s*\([^)]*\)\s*\{(.*?)\}`),
		regexp.MustCompile(`(?is)` + q + `\s*=\s*function\s*\([^)]*\)\s*\{(.*?)\}`),
		regexp.MustCompile(`(?is)(?:const|let|var)\s+` + q + `\s*=\s*\([^)]*\)\s*=>\s*\{(.*?)\}`),
	}
	for _, src := range scripts {
		for _, re := range patterns {
			if m := re.FindStringSubmatch(src); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// navigationURL extracts the first URL literal a script body navigates to.
func navigationURL(body string) string {
	if body == "" {
		return ""
	}
	for _, re := range bodyURLRes {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	return ""
}

// elementLabel is the cleaned text of s, else its title or aria-label.
func elementLabel(s *goquery.Selection) string {
	if label := cleanText(s.Text()); label != "" {
		return label
	}
	if t := attr(s, "title"); t != "" {
		return t
	}
	return attr(s, "aria-label")
}

// clickLabel is elementLabel with the value attribute of inputs and buttons
// tried before the title.
func clickLabel(s *goquery.Selection) string {
	if label := cleanText(s.Text()); label != "" {
		return label
	}
	if v := attr(s, "value"); v != "" {
		return v
	}
	return elementLabel(s)
}
