package saz

import (
	"context"
	"regexp"
	"strings"
)

type SearchScope int

const (
	SearchAll SearchScope = iota
	SearchRequests
	SearchResponses
	SearchHeaders
	SearchBodies
	SearchURLs
	SearchComments
)

// ParseSearchScope maps a scope name to its SearchScope. Unknown names fall
// back to SearchAll.
func ParseSearchScope(name string) SearchScope {
	switch strings.ToLower(name) {
	case "request", "requests":
		return SearchRequests
	case "response", "responses":
		return SearchResponses
	case "header", "headers":
		return SearchHeaders
	case "body", "bodies":
		return SearchBodies
	case "url", "urls":
		return SearchURLs
	case "comment", "comments":
		return SearchComments
	}
	return SearchAll
}

type SearchOptions struct {
	Query         string
	CaseSensitive bool
	Scope         SearchScope
	Regex         bool
	MaxResults    int
}

type SearchResult struct {
	Session *Session
	Matches []SearchMatch
	Score   int
}

type SearchMatch struct {
	Location string
	Context  string
	Offset   int
	Length   int
}

type matchFunc func(text, location string) []SearchMatch

func (o SearchOptions) matcher() (matchFunc, error) {
	if !o.Regex {
		return func(text, location string) []SearchMatch {
			return searchText(text, o.Query, o.CaseSensitive, location)
		}, nil
	}
	flags := ""
	if !o.CaseSensitive {
		flags = "(?i)"
	}
	pattern, err := regexp.Compile(flags + o.Query)
	if err != nil {
		return nil, err
	}
	return func(text, location string) []SearchMatch {
		return searchRegex(text, pattern, location)
	}, nil
}

// Search searches through sessions for matching content.
func Search(sessions []*Session, opts SearchOptions) ([]SearchResult, error) {
	if opts.Query == "" {
		return nil, nil
	}

	match, err := opts.matcher()
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, s := range sessions {
		matches := searchSession(s, opts.Scope, match)
		if len(matches) == 0 {
			continue
		}
		results = append(results, SearchResult{
			Session: s,
			Matches: matches,
			Score:   len(matches),
		})
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			break
		}
	}

	return results, nil
}

// SearchStream searches through streamed sessions.
func SearchStream(ctx context.Context, sessionChan <-chan *Session, opts SearchOptions) (<-chan SearchResult, <-chan error) {
	resultChan := make(chan SearchResult, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(resultChan)
		defer close(errChan)

		if opts.Query == "" {
			return
		}
		match, err := opts.matcher()
		if err != nil {
			errChan <- err
			return
		}

		count := 0
		for s := range sessionChan {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			default:
			}

			matches := searchSession(s, opts.Scope, match)
			if len(matches) == 0 {
				continue
			}
			result := SearchResult{
				Session: s,
				Matches: matches,
				Score:   len(matches),
			}

			select {
			case resultChan <- result:
				count++
				if opts.MaxResults > 0 && count >= opts.MaxResults {
					return
				}
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return resultChan, errChan
}

func searchSession(s *Session, scope SearchScope, match matchFunc) []SearchMatch {
	var matches []SearchMatch

	switch scope {
	case SearchRequests:
		if s.Request != nil {
			matches = append(matches, match(string(s.Request.Raw), "request")...)
		}
	case SearchResponses:
		if s.Response != nil {
			matches = append(matches, match(string(s.Response.DecodedBody()), "response")...)
		}
	case SearchHeaders:
		if s.Request != nil {
			matches = append(matches, searchHeaders(s.Request.Headers, "request_header", match)...)
		}
		if s.Response != nil {
			matches = append(matches, searchHeaders(s.Response.Headers, "response_header", match)...)
		}
	case SearchBodies:
		if s.Request != nil && len(s.Request.Body) > 0 {
			matches = append(matches, match(string(s.Request.Body), "request_body")...)
		}
		if s.Response != nil && len(s.Response.Body) > 0 {
			matches = append(matches, match(string(s.Response.DecodedBody()), "response_body")...)
		}
	case SearchURLs:
		matches = append(matches, match(s.URL, "url")...)
	case SearchComments:
		if c := s.Meta.Comment(); c != "" {
			matches = append(matches, match(c, "comment")...)
		}
	default:
		matches = append(matches, match(s.URL, "url")...)
		if s.Request != nil {
			matches = append(matches, match(string(s.Request.Raw), "request")...)
		}
		if s.Response != nil {
			matches = append(matches, match(string(s.Response.DecodedBody()), "response")...)
		}
		if c := s.Meta.Comment(); c != "" {
			matches = append(matches, match(c, "comment")...)
		}
	}

	return matches
}

func searchText(text, query string, caseSensitive bool, location string) []SearchMatch {
	var matches []SearchMatch

	haystack := text
	needle := query
	if !caseSensitive {
		haystack = strings.ToLower(text)
		needle = strings.ToLower(query)
	}
	if needle == "" || len(haystack) != len(text) {
		// Lowercasing changed byte offsets; fall back to a literal regex.
		if !caseSensitive && needle != "" {
			return searchRegex(text, regexp.MustCompile("(?i)"+regexp.QuoteMeta(query)), location)
		}
		return nil
	}

	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx == -1 {
			break
		}

		start := offset + idx
		matches = append(matches, newMatch(text, location, start, start+len(needle)))
		offset = start + len(needle)
	}

	return matches
}

func searchRegex(text string, pattern *regexp.Regexp, location string) []SearchMatch {
	var matches []SearchMatch
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		if loc[1] == loc[0] {
			continue
		}
		matches = append(matches, newMatch(text, location, loc[0], loc[1]))
	}
	return matches
}

func newMatch(text, location string, start, end int) SearchMatch {
	contextStart := max(start-50, 0)
	contextEnd := min(end+50, len(text))

	context := strings.ToValidUTF8(text[contextStart:contextEnd], "")
	context = strings.ReplaceAll(context, "\r\n", " ")
	context = strings.ReplaceAll(context, "\n", " ")

	return SearchMatch{
		Location: location,
		Context:  context,
		Offset:   start,
		Length:   end - start,
	}
}

func searchHeaders(headers map[string][]string, location string, match matchFunc) []SearchMatch {
	var matches []SearchMatch
	for key, values := range headers {
		matches = append(matches, match(key, location)...)
		for _, v := range values {
			matches = append(matches, match(v, location)...)
		}
	}
	return matches
}
