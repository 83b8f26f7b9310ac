package saz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchFixture() []*Session {
	a := &Session{
		ID:      "1",
		URL:     "https://a.example/login",
		Request: ParseHTTPMessage([]byte("POST /login HTTP/1.1\r\nHost: a.example\r\n\r\npassword=Secret")),
		Meta:    &SessionMeta{Flags: map[string]string{FlagComment: "weak password policy"}},
	}
	b := &Session{
		ID:       "2",
		URL:      "https://a.example/main",
		Request:  ParseHTTPMessage([]byte("GET /main HTTP/1.1\r\nHost: a.example\r\n\r\n")),
		Response: ParseHTTPMessage([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<p>no secrets here</p>")),
	}
	return []*Session{a, b}
}

func TestSearch_CaseInsensitive(t *testing.T) {
	results, err := Search(searchFixture(), SearchOptions{Query: "secret"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].Session.ID)
	assert.Equal(t, "request", results[0].Matches[0].Location)
}

func TestSearch_Scopes(t *testing.T) {
	results, err := Search(searchFixture(), SearchOptions{Query: "password", Scope: SearchComments})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "comment", results[0].Matches[0].Location)

	results, err = Search(searchFixture(), SearchOptions{Query: "main", Scope: SearchURLs})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].Session.ID)
}

func TestSearch_Regex(t *testing.T) {
	results, err := Search(searchFixture(), SearchOptions{Query: `pass\w+=`, Regex: true, CaseSensitive: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 9, results[0].Matches[0].Length)

	_, err = Search(searchFixture(), SearchOptions{Query: `([`, Regex: true})
	assert.Error(t, err)
}

func TestSearch_MaxResults(t *testing.T) {
	results, err := Search(searchFixture(), SearchOptions{Query: "a.example", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchStream(t *testing.T) {
	in := make(chan *Session, 2)
	for _, s := range searchFixture() {
		in <- s
	}
	close(in)

	out, errs := SearchStream(context.Background(), in, SearchOptions{Query: "SECRET"})
	var ids []string
	for r := range out {
		ids = append(ids, r.Session.ID)
	}
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestParseSearchScope(t *testing.T) {
	assert.Equal(t, SearchURLs, ParseSearchScope("URL"))
	assert.Equal(t, SearchAll, ParseSearchScope("whatever"))
}
