package saz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(method, rawURL, host string) *Session {
	return &Session{Method: method, URL: rawURL, Host: host}
}

func TestIsProbableAsset(t *testing.T) {
	assert.True(t, IsProbableAsset("https://a.example/js/app.min.js?v=1", nil))
	assert.True(t, IsProbableAsset("https://a.example/img/LOGO.PNG", nil))
	assert.True(t, IsProbableAsset("https://a.example/static/page", nil))
	assert.False(t, IsProbableAsset("https://a.example/board/list.do", nil))

	css := ParseHTTPMessage([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/css\r\n\r\n"))
	assert.True(t, IsProbableAsset("https://a.example/theme", css))
}

func TestFilter_Match(t *testing.T) {
	f := NewFilter().
		WithHost(`example\.com$`).
		WithMethod("get", "post").
		WithoutConnect().
		WithoutAssets()

	assert.True(t, f.Match(session("GET", "https://shop.example.com/list", "shop.example.com")))
	assert.False(t, f.Match(session("PUT", "https://shop.example.com/list", "shop.example.com")))
	assert.False(t, f.Match(session("CONNECT", "https://shop.example.com:443", "shop.example.com")))
	assert.False(t, f.Match(session("GET", "https://cdn.other.net/list", "cdn.other.net")))
	assert.False(t, f.Match(session("GET", "https://shop.example.com/a.css", "shop.example.com")))
}

func TestFilter_VulnerableOnly(t *testing.T) {
	f := NewFilter().WithVulnerableOnly()

	s := session("GET", "https://a.example/x", "a.example")
	assert.False(t, f.Match(s))

	s.Meta = &SessionMeta{Flags: map[string]string{FlagComment: "취약"}}
	assert.True(t, f.Match(s))
}

func TestFilter_Banned(t *testing.T) {
	f := NewFilter().WithBanned(
		[]string{"/logout", " /admin/ ", "http://ignored", "relative"},
		[]string{`(?i)\.ico$`, `([`},
	)

	assert.True(t, f.IsBanned("https://a.example/logout.do"))
	assert.True(t, f.IsBanned("https://a.example/admin/users"))
	assert.True(t, f.IsBanned("https://a.example/FAVICON.ICO"))
	assert.False(t, f.IsBanned("https://a.example/relative"))
	assert.False(t, f.IsBanned("https://a.example/main"))
}

func TestParseBannedList(t *testing.T) {
	list := "# comments\n\n/logout\nRE: ^https://a\\.example/tmp\n  /admin  \n"
	prefixes, regexes, err := ParseBannedList(strings.NewReader(list))
	require.NoError(t, err)
	assert.Equal(t, []string{"/logout", "/admin"}, prefixes)
	assert.Equal(t, []string{`^https://a\.example/tmp`}, regexes)
}

func TestFilterSessions(t *testing.T) {
	sessions := []*Session{
		session("GET", "https://a.example/one", "a.example"),
		session("GET", "https://a.example/two", "a.example"),
	}
	assert.Len(t, FilterSessions(sessions, nil), 2)
	assert.Len(t, FilterSessions(sessions, NewFilter().WithPath("two$")), 1)
}
