package menulabel

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"github.com/bmm-sec/saz-insights/pkg/saz"
)

func buildArchive(t *testing.T, members ...[2]string) *saz.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(m[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	r, err := saz.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return r
}

const navHTML = `<nav class="gnb"><ul><li><a href="/about">About</a></li></ul></nav>`

func htmlResponse(body string) string {
	return "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n" + body
}

func poolArchive(t *testing.T) *saz.Reader {
	shop, err := korean.EUCKR.NewEncoder().String(`<a href="/cart">장바구니</a>`)
	require.NoError(t, err)

	return buildArchive(t,
		[2]string{"raw/1_c.txt", "GET / HTTP/1.1\r\nHost: ex.com\r\nReferer: http://ex.com/\r\n\r\n"},
		[2]string{"raw/1_s.txt", htmlResponse(navHTML)},
		[2]string{"raw/0002_c.txt", "GET /news HTTP/1.1\r\nHost: ex.com\r\nReferer: http://ex.com/\r\n\r\n"},
		[2]string{"raw/2_s.txt", htmlResponse(navHTML + `<a href="/news/1">First news</a>`)},
		[2]string{"raw/3_s.txt", htmlResponse(`<a href="/orphan">Orphan</a>`)},
		[2]string{"raw/4_c.txt", "GET / HTTP/1.1\r\nUser-Agent: x\r\n\r\n"},
		[2]string{"raw/4_s.txt", htmlResponse(`<a href="/nohost">No host</a>`)},
		[2]string{"raw/5_c.txt", "GET /api HTTP/1.1\r\nHost: ex.com\r\n\r\n"},
		[2]string{"raw/5_s.txt", "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{}"},
		[2]string{"raw/6_c.txt", "GET /shop HTTP/1.1\r\nHost: shop.ex.com:443\r\n\r\n"},
		[2]string{"raw/6_s.txt", htmlResponse(shop)},
	)
}

func TestBuildPool(t *testing.T) {
	pool, err := BuildPool(context.Background(), poolArchive(t), DefaultPoolOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"ex.com", "shop.ex.com"}, pool.Hosts())
	assert.Equal(t, []Candidate{
		{Label: "[About]", URL: "http://ex.com/about"},
		{Label: "First news", URL: "http://ex.com/news/1"},
	}, pool["ex.com"])
	assert.Equal(t, []Candidate{
		{Label: "장바구니", URL: "https://shop.ex.com:443/cart"},
	}, pool["shop.ex.com"])
	assert.Equal(t, 3, pool.Len())
}

func TestBuildPool_Progress(t *testing.T) {
	var calls [][2]int
	opts := PoolOptions{
		ProgressEvery: 2,
		OnProgress:    func(done, total int) { calls = append(calls, [2]int{done, total}) },
	}

	_, err := BuildPool(context.Background(), poolArchive(t), opts)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 6}, {2, 6}, {4, 6}, {6, 6}}, calls)
}

func TestBuildPool_ProgressDoesNotChangeResult(t *testing.T) {
	a := poolArchive(t)
	quiet, err := BuildPool(context.Background(), a, DefaultPoolOptions())
	require.NoError(t, err)
	chatty, err := BuildPool(context.Background(), a, PoolOptions{ProgressEvery: 1, OnProgress: func(int, int) {}})
	require.NoError(t, err)
	assert.Equal(t, quiet, chatty)
}

func TestBuildPool_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildPool(ctx, poolArchive(t), DefaultPoolOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPool_NilArchive(t *testing.T) {
	_, err := BuildPool(context.Background(), nil, DefaultPoolOptions())
	assert.Error(t, err)
}

type panickyArchive struct {
	*saz.Reader
	bad string
}

func (p panickyArchive) Response(id string) (*saz.HTTPMessage, error) {
	if id == p.bad {
		panic("corrupt member")
	}
	return p.Reader.Response(id)
}

type failingArchive struct {
	*saz.Reader
}

func (failingArchive) Request(id string) (*saz.HTTPMessage, error) {
	return nil, errors.New("unreadable")
}

func TestBuildPool_IsolatesFailures(t *testing.T) {
	pool, err := BuildPool(context.Background(), panickyArchive{Reader: poolArchive(t), bad: "1"}, DefaultPoolOptions())
	require.NoError(t, err)
	assert.Len(t, pool["ex.com"], 2)
	assert.Len(t, pool["shop.ex.com"], 1)

	pool, err = BuildPool(context.Background(), failingArchive{poolArchive(t)}, DefaultPoolOptions())
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestPool_AddAndDedupe(t *testing.T) {
	p := make(Pool)
	p.Add("h", Candidate{"A", "https://h/a"}, Candidate{"B", "https://h/b"})
	p.Add("h", Candidate{"A", "https://h/a"}, Candidate{"A", "https://h/a2"})
	p.Add("empty")
	p.Dedupe()

	assert.Equal(t, []Candidate{
		{"A", "https://h/a"},
		{"B", "https://h/b"},
		{"A", "https://h/a2"},
	}, p["h"])
	assert.NotContains(t, p, "empty")
}

func TestPool_JSON(t *testing.T) {
	p := Pool{"ex.com": {{Label: "[Top] > [Sub]", URL: "https://ex.com/a?b=1&c=2"}}}

	var buf bytes.Buffer
	require.NoError(t, WritePool(&buf, p))
	assert.Contains(t, buf.String(), `"[Top] > [Sub]"`)
	assert.Contains(t, buf.String(), `https://ex.com/a?b=1&c=2`)

	got, err := ReadPool(&buf)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = ReadPool(strings.NewReader(`{"ex.com": [["only label"]]}`))
	assert.Error(t, err)
}

func TestSaveLoadPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	p := Pool{"ex.com": {{Label: "메뉴", URL: "https://ex.com/"}}}

	require.NoError(t, SavePool(path, p))
	got, err := LoadPool(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = LoadPool(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
