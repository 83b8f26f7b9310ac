package report

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmm-sec/saz-insights/pkg/menulabel"
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

const vulnMeta = `<?xml version="1.0" encoding="utf-8"?>
<Session SID="2">
  <SessionTimers ClientBeginRequest="2024-03-01T10:00:01.5+09:00" />
  <SessionFlags><SessionFlag N="ui-comments" V="[취약] reflected xss" /></SessionFlags>
</Session>`

func reportArchive(t *testing.T) *saz.Reader {
	return buildArchive(t,
		[2]string{"raw/1_c.txt", "GET / HTTP/1.1\r\nHost: ex.com\r\nReferer: http://ex.com/\r\n\r\n"},
		[2]string{"raw/1_s.txt", "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n" +
			`<nav class="gnb"><ul><li><a href="/about">About</a></li></ul></nav>`},
		[2]string{"raw/2_c.txt", "GET /about?id=7 HTTP/1.1\r\nHost: ex.com\r\n\r\n"},
		[2]string{"raw/2_s.txt", "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{}"},
		[2]string{"raw/2_m.xml", vulnMeta},
		[2]string{"raw/3_c.txt", "CONNECT ex.com:443 HTTP/1.1\r\nHost: ex.com:443\r\n\r\n"},
		[2]string{"raw/4_c.txt", "GET /static/app.js HTTP/1.1\r\nHost: ex.com\r\n\r\n"},
		[2]string{"raw/5_c.txt", "POST /other/zzz.do HTTP/1.1\r\nHost: ex.com\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\nq=a&q=b"},
		[2]string{"raw/6_c.txt", "garbage"},
	)
}

func TestBuild(t *testing.T) {
	opts := DefaultOptions()
	opts.Location = time.FixedZone("KST", 9*3600)

	res, err := Build(context.Background(), reportArchive(t), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pool.Len())
	require.Len(t, res.Rows, 3)

	root, about, other := res.Rows[0], res.Rows[1], res.Rows[2]

	assert.Equal(t, "1", root.SessionID)
	assert.Equal(t, "https://ex.com/", root.URL)
	assert.Empty(t, root.MenuLabel)
	assert.Empty(t, root.Path)
	assert.Equal(t, VerdictSafe, root.Result)

	assert.Equal(t, "[About]", about.MenuLabel)
	assert.Equal(t, "[About]", about.Path)
	assert.Equal(t, "100.0", about.MatchScore)
	assert.Equal(t, "id = [7]", about.Params)
	assert.Equal(t, VerdictVulnerable, about.Result)
	assert.True(t, about.Vulnerable())
	assert.Equal(t, "2024-03-01 10:00:01", about.Timestamp)
	assert.Empty(t, about.Remark)

	assert.Equal(t, "POST", other.Method)
	assert.Equal(t, "q = [a, b]", other.Params)
	assert.Empty(t, other.MenuLabel)
	assert.Empty(t, other.Timestamp)
}

func TestBuild_Debug(t *testing.T) {
	opts := DefaultOptions()
	opts.Debug = true

	res, err := Build(context.Background(), reportArchive(t), opts)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	assert.Equal(t, "[메인 페이지]", res.Rows[0].Path)
	assert.Equal(t, "[About]", res.Rows[1].Path)
	assert.Equal(t, "100.0", res.Rows[1].Remark)
	assert.Equal(t, "[other] > [zzz.do]", res.Rows[2].Path)
	assert.Equal(t, res.Rows[2].MatchScore, res.Rows[2].Remark)
}

func TestBuild_WithoutMenuLabels(t *testing.T) {
	opts := DefaultOptions()
	opts.MenuLabel = false

	res, err := Build(context.Background(), reportArchive(t), opts)
	require.NoError(t, err)
	assert.Nil(t, res.Pool)
	require.Len(t, res.Rows, 3)
	for _, r := range res.Rows {
		assert.Empty(t, r.MenuLabel)
		assert.Empty(t, r.MatchScore)
	}
}

func TestBuild_ProvidedPool(t *testing.T) {
	pool := menulabel.Pool{}
	pool.Add("ex.com", menulabel.Candidate{Label: "[기타] > [ZZZ]", URL: "https://ex.com/other/zzz.do"})

	opts := DefaultOptions()
	opts.Pool = pool

	res, err := Build(context.Background(), reportArchive(t), opts)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "[기타] > [ZZZ]", res.Rows[2].MenuLabel)
	assert.Empty(t, res.Rows[1].MenuLabel)
}

func TestBuild_BannedAndProgress(t *testing.T) {
	var calls [][2]int
	opts := DefaultOptions()
	opts.Filter = saz.NewFilter().WithBanned([]string{"/other"}, nil)
	opts.ProgressEvery = 4
	opts.OnRowProgress = func(done, total int) { calls = append(calls, [2]int{done, total}) }

	res, err := Build(context.Background(), reportArchive(t), opts)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "2", res.Rows[1].SessionID)
	assert.Equal(t, [][2]int{{1, 6}, {4, 6}, {6, 6}}, calls)
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, reportArchive(t), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidatesPath(t *testing.T) {
	assert.Equal(t, "out/capture_menu_candidates.json", CandidatesPath("out", "/data/capture.saz"))
}
