package saz

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture(t *testing.T) []*Session {
	t.Helper()
	r := buildArchive(t,
		member{"raw/2_c.txt", "POST /login.do?next=%2Fhome&a=1 HTTP/1.1\r\nHost: shop.example.com\r\nCookie: sid=abc\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\nid=kim&pw=secret"},
		member{"raw/2_s.txt", "HTTP/1.1 302 Found\r\nLocation: /home\r\nSet-Cookie: sid=def; Path=/\r\nContent-Type: text/html\r\n\r\n<p>moved</p>"},
		member{"raw/2_m.xml", sampleMetaXML},
	)
	s, err := r.Session("2")
	require.NoError(t, err)
	return []*Session{s}
}

func TestParseExportFormat(t *testing.T) {
	for name, want := range map[string]ExportFormat{
		"":      FormatJSON,
		"JSON":  FormatJSON,
		"jsonl": FormatJSONLines,
		"csv":   FormatCSV,
		"har":   FormatHAR,
	} {
		got, err := ParseExportFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseExportFormat("xml")
	assert.Error(t, err)
}

func TestExport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, exportFixture(t), DefaultExportOptions()))

	var out []ExportedSession
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ID)
	assert.Equal(t, "POST", out[0].Method)
	assert.Equal(t, 302, out[0].StatusCode)
	assert.True(t, out[0].Vulnerable)
	assert.Equal(t, "id=kim&pw=secret", out[0].Request.Body)
	assert.NotEmpty(t, out[0].Timestamp)
}

func TestExport_JSONLinesWithoutBody(t *testing.T) {
	sessions := exportFixture(t)
	sessions = append(sessions, sessions[0])

	opts := DefaultExportOptions()
	opts.Format = FormatJSONLines
	opts.IncludeBody = false

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sessions, opts))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first ExportedSession
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Empty(t, first.Request.Body)
}

func TestExport_CSV(t *testing.T) {
	opts := DefaultExportOptions()
	opts.Format = FormatCSV

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, exportFixture(t), opts))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "2", records[1][0])
	assert.Equal(t, "302", records[1][5])
	assert.Equal(t, "[취약] stored xss", records[1][7])
}

func TestExport_HAR(t *testing.T) {
	opts := DefaultExportOptions()
	opts.Format = FormatHAR
	opts.MaxBodySize = 6

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, exportFixture(t), opts))

	var har HARLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &har))
	assert.Equal(t, "1.2", har.Log.Version)
	require.Len(t, har.Log.Entries, 1)

	e := har.Log.Entries[0]
	assert.Equal(t, "https://shop.example.com/login.do?next=%2Fhome&a=1", e.Request.URL)
	assert.Equal(t, []HARNameVal{{"a", "1"}, {"next", "/home"}}, e.Request.QueryString)
	assert.Equal(t, []HARNameVal{{"sid", "abc"}}, e.Request.Cookies)
	require.NotNil(t, e.Request.PostData)
	assert.Equal(t, "id=kim", e.Request.PostData.Text)
	assert.Equal(t, 302, e.Response.Status)
	assert.Equal(t, "Found", e.Response.StatusText)
	assert.Equal(t, "/home", e.Response.RedirectURL)
	assert.Equal(t, []HARNameVal{{"sid", "def"}}, e.Response.Cookies)
	assert.Equal(t, "<p>mov", e.Response.Content.Text)
	assert.Equal(t, "[취약] stored xss", e.Comment)
}
