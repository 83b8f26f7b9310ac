package saz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadataXML(t *testing.T) {
	meta, err := ParseMetadataXML([]byte(sampleMetaXML))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01T10:00:01.5+09:00", meta.ClientBeginRequest)
	assert.Equal(t, "127.0.0.1", meta.Flags["x-clientip"])

	ts, ok := meta.RequestTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 1, 0, 1, 500000000, time.UTC), ts.UTC())
}

func TestParseMetadataXML_StripsControlChars(t *testing.T) {
	data := []byte("<Session><SessionFlags><SessionFlag N=\"ui-comments\" V=\"a\x01b\" /></SessionFlags></Session>")
	meta, err := ParseMetadataXML(data)
	require.NoError(t, err)
	assert.Equal(t, "ab", meta.Comment())
}

func TestParseMetadataXML_Invalid(t *testing.T) {
	_, err := ParseMetadataXML([]byte("<Session>"))
	assert.Error(t, err)
}

func TestIsMarkedVulnerable(t *testing.T) {
	tests := []struct {
		comment string
		want    bool
	}{
		{"", false},
		{"취약 - reflected", true},
		{"VULN: sqli", true},
		{"checked, fine", false},
	}
	for _, tt := range tests {
		meta := &SessionMeta{Flags: map[string]string{FlagComment: tt.comment}}
		assert.Equal(t, tt.want, meta.IsMarkedVulnerable(), tt.comment)
	}

	var nilMeta *SessionMeta
	assert.False(t, nilMeta.IsMarkedVulnerable())
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01T10:00:00.1234567+09:00")
	require.NoError(t, err)
	assert.Equal(t, 123456700, ts.Nanosecond())

	ts, err = ParseTimestamp("2024-03-01T10:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestRequestTime_FallsBack(t *testing.T) {
	meta := &SessionMeta{ClientBeginRequest: "bogus", ClientConnected: "2024-01-02T03:04:05Z"}
	ts, ok := meta.RequestTime()
	require.True(t, ok)
	assert.Equal(t, 3, ts.Hour())

	_, ok = (&SessionMeta{}).RequestTime()
	assert.False(t, ok)
}
