package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmm-sec/saz-insights/pkg/saz"
)

func TestExportRows_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportRows(&buf, sampleRows(), saz.FormatJSON, Layout{}))

	var got []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRows(), got)
	assert.Contains(t, buf.String(), `"path": "[About]"`)
}

func TestExportRows_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportRows(&buf, nil, saz.FormatJSON, Layout{}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestExportRows_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportRows(&buf, sampleRows(), saz.FormatJSONLines, Layout{}))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 3)
}

func TestExportRows_CSV(t *testing.T) {
	var buf bytes.Buffer
	layout := Layout{IncludeTime: true}
	require.NoError(t, ExportRows(&buf, sampleRows(), saz.FormatCSV, layout))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, layout.Columns(), records[0])
	assert.Equal(t, "2024-03-01 10:00:01", records[1][5])
}

func TestExportRows_Unsupported(t *testing.T) {
	assert.Error(t, ExportRows(&bytes.Buffer{}, nil, saz.FormatHAR, Layout{}))
}
