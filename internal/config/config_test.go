package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Menu.Enabled)
	assert.Equal(t, 58.0, cfg.Menu.Threshold)
	assert.Equal(t, 200, cfg.Progress.Every)
	assert.Equal(t, 20, cfg.Report.MaxValues)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", loc.String())
}

func TestLoadConfig_MergesDefaults(t *testing.T) {
	path := writeConfig(t, `
menu:
  threshold: 70
  save_candidates: true
report:
  include_time: true
  banned_file: banned.txt
debug: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Menu.Enabled)
	assert.Equal(t, 70.0, cfg.Menu.Threshold)
	assert.True(t, cfg.Menu.SaveCandidates)
	assert.Equal(t, 200, cfg.Progress.Every)
	assert.True(t, cfg.Report.IncludeTime)
	assert.Equal(t, "banned.txt", cfg.Report.BannedFile)
	assert.Equal(t, "Asia/Seoul", cfg.Report.Timezone)
	assert.True(t, cfg.Debug)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold", "menu:\n  threshold: 120\n"},
		{"every", "progress:\n  every: 0\n"},
		{"max values", "report:\n  max_values: -1\n"},
		{"timezone", "report:\n  timezone: Mars/Olympus\n"},
		{"yaml", "menu: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
