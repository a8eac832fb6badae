package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.PollMaxDuration)
	assert.EqualValues(t, 500<<20, cfg.MaxUploadBytes)
	assert.Contains(t, cfg.VideoExtensions, ".mp4")
	assert.Equal(t, 10, cfg.LiveFPS)
}

func TestLoadLayersFileUnderEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://analysis.example.com
poll_interval: 500ms
allowed_video_extensions: [".mp4", ".mov"]
live_fps: 15
`), 0o644))

	cfg, err := LoadFrom(path, map[string]string{"LIVE_FPS": "5"})
	require.NoError(t, err)

	assert.Equal(t, "https://analysis.example.com", cfg.APIURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, []string{".mp4", ".mov"}, cfg.VideoExtensions)
	assert.Equal(t, 5, cfg.LiveFPS)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, environ := range map[string]map[string]string{
		"ws origin":    {"API_URL": "ws://localhost:8000"},
		"mode":         {"API_MODE": "coach"},
		"zero poll":    {"POLL_INTERVAL": "0s"},
		"fps":          {"LIVE_FPS": "0"},
		"jpeg quality": {"LIVE_JPEG_QUALITY": "101"},
		"bad duration": {"POLL_INTERVAL": "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom("", environ)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestDerivedSettings(t *testing.T) {
	cfg, err := LoadFrom("", map[string]string{
		"MAX_UPLOAD_BYTES":         "1024",
		"ALLOWED_VIDEO_EXTENSIONS": ".mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.VideoRules().MaxBytes)
	assert.Equal(t, []string{".mp4"}, cfg.VideoRules().AllowedExtensions)
	assert.Nil(t, cfg.TeamParams())

	cfg, err = LoadFrom("", map[string]string{"API_MODE": "team", "TEAM_JERSEY_COLOR": "red", "TEAM_SIDE": "right"})
	require.NoError(t, err)
	require.NotNil(t, cfg.TeamParams())
	assert.Equal(t, "red", cfg.TeamParams().JerseyColor)
	assert.Equal(t, "right", cfg.TeamParams().TeamSide)
}
