package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5000, cfg.Chunking.MaxChunkLength)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, time.Duration(cfg.Retry.BaseDelay))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Retry.MaxDelay))
	assert.Equal(t, 3*time.Second, time.Duration(cfg.Converter.DetectTimeout))
	assert.Equal(t, 5*time.Second, time.Duration(cfg.TTS.VoiceTimeout))
	assert.Equal(t, "wav", cfg.Output.DefaultFormat)
	assert.NotEmpty(t, cfg.Output.DefaultPath)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocify.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// File should now exist and contain the enum comments.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Options: espeak, edge")
	assert.Contains(t, string(data), "# Options: wav, mp3")
}

func TestLoadMergesUserValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocify.yaml")

	userYAML := `
chunking:
  max_chunk_length: 1200
tts:
  voice_speed: 1.5
  voice_timeout: 2s
output:
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(userYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Chunking.MaxChunkLength)
	assert.Equal(t, 1.5, cfg.TTS.VoiceSpeed)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.TTS.VoiceTimeout))
	assert.Equal(t, 2, cfg.Output.Workers)
	// Untouched keys keep defaults.
	assert.Equal(t, "espeak", cfg.TTS.Engine)
	assert.Equal(t, "ffmpeg", cfg.Converter.Binary)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk length too small", func(c *Config) { c.Chunking.MaxChunkLength = 100 }},
		{"speed too slow", func(c *Config) { c.TTS.VoiceSpeed = 0.1 }},
		{"speed too fast", func(c *Config) { c.TTS.VoiceSpeed = 3.0 }},
		{"unknown engine", func(c *Config) { c.TTS.Engine = "festival" }},
		{"unknown format", func(c *Config) { c.Output.DefaultFormat = "ogg" }},
		{"empty output path", func(c *Config) { c.Output.DefaultPath = "" }},
		{"zero workers", func(c *Config) { c.Output.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Output.Workers = 99 }},
		{"attempts below minimum", func(c *Config) { c.Retry.MaxAttempts = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"3s", 3 * time.Second},
		{"500ms", 500 * time.Millisecond},
		{"2h45m", 2*time.Hour + 45*time.Minute},
		{"1d", Day},
		{"1w", Week},
		{"1d2h", Day + 2*time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDuration("10x")
	assert.Error(t, err)
}
