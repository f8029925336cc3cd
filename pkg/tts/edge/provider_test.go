package edge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSSMLEscapesText(t *testing.T) {
	ssml := buildSSML("en-US-AvaMultilingualNeural", `Tom & Jerry say "<hi>"`, 1.0)

	assert.Contains(t, ssml, "Tom &amp; Jerry say &quot;&lt;hi&gt;&quot;")
	assert.Contains(t, ssml, "name='en-US-AvaMultilingualNeural'")
	assert.NotContains(t, ssml, "<hi>")
}

func TestProsodyRate(t *testing.T) {
	tests := []struct {
		speed float64
		want  string
	}{
		{1.0, "+0%"},
		{1.5, "+50%"},
		{0.5, "-50%"},
		{2.0, "+100%"},
		{0, "+0%"}, // invalid speed falls back to normal
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, prosodyRate(tt.speed), "speed %.1f", tt.speed)
	}
}

func TestWriteAudioFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.mp3")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	// 2-byte length prefix (header is 4 bytes), then audio payload.
	frame := append([]byte{0x00, 0x04}, []byte("hdr!audio-bytes")...)
	require.NoError(t, writeAudioFrame(frame, f))

	// Truncated and empty frames are skipped without error.
	require.NoError(t, writeAudioFrame([]byte{0x00}, f))
	require.NoError(t, writeAudioFrame([]byte{0x00, 0xFF, 0x01}, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestLoadSettingsReportsMissing(t *testing.T) {
	for _, key := range []string{
		"EDGE_TTS_BASE_URL", "EDGE_TTS_ORIGIN", "EDGE_TTS_USER_AGENT",
		"EDGE_TTS_TRUSTED_CLIENT_TOKEN", "EDGE_TTS_SEC_MS_GEC_VERSION",
	} {
		t.Setenv(key, "")
	}

	_, err := LoadSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EDGE_TTS_BASE_URL")
}

func TestLoadSettingsComplete(t *testing.T) {
	t.Setenv("EDGE_TTS_BASE_URL", "wss://example.test/tts")
	t.Setenv("EDGE_TTS_ORIGIN", "https://example.test")
	t.Setenv("EDGE_TTS_USER_AGENT", "test-agent")
	t.Setenv("EDGE_TTS_TRUSTED_CLIENT_TOKEN", "token")
	t.Setenv("EDGE_TTS_SEC_MS_GEC_VERSION", "1-130")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/tts", s.BaseURL)
	assert.Equal(t, "token", s.TrustedClientToken)
}

func TestVoicesCatalogNotEmpty(t *testing.T) {
	p := NewProvider(Settings{})
	voices, err := p.Voices(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, voices)
	for _, v := range voices {
		assert.NotEmpty(t, v.ID)
		assert.NotEmpty(t, v.Language)
	}
}
