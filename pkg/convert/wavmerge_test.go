package convert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}

// silentStreamer emits a fixed number of silent samples.
type silentStreamer struct {
	remaining int
}

func (s *silentStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	n := len(samples)
	if n > s.remaining {
		n = s.remaining
	}
	for i := 0; i < n; i++ {
		samples[i] = [2]float64{}
	}
	s.remaining -= n
	return n, true
}

func (s *silentStreamer) Err() error { return nil }

// writeTestWAV encodes numSamples of silence to path.
func writeTestWAV(t *testing.T, path string, numSamples int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, wav.Encode(f, &silentStreamer{remaining: numSamples}, testFormat))
	require.NoError(t, f.Close())
}

func decodedLen(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	streamer, _, err := wav.Decode(f)
	require.NoError(t, err)
	defer streamer.Close()
	return streamer.Len()
}

func TestMergeWAVConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "chunk_0.wav")
	b := filepath.Join(dir, "chunk_1.wav")
	c := filepath.Join(dir, "chunk_2.wav")
	writeTestWAV(t, a, 1000)
	writeTestWAV(t, b, 2000)
	writeTestWAV(t, c, 500)

	out := filepath.Join(dir, "merged.wav")
	require.NoError(t, MergeWAV([]string{a, b, c}, out))

	assert.Equal(t, 3500, decodedLen(t, out))
	assert.True(t, ValidateAudio(out))
}

func TestMergeWAVSingleInput(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "only.wav")
	writeTestWAV(t, a, 800)

	out := filepath.Join(dir, "merged.wav")
	require.NoError(t, MergeWAV([]string{a}, out))
	assert.Equal(t, 800, decodedLen(t, out))
}

func TestMergeWAVRejectsFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	writeTestWAV(t, a, 100)

	f, err := os.Create(b)
	require.NoError(t, err)
	mono := beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, &silentStreamer{remaining: 100}, mono))
	require.NoError(t, f.Close())

	err = MergeWAV([]string{a, b}, filepath.Join(dir, "out.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "differs")
}

func TestMergeWAVMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := MergeWAV([]string{filepath.Join(dir, "nope.wav")}, filepath.Join(dir, "out.wav"))
	assert.Error(t, err)
}

func TestMergeWAVNoInputs(t *testing.T) {
	assert.Error(t, MergeWAV(nil, "out.wav"))
}
