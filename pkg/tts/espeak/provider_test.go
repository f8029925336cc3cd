package espeak

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocify/pkg/faults"
)

const voicesOutput = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  en-us           --/M      English_(America)  gmw/en-US            (en 10)
 5  de              --/M      German             gmw/de
`

// fakeRunner records invocations and plays back scripted results.
type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
	onRun  func(name string, args []string)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.onRun != nil {
		f.onRun(name, args)
	}
	return f.output, f.err
}

func TestVoicesParsesListing(t *testing.T) {
	runner := &fakeRunner{output: []byte(voicesOutput)}
	p := NewProviderWithRunner("espeak-ng", runner)

	voices, err := p.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 3)

	assert.Equal(t, "English_(America)", voices[1].ID)
	assert.Equal(t, "en-us", voices[1].Language)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"espeak-ng", "--voices"}, runner.calls[0])
}

func TestVoicesEmptyListing(t *testing.T) {
	runner := &fakeRunner{output: []byte("Pty Language Age/Gender VoiceName File\n")}
	p := NewProviderWithRunner("espeak-ng", runner)

	_, err := p.Voices(context.Background())
	assert.ErrorIs(t, err, faults.ErrNoVoices)
}

func TestVoicesBinaryMissing(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("exec: %w", exec.ErrNotFound)}
	p := NewProviderWithRunner("espeak-ng", runner)

	_, err := p.Voices(context.Background())
	assert.ErrorIs(t, err, faults.ErrEngineStart)
}

func TestSynthesizeWritesWav(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "chunk_0.wav")

	runner := &fakeRunner{
		onRun: func(_ string, args []string) {
			// Simulate the engine writing the requested output file.
			for i, a := range args {
				if a == "-w" && i+1 < len(args) {
					_ = os.WriteFile(args[i+1], make([]byte, 4096), 0o644)
				}
			}
		},
	}
	p := NewProviderWithRunner("espeak-ng", runner)

	format, err := p.Synthesize(context.Background(), "Hello there.", "en-us", 1.2, out)
	require.NoError(t, err)
	assert.Equal(t, "wav", format)

	require.Len(t, runner.calls, 1)
	call := strings.Join(runner.calls[0], " ")
	assert.Contains(t, call, "-v en-us")
	assert.Contains(t, call, "-s 210") // 175 * 1.2
	assert.Contains(t, call, "-w "+out)
	assert.Contains(t, call, "Hello there.")
}

func TestSynthesizeRequiresVoice(t *testing.T) {
	p := NewProviderWithRunner("espeak-ng", &fakeRunner{})

	_, err := p.Synthesize(context.Background(), "text", "", 1.0, "out.wav")
	assert.ErrorIs(t, err, faults.ErrVoiceNotFound)
}

func TestSynthesizeRejectsTinyOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "tiny.wav")

	runner := &fakeRunner{
		onRun: func(_ string, args []string) {
			_ = os.WriteFile(out, []byte("xx"), 0o644)
		},
	}
	p := NewProviderWithRunner("espeak-ng", runner)

	_, err := p.Synthesize(context.Background(), "text", "en-us", 1.0, out)
	assert.ErrorIs(t, err, faults.ErrEngineStart)
}

func TestSynthesizeDetectsMissingVoice(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1: voice 'nl-xx' not found")}
	p := NewProviderWithRunner("espeak-ng", runner)

	_, err := p.Synthesize(context.Background(), "text", "nl-xx", 1.0, "out.wav")
	assert.ErrorIs(t, err, faults.ErrVoiceNotFound)
}

func TestWPMClamp(t *testing.T) {
	assert.Equal(t, 175, wpm(0))
	assert.Equal(t, 175, wpm(1.0))
	assert.Equal(t, 87, wpm(0.5))
	assert.Equal(t, 350, wpm(2.0))
}
