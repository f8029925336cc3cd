// Package espeak drives an external espeak-ng compatible synthesizer binary.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"vocify/pkg/faults"
	"vocify/pkg/tts"
)

// Words-per-minute baseline for speed 1.0.
const baseWPM = 175

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Provider implements tts.Provider by spawning the synthesizer binary per
// request.
type Provider struct {
	binary string
	runner Runner
}

// NewProvider creates a provider driving the given binary.
func NewProvider(binary string) *Provider {
	return &Provider{binary: binary, runner: execRunner{}}
}

// NewProviderWithRunner creates a provider with an injected runner.
func NewProviderWithRunner(binary string, r Runner) *Provider {
	return &Provider{binary: binary, runner: r}
}

// Synthesize generates a .wav file for text using the named voice.
func (p *Provider) Synthesize(ctx context.Context, text, voice string, speed float64, outputPath string) (string, error) {
	if voice == "" {
		return "", fmt.Errorf("synthesize: %w", faults.ErrVoiceNotFound)
	}

	if !strings.HasSuffix(strings.ToLower(outputPath), ".wav") {
		outputPath += ".wav"
	}

	args := []string{
		"-v", voice,
		"-s", strconv.Itoa(wpm(speed)),
		"-w", outputPath,
		"--", text,
	}

	out, err := p.runner.Run(ctx, p.binary, args...)
	tts.Log("espeak", voice, text, err)
	if err != nil {
		return "", p.wrapRunError(err, out, voice)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("synthesis produced no output: %w", err)
	}
	if info.Size() < tts.MinAudioSize {
		return "", fmt.Errorf("synthesis output suspiciously small (%d bytes): %w", info.Size(), faults.ErrEngineStart)
	}

	return "wav", nil
}

// Voices lists installed voices by parsing the binary's --voices output.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	out, err := p.runner.Run(ctx, p.binary, "--voices")
	if err != nil {
		return nil, p.wrapRunError(err, out, "")
	}

	voices := parseVoices(string(out))
	if len(voices) == 0 {
		return nil, faults.ErrNoVoices
	}
	return voices, nil
}

func (p *Provider) wrapRunError(err error, output []byte, voice string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%q: %w", p.binary, faults.ErrEngineStart)
	}

	combined := strings.ToLower(err.Error() + " " + string(output))
	if voice != "" && strings.Contains(combined, "voice") && strings.Contains(combined, "not found") {
		return fmt.Errorf("voice %q: %w", voice, faults.ErrVoiceNotFound)
	}

	return fmt.Errorf("%s: %w", p.binary, err)
}

// wpm converts a relative speed to words per minute.
func wpm(speed float64) int {
	if speed <= 0 {
		speed = 1.0
	}
	return int(baseWPM * speed)
}

// parseVoices reads espeak-ng's tabular voice listing:
//
//	Pty Language Age/Gender VoiceName        File        Other Languages
//	 5  af              M  afrikaans          gmw/af
func parseVoices(out string) []tts.Voice {
	var voices []tts.Voice

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header or blank
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}

		voices = append(voices, tts.Voice{
			ID:       fields[3],
			Name:     fields[3],
			Language: fields[1],
		})
	}

	return voices
}
