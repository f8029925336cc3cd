// Package convert wraps the external audio converter (ffmpeg) and provides a
// pure-Go WAV fallback for when the converter is absent.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// Converter abstracts the audio tool used for transcoding and merging.
type Converter interface {
	// Validate reports whether path holds decodable audio.
	Validate(ctx context.Context, path string) bool
	// Transcode converts input to the target format, returning the new path.
	Transcode(ctx context.Context, input, format string) (string, error)
	// Merge concatenates orderedInputs into output. Input order is final.
	Merge(ctx context.Context, orderedInputs []string, output string) error
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExecRunner returns a Runner that executes real processes.
func NewExecRunner() Runner { return execRunner{} }

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		if combined.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(combined.String()))
		}
		return nil, err
	}
	return combined.Bytes(), nil
}

// FFmpeg implements Converter by invoking an ffmpeg binary.
type FFmpeg struct {
	bin     string
	runner  Runner
	timeout time.Duration
}

// NewFFmpeg creates a converter around the given binary path.
func NewFFmpeg(bin string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{bin: bin, runner: execRunner{}, timeout: timeout}
}

// NewFFmpegWithRunner creates a converter with an injected runner.
func NewFFmpegWithRunner(bin string, timeout time.Duration, r Runner) *FFmpeg {
	return &FFmpeg{bin: bin, runner: r, timeout: timeout}
}

// Validate decodes the file header in-process; no subprocess is spawned.
func (f *FFmpeg) Validate(ctx context.Context, path string) bool {
	return ValidateAudio(path)
}

// Transcode converts input into the target format next to the input file.
func (f *FFmpeg) Transcode(ctx context.Context, input, format string) (string, error) {
	output := replaceExt(input, "."+format)

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	args := []string{"-y", "-loglevel", "error", "-i", input}
	if format == "mp3" {
		args = append(args, "-codec:a", "libmp3lame", "-qscale:a", "2")
	}
	args = append(args, output)

	if _, err := f.runner.Run(ctx, f.bin, args...); err != nil {
		return "", fmt.Errorf("transcode %s to %s: %w", filepath.Base(input), format, err)
	}
	return output, nil
}

// Merge concatenates the ordered inputs into output using the concat demuxer.
func (f *FFmpeg) Merge(ctx context.Context, orderedInputs []string, output string) error {
	if len(orderedInputs) == 0 {
		return fmt.Errorf("merge: no inputs")
	}

	listPath, err := writeConcatList(orderedInputs, filepath.Dir(output))
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-y", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}
	if _, err := f.runner.Run(ctx, f.bin, args...); err != nil {
		return fmt.Errorf("merge %d inputs: %w", len(orderedInputs), err)
	}
	return nil
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// writeConcatList writes the concat demuxer input list, one file per line.
func writeConcatList(inputs []string, dir string) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", fmt.Errorf("concat list: %w", err)
		}
		// Single quotes inside paths must be escaped for the demuxer.
		abs = strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}

	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("concat list: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("concat list: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("concat list: %w", err)
	}
	return f.Name(), nil
}

// ValidateAudio reports whether path holds a decodable wav or mp3 file.
func ValidateAudio(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, _, err := mp3.Decode(f)
		if err != nil {
			return false
		}
		streamer.Close()
		return true
	default:
		streamer, _, err := wav.Decode(f)
		if err != nil {
			return false
		}
		streamer.Close()
		return true
	}
}

func replaceExt(path, newExt string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + newExt
}
