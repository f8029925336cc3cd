// Package resource detects external capabilities (audio converter binary,
// voice catalog) with bounded timeouts, caches the results, and collapses
// concurrent detections into a single probe per kind.
package resource

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"vocify/pkg/convert"
	"vocify/pkg/faults"
	"vocify/pkg/retry"
	"vocify/pkg/tts"
)

// Kind identifies a detectable capability.
type Kind string

const (
	AudioConverter Kind = "audio_converter"
	VoiceCatalog   Kind = "voice_catalog"
)

// Converter sources.
const (
	SourceBundled = "bundled"
	SourceSystem  = "system"
	SourceNone    = "none"
)

// Default probe bounds. Detection must never hang a caller.
const (
	DefaultDetectTimeout = 3 * time.Second
	DefaultVoiceTimeout  = 5 * time.Second
)

// Status is the cached outcome of a detection.
type Status struct {
	Kind             Kind
	Available        bool
	Source           string // converter only: bundled, system or none
	Path             string
	Voices           []tts.Voice
	Attempts         int
	DetectionLatency time.Duration
	CachedAt         time.Time
	Err              *faults.Record
}

// Options configures a Resolver. Zero values fall back to defaults; Runner
// and Stat are injectable for tests.
type Options struct {
	Engine          tts.Provider
	ConverterBinary string
	BundledPath     string
	DetectTimeout   time.Duration
	VoiceTimeout    time.Duration
	Policy          *retry.Policy
	Classifier      *faults.Classifier
	Runner          convert.Runner
	Stat            func(string) (os.FileInfo, error)
}

// Resolver caches capability detections. Both failures and successes are
// cached; Clear forces a fresh probe.
type Resolver struct {
	engine        tts.Provider
	binary        string
	bundledPath   string
	detectTimeout time.Duration
	voiceTimeout  time.Duration
	policy        *retry.Policy
	classifier    *faults.Classifier
	runner        convert.Runner
	stat          func(string) (os.FileInfo, error)

	mu       sync.Mutex
	cache    map[Kind]*Status
	inflight map[Kind]chan struct{}
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = DefaultDetectTimeout
	}
	if opts.VoiceTimeout <= 0 {
		opts.VoiceTimeout = DefaultVoiceTimeout
	}
	if opts.Policy == nil {
		opts.Policy = retry.Default()
	}
	if opts.Classifier == nil {
		opts.Classifier = faults.NewClassifier(faults.DefaultLogCapacity)
	}
	if opts.Runner == nil {
		opts.Runner = convert.NewExecRunner()
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	return &Resolver{
		engine:        opts.Engine,
		binary:        opts.ConverterBinary,
		bundledPath:   opts.BundledPath,
		detectTimeout: opts.DetectTimeout,
		voiceTimeout:  opts.VoiceTimeout,
		policy:        opts.Policy,
		classifier:    opts.Classifier,
		runner:        opts.Runner,
		stat:          opts.Stat,
		cache:         make(map[Kind]*Status),
		inflight:      make(map[Kind]chan struct{}),
	}
}

// Converter resolves the audio converter capability.
func (r *Resolver) Converter(ctx context.Context) *Status {
	return r.resolve(ctx, AudioConverter, r.probeConverter)
}

// Voices resolves the voice catalog.
func (r *Resolver) Voices(ctx context.Context) *Status {
	return r.resolve(ctx, VoiceCatalog, r.probeVoices)
}

// Cached returns the cached status for kind without probing.
func (r *Resolver) Cached(kind Kind) (*Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.cache[kind]
	return s, ok
}

// Clear drops the cached status for kind so the next call probes again.
func (r *Resolver) Clear(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, kind)
}

// ClearAll drops every cached status.
func (r *Resolver) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[Kind]*Status)
}

// resolve returns the cached status for kind, or runs probe exactly once even
// under concurrent callers. Late arrivals block on the in-flight probe.
func (r *Resolver) resolve(ctx context.Context, kind Kind, probe func(context.Context) *Status) *Status {
	for {
		r.mu.Lock()
		if s, ok := r.cache[kind]; ok {
			r.mu.Unlock()
			return s
		}
		if ch, ok := r.inflight[kind]; ok {
			r.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return &Status{
					Kind: kind,
					Err:  r.classifier.Classify(ctx.Err(), faults.Context{Op: faults.OpProbe}),
				}
			}
		}
		ch := make(chan struct{})
		r.inflight[kind] = ch
		r.mu.Unlock()

		status := probe(ctx)
		status.Kind = kind
		status.CachedAt = time.Now()

		r.mu.Lock()
		r.cache[kind] = status
		delete(r.inflight, kind)
		r.mu.Unlock()
		close(ch)

		slog.Debug("resource resolved",
			"kind", kind,
			"available", status.Available,
			"latency", status.DetectionLatency)
		return status
	}
}

// probeConverter prefers a bundled binary; otherwise it asks the system
// binary for its version within the detection timeout.
func (r *Resolver) probeConverter(ctx context.Context) *Status {
	start := time.Now()

	if r.bundledPath != "" {
		if info, err := r.stat(r.bundledPath); err == nil && !info.IsDir() {
			return &Status{
				Available:        true,
				Source:           SourceBundled,
				Path:             r.bundledPath,
				DetectionLatency: time.Since(start),
			}
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.detectTimeout)
	defer cancel()

	if _, err := r.runner.Run(probeCtx, r.binary, "-version"); err != nil {
		return &Status{
			Source:           SourceNone,
			DetectionLatency: time.Since(start),
			Err:              r.classifier.Classify(faults.ErrConverterMissing, faults.Context{Op: faults.OpProbe, Path: r.binary}),
		}
	}

	return &Status{
		Available:        true,
		Source:           SourceSystem,
		Path:             r.binary,
		DetectionLatency: time.Since(start),
	}
}

// probeVoices lists the engine's voices, retrying classified-retryable
// failures with backoff up to the policy's attempt limit.
func (r *Resolver) probeVoices(ctx context.Context) *Status {
	const key = "voice-catalog"
	start := time.Now()
	r.policy.Reset(key)

	var rec *faults.Record
	attempt := 0
	for {
		attempt = r.policy.NextAttempt(key)

		listCtx, cancel := context.WithTimeout(ctx, r.voiceTimeout)
		voices, err := r.engine.Voices(listCtx)
		cancel()

		if err == nil {
			if len(voices) == 0 {
				err = faults.ErrNoVoices
			} else {
				r.policy.Reset(key)
				return &Status{
					Available:        true,
					Voices:           voices,
					Attempts:         attempt,
					DetectionLatency: time.Since(start),
				}
			}
		}

		rec = r.classifier.Classify(err, faults.Context{Op: faults.OpListVoices})
		if !r.policy.ShouldRetry(rec) || r.policy.Exhausted(key) {
			break
		}

		slog.Warn("voice detection failed, retrying",
			"attempt", attempt,
			"max", r.policy.MaxAttempts(),
			"category", rec.Category)

		select {
		case <-ctx.Done():
			rec = r.classifier.Classify(ctx.Err(), faults.Context{Op: faults.OpListVoices})
			return &Status{Attempts: attempt, DetectionLatency: time.Since(start), Err: rec}
		case <-time.After(r.policy.Delay(attempt - 1)):
		}
	}

	return &Status{Attempts: attempt, DetectionLatency: time.Since(start), Err: rec}
}
