package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vocify/pkg/chunker"
	"vocify/pkg/convert"
	"vocify/pkg/faults"
	"vocify/pkg/retry"
	"vocify/pkg/tts"
)

// Pool and chunking defaults for hosts that configure nothing.
const (
	DefaultWorkers    = 3
	DefaultChunkChars = 5000
)

// Request describes one conversion.
type Request struct {
	Text         string
	Voice        string
	Speed        float64
	OutputFormat string // wav or mp3; empty keeps the engine's native format
	OutputPath   string // empty places the result in the work directory
}

// Options configures an Orchestrator. Converter may be nil when no audio
// converter was detected; WAV sessions then merge in-process.
type Options struct {
	Engine        tts.Provider
	Converter     convert.Converter
	Classifier    *faults.Classifier
	Policy        *retry.Policy
	Workers       int
	WorkDir       string
	MaxChunkChars int
	OnProgress    func(Progress)
}

// Orchestrator runs conversion sessions.
type Orchestrator struct {
	engine        tts.Provider
	converter     convert.Converter
	classifier    *faults.Classifier
	policy        *retry.Policy
	workers       int
	workDir       string
	maxChunkChars int
	onProgress    func(Progress)
}

// NewOrchestrator creates an Orchestrator with defaults applied.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Classifier == nil {
		opts.Classifier = faults.NewClassifier(faults.DefaultLogCapacity)
	}
	if opts.Policy == nil {
		opts.Policy = retry.Default()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.MaxChunkChars < 1 {
		opts.MaxChunkChars = DefaultChunkChars
	}
	return &Orchestrator{
		engine:        opts.Engine,
		converter:     opts.Converter,
		classifier:    opts.Classifier,
		policy:        opts.Policy,
		workers:       opts.Workers,
		workDir:       opts.WorkDir,
		maxChunkChars: opts.MaxChunkChars,
		onProgress:    opts.OnProgress,
	}
}

// Convert runs a full session: split, synthesize in parallel, merge in index
// order, transcode if the requested format differs from the engine's native
// one. On failure the session is returned alongside a SessionError so the
// host can inspect chunk state; partial chunk files are retained.
func (o *Orchestrator) Convert(ctx context.Context, req Request) (*Session, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, o.classifier.Classify(faults.ErrEmptyInput, faults.Context{Op: faults.OpReadInput})
	}

	parts := chunker.Split(req.Text, o.maxChunkChars)
	sess := &Session{
		ID:           uuid.New().String(),
		VoiceID:      req.Voice,
		Speed:        req.Speed,
		OutputFormat: req.OutputFormat,
		Status:       StatusRunning,
	}
	for i, p := range parts {
		sess.Chunks = append(sess.Chunks, &ChunkJob{Index: i, Text: p, Status: ChunkPending})
	}

	workDir := filepath.Join(o.workDir, sess.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		sess.Status = StatusFailed
		rec := o.classifier.Classify(err, faults.Context{Op: faults.OpReadInput, Path: workDir})
		return sess, &SessionError{Session: sess, Record: rec}
	}

	slog.Info("session started",
		"session", sess.ID,
		"chunks", len(sess.Chunks),
		"voice", req.Voice,
		"format", req.OutputFormat)

	if rec := o.synthesizeAll(ctx, sess, workDir); rec != nil {
		if ctx.Err() != nil {
			sess.Status = StatusCancelled
			o.cleanup(sess.ID, workDir)
		} else {
			sess.Status = StatusFailed
		}
		return sess, &SessionError{Session: sess, Record: rec}
	}

	outPath, rec := o.assemble(ctx, sess, workDir, req)
	if rec != nil {
		// All chunks are synthesized once assemble runs; intermediates
		// are cleaned up on merge and transcode failures alike.
		o.cleanup(sess.ID, workDir)
		sess.Status = StatusFailed
		return sess, &SessionError{Session: sess, Record: rec}
	}

	o.cleanup(sess.ID, workDir)
	sess.Status = StatusCompleted
	sess.OutputPath = outPath
	slog.Info("session completed", "session", sess.ID, "output", outPath)
	return sess, nil
}

// synthesizeAll drives the worker pool. The first terminal chunk failure
// cancels the pool; chunks not yet scheduled stay pending.
func (o *Orchestrator) synthesizeAll(ctx context.Context, sess *Session, workDir string) *faults.Record {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan *ChunkJob)
	go func() {
		defer close(jobs)
		for _, job := range sess.Chunks {
			select {
			case jobs <- job:
			case <-poolCtx.Done():
				return
			}
		}
	}()

	var (
		errMu   sync.Mutex
		termRec *faults.Record
	)
	fail := func(rec *faults.Record) {
		errMu.Lock()
		if termRec == nil {
			termRec = rec
		}
		errMu.Unlock()
		cancel()
	}

	workers := o.workers
	if workers > len(sess.Chunks) {
		workers = len(sess.Chunks)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if poolCtx.Err() != nil {
					return
				}
				if rec := o.runChunk(poolCtx, sess, workDir, job); rec != nil {
					fail(rec)
					return
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil && termRec == nil {
		termRec = o.classifier.Classify(ctx.Err(), faults.Context{Op: faults.OpSynthesize})
	}
	return termRec
}

// runChunk synthesizes one chunk, retrying in place while the classified
// error permits and attempts remain.
func (o *Orchestrator) runChunk(ctx context.Context, sess *Session, workDir string, job *ChunkJob) *faults.Record {
	key := sess.ID + ":chunk:" + strconv.Itoa(job.Index)
	defer o.policy.Reset(key)

	base := filepath.Join(workDir, fmt.Sprintf("chunk_%04d", job.Index))
	for {
		attempt := o.policy.NextAttempt(key)
		sess.update(func() {
			job.Status = ChunkRunning
			job.Attempts = attempt
		})
		o.notify(sess, job)

		format, err := o.engine.Synthesize(ctx, job.Text, sess.VoiceID, sess.Speed, base)
		if err == nil {
			sess.setNative(format)
			sess.update(func() {
				job.OutputPath = base + "." + format
				job.Status = ChunkDone
				job.Err = nil
			})
			o.notify(sess, job)
			return nil
		}

		rec := o.classifier.Classify(err, faults.Context{Op: faults.OpSynthesize, Voice: sess.VoiceID})
		if !o.policy.ShouldRetry(rec) || o.policy.Exhausted(key) {
			sess.update(func() {
				job.Status = ChunkFailed
				job.Err = rec
			})
			o.notify(sess, job)
			return rec
		}

		// Retry in place: the chunk goes back to pending, same index, same
		// worker, after backoff.
		sess.update(func() {
			job.Status = ChunkPending
			job.Err = rec
		})
		o.notify(sess, job)
		slog.Warn("chunk retry",
			"session", sess.ID,
			"chunk", job.Index,
			"attempt", attempt,
			"category", rec.Category)

		select {
		case <-ctx.Done():
			cancelRec := o.classifier.Classify(ctx.Err(), faults.Context{Op: faults.OpSynthesize})
			sess.update(func() {
				job.Status = ChunkFailed
				job.Err = cancelRec
			})
			return cancelRec
		case <-time.After(o.policy.Delay(attempt - 1)):
		}
	}
}

// assemble merges the chunk outputs strictly by index and transcodes to the
// requested format when it differs from the engine's native one.
func (o *Orchestrator) assemble(ctx context.Context, sess *Session, workDir string, req Request) (string, *faults.Record) {
	native := sess.native
	paths := make([]string, len(sess.Chunks))
	for i, c := range sess.Chunks {
		paths[i] = c.OutputPath
	}

	merged := paths[0]
	if len(paths) > 1 {
		merged = filepath.Join(workDir, "merged."+native)
		if err := o.merge(ctx, native, paths, merged); err != nil {
			return "", o.classifier.Classify(err, faults.Context{Op: faults.OpMerge})
		}
	}

	final := merged
	if req.OutputFormat != "" && req.OutputFormat != native {
		if o.converter == nil {
			return "", o.classifier.Classify(faults.ErrConverterMissing, faults.Context{Op: faults.OpTranscode})
		}
		out, err := o.converter.Transcode(ctx, merged, req.OutputFormat)
		if err != nil {
			return "", o.classifier.Classify(err, faults.Context{Op: faults.OpTranscode})
		}
		final = out
	}

	outPath := req.OutputPath
	if outPath == "" {
		outPath = filepath.Join(o.workDir, sess.ID+filepath.Ext(final))
	}
	if err := moveFile(final, outPath); err != nil {
		return "", o.classifier.Classify(err, faults.Context{Op: faults.OpMerge, Path: outPath})
	}
	return outPath, nil
}

func (o *Orchestrator) merge(ctx context.Context, native string, paths []string, output string) error {
	if o.converter != nil {
		return o.converter.Merge(ctx, paths, output)
	}
	if native == "wav" {
		return convert.MergeWAV(paths, output)
	}
	return faults.ErrConverterMissing
}

// cleanup removes the session work directory. Failures never abort the
// session; they are classified for the audit trail and logged.
func (o *Orchestrator) cleanup(sessionID, workDir string) {
	if err := os.RemoveAll(workDir); err != nil {
		o.classifier.Classify(err, faults.Context{Op: faults.OpCleanup, Path: workDir})
		slog.Warn("cleanup failed", "session", sessionID, "dir", workDir, "error", err)
	}
}

func (o *Orchestrator) notify(sess *Session, job *ChunkJob) {
	if o.onProgress == nil {
		return
	}
	sess.mu.Lock()
	p := Progress{
		SessionID: sess.ID,
		Index:     job.Index,
		Status:    job.Status,
		Attempts:  job.Attempts,
		Total:     len(sess.Chunks),
	}
	for _, c := range sess.Chunks {
		if c.Status == ChunkDone {
			p.Completed++
		}
	}
	sess.mu.Unlock()
	o.onProgress(p)
}

// moveFile renames src to dst, copying across filesystems when rename fails.
func moveFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
