package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vocify/pkg/config"
	"vocify/pkg/convert"
	"vocify/pkg/faults"
	"vocify/pkg/history"
	"vocify/pkg/logging"
	"vocify/pkg/readiness"
	"vocify/pkg/resource"
	"vocify/pkg/retry"
	"vocify/pkg/session"
	"vocify/pkg/tts"
	"vocify/pkg/tts/edge"
	"vocify/pkg/tts/espeak"
	"vocify/pkg/version"
)

// Input files the reader accepts. Anything else needs converting first.
const maxInputBytes = 10 << 20

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".text": true,
}

var (
	configPath = flag.String("config", "configs/vocify.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	inputPath  = flag.String("in", "", "Input text file (- for stdin)")
	outputPath = flag.String("out", "", "Output audio file (defaults to the configured output folder)")
	voiceFlag  = flag.String("voice", "", "Voice ID (overrides config)")
	formatFlag = flag.String("format", "", "Output format: wav or mp3 (overrides config)")
	speedFlag  = flag.Float64("speed", 0, "Voice speed 0.5-2.0 (overrides config)")
	listVoices = flag.Bool("list-voices", false, "List detected voices and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional; Edge engine credentials usually live in .env.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	tts.SetLogPath(cfg.Log.Synthesis.Path)
	tts.SetEnabled(true)

	slog.Info("Vocify started", "version", version.Version, "engine", cfg.TTS.Engine)

	engine, defaultVoice, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	classifier := faults.NewClassifier(faults.DefaultLogCapacity)
	policy := retry.New(
		time.Duration(cfg.Retry.BaseDelay),
		time.Duration(cfg.Retry.MaxDelay),
		cfg.Retry.MaxAttempts,
	)

	voiceTimeout := time.Duration(cfg.TTS.VoiceTimeout)
	if cfg.TTS.FastStart {
		// Fast start trades detection patience for snappier startup.
		voiceTimeout /= 2
	}

	resolver := resource.New(resource.Options{
		Engine:          engine,
		ConverterBinary: cfg.Converter.Binary,
		BundledPath:     cfg.Converter.BundledPath,
		DetectTimeout:   time.Duration(cfg.Converter.DetectTimeout),
		VoiceTimeout:    voiceTimeout,
		Policy:          policy,
		Classifier:      classifier,
	})

	machine := readiness.New()
	machine.Subscribe(readiness.TopicReadiness, func(_ readiness.Topic, snap readiness.Snapshot) {
		slog.Info("readiness changed", "ready", snap.Ready, "voices", snap.VoiceCount, "mp3", snap.MP3Selectable)
	})
	machine.SetDefaultOutputFolder(cfg.Output.DefaultPath)

	machine.Subscribe(readiness.TopicAction, func(_ readiness.Topic, snap readiness.Snapshot) {
		slog.Info("suggested action", "action", snap.SuggestedAction)
	})

	voiceStatus := resolver.Voices(ctx)
	machine.SetVoices(voiceStatus.Voices, voiceStatus.Attempts, voiceStatus.Err)
	machine.SuggestAction(voiceStatus.Err)

	converterStatus := resolver.Converter(ctx)
	machine.SetConverter(converterStatus)
	machine.SuggestAction(converterStatus.Err)
	machine.SetInitializing(false)

	if *listVoices {
		return printVoices(voiceStatus)
	}

	if !machine.Ready() {
		if voiceStatus.Err != nil {
			return recordError(voiceStatus.Err)
		}
		return errors.New("not ready to convert; check the log for details")
	}

	format := cfg.Output.DefaultFormat
	if *formatFlag != "" {
		format = *formatFlag
	}
	if format == "mp3" && !machine.MP3Selectable() {
		slog.Warn("MP3 output unavailable without an audio converter, falling back to WAV")
		format = "wav"
	}

	var converter convert.Converter
	if converterStatus.Available {
		converter = convert.NewFFmpeg(converterStatus.Path, time.Duration(cfg.Converter.RunTimeout))
		slog.Info("audio converter detected",
			"source", converterStatus.Source,
			"path", converterStatus.Path,
			"latency", converterStatus.DetectionLatency)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			// History is best-effort; a broken db file must not block work.
			slog.Warn("history disabled", "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	text, err := readInput(*inputPath, classifier)
	if err != nil {
		return err
	}

	voice := defaultVoice
	if *voiceFlag != "" {
		voice = *voiceFlag
	}
	speed := cfg.TTS.VoiceSpeed
	if *speedFlag != 0 {
		speed = *speedFlag
	}

	orch := session.NewOrchestrator(session.Options{
		Engine:        engine,
		Converter:     converter,
		Classifier:    classifier,
		Policy:        policy,
		Workers:       cfg.Output.Workers,
		WorkDir:       cfg.Output.WorkDir,
		MaxChunkChars: cfg.Chunking.MaxChunkLength,
		OnProgress: func(p session.Progress) {
			if p.Status == session.ChunkDone {
				fmt.Printf("\rchunks %d/%d", p.Completed, p.Total)
			}
		},
	})

	start := time.Now()
	sess, err := orch.Convert(ctx, session.Request{
		Text:         text,
		Voice:        voice,
		Speed:        speed,
		OutputFormat: format,
		OutputPath:   resolveOutputPath(*outputPath, cfg.Output.DefaultPath, format),
	})
	fmt.Println()

	if store != nil && sess != nil {
		if herr := store.RecordSession(sess, time.Since(start)); herr != nil {
			slog.Warn("failed to record session", "error", herr)
		}
	}

	if err != nil {
		var sessErr *session.SessionError
		if errors.As(err, &sessErr) {
			if store != nil {
				if herr := store.RecordError(sessErr.Record); herr != nil {
					slog.Warn("failed to record error", "error", herr)
				}
			}
			return recordError(sessErr.Record)
		}
		var rec *faults.Record
		if errors.As(err, &rec) {
			return recordError(rec)
		}
		return err
	}

	fmt.Println("Output:", sess.OutputPath)
	return nil
}

// buildEngine selects the synthesis provider and its default voice.
func buildEngine(cfg *config.Config) (tts.Provider, string, error) {
	switch cfg.TTS.Engine {
	case "espeak":
		return espeak.NewProvider(cfg.TTS.Espeak.Binary), cfg.TTS.DefaultVoice, nil
	case "edge":
		settings, err := edge.LoadSettings()
		if err != nil {
			return nil, "", fmt.Errorf("edge engine: %w", err)
		}
		return edge.NewProvider(settings), cfg.TTS.Edge.VoiceID, nil
	default:
		return nil, "", fmt.Errorf("unknown tts engine %q", cfg.TTS.Engine)
	}
}

// readInput loads the text to convert, classifying filesystem and file-type
// problems so the messages match what the rest of the pipeline produces.
func readInput(path string, classifier *faults.Classifier) (string, error) {
	if path == "" {
		return "", recordError(classifier.Classify(faults.ErrEmptyInput, faults.Context{Op: faults.OpReadInput}))
	}
	if path == "-" {
		data, err := readAllStdin()
		if err != nil {
			return "", recordError(classifier.Classify(err, faults.Context{Op: faults.OpReadInput}))
		}
		return data, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", recordError(classifier.Classify(err, faults.Context{Op: faults.OpReadInput, Path: path}))
	}
	if info.IsDir() {
		return "", recordError(classifier.Classify(syscall.EISDIR, faults.Context{Op: faults.OpReadInput, Path: path}))
	}
	if ext := strings.ToLower(filepath.Ext(path)); !textExtensions[ext] {
		err := fmt.Errorf("%w: %s", faults.ErrUnsupportedFileType, ext)
		return "", recordError(classifier.Classify(err, faults.Context{Op: faults.OpReadInput, Path: path}))
	}
	if info.Size() > maxInputBytes {
		err := fmt.Errorf("%w: %d bytes", faults.ErrFileTooLarge, info.Size())
		return "", recordError(classifier.Classify(err, faults.Context{Op: faults.OpReadInput, Path: path}))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", recordError(classifier.Classify(err, faults.Context{Op: faults.OpReadInput, Path: path}))
	}
	return string(data), nil
}

func readAllStdin() (string, error) {
	var b strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, err := os.Stdin.Read(buf)
		b.Write(buf[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		if b.Len() > maxInputBytes {
			return "", fmt.Errorf("%w: stdin exceeds %d bytes", faults.ErrFileTooLarge, maxInputBytes)
		}
	}
}

// resolveOutputPath places the result in the configured output folder when no
// explicit path was given.
func resolveOutputPath(flagPath, defaultDir, format string) string {
	if flagPath != "" {
		return flagPath
	}
	name := fmt.Sprintf("vocify_%s.%s", time.Now().Format("20060102_150405"), format)
	return filepath.Join(defaultDir, name)
}

func printVoices(status *resource.Status) error {
	if status.Err != nil {
		return recordError(status.Err)
	}
	for _, v := range status.Voices {
		fmt.Printf("%-40s %-10s %s\n", v.ID, v.Language, v.Name)
	}
	fmt.Printf("%d voices (detected in %s, %d attempt(s))\n",
		len(status.Voices), status.DetectionLatency.Round(time.Millisecond), status.Attempts)
	return nil
}

// recordError turns a classified record into the user-facing failure text:
// message, troubleshooting steps, and the suggested next action.
func recordError(rec *faults.Record) error {
	var b strings.Builder
	b.WriteString(rec.UserMessage)
	for _, step := range rec.Troubleshooting {
		b.WriteString("\n  - ")
		b.WriteString(step)
	}
	if rec.SuggestedAction != faults.ActionNone {
		fmt.Fprintf(&b, "\n  (suggested action: %s)", rec.SuggestedAction)
	}
	if rec.Severity == faults.SeverityCritical {
		fmt.Fprintf(&b, "\n  [%s] this problem blocks all conversions", rec.ID)
	}
	return errors.New(b.String())
}
