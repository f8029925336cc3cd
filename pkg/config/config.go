package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Bounds for validated settings.
const (
	MinChunkChars = 500
	MaxWorkers    = 8
	MinSpeed      = 0.5
	MaxSpeed      = 2.0
	MinAttempts   = 2
)

// Config holds the application configuration.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	TTS       TTSConfig       `yaml:"tts"`
	Converter ConverterConfig `yaml:"converter"`
	Retry     RetryConfig     `yaml:"retry"`
	Output    OutputConfig    `yaml:"output"`
	Log       LogConfig       `yaml:"log"`
	History   HistoryConfig   `yaml:"history"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	MaxChunkLength int `yaml:"max_chunk_length"`
}

// EspeakConfig holds settings for the command-line synthesis engine.
type EspeakConfig struct {
	Binary string `yaml:"binary"`
}

// EdgeConfig holds settings for the Edge network synthesis engine.
type EdgeConfig struct {
	VoiceID string `yaml:"voice"` // e.g. "en-US-AvaMultilingualNeural"
}

// TTSConfig holds Text-To-Speech settings.
type TTSConfig struct {
	Engine       string       `yaml:"engine"`
	DefaultVoice string       `yaml:"default_voice"`
	VoiceSpeed   float64      `yaml:"voice_speed"`
	VoiceTimeout Duration     `yaml:"voice_timeout"`
	FastStart    bool         `yaml:"fast_start"`
	Espeak       EspeakConfig `yaml:"espeak"`
	Edge         EdgeConfig   `yaml:"edge"`
}

// ConverterConfig holds audio converter detection settings.
type ConverterConfig struct {
	Binary        string   `yaml:"binary"`
	BundledPath   string   `yaml:"bundled_path"`
	DetectTimeout Duration `yaml:"detect_timeout"`
	RunTimeout    Duration `yaml:"run_timeout"`
}

// RetryConfig holds exponential backoff settings.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// OutputConfig holds output artifact settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_output_format"`
	DefaultPath   string `yaml:"default_output_path"`
	WorkDir       string `yaml:"work_dir"`
	Workers       int    `yaml:"workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server    LogSettings `yaml:"server"`
	Synthesis LogSettings `yaml:"synthesis"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// HistoryConfig holds conversion history settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxChunkLength: 5000,
		},
		TTS: TTSConfig{
			Engine:       "espeak",
			DefaultVoice: "en-us",
			VoiceSpeed:   1.0,
			VoiceTimeout: Duration(5 * time.Second),
			Espeak: EspeakConfig{
				Binary: "espeak-ng",
			},
			Edge: EdgeConfig{
				VoiceID: "en-US-AvaMultilingualNeural",
			},
		},
		Converter: ConverterConfig{
			Binary:        "ffmpeg",
			BundledPath:   "./bin/ffmpeg",
			DetectTimeout: Duration(3 * time.Second),
			RunTimeout:    Duration(120 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(1 * time.Second),
			MaxDelay:    Duration(10 * time.Second),
		},
		Output: OutputConfig{
			DefaultFormat: "wav",
			DefaultPath:   "./output",
			WorkDir:       "./work",
			Workers:       3,
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Synthesis: LogSettings{
				Path:  "./logs/synthesis.log",
				Level: "INFO",
			},
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/vocify.db",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces recognized values and numeric ranges.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkLength < MinChunkChars {
		return fmt.Errorf("max_chunk_length %d below minimum %d", c.Chunking.MaxChunkLength, MinChunkChars)
	}
	if c.TTS.VoiceSpeed < MinSpeed || c.TTS.VoiceSpeed > MaxSpeed {
		return fmt.Errorf("voice_speed %.2f out of range [%.1f, %.1f]", c.TTS.VoiceSpeed, MinSpeed, MaxSpeed)
	}
	switch c.TTS.Engine {
	case "espeak", "edge":
	default:
		return fmt.Errorf("unknown tts engine %q", c.TTS.Engine)
	}
	switch c.Output.DefaultFormat {
	case "wav", "mp3":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.DefaultFormat)
	}
	if c.Output.DefaultPath == "" {
		return fmt.Errorf("default_output_path must not be empty")
	}
	if c.Output.Workers < 1 || c.Output.Workers > MaxWorkers {
		return fmt.Errorf("workers %d out of range [1, %d]", c.Output.Workers, MaxWorkers)
	}
	if c.Retry.MaxAttempts < MinAttempts {
		return fmt.Errorf("max_attempts %d below minimum %d", c.Retry.MaxAttempts, MinAttempts)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Vocify Configuration
# --------------------
# Supported Duration units: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	// Inject comments for enum fields.
	reEngine := regexp.MustCompile(`(?m)^(\s+)engine:`)
	data = reEngine.ReplaceAll(data, []byte("${1}# Options: espeak, edge\n${1}engine:"))

	reFormat := regexp.MustCompile(`(?m)^(\s+)default_output_format:`)
	data = reFormat.ReplaceAll(data, []byte("${1}# Options: wav, mp3\n${1}default_output_format:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
