package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Hotkey modes.
const (
	ModePushToTalk = "PushToTalk"
	ModeToggle     = "Toggle"
)

// Audio backends.
const (
	BackendPortAudio = "portaudio"
	BackendFile      = "file"
)

// DefaultFramesPerBuffer is the capture buffer size in samples (32 ms at 16 kHz).
const DefaultFramesPerBuffer = 512

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TALKBACK_"

type Config struct {
	Hotkey       string        `yaml:"hotkey"`
	HotkeyDarwin string        `yaml:"hotkey_darwin"`
	Mode         string        `yaml:"mode"` // "PushToTalk" or "Toggle"
	LogLevel     string        `yaml:"log_level"`
	Audio        AudioConfig   `yaml:"audio"`
	Metrics      MetricsConfig `yaml:"metrics"`
}

type AudioConfig struct {
	Backend         string        `yaml:"backend"` // "portaudio" or "file"
	InputDevice     string        `yaml:"input_device"`
	OutputDevice    string        `yaml:"output_device"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	// File backend only.
	InputFile  string `yaml:"input_file,omitempty"`
	OutputFile string `yaml:"output_file,omitempty"`
	LoopInput  bool   `yaml:"loop_input,omitempty"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Alt+Space", // Option+Space
		Mode:         ModePushToTalk,
		LogLevel:     "info",
		Audio: AudioConfig{
			Backend:         BackendPortAudio,
			FramesPerBuffer: DefaultFramesPerBuffer,
			PollInterval:    100 * time.Millisecond,
		},
	}
}

// Load reads the config from disk, applies .env and TALKBACK_* overrides and
// validates the result. A missing file yields the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return LoadFile(Path(), os.LookupEnv)
}

// LoadFile reads the YAML file at path over the defaults, then applies
// environment overrides from lookup.
func LoadFile(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes YAML from r into cfg, rejecting unknown keys. Fields absent
// from the document keep their current values.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg from TALKBACK_* variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("HOTKEY", &cfg.Hotkey)
	str("HOTKEY_DARWIN", &cfg.HotkeyDarwin)
	str("MODE", &cfg.Mode)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("BACKEND", &cfg.Audio.Backend)
	str("INPUT_DEVICE", &cfg.Audio.InputDevice)
	str("OUTPUT_DEVICE", &cfg.Audio.OutputDevice)
	str("INPUT_FILE", &cfg.Audio.InputFile)
	str("OUTPUT_FILE", &cfg.Audio.OutputFile)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	if v, ok := lookup(EnvPrefix + "FRAMES_PER_BUFFER"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFRAMES_PER_BUFFER: %w", EnvPrefix, err))
		} else {
			cfg.Audio.FramesPerBuffer = n
		}
	}
	if v, ok := lookup(EnvPrefix + "POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPOLL_INTERVAL: %w", EnvPrefix, err))
		} else {
			cfg.Audio.PollInterval = d
		}
	}
	if v, ok := lookup(EnvPrefix + "LOOP_INPUT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLOOP_INPUT: %w", EnvPrefix, err))
		} else {
			cfg.Audio.LoopInput = b
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Hotkey == "" && cfg.HotkeyDarwin == "" {
		errs = append(errs, errors.New("hotkey is required"))
	}
	switch cfg.Mode {
	case ModePushToTalk, ModeToggle:
	default:
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: %s, %s", cfg.Mode, ModePushToTalk, ModeToggle))
	}
	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level %q is invalid", cfg.LogLevel))
		}
	}

	switch cfg.Audio.Backend {
	case BackendPortAudio:
	case BackendFile:
		if cfg.Audio.InputFile == "" && cfg.Audio.OutputFile == "" {
			errs = append(errs, errors.New("audio.input_file or audio.output_file is required when backend is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: %s, %s", cfg.Audio.Backend, BackendPortAudio, BackendFile))
	}
	if cfg.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must not be negative", cfg.Audio.FramesPerBuffer))
	}
	if cfg.Audio.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.poll_interval %s must not be negative", cfg.Audio.PollInterval))
	}

	return errors.Join(errs...)
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config as YAML to path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "talkback", "config.yaml")
}
