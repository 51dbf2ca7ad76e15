package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Mode != ModePushToTalk {
		t.Fatalf("expected default mode %q, got %q", ModePushToTalk, cfg.Mode)
	}
	if cfg.Audio.Backend != BackendPortAudio {
		t.Fatalf("expected default backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Audio.PollInterval != 100*time.Millisecond {
		t.Fatalf("expected 100ms poll interval, got %v", cfg.Audio.PollInterval)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
mode: Toggle
audio:
  output_device: "USB Audio"
  poll_interval: 250ms
metrics:
  addr: ":9464"
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path, noEnv)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Mode != ModeToggle {
		t.Fatalf("expected Toggle, got %q", cfg.Mode)
	}
	if cfg.Audio.OutputDevice != "USB Audio" {
		t.Fatalf("expected output device from file, got %q", cfg.Audio.OutputDevice)
	}
	if cfg.Audio.PollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", cfg.Audio.PollInterval)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Fatalf("expected default frames per buffer to survive, got %d", cfg.Audio.FramesPerBuffer)
	}
	if cfg.Hotkey != "Alt+Space" {
		t.Fatalf("expected default hotkey to survive, got %q", cfg.Hotkey)
	}
	if cfg.Metrics.Addr != ":9464" {
		t.Fatalf("expected metrics addr, got %q", cfg.Metrics.Addr)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: base.en\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, noEnv); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadFileEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, noEnv); err != nil {
		t.Fatalf("empty file should load defaults, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"TALKBACK_MODE":              "Toggle",
		"TALKBACK_BACKEND":           "file",
		"TALKBACK_INPUT_FILE":        "/tmp/in.pcm",
		"TALKBACK_FRAMES_PER_BUFFER": "1024",
		"TALKBACK_POLL_INTERVAL":     "50ms",
		"TALKBACK_LOOP_INPUT":        "true",
		"TALKBACK_METRICS_ADDR":      "127.0.0.1:9000",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Mode != ModeToggle || cfg.Audio.Backend != BackendFile || cfg.Audio.InputFile != "/tmp/in.pcm" {
		t.Fatalf("string overrides not applied: %+v", cfg)
	}
	if cfg.Audio.FramesPerBuffer != 1024 || cfg.Audio.PollInterval != 50*time.Millisecond || !cfg.Audio.LoopInput {
		t.Fatalf("typed overrides not applied: %+v", cfg.Audio)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected metrics addr override, got %q", cfg.Metrics.Addr)
	}
}

func TestApplyEnvReportsEveryBadValue(t *testing.T) {
	err := ApplyEnv(Default(), envMap(map[string]string{
		"TALKBACK_FRAMES_PER_BUFFER": "lots",
		"TALKBACK_POLL_INTERVAL":     "soon",
	}))
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"FRAMES_PER_BUFFER", "POLL_INTERVAL"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error to mention %s, got %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "Hold" }, "mode"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"file without paths", func(c *Config) { c.Audio.Backend = BackendFile }, "input_file"},
		{"negative poll", func(c *Config) { c.Audio.PollInterval = -time.Second }, "poll_interval"},
		{"no hotkey", func(c *Config) { c.Hotkey, c.HotkeyDarwin = "", "" }, "hotkey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Mode = "nope"
	cfg.Audio.Backend = "nope"

	err := Validate(cfg)
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected two joined errors, got %v", err)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Mode = ModeToggle
	cfg.Audio.PollInterval = 75 * time.Millisecond

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadFile(path, noEnv)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Mode != ModeToggle || got.Audio.PollInterval != 75*time.Millisecond {
		t.Fatalf("saved config did not load back: %+v", got)
	}
}

func TestPathUsesXDGConfigHome(t *testing.T) {
	if os.Getenv("HOME") == "" {
		t.Skip("HOME not set")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	p := Path()
	if filepath.Base(p) != "config.yaml" || filepath.Base(filepath.Dir(p)) != "talkback" {
		t.Fatalf("unexpected config path %q", p)
	}
}
