// Package device binds the audio pipeline to concrete hardware. A Backend
// supplies the playback Driver used by audio.Sink and the Capturer used by
// audio.Source.
package device

import (
	"fmt"

	"github.com/petems/talkback/internal/audio"
	"github.com/petems/talkback/internal/config"
	"github.com/rs/zerolog"
)

// Backend is one audio system: PortAudio hardware or raw PCM files.
type Backend interface {
	audio.Driver

	// Capturer returns a capturer for the configured input.
	Capturer() audio.Capturer

	// ListDevices enumerates devices known to the backend.
	ListDevices() ([]Info, error)

	Close() error
}

// Info describes an audio device.
type Info struct {
	Name              string
	Input             bool
	Output            bool
	Default           bool
	DefaultSampleRate float64
}

// New creates the backend selected by cfg.Backend.
func New(cfg config.AudioConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendPortAudio, "":
		return NewPortAudio(cfg, log)
	case config.BackendFile:
		return NewFile(cfg, log), nil
	default:
		return nil, fmt.Errorf("device: unknown backend %q", cfg.Backend)
	}
}

func isDefault(name string) bool {
	return name == "" || name == "default"
}

// checkFormat rejects formats the backends cannot produce.
func checkFormat(f audio.Format) error {
	if f.Encoding != audio.S16LE {
		return fmt.Errorf("device: unsupported encoding %s", f.Encoding)
	}
	if f.Channels != 1 {
		return fmt.Errorf("device: unsupported channel count %d", f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("device: invalid sample rate %d", f.SampleRate)
	}
	return nil
}
