// Package audio is the real-time streaming core: a capture Source that fans
// frames out to listeners, and a playback Sink that drains a FIFO queue into a
// device on its own goroutine.
//
// All audio handled here is mono, signed 16-bit little-endian PCM at a nominal
// 16 kHz. Hardware access goes through the narrow Driver/Device and Capturer
// contracts; implementations live in internal/device.
package audio

import (
	"context"
	"errors"
	"time"
)

const (
	// SampleRate is the nominal sample rate of every frame in the core.
	SampleRate = 16000

	// Channels is fixed to mono.
	Channels = 1

	// BytesPerSample is the size of one S16LE sample.
	BytesPerSample = 2

	// DefaultPollInterval bounds how long the drain goroutine waits on an empty
	// queue before re-checking whether it should exit.
	DefaultPollInterval = 100 * time.Millisecond
)

var (
	// ErrUnderrun is returned (wrapped) by Device.Write when the device buffer
	// ran dry.
	ErrUnderrun = errors.New("audio: buffer underrun")

	// ErrListenersSealed is returned when a listener is registered after the
	// component was started for the first time.
	ErrListenersSealed = errors.New("audio: listeners must be registered before the first Start")

	// ErrDeviceNotFound is returned by drivers when no device matches the
	// requested name.
	ErrDeviceNotFound = errors.New("audio: device not found")
)

// Encoding identifies the sample encoding requested from a device.
type Encoding int

const (
	// S16LE is signed 16-bit little-endian PCM.
	S16LE Encoding = iota
)

func (e Encoding) String() string {
	switch e {
	case S16LE:
		return "S16_LE"
	default:
		return "UNKNOWN"
	}
}

// Format is the stream format negotiated with a playback device.
type Format struct {
	Encoding   Encoding
	Channels   int
	SampleRate int
}

// DefaultFormat is the only format the core produces and consumes.
var DefaultFormat = Format{Encoding: S16LE, Channels: Channels, SampleRate: SampleRate}

// BytesPerFrame returns the size of one device frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.Channels * BytesPerSample
}

// Driver opens playback devices by name. An empty name or "default" selects
// the system default device.
type Driver interface {
	Open(name string) (Device, error)
}

// Device is an open playback handle. A Device is owned by exactly one Sink run
// and is never used concurrently.
type Device interface {
	// Configure applies f, accepting the nearest supported sample rate, and
	// returns the effective rate.
	Configure(f Format) (int, error)

	// Write plays pcm and returns the number of device frames consumed. It
	// must not retain or modify pcm. An underrun is reported by wrapping
	// ErrUnderrun.
	Write(pcm []byte) (int, error)

	// Recover attempts to bring the device back after a failed Write. A
	// non-nil return is fatal for the current run.
	Recover(err error) error

	// Drain blocks until buffered audio has been played.
	Drain() error

	Close() error
}

// Capturer is implemented by capture back-ends. Capture acquires the
// underlying device, calls ready once it is capturing, then calls emit for
// every captured frame until ctx is cancelled. It releases the device before
// returning. Returning before ready is called signals an acquisition failure.
//
// emit runs every data listener synchronously; a Capturer must not call it
// from more than one goroutine.
type Capturer interface {
	Capture(ctx context.Context, ready func(), emit func(Frame)) error
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context, ready func(), emit func(Frame)) error

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context, ready func(), emit func(Frame)) error {
	return f(ctx, ready, emit)
}
