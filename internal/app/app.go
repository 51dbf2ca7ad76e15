package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/petems/talkback/internal/audio"
	"github.com/petems/talkback/internal/config"
	"github.com/petems/talkback/internal/device"
	"github.com/petems/talkback/internal/logging"
	"github.com/rs/zerolog"
)

type Mode int

const (
	PushToTalk Mode = iota
	Toggle
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetMonitoring()
	SetError()
}

// Source is the capture side of a monitoring session.
type Source interface {
	AddDataListener(fn func(audio.Frame)) error
	AddStopListener(fn func()) error
	AddErrorListener(fn func(error)) error
	Start() error
	Stop()
	IsRunning() bool
	FramesCaptured() int64
}

// Sink is the playback side of a monitoring session.
type Sink interface {
	Send(f audio.Frame)
	AddErrorListener(fn func(error)) error
	Start() error
	Stop()
	Clear() int
	Stats() audio.SinkStats
}

// DeviceLister enumerates audio devices for the tray.
type DeviceLister interface {
	ListDevices() ([]device.Info, error)
}

type Config struct {
	Source        Source
	Sink          Sink
	Devices       DeviceLister // Optional
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App routes microphone audio to the speakers while the hotkey is held
// (PushToTalk) or between two presses (Toggle).
type App struct {
	src     Source
	sink    Sink
	devices DeviceLister
	cfg     *config.Config
	log     zerolog.Logger
	status  StatusUpdater

	mu         sync.Mutex
	monitoring bool

	// session identifies the current monitoring session so that late
	// notifications from an earlier one are ignored.
	session atomic.Uint64

	errMu   sync.Mutex
	lastErr error
}

// New wires src into sink and subscribes to both components' failures.
func New(cfg Config) (*App, error) {
	a := &App{
		src:     cfg.Source,
		sink:    cfg.Sink,
		devices: cfg.Devices,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
	}

	if err := a.src.AddDataListener(a.sink.Send); err != nil {
		return nil, fmt.Errorf("app: register data listener: %w", err)
	}
	// Component listeners run on the component goroutines, which Stop waits
	// for while a.mu is held, so they hand off to a new goroutine.
	if err := a.src.AddErrorListener(func(err error) {
		a.recordError(err)
		a.log.Error().Err(err).Msg("Capture failed")
	}); err != nil {
		return nil, fmt.Errorf("app: register capture error listener: %w", err)
	}
	if err := a.src.AddStopListener(func() {
		go a.endSession(a.session.Load(), "capture ended")
	}); err != nil {
		return nil, fmt.Errorf("app: register stop listener: %w", err)
	}
	if err := a.sink.AddErrorListener(func(err error) {
		a.recordError(err)
		a.log.Error().Err(err).Msg("Playback failed")
		go a.endSession(a.session.Load(), "playback failed")
	}); err != nil {
		return nil, fmt.Errorf("app: register playback error listener: %w", err)
	}

	return a, nil
}

func (a *App) mode() Mode {
	if a.cfg.Mode == config.ModeToggle {
		return Toggle
	}
	return PushToTalk
}

func (a *App) OnHotkey(pressed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.mode() {
	case PushToTalk:
		if pressed {
			a.startMonitoringLocked()
		} else {
			a.stopMonitoringLocked()
		}
	case Toggle:
		if !pressed {
			return
		}
		if !a.monitoring {
			a.startMonitoringLocked()
		} else {
			a.stopMonitoringLocked()
		}
	}
}

// ToggleMonitoring starts or stops monitoring regardless of mode.
func (a *App) ToggleMonitoring() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.monitoring {
		a.stopMonitoringLocked()
	} else {
		a.startMonitoringLocked()
	}
}

func (a *App) startMonitoringLocked() {
	if a.monitoring {
		return
	}

	a.log.Info().Msg("Starting monitoring")
	a.session.Add(1)
	a.recordError(nil)

	// Playback first so the first captured frame has somewhere to go.
	if err := a.sink.Start(); err != nil {
		a.fail(err, "Failed to start playback")
		return
	}
	if err := a.src.Start(); err != nil {
		a.sink.Stop()
		a.sink.Clear()
		a.fail(err, "Failed to start capture")
		return
	}

	a.monitoring = true
	if a.status != nil {
		a.status.SetMonitoring()
	}
}

func (a *App) stopMonitoringLocked() {
	if !a.monitoring {
		return
	}

	a.log.Info().Msg("Stopping monitoring")
	a.monitoring = false
	a.teardownLocked()

	if a.status != nil {
		a.status.SetIdle()
	}
}

func (a *App) teardownLocked() {
	a.src.Stop()
	a.sink.Stop()
	if n := a.sink.Clear(); n > 0 {
		a.log.Debug().Int("frames", n).Msg("Discarded unplayed audio")
	}
}

// endSession closes session after one of the components ended it.
func (a *App) endSession(session uint64, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.monitoring || a.session.Load() != session {
		return
	}

	a.log.Warn().Str("reason", reason).Msg("Monitoring ended")
	a.monitoring = false
	a.teardownLocked()

	if a.status == nil {
		return
	}
	if a.LastError() != nil {
		a.status.SetError()
	} else {
		a.status.SetIdle()
	}
}

func (a *App) fail(err error, msg string) {
	a.recordError(err)
	a.log.Error().Err(err).Msg(msg)
	if a.status != nil {
		a.status.SetError()
	}
}

func (a *App) recordError(err error) {
	a.errMu.Lock()
	a.lastErr = err
	a.errMu.Unlock()
}

// LastError returns the failure that ended or prevented the latest session.
func (a *App) LastError() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.lastErr
}

func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.stopMonitoringLocked()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: shutdown: %w", ctx.Err())
	}
}

// Tray actions

func (a *App) SetMode(mode string) error {
	if mode != config.ModePushToTalk && mode != config.ModeToggle {
		return fmt.Errorf("unknown mode %q", mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// A held push-to-talk session would otherwise never see its release.
	a.stopMonitoringLocked()
	a.cfg.Mode = mode
	return a.cfg.Save()
}

func (a *App) Mode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Mode
}

func (a *App) IsMonitoring() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.monitoring
}

func (a *App) ListDevices() ([]device.Info, error) {
	if a.devices == nil {
		return nil, nil
	}
	return a.devices.ListDevices()
}

// Diagnostics renders a plain-text status report for bug reports.
func (a *App) Diagnostics() string {
	stats := a.sink.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", a.Mode())
	fmt.Fprintf(&b, "monitoring: %t\n", a.IsMonitoring())
	fmt.Fprintf(&b, "backend: %s\n", a.cfg.Audio.Backend)
	fmt.Fprintf(&b, "input device: %s\n", orDefault(a.cfg.Audio.InputDevice))
	fmt.Fprintf(&b, "output device: %s\n", orDefault(a.cfg.Audio.OutputDevice))
	fmt.Fprintf(&b, "capture running: %t\n", a.src.IsRunning())
	fmt.Fprintf(&b, "frames captured: %d\n", a.src.FramesCaptured())
	fmt.Fprintf(&b, "playback running: %t\n", stats.Running)
	fmt.Fprintf(&b, "playback rate: %d Hz\n", stats.EffectiveRate)
	fmt.Fprintf(&b, "frames played: %d (%d bytes)\n", stats.FramesWritten, stats.BytesWritten)
	fmt.Fprintf(&b, "frames queued: %d\n", stats.Pending)
	fmt.Fprintf(&b, "underruns: %d\n", stats.Underruns)
	if err := a.LastError(); err != nil {
		fmt.Fprintf(&b, "last error: %v\n", err)
	}
	if devs, err := a.ListDevices(); err == nil {
		for _, d := range devs {
			fmt.Fprintf(&b, "device: %s (in=%t out=%t default=%t %.0f Hz)\n",
				d.Name, d.Input, d.Output, d.Default, d.DefaultSampleRate)
		}
	}
	fmt.Fprintf(&b, "config: %s\n", config.Path())
	fmt.Fprintf(&b, "log: %s\n", logging.Path())
	return b.String()
}

func orDefault(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
