package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/talkback/internal/config"
	"github.com/petems/talkback/internal/device"
	"github.com/petems/talkback/internal/logging"
	"github.com/rs/zerolog"
)

// Controller is the part of the app the menu drives.
type Controller interface {
	ToggleMonitoring()
	IsMonitoring() bool
	SetMode(mode string) error
	Mode() string
	Diagnostics() string
	ListDevices() ([]device.Info, error)
}

type UI struct {
	app     Controller
	version string
	commit  string
	log     zerolog.Logger

	writeClipboard func(string) error

	mu     sync.Mutex
	status string

	// Menu items
	mStartStop *systray.MenuItem
	mMode      *systray.MenuItem
	mDevices   *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetMonitoring() {
	u.updateStatus("monitoring")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func New(application Controller, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:            application,
		version:        version,
		commit:         commit,
		log:            log.With().Str("component", "tray").Logger(),
		writeClipboard: clipboard.WriteAll,
		status:         "idle",
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application Controller) {
	u.app = application
}

// Run blocks on the tray event loop until Quit is chosen or ctx is cancelled.
// It must be called from the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	// Use emoji instead of icon - speaker with initial status
	u.updateStatus(u.currentStatus())
	systray.SetTooltip("Microphone monitor")

	// Build menu
	u.mStartStop = systray.AddMenuItem(startStopTitle(false), "Start or stop monitoring")
	systray.AddSeparator()

	u.mMode = systray.AddMenuItem(modeTitle(u.app.Mode()), "Toggle between modes")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Devices", "Audio devices")
	u.buildDeviceMenu()

	systray.AddSeparator()
	mDiag := systray.AddMenuItem("Copy Diagnostics", "Copy a status report to the clipboard")
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About talkback")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mDiag, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mDiag, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.ToggleMonitoring()
		case <-u.mMode.ClickedCh:
			u.toggleMode()
		case <-mDiag.ClickedCh:
			u.copyDiagnostics()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(deviceLabel(dev), "")
		if dev.Default {
			item.Check()
		}
		item.Disable()
	}
}

func (u *UI) toggleMode() {
	oldMode := u.app.Mode()
	newMode := config.ModeToggle
	if oldMode == config.ModeToggle {
		newMode = config.ModePushToTalk
	}
	if err := u.app.SetMode(newMode); err != nil {
		u.log.Error().Err(err).Msg("Failed to save mode")
	}
	if u.mMode != nil {
		u.mMode.SetTitle(modeTitle(u.app.Mode()))
	}
	u.log.Info().Str("from", oldMode).Str("to", newMode).Msg("Changed mode")
}

func (u *UI) copyDiagnostics() {
	report := fmt.Sprintf("talkback %s (%s)\n%s", u.version, u.commit, u.app.Diagnostics())
	if err := u.writeClipboard(report); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy diagnostics")
		return
	}
	u.log.Info().Msg("Copied diagnostics to clipboard")
}

func (u *UI) openLogs() {
	name, args := openCommand(runtime.GOOS, logging.Path())
	if err := exec.Command(name, args...).Start(); err != nil {
		u.log.Error().Err(err).Str("path", logging.Path()).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	about := fmt.Sprintf("talkback %s (%s)", u.version, u.commit)
	systray.SetTooltip(about)
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("About")
}

func (u *UI) onExit() {
	u.log.Debug().Msg("Tray exited")
}

func (u *UI) currentStatus() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// updateStatus sets the tray title with speaker emoji and status indicator
func (u *UI) updateStatus(status string) {
	u.mu.Lock()
	u.status = status
	u.mu.Unlock()

	systray.SetTitle(fmt.Sprintf("🔈 %s", emojiForStatus(status)))
	if u.mStartStop != nil {
		u.mStartStop.SetTitle(startStopTitle(status == "monitoring"))
	}
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "monitoring":
		return "🔴" // Red - live audio
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

func startStopTitle(monitoring bool) string {
	if monitoring {
		return "Stop Monitoring"
	}
	return "Start Monitoring"
}

func modeTitle(mode string) string {
	if mode == config.ModeToggle {
		return "Mode: Toggle"
	}
	return "Mode: Push-to-Talk"
}

func deviceLabel(d device.Info) string {
	var dir string
	switch {
	case d.Input && d.Output:
		dir = "in/out"
	case d.Input:
		dir = "in"
	case d.Output:
		dir = "out"
	}
	if dir == "" {
		return d.Name
	}
	return fmt.Sprintf("%s (%s)", d.Name, dir)
}

// openCommand returns the platform command that opens path in the default app.
func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}
