package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/talkback/internal/observe"
	"github.com/rs/zerolog"
)

// SourceConfig configures a Source.
type SourceConfig struct {
	// Name labels log lines and metrics, e.g. the input device name.
	Name    string
	Logger  zerolog.Logger
	Metrics *observe.Metrics
}

// Source runs a Capturer on a background goroutine and fans every captured
// frame out to the registered data listeners, in registration order, on that
// goroutine. Listeners must return quickly: a slow listener stalls capture.
//
// Listeners are registered before the first Start and cannot be removed.
// Listeners must not call Start or Stop on the Source that invokes them.
type Source struct {
	capturer Capturer
	name     string
	log      zerolog.Logger
	metrics  *observe.Metrics

	dataListeners  []func(Frame)
	stopListeners  []func()
	errorListeners []func(error)

	// mu serialises Start/Stop and guards the fields below.
	mu     sync.Mutex
	sealed bool
	cancel context.CancelFunc
	done   chan struct{}

	running  atomic.Bool
	captured atomic.Int64
}

// NewSource creates a stopped Source around c.
func NewSource(c Capturer, cfg SourceConfig) *Source {
	return &Source{
		capturer: c,
		name:     cfg.Name,
		log:      cfg.Logger.With().Str("component", "source").Str("source", cfg.Name).Logger(),
		metrics:  cfg.Metrics,
	}
}

// AddDataListener registers fn to receive every captured frame.
func (s *Source) AddDataListener(fn func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrListenersSealed
	}
	s.dataListeners = append(s.dataListeners, fn)
	return nil
}

// AddStopListener registers fn to run once each time a capture run ends,
// after the capture device has been released.
func (s *Source) AddStopListener(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrListenersSealed
	}
	s.stopListeners = append(s.stopListeners, fn)
	return nil
}

// AddErrorListener registers fn to receive the error that ended a capture
// run. It runs before the stop listeners.
func (s *Source) AddErrorListener(fn func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrListenersSealed
	}
	s.errorListeners = append(s.errorListeners, fn)
	return nil
}

// Start launches the capture goroutine and waits until the capturer reports
// that it is capturing. If the capturer fails before that, Start returns its
// error, the stop listeners have already run and the Source stays stopped.
// Start on a running Source is a no-op.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	s.sealed = true
	s.reapLocked()

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})
	errc := make(chan error, 1)

	var once sync.Once
	markReady := func() {
		once.Do(func() {
			s.running.Store(true)
			s.metrics.StreamStarted(context.Background(), "source")
			close(ready)
		})
	}

	go s.run(ctx, markReady, errc, done)

	select {
	case <-ready:
	case <-done:
		select {
		case <-ready:
			// Ready, then ended on its own before we looked.
		default:
			cancel()
			err := <-errc
			if err == nil {
				err = errors.New("capturer returned before it was ready")
			}
			return fmt.Errorf("audio: start source %q: %w", s.name, err)
		}
	}

	s.cancel, s.done = cancel, done
	s.log.Info().Msg("capture started")
	return nil
}

// Stop cancels the capture run and blocks until the capture goroutine has
// exited and every stop listener has returned. Stop on a stopped Source is a
// no-op.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	s.log.Info().Msg("capture stopped")
}

// IsRunning reports whether a capture run is active.
func (s *Source) IsRunning() bool {
	return s.running.Load()
}

// FramesCaptured returns the number of frames fanned out since creation.
func (s *Source) FramesCaptured() int64 {
	return s.captured.Load()
}

// reapLocked joins a run that ended without Stop, so a new run never overlaps
// the tail of the previous one.
func (s *Source) reapLocked() {
	if s.done == nil {
		return
	}
	<-s.done
	s.cancel()
	s.cancel, s.done = nil, nil
}

func (s *Source) run(ctx context.Context, ready func(), errc chan<- error, done chan struct{}) {
	defer close(done)

	err := s.capturer.Capture(ctx, ready, s.emit)
	if s.running.Swap(false) {
		s.metrics.StreamStopped(context.Background(), "source")
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	errc <- err

	if err != nil {
		s.log.Error().Err(err).Msg("capture ended with error")
		for _, fn := range s.errorListeners {
			fn(err)
		}
	}
	for _, fn := range s.stopListeners {
		fn()
	}
}

func (s *Source) emit(f Frame) {
	if f.IsEmpty() {
		return
	}
	start := time.Now()
	for _, fn := range s.dataListeners {
		fn(f)
	}
	s.captured.Add(1)
	s.metrics.RecordCapture(context.Background(), s.name, time.Since(start))
}
