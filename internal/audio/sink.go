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

// SinkConfig configures a Sink.
type SinkConfig struct {
	Driver Driver

	// DeviceName is passed to Driver.Open. Empty selects the default device.
	DeviceName string

	// Format defaults to DefaultFormat.
	Format Format

	// PollInterval bounds the drain goroutine's wait on an empty queue.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	Logger  zerolog.Logger
	Metrics *observe.Metrics
}

// SinkStats is a point-in-time view of a Sink.
type SinkStats struct {
	Running       bool
	Pending       int
	EffectiveRate int
	FramesWritten int64
	BytesWritten  int64
	Underruns     int64
}

// Sink plays frames through a playback device. Send appends to an unbounded
// FIFO queue; a single drain goroutine, alive between Start and Stop, writes
// the queue to the device in order. Frames sent while the Sink is stopped stay
// queued until the next Start.
type Sink struct {
	driver  Driver
	device  string
	format  Format
	poll    time.Duration
	log     zerolog.Logger
	metrics *observe.Metrics

	errorListeners []func(error)

	// mu serialises Start/Stop and guards the fields below.
	mu     sync.Mutex
	sealed bool
	quit   chan struct{}
	done   chan struct{}

	// qmu guards queue.
	qmu   sync.Mutex
	queue []Frame
	wake  chan struct{}

	running   atomic.Bool
	rate      atomic.Int64
	written   atomic.Int64
	bytes     atomic.Int64
	underruns atomic.Int64
}

// NewSink creates a stopped Sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.Format == (Format{}) {
		cfg.Format = DefaultFormat
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	name := cfg.DeviceName
	if name == "" {
		name = "default"
	}
	return &Sink{
		driver:  cfg.Driver,
		device:  name,
		format:  cfg.Format,
		poll:    cfg.PollInterval,
		log:     cfg.Logger.With().Str("component", "sink").Str("device", name).Logger(),
		metrics: cfg.Metrics,
		wake:    make(chan struct{}, 1),
	}
}

// AddErrorListener registers fn to receive the error that ended playback
// after a failed recovery. It runs on the drain goroutine after the device is
// closed and must not call Start or Stop. IsRunning already reports false.
func (s *Sink) AddErrorListener(fn func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrListenersSealed
	}
	s.errorListeners = append(s.errorListeners, fn)
	return nil
}

// Start opens and configures the playback device and launches the drain
// goroutine. On any device error the device is closed, the error returned and
// the Sink stays stopped. Start on a running Sink is a no-op. After a fatal
// device error Start waits for the failed run to close its device, then
// reopens it.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = true
	if s.done != nil {
		if s.running.Load() {
			return nil
		}
		// Previous run failed; wait for its teardown before reopening.
		<-s.done
		s.quit, s.done = nil, nil
	}

	dev, err := s.driver.Open(s.device)
	if err != nil {
		return fmt.Errorf("audio: open playback device %q: %w", s.device, err)
	}
	rate, err := dev.Configure(s.format)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("close after failed configure")
		}
		return fmt.Errorf("audio: configure playback device %q: %w", s.device, err)
	}

	s.rate.Store(int64(rate))
	if rate != s.format.SampleRate {
		s.log.Warn().Int("requested", s.format.SampleRate).Int("effective", rate).
			Msg("playback device does not support requested rate, using nearest")
	}

	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	s.metrics.StreamStarted(context.Background(), "sink")
	go s.run(dev, s.quit, s.done)

	s.log.Info().Int("rate", rate).Str("format", s.format.Encoding.String()).
		Int("channels", s.format.Channels).Msg("playback started")
	return nil
}

// Stop signals the drain goroutine and blocks until it has drained and closed
// the device. Frames still queued remain queued. Stop on a stopped Sink is a
// no-op.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}
	select {
	case <-s.done:
	default:
		close(s.quit)
		<-s.done
	}
	s.quit, s.done = nil, nil
	s.log.Info().Msg("playback stopped")
}

// Send appends f to the playback queue and wakes the drain goroutine. It never
// blocks on device I/O and is safe for concurrent use. Empty frames are
// ignored.
func (s *Sink) Send(f Frame) {
	if f.IsEmpty() {
		return
	}
	s.qmu.Lock()
	s.queue = append(s.queue, f)
	s.qmu.Unlock()
	s.metrics.AddQueued(context.Background(), 1)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Clear discards all queued frames and returns how many were dropped.
func (s *Sink) Clear() int {
	s.qmu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.qmu.Unlock()
	s.metrics.AddQueued(context.Background(), -n)
	return n
}

// Pending returns the number of queued frames.
func (s *Sink) Pending() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue)
}

// IsRunning reports whether the drain goroutine is active.
func (s *Sink) IsRunning() bool {
	return s.running.Load()
}

// EffectiveRate returns the sample rate negotiated by the last successful
// Start, or 0 before the first one.
func (s *Sink) EffectiveRate() int {
	return int(s.rate.Load())
}

// Stats returns counters accumulated since creation.
func (s *Sink) Stats() SinkStats {
	return SinkStats{
		Running:       s.IsRunning(),
		Pending:       s.Pending(),
		EffectiveRate: s.EffectiveRate(),
		FramesWritten: s.written.Load(),
		BytesWritten:  s.bytes.Load(),
		Underruns:     s.underruns.Load(),
	}
}

func (s *Sink) pop() (Frame, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.queue) == 0 {
		return Frame{}, false
	}
	f := s.queue[0]
	s.queue[0] = Frame{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return f, true
}

// errBadFrameCount marks a Write that reported an impossible frame count.
// Recover cannot fix a broken driver, so it ends the run.
var errBadFrameCount = errors.New("audio: device reported an invalid frame count")

func (s *Sink) run(dev Device, quit <-chan struct{}, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	timer := time.NewTimer(s.poll)
	defer timer.Stop()

	var fatal error
loop:
	for {
		select {
		case <-quit:
			break loop
		default:
		}

		f, ok := s.pop()
		if !ok {
			timer.Reset(s.poll)
			select {
			case <-quit:
				break loop
			case <-s.wake:
			case <-timer.C:
			}
			continue
		}
		s.metrics.AddQueued(ctx, -1)

		if err := s.write(dev, f); err != nil {
			if errors.Is(err, errBadFrameCount) {
				fatal = fmt.Errorf("audio: playback device %q: %w", s.device, err)
				s.log.Error().Err(err).Msg("playback device misbehaved, stopping")
				break loop
			}
			if errors.Is(err, ErrUnderrun) {
				s.underruns.Add(1)
				s.metrics.RecordUnderrun(ctx, s.device)
			}
			s.log.Warn().Err(err).Int("bytes", f.Len()).Msg("playback write failed, recovering")
			if rerr := dev.Recover(err); rerr != nil {
				s.metrics.RecordRecoveryFailure(ctx, s.device)
				fatal = fmt.Errorf("audio: recover playback device %q: %w", s.device, errors.Join(err, rerr))
				s.log.Error().Err(rerr).Msg("playback recovery failed, stopping")
				break loop
			}
		}
	}

	s.running.Store(false)
	s.metrics.StreamStopped(ctx, "sink")

	if err := dev.Drain(); err != nil {
		s.log.Warn().Err(err).Msg("drain playback device")
	}
	if err := dev.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close playback device")
	}
	if fatal != nil {
		for _, fn := range s.errorListeners {
			fn(fatal)
		}
	}
}

// write hands the whole frame to dev, continuing after short writes.
func (s *Sink) write(dev Device, f Frame) error {
	bpf := s.format.BytesPerFrame()
	pcm := f.data
	for len(pcm) >= bpf {
		n, err := dev.Write(pcm)
		if err != nil {
			return err
		}
		if n <= 0 || n*bpf > len(pcm) {
			return fmt.Errorf("%w: %d frames for %d bytes", errBadFrameCount, n, len(pcm))
		}
		pcm = pcm[n*bpf:]
	}
	s.written.Add(1)
	s.bytes.Add(int64(f.Len()))
	s.metrics.RecordPlayed(context.Background(), s.device, f.Len())
	return nil
}
