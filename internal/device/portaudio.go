package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/talkback/internal/audio"
	"github.com/petems/talkback/internal/config"
	"github.com/rs/zerolog"
)

// PortAudio is the hardware backend.
type PortAudio struct {
	input           string
	framesPerBuffer int
	log             zerolog.Logger

	closeOnce sync.Once
}

// NewPortAudio initializes PortAudio. Close must be called to release it.
func NewPortAudio(cfg config.AudioConfig, log zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	fpb := cfg.FramesPerBuffer
	if fpb <= 0 {
		fpb = config.DefaultFramesPerBuffer
	}
	return &PortAudio{
		input:           cfg.InputDevice,
		framesPerBuffer: fpb,
		log:             log.With().Str("backend", "portaudio").Logger(),
	}, nil
}

// Open resolves an output device by name.
func (p *PortAudio) Open(name string) (audio.Device, error) {
	info, err := findDevice(name, false)
	if err != nil {
		return nil, err
	}
	return &paPlayback{info: info, log: p.log.With().Str("device", info.Name).Logger()}, nil
}

// Capturer returns a microphone capturer for the configured input device.
func (p *PortAudio) Capturer() audio.Capturer {
	return &paCapture{name: p.input, framesPerBuffer: p.framesPerBuffer, log: p.log}
}

// ListDevices lists every PortAudio device with its direction.
func (p *PortAudio) ListDevices() ([]Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	result := make([]Info, 0, len(devices))
	for _, d := range devices {
		result = append(result, Info{
			Name:              d.Name,
			Input:             d.MaxInputChannels > 0,
			Output:            d.MaxOutputChannels > 0,
			Default:           d == defIn || d == defOut,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return result, nil
}

// Close terminates PortAudio.
func (p *PortAudio) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if isDefault(name) {
		var (
			d   *portaudio.DeviceInfo
			err error
		)
		if input {
			d, err = portaudio.DefaultInputDevice()
		} else {
			d, err = portaudio.DefaultOutputDevice()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get default device: %w", err)
		}
		return d, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name != name {
			continue
		}
		if input && d.MaxInputChannels > 0 || !input && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", audio.ErrDeviceNotFound, name)
}

// paPlayback is a blocking PortAudio output stream. The stream is opened in
// Configure with an unspecified buffer size, so each Write hands PortAudio
// exactly the samples it was given.
type paPlayback struct {
	info   *portaudio.DeviceInfo
	log    zerolog.Logger
	stream *portaudio.Stream
	buf    []int16
}

func (d *paPlayback) Configure(f audio.Format) (int, error) {
	if err := checkFormat(f); err != nil {
		return 0, err
	}

	open := func(rate float64) (*portaudio.Stream, error) {
		return portaudio.OpenStream(portaudio.StreamParameters{
			Output: portaudio.StreamDeviceParameters{
				Device:   d.info,
				Channels: f.Channels,
				Latency:  d.info.DefaultLowOutputLatency,
			},
			SampleRate:      rate,
			FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
		}, &d.buf)
	}

	stream, err := open(float64(f.SampleRate))
	if errors.Is(err, portaudio.InvalidSampleRate) {
		d.log.Debug().Int("requested", f.SampleRate).Float64("fallback", d.info.DefaultSampleRate).
			Msg("sample rate rejected, falling back to device default")
		stream, err = open(d.info.DefaultSampleRate)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return 0, fmt.Errorf("failed to start output stream: %w", err)
	}
	d.stream = stream

	rate := d.info.DefaultSampleRate
	if info := stream.Info(); info != nil {
		rate = info.SampleRate
	}
	return int(rate + 0.5), nil
}

func (d *paPlayback) Write(pcm []byte) (int, error) {
	n := len(pcm) / audio.BytesPerSample
	if cap(d.buf) < n {
		d.buf = make([]int16, n)
	}
	d.buf = d.buf[:n]
	for i := range d.buf {
		d.buf[i] = int16(binary.LittleEndian.Uint16(pcm[i*audio.BytesPerSample:]))
	}

	err := d.stream.Write()
	if errors.Is(err, portaudio.OutputUnderflowed) {
		// PortAudio still queued this buffer; the gap happened before it.
		return n, fmt.Errorf("%w: %v", audio.ErrUnderrun, err)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (d *paPlayback) Recover(err error) error {
	if errors.Is(err, audio.ErrUnderrun) {
		return nil
	}
	if aerr := d.stream.Abort(); aerr != nil {
		return fmt.Errorf("abort output stream: %w", aerr)
	}
	if serr := d.stream.Start(); serr != nil {
		return fmt.Errorf("restart output stream: %w", serr)
	}
	d.log.Info().Msg("output stream restarted")
	return nil
}

func (d *paPlayback) Drain() error {
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

func (d *paPlayback) Close() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return err
}

// paCapture reads the microphone in blocking mode.
type paCapture struct {
	name            string
	framesPerBuffer int
	log             zerolog.Logger
}

func (c *paCapture) Capture(ctx context.Context, ready func(), emit func(audio.Frame)) error {
	info, err := findDevice(c.name, true)
	if err != nil {
		return err
	}

	buffer := make([]int16, c.framesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: audio.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(audio.SampleRate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %q: %w", info.Name, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	defer stream.Stop()

	c.log.Debug().Str("device", info.Name).Int("frames_per_buffer", len(buffer)).Msg("input stream open")
	ready()

	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				return fmt.Errorf("read input stream: %w", err)
			}
			c.log.Debug().Msg("input overflowed")
		}
		emit(audio.FrameFromSamples(buffer))
	}
	return ctx.Err()
}
