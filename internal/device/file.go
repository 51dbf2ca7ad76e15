package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/petems/talkback/internal/audio"
	"github.com/petems/talkback/internal/config"
	"github.com/rs/zerolog"
)

// File is a headless backend over raw S16LE PCM files. Capture reads the
// input file paced at real time; playback appends to the output file.
type File struct {
	input           string
	output          string
	loop            bool
	framesPerBuffer int
	log             zerolog.Logger
}

// NewFile creates a file backend from cfg.InputFile and cfg.OutputFile.
func NewFile(cfg config.AudioConfig, log zerolog.Logger) *File {
	fpb := cfg.FramesPerBuffer
	if fpb <= 0 {
		fpb = config.DefaultFramesPerBuffer
	}
	return &File{
		input:           cfg.InputFile,
		output:          cfg.OutputFile,
		loop:            cfg.LoopInput,
		framesPerBuffer: fpb,
		log:             log.With().Str("backend", "file").Logger(),
	}
}

// Open returns a device appending to the output file. A name other than
// "default" is used as the output path instead.
func (b *File) Open(name string) (audio.Device, error) {
	path := b.output
	if !isDefault(name) {
		path = name
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no output file configured", audio.ErrDeviceNotFound)
	}
	return &fileDevice{path: path}, nil
}

// Capturer returns a capturer reading the input file.
func (b *File) Capturer() audio.Capturer {
	return &fileCapture{
		path:   b.input,
		loop:   b.loop,
		chunk:  b.framesPerBuffer * audio.BytesPerSample,
		period: time.Duration(b.framesPerBuffer) * time.Second / audio.SampleRate,
		log:    b.log,
	}
}

// ListDevices reports the configured files.
func (b *File) ListDevices() ([]Info, error) {
	var out []Info
	if b.input != "" {
		out = append(out, Info{Name: b.input, Input: true, Default: true, DefaultSampleRate: audio.SampleRate})
	}
	if b.output != "" {
		out = append(out, Info{Name: b.output, Output: true, Default: true, DefaultSampleRate: audio.SampleRate})
	}
	return out, nil
}

func (b *File) Close() error { return nil }

type fileDevice struct {
	path string
	f    *os.File
}

func (d *fileDevice) Configure(f audio.Format) (int, error) {
	if err := checkFormat(f); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	d.f = out
	return f.SampleRate, nil
}

func (d *fileDevice) Write(pcm []byte) (int, error) {
	n, err := d.f.Write(pcm)
	return n / audio.BytesPerSample, err
}

// Recover has nothing to reset on a file; only underruns are survivable.
func (d *fileDevice) Recover(err error) error {
	if errors.Is(err, audio.ErrUnderrun) {
		return nil
	}
	return err
}

func (d *fileDevice) Drain() error {
	if d.f == nil {
		return nil
	}
	return d.f.Sync()
}

func (d *fileDevice) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

type fileCapture struct {
	path   string
	loop   bool
	chunk  int
	period time.Duration
	log    zerolog.Logger
}

// Capture emits one chunk per period. Without loop the run ends at EOF.
func (c *fileCapture) Capture(ctx context.Context, ready func(), emit func(audio.Frame)) error {
	if c.path == "" {
		return fmt.Errorf("%w: no input file configured", audio.ErrDeviceNotFound)
	}
	in, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer in.Close()

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	ready()

	buf := make([]byte, c.chunk)
	for {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			emit(audio.NewFrame(buf[:n]))
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			if !c.loop {
				c.log.Debug().Str("file", c.path).Msg("input file exhausted")
				return nil
			}
			if _, err := in.Seek(0, io.SeekStart); err != nil {
				return err
			}
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
