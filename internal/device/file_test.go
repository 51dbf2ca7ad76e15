package device

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/petems/talkback/internal/audio"
	"github.com/petems/talkback/internal/config"
	"github.com/rs/zerolog"
)

func fileConfig(in, out string) config.AudioConfig {
	return config.AudioConfig{
		Backend:         config.BackendFile,
		InputFile:       in,
		OutputFile:      out,
		FramesPerBuffer: 160, // 10 ms
	}
}

func TestNewSelectsBackend(t *testing.T) {
	b, err := New(fileConfig("", "out.pcm"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.(*File); !ok {
		t.Fatalf("expected *File, got %T", b)
	}

	if _, err := New(config.AudioConfig{Backend: "alsa"}, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestFileDeviceAppendsPCM(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sub", "out.pcm")
	b := NewFile(fileConfig("", out), zerolog.Nop())

	for _, chunk := range [][]byte{{1, 2, 3, 4}, {5, 6}} {
		dev, err := b.Open("default")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		rate, err := dev.Configure(audio.DefaultFormat)
		if err != nil {
			t.Fatalf("Configure: %v", err)
		}
		if rate != audio.SampleRate {
			t.Fatalf("expected %d Hz, got %d", audio.SampleRate, rate)
		}
		n, err := dev.Write(chunk)
		if err != nil || n != len(chunk)/2 {
			t.Fatalf("Write: n=%d err=%v", n, err)
		}
		if err := dev.Drain(); err != nil {
			t.Fatalf("Drain: %v", err)
		}
		if err := dev.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected file contents % x", got)
	}
}

func TestFileDeviceRejectsUnsupportedFormat(t *testing.T) {
	b := NewFile(fileConfig("", filepath.Join(t.TempDir(), "out.pcm")), zerolog.Nop())
	dev, err := b.Open("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Configure(audio.Format{Encoding: audio.S16LE, Channels: 2, SampleRate: 16000}); err == nil {
		t.Fatal("expected stereo to be rejected")
	}
}

func TestFileDeviceRecover(t *testing.T) {
	d := &fileDevice{}
	if err := d.Recover(audio.ErrUnderrun); err != nil {
		t.Fatalf("underrun should be recoverable, got %v", err)
	}
	if err := d.Recover(os.ErrClosed); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected I/O error to be fatal, got %v", err)
	}
}

func TestFileOpenWithoutOutput(t *testing.T) {
	b := NewFile(fileConfig("in.pcm", ""), zerolog.Nop())
	if _, err := b.Open("default"); !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func writeInput(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pcm")
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileCaptureEmitsChunksThenEnds(t *testing.T) {
	// 2.5 chunks of 320 bytes; the trailing odd byte is dropped.
	in := writeInput(t, 801)
	c := NewFile(fileConfig(in, ""), zerolog.Nop()).Capturer()

	var sizes []int
	readyCalled := false
	err := c.Capture(context.Background(), func() { readyCalled = true }, func(f audio.Frame) {
		sizes = append(sizes, f.Len())
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !readyCalled {
		t.Fatal("ready was not called")
	}
	want := []int{320, 320, 160}
	if len(sizes) != len(want) {
		t.Fatalf("expected chunks %v, got %v", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("expected chunks %v, got %v", want, sizes)
		}
	}
}

func TestFileCaptureMissingFile(t *testing.T) {
	c := NewFile(fileConfig(filepath.Join(t.TempDir(), "absent.pcm"), ""), zerolog.Nop()).Capturer()
	err := c.Capture(context.Background(), func() { t.Fatal("ready called for missing file") }, func(audio.Frame) {})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestFileCaptureLoopsUntilCancelled(t *testing.T) {
	in := writeInput(t, 320)
	cfg := fileConfig(in, "")
	cfg.LoopInput = true
	c := NewFile(cfg, zerolog.Nop()).Capturer()

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	frames := 0
	errc := make(chan error, 1)
	go func() {
		errc <- c.Capture(ctx, func() {}, func(audio.Frame) {
			mu.Lock()
			frames++
			mu.Unlock()
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := frames
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected looped frames, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileBackendDrivesSourceAndSink(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, 960)
	out := filepath.Join(dir, "out.pcm")
	b := NewFile(fileConfig(in, out), zerolog.Nop())

	sink := audio.NewSink(audio.SinkConfig{Driver: b, PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})
	src := audio.NewSource(b.Capturer(), audio.SourceConfig{Name: "file", Logger: zerolog.Nop()})
	if err := src.AddDataListener(sink.Send); err != nil {
		t.Fatal(err)
	}
	ended := make(chan struct{})
	if err := src.AddStopListener(func() { close(ended) }); err != nil {
		t.Fatal(err)
	}

	if err := sink.Start(); err != nil {
		t.Fatalf("sink Start: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("source Start: %v", err)
	}

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("file capture did not end")
	}
	deadline := time.Now().Add(2 * time.Second)
	for sink.Stats().FramesWritten < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sink.Stop()

	want, _ := os.ReadFile(in)
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("output differs from input: %d vs %d bytes", len(got), len(want))
	}
}
