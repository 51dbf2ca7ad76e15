package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDevice records every call made by a Sink. writeErrs is consumed one
// entry per Write; a nil entry (or running past the end) means success.
type fakeDevice struct {
	mu sync.Mutex

	rate         int
	configureErr error
	writeErrs    []error
	maxFrames    int  // > 0 caps frames accepted per Write
	zeroFrames   bool // Write accepts nothing and reports no error
	recoverErr   error

	configured  []Format
	writes      [][]byte
	attempts    int
	recovered   []error
	drained     int
	closed      int
	writesAfter int // writes attempted after Close
}

func (d *fakeDevice) Configure(f Format) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = append(d.configured, f)
	if d.configureErr != nil {
		return 0, d.configureErr
	}
	if d.rate != 0 {
		return d.rate, nil
	}
	return f.SampleRate, nil
}

func (d *fakeDevice) Write(pcm []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed > 0 {
		d.writesAfter++
	}
	i := d.attempts
	d.attempts++
	if i < len(d.writeErrs) && d.writeErrs[i] != nil {
		return 0, d.writeErrs[i]
	}
	if d.zeroFrames {
		return 0, nil
	}
	n := len(pcm)
	if d.maxFrames > 0 && n > d.maxFrames*BytesPerSample {
		n = d.maxFrames * BytesPerSample
	}
	cp := make([]byte, n)
	copy(cp, pcm[:n])
	d.writes = append(d.writes, cp)
	return n / BytesPerSample, nil
}

func (d *fakeDevice) Recover(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recovered = append(d.recovered, err)
	return d.recoverErr
}

func (d *fakeDevice) Drain() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drained++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDevice) snapshot() (writes [][]byte, attempts, drained, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.writes))
	copy(out, d.writes)
	return out, d.attempts, d.drained, d.closed
}

type fakeDriver struct {
	mu      sync.Mutex
	dev     *fakeDevice
	openErr error
	names   []string
}

func (d *fakeDriver) Open(name string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.dev, nil
}

func (d *fakeDriver) opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}

// fakeCapturer emits the queued frames, then idles until cancelled. When
// finite is set it returns after the last frame instead.
type fakeCapturer struct {
	mu sync.Mutex

	frames   []Frame
	openErr  error
	runErr   error
	finite   bool
	interval time.Duration

	acquired int
	released int
}

func (c *fakeCapturer) Capture(ctx context.Context, ready func(), emit func(Frame)) error {
	c.mu.Lock()
	if c.openErr != nil {
		c.mu.Unlock()
		return c.openErr
	}
	c.acquired++
	frames := append([]Frame(nil), c.frames...)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.released++
		c.mu.Unlock()
	}()

	ready()
	for _, f := range frames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(f)
		if c.interval > 0 {
			time.Sleep(c.interval)
		}
	}
	if c.runErr != nil {
		return c.runErr
	}
	if c.finite {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeCapturer) counts() (acquired, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired, c.released
}

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// pcm returns n bytes filled with tag, so writes can be told apart.
func pcm(n int, tag byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = tag
	}
	return b
}

var errBoom = errors.New("boom")
