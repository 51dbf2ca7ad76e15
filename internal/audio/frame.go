package audio

import (
	"encoding/binary"
	"time"
)

// Frame is an immutable chunk of mono S16LE PCM. The zero value is an empty
// frame. Frames are passed by value; copies share the same read-only bytes.
type Frame struct {
	data []byte
}

// NewFrame copies pcm into a new Frame. A trailing odd byte is dropped so the
// frame always holds a whole number of samples.
func NewFrame(pcm []byte) Frame {
	n := len(pcm) - len(pcm)%BytesPerSample
	if n == 0 {
		return Frame{}
	}
	data := make([]byte, n)
	copy(data, pcm[:n])
	return Frame{data: data}
}

// FrameFromSamples encodes samples as little-endian PCM.
func FrameFromSamples(samples []int16) Frame {
	if len(samples) == 0 {
		return Frame{}
	}
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*BytesPerSample:], uint16(s))
	}
	return Frame{data: data}
}

// Len returns the frame size in bytes.
func (f Frame) Len() int { return len(f.data) }

// IsEmpty reports whether the frame holds no samples.
func (f Frame) IsEmpty() bool { return len(f.data) == 0 }

// SampleCount returns the number of samples in the frame.
func (f Frame) SampleCount() int { return len(f.data) / BytesPerSample }

// Duration returns the play time of the frame at the nominal sample rate.
func (f Frame) Duration() time.Duration {
	return time.Duration(f.SampleCount()) * time.Second / SampleRate
}

// Bytes returns a copy of the PCM bytes.
func (f Frame) Bytes() []byte {
	if len(f.data) == 0 {
		return nil
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// Samples decodes the frame into dst, growing it as needed, and returns it.
func (f Frame) Samples(dst []int16) []int16 {
	dst = dst[:0]
	for i := 0; i+1 < len(f.data); i += BytesPerSample {
		dst = append(dst, int16(binary.LittleEndian.Uint16(f.data[i:])))
	}
	return dst
}

