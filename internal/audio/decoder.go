package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"

	"github.com/gopxl/beep/v2"
)

// DecodeFile runs FFmpeg to decode an audio file the native decoders cannot read
// (m4a, ogg, opus, ...) and returns it as a seekable in-memory stream at the
// engine rate.
func DecodeFile(ctx context.Context, path string) (beep.StreamSeekCloser, beep.Format, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return BufferFrames(FromInt16(samples)), Format, nil
}

// BufferFrames wraps decoded frames in a seekable stream at the engine format.
func BufferFrames(frames [][2]float64) beep.StreamSeekCloser {
	buf := beep.NewBuffer(Format)
	buf.Append(&frameStreamer{frames: frames})
	return nopCloser{buf.Streamer(0, buf.Len())}
}

type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (f *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if f.pos >= len(f.frames) {
		return 0, false
	}
	n := copy(samples, f.frames[f.pos:])
	f.pos += n
	return n, true
}

func (f *frameStreamer) Err() error { return nil }

type nopCloser struct {
	beep.StreamSeeker
}

func (nopCloser) Close() error { return nil }
