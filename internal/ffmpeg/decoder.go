package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// Decoder spawns ffmpeg to decode a compressed file to raw interleaved
// signed-16-bit little-endian PCM at its native sample rate and channel
// count, following the same subprocess-piping shape as the original
// encoder.Stream (stdout pipe consumed by the caller, stderr drained to
// slog.Debug in the background).
type Decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// StartDecoder opens path and begins decoding from frame offset
// startFrame at the given sample rate (as reported by Probe). ffmpeg is
// told to seek there with -ss so a forward seek does not require decoding
// and discarding every preceding frame in this process.
func StartDecoder(ctx context.Context, path string, startFrame, sampleRate int) (*Decoder, error) {
	startSeconds := float64(startFrame) / float64(sampleRate)
	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.6f", startSeconds),
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-vn",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", errDecodeFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", errDecodeFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start: %v", errDecodeFailed, err)
	}

	go drainStderr("ffmpeg-decode", stderr)

	return &Decoder{cmd: cmd, stdout: stdout}, nil
}

// Read reads raw PCM bytes from the decode stream.
func (d *Decoder) Read(p []byte) (int, error) {
	return d.stdout.Read(p)
}

// Close terminates the ffmpeg subprocess and releases its resources. It is
// safe to call after a natural EOF.
func (d *Decoder) Close() error {
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	return d.cmd.Wait()
}

func drainStderr(tag string, r io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			slog.Debug(tag, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
