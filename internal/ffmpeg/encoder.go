package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// Encoder is a long-lived ffmpeg subprocess that accepts raw interleaved
// signed-16-bit PCM on stdin and emits constant-bit-rate MP3 frames on
// stdout. It replaces the original service's one-shot "encode a whole file"
// Stream call with a streaming encode suited to a live PCM producer: PCM is
// pushed via Write as it arrives from the encoder node's input, and
// whatever MP3 bytes ffmpeg has produced so far are delivered to onData
// from a dedicated drain goroutine, since encoded output does not arrive in
// lockstep with each Write.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	onData func([]byte)

	drainWg   sync.WaitGroup
	closeOnce sync.Once
}

// StartEncoder launches ffmpeg configured for the given channel count,
// sample rate, CBR bitrate (kbps) and libmp3lame compression level
// (0=best/slowest .. 9=worst/fastest; spec.md's quality knob maps directly
// onto this scale). onData is invoked from a background goroutine with
// each chunk of MP3 bytes ffmpeg flushes; it must not block.
func StartEncoder(ctx context.Context, channels, sampleRate, quality, bitrateKbps int, onData func([]byte)) (*Encoder, error) {
	args := []string{
		"-v", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-i", "pipe:0",
		"-f", "mp3",
		"-c:a", "libmp3lame",
		"-compression_level", fmt.Sprintf("%d", quality),
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: start: %w", err)
	}

	go drainStderr("ffmpeg-encode", stderr)

	e := &Encoder{cmd: cmd, stdin: stdin, stdout: stdout, onData: onData}
	e.drainWg.Add(1)
	go e.drainStdout()
	return e, nil
}

func (e *Encoder) drainStdout() {
	defer e.drainWg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := e.stdout.Read(buf)
		if n > 0 && e.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			e.onData(chunk)
		}
		if err != nil {
			return
		}
	}
}

// Write feeds raw PCM bytes to the encoder.
func (e *Encoder) Write(pcm []byte) (int, error) {
	return e.stdin.Write(pcm)
}

// Close flushes any buffered samples through the encoder (ffmpeg emits its
// final frames once stdin is closed) and waits for it to exit. onData may
// continue to be invoked until Close returns.
func (e *Encoder) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.stdin.Close()
		e.drainWg.Wait()
		if waitErr := e.cmd.Wait(); waitErr != nil && err == nil {
			err = waitErr
		}
		if err != nil {
			slog.Debug("ffmpeg encoder close", "error", err)
		}
	})
	return err
}
