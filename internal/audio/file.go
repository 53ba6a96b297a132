package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/arung-agamani/denpa-studio/internal/ffmpeg"
)

// File opens a compressed audio file and exposes it as a PCM producer at
// the file's native channel count (spec.md §4.2). Decode runs on a
// dedicated worker that paces publication to wall-clock time.
type File struct {
	Fabric

	path       string
	blockSize  int
	channels   int
	sampleRate int
	duration   float64

	mu            sync.Mutex
	playing       bool
	framesEmitted int64
	endCallback   func()
	dec           *ffmpeg.Decoder
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// OpenFile probes path for its channel count, sample rate and duration and
// returns an unstarted File ready for Play. frames_per_block is the
// process-wide BLOCK_SIZE.
func OpenFile(ctx context.Context, path string, framesPerBlock int) (*File, error) {
	info, err := ffmpeg.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return &File{
		path:       path,
		blockSize:  framesPerBlock,
		channels:   info.Channels,
		sampleRate: info.SampleRate,
		duration:   info.Duration,
	}, nil
}

// Channels reports the file's native channel count.
func (f *File) Channels() int { return f.channels }

// Length returns the file's total duration in seconds, if known.
func (f *File) Length() float64 { return f.duration }

// Time returns the current playback position in seconds.
func (f *File) Time() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return float64(f.framesEmitted) / float64(f.sampleRate)
}

// SetEndCallback installs the callback invoked when the file reaches
// natural end-of-track or its decoder fails fatally. A nil callback
// disables notification (used by a caller that wants to suppress advance
// logic, e.g. while deliberately repositioning).
func (f *File) SetEndCallback(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCallback = cb
}

// Play starts (or resumes) the decode worker from the current position.
// It is a no-op if already playing.
func (f *File) Play() error {
	f.mu.Lock()
	if f.playing {
		f.mu.Unlock()
		return nil
	}
	start := f.framesEmitted
	f.mu.Unlock()
	return f.startAt(start)
}

func (f *File) startAt(startFrame int64) error {
	dec, err := ffmpeg.StartDecoder(context.Background(), f.path, int(startFrame), f.sampleRate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	f.mu.Lock()
	f.dec = dec
	f.framesEmitted = startFrame
	f.playing = true
	f.stopCh = make(chan struct{})
	f.mu.Unlock()

	f.wg.Add(1)
	go f.decodeLoop(dec, f.stopCh, startFrame)
	return nil
}

// Pause stops producing but retains the decode position so Play resumes
// from where it left off. Unlike the original implementation's decode
// loop (which fired the end-of-track callback on any exit, including an
// explicit stop), Pause here never invokes the end-of-track callback — see
// DESIGN.md for why that is the resolved behavior for spec.md §9's open
// question, and Deck, which relies on this to retain the next file across
// a pause.
func (f *File) Pause() {
	f.stopWorker()
}

// Stop stops playback and rewinds to the beginning.
func (f *File) Stop() {
	f.stopWorker()
	f.mu.Lock()
	f.framesEmitted = 0
	f.mu.Unlock()
}

// stopWorker signals the decode goroutine to exit and waits for it. The
// playing flag is cleared under the same lock as the close, so two callers
// racing (e.g. a concurrent Stop and Pause) can't both observe playing and
// double-close stopCh: only the caller that flips playing true->false
// performs the close.
func (f *File) stopWorker() {
	f.mu.Lock()
	if !f.playing {
		f.mu.Unlock()
		return
	}
	f.playing = false
	close(f.stopCh)
	f.mu.Unlock()
	f.wg.Wait()
}

// SetLocation repositions playback to the given offset in seconds. ffmpeg's
// demuxer-level seeking handles both forward and backward jumps equally
// well, so unlike the original streaming decoder (which could only consume
// forward and had to reopen the file for a backward seek) this always
// restarts the decoder directly at the target frame.
func (f *File) SetLocation(seconds float64) error {
	f.mu.Lock()
	wasPlaying := f.playing
	f.mu.Unlock()

	if wasPlaying {
		f.stopWorker()
	}

	target := int64(seconds * float64(f.sampleRate))
	f.mu.Lock()
	f.framesEmitted = target
	f.mu.Unlock()

	if wasPlaying {
		return f.startAt(target)
	}
	return nil
}

func (f *File) decodeLoop(dec *ffmpeg.Decoder, stopCh chan struct{}, startFrame int64) {
	defer f.wg.Done()
	defer dec.Close()

	frameSize := f.channels * 2 // bytes per frame (int16 samples)
	blockBytes := f.blockSize * frameSize

	anchor := time.Now().Add(-time.Duration(float64(startFrame) / float64(f.sampleRate) * float64(time.Second)))
	frames := startFrame

	var acc []byte
	buf := make([]byte, 4096)

	// fail marks playback inactive and fires the end-of-track callback,
	// whether decode exhausted naturally or failed fatally (spec.md §4.2,
	// §7 — decode failure deregisters and stops with no retry, but still
	// advances a playlist rather than hanging it).
	fail := func() {
		f.mu.Lock()
		f.playing = false
		cb := f.endCallback
		f.mu.Unlock()
		if cb != nil {
			cb()
		}
	}

	for {
		select {
		case <-stopCh:
			f.mu.Lock()
			f.playing = false
			f.mu.Unlock()
			return
		default:
		}

		n, err := dec.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A final partial block (fewer than BLOCK_SIZE frames) is not
				// emitted: spec.md's loop only publishes whole blocks.
				fail()
				return
			}
			fail()
			return
		}

		for len(acc) >= blockBytes {
			select {
			case <-stopCh:
				f.mu.Lock()
				f.playing = false
				f.mu.Unlock()
				return
			default:
			}

			frames += int64(f.blockSize)
			target := time.Duration(float64(frames) / float64(f.sampleRate) * float64(time.Second))
			sleep := time.Until(anchor.Add(target))
			if sleep > 0 {
				time.Sleep(sleep)
			}

			samples := make([]int16, f.blockSize*f.channels)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(acc[i*2:]))
			}
			f.mu.Lock()
			f.framesEmitted = frames
			f.mu.Unlock()
			f.Publish(f, Block{Channels: f.channels, Samples: samples})

			acc = acc[blockBytes:]
		}
	}
}
