package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/arung-agamani/denpa-studio/internal/ffmpeg"
)

// Mp3Encoder is a constant-bit-rate PCM-to-bytes node (spec.md §4.8). It
// accepts at most one PCM input at a time; a change of input channel count
// forces a flush and rebuild of the underlying encoder, since an MP3
// stream's channel count cannot change mid-stream.
type Mp3Encoder struct {
	EncodedFabric

	sampleRate  int
	quality     int
	bitrateKbps int

	mu       sync.Mutex
	input    Producer
	subID    SubscriptionID
	encoder  *ffmpeg.Encoder
	channels int
	cancel   context.CancelFunc
}

// NewMp3Encoder creates an encoder configured with the given sample rate,
// quality (2-7, libmp3lame compression-level scale) and bit rate in kbps.
func NewMp3Encoder(sampleRate, quality, bitrateKbps int) *Mp3Encoder {
	return &Mp3Encoder{sampleRate: sampleRate, quality: quality, bitrateKbps: bitrateKbps}
}

// SetInput attaches src as the encoder's sole PCM input. If an encoder is
// already live with a different channel count, it is flushed and rebuilt.
// A nil src is equivalent to ClearInput.
func (m *Mp3Encoder) SetInput(src Producer) error {
	if src == nil {
		return m.ClearInput()
	}
	m.mu.Lock()
	if m.input != nil {
		prevInput, prevSubID := m.input, m.subID
		m.mu.Unlock()
		prevInput.RemoveSubscriber(prevSubID)
		m.mu.Lock()
	}

	channels := src.Channels()
	if m.encoder != nil && m.channels != channels {
		m.mu.Unlock()
		m.flush()
		m.mu.Lock()
	}
	if m.encoder == nil {
		if err := m.buildLocked(channels); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.input = src
	m.mu.Unlock()

	m.subID = src.AddSubscriber(m.inputCallback)
	return nil
}

// ClearInput detaches the current input, flushing and destroying the
// encoder. Flush completes before this returns: every residual MP3 byte
// has reached subscribers by the time ClearInput returns.
func (m *Mp3Encoder) ClearInput() error {
	m.mu.Lock()
	input, subID := m.input, m.subID
	m.input = nil
	m.mu.Unlock()
	if input != nil {
		input.RemoveSubscriber(subID)
	}
	m.flush()
	return nil
}

// Close flushes and detaches, per spec.md §4.8's close() contract.
func (m *Mp3Encoder) Close() error {
	return m.ClearInput()
}

func (m *Mp3Encoder) buildLocked(channels int) error {
	ctx, cancel := context.WithCancel(context.Background())
	enc, err := ffmpeg.StartEncoder(ctx, channels, m.sampleRate, m.quality, m.bitrateKbps, func(data []byte) {
		m.Publish(m, data)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrEncoderFailed, err)
	}
	m.encoder = enc
	m.channels = channels
	m.cancel = cancel
	return nil
}

// flush closes the live encoder, if any, blocking until ffmpeg exits and
// every residual chunk has been delivered to subscribers. Must not be
// called with m.mu held: Close blocks on the drain goroutine, which calls
// back into Publish.
func (m *Mp3Encoder) flush() {
	m.mu.Lock()
	enc := m.encoder
	cancel := m.cancel
	m.encoder = nil
	m.channels = 0
	m.cancel = nil
	m.mu.Unlock()

	if enc == nil {
		return
	}
	_ = enc.Close()
	cancel()
}

func (m *Mp3Encoder) inputCallback(src Producer, block Block) {
	m.mu.Lock()
	if m.input != src || m.encoder == nil {
		m.mu.Unlock()
		return
	}
	enc := m.encoder
	m.mu.Unlock()

	buf := make([]byte, len(block.Samples)*2)
	for i, s := range block.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	_, _ = enc.Write(buf)
}
