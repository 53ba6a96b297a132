package graph

import "github.com/arung-agamani/denpa-studio/internal/audio"

// sink is the common shape every Output kind exposes to the controller: an
// attachable/detachable single PCM input. audio.OutputDevice, audio.Icecast
// and audio.RollingFile already satisfy this; multiplexOutput below adapts
// a shared audio.Multiplex to the same shape, mirroring the Python
// original's MultiplexedOutput wrapper.
type sink interface {
	SetInput(src audio.Producer) error
	Input() audio.Producer
}

// multiplexOutput wraps a shared Multiplex so that each channel range
// within it can be managed as an independent Output, exactly as
// original_source/audio_manager/output.py's MultiplexedOutput does: the
// parent OutputDevice owns one Multiplex; each multiplexOutput owns one
// [offset, offset+channels) slice of it.
type multiplexOutput struct {
	parent   *audio.OutputDevice
	mx       *audio.Multiplex
	channels int
	offset   int
	source   audio.Producer
}

func (mo *multiplexOutput) SetInput(src audio.Producer) error {
	if src == mo.source {
		return nil
	}
	if mo.source != nil {
		if err := mo.mx.RemoveInput(mo.source); err != nil {
			return err
		}
		mo.source = nil
	}
	if src == nil {
		return nil
	}
	if err := mo.mx.AddInput(src, mo.offset); err != nil {
		return err
	}
	mo.source = src
	return nil
}

func (mo *multiplexOutput) Input() audio.Producer { return mo.source }

// browserStreamSink wraps an Mp3Encoder as an Output sink for the live
// browser stream named in spec.md §1 alongside the Icecast client and
// rolling file writer as a consumer of the MP3 encoder node. The WebSocket
// layer that would read the encoder's byte stream is out of scope (spec.md
// §1's Non-goal); this sink keeps the encoder alive and addressable so that
// layer, when it exists, can subscribe to it directly via Encoder().
type browserStreamSink struct {
	encoder *audio.Mp3Encoder
	source  audio.Producer
}

func (b *browserStreamSink) SetInput(src audio.Producer) error {
	if err := b.encoder.SetInput(src); err != nil {
		return err
	}
	b.source = src
	return nil
}

func (b *browserStreamSink) Input() audio.Producer { return b.source }
