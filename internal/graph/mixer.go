package graph

import (
	"sync"

	"github.com/google/uuid"

	"github.com/arung-agamani/denpa-studio/internal/audio"
)

// MixerChannel is one attached input to a Mixer, tracked here so its
// opaque producer reference can be persisted and restored (the underlying
// audio.Mixer only tracks audio.Producer values, not their IDs).
type MixerChannel struct {
	ID         string
	MixerID    string
	ProducerID string
	Volume     float64

	producer audio.Producer
}

// Mixer is a registry entry wrapping an audio.Mixer plus its channel list,
// matching original_source/audio_manager/mixer.py's Mixer dataclass.
type Mixer struct {
	ID             string
	DisplayName    string
	OutputChannels int

	node     *audio.Mixer
	channels map[string]*MixerChannel // keyed by MixerChannel.ID
}

// Producer returns the underlying PCM producer, so a Mixer can itself be
// used as another Mixer's or Output's input.
func (m *Mixer) Producer() audio.Producer { return m.node }

type mixerRegistry struct {
	mu   sync.Mutex
	byID map[string]*Mixer
}

func newMixerRegistry() *mixerRegistry {
	return &mixerRegistry{byID: make(map[string]*Mixer)}
}

// AddMixer creates a Mixer with the given output channel count.
func (c *Controller) AddMixer(displayName string, outputChannels int) (*Mixer, error) {
	mx := &Mixer{
		ID:             uuid.NewString(),
		DisplayName:    displayName,
		OutputChannels: outputChannels,
		node:           audio.NewMixer(c.blockSize, outputChannels),
		channels:       make(map[string]*MixerChannel),
	}

	c.mixers.mu.Lock()
	c.mixers.byID[mx.ID] = mx
	c.mixers.mu.Unlock()

	if c.store != nil {
		if err := c.store.saveMixer(mx); err != nil {
			c.mixers.mu.Lock()
			delete(c.mixers.byID, mx.ID)
			c.mixers.mu.Unlock()
			return nil, err
		}
	}
	return mx, nil
}

// GetMixer looks up a Mixer by ID.
func (c *Controller) GetMixer(id string) (*Mixer, error) {
	c.mixers.mu.Lock()
	defer c.mixers.mu.Unlock()
	mx, ok := c.mixers.byID[id]
	if !ok {
		return nil, newError(KindDeviceNotFound, "mixer %s not found", id)
	}
	return mx, nil
}

// ListMixers returns every registered Mixer.
func (c *Controller) ListMixers() []*Mixer {
	c.mixers.mu.Lock()
	defer c.mixers.mu.Unlock()
	out := make([]*Mixer, 0, len(c.mixers.byID))
	for _, mx := range c.mixers.byID {
		out = append(out, mx)
	}
	return out
}

// AddMixerChannel attaches producerID (resolved via resolveInput) to mixerID
// at default volume 1.0.
func (c *Controller) AddMixerChannel(mixerID, producerID string) (*MixerChannel, error) {
	mx, err := c.GetMixer(mixerID)
	if err != nil {
		return nil, err
	}
	producer, err := c.resolveInput(producerID)
	if err != nil {
		return nil, err
	}
	if err := mx.node.AddInput(producer); err != nil {
		return nil, newError(KindValidation, "%w", err)
	}

	ch := &MixerChannel{
		ID:         uuid.NewString(),
		MixerID:    mixerID,
		ProducerID: producerID,
		Volume:     1.0,
		producer:   producer,
	}

	c.mixers.mu.Lock()
	mx.channels[ch.ID] = ch
	c.mixers.mu.Unlock()

	if c.store != nil {
		if err := c.store.saveMixerChannel(ch); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// SetMixerChannelVolume updates a channel's volume, a scalar in [0.0, 2.0].
func (c *Controller) SetMixerChannelVolume(mixerID, channelID string, volume float64) error {
	mx, err := c.GetMixer(mixerID)
	if err != nil {
		return err
	}
	c.mixers.mu.Lock()
	ch, ok := mx.channels[channelID]
	c.mixers.mu.Unlock()
	if !ok {
		return newError(KindDeviceNotFound, "mixer channel %s not found", channelID)
	}
	if err := mx.node.SetVolume(ch.producer, volume); err != nil {
		return newError(KindValidation, "%w", err)
	}
	ch.Volume = volume
	if c.store != nil {
		return c.store.saveMixerChannel(ch)
	}
	return nil
}

// RemoveMixerChannel detaches and deletes a channel.
func (c *Controller) RemoveMixerChannel(mixerID, channelID string) error {
	mx, err := c.GetMixer(mixerID)
	if err != nil {
		return err
	}
	c.mixers.mu.Lock()
	ch, ok := mx.channels[channelID]
	c.mixers.mu.Unlock()
	if !ok {
		return newError(KindDeviceNotFound, "mixer channel %s not found", channelID)
	}
	if err := mx.node.RemoveInput(ch.producer); err != nil {
		return newError(KindValidation, "%w", err)
	}

	c.mixers.mu.Lock()
	delete(mx.channels, channelID)
	c.mixers.mu.Unlock()

	if c.store != nil {
		return c.store.deleteMixerChannel(channelID)
	}
	return nil
}

// DeleteMixer removes a Mixer, refusing if it still has subscribers
// (ported from InUseException in audio_manager/mixer.py).
func (c *Controller) DeleteMixer(id string) error {
	mx, err := c.GetMixer(id)
	if err != nil {
		return err
	}
	if mx.node.HasSubscribers() {
		return newError(KindInUse, "mixer %s is in use", id)
	}

	c.mixers.mu.Lock()
	delete(c.mixers.byID, id)
	c.mixers.mu.Unlock()

	if c.store != nil {
		return c.store.deleteMixer(id)
	}
	return nil
}
