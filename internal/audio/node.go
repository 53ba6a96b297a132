// Package audio implements the real-time PCM routing graph: the callback
// fabric nodes subscribe through, and the node types (Mixer, Multiplex,
// File, InputDevice, OutputDevice, Mp3Encoder, Icecast, RollingFile, Deck)
// that plug into it.
package audio

import "sync"

// Block is a fixed-size group of interleaved audio frames emitted as a unit
// by a producer. Samples are signed 16-bit, interleaved by channel: channel
// 0 sample 0, channel 1 sample 0, channel 0 sample 1, ...
type Block struct {
	Channels int
	Samples  []int16
}

// Frames returns the number of frames carried by the block.
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Handler receives a block published by src. Implementations must not block
// indefinitely; a slow handler directly stalls the publishing producer.
type Handler func(src Producer, block Block)

// Producer is any node that emits PCM blocks to subscribers.
type Producer interface {
	Channels() int
	AddSubscriber(h Handler) SubscriptionID
	RemoveSubscriber(id SubscriptionID)
	HasSubscribers() bool
}

// SubscriptionID identifies a single subscription so it can be removed
// without requiring Handler values to be comparable.
type SubscriptionID int64

type subscriber struct {
	id SubscriptionID
	fn Handler
}

// Fabric is the publish/subscribe primitive embedded by every PCM producer.
// add/remove are serialized against each other and against publication by a
// per-node lock; publish itself runs outside the lock so that a subscriber
// calling back into Add/RemoveSubscriber does not deadlock.
type Fabric struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID SubscriptionID
}

// AddSubscriber appends h; delivery to h begins on the next Publish call.
func (f *Fabric) AddSubscriber(h Handler) SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscriber{id: id, fn: h})
	return id
}

// RemoveSubscriber removes the subscription with the given id. No Publish
// that starts after this call returns invokes that handler; a Publish
// already in progress may still invoke it once (see Publish).
func (f *Fabric) RemoveSubscriber(id SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

// HasSubscribers reports whether at least one subscriber is registered.
func (f *Fabric) HasSubscribers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs) > 0
}

// Publish invokes each subscriber synchronously, in registration order,
// passing (self, block). The subscriber snapshot is taken under lock so that
// a concurrent Add/RemoveSubscriber never observes a half-installed edge; a
// subscriber added after the snapshot is taken is simply not invoked for
// this block, and one removed after the snapshot but before its own
// invocation may still receive this one call.
func (f *Fabric) Publish(self Producer, block Block) {
	f.mu.Lock()
	snapshot := make([]subscriber, len(f.subs))
	copy(snapshot, f.subs)
	f.mu.Unlock()

	for _, s := range snapshot {
		s.fn(self, block)
	}
}
