package audio

import "sync"

// EncodedHandler receives a chunk of encoded bytes (MP3 frames, not
// necessarily aligned to frame boundaries) published by src.
type EncodedHandler func(src EncodedProducer, data []byte)

// EncodedProducer is a node that emits encoded byte streams rather than PCM
// blocks — the codec side of spec.md §9's capability-trait split.
type EncodedProducer interface {
	AddSubscriber(h EncodedHandler) SubscriptionID
	RemoveSubscriber(id SubscriptionID)
	HasSubscribers() bool
}

type encodedSubscriber struct {
	id SubscriptionID
	fn EncodedHandler
}

// EncodedFabric is the publish/subscribe primitive for EncodedProducer
// nodes; same contract as Fabric, carrying bytes instead of PCM blocks.
type EncodedFabric struct {
	mu     sync.Mutex
	subs   []encodedSubscriber
	nextID SubscriptionID
}

func (f *EncodedFabric) AddSubscriber(h EncodedHandler) SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, encodedSubscriber{id: id, fn: h})
	return id
}

func (f *EncodedFabric) RemoveSubscriber(id SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

func (f *EncodedFabric) HasSubscribers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs) > 0
}

// Publish invokes each subscriber synchronously, in registration order.
func (f *EncodedFabric) Publish(self EncodedProducer, data []byte) {
	if len(data) == 0 {
		return
	}
	f.mu.Lock()
	snapshot := make([]encodedSubscriber, len(f.subs))
	copy(snapshot, f.subs)
	f.mu.Unlock()

	for _, s := range snapshot {
		s.fn(self, data)
	}
}
