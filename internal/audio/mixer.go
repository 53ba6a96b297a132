package audio

import "sync"

// mixerInput is the per-input record described in spec.md §3: channel
// count, volume, and the tick-protocol flag.
type mixerInput struct {
	channels int
	volume   float64
	seen     bool
	subID    SubscriptionID
}

// Mixer sums arbitrary PCM inputs with per-input volume onto an N-channel
// output, closing a publication cycle the moment any one input contributes
// for the second time (spec.md §4.5). It is both a Producer (to its own
// subscribers) and implicitly a consumer of each attached input.
type Mixer struct {
	Fabric

	blockSize int
	cout      int

	mu     sync.Mutex
	inputs map[Producer]*mixerInput
	acc    []int16
}

// NewMixer creates a Mixer with the given output channel count and
// frames-per-block constant.
func NewMixer(blockSize, cout int) *Mixer {
	return &Mixer{
		blockSize: blockSize,
		cout:      cout,
		inputs:    make(map[Producer]*mixerInput),
		acc:       make([]int16, blockSize*cout),
	}
}

// Channels reports the Mixer's own output channel count, making it usable
// as an input to another Mixer or Multiplex.
func (m *Mixer) Channels() int { return m.cout }

// AddInput attaches src with default volume 1.0. It is an error to attach a
// source that is already attached.
func (m *Mixer) AddInput(src Producer) error {
	m.mu.Lock()
	if _, ok := m.inputs[src]; ok {
		m.mu.Unlock()
		return ErrDuplicateInput
	}
	rec := &mixerInput{channels: src.Channels(), volume: 1.0}
	m.inputs[src] = rec
	m.mu.Unlock()

	rec.subID = src.AddSubscriber(m.inputCallback)
	return nil
}

// RemoveInput detaches src: the callback edge is removed first, then the
// input's record is erased.
func (m *Mixer) RemoveInput(src Producer) error {
	m.mu.Lock()
	rec, ok := m.inputs[src]
	m.mu.Unlock()
	if !ok {
		return ErrNotAttached
	}
	src.RemoveSubscriber(rec.subID)

	m.mu.Lock()
	delete(m.inputs, src)
	m.mu.Unlock()
	return nil
}

// SetVolume sets src's volume, a scalar in [0.0, 2.0]. Out-of-range values
// are rejected and leave the Mixer's state unmutated.
func (m *Mixer) SetVolume(src Producer, volume float64) error {
	if volume < 0.0 || volume > 2.0 {
		return ErrVolumeRange
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.inputs[src]
	if !ok {
		return ErrNotAttached
	}
	rec.volume = volume
	return nil
}

// inputCallback implements the tick protocol of spec.md §4.5.
func (m *Mixer) inputCallback(src Producer, block Block) {
	m.mu.Lock()
	rec, ok := m.inputs[src]
	if !ok {
		m.mu.Unlock()
		return
	}

	var completed []int16
	closed := rec.seen
	if closed {
		completed = m.acc
		m.acc = make([]int16, m.blockSize*m.cout)
		for other, r := range m.inputs {
			r.seen = other == src
		}
	} else {
		rec.seen = true
	}
	m.mu.Unlock()

	if closed {
		m.Publish(m, Block{Channels: m.cout, Samples: completed})
	}

	scaled := scaleVolume(block.Samples, rec.volume)
	contribution := remapChannels(scaled, rec.channels, m.cout, m.blockSize)

	m.mu.Lock()
	if _, ok := m.inputs[src]; ok {
		accumulateInto(m.acc, contribution)
	}
	m.mu.Unlock()
}
