package audio

import "sync"

type multiplexInput struct {
	start    int
	channels int
	seen     bool
	subID    SubscriptionID
}

// Multiplex interleaves several narrow inputs into contiguous channel
// ranges of one wide output (spec.md §4.6). Unlike Mixer it never sums or
// scales: each input's samples are written directly into its
// [start, start+channels) slice of the emitted block. The tick protocol
// (second arrival from the same input closes the cycle) is identical to
// Mixer's.
type Multiplex struct {
	Fabric

	blockSize int
	cout      int

	mu     sync.Mutex
	inputs map[Producer]*multiplexInput
	acc    []int16
}

// NewMultiplex creates a Multiplex with the given output channel count and
// frames-per-block constant.
func NewMultiplex(blockSize, cout int) *Multiplex {
	return &Multiplex{
		blockSize: blockSize,
		cout:      cout,
		inputs:    make(map[Producer]*multiplexInput),
		acc:       make([]int16, blockSize*cout),
	}
}

// Channels reports the Multiplex's own output channel count.
func (mx *Multiplex) Channels() int { return mx.cout }

// AddInput places src's channels at [start, start+src.Channels()) of the
// output. It validates bounds and that the range does not overlap any
// existing input.
func (mx *Multiplex) AddInput(src Producer, start int) error {
	cin := src.Channels()

	mx.mu.Lock()
	if _, ok := mx.inputs[src]; ok {
		mx.mu.Unlock()
		return ErrDuplicateInput
	}
	if start < 0 || start+cin > mx.cout {
		mx.mu.Unlock()
		return ErrChannelBounds
	}
	for _, other := range mx.inputs {
		if rangesOverlap(start, cin, other.start, other.channels) {
			mx.mu.Unlock()
			return ErrChannelOverlap
		}
	}
	rec := &multiplexInput{start: start, channels: cin}
	mx.inputs[src] = rec
	mx.mu.Unlock()

	rec.subID = src.AddSubscriber(mx.inputCallback)
	return nil
}

// RemoveInput detaches src.
func (mx *Multiplex) RemoveInput(src Producer) error {
	mx.mu.Lock()
	rec, ok := mx.inputs[src]
	mx.mu.Unlock()
	if !ok {
		return ErrNotAttached
	}
	src.RemoveSubscriber(rec.subID)

	mx.mu.Lock()
	delete(mx.inputs, src)
	mx.mu.Unlock()
	return nil
}

func rangesOverlap(aStart, aLen, bStart, bLen int) bool {
	return aStart < bStart+bLen && bStart < aStart+aLen
}

func (mx *Multiplex) inputCallback(src Producer, block Block) {
	mx.mu.Lock()
	rec, ok := mx.inputs[src]
	if !ok {
		mx.mu.Unlock()
		return
	}

	var completed []int16
	closed := rec.seen
	if closed {
		completed = mx.acc
		mx.acc = make([]int16, mx.blockSize*mx.cout)
		for other, r := range mx.inputs {
			r.seen = other == src
		}
	} else {
		rec.seen = true
	}
	mx.mu.Unlock()

	if closed {
		mx.Publish(mx, Block{Channels: mx.cout, Samples: completed})
	}

	mx.mu.Lock()
	if _, ok := mx.inputs[src]; ok {
		placeChannels(mx.acc, mx.cout, block.Samples, rec.channels, rec.start, mx.blockSize)
	}
	mx.mu.Unlock()
}
