package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

const outputQueueCapacity = 16

// OutputDevice pulls from its single producer under a hardware playback
// callback, decoupled by a bounded FIFO of capacity 16 blocks (spec.md
// §4.4). Overrun on produce drops the oldest block; underrun on consume
// pads the remainder of the request with silence. After each playback
// callback, a tick notification — represented as an empty Block, since the
// fabric's Publish always carries one — is published to the device's own
// subscribers.
type OutputDevice struct {
	name       string
	blockSize  int
	channels   int
	sampleRate int
	malgoCtx   *malgo.AllocatedContext

	fabric Fabric

	mu          sync.Mutex
	input       Producer
	subID       SubscriptionID
	queue       [][]int16
	headOffset  int
	started     bool
	device      *malgo.Device
}

// NewOutputDevice creates an OutputDevice bound to the named playback
// device.
func NewOutputDevice(malgoCtx *malgo.AllocatedContext, deviceName string, blockSize, channels, sampleRate int) *OutputDevice {
	return &OutputDevice{
		name:       deviceName,
		blockSize:  blockSize,
		channels:   channels,
		sampleRate: sampleRate,
		malgoCtx:   malgoCtx,
	}
}

// Name returns the configured hardware device name.
func (od *OutputDevice) Name() string { return od.name }

// Channels reports the playback channel count (so an OutputDevice can, in
// principle, be chained as another node's input for metering/testing).
func (od *OutputDevice) Channels() int { return od.channels }

// AddSubscriber registers h for tick notifications.
func (od *OutputDevice) AddSubscriber(h Handler) SubscriptionID {
	return od.fabric.AddSubscriber(h)
}

// RemoveSubscriber deregisters a tick subscriber.
func (od *OutputDevice) RemoveSubscriber(id SubscriptionID) { od.fabric.RemoveSubscriber(id) }

// HasSubscribers reports whether any tick subscriber is registered.
func (od *OutputDevice) HasSubscribers() bool { return od.fabric.HasSubscribers() }

// Input returns the currently attached producer, or nil.
func (od *OutputDevice) Input() Producer {
	od.mu.Lock()
	defer od.mu.Unlock()
	return od.input
}

// SetInput attaches src as the sole PCM producer for this device, starting
// the hardware stream if it is not already running. Passing nil detaches
// the current producer and stops the stream.
func (od *OutputDevice) SetInput(src Producer) error {
	od.mu.Lock()
	prev, prevSubID := od.input, od.subID
	od.mu.Unlock()
	if prev == src {
		return nil
	}
	if prev != nil {
		prev.RemoveSubscriber(prevSubID)
	}

	if src == nil {
		od.mu.Lock()
		od.input = nil
		od.mu.Unlock()
		return od.stopIfRunning()
	}

	if err := od.startIfNeeded(); err != nil {
		return err
	}
	subID := src.AddSubscriber(od.produce)
	od.mu.Lock()
	od.input = src
	od.subID = subID
	od.mu.Unlock()
	return nil
}

func (od *OutputDevice) startIfNeeded() error {
	od.mu.Lock()
	defer od.mu.Unlock()
	if od.started {
		return nil
	}

	deviceInfo, err := findDevice(od.malgoCtx, malgo.Playback, od.name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(od.channels)
	cfg.SampleRate = uint32(od.sampleRate)
	cfg.Playback.DeviceID = deviceInfo.ID.Pointer()
	cfg.PeriodSizeInFrames = uint32(od.blockSize)

	device, err := malgo.InitDevice(od.malgoCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: od.playbackCallback,
		Stop: func() {},
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}
	od.device = device
	od.started = true
	return nil
}

func (od *OutputDevice) stopIfRunning() error {
	od.mu.Lock()
	defer od.mu.Unlock()
	if !od.started {
		return nil
	}
	_ = od.device.Stop()
	od.device.Uninit()
	od.device = nil
	od.started = false
	od.queue = nil
	od.headOffset = 0
	return nil
}

// produce is the input producer's callback: enqueue, dropping the oldest
// block on overflow.
func (od *OutputDevice) produce(_ Producer, block Block) {
	samples := make([]int16, len(block.Samples))
	copy(samples, block.Samples)

	od.mu.Lock()
	if len(od.queue) >= outputQueueCapacity {
		od.queue = od.queue[1:]
		od.headOffset = 0
		slog.Debug("output device queue overrun, dropping oldest block", "device", od.name)
	}
	od.queue = append(od.queue, samples)
	od.mu.Unlock()
}

// playbackCallback is invoked on the hardware playback thread. It allocates
// a fresh sample slice on every call (see assemble) and briefly takes the
// queue lock and the fabric lock; it does not use preallocated scratch
// buffers.
func (od *OutputDevice) playbackCallback(output []byte, _ []byte, frameCount uint32) {
	needed := int(frameCount) * od.channels
	assembled := od.assemble(needed)

	for i, s := range assembled {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(s))
	}

	od.fabric.Publish(od, Block{})
}

func (od *OutputDevice) assemble(needed int) []int16 {
	out := make([]int16, 0, needed)

	od.mu.Lock()
	for len(out) < needed && len(od.queue) > 0 {
		head := od.queue[0][od.headOffset:]
		remaining := needed - len(out)
		if len(head) <= remaining {
			out = append(out, head...)
			od.queue = od.queue[1:]
			od.headOffset = 0
		} else {
			out = append(out, head[:remaining]...)
			od.headOffset += remaining
		}
	}
	od.mu.Unlock()

	if len(out) < needed {
		out = append(out, make([]int16, needed-len(out))...)
	}
	return out
}

// Devices lists the names of hardware devices of the given type (capture or
// playback).
func Devices(ctx *malgo.AllocatedContext, deviceType malgo.DeviceType) ([]string, error) {
	infos, err := ctx.Devices(deviceType)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}
