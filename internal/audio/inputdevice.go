package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// InputDevice wraps a hardware capture stream, publishing one PCM block per
// driver callback (spec.md §4.3). The stream is started lazily on first
// subscriber and stopped when the subscriber count returns to zero
// (reference-counted activation), matching the original's add/remove
// override.
type InputDevice struct {
	name       string
	blockSize  int
	channels   int
	sampleRate int

	fabric Fabric

	mu      sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device  *malgo.Device
	started bool
}

// NewInputDevice creates an InputDevice bound to the named capture device.
// The malgo context is owned by the caller (typically one per process) and
// passed in so multiple devices can share it.
func NewInputDevice(malgoCtx *malgo.AllocatedContext, deviceName string, blockSize, channels, sampleRate int) *InputDevice {
	return &InputDevice{
		name:       deviceName,
		blockSize:  blockSize,
		channels:   channels,
		sampleRate: sampleRate,
		malgoCtx:   malgoCtx,
	}
}

// Name returns the configured hardware device name.
func (in *InputDevice) Name() string { return in.name }

// Channels reports the capture channel count.
func (in *InputDevice) Channels() int { return in.channels }

// AddSubscriber registers h and starts the capture stream if this is the
// first subscriber.
func (in *InputDevice) AddSubscriber(h Handler) SubscriptionID {
	id := in.fabric.AddSubscriber(h)
	in.checkState()
	return id
}

// RemoveSubscriber deregisters id and stops the capture stream if no
// subscribers remain.
func (in *InputDevice) RemoveSubscriber(id SubscriptionID) {
	in.fabric.RemoveSubscriber(id)
	in.checkState()
}

// HasSubscribers reports whether any subscriber is registered.
func (in *InputDevice) HasSubscribers() bool { return in.fabric.HasSubscribers() }

func (in *InputDevice) checkState() {
	want := in.fabric.HasSubscribers()

	in.mu.Lock()
	defer in.mu.Unlock()
	if want == in.started {
		return
	}
	if want {
		if err := in.startLocked(); err != nil {
			slog.Error("input device start failed", "device", in.name, "error", err)
			return
		}
		in.started = true
	} else {
		in.stopLocked()
		in.started = false
	}
}

func (in *InputDevice) startLocked() error {
	deviceInfo, err := findDevice(in.malgoCtx, malgo.Capture, in.name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(in.channels)
	cfg.SampleRate = uint32(in.sampleRate)
	cfg.Capture.DeviceID = deviceInfo.ID.Pointer()
	cfg.PeriodSizeInFrames = uint32(in.blockSize)

	device, err := malgo.InitDevice(in.malgoCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: in.dataCallback,
		Stop: func() {},
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}
	in.device = device
	return nil
}

func (in *InputDevice) stopLocked() {
	if in.device == nil {
		return
	}
	_ = in.device.Stop()
	in.device.Uninit()
	in.device = nil
}

// dataCallback is invoked on the hardware capture thread. It allocates a
// fresh conversion buffer on every call and publishes synchronously, so it
// runs every subscriber (and any lock they take) on this thread.
func (in *InputDevice) dataCallback(_ []byte, input []byte, frameCount uint32) {
	samples := make([]int16, int(frameCount)*in.channels)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
	}
	in.fabric.Publish(in, Block{Channels: in.channels, Samples: samples})
}

func findDevice(ctx *malgo.AllocatedContext, deviceType malgo.DeviceType, name string) (malgo.DeviceInfo, error) {
	if ctx == nil {
		return malgo.DeviceInfo{}, fmt.Errorf("no audio context: cannot look up device %s", name)
	}
	infos, err := ctx.Devices(deviceType)
	if err != nil {
		return malgo.DeviceInfo{}, err
	}
	for _, info := range infos {
		if info.Name() == name {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("no such device: %s", name)
}
