package graph

import (
	"sync"

	"github.com/google/uuid"

	"github.com/arung-agamani/denpa-studio/internal/audio"
)

// InputKind distinguishes the persisted "type" column of the input table.
type InputKind string

const (
	InputKindDevice InputKind = "device"
)

// Input is a registry entry wrapping a hardware capture device, matching
// original_source/audio_manager/input.py's Input dataclass.
type Input struct {
	ID          string
	DisplayName string
	Kind        InputKind
	DeviceName  string

	device *audio.InputDevice
}

// Producer returns the underlying PCM producer.
func (in *Input) Producer() audio.Producer { return in.device }

// inputRegistry is the mutex-protected Inputs collection (instance-scoped,
// unlike the Python original's class-level registry).
type inputRegistry struct {
	mu   sync.Mutex
	byID map[string]*Input
}

func newInputRegistry() *inputRegistry {
	return &inputRegistry{byID: make(map[string]*Input)}
}

// AddInput creates and registers a device Input (spec.md §4.3/§6).
func (c *Controller) AddInput(displayName, deviceName string, channels, sampleRate int) (*Input, error) {
	dev := audio.NewInputDevice(c.malgoCtx, deviceName, c.blockSize, channels, sampleRate)
	in := &Input{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Kind:        InputKindDevice,
		DeviceName:  deviceName,
		device:      dev,
	}

	c.inputs.mu.Lock()
	c.inputs.byID[in.ID] = in
	c.inputs.mu.Unlock()

	if c.store != nil {
		if err := c.store.saveInput(in); err != nil {
			c.inputs.mu.Lock()
			delete(c.inputs.byID, in.ID)
			c.inputs.mu.Unlock()
			return nil, err
		}
	}
	return in, nil
}

// GetInput looks up an Input by ID.
func (c *Controller) GetInput(id string) (*Input, error) {
	c.inputs.mu.Lock()
	defer c.inputs.mu.Unlock()
	in, ok := c.inputs.byID[id]
	if !ok {
		return nil, newError(KindDeviceNotFound, "input %s not found", id)
	}
	return in, nil
}

// ListInputs returns every registered Input.
func (c *Controller) ListInputs() []*Input {
	c.inputs.mu.Lock()
	defer c.inputs.mu.Unlock()
	out := make([]*Input, 0, len(c.inputs.byID))
	for _, in := range c.inputs.byID {
		out = append(out, in)
	}
	return out
}

// DeleteInput removes an Input, refusing if it still has subscribers
// (ported from InUseException in audio_manager/input.py).
func (c *Controller) DeleteInput(id string) error {
	c.inputs.mu.Lock()
	in, ok := c.inputs.byID[id]
	c.inputs.mu.Unlock()
	if !ok {
		return newError(KindDeviceNotFound, "input %s not found", id)
	}
	if in.device.HasSubscribers() {
		return newError(KindInUse, "input %s is in use", id)
	}

	c.inputs.mu.Lock()
	delete(c.inputs.byID, id)
	c.inputs.mu.Unlock()

	if c.store != nil {
		if err := c.store.deleteInput(id); err != nil {
			return err
		}
	}
	return nil
}
