package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arung-agamani/denpa-studio/internal/audio"
)

// OutputKind distinguishes the persisted "type" column of the output table.
type OutputKind string

const (
	OutputKindDevice        OutputKind = "device"
	OutputKindIcecast       OutputKind = "icecast"
	OutputKindFile          OutputKind = "file"
	OutputKindMultiplex     OutputKind = "multiplex"
	OutputKindBrowserStream OutputKind = "browser_stream"
)

// Output is a registry entry wrapping one of the sink node kinds, matching
// original_source/audio_manager/output.py's Output/MultiplexedOutput split.
// Alongside the live sink it retains the construction parameters needed to
// rebuild that sink on restore — the underlying audio types (OutputDevice,
// Icecast, RollingFile) don't expose getters for their own config.
type Output struct {
	ID          string
	DisplayName string
	Kind        OutputKind
	InputID     string // opaque reference resolved via Controller.resolveInput

	sink sink

	// device fields, set when Kind == OutputKindDevice
	deviceName string
	channels   int
	sampleRate int

	// icecast fields, set when Kind == OutputKindIcecast
	endpoint    string
	password    string
	quality     int
	bitrateKbps int
	meta        audio.IceMetadata

	// file fields, set when Kind == OutputKindFile
	basePath     string
	rollInterval time.Duration

	// multiplex fields, set when Kind == OutputKindMultiplex
	parentID   string
	offset     int
	mxChannels int
}

func (o *Output) Input() audio.Producer { return o.sink.Input() }

// Encoder returns the underlying Mp3Encoder for a browser-stream Output, so
// a future WebSocket handler can subscribe to its live MP3 byte stream. It
// is nil for every other Output kind.
func (o *Output) Encoder() *audio.Mp3Encoder {
	if bs, ok := o.sink.(*browserStreamSink); ok {
		return bs.encoder
	}
	return nil
}

type outputRegistry struct {
	mu   sync.Mutex
	byID map[string]*Output

	// sharedMultiplex maps a parent device Output ID to the Multiplex
	// instance every multiplexOutput on that device shares, and to a
	// reference count of how many multiplexOutputs still use it.
	sharedMultiplex map[string]*audio.Multiplex
	multiplexRefs   map[string]int
}

func newOutputRegistry() *outputRegistry {
	return &outputRegistry{
		byID:            make(map[string]*Output),
		sharedMultiplex: make(map[string]*audio.Multiplex),
		multiplexRefs:   make(map[string]int),
	}
}

// AddDeviceOutput creates a playback-device Output (spec.md §4.4).
func (c *Controller) AddDeviceOutput(displayName, deviceName string, channels, sampleRate int) (*Output, error) {
	dev := audio.NewOutputDevice(c.malgoCtx, deviceName, c.blockSize, channels, sampleRate)
	out := &Output{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Kind:        OutputKindDevice,
		sink:        dev,
		deviceName:  deviceName,
		channels:    channels,
		sampleRate:  sampleRate,
	}
	return c.registerOutput(out)
}

// AddIcecastOutput creates an Icecast source Output (spec.md §4.9).
func (c *Controller) AddIcecastOutput(displayName, endpoint, password string, quality, bitrateKbps int, meta audio.IceMetadata) (*Output, error) {
	ic := audio.NewIcecast(c.sampleRate, quality, bitrateKbps, meta)
	out := &Output{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Kind:        OutputKindIcecast,
		sink:        ic,
		endpoint:    endpoint,
		password:    password,
		quality:     quality,
		bitrateKbps: bitrateKbps,
		meta:        meta,
	}
	ok, err := ic.Connect(endpoint, password)
	if err != nil {
		return nil, newError(KindConnectFailed, "icecast connect: %w", err)
	}
	if !ok {
		return nil, newError(KindConnectFailed, "icecast refused connection to %s", endpoint)
	}
	return c.registerOutput(out)
}

// AddFileOutput creates a rolling-file Output (spec.md §4.10).
func (c *Controller) AddFileOutput(displayName, basePath string, quality, bitrateKbps int, rollInterval time.Duration) (*Output, error) {
	rf := audio.NewRollingFile(c.sampleRate, quality, bitrateKbps, basePath, rollInterval)
	out := &Output{
		ID:           uuid.NewString(),
		DisplayName:  displayName,
		Kind:         OutputKindFile,
		sink:         rf,
		basePath:     basePath,
		quality:      quality,
		bitrateKbps:  bitrateKbps,
		rollInterval: rollInterval,
	}
	return c.registerOutput(out)
}

// AddBrowserStreamOutput creates a live MP3-encoded Output with no write
// destination of its own (spec.md §1's "browser stream" consumer of the MP3
// encoder node); a future WebSocket handler reads its encoded bytes via
// Output.Encoder().
func (c *Controller) AddBrowserStreamOutput(displayName string, quality, bitrateKbps int) (*Output, error) {
	enc := audio.NewMp3Encoder(c.sampleRate, quality, bitrateKbps)
	out := &Output{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Kind:        OutputKindBrowserStream,
		sink:        &browserStreamSink{encoder: enc},
		quality:     quality,
		bitrateKbps: bitrateKbps,
	}
	return c.registerOutput(out)
}

// AddMultiplexOutput carves out a [offset, offset+channels) slice of
// parentID's device Output as an independently addressable Output, lazily
// creating the shared Multiplex the first time any slice is requested
// (mirrors audio_manager/output.py's MultiplexedOutput/parent relationship).
func (c *Controller) AddMultiplexOutput(displayName, parentID string, offset, channels int) (*Output, error) {
	c.outputs.mu.Lock()
	parent, ok := c.outputs.byID[parentID]
	if !ok || parent.Kind != OutputKindDevice {
		c.outputs.mu.Unlock()
		return nil, newError(KindNotAnOutput, "parent %s is not a device output", parentID)
	}
	parentDev := parent.sink.(*audio.OutputDevice)

	mx, exists := c.outputs.sharedMultiplex[parentID]
	if !exists {
		mx = audio.NewMultiplex(c.blockSize, parentDev.Channels())
		c.outputs.sharedMultiplex[parentID] = mx
	}
	c.outputs.mu.Unlock()

	if !exists {
		if err := parentDev.SetInput(mx); err != nil {
			return nil, err
		}
	}

	out := &Output{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Kind:        OutputKindMultiplex,
		sink:        &multiplexOutput{parent: parentDev, mx: mx, channels: channels, offset: offset},
		parentID:    parentID,
		offset:      offset,
		mxChannels:  channels,
	}
	c.outputs.mu.Lock()
	c.outputs.multiplexRefs[parentID]++
	c.outputs.mu.Unlock()

	return c.registerOutput(out)
}

func (c *Controller) registerOutput(out *Output) (*Output, error) {
	c.outputs.mu.Lock()
	c.outputs.byID[out.ID] = out
	c.outputs.mu.Unlock()

	if c.store != nil {
		if err := c.store.saveOutput(out); err != nil {
			c.outputs.mu.Lock()
			delete(c.outputs.byID, out.ID)
			c.outputs.mu.Unlock()
			return nil, err
		}
	}
	return out, nil
}

// GetOutput looks up an Output by ID.
func (c *Controller) GetOutput(id string) (*Output, error) {
	c.outputs.mu.Lock()
	defer c.outputs.mu.Unlock()
	out, ok := c.outputs.byID[id]
	if !ok {
		return nil, newError(KindDeviceNotFound, "output %s not found", id)
	}
	return out, nil
}

// ListOutputs returns every registered Output.
func (c *Controller) ListOutputs() []*Output {
	c.outputs.mu.Lock()
	defer c.outputs.mu.Unlock()
	out := make([]*Output, 0, len(c.outputs.byID))
	for _, o := range c.outputs.byID {
		out = append(out, o)
	}
	return out
}

// SetOutputInput attaches producerID (resolved via resolveInput) as the
// Output's PCM source, persisting the new input_id on success.
func (c *Controller) SetOutputInput(outputID, producerID string) error {
	out, err := c.GetOutput(outputID)
	if err != nil {
		return err
	}
	producer, err := c.resolveInput(producerID)
	if err != nil {
		return err
	}
	if err := out.sink.SetInput(producer); err != nil {
		return err
	}
	out.InputID = producerID
	if c.store != nil {
		return c.store.saveOutput(out)
	}
	return nil
}

// DeleteOutput removes an Output, refusing if it still has an attached
// input (ported from InUseException in audio_manager/output.py). Deleting
// the last multiplex slice on a shared parent device tears the Multiplex
// down and detaches it from the parent.
func (c *Controller) DeleteOutput(id string) error {
	out, err := c.GetOutput(id)
	if err != nil {
		return err
	}
	if out.Input() != nil {
		return newError(KindInUse, "output %s is in use", id)
	}

	c.outputs.mu.Lock()
	delete(c.outputs.byID, id)
	if out.Kind == OutputKindMultiplex {
		c.outputs.multiplexRefs[out.parentID]--
		if c.outputs.multiplexRefs[out.parentID] <= 0 {
			mx := c.outputs.sharedMultiplex[out.parentID]
			parent := c.outputs.byID[out.parentID]
			delete(c.outputs.sharedMultiplex, out.parentID)
			delete(c.outputs.multiplexRefs, out.parentID)
			c.outputs.mu.Unlock()
			if parent != nil && mx != nil {
				_ = parent.sink.SetInput(nil)
			}
		} else {
			c.outputs.mu.Unlock()
		}
	} else {
		c.outputs.mu.Unlock()
	}

	if c.store != nil {
		return c.store.deleteOutput(id)
	}
	return nil
}
