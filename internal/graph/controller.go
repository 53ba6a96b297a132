package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/arung-agamani/denpa-studio/internal/audio"
	"github.com/arung-agamani/denpa-studio/internal/auth"
)

// Controller owns the four entity registries and the persisted-topology
// round trip described in SPEC_FULL.md §12. It is the package boundary a
// REST/WS layer would bind to.
type Controller struct {
	blockSize  int
	sampleRate int
	malgoCtx   *malgo.AllocatedContext

	inputs      *inputRegistry
	outputs     *outputRegistry
	mixers      *mixerRegistry
	livePlayers *livePlayerRegistry

	store         *store
	trackResolver TrackResolver
	verifier      *auth.Verifier
}

// Options configures a new Controller.
type Options struct {
	BlockSize     int
	SampleRate    int
	MalgoCtx      *malgo.AllocatedContext
	StorePath     string // empty disables persistence
	TrackResolver TrackResolver
	OperatorToken string // empty disables the auth gate
}

// NewController constructs a Controller. If opts.StorePath is non-empty, the
// sqlite-backed store is opened (and created if absent) but Restore must be
// called separately to replay any persisted topology.
func NewController(opts Options) (*Controller, error) {
	verifier, err := auth.NewVerifier(opts.OperatorToken)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		blockSize:     opts.BlockSize,
		sampleRate:    opts.SampleRate,
		malgoCtx:      opts.MalgoCtx,
		inputs:        newInputRegistry(),
		outputs:       newOutputRegistry(),
		mixers:        newMixerRegistry(),
		livePlayers:   newLivePlayerRegistry(),
		trackResolver: opts.TrackResolver,
		verifier:      verifier,
	}

	if opts.StorePath != "" {
		s, err := openStore(opts.StorePath)
		if err != nil {
			return nil, err
		}
		c.store = s
	}
	return c, nil
}

// Close releases the persistence store, if one is open.
func (c *Controller) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.close()
}

// Authorize verifies token against the configured operator secret. Every
// mutating Controller entry point (Add*/Delete*/Set*) is expected to be gated by
// a caller-side Authorize check; the Controller itself does not enforce it
// on every call so that an embedding REST layer can choose where the gate
// sits (e.g. once per HTTP handler instead of per registry method).
func (c *Controller) Authorize(token string) error {
	return c.verifier.Verify(token)
}

// resolveInput finishes the Python original's unfinished
// "# TODO: Add a playlist source lookup" (audio_manager/input.py): a
// caller-facing ID may name a device Input, a Mixer (itself a valid PCM
// producer), or a LivePlayer, in that order.
func (c *Controller) resolveInput(id string) (audio.Producer, error) {
	c.inputs.mu.Lock()
	if in, ok := c.inputs.byID[id]; ok {
		c.inputs.mu.Unlock()
		return in.Producer(), nil
	}
	c.inputs.mu.Unlock()

	c.mixers.mu.Lock()
	if mx, ok := c.mixers.byID[id]; ok {
		c.mixers.mu.Unlock()
		return mx.Producer(), nil
	}
	c.mixers.mu.Unlock()

	c.livePlayers.mu.Lock()
	if lp, ok := c.livePlayers.byID[id]; ok {
		c.livePlayers.mu.Unlock()
		return lp.Producer(), nil
	}
	c.livePlayers.mu.Unlock()

	return nil, newError(KindDeviceNotFound, "no input, mixer or live player with id %s", id)
}

// Restore replays every persisted row into live nodes, in the exact order
// audio_manager/output.py's own restore() sequencing implies: Inputs, then
// LivePlayers, then Outputs (device rows before icecast/multiplex rows,
// since a multiplex row references a parent device row), then Mixers with
// their channels. A second pass re-binds every Output's input, since a
// Mixer or LivePlayer producer may not have existed yet during the first
// Outputs pass.
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	if err := c.restoreInputs(); err != nil {
		return err
	}
	if err := c.restoreLivePlayers(ctx); err != nil {
		return err
	}
	if err := c.restoreOutputs(); err != nil {
		return err
	}
	if err := c.restoreMixers(); err != nil {
		return err
	}
	return c.rebindOutputInputs()
}

func (c *Controller) restoreInputs() error {
	rows, err := c.store.loadInputs()
	if err != nil {
		return err
	}
	for _, r := range rows {
		dev := audio.NewInputDevice(c.malgoCtx, r.Params.DeviceName, c.blockSize, r.Params.Channels, r.Params.SampleRate)
		in := &Input{ID: r.ID, DisplayName: r.DisplayName, Kind: InputKind(r.Kind), DeviceName: r.Params.DeviceName, device: dev}
		c.inputs.mu.Lock()
		c.inputs.byID[in.ID] = in
		c.inputs.mu.Unlock()
	}
	return nil
}

func (c *Controller) restoreLivePlayers(ctx context.Context) error {
	rows, err := c.store.loadLivePlayers()
	if err != nil {
		return err
	}
	for _, r := range rows {
		tracks, err := c.store.loadLivePlayerTracks(r.ID)
		if err != nil {
			return err
		}
		lp := &LivePlayer{
			ID:               r.ID,
			DisplayName:      r.DisplayName,
			deck:             audio.NewDeck(c.blockSize),
			resolver:         c.trackResolver,
			tracks:           tracks,
			jinglePlaylistID: r.JinglePlaylistID,
			jingleCount:      r.JingleCount,
			jinglePlays:      r.JinglePlays,
		}
		lp.persistTracks = func(tracks []TrackEntry) error { return c.store.saveLivePlayerTracks(lp.ID, tracks) }
		lp.deck.SetNextTrackCallback(func() { lp.advance(ctx) })

		c.livePlayers.mu.Lock()
		c.livePlayers.byID[lp.ID] = lp
		c.livePlayers.mu.Unlock()

		// tracks is already ordered by idx (loadLivePlayerTracks), so its
		// head is definitionally the persisted current track: the draining
		// queue model needs no separate position column to restore to.
		if r.State == "playing" && len(tracks) > 0 {
			if err := lp.loadHead(ctx, false); err != nil {
				return fmt.Errorf("restore live player %s: %w", r.ID, err)
			}
			lp.mu.Lock()
			lp.playing = true
			lp.mu.Unlock()
		}
	}
	return nil
}

func (c *Controller) restoreOutputs() error {
	rows, err := c.store.loadOutputs()
	if err != nil {
		return err
	}

	// device rows first: a multiplex row's parent must already be registered.
	for _, kind := range []OutputKind{OutputKindDevice, OutputKindIcecast, OutputKindFile, OutputKindBrowserStream, OutputKindMultiplex} {
		for _, r := range rows {
			if OutputKind(r.Kind) != kind {
				continue
			}
			if err := c.restoreOutputRow(r); err != nil {
				return fmt.Errorf("restore output %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

func (c *Controller) restoreOutputRow(r outputRow) error {
	switch OutputKind(r.Kind) {
	case OutputKindDevice:
		dev := audio.NewOutputDevice(c.malgoCtx, r.Params.DeviceName, c.blockSize, r.Params.Channels, r.Params.SampleRate)
		out := &Output{
			ID: r.ID, DisplayName: r.DisplayName, Kind: OutputKindDevice, InputID: r.InputID,
			sink: dev, deviceName: r.Params.DeviceName, channels: r.Params.Channels, sampleRate: r.Params.SampleRate,
		}
		c.outputs.mu.Lock()
		c.outputs.byID[out.ID] = out
		c.outputs.mu.Unlock()
	case OutputKindIcecast:
		meta := audio.IceMetadata{Name: r.Params.MetaName, Description: r.Params.MetaDesc, Genre: r.Params.MetaGenre, Public: r.Params.MetaPublic}
		ic := audio.NewIcecast(c.sampleRate, r.Params.Quality, r.Params.BitrateKbps, meta)
		if _, err := ic.Connect(r.Params.Endpoint, r.Params.Password); err != nil {
			return err
		}
		out := &Output{
			ID: r.ID, DisplayName: r.DisplayName, Kind: OutputKindIcecast, InputID: r.InputID,
			sink: ic, endpoint: r.Params.Endpoint, password: r.Params.Password,
			quality: r.Params.Quality, bitrateKbps: r.Params.BitrateKbps, meta: meta,
		}
		c.outputs.mu.Lock()
		c.outputs.byID[out.ID] = out
		c.outputs.mu.Unlock()
	case OutputKindFile:
		rollInterval := secondsToDuration(r.Params.RollSeconds)
		rf := audio.NewRollingFile(c.sampleRate, r.Params.Quality, r.Params.BitrateKbps, r.Params.BasePath, rollInterval)
		out := &Output{
			ID: r.ID, DisplayName: r.DisplayName, Kind: OutputKindFile, InputID: r.InputID,
			sink: rf, basePath: r.Params.BasePath, quality: r.Params.Quality,
			bitrateKbps: r.Params.BitrateKbps, rollInterval: rollInterval,
		}
		c.outputs.mu.Lock()
		c.outputs.byID[out.ID] = out
		c.outputs.mu.Unlock()
	case OutputKindBrowserStream:
		enc := audio.NewMp3Encoder(c.sampleRate, r.Params.Quality, r.Params.BitrateKbps)
		out := &Output{
			ID: r.ID, DisplayName: r.DisplayName, Kind: OutputKindBrowserStream, InputID: r.InputID,
			sink: &browserStreamSink{encoder: enc}, quality: r.Params.Quality, bitrateKbps: r.Params.BitrateKbps,
		}
		c.outputs.mu.Lock()
		c.outputs.byID[out.ID] = out
		c.outputs.mu.Unlock()
	case OutputKindMultiplex:
		c.outputs.mu.Lock()
		parent, ok := c.outputs.byID[r.Params.ParentID]
		if !ok {
			c.outputs.mu.Unlock()
			return newError(KindNotAnOutput, "multiplex parent %s missing", r.Params.ParentID)
		}
		parentDev := parent.sink.(*audio.OutputDevice)
		mx, exists := c.outputs.sharedMultiplex[r.Params.ParentID]
		if !exists {
			mx = audio.NewMultiplex(c.blockSize, parentDev.Channels())
			c.outputs.sharedMultiplex[r.Params.ParentID] = mx
		}
		c.outputs.mu.Unlock()
		if !exists {
			if err := parentDev.SetInput(mx); err != nil {
				return err
			}
		}
		out := &Output{
			ID: r.ID, DisplayName: r.DisplayName, Kind: OutputKindMultiplex, InputID: r.InputID,
			sink:       &multiplexOutput{parent: parentDev, mx: mx, channels: r.Params.MxChannels, offset: r.Params.Offset},
			parentID:   r.Params.ParentID,
			offset:     r.Params.Offset,
			mxChannels: r.Params.MxChannels,
		}
		c.outputs.mu.Lock()
		c.outputs.byID[out.ID] = out
		c.outputs.multiplexRefs[r.Params.ParentID]++
		c.outputs.mu.Unlock()
	}
	return nil
}

func (c *Controller) restoreMixers() error {
	mixerRows, err := c.store.loadMixers()
	if err != nil {
		return err
	}
	for _, r := range mixerRows {
		mx := &Mixer{ID: r.ID, DisplayName: r.DisplayName, OutputChannels: r.OutputChannels,
			node: audio.NewMixer(c.blockSize, r.OutputChannels), channels: make(map[string]*MixerChannel)}
		c.mixers.mu.Lock()
		c.mixers.byID[mx.ID] = mx
		c.mixers.mu.Unlock()
	}

	channelRows, err := c.store.loadMixerChannels()
	if err != nil {
		return err
	}
	for _, r := range channelRows {
		c.mixers.mu.Lock()
		mx, ok := c.mixers.byID[r.MixerID]
		c.mixers.mu.Unlock()
		if !ok {
			continue
		}
		producer, err := c.resolveInput(r.ProducerID)
		if err != nil {
			return fmt.Errorf("restore mixer channel %s: %w", r.ID, err)
		}
		if err := mx.node.AddInput(producer); err != nil {
			return err
		}
		if err := mx.node.SetVolume(producer, r.Volume); err != nil {
			return err
		}
		ch := &MixerChannel{ID: r.ID, MixerID: r.MixerID, ProducerID: r.ProducerID, Volume: r.Volume, producer: producer}
		c.mixers.mu.Lock()
		mx.channels[ch.ID] = ch
		c.mixers.mu.Unlock()
	}
	return nil
}

func (c *Controller) rebindOutputInputs() error {
	c.outputs.mu.Lock()
	pending := make([]*Output, 0, len(c.outputs.byID))
	for _, out := range c.outputs.byID {
		if out.InputID != "" {
			pending = append(pending, out)
		}
	}
	c.outputs.mu.Unlock()

	for _, out := range pending {
		producer, err := c.resolveInput(out.InputID)
		if err != nil {
			return fmt.Errorf("rebind output %s: %w", out.ID, err)
		}
		if err := out.sink.SetInput(producer); err != nil {
			return fmt.Errorf("rebind output %s: %w", out.ID, err)
		}
	}
	return nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
