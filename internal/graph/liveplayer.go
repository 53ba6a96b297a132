package graph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/arung-agamani/denpa-studio/internal/audio"
	"github.com/arung-agamani/denpa-studio/internal/track"
)

// TrackMode controls how a LivePlayer advances when the current track
// reaches end-of-track, matching the three advance behaviors implied by
// original_source/audio_manager/live_player.py's jingle/track interleaving.
type TrackMode string

const (
	// TrackModePlayNext loads and plays the next entry immediately.
	TrackModePlayNext TrackMode = "play_next"
	// TrackModePauseAfter reloads the entry that just finished with the deck
	// paused, without draining or advancing the queue.
	TrackModePauseAfter TrackMode = "pause_after"
	// TrackModeLoop reloads and replays the same entry.
	TrackModeLoop TrackMode = "loop"
)

// TrackEntry is one opaque track reference in a LivePlayer's ordered list.
type TrackEntry struct {
	TrackID string
	Mode    TrackMode
}

// TrackResolver resolves an opaque track ID to a filesystem path. The
// library/database lookup behind it is out of scope for this core (spec.md
// §1); the core only needs a path to hand to audio.OpenFile.
type TrackResolver func(trackID string) (path string, err error)

// LivePlayer wraps a Deck with a persisted ordered track list and resolves
// each entry's TrackID to a path through an injected TrackResolver, finishing
// the sequencing logic that original_source/audio_manager/live_player.py
// otherwise composes with a filesystem crawler this repository doesn't build.
//
// The track list is a draining queue, not a static list with a moving
// pointer: the current track is always tracks[0]
// (original_source/library/live_player.py::current_track orders by index
// and takes the first row), and a play_next advance removes it outright
// (audio_manager/live_player.py::_track_finished + library's remove_track),
// shifting every following entry's persisted index down by one. There is
// deliberately no separate position field — persisted row order at index 0
// is the position.
type LivePlayer struct {
	ID          string
	DisplayName string

	deck     *audio.Deck
	resolver TrackResolver
	// persistTracks, when non-nil, rewrites the live_player_track rows to
	// match tracks after a play_next advance drains the head, so a restart
	// restores to the correct head instead of replaying consumed entries.
	persistTracks func(tracks []TrackEntry) error

	mu      sync.Mutex
	tracks  []TrackEntry
	loaded  bool
	playing bool

	// Jingle fields round-trip through persistence for parity with
	// spec.md §6's live_player schema, but nothing consumes them yet:
	// original_source/audio_manager/live_player.py's own advance handler
	// leaves jingle interleaving as "# TODO: Handle jingle playing", and
	// this port carries that gap forward rather than inventing behavior
	// the original never specified.
	jinglePlaylistID string
	jingleCount      int
	jinglePlays      int
}

// SetLivePlayerJingle configures (but does not yet play) jingle interleaving
// parameters: jinglePlaylistID is an opaque reference to a jingle source,
// count is how many jingles to play per break, and it persists across
// restarts like every other LivePlayer field.
func (c *Controller) SetLivePlayerJingle(id, jinglePlaylistID string, count int) error {
	lp, err := c.GetLivePlayer(id)
	if err != nil {
		return err
	}
	lp.mu.Lock()
	lp.jinglePlaylistID = jinglePlaylistID
	lp.jingleCount = count
	lp.mu.Unlock()

	if c.store != nil {
		return c.store.saveLivePlayer(lp)
	}
	return nil
}

// Producer returns the underlying PCM producer.
func (lp *LivePlayer) Producer() audio.Producer { return lp.deck }

type livePlayerRegistry struct {
	mu   sync.Mutex
	byID map[string]*LivePlayer
}

func newLivePlayerRegistry() *livePlayerRegistry {
	return &livePlayerRegistry{byID: make(map[string]*LivePlayer)}
}

// AddLivePlayer creates an empty LivePlayer. Tracks are appended with
// SetLivePlayerTracks before playback starts.
func (c *Controller) AddLivePlayer(displayName string) (*LivePlayer, error) {
	lp := &LivePlayer{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		deck:        audio.NewDeck(c.blockSize),
		resolver:    c.trackResolver,
	}
	if c.store != nil {
		lp.persistTracks = func(tracks []TrackEntry) error { return c.store.saveLivePlayerTracks(lp.ID, tracks) }
	}
	lp.deck.SetNextTrackCallback(func() { lp.advance(context.Background()) })

	c.livePlayers.mu.Lock()
	c.livePlayers.byID[lp.ID] = lp
	c.livePlayers.mu.Unlock()

	if c.store != nil {
		if err := c.store.saveLivePlayer(lp); err != nil {
			c.livePlayers.mu.Lock()
			delete(c.livePlayers.byID, lp.ID)
			c.livePlayers.mu.Unlock()
			return nil, err
		}
	}
	return lp, nil
}

// GetLivePlayer looks up a LivePlayer by ID.
func (c *Controller) GetLivePlayer(id string) (*LivePlayer, error) {
	c.livePlayers.mu.Lock()
	defer c.livePlayers.mu.Unlock()
	lp, ok := c.livePlayers.byID[id]
	if !ok {
		return nil, newError(KindDeviceNotFound, "live player %s not found", id)
	}
	return lp, nil
}

// ListLivePlayers returns every registered LivePlayer.
func (c *Controller) ListLivePlayers() []*LivePlayer {
	c.livePlayers.mu.Lock()
	defer c.livePlayers.mu.Unlock()
	out := make([]*LivePlayer, 0, len(c.livePlayers.byID))
	for _, lp := range c.livePlayers.byID {
		out = append(out, lp)
	}
	return out
}

// SetLivePlayerTracks replaces the LivePlayer's track list.
func (c *Controller) SetLivePlayerTracks(id string, tracks []TrackEntry) error {
	lp, err := c.GetLivePlayer(id)
	if err != nil {
		return err
	}
	lp.mu.Lock()
	lp.tracks = append([]TrackEntry(nil), tracks...)
	lp.loaded = false
	lp.mu.Unlock()

	if c.store != nil {
		return c.store.saveLivePlayerTracks(id, tracks)
	}
	return nil
}

// PlayLivePlayer starts (or resumes) playback from the current position,
// loading the first track if none is loaded yet.
func (c *Controller) PlayLivePlayer(ctx context.Context, id string) error {
	lp, err := c.GetLivePlayer(id)
	if err != nil {
		return err
	}
	lp.mu.Lock()
	needsLoad := !lp.loaded && len(lp.tracks) > 0
	lp.playing = true
	lp.mu.Unlock()

	if needsLoad {
		if err := lp.loadHead(ctx, false); err != nil {
			return err
		}
	}
	return lp.deck.Play()
}

// PauseLivePlayer pauses the LivePlayer's deck, retaining position.
func (c *Controller) PauseLivePlayer(id string) error {
	lp, err := c.GetLivePlayer(id)
	if err != nil {
		return err
	}
	lp.mu.Lock()
	lp.playing = false
	lp.mu.Unlock()
	lp.deck.Pause()
	return nil
}

// loadHead opens the entry at the head of the queue (tracks[0]) on the
// deck, applying startPaused per the caller's request (used by PauseAfter
// advance). It is a no-op if the queue is empty.
func (lp *LivePlayer) loadHead(ctx context.Context, startPaused bool) error {
	lp.mu.Lock()
	if len(lp.tracks) == 0 {
		lp.loaded = false
		lp.mu.Unlock()
		return nil
	}
	entry := lp.tracks[0]
	resolver := lp.resolver
	lp.loaded = true
	lp.mu.Unlock()

	if startPaused {
		lp.deck.Pause()
	}

	path, err := resolver(entry.TrackID)
	if err != nil {
		return newError(KindDecodeFailed, "resolve track %s: %w", entry.TrackID, err)
	}
	if meta, err := track.Probe(path); err == nil && meta.Title != "" {
		slog.Info("live player advancing", "live_player", lp.ID, "title", meta.Title, "artist", meta.Artist)
	}
	if err := lp.deck.SetFile(ctx, path); err != nil {
		return newError(KindDecodeFailed, "open track %s: %w", entry.TrackID, err)
	}
	return nil
}

// advance runs on the deck's end-of-track callback and implements the
// PlayNext/PauseAfter/Loop modes described in SPEC_FULL.md §12, matching
// original_source/audio_manager/live_player.py::_track_finished:
//   - loop reloads the same head entry.
//   - play_next drains the head entirely (library/live_player.py's
//     remove_track) and loads the new head, or stops if the queue is now
//     empty — it never wraps back around to replay a consumed entry.
//   - pause_after (the original's bare else branch) pauses on the entry
//     that just finished, without draining or advancing. The Deck itself
//     discards its finished file on end-of-track (Deck.onEndOfTrack), so
//     reaching a paused, resumable state means reloading the same head
//     with startPaused rather than merely calling Deck.Pause on a nil file.
func (lp *LivePlayer) advance(ctx context.Context) {
	lp.mu.Lock()
	if len(lp.tracks) == 0 {
		lp.mu.Unlock()
		return
	}
	mode := lp.tracks[0].Mode
	lp.mu.Unlock()

	switch mode {
	case TrackModeLoop:
		_ = lp.loadHead(ctx, false)
	case TrackModePauseAfter:
		lp.mu.Lock()
		lp.playing = false
		lp.mu.Unlock()
		_ = lp.loadHead(ctx, true)
	default: // TrackModePlayNext
		lp.mu.Lock()
		lp.tracks = lp.tracks[1:]
		remaining := append([]TrackEntry(nil), lp.tracks...)
		persist := lp.persistTracks
		empty := len(lp.tracks) == 0
		lp.mu.Unlock()

		if persist != nil {
			if err := persist(remaining); err != nil {
				slog.Error("live player persist drained queue", "live_player", lp.ID, "error", err)
			}
		}
		if empty {
			lp.mu.Lock()
			lp.playing = false
			lp.mu.Unlock()
			return
		}
		_ = lp.loadHead(ctx, false)
	}
}
