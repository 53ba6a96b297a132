package audio

import (
	"context"
	"sync"
)

// Deck manages a single File at a time and forwards its PCM to the Deck's
// own subscribers (spec.md §4.11, named "Playlist" there — renamed here to
// avoid colliding with the original service's own track-library
// "playlist" concept). On the current file's end-of-track, Deck invokes a
// user-supplied next-track callback, which is expected to call SetFile
// again to continue.
type Deck struct {
	Fabric

	blockSize int

	mu       sync.Mutex
	file     *File
	subID    SubscriptionID
	paused   bool
	nextFile func()
}

// NewDeck creates an empty Deck. frames_per_block is the process-wide
// BLOCK_SIZE.
func NewDeck(blockSize int) *Deck {
	return &Deck{blockSize: blockSize}
}

// Channels reports the current file's channel count, or 2 if no file is
// loaded (matching the original's stereo default for an empty deck).
func (d *Deck) Channels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return 2
	}
	return d.file.channels
}

// SetNextTrackCallback installs the callback invoked when the current file
// reaches end-of-track.
func (d *Deck) SetNextTrackCallback(cb func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextFile = cb
}

// SetFile stops the current file (if any), opens path as the new current
// file, subscribes to its PCM output, and starts it unless the Deck is
// currently paused.
func (d *Deck) SetFile(ctx context.Context, path string) error {
	f, err := OpenFile(ctx, path, d.blockSize)
	if err != nil {
		return err
	}

	d.mu.Lock()
	prev := d.file
	prevSubID := d.subID
	paused := d.paused
	d.mu.Unlock()

	if prev != nil {
		prev.Stop()
		prev.RemoveSubscriber(prevSubID)
	}

	subID := f.AddSubscriber(d.forward)
	f.SetEndCallback(d.onEndOfTrack)

	d.mu.Lock()
	d.file = f
	d.subID = subID
	d.mu.Unlock()

	if !paused {
		return f.Play()
	}
	return nil
}

func (d *Deck) forward(_ Producer, block Block) {
	d.Publish(d, block)
}

func (d *Deck) onEndOfTrack() {
	d.mu.Lock()
	d.file = nil
	cb := d.nextFile
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Play resumes the current file, if any.
func (d *Deck) Play() error {
	d.mu.Lock()
	d.paused = false
	f := d.file
	d.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Play()
}

// Pause stops the current file but retains it for a later Play, and marks
// the Deck so a subsequent SetFile will not auto-start.
func (d *Deck) Pause() {
	d.mu.Lock()
	d.paused = true
	f := d.file
	d.mu.Unlock()
	if f != nil {
		f.Pause()
	}
}

// Stop stops and rewinds the current file, if any.
func (d *Deck) Stop() {
	d.mu.Lock()
	f := d.file
	d.mu.Unlock()
	if f != nil {
		f.Stop()
	}
}

// CurrentTime returns the current file's playback position in seconds, or
// 0 if no file is loaded.
func (d *Deck) CurrentTime() float64 {
	d.mu.Lock()
	f := d.file
	d.mu.Unlock()
	if f == nil {
		return 0
	}
	return f.Time()
}
