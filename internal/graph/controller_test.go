package graph

import (
	"context"
	"path/filepath"
	"testing"
)

func TestResolveInputChecksInputsThenMixersThenLivePlayers(t *testing.T) {
	c := newTestController(t)
	in, _ := c.AddInput("mic", "default", 2, 48000)
	mx, _ := c.AddMixer("main", 2)
	lp, _ := c.AddLivePlayer("show")

	if p, err := c.resolveInput(in.ID); err != nil || p != in.Producer() {
		t.Fatalf("resolveInput(input id) = %v, %v", p, err)
	}
	if p, err := c.resolveInput(mx.ID); err != nil || p != mx.Producer() {
		t.Fatalf("resolveInput(mixer id) = %v, %v", p, err)
	}
	if p, err := c.resolveInput(lp.ID); err != nil || p != lp.Producer() {
		t.Fatalf("resolveInput(live player id) = %v, %v", p, err)
	}
	if _, err := c.resolveInput("nonexistent"); err == nil {
		t.Fatal("expected error for an id matching no category")
	}
}

func TestRestoreReplaysInputsMixersAndLivePlayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	c1, err := NewController(Options{BlockSize: 1024, SampleRate: 48000, StorePath: path})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	in, err := c1.AddInput("mic", "default", 2, 48000)
	if err != nil {
		t.Fatalf("AddInput: %v", err)
	}
	mx, err := c1.AddMixer("main", 2)
	if err != nil {
		t.Fatalf("AddMixer: %v", err)
	}
	if _, err := c1.AddMixerChannel(mx.ID, in.ID); err != nil {
		t.Fatalf("AddMixerChannel: %v", err)
	}
	lp, err := c1.AddLivePlayer("show")
	if err != nil {
		t.Fatalf("AddLivePlayer: %v", err)
	}
	if err := c1.SetLivePlayerTracks(lp.ID, []TrackEntry{{TrackID: "a", Mode: TrackModePlayNext}}); err != nil {
		t.Fatalf("SetLivePlayerTracks: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := NewController(Options{BlockSize: 1024, SampleRate: 48000, StorePath: path})
	if err != nil {
		t.Fatalf("NewController (reopen): %v", err)
	}
	defer c2.Close()

	if err := c2.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if len(c2.ListInputs()) != 1 {
		t.Fatalf("ListInputs() after restore = %d, want 1", len(c2.ListInputs()))
	}
	mixers := c2.ListMixers()
	if len(mixers) != 1 {
		t.Fatalf("ListMixers() after restore = %d, want 1", len(mixers))
	}
	if len(mixers[0].channels) != 1 {
		t.Fatalf("restored mixer channel count = %d, want 1", len(mixers[0].channels))
	}
	players := c2.ListLivePlayers()
	if len(players) != 1 {
		t.Fatalf("ListLivePlayers() after restore = %d, want 1", len(players))
	}
	if len(players[0].tracks) != 1 {
		t.Fatalf("restored track count = %d, want 1", len(players[0].tracks))
	}
}

func TestRestoreIsNoopWithoutAStore(t *testing.T) {
	c := newTestController(t)
	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("Restore on a store-less controller should be a no-op, got: %v", err)
	}
}

func TestAuthorizeDisabledWhenTokenEmpty(t *testing.T) {
	c := newTestController(t)
	if err := c.Authorize("anything"); err != nil {
		t.Fatalf("Authorize with no configured token should always succeed, got: %v", err)
	}
}

func TestAuthorizeRejectsWrongToken(t *testing.T) {
	c, err := NewController(Options{BlockSize: 1024, SampleRate: 48000, OperatorToken: "secret"})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.Authorize("wrong"); err == nil {
		t.Fatal("expected Authorize to reject a wrong token")
	}
	if err := c.Authorize("secret"); err != nil {
		t.Fatalf("Authorize with the correct token: %v", err)
	}
}
