package graph

import "testing"

func TestAddMixerChannelResolvesInputByID(t *testing.T) {
	c := newTestController(t)
	in, _ := c.AddInput("mic", "default", 2, 48000)
	mx, err := c.AddMixer("main", 2)
	if err != nil {
		t.Fatalf("AddMixer: %v", err)
	}

	ch, err := c.AddMixerChannel(mx.ID, in.ID)
	if err != nil {
		t.Fatalf("AddMixerChannel: %v", err)
	}
	if ch.Volume != 1.0 {
		t.Fatalf("default volume = %f, want 1.0", ch.Volume)
	}
}

func TestAddMixerChannelRejectsUnknownProducer(t *testing.T) {
	c := newTestController(t)
	mx, _ := c.AddMixer("main", 2)
	if _, err := c.AddMixerChannel(mx.ID, "nonexistent"); err == nil {
		t.Fatal("expected error resolving an unknown producer id")
	}
}

func TestSetMixerChannelVolumeRejectsOutOfRange(t *testing.T) {
	c := newTestController(t)
	in, _ := c.AddInput("mic", "default", 2, 48000)
	mx, _ := c.AddMixer("main", 2)
	ch, _ := c.AddMixerChannel(mx.ID, in.ID)

	if err := c.SetMixerChannelVolume(mx.ID, ch.ID, 3.0); err == nil {
		t.Fatal("expected error for volume outside [0.0, 2.0]")
	}
}

func TestRemoveMixerChannelDetaches(t *testing.T) {
	c := newTestController(t)
	in, _ := c.AddInput("mic", "default", 2, 48000)
	mx, _ := c.AddMixer("main", 2)
	ch, _ := c.AddMixerChannel(mx.ID, in.ID)

	if err := c.RemoveMixerChannel(mx.ID, ch.ID); err != nil {
		t.Fatalf("RemoveMixerChannel: %v", err)
	}
	if err := c.RemoveMixerChannel(mx.ID, ch.ID); err == nil {
		t.Fatal("expected error removing an already-removed channel")
	}
}

func TestDeleteMixerRefusesWhenInUse(t *testing.T) {
	c := newTestController(t)
	mx, _ := c.AddMixer("main", 2)
	subID := mx.node.AddSubscriber(nil)
	defer mx.node.RemoveSubscriber(subID)

	err := c.DeleteMixer(mx.ID)
	gerr, ok := err.(*Error)
	if !ok || gerr.Kind != KindInUse {
		t.Fatalf("expected KindInUse, got %v", err)
	}
}

func TestDeleteMixerSucceedsWhenUnused(t *testing.T) {
	c := newTestController(t)
	mx, _ := c.AddMixer("main", 2)
	if err := c.DeleteMixer(mx.ID); err != nil {
		t.Fatalf("DeleteMixer: %v", err)
	}
}
