package graph

import (
	"testing"

	"github.com/arung-agamani/denpa-studio/internal/audio"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(Options{BlockSize: 1024, SampleRate: 48000})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAddInputRegistersAndLists(t *testing.T) {
	c := newTestController(t)
	in, err := c.AddInput("mic", "default", 2, 48000)
	if err != nil {
		t.Fatalf("AddInput: %v", err)
	}
	if in.Kind != InputKindDevice {
		t.Fatalf("Kind = %v, want device", in.Kind)
	}

	list := c.ListInputs()
	if len(list) != 1 || list[0].ID != in.ID {
		t.Fatalf("ListInputs = %v, want one entry matching %s", list, in.ID)
	}
}

func TestGetInputNotFound(t *testing.T) {
	c := newTestController(t)
	if _, err := c.GetInput("nonexistent"); err == nil {
		t.Fatal("expected error for unknown input id")
	} else if gerr, ok := err.(*Error); !ok || gerr.Kind != KindDeviceNotFound {
		t.Fatalf("expected KindDeviceNotFound, got %v", err)
	}
}

func TestDeleteInputSucceedsWhenUnused(t *testing.T) {
	c := newTestController(t)
	in, _ := c.AddInput("mic", "default", 2, 48000)
	if err := c.DeleteInput(in.ID); err != nil {
		t.Fatalf("DeleteInput: %v", err)
	}
	if _, err := c.GetInput(in.ID); err == nil {
		t.Fatal("expected input to be gone after delete")
	}
}

func TestDeleteInputRefusesWhenInUse(t *testing.T) {
	c := newTestController(t)
	in, _ := c.AddInput("mic", "default", 2, 48000)
	subID := in.device.AddSubscriber(func(audio.Producer, audio.Block) {})
	defer in.device.RemoveSubscriber(subID)

	err := c.DeleteInput(in.ID)
	if err == nil {
		t.Fatal("expected InUse error")
	}
	gerr, ok := err.(*Error)
	if !ok || gerr.Kind != KindInUse {
		t.Fatalf("expected KindInUse, got %v", err)
	}
}
