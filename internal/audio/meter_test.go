package audio

import "testing"

func TestMeterRecordsPeakFromAttachedSource(t *testing.T) {
	src := &fakeSource{channels: 1}
	m := NewMeter()
	m.SetInput(src)

	if m.CurrentLevel() != 0 {
		t.Fatalf("expected zero level before any block, got %f", m.CurrentLevel())
	}

	src.emit(Block{Channels: 1, Samples: []int16{1000, -1000}})

	if m.CurrentLevel() != 2000 {
		t.Fatalf("CurrentLevel() = %f, want 2000", m.CurrentLevel())
	}
}

func TestMeterCurrentPeakTracksMaxOverHistory(t *testing.T) {
	src := &fakeSource{channels: 1}
	m := NewMeter()
	m.SetInput(src)

	src.emit(Block{Channels: 1, Samples: []int16{100}})
	src.emit(Block{Channels: 1, Samples: []int16{5000}})
	src.emit(Block{Channels: 1, Samples: []int16{200}})

	if m.CurrentPeak() != 10000 {
		t.Fatalf("CurrentPeak() = %f, want 10000", m.CurrentPeak())
	}
}

func TestMeterSetInputNilDetaches(t *testing.T) {
	src := &fakeSource{channels: 1}
	m := NewMeter()
	m.SetInput(src)
	m.SetInput(nil)

	src.emit(Block{Channels: 1, Samples: []int16{9999}})

	if m.CurrentLevel() != 0 {
		t.Fatalf("expected level to stay zero after detach, got %f", m.CurrentLevel())
	}
}

func TestMeterSwitchingSourceDetachesPrevious(t *testing.T) {
	src1 := &fakeSource{channels: 1}
	src2 := &fakeSource{channels: 1}
	m := NewMeter()
	m.SetInput(src1)
	m.SetInput(src2)

	src1.emit(Block{Channels: 1, Samples: []int16{9999}})
	if m.CurrentLevel() != 0 {
		t.Fatalf("expected old source detached, level = %f", m.CurrentLevel())
	}

	src2.emit(Block{Channels: 1, Samples: []int16{100}})
	if m.CurrentLevel() != 200 {
		t.Fatalf("expected new source attached, level = %f", m.CurrentLevel())
	}
}
