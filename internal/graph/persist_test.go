package graph

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/arung-agamani/denpa-studio/internal/audio"
)

func openTestStore(t *testing.T) *store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := openStore(path)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { _ = s.close() })
	return s
}

func TestStoreSaveAndLoadInputRoundTrips(t *testing.T) {
	s := openTestStore(t)
	in := &Input{ID: "in-1", DisplayName: "mic", Kind: InputKindDevice, DeviceName: "default"}
	if err := s.saveInput(in); err != nil {
		t.Fatalf("saveInput: %v", err)
	}

	rows, err := s.loadInputs()
	if err != nil {
		t.Fatalf("loadInputs: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "in-1" || rows[0].Params.DeviceName != "default" {
		t.Fatalf("loadInputs = %+v", rows)
	}
}

func TestStoreDeleteInputRemovesRow(t *testing.T) {
	s := openTestStore(t)
	in := &Input{ID: "in-1", DisplayName: "mic", Kind: InputKindDevice, DeviceName: "default"}
	_ = s.saveInput(in)
	if err := s.deleteInput("in-1"); err != nil {
		t.Fatalf("deleteInput: %v", err)
	}
	rows, _ := s.loadInputs()
	if len(rows) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(rows))
	}
}

func TestStoreOutputParamsForEachKind(t *testing.T) {
	s := openTestStore(t)

	cases := []*Output{
		{ID: "o1", Kind: OutputKindDevice, deviceName: "speakers", channels: 2, sampleRate: 48000},
		{ID: "o2", Kind: OutputKindIcecast, endpoint: "http://host/mount", password: "pw", quality: 4, bitrateKbps: 128,
			meta: audio.IceMetadata{Name: "n", Description: "d", Genre: "g", Public: true}},
		{ID: "o3", Kind: OutputKindFile, basePath: "/tmp/station", quality: 4, bitrateKbps: 128, rollInterval: time.Hour},
		{ID: "o4", Kind: OutputKindMultiplex, parentID: "o1", offset: 2, mxChannels: 2},
		{ID: "o5", Kind: OutputKindBrowserStream, quality: 5, bitrateKbps: 192},
	}
	for _, out := range cases {
		if err := s.saveOutput(out); err != nil {
			t.Fatalf("saveOutput(%s): %v", out.ID, err)
		}
	}

	rows, err := s.loadOutputs()
	if err != nil {
		t.Fatalf("loadOutputs: %v", err)
	}
	byID := make(map[string]outputRow)
	for _, r := range rows {
		byID[r.ID] = r
	}

	if byID["o1"].Params.DeviceName != "speakers" || byID["o1"].Params.Channels != 2 {
		t.Fatalf("device params = %+v", byID["o1"].Params)
	}
	if byID["o2"].Params.Endpoint != "http://host/mount" || byID["o2"].Params.MetaName != "n" {
		t.Fatalf("icecast params = %+v", byID["o2"].Params)
	}
	if byID["o3"].Params.BasePath != "/tmp/station" || byID["o3"].Params.RollSeconds != 3600 {
		t.Fatalf("file params = %+v", byID["o3"].Params)
	}
	if byID["o4"].Params.ParentID != "o1" || byID["o4"].Params.Offset != 2 || byID["o4"].Params.MxChannels != 2 {
		t.Fatalf("multiplex params = %+v", byID["o4"].Params)
	}
	if byID["o5"].Params.Quality != 5 || byID["o5"].Params.BitrateKbps != 192 {
		t.Fatalf("browser-stream params = %+v", byID["o5"].Params)
	}
}

func TestStoreSaveLivePlayerRoundTripsJingleFields(t *testing.T) {
	s := openTestStore(t)
	lp := &LivePlayer{ID: "lp-1", DisplayName: "show", jinglePlaylistID: "jingle-1", jingleCount: 5, jinglePlays: 2}
	if err := s.saveLivePlayer(lp); err != nil {
		t.Fatalf("saveLivePlayer: %v", err)
	}

	rows, err := s.loadLivePlayers()
	if err != nil {
		t.Fatalf("loadLivePlayers: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.JinglePlaylistID != "jingle-1" || r.JingleCount != 5 || r.JinglePlays != 2 {
		t.Fatalf("jingle fields = %+v, want {jingle-1 5 2}", r)
	}
}

func TestStoreSaveLivePlayerTracksReplacesWholeList(t *testing.T) {
	s := openTestStore(t)
	lp := &LivePlayer{ID: "lp-1", DisplayName: "show"}
	if err := s.saveLivePlayer(lp); err != nil {
		t.Fatalf("saveLivePlayer: %v", err)
	}

	first := []TrackEntry{{TrackID: "a", Mode: TrackModePlayNext}, {TrackID: "b", Mode: TrackModeLoop}}
	if err := s.saveLivePlayerTracks("lp-1", first); err != nil {
		t.Fatalf("saveLivePlayerTracks: %v", err)
	}
	got, err := s.loadLivePlayerTracks("lp-1")
	if err != nil {
		t.Fatalf("loadLivePlayerTracks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(got))
	}

	second := []TrackEntry{{TrackID: "c", Mode: TrackModePauseAfter}}
	if err := s.saveLivePlayerTracks("lp-1", second); err != nil {
		t.Fatalf("saveLivePlayerTracks (replace): %v", err)
	}
	got, err = s.loadLivePlayerTracks("lp-1")
	if err != nil {
		t.Fatalf("loadLivePlayerTracks after replace: %v", err)
	}
	if len(got) != 1 || got[0].TrackID != "c" {
		t.Fatalf("expected list fully replaced, got %+v", got)
	}
}

func TestStoreMixerChannelRoundTrip(t *testing.T) {
	s := openTestStore(t)
	mx := &Mixer{ID: "mx-1", DisplayName: "main", OutputChannels: 2}
	if err := s.saveMixer(mx); err != nil {
		t.Fatalf("saveMixer: %v", err)
	}
	ch := &MixerChannel{ID: "ch-1", MixerID: "mx-1", ProducerID: "in-1", Volume: 0.8}
	if err := s.saveMixerChannel(ch); err != nil {
		t.Fatalf("saveMixerChannel: %v", err)
	}

	rows, err := s.loadMixerChannels()
	if err != nil {
		t.Fatalf("loadMixerChannels: %v", err)
	}
	if len(rows) != 1 || rows[0].Volume != 0.8 {
		t.Fatalf("loadMixerChannels = %+v", rows)
	}

	if err := s.deleteMixerChannel("ch-1"); err != nil {
		t.Fatalf("deleteMixerChannel: %v", err)
	}
	rows, _ = s.loadMixerChannels()
	if len(rows) != 0 {
		t.Fatalf("expected no channels after delete, got %d", len(rows))
	}
}
