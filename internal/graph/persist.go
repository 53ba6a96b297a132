package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// store is the modernc.org/sqlite-backed persistence layer, a closer port
// of original_source/audio_manager/persist.py's SQLAlchemy schema (one
// table per entity, opaque "parameters" blob per row) than a JSON file
// would be. The LivePlayer track-list detail rows get their own table
// rather than a nested blob, mirroring persist.py's separate association
// table for jingle/track ordering.
type store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS input (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	type TEXT NOT NULL,
	parameters TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS output (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	input TEXT,
	type TEXT NOT NULL,
	parameters TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mixer (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	output_channels INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS mixer_channel (
	id TEXT PRIMARY KEY,
	mixer TEXT NOT NULL,
	input TEXT NOT NULL,
	volume REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS live_player (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	state TEXT NOT NULL,
	jingle_playlist_id TEXT,
	jingle_count INTEGER NOT NULL DEFAULT 0,
	jingle_plays INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS live_player_track (
	player_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	track_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	PRIMARY KEY (player_id, idx)
);
`

// openStore opens (creating if absent) the sqlite database at path and
// ensures the schema above exists.
func openStore(path string) (*store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate graph store: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error { return s.db.Close() }

type inputParams struct {
	DeviceName string `json:"device_name"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
}

func (s *store) saveInput(in *Input) error {
	params, err := json.Marshal(inputParams{DeviceName: in.DeviceName})
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO input (id, display_name, type, parameters) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, parameters=excluded.parameters`,
		in.ID, in.DisplayName, string(in.Kind), string(params),
	)
	return err
}

func (s *store) deleteInput(id string) error {
	_, err := s.db.Exec(`DELETE FROM input WHERE id = ?`, id)
	return err
}

type inputRow struct {
	ID, DisplayName, Kind string
	Params                inputParams
}

func (s *store) loadInputs() ([]inputRow, error) {
	rows, err := s.db.Query(`SELECT id, display_name, type, parameters FROM input`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inputRow
	for rows.Next() {
		var r inputRow
		var raw string
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.Kind, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Params); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type outputParams struct {
	DeviceName   string `json:"device_name,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	Password     string `json:"password,omitempty"`
	Quality      int    `json:"quality,omitempty"`
	BitrateKbps  int    `json:"bitrate_kbps,omitempty"`
	MetaName     string `json:"meta_name,omitempty"`
	MetaDesc     string `json:"meta_description,omitempty"`
	MetaGenre    string `json:"meta_genre,omitempty"`
	MetaPublic   bool   `json:"meta_public,omitempty"`
	BasePath     string `json:"base_path,omitempty"`
	RollSeconds  int    `json:"roll_seconds,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	Offset       int    `json:"offset,omitempty"`
	MxChannels   int    `json:"mx_channels,omitempty"`
}

func (s *store) saveOutput(out *Output) error {
	params, err := s.outputParamsFor(out)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO output (id, display_name, input, type, parameters) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, input=excluded.input, parameters=excluded.parameters`,
		out.ID, out.DisplayName, nullable(out.InputID), string(out.Kind), string(encoded),
	)
	return err
}

func (s *store) outputParamsFor(out *Output) (outputParams, error) {
	switch out.Kind {
	case OutputKindDevice:
		return outputParams{DeviceName: out.deviceName, Channels: out.channels, SampleRate: out.sampleRate}, nil
	case OutputKindIcecast:
		return outputParams{
			Endpoint: out.endpoint, Password: out.password,
			Quality: out.quality, BitrateKbps: out.bitrateKbps,
			MetaName: out.meta.Name, MetaDesc: out.meta.Description,
			MetaGenre: out.meta.Genre, MetaPublic: out.meta.Public,
		}, nil
	case OutputKindFile:
		return outputParams{
			BasePath: out.basePath, Quality: out.quality, BitrateKbps: out.bitrateKbps,
			RollSeconds: int(out.rollInterval.Seconds()),
		}, nil
	case OutputKindMultiplex:
		return outputParams{ParentID: out.parentID, Offset: out.offset, MxChannels: out.mxChannels}, nil
	case OutputKindBrowserStream:
		return outputParams{Quality: out.quality, BitrateKbps: out.bitrateKbps}, nil
	default:
		return outputParams{}, nil
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type outputRow struct {
	ID, DisplayName, Kind string
	InputID               string
	Params                outputParams
}

func (s *store) loadOutputs() ([]outputRow, error) {
	rows, err := s.db.Query(`SELECT id, display_name, COALESCE(input, ''), type, parameters FROM output`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outputRow
	for rows.Next() {
		var r outputRow
		var raw string
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.InputID, &r.Kind, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Params); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) deleteOutput(id string) error {
	_, err := s.db.Exec(`DELETE FROM output WHERE id = ?`, id)
	return err
}

func (s *store) saveMixer(mx *Mixer) error {
	_, err := s.db.Exec(
		`INSERT INTO mixer (id, display_name, output_channels) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name`,
		mx.ID, mx.DisplayName, mx.OutputChannels,
	)
	return err
}

func (s *store) deleteMixer(id string) error {
	_, err := s.db.Exec(`DELETE FROM mixer WHERE id = ?`, id)
	return err
}

type mixerRow struct {
	ID, DisplayName string
	OutputChannels  int
}

func (s *store) loadMixers() ([]mixerRow, error) {
	rows, err := s.db.Query(`SELECT id, display_name, output_channels FROM mixer`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mixerRow
	for rows.Next() {
		var r mixerRow
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.OutputChannels); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) saveMixerChannel(ch *MixerChannel) error {
	_, err := s.db.Exec(
		`INSERT INTO mixer_channel (id, mixer, input, volume) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET input=excluded.input, volume=excluded.volume`,
		ch.ID, ch.MixerID, ch.ProducerID, ch.Volume,
	)
	return err
}

func (s *store) deleteMixerChannel(id string) error {
	_, err := s.db.Exec(`DELETE FROM mixer_channel WHERE id = ?`, id)
	return err
}

type mixerChannelRow struct {
	ID, MixerID, ProducerID string
	Volume                  float64
}

func (s *store) loadMixerChannels() ([]mixerChannelRow, error) {
	rows, err := s.db.Query(`SELECT id, mixer, input, volume FROM mixer_channel`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mixerChannelRow
	for rows.Next() {
		var r mixerChannelRow
		if err := rows.Scan(&r.ID, &r.MixerID, &r.ProducerID, &r.Volume); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) saveLivePlayer(lp *LivePlayer) error {
	lp.mu.Lock()
	jinglePlaylistID, jingleCount, jinglePlays := lp.jinglePlaylistID, lp.jingleCount, lp.jinglePlays
	lp.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO live_player (id, display_name, state, jingle_playlist_id, jingle_count, jingle_plays)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, state=excluded.state,
			jingle_playlist_id=excluded.jingle_playlist_id, jingle_count=excluded.jingle_count, jingle_plays=excluded.jingle_plays`,
		lp.ID, lp.DisplayName, livePlayerState(lp), nullable(jinglePlaylistID), jingleCount, jinglePlays,
	)
	return err
}

func livePlayerState(lp *LivePlayer) string {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.playing {
		return "playing"
	}
	return "paused"
}

func (s *store) saveLivePlayerTracks(playerID string, tracks []TrackEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM live_player_track WHERE player_id = ?`, playerID); err != nil {
		tx.Rollback()
		return err
	}
	for i, t := range tracks {
		if _, err := tx.Exec(
			`INSERT INTO live_player_track (player_id, idx, track_id, mode) VALUES (?, ?, ?, ?)`,
			playerID, i, t.TrackID, string(t.Mode),
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type livePlayerRow struct {
	ID, DisplayName, State string
	JinglePlaylistID       string
	JingleCount            int
	JinglePlays            int
}

func (s *store) loadLivePlayers() ([]livePlayerRow, error) {
	rows, err := s.db.Query(`SELECT id, display_name, state, COALESCE(jingle_playlist_id, ''), jingle_count, jingle_plays FROM live_player`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []livePlayerRow
	for rows.Next() {
		var r livePlayerRow
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.State, &r.JinglePlaylistID, &r.JingleCount, &r.JinglePlays); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) loadLivePlayerTracks(playerID string) ([]TrackEntry, error) {
	rows, err := s.db.Query(`SELECT track_id, mode FROM live_player_track WHERE player_id = ? ORDER BY idx`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackEntry
	for rows.Next() {
		var trackID, mode string
		if err := rows.Scan(&trackID, &mode); err != nil {
			return nil, err
		}
		out = append(out, TrackEntry{TrackID: trackID, Mode: TrackMode(mode)})
	}
	return out, rows.Err()
}
