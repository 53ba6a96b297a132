package audio

import "errors"

// Sentinel errors surfaced by core nodes. graph.Error wraps these with a Kind
// for callers that need to classify a failure (spec.md §7).
var (
	ErrDuplicateInput  = errors.New("audio: input already attached")
	ErrNotAttached     = errors.New("audio: input not attached")
	ErrVolumeRange     = errors.New("audio: volume out of [0.0, 2.0] range")
	ErrChannelOverlap  = errors.New("audio: channel range overlaps an existing input")
	ErrChannelBounds   = errors.New("audio: start_channel + channels_in exceeds output width")
	ErrEncoderChannels = errors.New("audio: encoder channel count mismatch")
	ErrDecodeFailed    = errors.New("audio: decode failed")
	ErrConnectFailed   = errors.New("audio: icecast connect failed")
	ErrDeviceNotFound  = errors.New("audio: device not found")
	ErrEncoderFailed   = errors.New("audio: encoder start failed")
)
