package ffmpeg

import "errors"

// errDecodeFailed is wrapped into every decode-path failure in this
// package. audio.File multi-wraps it alongside audio.ErrDecodeFailed
// (fmt.Errorf("%w: %w", ...)) when surfacing a probe/decode error, so
// errors.Is matches against either sentinel.
var errDecodeFailed = errors.New("ffmpeg: decode failed")
