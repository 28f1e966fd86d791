// Package smartingest decides whether a probed source can be remuxed
// (stream-copied into the streaming container) rather than re-encoded,
// given a target profile (§4.8). Shape grounded in the teacher's probe
// result types (tvarr internal/ffmpeg/prober.go StreamInfo); the decision
// procedure itself is built from spec §4.8 text, since the upstream
// original_source/uploader.py's specs_match equivalent was not present in
// the retrieved source (DESIGN.md).
package smartingest

import (
	"math"

	"github.com/lavacaster/broadcaster/internal/models"
)

// bitrateTolerance is the 1.2x allowance on source bitrate vs. target
// (§4.8).
const bitrateTolerance = 1.2

// fpsTolerance is the maximum allowed |src_fps - target_fps| delta
// (§4.8).
const fpsTolerance = 0.1

// Matches reports whether info can be remuxed (stream-copied) into the
// streaming container in lieu of re-encoding against target, per the
// six-part test in §4.8. Missing probe info (info.Empty()) always
// blocks remux.
func Matches(info models.MediaInfo, target models.Profile) bool {
	if info.Empty() {
		return false
	}

	if !videoCodecMatches(info.VideoCodec, target.Codec) {
		return false
	}

	if info.AudioCodec != "" && !isAAC(info.AudioCodec) {
		return false
	}

	if target.Resolution != models.ResolutionOriginal {
		dims, ok := models.ResolutionDims[target.Resolution]
		if !ok {
			return false
		}
		if info.Width != dims[0] || info.Height != dims[1] {
			return false
		}
	}

	if target.FPS != models.FPSOriginal {
		targetFPS, ok := models.FPSFloat(target.FPS)
		if !ok {
			return false
		}
		srcFPS := info.FPSValue()
		if srcFPS == 0 || math.Abs(srcFPS-targetFPS) > fpsTolerance {
			return false
		}
	}

	if info.VideoKbps > 0 {
		targetVKbps := models.ParseBitrateKbps(target.VBitrate)
		if targetVKbps > 0 && float64(info.VideoKbps) > float64(targetVKbps)*bitrateTolerance {
			return false
		}
	}

	if info.AudioKbps > 0 {
		targetAKbps := models.ParseBitrateKbps(target.ABitrate)
		if targetAKbps > 0 && float64(info.AudioKbps) > float64(targetAKbps)*bitrateTolerance {
			return false
		}
	}

	return true
}

// videoCodecMatches implements the codec naming translation §4.8 calls
// out explicitly: h264->h264, h265->hevc (ffprobe reports HEVC streams
// as "hevc", never "h265").
func videoCodecMatches(srcCodec string, target models.Codec) bool {
	switch target {
	case models.CodecH264:
		return srcCodec == "h264"
	case models.CodecH265:
		return srcCodec == "hevc"
	default:
		return false
	}
}

func isAAC(audioCodec string) bool {
	return audioCodec == "aac"
}
