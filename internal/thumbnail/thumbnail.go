// Package thumbnail generates the upload-time preview image §6 calls
// for: a video frame at 10% of the source's duration, or a 320x180
// waveform image for an audio-only source. Grounded on the Transcode
// Job's one-shot supervisor spawn (internal/transcodejob), simplified
// to a plain spawn-and-wait under a hard timeout: a single-frame
// extraction has no useful progress stream to parse.
package thumbnail

import (
	"context"
	"time"

	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/models"
	"github.com/lavacaster/broadcaster/internal/supervisor"
)

// Timeout bounds the thumbnail subjob (§6 "thumbnail timeout").
const Timeout = 15 * time.Second

// Generate runs the thumbnail subjob against src, writing dst.
// isAudioOnly selects the waveform path over the video-frame path.
func Generate(ctx context.Context, ffmpegPath, src, dst string, durationSec float64, isAudioOnly bool) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var argv []string
	if isAudioOnly {
		argv = ffmpeg.BuildWaveformThumbnailArgv(ffmpegPath, src, dst)
	} else {
		argv = ffmpeg.BuildVideoThumbnailArgv(ffmpegPath, src, dst, durationSec)
	}

	h, err := supervisor.Spawn(ctx, argv, supervisor.StdoutDiscard)
	if err != nil {
		return err
	}
	code, err := h.Wait()
	if err != nil {
		return err
	}
	if code != 0 {
		return models.NewProcessRuntimeError(code)
	}
	return nil
}
