// Package ffmpeg wraps the media-conditioning tool (ffmpeg) and the
// media prober (ffprobe) as child processes with a stable command-line
// contract (§1 "Out of scope" collaborators, specified only at their
// interface). Grounded on the teacher's internal/ffmpeg package
// (binary detection, CommandBuilder, Prober), rewritten for this spec's
// profile/MediaInfo types and trimmed of the HLS/fMP4/hardware-encoder
// surface the teacher's relay pipeline needed but this spec does not.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/lavacaster/broadcaster/internal/util"
)

// BinaryInfo is the resolved location and version of the ffmpeg/ffprobe
// pair this process will shell out to.
type BinaryInfo struct {
	FFmpegPath   string
	FFprobePath  string
	Version      string
	MajorVersion int
	MinorVersion int
}

var versionPattern = regexp.MustCompile(`version\s+n?(\d+)\.(\d+)`)

// DetectBinaries resolves the ffmpeg/ffprobe binaries, preferring the
// explicit paths passed in (from config) and falling back to PATH
// lookup via internal/util.FindBinary.
func DetectBinaries(ctx context.Context, ffmpegPath, ffprobePath string) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	path, err := resolve(ffmpegPath, "ffmpeg", "BROADCASTER_FFMPEG_PATH")
	if err != nil {
		return nil, fmt.Errorf("resolving ffmpeg: %w", err)
	}
	info.FFmpegPath = path

	probePath, err := resolve(ffprobePath, "ffprobe", "BROADCASTER_FFPROBE_PATH")
	if err != nil {
		return nil, fmt.Errorf("resolving ffprobe: %w", err)
	}
	info.FFprobePath = probePath

	if out, err := exec.CommandContext(ctx, info.FFmpegPath, "-version").Output(); err == nil {
		if m := versionPattern.FindStringSubmatch(string(out)); len(m) == 3 {
			info.MajorVersion, _ = strconv.Atoi(m[1])
			info.MinorVersion, _ = strconv.Atoi(m[2])
			info.Version = fmt.Sprintf("%s.%s", m[1], m[2])
		}
	}

	return info, nil
}

func resolve(explicit, name, envVar string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return util.FindBinary(name, envVar)
}

// defaultProbeTimeout is the prober's hard timeout (§4.2), kept as a
// named constant rather than a magic number.
const (
	defaultProbeTimeout = 20 * time.Second
)
