package ffmpeg

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lavacaster/broadcaster/internal/models"
	"github.com/lavacaster/broadcaster/internal/supervisor"
)

// Prober runs ffprobe against a source file and parses its JSON output
// into the domain's MediaInfo record (§4.2). The prober never raises:
// every failure mode collapses to the zero-value "unknown" sentinel so
// callers (smart ingest, upload handling) can treat it uniformly.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber builds a Prober against the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath, timeout: defaultProbeTimeout}
}

// WithTimeout overrides the probe's hard timeout (default 20s, §4.2).
func (p *Prober) WithTimeout(d time.Duration) *Prober {
	p.timeout = d
	return p
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type probeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	RFrameRate    string `json:"r_frame_rate"`
	BitRate       string `json:"bit_rate"`
}

type probeDocument struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// ProbeDuration returns the source's duration in seconds, or 0.0 on any
// failure (§4.2 — "treated by callers as unknown, make no assumptions").
func (p *Prober) ProbeDuration(ctx context.Context, path string) float64 {
	doc, err := p.run(ctx, path)
	if err != nil || doc == nil {
		return 0
	}
	d, err := strconv.ParseFloat(doc.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// ProbeVideoInfo extracts the video/audio codec, resolution, frame rate,
// and bitrates from path (§4.2). An empty MediaInfo (MediaInfo.Empty())
// is the sole failure-signalling value; the prober never returns an
// error to a caller interested only in whether conditioning can proceed.
func (p *Prober) ProbeVideoInfo(ctx context.Context, path string) models.MediaInfo {
	doc, err := p.run(ctx, path)
	if err != nil || doc == nil {
		return models.MediaInfo{}
	}

	var info models.MediaInfo
	var videoStream, audioStream *probeStream
	for i := range doc.Streams {
		s := &doc.Streams[i]
		switch s.CodecType {
		case "video":
			if videoStream == nil {
				videoStream = s
			}
		case "audio":
			if audioStream == nil {
				audioStream = s
			}
		}
	}

	if videoStream == nil {
		return models.MediaInfo{}
	}

	info.VideoCodec = videoStream.CodecName
	info.Width = videoStream.Width
	info.Height = videoStream.Height
	info.FPSNum, info.FPSDen = parseFramerate(videoStream.RFrameRate)
	info.VideoKbps = bitrateKbps(videoStream.BitRate, doc.Format.BitRate)

	if audioStream != nil {
		info.AudioCodec = audioStream.CodecName
		info.AudioKbps = bitrateKbps(audioStream.BitRate, "")
	}

	if d, err := strconv.ParseFloat(doc.Format.Duration, 64); err == nil {
		info.DurationSec = d
	}

	return info
}

func (p *Prober) run(ctx context.Context, path string) (*probeDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	argv := []string{
		p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-show_entries", "stream=codec_type,codec_name,width,height,r_frame_rate,bit_rate",
		"-of", "json",
		path,
	}

	h, err := supervisor.Spawn(ctx, argv, supervisor.StdoutCollect)
	if err != nil {
		return nil, models.NewProbeError(path, err)
	}

	out, err := h.Collected()
	if err != nil {
		return nil, models.NewProbeError(path, err)
	}
	if _, err := h.Wait(); err != nil {
		return nil, models.NewProbeError(path, err)
	}

	var doc probeDocument
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, models.NewProbeError(path, err)
	}
	return &doc, nil
}

// parseFramerate parses ffprobe's "N/D" r_frame_rate field.
func parseFramerate(fr string) (num, den int) {
	parts := strings.SplitN(fr, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	n, err1 := strconv.Atoi(parts[0])
	d, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || d == 0 {
		return 0, 0
	}
	return n, d
}

// bitrateKbps parses a stream-level bit_rate string, falling back to the
// container-level value when the stream-level field is absent (§4.2).
func bitrateKbps(streamBitRate, formatBitRate string) int {
	v := streamBitRate
	if v == "" {
		v = formatBitRate
	}
	if v == "" {
		return 0
	}
	bps, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return int(bps / 1000)
}
