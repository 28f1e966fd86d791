package ffmpeg

import (
	"strings"
	"testing"

	"github.com/lavacaster/broadcaster/internal/models"
)

func argString(argv []string) string { return strings.Join(argv, " ") }

func TestCommandBuilderStreamCopy(t *testing.T) {
	argv := NewCommandBuilder("ffmpeg").
		Input("/src.mp4").
		StreamCopy().
		MpegTSProgress("/dst.ts").
		Build()

	s := argString(argv)
	if !strings.Contains(s, "-c copy") {
		t.Errorf("expected stream copy, got %q", s)
	}
	if !strings.Contains(s, "-f mpegts") {
		t.Errorf("expected mpegts output, got %q", s)
	}
}

func TestCommandBuilderVideoEncode(t *testing.T) {
	argv := NewCommandBuilder("ffmpeg").
		Input("/src.mp4").
		VideoEncode(models.CodecH265, models.PresetFast, 4000).
		AudioAAC("128k").
		MpegTSProgress("/dst.ts").
		Build()

	s := argString(argv)
	if !strings.Contains(s, "-c:v libx265") {
		t.Errorf("expected libx265, got %q", s)
	}
	if !strings.Contains(s, "-b:v 4000k") || !strings.Contains(s, "-bufsize 8000k") {
		t.Errorf("expected rate control with 2x bufsize, got %q", s)
	}
}

func TestUDPOutputWireParams(t *testing.T) {
	url := UDPOutput("239.1.1.1", 5100, "10.0.0.5")
	if !strings.Contains(url, "pkt_size=1316") || !strings.Contains(url, "ttl=10") || !strings.Contains(url, "localaddr=10.0.0.5") {
		t.Errorf("missing expected wire params: %s", url)
	}
}

func TestFrameRateFractional(t *testing.T) {
	num, den, ok := models.FPSFraction(models.FPS23_976)
	if !ok {
		t.Fatal("expected ok")
	}
	argv := NewCommandBuilder("ffmpeg").FrameRate(num, den).Build()
	if !strings.Contains(argString(argv), "-r 24000/1001") {
		t.Errorf("expected fractional frame rate, got %v", argv)
	}
}
