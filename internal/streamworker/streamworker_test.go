package streamworker

import (
	"strings"
	"testing"

	"github.com/lavacaster/broadcaster/internal/models"
)

func TestBuildArgvPassthrough(t *testing.T) {
	s := Settings{SrcPath: "/prepared.ts", IP: "239.1.1.1", Port: 5100, Encap: models.EncapUDP, Loop: true}
	argv := buildArgv("ffmpeg", s, "10.0.0.5")
	cmd := strings.Join(argv, " ")
	if !strings.Contains(cmd, "-re") {
		t.Errorf("expected -re for native rate, got %q", cmd)
	}
	if !strings.Contains(cmd, "-stream_loop -1") {
		t.Errorf("expected loop flag, got %q", cmd)
	}
	if !strings.Contains(cmd, "-c copy") {
		t.Errorf("expected stream copy for passthrough, got %q", cmd)
	}
	if !strings.Contains(cmd, "udp://239.1.1.1:5100") || !strings.Contains(cmd, "localaddr=10.0.0.5") {
		t.Errorf("expected udp destination with localaddr, got %q", cmd)
	}
}

func TestBuildArgvPreTranscodedIgnoresBitrateCap(t *testing.T) {
	s := Settings{
		SrcPath: "/prepared.ts", IP: "239.1.1.2", Port: 5102, Encap: models.EncapUDP,
		PreTranscoded: true, Bitrate: "2M",
		Profile: models.Profile{Codec: models.CodecH264, ABitrate: "128k"},
	}
	argv := buildArgv("ffmpeg", s, "10.0.0.5")
	cmd := strings.Join(argv, " ")
	if !strings.Contains(cmd, "-c copy") {
		t.Errorf("pre-transcoded channel must stream-copy regardless of bitrate cap, got %q", cmd)
	}
}

func TestBuildArgvBitrateCapTranscodes(t *testing.T) {
	s := Settings{
		SrcPath: "/prepared.ts", IP: "239.1.1.3", Port: 5104, Encap: models.EncapRTP,
		Bitrate: "2M", Profile: models.Profile{Codec: models.CodecH264, Preset: models.PresetFast, ABitrate: "128k"},
	}
	argv := buildArgv("ffmpeg", s, "10.0.0.5")
	cmd := strings.Join(argv, " ")
	if !strings.Contains(cmd, "-b:v 2000k") || !strings.Contains(cmd, "-bufsize 4000k") {
		t.Errorf("expected 2x bufsize rate control, got %q", cmd)
	}
	if !strings.Contains(cmd, "rtp://239.1.1.3:5104") {
		t.Errorf("expected rtp destination, got %q", cmd)
	}
	if !strings.Contains(cmd, "-f rtp_mpegts") {
		t.Errorf("expected rtp_mpegts muxer, got %q", cmd)
	}
}

func TestUpdateSettingsStoppedWorkerReturnsFalse(t *testing.T) {
	w := New(0, "ffmpeg", Settings{SrcPath: "/a.ts"})
	wasRunning := w.UpdateSettings(Settings{SrcPath: "/b.ts"})
	if wasRunning {
		t.Fatal("expected wasRunning=false for a never-started worker")
	}
	if w.Settings().SrcPath != "/b.ts" {
		t.Fatal("expected settings to be applied")
	}
}

func TestResolveNICAddressUnknownInterfaceErrors(t *testing.T) {
	if _, err := ResolveNICAddress("no-such-iface-xyz"); err == nil {
		t.Fatal("expected an error for an unknown interface")
	}
}
