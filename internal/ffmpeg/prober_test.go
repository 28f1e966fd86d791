package ffmpeg

import (
	"context"
	"testing"
)

func TestParseFramerate(t *testing.T) {
	cases := []struct {
		in       string
		num, den int
	}{
		{"30/1", 30, 1},
		{"24000/1001", 24000, 1001},
		{"", 0, 0},
		{"bogus", 0, 0},
		{"30/0", 0, 0},
	}
	for _, c := range cases {
		num, den := parseFramerate(c.in)
		if num != c.num || den != c.den {
			t.Errorf("parseFramerate(%q) = (%d,%d), want (%d,%d)", c.in, num, den, c.num, c.den)
		}
	}
}

func TestBitrateKbpsFallsBackToContainer(t *testing.T) {
	if got := bitrateKbps("", "5000000"); got != 5000 {
		t.Errorf("expected container fallback 5000, got %d", got)
	}
	if got := bitrateKbps("8000000", "5000000"); got != 8000 {
		t.Errorf("expected stream-level 8000, got %d", got)
	}
	if got := bitrateKbps("", ""); got != 0 {
		t.Errorf("expected 0 for unknown, got %d", got)
	}
}

func TestProbeDurationReturnsZeroOnFailure(t *testing.T) {
	p := NewProber("/no/such/ffprobe-binary")
	d := p.ProbeDuration(context.Background(), "/no/such/file.ts")
	if d != 0 {
		t.Errorf("expected 0 on probe failure, got %v", d)
	}
}

func TestProbeVideoInfoEmptyOnFailure(t *testing.T) {
	p := NewProber("/no/such/ffprobe-binary")
	info := p.ProbeVideoInfo(context.Background(), "/no/such/file.ts")
	if !info.Empty() {
		t.Errorf("expected empty MediaInfo on probe failure, got %+v", info)
	}
}
