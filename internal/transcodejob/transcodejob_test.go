package transcodejob

import (
	"strings"
	"testing"

	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/models"
)

func progressTick(outTimeUs int64, fps, speed float64) ffmpeg.Progress {
	return ffmpeg.Progress{OutTimeUs: outTimeUs, FPS: fps, Speed: speed}
}

func TestBuildArgvStreamCopy(t *testing.T) {
	j := New(0, "/src.mp4", "/dst.ts", models.Profile{Codec: models.CodecCopy}, 0, "ffmpeg")
	argv := j.buildArgv()
	s := strings.Join(argv, " ")
	if !strings.Contains(s, "-c copy") {
		t.Errorf("expected stream copy argv, got %q", s)
	}
}

func TestBuildArgvReEncode(t *testing.T) {
	profile := models.Profile{
		Codec: models.CodecH265, Preset: models.PresetFast,
		VBitrate: "4M", ABitrate: "128k",
		Resolution: models.Resolution720p, FPS: models.FPS30,
	}
	j := New(1, "/src.mp4", "/dst.ts", profile, 120, "ffmpeg")
	argv := j.buildArgv()
	s := strings.Join(argv, " ")
	if !strings.Contains(s, "-c:v libx265") {
		t.Errorf("expected libx265, got %q", s)
	}
	if !strings.Contains(s, "scale=w=1280:h=720") {
		t.Errorf("expected scale filter, got %q", s)
	}
	if !strings.Contains(s, "-r 30") {
		t.Errorf("expected frame rate, got %q", s)
	}
}

func TestStateStartsIdle(t *testing.T) {
	j := New(0, "/src.mp4", "/dst.ts", models.Profile{Codec: models.CodecCopy}, 0, "ffmpeg")
	if j.State() != StateIdle {
		t.Fatalf("expected idle, got %s", j.State())
	}
	if j.Active() {
		t.Fatal("idle job should not be active")
	}
}

func TestCancelOnIdleJobIsNoop(t *testing.T) {
	j := New(0, "/src.mp4", "/dst.ts", models.Profile{Codec: models.CodecCopy}, 0, "ffmpeg")
	j.Cancel()
	if j.State() != StateIdle {
		t.Fatalf("expected idle, got %s", j.State())
	}
}

func TestProgressUnknownDurationReportsZero(t *testing.T) {
	j := New(0, "/src.mp4", "/dst.ts", models.Profile{Codec: models.CodecCopy}, 0, "ffmpeg")
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()

	var gotPct, gotETA int
	reported := false
	j.reportProgress(progressTick(5_000_000, 25, 1.0), Callbacks{
		OnProgress: func(pct, eta int, fps, speed float64) {
			gotPct, gotETA = pct, eta
			reported = true
		},
	})
	if !reported {
		t.Fatal("expected OnProgress to fire")
	}
	if gotPct != 0 || gotETA != 0 {
		t.Fatalf("expected pct=0 eta=0 for unknown duration, got pct=%d eta=%d", gotPct, gotETA)
	}
}

func TestProgressMonotonicAndCappedAt99(t *testing.T) {
	j := New(0, "/src.mp4", "/dst.ts", models.Profile{Codec: models.CodecCopy}, 100, "ffmpeg")
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()

	var pcts []int
	cb := Callbacks{OnProgress: func(pct, eta int, fps, speed float64) { pcts = append(pcts, pct) }}

	j.reportProgress(progressTick(10_000_000, 25, 1.0), cb)  // 10%
	j.reportProgress(progressTick(50_000_000, 25, 1.0), cb)  // 50%
	j.reportProgress(progressTick(200_000_000, 25, 1.0), cb) // would be 200%, capped at 99

	for i := 1; i < len(pcts); i++ {
		if pcts[i] < pcts[i-1] {
			t.Fatalf("pct not monotonic: %v", pcts)
		}
	}
	if pcts[len(pcts)-1] != 99 {
		t.Fatalf("expected final tick capped at 99, got %d", pcts[len(pcts)-1])
	}
}
