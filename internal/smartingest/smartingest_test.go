package smartingest

import (
	"testing"

	"github.com/lavacaster/broadcaster/internal/models"
)

func h264_1080p_23976(vkbps, akbps int) models.MediaInfo {
	return models.MediaInfo{
		VideoCodec: "h264",
		Width:      1920,
		Height:     1080,
		FPSNum:     24000,
		FPSDen:     1001,
		VideoKbps:  vkbps,
		AudioCodec: "aac",
		AudioKbps:  akbps,
	}
}

func target(codec models.Codec, res models.Resolution, fps models.FPS, vb, ab string) models.Profile {
	return models.Profile{Codec: codec, Resolution: res, FPS: fps, VBitrate: vb, ABitrate: ab}
}

func TestMatchesExactSpecAllows(t *testing.T) {
	info := h264_1080p_23976(5000, 160)
	tgt := target(models.CodecH264, models.Resolution1080p, models.FPS23_976, "8M", "192k")
	if !Matches(info, tgt) {
		t.Fatal("expected remux to be allowed")
	}
}

func TestMatchesRejectsCodecMismatch(t *testing.T) {
	info := h264_1080p_23976(5000, 160)
	tgt := target(models.CodecH265, models.Resolution1080p, models.FPS23_976, "8M", "192k")
	if Matches(info, tgt) {
		t.Fatal("expected codec mismatch to block remux")
	}
}

func TestMatchesRejectsNonAACAudio(t *testing.T) {
	info := h264_1080p_23976(5000, 160)
	info.AudioCodec = "mp3"
	tgt := target(models.CodecH264, models.Resolution1080p, models.FPS23_976, "8M", "192k")
	if Matches(info, tgt) {
		t.Fatal("expected non-AAC audio to block remux")
	}
}

func TestMatchesRejectsResolutionMismatch(t *testing.T) {
	info := h264_1080p_23976(5000, 160)
	tgt := target(models.CodecH264, models.Resolution720p, models.FPS23_976, "8M", "192k")
	if Matches(info, tgt) {
		t.Fatal("expected resolution mismatch to block remux")
	}
}

func TestMatchesAllowsOriginalResolutionAndFPS(t *testing.T) {
	info := h264_1080p_23976(5000, 160)
	tgt := target(models.CodecH264, models.ResolutionOriginal, models.FPSOriginal, "8M", "192k")
	if !Matches(info, tgt) {
		t.Fatal("expected original resolution/fps to always match")
	}
}

func TestMatchesRejectsFPSOutsideTolerance(t *testing.T) {
	info := h264_1080p_23976(5000, 160)
	tgt := target(models.CodecH264, models.Resolution1080p, models.FPS30, "8M", "192k")
	if Matches(info, tgt) {
		t.Fatal("expected fps mismatch beyond tolerance to block remux")
	}
}

func TestMatchesRejectsBitrateAboveTolerance(t *testing.T) {
	info := h264_1080p_23976(12000, 160) // 12Mbps source vs 8M target * 1.2 = 9.6M
	tgt := target(models.CodecH264, models.Resolution1080p, models.FPS23_976, "8M", "192k")
	if Matches(info, tgt) {
		t.Fatal("expected source bitrate > 1.2x target to block remux")
	}
}

func TestMatchesAllowsUnknownBitrate(t *testing.T) {
	info := h264_1080p_23976(0, 0)
	tgt := target(models.CodecH264, models.Resolution1080p, models.FPS23_976, "8M", "192k")
	if !Matches(info, tgt) {
		t.Fatal("expected unknown bitrate to be permissive")
	}
}

func TestMatchesRejectsEmptyProbe(t *testing.T) {
	tgt := target(models.CodecH264, models.ResolutionOriginal, models.FPSOriginal, "8M", "192k")
	if Matches(models.MediaInfo{}, tgt) {
		t.Fatal("expected empty probe info to block remux")
	}
}
