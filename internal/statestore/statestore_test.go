package statestore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/lavacaster/broadcaster/internal/models"
)

func testDefaults() models.GlobalSettings {
	return models.GlobalSettings{
		MaxChannels: 50, BasePort: 5000, MulticastBase: "239.1.1",
		DefaultEncap: models.EncapUDP, DefaultBitrate: "2M", SourceNIC: "eth0",
		DefaultProfile: models.Profile{Codec: models.CodecH264, Preset: models.PresetFast},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.json"), discardLogger())
	doc := s.Load(testDefaults())
	if doc.Settings.SourceNIC != "eth0" {
		t.Fatalf("expected defaults preserved, got %+v", doc.Settings)
	}
	if len(doc.Channels) != 0 {
		t.Fatalf("expected no channels, got %d", len(doc.Channels))
	}
}

func TestLoadCorruptFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, discardLogger())
	doc := s.Load(testDefaults())
	if doc.Settings.SourceNIC != "eth0" {
		t.Fatalf("expected fallback to defaults, got %+v", doc.Settings)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, discardLogger())

	settings := testDefaults()
	settings.DefaultBitrate = "4M"
	channels := map[int]models.Channel{
		0: {CID: 0, SrcPath: "/src0.mp4", FilePath: "/prepared0.ts", Filename: "zero.mp4", IP: "239.1.1.1", Port: 5000, Encap: models.EncapUDP, Bitrate: "4M", NIC: "eth0", Profile: settings.DefaultProfile},
		3: {CID: 3, SrcPath: "/src3.mp4", FilePath: "/prepared3.ts", Filename: "three.mp4", IP: "239.1.1.4", Port: 5006, Encap: models.EncapRTP, Bitrate: "", PreTranscoded: true, NIC: "eth0", Profile: settings.DefaultProfile},
	}

	if err := s.Save(settings, channels); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	doc := s.Load(testDefaults())
	if doc.Settings.DefaultBitrate != "4M" {
		t.Fatalf("expected round-tripped bitrate, got %q", doc.Settings.DefaultBitrate)
	}
	if len(doc.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(doc.Channels))
	}
	if doc.Channels[3].PreTranscoded != true || doc.Channels[3].Encap != models.EncapRTP {
		t.Fatalf("channel 3 did not round-trip correctly: %+v", doc.Channels[3])
	}
}

func TestLoadLegacyFlatFormatUpgrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
		"global_bitrate": "3M",
		"selected_nic": "eth1",
		"media_path": "/media",
		"channels": {
			"1": {"src_path": "/a.mp4", "filepath": "/a.ts", "filename": "a.mp4", "ip": "239.1.1.2", "port": 5002}
		}
	}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, discardLogger())
	doc := s.Load(testDefaults())

	if doc.Settings.DefaultBitrate != "3M" || doc.Settings.SourceNIC != "eth1" || doc.Settings.MediaDir != "/media" {
		t.Fatalf("expected legacy fields upgraded, got %+v", doc.Settings)
	}
	ch, ok := doc.Channels[1]
	if !ok {
		t.Fatal("expected channel 1 to be present")
	}
	if ch.Encap != models.EncapUDP {
		t.Fatalf("expected missing encap to fall back to default, got %q", ch.Encap)
	}
}

func TestLoadSkipsCommentKeysAndBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := `{
		"_readme": "note",
		"global_streaming": {"source_nic": "eth0"},
		"channels": {
			"_comment": "ignore me",
			"not-a-number": {"filepath": "/x.ts"},
			"2": {"filepath": ""}
		}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, discardLogger())
	doc := s.Load(testDefaults())
	if len(doc.Channels) != 0 {
		t.Fatalf("expected all malformed/comment entries skipped, got %v", doc.Channels)
	}
}
