// Package statestore implements the State Store (§4.6): the atomic,
// human-readable JSON document that survives a restart. It persists the
// global defaults and every channel's metadata, and understands both the
// current sectioned layout and an older flat layout so upgrading in
// place never loses a deployment's existing channels. Grounded on the
// teacher's rolling-log atomic-rename write discipline
// (internal/observability/rolling.go, itself adapted from tvarr
// internal/service/logs/service.go) applied to a single JSON document
// instead of a line ring.
package statestore

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/lavacaster/broadcaster/internal/models"
)

// Document is the in-memory form of the state file: global settings plus
// every channel's persisted metadata, keyed by cid.
type Document struct {
	Settings models.GlobalSettings
	Channels map[int]models.Channel
}

// Store reads and atomically rewrites the state file at Path on every
// mutating registry operation (§4.6 write-on-every-mutation).
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore builds a Store bound to path. No file I/O happens until
// Load or Save is called.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// sectioned is the on-disk shape the store writes (§4.6): a commented
// "_readme" key plus three sections. The "_"-prefix is the general
// convention for keys Load skips entirely, used by operators to leave
// notes in the file without the store choking on them.
type sectioned struct {
	Readme          string               `json:"_readme,omitempty"`
	GlobalTranscode globalTranscodeBlock `json:"global_transcode"`
	GlobalStreaming globalStreamingBlock `json:"global_streaming"`
	Channels        map[string]json.RawMessage `json:"channels"`
}

type globalTranscodeBlock struct {
	DefaultProfile models.Profile `json:"default_profile"`
}

type globalStreamingBlock struct {
	MaxChannels    int                  `json:"max_channels"`
	BasePort       int                  `json:"base_port"`
	MulticastBase  string               `json:"multicast_base"`
	DefaultEncap   models.Encapsulation `json:"default_encap"`
	DefaultLoop    bool                 `json:"default_loop"`
	DefaultBitrate string               `json:"default_bitrate"`
	SourceNIC      string               `json:"source_nic"`
	MonitorNIC     string               `json:"monitor_nic"`
	MediaDir       string               `json:"media_dir"`
	AutoStart      bool                 `json:"auto_start"`
}

const readmeText = "Hand-editing is supported; unknown top-level keys and any key " +
	"starting with \"_\" are ignored on load. Restart to apply manual edits."

// persistedChannel is the on-disk projection of a models.Channel: the
// full metadata minus the transient fields (§4.6 "channels map is
// metadata minus transient fields running, thumb"). running reflects
// the worker's live state and thumb is re-derived from cid at restore
// time, so neither belongs in the hand-editable document.
type persistedChannel struct {
	CID           int                  `json:"cid"`
	SrcPath       string               `json:"src_path"`
	FilePath      string               `json:"filepath"`
	Filename      string               `json:"filename"`
	IP            string               `json:"ip"`
	Port          int                  `json:"port"`
	Encap         models.Encapsulation `json:"encap"`
	Loop          bool                 `json:"loop"`
	Bitrate       string               `json:"bitrate"`
	Profile       models.Profile       `json:"profile"`
	PreTranscoded bool                 `json:"pre_transcoded"`
	NIC           string               `json:"nic,omitempty"`
}

func toPersistedChannel(ch models.Channel) persistedChannel {
	return persistedChannel{
		CID: ch.CID, SrcPath: ch.SrcPath, FilePath: ch.FilePath, Filename: ch.Filename,
		IP: ch.IP, Port: ch.Port, Encap: ch.Encap, Loop: ch.Loop, Bitrate: ch.Bitrate,
		Profile: ch.Profile, PreTranscoded: ch.PreTranscoded, NIC: ch.NIC,
	}
}

// Load reads the state file and returns a Document. A missing file is
// treated as "start from defaults" without a log line; an unreadable
// file or unrecognized/corrupt JSON is logged at WARN and likewise
// treated as "start from defaults" rather than a fatal error (§4.6
// recovery discipline, §8 S5); defaults supplies every global field
// this file doesn't override.
func (s *Store) Load(defaults models.GlobalSettings) *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read state file, starting from defaults", slog.String("error", err.Error()))
		}
		return emptyDocument(defaults)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("state file is corrupt, starting from defaults", slog.String("error", err.Error()))
		return emptyDocument(defaults)
	}

	if _, sectionedFormat := raw["global_streaming"]; sectionedFormat {
		return s.loadSectioned(raw, defaults)
	}
	if _, legacyFormat := raw["global_bitrate"]; legacyFormat {
		return s.loadLegacy(raw, defaults)
	}

	s.logger.Warn("state file has an unrecognized shape, starting from defaults")
	return emptyDocument(defaults)
}

func emptyDocument(defaults models.GlobalSettings) *Document {
	return &Document{Settings: defaults, Channels: make(map[int]models.Channel)}
}

func (s *Store) loadSectioned(raw map[string]json.RawMessage, defaults models.GlobalSettings) *Document {
	settings := defaults

	if gsRaw, ok := raw["global_streaming"]; ok {
		gs := globalStreamingBlock{
			MaxChannels: settings.MaxChannels, BasePort: settings.BasePort, MulticastBase: settings.MulticastBase,
			DefaultEncap: settings.DefaultEncap, DefaultLoop: settings.DefaultLoop, DefaultBitrate: settings.DefaultBitrate,
			SourceNIC: settings.SourceNIC, MonitorNIC: settings.MonitorNIC, MediaDir: settings.MediaDir, AutoStart: settings.AutoStart,
		}
		if err := json.Unmarshal(gsRaw, &gs); err == nil {
			settings.MaxChannels = gs.MaxChannels
			settings.BasePort = gs.BasePort
			settings.MulticastBase = gs.MulticastBase
			settings.DefaultEncap = gs.DefaultEncap
			settings.DefaultLoop = gs.DefaultLoop
			settings.DefaultBitrate = gs.DefaultBitrate
			settings.SourceNIC = gs.SourceNIC
			settings.MonitorNIC = gs.MonitorNIC
			settings.MediaDir = gs.MediaDir
			settings.AutoStart = gs.AutoStart
		}
	}
	if gtRaw, ok := raw["global_transcode"]; ok {
		gt := globalTranscodeBlock{DefaultProfile: settings.DefaultProfile}
		if err := json.Unmarshal(gtRaw, &gt); err == nil {
			settings.DefaultProfile = gt.DefaultProfile
		}
	}

	var channelsRaw map[string]json.RawMessage
	_ = json.Unmarshal(raw["channels"], &channelsRaw)

	return &Document{Settings: settings, Channels: s.decodeChannels(channelsRaw, settings)}
}

// loadLegacy understands the flat predecessor format: global_bitrate,
// selected_nic, and media_path sit at the top level instead of inside
// global_streaming, and there is no global_transcode section at all
// (§4.6 upgrade compatibility, §8 property 4).
func (s *Store) loadLegacy(raw map[string]json.RawMessage, defaults models.GlobalSettings) *Document {
	settings := defaults

	var bitrate, nic, mediaPath string
	if v, ok := raw["global_bitrate"]; ok {
		_ = json.Unmarshal(v, &bitrate)
		settings.DefaultBitrate = bitrate
	}
	if v, ok := raw["selected_nic"]; ok {
		_ = json.Unmarshal(v, &nic)
		settings.SourceNIC = nic
	}
	if v, ok := raw["media_path"]; ok {
		_ = json.Unmarshal(v, &mediaPath)
		settings.MediaDir = mediaPath
	}

	var channelsRaw map[string]json.RawMessage
	_ = json.Unmarshal(raw["channels"], &channelsRaw)

	return &Document{Settings: settings, Channels: s.decodeChannels(channelsRaw, settings)}
}

// decodeChannels decodes each channel entry leniently: a key missing
// from the persisted entry falls back to the current global default for
// that field (§4.6 recovery discipline), and any key prefixed with "_"
// is skipped entirely, whether at this level or nested.
func (s *Store) decodeChannels(raw map[string]json.RawMessage, defaults models.GlobalSettings) map[int]models.Channel {
	out := make(map[int]models.Channel, len(raw))
	for key, entryRaw := range raw {
		if len(key) > 0 && key[0] == '_' {
			continue
		}
		cid, err := strconv.Atoi(key)
		if err != nil {
			s.logger.Warn("skipping channel entry with non-numeric key", slog.String("key", key))
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entryRaw, &fields); err != nil {
			s.logger.Warn("skipping unparseable channel entry", slog.Int("cid", cid))
			continue
		}

		ch := models.Channel{
			CID:           cid,
			Encap:         defaults.DefaultEncap,
			Loop:          defaults.DefaultLoop,
			Bitrate:       defaults.DefaultBitrate,
			NIC:           defaults.SourceNIC,
			Profile:       defaults.DefaultProfile,
		}
		decodeInto(fields, "src_path", &ch.SrcPath)
		decodeInto(fields, "filepath", &ch.FilePath)
		decodeInto(fields, "filename", &ch.Filename)
		decodeInto(fields, "ip", &ch.IP)
		decodeInto(fields, "port", &ch.Port)
		decodeInto(fields, "encap", &ch.Encap)
		decodeInto(fields, "loop", &ch.Loop)
		decodeInto(fields, "bitrate", &ch.Bitrate)
		decodeInto(fields, "profile", &ch.Profile)
		decodeInto(fields, "pre_transcoded", &ch.PreTranscoded)
		decodeInto(fields, "nic", &ch.NIC)
		decodeInto(fields, "thumb", &ch.Thumb)

		if ch.FilePath == "" {
			s.logger.Warn("skipping channel entry with no prepared artifact path", slog.Int("cid", cid))
			continue
		}
		out[cid] = ch
	}
	return out
}

func decodeInto(fields map[string]json.RawMessage, key string, dst any) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// Save atomically rewrites the state file with the given settings and
// channel set (§4.6). I/O errors are returned for the caller to log;
// they never panic or block a subsequent Save.
func (s *Store) Save(settings models.GlobalSettings, channels map[int]models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cids := make([]int, 0, len(channels))
	for cid := range channels {
		cids = append(cids, cid)
	}
	sort.Ints(cids)

	channelsOut := make(map[string]json.RawMessage, len(channels))
	for _, cid := range cids {
		b, err := json.MarshalIndent(toPersistedChannel(channels[cid]), "", "  ")
		if err != nil {
			return err
		}
		channelsOut[strconv.Itoa(cid)] = b
	}

	doc := sectioned{
		Readme: readmeText,
		GlobalTranscode: globalTranscodeBlock{DefaultProfile: settings.DefaultProfile},
		GlobalStreaming: globalStreamingBlock{
			MaxChannels: settings.MaxChannels, BasePort: settings.BasePort,
			MulticastBase: settings.MulticastBase, DefaultEncap: settings.DefaultEncap,
			DefaultLoop: settings.DefaultLoop, DefaultBitrate: settings.DefaultBitrate,
			SourceNIC: settings.SourceNIC, MonitorNIC: settings.MonitorNIC,
			MediaDir: settings.MediaDir, AutoStart: settings.AutoStart,
		},
		Channels: channelsOut,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
