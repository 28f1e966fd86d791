// Package models defines the channel lifecycle controller's domain types:
// channels, transcode profiles, global settings, and the semantic error
// kinds used across the registry, state store, and job components.
package models

import "fmt"

// Encapsulation is the wire framing used to deliver a channel's packets.
type Encapsulation string

const (
	EncapUDP Encapsulation = "udp"
	EncapRTP Encapsulation = "rtp"
)

// Codec identifies a transcode target's video codec, or the passthrough
// sentinel "copy".
type Codec string

const (
	CodecCopy Codec = "copy"
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// Preset is an encoder speed/quality tradeoff knob.
type Preset string

const (
	PresetUltrafast Preset = "ultrafast"
	PresetSuperfast Preset = "superfast"
	PresetFast      Preset = "fast"
	PresetMedium    Preset = "medium"
	PresetSlow      Preset = "slow"
)

// Resolution is a named output frame size, or "original" to keep the
// source's dimensions.
type Resolution string

const (
	ResolutionOriginal Resolution = "original"
	Resolution720p     Resolution = "720p"
	Resolution1080p    Resolution = "1080p"
	Resolution1440p    Resolution = "1440p"
	Resolution4k       Resolution = "4k"
)

// ResolutionDims maps a named resolution to its pixel dimensions.
var ResolutionDims = map[Resolution][2]int{
	Resolution720p:  {1280, 720},
	Resolution1080p: {1920, 1080},
	Resolution1440p: {2560, 1440},
	Resolution4k:    {3840, 2160},
}

// FPS is a named output frame rate, or "original" to keep the source's rate.
// Fractional NTSC rates are spelled out exactly as the validation list
// requires; FPSFraction resolves them to numerator/denominator.
type FPS string

const (
	FPSOriginal FPS = "original"
	FPS23_976   FPS = "23.976"
	FPS24       FPS = "24"
	FPS25       FPS = "25"
	FPS29_97    FPS = "29.97"
	FPS30       FPS = "30"
	FPS50       FPS = "50"
	FPS59_94    FPS = "59.94"
	FPS60       FPS = "60"
)

// ValidFPS is the accepted FPS vocabulary (§6 validation).
var ValidFPS = map[FPS]bool{
	FPSOriginal: true, FPS23_976: true, FPS24: true, FPS25: true,
	FPS29_97: true, FPS30: true, FPS50: true, FPS59_94: true, FPS60: true,
}

// ValidPresets is the accepted preset vocabulary.
var ValidPresets = map[Preset]bool{
	PresetUltrafast: true, PresetSuperfast: true, PresetFast: true,
	PresetMedium: true, PresetSlow: true,
}

// ValidResolutions is the accepted resolution vocabulary.
var ValidResolutions = map[Resolution]bool{
	ResolutionOriginal: true, Resolution720p: true, Resolution1080p: true,
	Resolution1440p: true, Resolution4k: true,
}

// FPSFraction returns the numerator/denominator pair FFmpeg expects for
// a named rate, using the N/1001 convention for the fractional NTSC rates.
func FPSFraction(f FPS) (num, den int, ok bool) {
	switch f {
	case FPS23_976:
		return 24000, 1001, true
	case FPS24:
		return 24, 1, true
	case FPS25:
		return 25, 1, true
	case FPS29_97:
		return 30000, 1001, true
	case FPS30:
		return 30, 1, true
	case FPS50:
		return 50, 1, true
	case FPS59_94:
		return 60000, 1001, true
	case FPS60:
		return 60, 1, true
	default:
		return 0, 0, false
	}
}

// FPSFloat returns the decimal frame rate for a named rate.
func FPSFloat(f FPS) (float64, bool) {
	num, den, ok := FPSFraction(f)
	if !ok {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// Profile is the tuple (codec, preset, vbitrate, abitrate, resolution, fps)
// that fully describes a transcode/streaming target.
type Profile struct {
	Codec      Codec      `json:"codec"`
	Preset     Preset     `json:"preset"`
	VBitrate   string     `json:"vbitrate"` // e.g. "8M", "750k"
	ABitrate   string     `json:"abitrate"` // e.g. "192k"
	Resolution Resolution `json:"resolution"`
	FPS        FPS        `json:"fps"`
}

// Clone returns a copy of the profile; Profile has no reference fields so
// this is just a value copy, kept as a named method so callers never reach
// into the registry's internal value by pointer.
func (p Profile) Clone() Profile { return p }

// Channel is the persisted, read-only-snapshot metadata for one channel
// index. The registry is the only component that mutates a live Channel;
// everything else sees a Clone().
type Channel struct {
	CID            int           `json:"cid"`
	SrcPath        string        `json:"src_path"`
	FilePath       string        `json:"filepath"`
	Filename       string        `json:"filename"`
	IP             string        `json:"ip"`
	Port           int           `json:"port"`
	Encap          Encapsulation `json:"encap"`
	Loop           bool          `json:"loop"`
	Bitrate        string        `json:"bitrate"` // "" means passthrough
	Profile        Profile       `json:"profile"`
	PreTranscoded  bool          `json:"pre_transcoded"`
	NIC            string        `json:"nic,omitempty"`
	Running        bool          `json:"running"`
	Thumb          string        `json:"thumb,omitempty"`
}

// Passthrough reports whether the channel streams without a bitrate cap.
func (c Channel) Passthrough() bool { return c.Bitrate == "" }

// Clone returns a deep copy safe to hand to a caller outside the registry
// lock.
func (c Channel) Clone() Channel { return c }

// NetworkKeys is the set of channel fields whose update requires a stream
// worker restart (§4.5 update_channel partition).
type NetworkKeys struct {
	IP      *string
	Port    *int
	Encap   *Encapsulation
	Bitrate *string
	Loop    *bool
	NIC     *string
}

// ProfileKeys is the set of channel fields whose update never touches the
// running stream worker (§4.5, testable property 9).
type ProfileKeys struct {
	Codec    *Codec
	Preset   *Preset
	VBitrate *string
	ABitrate *string
}

// HasAny reports whether any network key was actually supplied.
func (n NetworkKeys) HasAny() bool {
	return n.IP != nil || n.Port != nil || n.Encap != nil ||
		n.Bitrate != nil || n.Loop != nil || n.NIC != nil
}

// HasAny reports whether any profile key was actually supplied.
func (p ProfileKeys) HasAny() bool {
	return p.Codec != nil || p.Preset != nil || p.VBitrate != nil || p.ABitrate != nil
}

// ChannelUpdate bundles a partitioned update_channel call.
type ChannelUpdate struct {
	Network NetworkKeys
	Profile ProfileKeys
}

// GlobalSettings are the mutable, registry-wide defaults (§3).
type GlobalSettings struct {
	MaxChannels    int     `json:"max_channels"`
	BasePort       int     `json:"base_port"`
	MulticastBase  string  `json:"multicast_base"`
	DefaultEncap   Encapsulation `json:"default_encap"`
	DefaultLoop    bool    `json:"default_loop"`
	DefaultBitrate string  `json:"default_bitrate"`
	SourceNIC      string  `json:"source_nic"`
	MonitorNIC     string  `json:"monitor_nic"`
	MediaDir       string  `json:"media_dir"`
	AutoStart      bool    `json:"auto_start"`
	DefaultProfile Profile `json:"default_profile"`
}

// Address returns the deterministic multicast (ip, port) pair for cid,
// per the §3 invariant. Callers must already have validated
// cid < MaxChannels and MaxChannels <= 254 (config.Validate's job).
func (g GlobalSettings) Address(cid int) (ip string, port int) {
	octet := (cid % 254) + 1
	return fmt.Sprintf("%s.%d", g.MulticastBase, octet), g.BasePort + cid*2
}

// MediaInfo is the prober's output record (§4.2). A zero-value MediaInfo
// (VideoCodec == "") represents the "unknown" / probe-failure case.
type MediaInfo struct {
	VideoCodec  string
	Width       int
	Height      int
	FPSNum      int
	FPSDen      int
	VideoKbps   int // 0 = unknown
	AudioCodec  string
	AudioKbps   int // 0 = unknown
	DurationSec float64
}

// Empty reports whether this is the probe-failure sentinel.
func (m MediaInfo) Empty() bool { return m.VideoCodec == "" }

// FPSValue returns the decimal frame rate, or 0 if unknown/unparseable.
func (m MediaInfo) FPSValue() float64 {
	if m.FPSDen == 0 {
		return 0
	}
	return float64(m.FPSNum) / float64(m.FPSDen)
}
