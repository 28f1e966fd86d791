package models

import (
	"regexp"
	"strconv"
	"strings"
)

// bitrateLiteral matches the exact grammar the REST surface validates
// against (§6): digits, optional decimal part, mandatory k/K/m/M suffix.
var bitrateLiteral = regexp.MustCompile(`^\d+(\.\d+)?[kKmM]$`)

// ValidBitrate reports whether s is a syntactically valid bitrate literal.
// An empty string is valid and means "passthrough" (no cap).
func ValidBitrate(s string) bool {
	if s == "" {
		return true
	}
	return bitrateLiteral.MatchString(s)
}

// ParseBitrateKbps converts a validated bitrate literal ("8M", "750k") to
// kbps. Callers must check ValidBitrate first; an invalid literal returns 0.
func ParseBitrateKbps(s string) int {
	if s == "" || !bitrateLiteral.MatchString(s) {
		return 0
	}
	unit := s[len(s)-1:]
	numPart := s[:len(s)-1]
	val, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(unit) {
	case "m":
		return int(val * 1000)
	case "k":
		return int(val)
	default:
		return 0
	}
}

// BufferSizeKbps returns the 2x-target buffer size FFmpeg's `-bufsize`
// expects, in kbps (§4.3, §4.4).
func BufferSizeKbps(targetKbps int) int {
	return targetKbps * 2
}
