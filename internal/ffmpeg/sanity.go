package ffmpeg

import (
	"context"
	"errors"
	"os"

	"github.com/asticode/go-astits"
)

// sanityCheckPacketLimit bounds how many TS packets SanityCheckMpegTS
// reads before giving up; a well-formed remux carries PES data within
// the first few packets, so this never has to read the whole file.
const sanityCheckPacketLimit = 512

// SanityCheckMpegTS demuxes the first few hundred packets of path and
// confirms at least one PID carries PES data (SPEC_FULL §2.2 domain
// stack: go-astits, reading the file directly), catching a
// truncated or corrupt remux/transcode before channel_ready fires
// rather than discovering it at the multicast socket. It never returns
// an error to the caller — a file that can't even be opened fails the
// check the same as one with no PES packets.
func SanityCheckMpegTS(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dmx := astits.NewDemuxer(context.Background(), f)
	for i := 0; i < sanityCheckPacketLimit; i++ {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			return false
		}
		if d.PES != nil {
			return true
		}
	}
	return false
}
