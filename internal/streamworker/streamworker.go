// Package streamworker implements the long-lived child that continuously
// emits a prepared artifact to a multicast destination (§4.4). A Worker
// is owned by exactly one channel and lives across UpdateSettings calls;
// a settings change always stops the current child first and leaves
// restart as the caller's decision, keeping the exposed policy minimal
// (§4.4). Grounded on the teacher's relay session lifecycle (tvarr
// internal/relay/manager.go RelaySession start/stop/rebind under lock),
// rewritten around multicast UDP/RTP emission instead of HTTP relay
// delivery.
package streamworker

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/models"
	"github.com/lavacaster/broadcaster/internal/supervisor"
)

// Settings are the knobs a Worker streams with (§3 Stream Worker).
type Settings struct {
	SrcPath       string // prepared artifact
	IP            string
	Port          int
	Encap         models.Encapsulation
	Bitrate       string // "" = passthrough
	Loop          bool
	NIC           string
	PreTranscoded bool
	Profile       models.Profile
}

// Passthrough reports whether this worker streams without transcoding:
// a pre-transcoded channel always stream-copies regardless of any
// bitrate cap (§3, §8 property 5); otherwise passthrough means no cap
// was set.
func (s Settings) Passthrough() bool {
	return s.PreTranscoded || s.Bitrate == ""
}

// Worker streams Settings.SrcPath to (Settings.IP, Settings.Port)
// indefinitely while running.
type Worker struct {
	CID        int
	FFmpegPath string

	mu       sync.Mutex
	settings Settings
	cancel   context.CancelFunc
	handle   *supervisor.Handle
	running  bool
	stopping bool
	onStop   func(cid int)
}

// New builds a stopped Worker with the given initial settings.
func New(cid int, ffmpegPath string, settings Settings) *Worker {
	return &Worker{CID: cid, FFmpegPath: ffmpegPath, settings: settings}
}

// Settings returns a copy of the worker's current settings.
func (w *Worker) Settings() Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// Running reports whether the streaming child is currently active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start launches the streaming child. onStop fires when the child exits
// on its own (natural EOF with Loop=false), never on an explicit Stop.
func (w *Worker) Start(onStop func(cid int)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	localAddr, err := ResolveNICAddress(w.settings.NIC)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("resolving source NIC %q: %w", w.settings.NIC, err)
	}

	argv := buildArgv(w.FFmpegPath, w.settings, localAddr)
	ctx, cancel := context.WithCancel(context.Background())

	h, err := supervisor.Spawn(ctx, argv, supervisor.StdoutDiscard)
	if err != nil {
		cancel()
		w.mu.Unlock()
		return err
	}

	w.cancel = cancel
	w.handle = h
	w.running = true
	w.stopping = false
	w.onStop = onStop
	w.mu.Unlock()

	go w.watch(h)
	return nil
}

func (w *Worker) watch(h *supervisor.Handle) {
	h.Wait()

	w.mu.Lock()
	explicit := w.stopping
	w.running = false
	onStop := w.onStop
	w.mu.Unlock()

	if !explicit && onStop != nil {
		onStop(w.CID)
	}
}

// Stop terminates the streaming child with the grace window
// (supervisor.DefaultGrace, 3s per §4.1/§4.4) and blocks until it has
// exited. Stop is idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.stopping = true
	h := w.handle
	cancel := w.cancel
	w.mu.Unlock()

	supervisor.Stop(h, supervisor.DefaultGrace)
	if cancel != nil {
		cancel()
	}
}

// UpdateSettings stops the running child (if any) before applying the
// new settings, then returns whether the worker had been running — the
// caller (the Channel Registry) decides whether to restart (§4.4, §4.5,
// §8 property 9).
func (w *Worker) UpdateSettings(s Settings) (wasRunning bool) {
	wasRunning = w.Running()
	if wasRunning {
		w.Stop()
	}
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
	return wasRunning
}

func buildArgv(ffmpegPath string, s Settings, localAddr string) []string {
	b := ffmpeg.NewCommandBuilder(ffmpegPath).ReadNativeRate()
	if s.Loop {
		b = b.LoopForever()
	}
	b = b.Input(s.SrcPath)

	if s.Passthrough() {
		b = b.StreamCopy()
	} else {
		targetKbps := models.ParseBitrateKbps(s.Bitrate)
		b = b.VideoEncode(s.Profile.Codec, s.Profile.Preset, targetKbps).AudioAAC(s.Profile.ABitrate)
	}

	var dst string
	if s.Encap == models.EncapRTP {
		dst = ffmpeg.RTPOutput(s.IP, s.Port, localAddr)
	} else {
		dst = ffmpeg.UDPOutput(s.IP, s.Port, localAddr)
	}

	return b.StreamOutput(s.Encap, dst).Build()
}

// ResolveNICAddress looks up the IPv4 address bound to the named network
// interface (§4.4 "localaddr = the IPv4 address of the configured source
// NIC, looked up via an OS interface query").
func ResolveNICAddress(nic string) (string, error) {
	iface, err := net.InterfaceByName(nic)
	if err != nil {
		return "", err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("no IPv4 address bound to interface %s", nic)
}
