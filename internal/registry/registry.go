// Package registry implements the Channel Registry (§4.5): the system's
// single point of truth, an in-memory authoritative map of channel index
// to metadata and workers. All mutating operations acquire the
// registry-wide exclusive lock; spawning or stopping children happens
// with the lock released, using handles captured under the lock (§5).
// Grounded on the teacher's mutex-guarded session map (tvarr
// internal/relay/manager.go Manager: GetOrCreateSession, cleanupLoop,
// idempotent Close), rewritten for channels instead of relay sessions
// and split into a channel map plus an independent transcode-job map
// (a Transcode Job can exist, per §3, before its channel is registered —
// completion of the job is what triggers registration).
package registry

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/lavacaster/broadcaster/internal/eventbus"
	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/models"
	"github.com/lavacaster/broadcaster/internal/observability"
	"github.com/lavacaster/broadcaster/internal/statestore"
	"github.com/lavacaster/broadcaster/internal/streamworker"
	"github.com/lavacaster/broadcaster/internal/transcodejob"
)

type channelEntry struct {
	meta   models.Channel
	worker *streamworker.Worker
}

// Store is the persistence dependency the registry flushes to on every
// mutating operation (§4.6). statestore.Store satisfies it; tests may
// substitute a fake.
type Store interface {
	Save(settings models.GlobalSettings, channels map[int]models.Channel) error
}

// Registry is the channel lifecycle controller's single point of truth.
type Registry struct {
	mu       sync.RWMutex
	settings models.GlobalSettings
	channels map[int]*channelEntry
	jobs     map[int]*transcodejob.Job

	bus        *eventbus.Bus
	store      Store
	ffmpegPath string
	logger     *slog.Logger

	prober *ffmpeg.Prober
	dirs   Dirs
}

// Dirs are the three content-addressed directories Upload reads from
// and writes to (§6 filesystem layout): one for uploaded originals, one
// for prepared artifacts, one for thumbnails.
type Dirs struct {
	OriginalsDir string
	PreparedDir  string
	ThumbDir     string
}

// WithProber attaches the Prober Upload uses to decide remux vs.
// re-encode (§4.8) and to estimate the thumbnail seek point. Optional:
// a registry with no prober treats every upload as an unknown-info
// source, which Smart Ingest always blocks (§4.8 "missing probe info
// blocks remux").
func (r *Registry) WithProber(p *ffmpeg.Prober) *Registry {
	r.prober = p
	return r
}

// WithDirs attaches the filesystem layout Upload reads from and writes
// to. Required before calling Upload.
func (r *Registry) WithDirs(d Dirs) *Registry {
	r.dirs = d
	return r
}

// WithFFmpeg attaches the resolved ffmpeg binary path, overriding the one
// passed to New. Used when the caller builds the registry before running
// binary detection (tvarr-style "construct, then probe the runtime").
func (r *Registry) WithFFmpeg(path string) *Registry {
	r.ffmpegPath = path
	return r
}

// New builds an empty Registry. Per §9's preserved "StreamManager v8"
// open question, New logs a "component initialized" line itself, before
// any caller has a chance to call Restore — so a corrupt state file is
// always reported against an already-initialized registry.
func New(settings models.GlobalSettings, bus *eventbus.Bus, store Store, ffmpegPath string, logger *slog.Logger) *Registry {
	r := &Registry{
		settings:   settings,
		channels:   make(map[int]*channelEntry),
		jobs:       make(map[int]*transcodejob.Job),
		bus:        bus,
		store:      store,
		ffmpegPath: ffmpegPath,
		logger:     logger,
	}
	observability.System(context.Background(), logger, "registry initialized")
	return r
}

// AddChannelParams is the add_channel upsert's argument bundle (§4.5).
type AddChannelParams struct {
	CID           int
	SrcPath       string
	PreparedPath  string
	Filename      string
	Encap         *models.Encapsulation
	Loop          *bool
	Bitrate       *string
	Profile       *models.Profile
	PreTranscoded bool
	NIC           string
	Thumb         string
}

// AddChannel is the idempotent add_channel upsert (§4.5). If a worker
// already exists for cid it is rebound to the new prepared path and
// pre_transcoded flag but is *not* restarted; otherwise a worker is
// created at the deterministic (ip, port) for cid (§3).
func (r *Registry) AddChannel(p AddChannelParams) (models.Channel, error) {
	if p.CID < 0 || p.CID >= r.settings.MaxChannels {
		return models.Channel{}, models.NewValidationError("cid", models.ErrCIDOutOfRange.Error())
	}

	r.mu.Lock()
	ip, port := r.settings.Address(p.CID)

	encap := r.settings.DefaultEncap
	if p.Encap != nil {
		encap = *p.Encap
	}
	loop := r.settings.DefaultLoop
	if p.Loop != nil {
		loop = *p.Loop
	}
	bitrate := r.settings.DefaultBitrate
	if p.Bitrate != nil {
		bitrate = *p.Bitrate
	}
	profile := r.settings.DefaultProfile
	if p.Profile != nil {
		profile = *p.Profile
	}
	nic := p.NIC
	if nic == "" {
		nic = r.settings.SourceNIC
	}

	entry, exists := r.channels[p.CID]
	settings := streamworker.Settings{
		SrcPath: p.PreparedPath, IP: ip, Port: port, Encap: encap,
		Bitrate: bitrate, Loop: loop, NIC: nic,
		PreTranscoded: p.PreTranscoded, Profile: profile,
	}

	var worker *streamworker.Worker
	if exists {
		worker = entry.worker
		worker.UpdateSettings(settings)
	} else {
		worker = streamworker.New(p.CID, r.ffmpegPath, settings)
	}

	meta := models.Channel{
		CID: p.CID, SrcPath: p.SrcPath, FilePath: p.PreparedPath, Filename: p.Filename,
		IP: ip, Port: port, Encap: encap, Loop: loop, Bitrate: bitrate, Profile: profile,
		PreTranscoded: p.PreTranscoded, NIC: nic, Running: worker.Running(), Thumb: p.Thumb,
	}
	r.channels[p.CID] = &channelEntry{meta: meta, worker: worker}
	r.mu.Unlock()

	r.flush()
	r.bus.Publish(eventbus.Event{
		Type: eventbus.ChannelReady, CID: p.CID,
		Payload: eventbus.ChannelReadyPayload{
			Filename: meta.Filename, IP: meta.IP, Port: meta.Port, Encap: string(meta.Encap),
			Bitrate: meta.Bitrate, Loop: meta.Loop, Codec: string(meta.Profile.Codec),
			Preset: string(meta.Profile.Preset), VBitrate: meta.Profile.VBitrate,
			ABitrate: meta.Profile.ABitrate, ThumbURL: meta.Thumb,
		},
	})
	return meta.Clone(), nil
}

// RemoveChannel cancels any active transcode job, stops the worker,
// drops both from the registry, and returns the file paths the caller
// should erase (src, prepared, thumbnail) (§4.5).
func (r *Registry) RemoveChannel(cid int) (srcPath, filePath, thumb string, err error) {
	r.mu.Lock()
	entry, ok := r.channels[cid]
	job := r.jobs[cid]
	if !ok {
		r.mu.Unlock()
		return "", "", "", models.NewNotFoundError("channel", strconv.Itoa(cid))
	}
	delete(r.channels, cid)
	delete(r.jobs, cid)
	meta := entry.meta
	worker := entry.worker
	r.mu.Unlock()

	if job != nil {
		job.Cancel()
	}
	worker.Stop()

	r.flush()
	return meta.SrcPath, meta.FilePath, meta.Thumb, nil
}

// UpdateChannel partitions update into network keys and profile keys
// (§4.5). Only network-key changes are propagated to the worker, and
// only those report wasRunning=true (§8 property 9).
func (r *Registry) UpdateChannel(cid int, update models.ChannelUpdate) (wasRunning bool, err error) {
	r.mu.Lock()
	entry, ok := r.channels[cid]
	if !ok {
		r.mu.Unlock()
		return false, models.NewNotFoundError("channel", strconv.Itoa(cid))
	}
	meta := entry.meta
	worker := entry.worker

	if update.Profile.Codec != nil {
		meta.Profile.Codec = *update.Profile.Codec
	}
	if update.Profile.Preset != nil {
		meta.Profile.Preset = *update.Profile.Preset
	}
	if update.Profile.VBitrate != nil {
		meta.Profile.VBitrate = *update.Profile.VBitrate
	}
	if update.Profile.ABitrate != nil {
		meta.Profile.ABitrate = *update.Profile.ABitrate
	}

	if update.Network.IP != nil {
		meta.IP = *update.Network.IP
	}
	if update.Network.Port != nil {
		meta.Port = *update.Network.Port
	}
	if update.Network.Encap != nil {
		meta.Encap = *update.Network.Encap
	}
	if update.Network.Bitrate != nil {
		meta.Bitrate = *update.Network.Bitrate
	}
	if update.Network.Loop != nil {
		meta.Loop = *update.Network.Loop
	}
	if update.Network.NIC != nil {
		meta.NIC = *update.Network.NIC
	}

	if update.Network.HasAny() {
		wasRunning = worker.UpdateSettings(streamworker.Settings{
			SrcPath: meta.FilePath, IP: meta.IP, Port: meta.Port, Encap: meta.Encap,
			Bitrate: meta.Bitrate, Loop: meta.Loop, NIC: meta.NIC,
			PreTranscoded: meta.PreTranscoded, Profile: meta.Profile,
		})
		meta.Running = worker.Running()
	}

	entry.meta = meta
	r.mu.Unlock()

	r.flush()

	if wasRunning {
		if err := worker.Start(r.onWorkerStop); err != nil {
			observability.WithCID(r.logger, cid).Error("failed to restart stream worker after settings update", slog.String("error", err.Error()))
			return wasRunning, nil
		}
		r.mu.Lock()
		if e, ok := r.channels[cid]; ok {
			e.meta.Running = true
			meta = e.meta
		}
		r.mu.Unlock()
		r.flush()
		r.bus.Publish(eventbus.Event{Type: eventbus.StreamRestarted, CID: cid, Payload: eventbus.StreamRestartedPayload{Meta: meta}})
	}

	return wasRunning, nil
}

// Start idempotently launches cid's stream worker. Unknown cid is a
// silent no-op (§4.5).
func (r *Registry) Start(cid int) bool {
	r.mu.RLock()
	entry, ok := r.channels[cid]
	r.mu.RUnlock()
	if !ok || entry.worker.Running() {
		return false
	}

	if err := entry.worker.Start(r.onWorkerStop); err != nil {
		observability.WithCID(r.logger, cid).Error("failed to start stream worker", slog.String("error", err.Error()))
		return false
	}

	r.mu.Lock()
	if e, ok := r.channels[cid]; ok {
		e.meta.Running = true
	}
	r.mu.Unlock()
	r.flush()
	return true
}

// Stop idempotently stops cid's stream worker. Unknown cid is a silent
// no-op (§4.5).
func (r *Registry) Stop(cid int) bool {
	r.mu.RLock()
	entry, ok := r.channels[cid]
	r.mu.RUnlock()
	if !ok || !entry.worker.Running() {
		return false
	}

	entry.worker.Stop()

	r.mu.Lock()
	if e, ok := r.channels[cid]; ok {
		e.meta.Running = false
	}
	r.mu.Unlock()
	r.flush()
	return true
}

// StartAll starts every currently registered channel, skipping those
// already running, and reports how many this call actually launched
// (§4.5, §8 property 10 auto-start idempotence).
func (r *Registry) StartAll() int {
	launched := 0
	for _, cid := range r.orderedCIDs() {
		if r.Start(cid) {
			launched++
		}
	}
	return launched
}

// StopAll stops every running channel and publishes all_stopped.
func (r *Registry) StopAll() int {
	stopped := 0
	for _, cid := range r.orderedCIDs() {
		if r.Stop(cid) {
			stopped++
		}
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.AllStopped})
	return stopped
}

func (r *Registry) orderedCIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cids := make([]int, 0, len(r.channels))
	for cid := range r.channels {
		cids = append(cids, cid)
	}
	sort.Ints(cids)
	return cids
}

func (r *Registry) onWorkerStop(cid int) {
	r.mu.Lock()
	entry, ok := r.channels[cid]
	if ok {
		entry.meta.Running = false
	}
	r.mu.Unlock()

	if ok {
		r.bus.Publish(eventbus.Event{Type: eventbus.StreamStopped, CID: cid})
	}
	r.flush()
}

// SetNIC updates the global source NIC and rebinds every worker's NIC
// setting (§4.5 set_nic). Running workers are stopped by UpdateSettings;
// restarting them is the caller's decision.
func (r *Registry) SetNIC(nic string) {
	r.mu.Lock()
	r.settings.SourceNIC = nic
	entries := make([]*channelEntry, 0, len(r.channels))
	for _, e := range r.channels {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		s := e.worker.Settings()
		s.NIC = nic
		e.worker.UpdateSettings(s)
		r.mu.Lock()
		e.meta.NIC = nic
		e.meta.Running = e.worker.Running()
		r.mu.Unlock()
	}
	r.flush()
}

// ApplyGlobalBitrate updates the global default bitrate cap and
// propagates it to every non-pre-transcoded worker (§4.5
// apply_global_bitrate; §8 property 5 pre-transcoded dominance).
func (r *Registry) ApplyGlobalBitrate(bitrate string) {
	r.mu.Lock()
	r.settings.DefaultBitrate = bitrate
	entries := make([]*channelEntry, 0, len(r.channels))
	for _, e := range r.channels {
		if !e.meta.PreTranscoded {
			entries = append(entries, e)
		}
	}
	r.mu.Unlock()

	for _, e := range entries {
		s := e.worker.Settings()
		s.Bitrate = bitrate
		e.worker.UpdateSettings(s)
		r.mu.Lock()
		e.meta.Bitrate = bitrate
		e.meta.Running = e.worker.Running()
		r.mu.Unlock()
	}
	r.flush()
}

// StartTranscode cancels any existing job for cid and installs a new
// one, wiring its progress/error callbacks through the Event Bus
// (§4.5). onComplete is the orchestration hook (typically the upload
// handler) that registers or updates the channel once conditioning
// finishes; it is invoked after the job's own bookkeeping, outside any
// registry lock.
func (r *Registry) StartTranscode(cid int, src, dst string, profile models.Profile, durationSec float64, onComplete func(dst string), onError func(msg string)) {
	r.mu.Lock()
	old := r.jobs[cid]
	r.mu.Unlock()
	if old != nil {
		old.Cancel()
	}

	codecLabel := string(profile.Codec)
	preset := string(profile.Preset)
	if profile.Codec == models.CodecCopy {
		codecLabel = "remux"
		preset = "copy"
	}
	r.bus.Publish(eventbus.Event{
		Type: eventbus.TranscodeStart, CID: cid,
		Payload: eventbus.TranscodeStartPayload{Codec: codecLabel, Preset: preset},
	})

	job := transcodejob.New(cid, src, dst, profile, durationSec, r.ffmpegPath)
	r.mu.Lock()
	r.jobs[cid] = job
	r.mu.Unlock()

	job.Start(transcodejob.Callbacks{
		OnProgress: func(pct, eta int, fps, speed float64) {
			r.bus.Publish(eventbus.Event{
				Type: eventbus.TranscodeProgress, CID: cid,
				Payload: eventbus.TranscodeProgressPayload{Pct: pct, ETASecs: eta, FPS: fps, Speed: speed},
			})
		},
		OnComplete: func(dst string) {
			r.mu.Lock()
			delete(r.jobs, cid)
			r.mu.Unlock()
			if onComplete != nil {
				onComplete(dst)
			}
		},
		OnError: func(msg string) {
			r.mu.Lock()
			delete(r.jobs, cid)
			r.mu.Unlock()
			r.bus.Publish(eventbus.Event{Type: eventbus.TranscodeError, CID: cid, Payload: eventbus.TranscodeErrorPayload{Error: msg}})
			if onError != nil {
				onError(msg)
			}
		},
	})
}

// CancelTranscode removes and cancels cid's active job, if any (§4.5).
func (r *Registry) CancelTranscode(cid int) {
	r.mu.Lock()
	job, ok := r.jobs[cid]
	delete(r.jobs, cid)
	r.mu.Unlock()
	if ok {
		job.Cancel()
	}
}

// GetStatus returns an immutable snapshot of every registered channel,
// with a live Running flag (§4.5 get_status).
func (r *Registry) GetStatus() map[int]models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]models.Channel, len(r.channels))
	for cid, e := range r.channels {
		m := e.meta.Clone()
		m.Running = e.worker.Running()
		out[cid] = m
	}
	return out
}

// Settings returns a copy of the current global settings.
func (r *Registry) Settings() models.GlobalSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// SetGlobalProfile replaces the default transcode profile (§9: modeled
// as an immutable value behind the lock; reads return a copy).
func (r *Registry) SetGlobalProfile(p models.Profile) {
	r.mu.Lock()
	r.settings.DefaultProfile = p
	r.mu.Unlock()
	r.flush()
}

// SetMediaDir, SetAutoStart, SetMonitorNIC update the remaining mutable
// global settings (§3); every mutation persists (§4.6).
func (r *Registry) SetMediaDir(dir string) {
	r.mu.Lock()
	r.settings.MediaDir = dir
	r.mu.Unlock()
	r.flush()
}

func (r *Registry) SetAutoStart(enabled bool) {
	r.mu.Lock()
	r.settings.AutoStart = enabled
	r.mu.Unlock()
	r.flush()
}

func (r *Registry) SetMonitorNIC(nic string) {
	r.mu.Lock()
	r.settings.MonitorNIC = nic
	r.mu.Unlock()
	r.flush()
}

// Restore rebuilds the registry from a loaded state document (§4.6
// recovery discipline). A persisted channel whose prepared-artifact
// path no longer resolves is skipped with a WARN log, not faulted (§8
// S5). Missing optional fields were already filled from the global
// defaults by the state store's channel decoder.
func (r *Registry) Restore(doc *statestore.Document) {
	r.mu.Lock()
	r.settings = doc.Settings
	r.mu.Unlock()

	cids := make([]int, 0, len(doc.Channels))
	for cid := range doc.Channels {
		cids = append(cids, cid)
	}
	sort.Ints(cids)

	for _, cid := range cids {
		ch := doc.Channels[cid]
		if _, err := os.Stat(ch.FilePath); err != nil {
			r.logger.Warn("skipping channel with missing prepared artifact on restore",
				slog.Int("cid", cid), slog.String("filepath", ch.FilePath))
			continue
		}
		encap := ch.Encap
		loop := ch.Loop
		bitrate := ch.Bitrate
		profile := ch.Profile
		thumb := ch.Thumb
		if thumb == "" {
			thumb = r.ThumbnailPath(cid)
		}
		if _, err := r.AddChannel(AddChannelParams{
			CID: cid, SrcPath: ch.SrcPath, PreparedPath: ch.FilePath, Filename: ch.Filename,
			Encap: &encap, Loop: &loop, Bitrate: &bitrate, Profile: &profile,
			PreTranscoded: ch.PreTranscoded, NIC: ch.NIC, Thumb: thumb,
		}); err != nil {
			r.logger.Warn("failed to restore channel", slog.Int("cid", cid), slog.String("error", err.Error()))
		}
	}
}

// AutoStart launches every restored channel's worker once, ≈2.5s after
// readiness in production use (the caller owns that delay; see §5) so
// subscribers have time to attach before the flood of channel events.
// It is a thin wrapper over StartAll kept as a distinct name so callers
// (and logs) can tell a deliberate boot-time auto-start from an
// operator-triggered "start all".
func (r *Registry) AutoStart() int {
	return r.StartAll()
}

func (r *Registry) flush() {
	r.mu.RLock()
	settings := r.settings
	channels := make(map[int]models.Channel, len(r.channels))
	for cid, e := range r.channels {
		channels[cid] = e.meta
	}
	r.mu.RUnlock()

	if err := r.store.Save(settings, channels); err != nil {
		r.logger.Error("failed to persist state", slog.String("error", err.Error()))
	}
}

