package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/models"
	"github.com/lavacaster/broadcaster/internal/smartingest"
	"github.com/lavacaster/broadcaster/internal/thumbnail"
)

// UploadDecision reports which of the three upload paths Upload took
// (SPEC_FULL §4.5 expansion): direct registration, a smart-ingest
// remux, or a full re-encode.
type UploadDecision string

const (
	DecisionDirect   UploadDecision = "direct"
	DecisionRemux    UploadDecision = "remux"
	DecisionReencode UploadDecision = "reencode"
)

// UploadParams bundles the upload(cid, src_path, filename, overwrite)
// entry point (SPEC_FULL §4.5 expansion, §6 upload semantics). SrcPath
// is the already-saved upload (the out-of-scope HTTP façade owns body
// parsing; this is the path it wrote the bytes to). Profile is the
// per-upload target; nil selects the current global default.
type UploadParams struct {
	CID       int
	SrcPath   string
	Filename  string
	Overwrite bool
	Profile   *models.Profile
}

// Upload is the registry-level entry point a POST /api/upload/<cid>
// handler calls (SPEC_FULL §4.5 expansion). It validates cid, rejects a
// would-be silent overwrite with ConflictError, launches the thumbnail
// subjob, runs Smart Ingest against the effective target profile, and
// dispatches direct registration, a remux job, or a full re-encode job
// — publishing the same events §4.7 describes in the same causal order
// (transcode_start precedes transcode_progress precedes channel_ready).
func (r *Registry) Upload(ctx context.Context, p UploadParams) (UploadDecision, error) {
	settings := r.Settings()
	if p.CID < 0 || p.CID >= settings.MaxChannels {
		return "", models.NewValidationError("cid", models.ErrCIDOutOfRange.Error())
	}

	profile := settings.DefaultProfile
	if p.Profile != nil {
		profile = *p.Profile
	}

	preparedPath := filepath.Join(r.dirs.PreparedDir, p.Filename)
	if !p.Overwrite {
		if _, err := os.Stat(preparedPath); err == nil {
			return "", models.NewConflictError(p.Filename)
		}
	}

	var durationSec float64
	var info models.MediaInfo
	if r.prober != nil {
		durationSec = r.prober.ProbeDuration(ctx, p.SrcPath)
		info = r.prober.ProbeVideoInfo(ctx, p.SrcPath)
	}

	thumbPath := filepath.Join(r.dirs.ThumbDir, strconv.Itoa(p.CID)+".jpg")
	go r.generateThumbnail(p.CID, p.SrcPath, thumbPath, durationSec, info.Empty())

	if profile.Codec == models.CodecCopy {
		if err := placeFile(p.SrcPath, preparedPath); err != nil {
			return "", fmt.Errorf("placing prepared artifact: %w", err)
		}
		if !ffmpeg.SanityCheckMpegTS(preparedPath) {
			r.logger.Warn("prepared artifact failed MPEG-TS sanity check", slog.Int("cid", p.CID), slog.String("path", preparedPath))
		}
		if _, err := r.AddChannel(AddChannelParams{
			CID: p.CID, SrcPath: p.SrcPath, PreparedPath: preparedPath, Filename: p.Filename,
			Profile: &profile, PreTranscoded: true, Thumb: thumbPath,
		}); err != nil {
			return "", err
		}
		return DecisionDirect, nil
	}

	if smartingest.Matches(info, profile) {
		remuxProfile := profile
		remuxProfile.Codec = models.CodecCopy
		r.dispatchTranscode(p.CID, p.SrcPath, preparedPath, remuxProfile, durationSec, p.Filename, thumbPath, true)
		return DecisionRemux, nil
	}

	r.dispatchTranscode(p.CID, p.SrcPath, preparedPath, profile, durationSec, p.Filename, thumbPath, false)
	return DecisionReencode, nil
}

// dispatchTranscode wires StartTranscode's completion callback to
// register (or update) the channel once conditioning finishes, and its
// error callback to a log line — the channel registry is the only
// thing that ever observes a bare transcode failure; subscribers learn
// about it from the transcode_error event StartTranscode already
// publishes.
func (r *Registry) dispatchTranscode(cid int, src, dst string, profile models.Profile, durationSec float64, filename, thumb string, preTranscoded bool) {
	r.StartTranscode(cid, src, dst, profile, durationSec,
		func(dst string) {
			if !ffmpeg.SanityCheckMpegTS(dst) {
				r.logger.Warn("conditioned artifact failed MPEG-TS sanity check", slog.Int("cid", cid), slog.String("path", dst))
			}
			if _, err := r.AddChannel(AddChannelParams{
				CID: cid, SrcPath: src, PreparedPath: dst, Filename: filename,
				Profile: &profile, PreTranscoded: preTranscoded, Thumb: thumb,
			}); err != nil {
				r.logger.Error("failed to register channel after transcode", slog.Int("cid", cid), slog.String("error", err.Error()))
			}
		},
		func(msg string) {
			r.logger.Error("transcode failed", slog.Int("cid", cid), slog.String("error", msg))
		},
	)
}

// Retranscode re-runs conditioning on an already-registered channel's
// source against a new profile (SPEC_FULL §4.5 expansion, cf. app.py's
// retranscode route). It probes the real duration so transcode_progress
// reports actual percentages, and its onComplete re-adds the channel —
// updating profile and pre_transcoded — and restarts the worker if the
// channel was running when retranscode began, mirroring app.py's
// was_running/on_complete pairing (the settings-update route's
// stream_restarted event is not published here; retranscode has its own
// channel_ready signal).
func (r *Registry) Retranscode(ctx context.Context, cid int, profile models.Profile) error {
	r.mu.RLock()
	entry, ok := r.channels[cid]
	r.mu.RUnlock()
	if !ok {
		return models.NewNotFoundError("channel", strconv.Itoa(cid))
	}
	meta := entry.meta
	wasRunning := entry.worker.Running()

	var durationSec float64
	if r.prober != nil {
		durationSec = r.prober.ProbeDuration(ctx, meta.SrcPath)
	}

	preTranscoded := profile.Codec == models.CodecCopy

	r.StartTranscode(cid, meta.SrcPath, meta.FilePath, profile, durationSec,
		func(dst string) {
			if !ffmpeg.SanityCheckMpegTS(dst) {
				r.logger.Warn("conditioned artifact failed MPEG-TS sanity check", slog.Int("cid", cid), slog.String("path", dst))
			}
			if _, err := r.AddChannel(AddChannelParams{
				CID: cid, SrcPath: meta.SrcPath, PreparedPath: dst, Filename: meta.Filename,
				Profile: &profile, PreTranscoded: preTranscoded, Thumb: meta.Thumb,
			}); err != nil {
				r.logger.Error("failed to register channel after retranscode", slog.Int("cid", cid), slog.String("error", err.Error()))
				return
			}
			if wasRunning {
				r.Start(cid)
			}
		},
		func(msg string) {
			r.logger.Error("retranscode failed", slog.Int("cid", cid), slog.String("error", msg))
		},
	)
	return nil
}

func (r *Registry) generateThumbnail(cid int, src, dst string, durationSec float64, isAudioOnly bool) {
	if err := thumbnail.Generate(context.Background(), r.ffmpegPath, src, dst, durationSec, isAudioOnly); err != nil {
		r.logger.Warn("thumbnail generation failed", slog.Int("cid", cid), slog.String("error", err.Error()))
	}
}

// placeFile hard-links src to dst, falling back to a copy across
// filesystem boundaries (e.g. the originals and prepared directories
// live on different mounts).
func placeFile(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// RemoveThumbnail deletes cid's thumbnail file, if any, satisfying §6's
// "thumbnail" per-channel operation and RemoveChannel's file-erasure
// contract. A missing thumbnail is not an error.
func (r *Registry) RemoveThumbnail(cid int) error {
	path := filepath.Join(r.dirs.ThumbDir, strconv.Itoa(cid)+".jpg")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ThumbnailPath returns the on-disk path of cid's thumbnail, for the
// "get thumbnail" REST operation (§6). It does not check existence.
func (r *Registry) ThumbnailPath(cid int) string {
	return filepath.Join(r.dirs.ThumbDir, strconv.Itoa(cid)+".jpg")
}
