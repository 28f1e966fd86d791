// Package transcodejob implements the one-shot child that conditions a
// source file into a stream-ready artifact (§4.3). A Job is ephemeral
// and owned by exactly one channel at a time; the Channel Registry is
// the only caller. Grounded on the teacher's ffmpeg progress channel
// (tvarr internal/ffmpeg/wrapper.go RunWithProgress) and its terminal-
// state handling in internal/service/progress, rewritten around this
// spec's progress percentage/ETA formula (§4.3) instead of raw ffmpeg
// progress passthrough.
package transcodejob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/models"
)

// State is the job's lifecycle state (§4.3: idle -> running ->
// (completed | failed | cancelled), terminal states sticky).
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Callbacks are the job's three signals (§4.3 start contract). Cancel
// never fires OnError (§4.3, §5 cancellation semantics).
type Callbacks struct {
	OnProgress func(pct int, etaSecs int, fps, speed float64)
	OnComplete func(dst string)
	OnError    func(msg string)
}

// Job conditions Src into Dst per Profile.
type Job struct {
	CID         int
	Src         string
	Dst         string
	Profile     models.Profile
	DurationSec float64 // 0 = unknown (§4.2 "make no assumptions")
	FFmpegPath  string

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	lastPct   int
	startedAt time.Time
}

// New builds an idle Job.
func New(cid int, src, dst string, profile models.Profile, durationSec float64, ffmpegPath string) *Job {
	return &Job{
		CID:         cid,
		Src:         src,
		Dst:         dst,
		Profile:     profile,
		DurationSec: durationSec,
		FFmpegPath:  ffmpegPath,
		state:       StateIdle,
	}
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Active reports whether the job is running: started and not yet in a
// terminal state. An idle job is not active.
func (j *Job) Active() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == StateRunning
}

// Start launches the conditioning child and begins reporting progress.
// It returns immediately; callbacks fire from a background goroutine.
func (j *Job) Start(cb Callbacks) {
	j.mu.Lock()
	if j.state != StateIdle {
		j.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.state = StateRunning
	j.startedAt = time.Now()
	j.done = make(chan struct{})
	j.mu.Unlock()

	argv := j.buildArgv()
	progressCh := make(chan ffmpeg.Progress, 16)

	go func() {
		defer close(j.done)
		exitCode, runErr := func() (int, error) {
			resultCh := make(chan struct {
				code int
				err  error
			}, 1)
			go func() {
				code, err := ffmpeg.RunWithProgress(ctx, argv, progressCh)
				resultCh <- struct {
					code int
					err  error
				}{code, err}
			}()

			for p := range progressCh {
				j.reportProgress(p, cb)
			}
			r := <-resultCh
			return r.code, r.err
		}()

		j.finish(exitCode, runErr, cb)
	}()
}

func (j *Job) buildArgv() []string {
	b := ffmpeg.NewCommandBuilder(j.FFmpegPath).Input(j.Src)

	if j.Profile.Codec == models.CodecCopy {
		b = b.StreamCopy()
	} else {
		vbitrateKbps := models.ParseBitrateKbps(j.Profile.VBitrate)
		b = b.VideoEncode(j.Profile.Codec, j.Profile.Preset, vbitrateKbps)
		if j.Profile.Resolution != models.ResolutionOriginal {
			if dims, ok := models.ResolutionDims[j.Profile.Resolution]; ok {
				b = b.Scale(dims[0], dims[1])
			}
		}
		if j.Profile.FPS != models.FPSOriginal {
			if num, den, ok := models.FPSFraction(j.Profile.FPS); ok {
				b = b.FrameRate(num, den)
			}
		}
		b = b.AudioAAC(j.Profile.ABitrate)
	}

	return b.MpegTSProgress(j.Dst).Build()
}

// reportProgress computes pct/eta per §4.3's formula and invokes
// OnProgress, skipping the final progress=end tick (finish handles the
// terminal 100% emission so callers see exactly one 100% event).
func (j *Job) reportProgress(p ffmpeg.Progress, cb Callbacks) {
	if p.Done {
		return
	}
	if !j.Active() {
		return
	}

	pct := 0
	eta := 0
	if j.DurationSec > 0 {
		durationUs := j.DurationSec * 1_000_000
		raw := int(float64(p.OutTimeUs) / durationUs * 100)
		if raw > 99 {
			raw = 99
		}
		if raw < 0 {
			raw = 0
		}
		if raw > j.lastPct {
			j.lastPct = raw
		}
		pct = j.lastPct
		if pct > 0 {
			elapsed := time.Since(j.startedAt).Seconds()
			eta = int(elapsed * float64(100-pct) / float64(pct))
		}
	}

	if cb.OnProgress != nil {
		cb.OnProgress(pct, eta, p.FPS, p.Speed)
	}
}

func (j *Job) finish(exitCode int, runErr error, cb Callbacks) {
	j.mu.Lock()
	wasActive := j.state == StateRunning
	if !wasActive {
		j.mu.Unlock()
		return
	}

	switch {
	case runErr != nil && j.state != StateCancelled:
		j.state = StateFailed
	case exitCode == 0:
		j.state = StateCompleted
	default:
		j.state = StateFailed
	}
	finalState := j.state
	j.mu.Unlock()

	switch finalState {
	case StateCompleted:
		if cb.OnProgress != nil {
			cb.OnProgress(100, 0, 0, 0)
		}
		if cb.OnComplete != nil {
			cb.OnComplete(j.Dst)
		}
	case StateFailed:
		if cb.OnError != nil {
			cb.OnError(fmt.Sprintf("ffmpeg exited with code %d", exitCode))
		}
	}
}

// Cancel signals the child and waits for it to exit. No further
// callbacks are delivered for this job after Cancel returns (§5, §8
// property 7 cancellation quiescence); cancellation never invokes
// OnError.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return
	}
	j.state = StateCancelled
	cancel := j.cancel
	done := j.done
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}
