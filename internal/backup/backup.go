// Package backup schedules periodic snapshots of the state store's on-disk
// file (SPEC_FULL §4.6 expansion), using robfig/cron as the timing engine
// the way the teacher's Scheduler does (tvarr internal/scheduler), trimmed
// to a single fixed job instead of a database-synced entry map: there is
// exactly one thing to back up, so there is no entryMap/syncLoop to build.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lavacaster/broadcaster/internal/observability"
)

// timestampFormat names each snapshot file so lexical and chronological
// order coincide.
const timestampFormat = "20060102-150405"

// Scheduler copies the live state file into a timestamped snapshot on a
// cron schedule and prunes old snapshots beyond the configured retention.
type Scheduler struct {
	statePath string
	backupDir string
	retention int
	logger    *slog.Logger

	cron *cron.Cron
}

// New builds a Scheduler. cronExpr is a standard 5-field cron expression
// (SPEC_FULL §4.6 — robfig/cron's default parser). retention <= 0 disables
// pruning.
func New(statePath, backupDir, cronExpr string, retention int, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		statePath: statePath,
		backupDir: backupDir,
		retention: retention,
		logger:    logger,
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid backup cron expression %q: %w", cronExpr, err)
	}
	return s, nil
}

// Start begins the cron scheduler's background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	observability.System(context.Background(), s.logger, "backup scheduler started")
}

// Stop blocks until any in-flight backup finishes, then stops the cron
// scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	observability.System(context.Background(), s.logger, "backup scheduler stopped")
}

// RunNow performs an immediate out-of-schedule backup, for an operator-
// triggered "backup now" operation.
func (s *Scheduler) RunNow() error {
	return s.backup()
}

func (s *Scheduler) runOnce() {
	if err := s.backup(); err != nil {
		s.logger.Error("scheduled backup failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) backup() error {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return fmt.Errorf("reading state file: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	name := fmt.Sprintf("state-%s.json", time.Now().Format(timestampFormat))
	dst := filepath.Join(s.backupDir, name)
	tmp := dst + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}

	observability.System(context.Background(), s.logger, "state snapshot written", slog.String("path", dst))
	return s.prune()
}

// prune deletes the oldest snapshots beyond retention count.
func (s *Scheduler) prune() error {
	if s.retention <= 0 {
		return nil
	}

	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "state-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) <= s.retention {
		return nil
	}

	for _, name := range names[:len(names)-s.retention] {
		path := filepath.Join(s.backupDir, name)
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to prune old backup", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		observability.System(context.Background(), s.logger, "pruned old backup snapshot", slog.String("path", path))
	}
	return nil
}
