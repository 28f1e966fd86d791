package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lavacaster/broadcaster/internal/backup"
	"github.com/lavacaster/broadcaster/internal/config"
	"github.com/lavacaster/broadcaster/internal/eventbus"
	"github.com/lavacaster/broadcaster/internal/ffmpeg"
	"github.com/lavacaster/broadcaster/internal/httpapi"
	"github.com/lavacaster/broadcaster/internal/metrics"
	"github.com/lavacaster/broadcaster/internal/observability"
	"github.com/lavacaster/broadcaster/internal/registry"
	"github.com/lavacaster/broadcaster/internal/statestore"
	"github.com/lavacaster/broadcaster/internal/version"
)

// autoStartDelay is the grace period (§5 "auto-start fires once, ≈2.5s
// after readiness") that lets event subscribers attach before the
// restored fleet's channel_ready/stream_restarted flood begins.
const autoStartDelay = 2500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broadcaster daemon",
	Long: `serve starts the channel lifecycle controller: it loads configuration
and persisted state, restores channels, starts the metrics sampler and
backup scheduler, and exposes the REST surface described in §6.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "HTTP listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "HTTP listen port (overrides config)")
	serveCmd.Flags().String("state-file", "state.json", "path to the state store document")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if host := viper.GetString("server.host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server.port"); port != 0 {
		cfg.Server.Port = port
	}

	statePath, _ := cmd.Flags().GetString("state-file")

	rolling, err := observability.NewRollingWriter(
		filepath.Join(cfg.Logging.Dir, "broadcaster.jsonl"), cfg.Logging.MaxLines)
	if err != nil {
		return fmt.Errorf("opening rolling log: %w", err)
	}
	logger := observability.NewLogger(observability.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource, TimeFormat: cfg.Logging.TimeFormat,
	}, rolling)
	slog.SetDefault(logger)

	for _, dir := range []string{
		cfg.Streaming.MediaDir,
		filepath.Join(cfg.Streaming.MediaDir, "originals"),
		filepath.Join(cfg.Streaming.MediaDir, "prepared"),
		filepath.Join(cfg.Streaming.MediaDir, "thumbnails"),
		cfg.Logging.Dir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	bus := eventbus.New(0)

	// "config → state" precedence (§9 design note): settings come from
	// config first, and a loaded state document is allowed to override
	// them, as a single atomic step before anything else touches the
	// registry.
	store := statestore.NewStore(statePath, logger)

	reg := registry.New(cfg.GlobalSettings(), bus, store, "", logger)

	binaries, err := ffmpeg.DetectBinaries(context.Background(), cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		logger.Warn("ffmpeg/ffprobe not found; transcoding and probing are unavailable", slog.String("error", err.Error()))
	} else {
		reg = reg.WithFFmpeg(binaries.FFmpegPath).WithProber(ffmpeg.NewProber(binaries.FFprobePath))
	}
	reg = reg.WithDirs(registry.Dirs{
		OriginalsDir: filepath.Join(cfg.Streaming.MediaDir, "originals"),
		PreparedDir:  filepath.Join(cfg.Streaming.MediaDir, "prepared"),
		ThumbDir:     filepath.Join(cfg.Streaming.MediaDir, "thumbnails"),
	})

	doc := store.Load(cfg.GlobalSettings())
	reg.Restore(doc)

	sampler := metrics.New(bus, logger, cfg.Metrics.SampleInterval, cfg.Metrics.NICs)

	backupDir := cfg.Backup.BackupPath(cfg.Streaming.MediaDir)
	var backupSched *backup.Scheduler
	if cfg.Backup.Schedule.Enabled {
		backupSched, err = backup.New(statePath, backupDir, cfg.Backup.Schedule.Cron, cfg.Backup.Schedule.Retention, logger)
		if err != nil {
			return fmt.Errorf("initializing backup scheduler: %w", err)
		}
	}

	server := httpapi.NewServer(httpapi.Config{
		Host: cfg.Server.Host, Port: cfg.Server.Port,
		ReadTimeout: cfg.Server.ReadTimeout, WriteTimeout: cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout, CORSOrigins: cfg.Server.CORSOrigins,
	}, logger, version.Short())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := httpapi.NewHandler(reg, rolling, backupSched, logger, nil, cancel)
	handler.Register(server.API())

	eventsHandler := httpapi.NewEventsHandler(bus, logger)
	eventsHandler.RegisterSSE(server.Router())

	go sampler.Run(ctx)
	if backupSched != nil {
		backupSched.Start()
		defer backupSched.Stop()
	}

	if cfg.Streaming.AutoStart {
		go func() {
			select {
			case <-time.After(autoStartDelay):
			case <-ctx.Done():
				return
			}
			n := reg.AutoStart()
			observability.System(ctx, logger, "auto-start complete", slog.Int("launched", n))
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	observability.System(ctx, logger, "starting broadcaster server",
		slog.String("address", cfg.Server.Address()), slog.String("version", version.Short()))

	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}

	reg.StopAll()
	return nil
}
