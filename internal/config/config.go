// Package config loads the broadcaster's configuration using Viper: a
// JSON document with top-level sections server, streaming, transcode
// (§6), layered under built-in defaults and TVARR-style environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lavacaster/broadcaster/internal/models"
)

const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxChannels     = 40
	defaultBasePort        = 5100
	defaultMulticastBase   = "239.1.1"
	defaultMaxLogLines     = 10000
	defaultMetricsInterval = 5 * time.Second
)

// Config holds the full broadcaster configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds the illustrative REST surface's listen settings (§6).
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// StreamingConfig is the global_streaming section (§4.6, §3 global settings).
type StreamingConfig struct {
	MaxChannels    int    `mapstructure:"max_channels"`
	BasePort       int    `mapstructure:"base_port"`
	MulticastBase  string `mapstructure:"multicast_base"`
	DefaultEncap   string `mapstructure:"default_encap"`
	DefaultLoop    bool   `mapstructure:"default_loop"`
	DefaultBitrate string `mapstructure:"default_bitrate"`
	SourceNIC      string `mapstructure:"source_nic"`
	MonitorNIC     string `mapstructure:"monitor_nic"`
	MediaDir       string `mapstructure:"media_dir"`
	AutoStart      bool   `mapstructure:"auto_start"`
}

// TranscodeConfig is the global_transcode section: the default profile (§4.6).
type TranscodeConfig struct {
	Codec      string `mapstructure:"codec"`
	Preset     string `mapstructure:"preset"`
	VBitrate   string `mapstructure:"vbitrate"`
	ABitrate   string `mapstructure:"abitrate"`
	Resolution string `mapstructure:"resolution"`
	FPS        string `mapstructure:"fps"`
}

// LoggingConfig mirrors observability.Config, kept distinct so the
// observability package has no dependency on config.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
	Dir        string `mapstructure:"dir"`
	MaxLines   int    `mapstructure:"max_lines"`
}

// FFmpegConfig holds the conditioning tool's binary locations; empty means
// auto-detect via PATH (internal/util.FindBinary).
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	ProbePath  string `mapstructure:"probe_path"`
}

// BackupConfig controls the cron-scheduled state snapshots (SPEC_FULL §4.6).
type BackupConfig struct {
	Directory string               `mapstructure:"directory"`
	Schedule  BackupScheduleConfig `mapstructure:"schedule"`
}

// BackupScheduleConfig is the scheduled-backup cron spec.
type BackupScheduleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Cron      string `mapstructure:"cron"`
	Retention int    `mapstructure:"retention"`
}

// MetricsConfig tunes the host metrics sampler (SPEC_FULL §4.7, §5).
type MetricsConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	NICs           []string      `mapstructure:"nics"`
}

// Load reads configuration from file, then environment, then applies
// defaults for anything unset. Environment variables are prefixed
// BROADCASTER_ and use underscores in place of dots, e.g.
// BROADCASTER_STREAMING_MAX_CHANNELS=40.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/broadcaster")
		v.AddConfigPath("$HOME/.broadcaster")
	}

	v.SetEnvPrefix("BROADCASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures every built-in default so a key missing from both
// the file and the environment still has a well-defined value (§6).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("streaming.max_channels", defaultMaxChannels)
	v.SetDefault("streaming.base_port", defaultBasePort)
	v.SetDefault("streaming.multicast_base", defaultMulticastBase)
	v.SetDefault("streaming.default_encap", "udp")
	v.SetDefault("streaming.default_loop", true)
	v.SetDefault("streaming.default_bitrate", "")
	v.SetDefault("streaming.source_nic", "eth0")
	v.SetDefault("streaming.monitor_nic", "eth0")
	v.SetDefault("streaming.media_dir", "./data")
	v.SetDefault("streaming.auto_start", true)

	v.SetDefault("transcode.codec", "h264")
	v.SetDefault("transcode.preset", "fast")
	v.SetDefault("transcode.vbitrate", "4M")
	v.SetDefault("transcode.abitrate", "192k")
	v.SetDefault("transcode.resolution", "original")
	v.SetDefault("transcode.fps", "original")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.dir", "./data/logs")
	v.SetDefault("logging.max_lines", defaultMaxLogLines)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	v.SetDefault("backup.directory", "")
	v.SetDefault("backup.schedule.enabled", true)
	v.SetDefault("backup.schedule.cron", "0 2 * * *")
	v.SetDefault("backup.schedule.retention", 7)

	v.SetDefault("metrics.sample_interval", defaultMetricsInterval)
	v.SetDefault("metrics.nics", []string{})
}

// Validate checks the configuration for internally-inconsistent values.
// max_channels <= 254 is load-bearing: the deterministic address allocator
// (§3, §9 open question) wraps the multicast octet at 254 and two channels
// would otherwise collide.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Streaming.MaxChannels < 1 || c.Streaming.MaxChannels > 254 {
		return fmt.Errorf("%w: got %d", models.ErrMaxChannelsExceeds, c.Streaming.MaxChannels)
	}
	if c.Streaming.BasePort < 1 || c.Streaming.BasePort > maxPort {
		return fmt.Errorf("streaming.base_port must be between 1 and %d", maxPort)
	}
	if c.Streaming.MulticastBase == "" {
		return fmt.Errorf("streaming.multicast_base is required")
	}
	switch models.Encapsulation(c.Streaming.DefaultEncap) {
	case models.EncapUDP, models.EncapRTP:
	default:
		return fmt.Errorf("streaming.default_encap must be udp or rtp")
	}
	if !models.ValidBitrate(c.Streaming.DefaultBitrate) {
		return fmt.Errorf("streaming.default_bitrate: %w", models.ErrInvalidBitrate)
	}

	if err := validateProfile(c.Transcode); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "stream": true, "system": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, stream, system")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func validateProfile(t TranscodeConfig) error {
	switch models.Codec(t.Codec) {
	case models.CodecCopy, models.CodecH264, models.CodecH265:
	default:
		return fmt.Errorf("transcode.codec: %w: %s", models.ErrUnknownCodec, t.Codec)
	}
	if !models.ValidPresets[models.Preset(t.Preset)] {
		return fmt.Errorf("transcode.preset must be one of the recognized presets, got %s", t.Preset)
	}
	if !models.ValidResolutions[models.Resolution(t.Resolution)] {
		return fmt.Errorf("transcode.resolution must be one of the recognized resolutions, got %s", t.Resolution)
	}
	if !models.ValidFPS[models.FPS(t.FPS)] {
		return fmt.Errorf("transcode.fps must be one of the recognized rates, got %s", t.FPS)
	}
	if !models.ValidBitrate(t.VBitrate) {
		return fmt.Errorf("transcode.vbitrate: %w", models.ErrInvalidBitrate)
	}
	if !models.ValidBitrate(t.ABitrate) {
		return fmt.Errorf("transcode.abitrate: %w", models.ErrInvalidBitrate)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GlobalSettings projects the config's streaming+transcode sections into
// the registry's runtime GlobalSettings value (§3), the "config → state"
// precedence step of the single atomic load-settings sequence (§9).
func (c *Config) GlobalSettings() models.GlobalSettings {
	return models.GlobalSettings{
		MaxChannels:    c.Streaming.MaxChannels,
		BasePort:       c.Streaming.BasePort,
		MulticastBase:  c.Streaming.MulticastBase,
		DefaultEncap:   models.Encapsulation(c.Streaming.DefaultEncap),
		DefaultLoop:    c.Streaming.DefaultLoop,
		DefaultBitrate: c.Streaming.DefaultBitrate,
		SourceNIC:      c.Streaming.SourceNIC,
		MonitorNIC:     c.Streaming.MonitorNIC,
		MediaDir:       c.Streaming.MediaDir,
		AutoStart:      c.Streaming.AutoStart,
		DefaultProfile: models.Profile{
			Codec:      models.Codec(c.Transcode.Codec),
			Preset:     models.Preset(c.Transcode.Preset),
			VBitrate:   c.Transcode.VBitrate,
			ABitrate:   c.Transcode.ABitrate,
			Resolution: models.Resolution(c.Transcode.Resolution),
			FPS:        models.FPS(c.Transcode.FPS),
		},
	}
}

// BackupPath returns the directory scheduled backups are written to.
func (c *BackupConfig) BackupPath(mediaDir string) string {
	if c.Directory != "" {
		return c.Directory
	}
	return fmt.Sprintf("%s/backups", mediaDir)
}
