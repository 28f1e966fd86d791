// Package cmd implements the broadcasterd CLI, adapted from the teacher's
// cobra/viper wiring (tvarr cmd/tvarr/cmd/root.go) with the env prefix and
// defaults retargeted at this module's own config package.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lavacaster/broadcaster/internal/config"
	"github.com/lavacaster/broadcaster/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "broadcasterd",
	Short:   "Multi-channel media broadcaster daemon",
	Version: version.Short(),
	Long: `broadcasterd accepts uploaded audio/video, conditions it into a
streaming container, and emits UDP/RTP multicast feeds per channel under
a channel lifecycle controller.`,
	PersistentPreRunE: initLogging,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, stream, system)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/broadcaster")
		viper.AddConfigPath("$HOME/.broadcaster")
	}

	viper.SetEnvPrefix("BROADCASTER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// initLogging installs a bare bootstrap logger before any subcommand
// body runs, so cobra/viper setup errors are themselves logged
// consistently. runServe replaces this with the fully-configured
// rolling-file logger once config.Load has resolved the logging
// section.
func initLogging(cmd *cobra.Command, args []string) error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseBootstrapLevel(level)}
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseBootstrapLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
