package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SnapFrame/internal/config"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

var (
	cfgFile string

	// v layers flags and SNAPFRAME_* variables over the config file.
	v = config.NewViper()

	rootCmd = &cobra.Command{
		Use:   "snapframe",
		Short: "SnapFrame - screenshots on X11 and Wayland",
		Long: `SnapFrame takes screenshots of the whole desktop, a single window or a
dragged area, picking whichever capture mechanism works on the running
session.

Features:
  • X11, GNOME Shell, grim and XDG portal capture backends
  • Automatic fallback between backends
  • Multi-monitor area selection with a live size label
  • Countdown delay and capture flash
  • File, stdout and clipboard output
  • Local HTTP API with a websocket status stream`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/snapframe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable logs")

	v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// helperArgs repeats the global flags for the selection helper child so it
// loads the same config file and logs the same way.
func helperArgs(cfg config.Config) []string {
	var args []string
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if cfg.LogLevel != "" {
		args = append(args, "--log-level", cfg.LogLevel)
	}
	if cfg.LogPretty {
		args = append(args, "--log-pretty")
	}
	return args
}

// loadConfig reads the config file, applies flag and environment overrides
// and initialises logging from the result.
func loadConfig() (*config.Manager, config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := configMgr.Resolve(v)
	if err != nil {
		return nil, config.Config{}, err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}
