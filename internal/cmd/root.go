// Package cmd implements the pdf2zh-server command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/types"
)

// Version is set at build time with -ldflags "-X pdf2zh-server/internal/cmd.Version=..."
var Version = "dev"

var (
	configPath string
	logLevel   string
	logConsole bool
)

var rootCmd = &cobra.Command{
	Use:   "pdf2zh-server",
	Short: "PDF translation server for pdf2zh and pdf2zh_next",
	Long: `pdf2zh-server runs the pdf2zh / pdf2zh_next translation engines as jobs
and post-processes their output into cropped, stacked and side-by-side layouts.

Examples:
  pdf2zh-server serve --port 8890
  pdf2zh-server translate paper.pdf --outputs mono,dual-cut,compare
  pdf2zh-server crop paper-dual.pdf`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "console", false, "mirror log entries to stderr")
}

// Execute runs the root command and exits on failure
func Execute() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code := 1
		if types.CodeOf(err) == types.ErrInvalidInput || types.CodeOf(err) == types.ErrInvalidTransition {
			code = 2
		}
		logger.Close()
		os.Exit(code)
	}
}

// setup loads the configuration and initializes the logger
func setup() (*config.ConfigManager, error) {
	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	cfg := mgr.GetConfig()

	logCfg := logger.DefaultConfig()
	logCfg.LogFilePath = cfg.LogFile
	logCfg.EnableConsole = cfg.LogConsole || logConsole
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if level != "" {
		lvl, err := logger.ParseLevel(level)
		if err != nil {
			return nil, types.NewAppError(types.ErrConfig, "invalid log level", err)
		}
		logCfg.Level = lvl
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to initialize logger", err)
	}
	if err := mgr.EnsureDirs(); err != nil {
		return nil, err
	}
	logger.Info("configuration loaded",
		logger.String("path", mgr.GetConfigPath()),
		logger.String("dataDir", cfg.DataDir),
		logger.String("version", Version))
	return mgr, nil
}
