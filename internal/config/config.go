// Package config provides configuration management for the pdf2zh server.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf2zh-server.json"
	// EnvDataDir overrides the configured data directory
	EnvDataDir = "PDF2ZH_DATA_DIR"
	// EnvPort overrides the configured listen port
	EnvPort = "PDF2ZH_PORT"

	DefaultPort               = 8890
	DefaultPdf2zhCommand      = "pdf2zh"
	DefaultPdf2zhNextCommand  = "pdf2zh_next"
	DefaultProcessMode        = "auto"
	DefaultOutputEncoding     = "utf-8"
	DefaultGraceSeconds       = 30
	DefaultMaxAgeMinutes      = 60
	DefaultSweepSeconds       = 60
	DefaultHistoryLimit       = 200
	DefaultPostprocessWorkers = 2
	DefaultLogLevel           = "info"

	DefaultWOffset     = 40.0
	DefaultHOffset     = 20.0
	DefaultOffsetRatio = 5.0
)

// ConfigManager manages the server configuration file
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's config directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			logger.Error("failed to get user config directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user config directory", err)
		}
		configPath = filepath.Join(dir, "pdf2zh-server", DefaultConfigFileName)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(configPath),
	}, nil
}

// defaultConfig returns a Config with default values. Relative directories
// are resolved next to the config file.
func defaultConfig(configPath string) *types.Config {
	base := filepath.Dir(configPath)
	return &types.Config{
		Port:               DefaultPort,
		DataDir:            filepath.Join(base, "translated"),
		ConfigDir:          filepath.Join(base, "config"),
		Pdf2zhCommand:      DefaultPdf2zhCommand,
		Pdf2zhNextCommand:  DefaultPdf2zhNextCommand,
		ProcessMode:        DefaultProcessMode,
		OutputEncoding:     DefaultOutputEncoding,
		GraceSeconds:       DefaultGraceSeconds,
		MaxAgeMinutes:      DefaultMaxAgeMinutes,
		SweepSeconds:       DefaultSweepSeconds,
		HistoryLimit:       DefaultHistoryLimit,
		HistoryFile:        filepath.Join(base, "history.json"),
		PostprocessWorkers: DefaultPostprocessWorkers,
		Clip: types.ClipSettings{
			WOffset:     DefaultWOffset,
			HOffset:     DefaultHOffset,
			OffsetRatio: DefaultOffsetRatio,
		},
		LogFile:    filepath.Join(base, "pdf2zh-server.log"),
		LogLevel:   DefaultLogLevel,
		LogConsole: true,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, it uses default values.
// Environment variables override the data directory and port.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = defaultConfig(m.configPath)
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = defaultConfig(m.configPath)
		} else {
			m.config = config
			logger.Info("configuration loaded successfully",
				logger.String("path", m.configPath),
				logger.Int("port", config.Port),
				logger.String("dataDir", config.DataDir))
		}
	}

	m.applyDefaults()
	m.applyEnv()
	return nil
}

// applyDefaults fills zero-valued fields
func (m *ConfigManager) applyDefaults() {
	d := defaultConfig(m.configPath)
	c := m.config

	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.ConfigDir == "" {
		c.ConfigDir = d.ConfigDir
	}
	if c.Pdf2zhCommand == "" {
		c.Pdf2zhCommand = d.Pdf2zhCommand
	}
	if c.Pdf2zhNextCommand == "" {
		c.Pdf2zhNextCommand = d.Pdf2zhNextCommand
	}
	if c.ProcessMode == "" {
		c.ProcessMode = d.ProcessMode
	}
	if c.OutputEncoding == "" {
		c.OutputEncoding = d.OutputEncoding
	}
	if c.GraceSeconds <= 0 {
		c.GraceSeconds = d.GraceSeconds
	}
	if c.MaxAgeMinutes <= 0 {
		c.MaxAgeMinutes = d.MaxAgeMinutes
	}
	if c.SweepSeconds <= 0 {
		c.SweepSeconds = d.SweepSeconds
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.PostprocessWorkers <= 0 {
		c.PostprocessWorkers = d.PostprocessWorkers
	}
	if c.Clip.WOffset == 0 && c.Clip.HOffset == 0 && c.Clip.OffsetRatio == 0 {
		c.Clip = d.Clip
	}
	if c.Clip.OffsetRatio <= 0 {
		c.Clip.OffsetRatio = DefaultOffsetRatio
	}
	if c.LogFile == "" {
		c.LogFile = d.LogFile
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

func (m *ConfigManager) applyEnv() {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		m.config.DataDir = dir
	}
	if port := os.Getenv(EnvPort); port != "" {
		var n Number
		if err := n.UnmarshalJSON([]byte(port)); err == nil && n > 0 {
			m.config.Port = int(n)
		} else {
			logger.Warn("ignoring invalid port override", logger.String("value", port))
		}
	}
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig(m.configPath)
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetGracePeriod returns how long finished jobs stay visible
func (m *ConfigManager) GetGracePeriod() time.Duration {
	return time.Duration(m.GetConfig().GraceSeconds) * time.Second
}

// GetMaxAge returns how long a finished job may stay in the registry
func (m *ConfigManager) GetMaxAge() time.Duration {
	return time.Duration(m.GetConfig().MaxAgeMinutes) * time.Minute
}

// GetSweepInterval returns how often the registry sweeper runs
func (m *ConfigManager) GetSweepInterval() time.Duration {
	return time.Duration(m.GetConfig().SweepSeconds) * time.Second
}

// EnsureDirs creates the data and engine config directories
func (m *ConfigManager) EnsureDirs() error {
	for _, dir := range []string{m.GetConfig().DataDir, m.GetConfig().ConfigDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create directory", err, logger.String("dir", dir))
			return types.NewAppErrorWithDetails(types.ErrConfig, "failed to create directory", dir, err)
		}
	}
	return nil
}
