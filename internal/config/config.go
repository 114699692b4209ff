// Package config provides configuration management for arxindle.
// Settings come from an optional JSON or YAML file, overridden by
// ARXINDLE_* environment variables, on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"arxindle/internal/logger"
	"arxindle/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "config.yaml"
	// EnvPrefix prefixes every environment override, e.g. ARXINDLE_MAX_ATTEMPTS
	EnvPrefix = "ARXINDLE"

	DefaultCompiler       = "pdflatex"
	DefaultBibTeX         = "bibtex"
	DefaultMaxAttempts    = 5
	DefaultMinPasses      = 2
	DefaultCompileTimeout = 5 * time.Minute
	DefaultRotateTool     = "pdftk"
	DefaultRotateTimeout  = time.Minute
	DefaultWidth          = 4.0
	DefaultHeight         = 6.0
	DefaultMargin         = 0.2
	DefaultConcurrency    = 2
	DefaultLogLevel       = "info"
)

var (
	supportedCompilers   = []string{"pdflatex", "xelatex", "lualatex"}
	supportedRotateTools = []string{"pdftk", "pdfcpu"}
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	v          *viper.Viper
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses ~/.config/arxindle/config.yaml.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "arxindle", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		v:          newViper(),
		config:     DefaultConfig(),
	}, nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *types.Config {
	return &types.Config{
		Compiler:       DefaultCompiler,
		BibTeX:         DefaultBibTeX,
		MaxAttempts:    DefaultMaxAttempts,
		MinPasses:      DefaultMinPasses,
		CompileTimeout: DefaultCompileTimeout,
		RotateTool:     DefaultRotateTool,
		RotateTimeout:  DefaultRotateTimeout,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		Margin:         DefaultMargin,
		Concurrency:    DefaultConcurrency,
		LogLevel:       DefaultLogLevel,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("compiler", d.Compiler)
	v.SetDefault("bibtex", d.BibTeX)
	v.SetDefault("max_attempts", d.MaxAttempts)
	v.SetDefault("min_passes", d.MinPasses)
	v.SetDefault("compile_timeout", d.CompileTimeout.String())
	v.SetDefault("rotate_tool", d.RotateTool)
	v.SetDefault("rotate_timeout", d.RotateTimeout.String())
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("margin", d.Margin)
	v.SetDefault("landscape", d.Landscape)
	v.SetDefault("strict_class", d.StrictClass)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads configuration from the config file.
// A missing file means defaults; an unparsable file is logged and ignored.
// Environment variables always take precedence over the file.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	m.v = newViper()
	m.v.SetConfigFile(m.configPath)

	if _, err := os.Stat(m.configPath); err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to stat config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
		logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
	} else if err := m.v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		var extErr viper.UnsupportedConfigError
		if !errors.As(err, &parseErr) && !errors.As(err, &extErr) {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
		logger.Warn("invalid config file format, using defaults",
			logger.String("path", m.configPath), logger.Err(err))
		m.v = newViper()
	} else {
		logger.Info("configuration loaded", logger.String("path", m.v.ConfigFileUsed()))
	}

	cfg := &types.Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		logger.Error("failed to decode config", err)
		return types.NewAppError(types.ErrConfig, "failed to decode config", err)
	}
	applyDefaults(cfg)
	m.config = cfg
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(c *types.Config) {
	d := DefaultConfig()
	if c.Compiler == "" {
		c.Compiler = d.Compiler
	}
	if c.BibTeX == "" {
		c.BibTeX = d.BibTeX
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MinPasses == 0 {
		c.MinPasses = d.MinPasses
	}
	if c.CompileTimeout == 0 {
		c.CompileTimeout = d.CompileTimeout
	}
	if c.RotateTool == "" {
		c.RotateTool = d.RotateTool
	}
	if c.RotateTimeout == 0 {
		c.RotateTimeout = d.RotateTimeout
	}
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
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

	c := m.GetConfig()
	w := viper.New()
	w.Set("compiler", c.Compiler)
	w.Set("bibtex", c.BibTeX)
	w.Set("max_attempts", c.MaxAttempts)
	w.Set("min_passes", c.MinPasses)
	w.Set("compile_timeout", c.CompileTimeout.String())
	w.Set("rotate_tool", c.RotateTool)
	w.Set("rotate_timeout", c.RotateTimeout.String())
	w.Set("width", c.Width)
	w.Set("height", c.Height)
	w.Set("margin", c.Margin)
	w.Set("landscape", c.Landscape)
	w.Set("strict_class", c.StrictClass)
	w.Set("concurrency", c.Concurrency)
	w.Set("log_file", c.LogFile)
	w.Set("log_level", c.LogLevel)

	if err := w.WriteConfigAs(m.configPath); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return DefaultConfig()
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

// Viper exposes the underlying viper instance so command-line flags can be
// bound on top of the loaded settings.
func (m *ConfigManager) Viper() *viper.Viper {
	return m.v
}

// Refresh re-decodes the configuration after flags were bound.
func (m *ConfigManager) Refresh() error {
	cfg := &types.Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		return types.NewAppError(types.ErrConfig, "failed to decode config", err)
	}
	applyDefaults(cfg)
	m.config = cfg
	return nil
}

// Validate checks every setting the pipeline depends on.
func Validate(c *types.Config) error {
	if !contains(supportedCompilers, c.Compiler) {
		return types.NewAppErrorWithDetails(types.ErrConfig, "unsupported compiler",
			fmt.Sprintf("%q, expected one of %s", c.Compiler, strings.Join(supportedCompilers, ", ")), nil)
	}
	if !contains(supportedRotateTools, c.RotateTool) {
		return types.NewAppErrorWithDetails(types.ErrConfig, "unsupported rotate tool",
			fmt.Sprintf("%q, expected one of %s", c.RotateTool, strings.Join(supportedRotateTools, ", ")), nil)
	}
	if c.MaxAttempts < 1 {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid max_attempts",
			fmt.Sprintf("%d, must be >= 1", c.MaxAttempts), nil)
	}
	if c.MinPasses < 1 {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid min_passes",
			fmt.Sprintf("%d, must be >= 1", c.MinPasses), nil)
	}
	if c.CompileTimeout <= 0 || c.RotateTimeout <= 0 {
		return types.NewAppError(types.ErrConfig, "timeouts must be positive", nil)
	}
	if c.Concurrency < 1 {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid concurrency",
			fmt.Sprintf("%d, must be >= 1", c.Concurrency), nil)
	}
	return c.PageSpec().Validate()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
