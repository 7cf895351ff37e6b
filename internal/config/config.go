// Package config provides configuration structures and defaults for minicask.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

const (
	defaultDir         = "data"
	defaultMaxFileSize = 16 * 1024 * 1024
	defaultLogLevel    = "info"
	defaultListenAddr  = "127.0.0.1:3010"
)

// Config holds the parameters fixed at store construction.
type Config struct {
	// Dir is the directory holding the <id>.data segment files.
	Dir string `yaml:"dir" json:"dir"`
	// MaxFileSize is the active segment size in bytes above which the next write rotates.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// ListenAddr is the address of the HTTP API.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// DisableMetrics turns off the /metrics endpoint.
	DisableMetrics bool `yaml:"disable_metrics" json:"disable_metrics"`

	Logger hclog.Logger `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config struct populated with default values.
func DefaultConfig() *Config {
	return &Config{
		Dir:         defaultDir,
		MaxFileSize: defaultMaxFileSize,
		LogLevel:    defaultLogLevel,
		ListenAddr:  defaultListenAddr,
	}
}

// FillDefaults sets any zero-value fields in the Config to their default values.
func (c *Config) FillDefaults() {
	def := DefaultConfig()
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.Logger == nil {
		c.Logger = NewLogger(c.LogLevel)
	}
}

// NewLogger builds the root logger at the given level. Unknown levels fall back to info.
func NewLogger(level string) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "minicask",
		Level: lvl,
	})
}

// LoadFile reads a YAML config file, or JSON when the path ends in .json, over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.FillDefaults()
	return cfg, nil
}
