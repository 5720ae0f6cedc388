package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// Log Defaults
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogFile       = ""
	DefaultMaxLogSizeMB  = 100
	DefaultMaxLogBackups = 3

	// Detector Defaults
	DefaultPollingIntervalMs = 10000
	DefaultNotifyType        = "confirm"
	DefaultExtraction        = "regex"
	DefaultCacheControl      = "no-cache"
	DefaultIndexPath         = "/"

	// HTTP Client Defaults
	DefaultHTTPTimeoutSecs      = 30
	DefaultHTTPMaxRedirects     = 10
	DefaultHTTPMaxContentSizeMB = 5
	DefaultHTTPRetryAttempts    = 2
	DefaultHTTPRetryBaseDelayMs = 500
	DefaultHTTPUserAgent        = "deploywatch/1.0"

	// History Defaults
	DefaultHistorySQLiteDBPath = "database/deploywatch_history.db"
	DefaultHistoryMaxEvents    = 1000

	// Host Defaults
	DefaultHostReloadTimeoutSecs = 60

	// Status Defaults
	DefaultStatusListenAddr = "127.0.0.1:8089"
)

// GlobalConfig is the whole configuration file.
type GlobalConfig struct {
	LogConfig          LogConfig          `json:"log_config,omitempty" yaml:"log_config,omitempty"`
	DetectorConfig     DetectorConfig     `json:"detector_config,omitempty" yaml:"detector_config,omitempty"`
	HTTPClientConfig   HTTPClientConfig   `json:"http_client_config,omitempty" yaml:"http_client_config,omitempty"`
	NotificationConfig NotificationConfig `json:"notification_config,omitempty" yaml:"notification_config,omitempty"`
	HistoryConfig      HistoryConfig      `json:"history_config,omitempty" yaml:"history_config,omitempty"`
	HostConfig         HostConfig         `json:"host_config,omitempty" yaml:"host_config,omitempty"`
	StatusConfig       StatusConfig       `json:"status_config,omitempty" yaml:"status_config,omitempty"`
}

// NewDefaultGlobalConfig returns a GlobalConfig with default values for all fields.
func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		LogConfig:          NewDefaultLogConfig(),
		DetectorConfig:     NewDefaultDetectorConfig(),
		HTTPClientConfig:   NewDefaultHTTPClientConfig(),
		NotificationConfig: NewDefaultNotificationConfig(),
		HistoryConfig:      NewDefaultHistoryConfig(),
		HostConfig:         NewDefaultHostConfig(),
		StatusConfig:       NewDefaultStatusConfig(),
	}
}

// LoadGlobalConfig reads the file GetConfigPath resolves and overlays it on the defaults.
// An explicitly provided path that does not exist is an error; finding no file at
// all yields the defaults.
func LoadGlobalConfig(providedPath string, logger zerolog.Logger) (*GlobalConfig, error) {
	cfg := NewDefaultGlobalConfig()
	moduleLogger := logger.With().Str("component", "ConfigLoader").Logger()

	if providedPath != "" {
		if _, err := os.Stat(providedPath); err != nil {
			return nil, common.WrapErrorf(err, "config file '%s' not accessible", providedPath)
		}
	}

	filePath := GetConfigPath(providedPath)
	if filePath == "" {
		moduleLogger.Info().Msg("No config file found, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, common.WrapErrorf(err, "failed to read config file '%s'", filePath)
	}

	if err := unmarshalConfig(filePath, data, cfg); err != nil {
		return nil, err
	}

	moduleLogger.Info().Str("path", filePath).Msg("Configuration loaded")
	return cfg, nil
}

func unmarshalConfig(filePath string, data []byte, cfg *GlobalConfig) error {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return common.WrapErrorf(err, "failed to unmarshal JSON from '%s'", filePath)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return common.WrapErrorf(err, "failed to unmarshal YAML from '%s'", filePath)
		}
	}
	return nil
}

// SaveGlobalConfig writes cfg as YAML or JSON depending on the file extension.
func SaveGlobalConfig(cfg *GlobalConfig, filePath string) error {
	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(filePath)) == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return common.WrapError(err, "failed to marshal configuration")
	}

	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return common.WrapErrorf(err, "failed to create directory for '%s'", filePath)
		}
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return common.WrapErrorf(err, "failed to write config file '%s'", filePath)
	}
	return nil
}
