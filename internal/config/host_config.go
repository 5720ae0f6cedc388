package config

import "time"

// HostConfig configures how the CLI stands in for the watched application.
type HostConfig struct {
	// ReloadCommand runs on an approved reload; empty only logs.
	ReloadCommand     []string `json:"reload_command,omitempty" yaml:"reload_command,omitempty"`
	ReloadTimeoutSecs int      `json:"reload_timeout_secs,omitempty" yaml:"reload_timeout_secs,omitempty" validate:"min=0"`
	// AutoReload is the decision used in custom notify mode.
	AutoReload bool `json:"auto_reload" yaml:"auto_reload"`
	// WatchConfig rebuilds the detector when the config file changes.
	WatchConfig bool `json:"watch_config" yaml:"watch_config"`
}

// NewDefaultHostConfig creates default host configuration
func NewDefaultHostConfig() HostConfig {
	return HostConfig{
		ReloadCommand:     []string{},
		ReloadTimeoutSecs: DefaultHostReloadTimeoutSecs,
		AutoReload:        false,
		WatchConfig:       false,
	}
}

// ReloadTimeout converts ReloadTimeoutSecs; zero means no limit.
func (c HostConfig) ReloadTimeout() time.Duration {
	return time.Duration(c.ReloadTimeoutSecs) * time.Second
}
