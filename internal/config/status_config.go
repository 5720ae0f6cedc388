package config

// StatusConfig configures the optional HTTP status endpoint.
type StatusConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// NewDefaultStatusConfig creates default status endpoint configuration
func NewDefaultStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:    false,
		ListenAddr: DefaultStatusListenAddr,
	}
}
