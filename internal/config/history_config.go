package config

// HistoryConfig configures the SQLite audit log of detected deployments.
type HistoryConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	SQLiteDBPath string `json:"sqlite_db_path,omitempty" yaml:"sqlite_db_path,omitempty" validate:"required_if=Enabled true"`
	MaxEvents    int    `json:"max_events,omitempty" yaml:"max_events,omitempty" validate:"min=0"`
}

// NewDefaultHistoryConfig creates default history configuration
func NewDefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled:      false,
		SQLiteDBPath: DefaultHistorySQLiteDBPath,
		MaxEvents:    DefaultHistoryMaxEvents,
	}
}
