package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ConfigManager holds the loaded configuration and reloads it when the file changes.
type ConfigManager struct {
	mu           sync.RWMutex
	config       *GlobalConfig
	configPath   string
	logger       zerolog.Logger
	override     func(*GlobalConfig)
	reloadDelay  time.Duration
	lastModified time.Time

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopChan chan struct{}
}

// ConfigManagerOptions holds options for creating a ConfigManager
type ConfigManagerOptions struct {
	Logger zerolog.Logger
	// Override is applied after every load, before validation (command-line flags).
	Override    func(*GlobalConfig)
	ReloadDelay time.Duration
}

// DefaultConfigManagerOptions returns default options for ConfigManager
func DefaultConfigManagerOptions() ConfigManagerOptions {
	return ConfigManagerOptions{
		Logger:      zerolog.Nop(),
		ReloadDelay: 500 * time.Millisecond,
	}
}

// NewConfigManager loads and validates the configuration once.
func NewConfigManager(configPath string, opts ConfigManagerOptions) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath:  configPath,
		logger:      opts.Logger.With().Str("component", "ConfigManager").Logger(),
		override:    opts.Override,
		reloadDelay: opts.ReloadDelay,
		stopChan:    make(chan struct{}),
	}
	if cm.configPath == "" {
		cm.configPath = GetConfigPath("")
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, common.WrapError(err, "failed to load initial configuration")
	}
	cm.config = cfg
	return cm, nil
}

// GetConfig returns the current configuration.
func (cm *ConfigManager) GetConfig() *GlobalConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// GetConfigPath returns the resolved configuration file path, empty when running on defaults.
func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}

// ReloadConfig re-reads the file. The previous configuration stays active on error.
func (cm *ConfigManager) ReloadConfig() (*GlobalConfig, error) {
	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()
	return cfg, nil
}

func (cm *ConfigManager) load() (*GlobalConfig, error) {
	cfg, err := LoadGlobalConfig(cm.configPath, cm.logger)
	if err != nil {
		return nil, err
	}
	if cm.override != nil {
		cm.override(cfg)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cm.configPath != "" {
		if stat, err := os.Stat(cm.configPath); err == nil {
			cm.mu.Lock()
			cm.lastModified = stat.ModTime()
			cm.mu.Unlock()
		}
	}
	return cfg, nil
}

// Watch calls onChange with every successfully reloaded configuration until ctx
// ends or Close is called. It returns once the watcher is set up.
func (cm *ConfigManager) Watch(ctx context.Context, onChange func(*GlobalConfig)) error {
	if cm.configPath == "" {
		return common.NewConfigurationError("", "", "no configuration file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return common.WrapError(err, "failed to create file watcher")
	}

	// Editors replace files, so watch the directory rather than the file.
	configDir := filepath.Dir(cm.configPath)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return common.WrapErrorf(err, "failed to watch config directory '%s'", configDir)
	}

	cm.watcher = watcher
	cm.logger.Info().Str("directory", configDir).Msg("Watching configuration for changes")

	go cm.watchLoop(ctx, onChange)
	return nil
}

func (cm *ConfigManager) watchLoop(ctx context.Context, onChange func(*GlobalConfig)) {
	reloadTimer := time.NewTimer(0)
	if !reloadTimer.Stop() {
		<-reloadTimer.C
	}
	target := filepath.Clean(cm.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cm.stopChan:
			return

		case event, ok := <-cm.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == target && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				cm.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Config file change detected")
				reloadTimer.Reset(cm.reloadDelay)
			}

		case err, ok := <-cm.watcher.Errors:
			if !ok {
				return
			}
			cm.logger.Error().Err(err).Msg("File watcher error")

		case <-reloadTimer.C:
			stat, err := os.Stat(cm.configPath)
			if err != nil {
				continue
			}
			cm.mu.RLock()
			changed := stat.ModTime().After(cm.lastModified)
			cm.mu.RUnlock()
			if !changed {
				continue
			}
			cfg, err := cm.ReloadConfig()
			if err != nil {
				cm.logger.Error().Err(err).Msg("Failed to reload configuration, keeping the previous one")
				continue
			}
			cm.logger.Info().Str("path", cm.configPath).Msg("Configuration reloaded")
			onChange(cfg)
		}
	}
}

// Close stops watching.
func (cm *ConfigManager) Close() error {
	var err error
	cm.stopOnce.Do(func() {
		close(cm.stopChan)
		if cm.watcher != nil {
			err = cm.watcher.Close()
		}
	})
	return err
}
