package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleister1102/deploywatch/internal/detector"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultGlobalConfig(t *testing.T) {
	cfg := NewDefaultGlobalConfig()

	require.NotNil(t, cfg.DetectorConfig.PollingIntervalMs)
	assert.Equal(t, DefaultPollingIntervalMs, *cfg.DetectorConfig.PollingIntervalMs)
	assert.Equal(t, []string{"/"}, cfg.DetectorConfig.IndexPaths)
	assert.Equal(t, "confirm", cfg.DetectorConfig.NotifyType)
	assert.Equal(t, "no-cache", cfg.DetectorConfig.CacheControl)
	assert.True(t, cfg.DetectorConfig.PauseOnHidden)
	assert.True(t, cfg.DetectorConfig.Immediate)
	assert.Equal(t, DefaultLogLevel, cfg.LogConfig.LogLevel)
	assert.False(t, cfg.HistoryConfig.Enabled)
}

func TestLoadGlobalConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
detector_config:
  base_url: https://app.example.com
  polling_interval_ms: 30000
  index_paths: ["/", "/admin/index.html"]
  exclude_scripts: ["*/analytics.js"]
log_config:
  log_level: debug
`)

	cfg, err := LoadGlobalConfig(path, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com", cfg.DetectorConfig.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.DetectorConfig.PollingInterval())
	assert.Equal(t, []string{"/", "/admin/index.html"}, cfg.DetectorConfig.IndexPaths)
	assert.Equal(t, "debug", cfg.LogConfig.LogLevel)
	// untouched keys keep their defaults
	assert.Equal(t, "no-cache", cfg.DetectorConfig.CacheControl)
	assert.Equal(t, DefaultHTTPTimeoutSecs, cfg.HTTPClientConfig.TimeoutSecs)
}

func TestLoadGlobalConfig_NullIntervalIsManual(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "manual.yaml", "detector_config:\n  base_url: https://app.example.com\n  polling_interval_ms: null\n")
	jsonPath := writeFile(t, dir, "manual.json", `{"detector_config": {"base_url": "https://app.example.com", "polling_interval_ms": null}}`)

	for _, path := range []string{yamlPath, jsonPath} {
		cfg, err := LoadGlobalConfig(path, zerolog.Nop())
		require.NoError(t, err)
		assert.Nil(t, cfg.DetectorConfig.PollingIntervalMs, path)
		assert.Equal(t, time.Duration(0), cfg.DetectorConfig.PollingInterval())

		opts, err := cfg.DetectorConfig.ToOptions()
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), opts.PollingInterval)
	}
}

func TestLoadGlobalConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadGlobalConfig(filepath.Join(dir, "missing.yaml"), zerolog.Nop())
	assert.ErrorContains(t, err, "not accessible")

	bad := writeFile(t, dir, "bad.yaml", "detector_config: [unclosed")
	_, err = LoadGlobalConfig(bad, zerolog.Nop())
	assert.ErrorContains(t, err, "failed to unmarshal YAML")

	badJSON := writeFile(t, dir, "bad.json", "{")
	_, err = LoadGlobalConfig(badJSON, zerolog.Nop())
	assert.ErrorContains(t, err, "failed to unmarshal JSON")
}

func TestGetConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", "log_config:\n  log_level: warn\n")
	t.Setenv(ConfigPathEnv, path)

	assert.Equal(t, path, GetConfigPath(""))

	flagPath := writeFile(t, dir, "flag.yaml", "")
	assert.Equal(t, flagPath, GetConfigPath(flagPath), "the flag wins over the environment")
}

func TestSaveGlobalConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultGlobalConfig()
	cfg.DetectorConfig.BaseURL = "https://app.example.com"
	cfg.DetectorConfig.ExcludeRegex = "vendor"

	for _, name := range []string{"out.yaml", "nested/out.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveGlobalConfig(cfg, path))

		loaded, err := LoadGlobalConfig(path, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, cfg.DetectorConfig, loaded.DetectorConfig, name)
	}
}

func TestDetectorConfig_ToOptions(t *testing.T) {
	interval := 2500
	dc := NewDefaultDetectorConfig()
	dc.BaseURL = "https://app.example.com"
	dc.PollingIntervalMs = &interval
	dc.NotifyType = "custom"
	dc.Extraction = "selector"
	dc.ScriptRegex = `<script src="(?P<src>[^"]+)"`
	dc.ExcludeScripts = []string{"/vendor/*"}
	dc.Debug = true

	opts, err := dc.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, opts.PollingInterval)
	assert.Equal(t, detector.NotifyCustom, opts.NotifyType)
	assert.Equal(t, detector.ExtractionSelector, opts.Extraction)
	assert.Equal(t, detector.ExcludeGlobList, opts.Exclude.Kind())
	assert.Equal(t, "https://app.example.com", opts.BaseURL)
	assert.True(t, opts.Debug)
	require.NotNil(t, opts.ScriptPattern)
	assert.Equal(t, 1, opts.ScriptPattern.SubexpIndex("src"))
}

func TestDetectorConfig_ToOptions_Exclusion(t *testing.T) {
	dc := NewDefaultDetectorConfig()
	dc.ExcludeRegex = `\.map$`
	opts, err := dc.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, detector.ExcludeSingleRegexp, opts.Exclude.Kind())

	dc.ExcludeScripts = []string{"*.js"}
	_, err = dc.ToOptions()
	assert.ErrorContains(t, err, "cannot be combined")

	dc.ExcludeScripts = nil
	dc.ExcludeRegex = "("
	_, err = dc.ToOptions()
	assert.Error(t, err)
}

func TestHTTPClientConfig_ToClientConfig(t *testing.T) {
	c := NewDefaultHTTPClientConfig()
	c.TimeoutSecs = 5
	c.CustomHeaders = map[string]string{"Authorization": "Basic abc"}

	out := c.ToClientConfig()
	assert.Equal(t, 5*time.Second, out.Timeout)
	assert.Equal(t, "Basic abc", out.CustomHeaders["Authorization"])
	assert.Equal(t, DefaultHTTPMaxContentSizeMB*1024*1024, out.MaxContentSize)
	require.NotNil(t, out.Retry)
	assert.Equal(t, DefaultHTTPRetryAttempts, out.Retry.MaxRetries)

	c.RetryAttempts = 0
	assert.Nil(t, c.ToClientConfig().Retry)
}
