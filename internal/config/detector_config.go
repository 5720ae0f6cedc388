package config

import (
	"regexp"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/detector"
)

// DetectorConfig mirrors detector.Options in file form.
type DetectorConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"required,url"`
	// PollingIntervalMs of null or 0 selects manual mode.
	PollingIntervalMs *int     `json:"polling_interval_ms" yaml:"polling_interval_ms" validate:"omitempty,min=0"`
	NotifyType        string   `json:"notify_type,omitempty" yaml:"notify_type,omitempty" validate:"omitempty,notifytype"`
	PauseOnHidden     bool     `json:"pause_on_hidden" yaml:"pause_on_hidden"`
	Immediate         bool     `json:"immediate" yaml:"immediate"`
	ResumeAfterReload bool     `json:"resume_after_reload" yaml:"resume_after_reload"`
	IndexPaths        []string `json:"index_paths,omitempty" yaml:"index_paths,omitempty" validate:"min=1,dive,required"`
	ScriptRegex       string   `json:"script_regex,omitempty" yaml:"script_regex,omitempty" validate:"omitempty,regexp"`
	Extraction        string   `json:"extraction,omitempty" yaml:"extraction,omitempty" validate:"omitempty,extraction"`
	ExcludeScripts    []string `json:"exclude_scripts,omitempty" yaml:"exclude_scripts,omitempty" validate:"omitempty,dive,required"`
	ExcludeRegex      string   `json:"exclude_regex,omitempty" yaml:"exclude_regex,omitempty" validate:"omitempty,regexp"`
	Debug             bool     `json:"debug" yaml:"debug"`
	PromptMessage     string   `json:"prompt_message,omitempty" yaml:"prompt_message,omitempty"`
	CacheControl      string   `json:"cache_control,omitempty" yaml:"cache_control,omitempty" validate:"omitempty,cachecontrol"`
}

// NewDefaultDetectorConfig creates default detector configuration
func NewDefaultDetectorConfig() DetectorConfig {
	interval := DefaultPollingIntervalMs
	return DetectorConfig{
		PollingIntervalMs: &interval,
		NotifyType:        DefaultNotifyType,
		PauseOnHidden:     true,
		Immediate:         true,
		IndexPaths:        []string{DefaultIndexPath},
		Extraction:        DefaultExtraction,
		PromptMessage:     detector.DefaultPromptMessage,
		CacheControl:      DefaultCacheControl,
	}
}

// PollingInterval converts the millisecond setting; nil means manual mode.
func (c DetectorConfig) PollingInterval() time.Duration {
	if c.PollingIntervalMs == nil {
		return 0
	}
	return time.Duration(*c.PollingIntervalMs) * time.Millisecond
}

// ToOptions builds detector options. Callbacks are left for the caller to wire.
func (c DetectorConfig) ToOptions() (detector.Options, error) {
	opts := detector.NewDefaultOptions()
	opts.BaseURL = c.BaseURL
	opts.PollingInterval = c.PollingInterval()
	opts.NotifyType = detector.NotifyType(c.NotifyType)
	opts.PauseOnHidden = c.PauseOnHidden
	opts.Immediate = c.Immediate
	opts.ResumeAfterReload = c.ResumeAfterReload
	opts.Extraction = detector.ExtractionMode(c.Extraction)
	opts.Debug = c.Debug
	opts.PromptMessage = c.PromptMessage
	opts.CacheControl = c.CacheControl
	if len(c.IndexPaths) > 0 {
		opts.IndexPaths = append([]string(nil), c.IndexPaths...)
	}

	if c.ScriptRegex != "" {
		re, err := regexp.Compile(c.ScriptRegex)
		if err != nil {
			return detector.Options{}, common.NewValidationError("script_regex", c.ScriptRegex, err.Error())
		}
		opts.ScriptPattern = re
	}

	switch {
	case len(c.ExcludeScripts) > 0 && c.ExcludeRegex != "":
		return detector.Options{}, common.NewConfigurationError("detector_config", "exclude_regex", "cannot be combined with exclude_scripts")
	case len(c.ExcludeScripts) > 0:
		opts.Exclude = detector.ExcludeGlobs(c.ExcludeScripts...)
	case c.ExcludeRegex != "":
		re, err := regexp.Compile(c.ExcludeRegex)
		if err != nil {
			return detector.Options{}, common.NewValidationError("exclude_regex", c.ExcludeRegex, err.Error())
		}
		opts.Exclude = detector.ExcludeRegexp(re)
	}

	return opts, nil
}
