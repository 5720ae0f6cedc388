package detector

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
)

// NotifyType selects how the reload decision is made.
type NotifyType string

const (
	// NotifyConfirm asks the Host with the prompt message.
	NotifyConfirm NotifyType = "confirm"
	// NotifyCustom delegates the decision to Options.OnUpdate.
	NotifyCustom NotifyType = "custom"
)

// ExtractionMode selects the script reference extractor.
type ExtractionMode string

const (
	ExtractionRegex    ExtractionMode = "regex"
	ExtractionSelector ExtractionMode = "selector"
)

const (
	DefaultPollingInterval = 10 * time.Second
	DefaultIndexPath       = "/"
	DefaultCacheControl    = "no-cache"
	DefaultPromptMessage   = "A new version has been deployed. Reload now to update?"
)

// Options configures a Detector. It is copied at construction and never mutated afterwards.
type Options struct {
	// PollingInterval of zero selects manual mode.
	PollingInterval time.Duration
	NotifyType      NotifyType
	// OnUpdate decides whether to reload in NotifyCustom mode.
	OnUpdate func(ctx context.Context) (bool, error)
	// OnDetected fires once per detected update, before the reload decision.
	OnDetected func(Update)
	// OnError receives per-entry fetch failures and auto-mode round failures.
	OnError func(error)

	PauseOnHidden bool
	Immediate     bool
	// ResumeAfterReload restarts polling once the Host reloaded.
	ResumeAfterReload bool

	IndexPaths []string
	// ScriptPattern must expose a named group "src". Nil selects DefaultScriptPattern.
	ScriptPattern *regexp.Regexp
	Extraction    ExtractionMode
	Exclude       ExcludeSpec

	Debug         bool
	PromptMessage string
	CacheControl  string
	// BaseURL is used to build an HTTPFetcher when New is given no Fetcher.
	BaseURL string
}

// NewDefaultOptions returns auto-mode options polling "/" every ten seconds.
func NewDefaultOptions() Options {
	return Options{
		PollingInterval: DefaultPollingInterval,
		NotifyType:      NotifyConfirm,
		PauseOnHidden:   true,
		Immediate:       true,
		IndexPaths:      []string{DefaultIndexPath},
		Extraction:      ExtractionRegex,
		PromptMessage:   DefaultPromptMessage,
		CacheControl:    DefaultCacheControl,
	}
}

// Mode reports whether the detector polls by itself.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

func (o Options) mode() Mode {
	if o.PollingInterval == 0 {
		return ModeManual
	}
	return ModeAuto
}

// withDefaults fills zero values and returns a private copy.
func (o Options) withDefaults() Options {
	if o.NotifyType == "" {
		o.NotifyType = NotifyConfirm
	}
	if o.Extraction == "" {
		o.Extraction = ExtractionRegex
	}
	if o.PromptMessage == "" {
		o.PromptMessage = DefaultPromptMessage
	}
	if o.CacheControl == "" {
		o.CacheControl = DefaultCacheControl
	}
	if o.ScriptPattern == nil {
		o.ScriptPattern = DefaultScriptPattern
	}
	o.IndexPaths = append([]string(nil), o.IndexPaths...)
	if len(o.IndexPaths) == 0 {
		o.IndexPaths = []string{DefaultIndexPath}
	}
	return o
}

func (o Options) validate() error {
	if o.PollingInterval < 0 {
		return common.NewValidationError("polling_interval", o.PollingInterval, "must not be negative")
	}
	switch o.NotifyType {
	case NotifyConfirm, NotifyCustom:
	default:
		return common.NewValidationError("notify_type", o.NotifyType, "must be 'confirm' or 'custom'")
	}
	switch o.Extraction {
	case ExtractionRegex, ExtractionSelector:
	default:
		return common.NewValidationError("extraction", o.Extraction, "must be 'regex' or 'selector'")
	}
	for _, p := range o.IndexPaths {
		if strings.TrimSpace(p) == "" {
			return common.NewValidationError("index_paths", o.IndexPaths, "entry point paths must not be empty")
		}
	}
	return nil
}
