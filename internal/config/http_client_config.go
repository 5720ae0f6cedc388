package config

import (
	"net/http"
	"time"

	"github.com/aleister1102/deploywatch/internal/httpclient"
)

// HTTPClientConfig configures the client used for entry points and webhooks.
type HTTPClientConfig struct {
	TimeoutSecs        int               `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty" validate:"min=1"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	FollowRedirects    bool              `json:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects       int               `json:"max_redirects,omitempty" yaml:"max_redirects,omitempty" validate:"min=0"`
	Proxy              string            `json:"proxy,omitempty" yaml:"proxy,omitempty" validate:"omitempty,url"`
	UserAgent          string            `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
	MaxContentSizeMB   int               `json:"max_content_size_mb,omitempty" yaml:"max_content_size_mb,omitempty" validate:"min=0"`
	EnableHTTP2        bool              `json:"enable_http2" yaml:"enable_http2"`
	RetryAttempts      int               `json:"retry_attempts" yaml:"retry_attempts" validate:"min=0"`
	RetryBaseDelayMs   int               `json:"retry_base_delay_ms,omitempty" yaml:"retry_base_delay_ms,omitempty" validate:"min=0"`
}

// NewDefaultHTTPClientConfig creates default HTTP client configuration
func NewDefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		TimeoutSecs:      DefaultHTTPTimeoutSecs,
		FollowRedirects:  true,
		MaxRedirects:     DefaultHTTPMaxRedirects,
		UserAgent:        DefaultHTTPUserAgent,
		CustomHeaders:    map[string]string{},
		MaxContentSizeMB: DefaultHTTPMaxContentSizeMB,
		EnableHTTP2:      true,
		RetryAttempts:    DefaultHTTPRetryAttempts,
		RetryBaseDelayMs: DefaultHTTPRetryBaseDelayMs,
	}
}

// ToClientConfig converts the file settings into httpclient settings.
func (c HTTPClientConfig) ToClientConfig() httpclient.HTTPClientConfig {
	out := httpclient.DefaultHTTPClientConfig()
	out.Timeout = time.Duration(c.TimeoutSecs) * time.Second
	out.InsecureSkipVerify = c.InsecureSkipVerify
	out.FollowRedirects = c.FollowRedirects
	out.MaxRedirects = c.MaxRedirects
	out.Proxy = c.Proxy
	out.MaxContentSize = c.MaxContentSizeMB * 1024 * 1024
	out.EnableHTTP2 = c.EnableHTTP2
	if c.UserAgent != "" {
		out.UserAgent = c.UserAgent
	}
	for k, v := range c.CustomHeaders {
		out.CustomHeaders[k] = v
	}

	if c.RetryAttempts > 0 {
		retry := httpclient.DefaultRetryHandlerConfig()
		retry.MaxRetries = c.RetryAttempts
		if c.RetryBaseDelayMs > 0 {
			retry.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
		}
		if retry.MaxDelay < retry.BaseDelay {
			retry.MaxDelay = retry.BaseDelay
		}
		retry.RetryStatusCodes = append(retry.RetryStatusCodes, http.StatusInternalServerError)
		out.Retry = &retry
	}
	return out
}
