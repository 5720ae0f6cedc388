package detector

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/httpclient"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const cacheBustParam = "timestamp"

// Fetcher returns the HTML text of one entry point.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (string, error)
}

// FetchResult is the outcome for one entry point. Exactly one of Body or Err is meaningful.
type FetchResult struct {
	Path string
	Body string
	Err  error
}

// FetchAll fetches every path in order. A failing path never aborts the others.
func FetchAll(ctx context.Context, f Fetcher, paths []string) []FetchResult {
	results := make([]FetchResult, 0, len(paths))
	for _, p := range paths {
		body, err := f.Fetch(ctx, p)
		results = append(results, FetchResult{Path: p, Body: body, Err: err})
	}
	return results
}

// HTTPFetcher fetches entry points relative to a base URL, bypassing caches.
type HTTPFetcher struct {
	base         *url.URL
	client       *httpclient.HTTPClient
	cacheControl string
	logger       zerolog.Logger

	mu       sync.Mutex
	lastBust int64
}

// NewHTTPFetcher builds a fetcher; a nil client gets the default HTTP client.
func NewHTTPFetcher(baseURL, cacheControl string, client *httpclient.HTTPClient, logger zerolog.Logger) (*HTTPFetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, common.NewValidationError("base_url", baseURL, "must be an absolute http(s) URL")
	}
	if client == nil {
		client, err = httpclient.NewHTTPClientBuilder(logger).Build()
		if err != nil {
			return nil, common.WrapError(err, "failed to build HTTP client")
		}
	}
	return &HTTPFetcher{
		base:         base,
		client:       client,
		cacheControl: cacheDirective(cacheControl),
		logger:       logger.With().Str("component", "HTTPFetcher").Logger(),
	}, nil
}

// Fetch resolves path, adds a cache-busting parameter and decodes the body to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) (string, error) {
	target, err := f.resolve(path)
	if err != nil {
		return "", err
	}

	result, err := f.client.FetchContent(httpclient.FetchContentInput{
		URL:          target,
		Context:      ctx,
		CacheControl: f.cacheControl,
		Prepare:      f.bust,
	})
	if err != nil {
		return "", err
	}

	if !isTextual(result.ContentType) {
		return "", common.WrapErrorf(common.ErrNotText, "entry point '%s' returned '%s'", path, result.ContentType)
	}

	reader, err := charset.NewReader(bytes.NewReader(result.Content), result.ContentType)
	if err != nil {
		return "", common.WrapErrorf(common.ErrNotText, "entry point '%s': %v", path, err)
	}
	text, err := io.ReadAll(reader)
	if err != nil {
		return "", common.WrapErrorf(common.ErrNotText, "entry point '%s': %v", path, err)
	}

	f.logger.Debug().Str("url", target).Int("bytes", len(text)).Msg("Fetched entry point")
	return string(text), nil
}

func (f *HTTPFetcher) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", common.NewValidationError("index_paths", path, "not a valid URL path")
	}
	return f.base.ResolveReference(ref).String(), nil
}

// bust stamps each outgoing attempt, retries included, with a fresh cache-busting value.
func (f *HTTPFetcher) bust(req *http.Request) {
	q := req.URL.Query()
	q.Set(cacheBustParam, strconv.FormatInt(f.nextBust(), 10))
	req.URL.RawQuery = q.Encode()
}

// nextBust returns the current unix millisecond, bumped so no two requests share a value.
func (f *HTTPFetcher) nextBust() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= f.lastBust {
		now = f.lastBust + 1
	}
	f.lastBust = now
	return now
}

// cacheDirective maps fetch cache modes onto Cache-Control; anything else is sent verbatim.
func cacheDirective(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "default":
		return ""
	case "reload", "no-cache":
		return "no-cache"
	case "force-cache":
		return "max-stale"
	default:
		return mode
	}
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	return strings.HasSuffix(mediaType, "+xml") || mediaType == "application/xml" || mediaType == "application/xhtml+xml"
}
