package detector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/httpclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_CacheBusting(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("timestamp"))
		mu.Unlock()
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		assert.Equal(t, "v2", r.URL.Query().Get("build"))
		assert.Equal(t, "/app/index.html", r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<script src="/a.js"></script>`))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(server.URL+"/app/", "no-cache", nil, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		body, err := f.Fetch(context.Background(), "index.html?build=v2")
		require.NoError(t, err)
		assert.Equal(t, `<script src="/a.js"></script>`, body)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.NotEmpty(t, seen[0])
	assert.NotEqual(t, seen[0], seen[1])
	assert.NotEqual(t, seen[1], seen[2])
}

func TestHTTPFetcher_RetryGetsFreshCacheBust(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("timestamp"))
		first := len(seen) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<script src="/a.js"></script>`))
	}))
	defer server.Close()

	client, err := httpclient.NewHTTPClientBuilder(zerolog.Nop()).
		WithRetry(httpclient.RetryHandlerConfig{
			MaxRetries:       2,
			BaseDelay:        time.Millisecond,
			MaxDelay:         5 * time.Millisecond,
			RetryStatusCodes: []int{http.StatusServiceUnavailable},
		}).
		Build()
	require.NoError(t, err)

	f, err := NewHTTPFetcher(server.URL, "no-cache", client, zerolog.Nop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "/")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.NotEmpty(t, seen[1])
	assert.NotEqual(t, seen[0], seen[1])
}

func TestHTTPFetcher_DecodesCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<script src=\"/caf\xe9.js\"></script>"))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(server.URL, "no-cache", nil, zerolog.Nop())
	require.NoError(t, err)

	body, err := f.Fetch(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, `<script src="/café.js"></script>`, body)
}

func TestHTTPFetcher_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<script src="/ok.js"></script>`))
		}
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(server.URL, "no-cache", nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "/missing")
	var hErr *common.HTTPError
	require.True(t, errors.As(err, &hErr))
	assert.Equal(t, http.StatusNotFound, hErr.StatusCode)

	_, err = f.Fetch(context.Background(), "/image")
	assert.ErrorIs(t, err, common.ErrNotText)

	results := FetchAll(context.Background(), f, []string{"/missing", "/", "/image"})
	require.Len(t, results, 3)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, `<script src="/ok.js"></script>`, results[1].Body)
	assert.Error(t, results[2].Err)
}

func TestNewHTTPFetcher_RequiresAbsoluteBase(t *testing.T) {
	_, err := NewHTTPFetcher("/relative", "no-cache", nil, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestCacheDirective(t *testing.T) {
	assert.Equal(t, "no-cache", cacheDirective("no-cache"))
	assert.Equal(t, "no-cache", cacheDirective("reload"))
	assert.Equal(t, "no-store", cacheDirective("no-store"))
	assert.Equal(t, "", cacheDirective("default"))
	assert.Equal(t, "max-stale", cacheDirective("force-cache"))
	assert.Equal(t, "max-age=0", cacheDirective("max-age=0"))
}

func TestIsTextual(t *testing.T) {
	assert.True(t, isTextual(""))
	assert.True(t, isTextual("text/html; charset=utf-8"))
	assert.True(t, isTextual("application/xhtml+xml"))
	assert.False(t, isTextual("application/octet-stream"))
	assert.False(t, isTextual("image/png"))
}
