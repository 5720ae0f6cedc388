package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aleister1102/deploywatch/internal/config"
	"github.com/aleister1102/deploywatch/internal/history"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// deployServer serves a page whose bundle name changes when deploy is called.
// With deployAfterFirst, every request after the first sees version 2.
type deployServer struct {
	*httptest.Server
	version          atomic.Int32
	hits             atomic.Int32
	deployAfterFirst bool
}

func newDeployServer(t *testing.T, deployAfterFirst ...bool) *deployServer {
	s := &deployServer{deployAfterFirst: len(deployAfterFirst) > 0 && deployAfterFirst[0]}
	s.version.Store(1)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hits.Add(1) == 2 && s.deployAfterFirst {
			s.deploy()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head><script src="/static/main.%d.js"></script></head></html>`, s.version.Load())
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *deployServer) deploy() {
	s.version.Add(1)
}

func testConfig(t *testing.T, baseURL string) *config.GlobalConfig {
	cfg := config.NewDefaultGlobalConfig()
	cfg.DetectorConfig.BaseURL = baseURL
	cfg.DetectorConfig.PollingIntervalMs = nil
	cfg.DetectorConfig.NotifyType = "custom"
	cfg.HostConfig.AutoReload = false
	cfg.HTTPClientConfig.RetryAttempts = 0
	cfg.HistoryConfig.Enabled = true
	cfg.HistoryConfig.SQLiteDBPath = filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, config.ValidateConfig(cfg))
	return cfg
}

func newTestApp(t *testing.T, cfg *config.GlobalConfig, in io.Reader, out io.Writer) *app {
	a, err := newApp(cfg, zerolog.Nop(), in, out)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestRunCheck_NoChange(t *testing.T) {
	srv := newDeployServer(t)
	a := newTestApp(t, testConfig(t, srv.URL), strings.NewReader(""), io.Discard)

	updated, err := a.runCheck(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRunCheck_DeploymentRecorded(t *testing.T) {
	srv := newDeployServer(t, true)
	out := &syncBuffer{}
	a := newTestApp(t, testConfig(t, srv.URL), strings.NewReader(""), out)

	updated, err := a.runCheck(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, updated)

	assert.Contains(t, out.String(), "+ /::/static/main.2.js")
	assert.Contains(t, out.String(), "- /::/static/main.1.js")
	assert.Contains(t, out.String(), "auto_reload=false")

	events, err := a.history.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, history.KindUpdate, events[0].Kind)
	assert.Equal(t, srv.URL, events[0].BaseURL)
	assert.Equal(t, []string{"/::/static/main.2.js"}, events[0].Added)
}

func TestRunCheck_Cancelled(t *testing.T) {
	srv := newDeployServer(t)
	a := newTestApp(t, testConfig(t, srv.URL), strings.NewReader(""), io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	updated, err := a.runCheck(ctx, time.Minute)
	assert.False(t, updated)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunWatch_ManualChecksPerLine(t *testing.T) {
	srv := newDeployServer(t)
	in, inWriter := io.Pipe()
	defer inWriter.Close()
	out := &syncBuffer{}
	a := newTestApp(t, testConfig(t, srv.URL), in, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, nil) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "press Enter")
	}, 2*time.Second, 5*time.Millisecond)

	_, err := io.WriteString(inWriter, "\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "No new deployment")
	}, 2*time.Second, 5*time.Millisecond)

	srv.deploy()
	_, err = io.WriteString(inWriter, "\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := a.history.Count(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestRunWatch_ConfigReloadRebuildsDetector(t *testing.T) {
	srv := newDeployServer(t)
	out := &syncBuffer{}
	cfg := testConfig(t, srv.URL)
	a := newTestApp(t, cfg, strings.NewReader(""), out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *config.GlobalConfig, 1)
	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, changes) }()

	reloaded := *cfg
	interval := 10
	reloaded.DetectorConfig.PollingIntervalMs = &interval
	changes <- &reloaded

	require.Eventually(t, func() bool {
		return a.config().DetectorConfig.PollingInterval() == 10*time.Millisecond
	}, 2*time.Second, 5*time.Millisecond)

	// the rebuilt detector polls on its own
	time.Sleep(50 * time.Millisecond)
	srv.deploy()
	require.Eventually(t, func() bool {
		n, err := a.history.Count(context.Background())
		return err == nil && n >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRunWatch_ConfigReloadKeepsVisibility(t *testing.T) {
	srv := newDeployServer(t)
	out := &syncBuffer{}
	cfg := testConfig(t, srv.URL)
	a := newTestApp(t, cfg, strings.NewReader(""), out)

	setters := make(chan func(bool), 1)
	a.watchVisibility = func(_ context.Context, setVisible func(bool), _ zerolog.Logger) {
		setters <- setVisible
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *config.GlobalConfig, 1)
	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, changes) }()

	var setVisible func(bool)
	select {
	case setVisible = <-setters:
	case <-time.After(2 * time.Second):
		t.Fatal("visibility watcher was not installed")
	}
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "press Enter")
	}, 2*time.Second, 5*time.Millisecond)
	setVisible(false)
	before := srv.hits.Load()

	reloaded := *cfg
	interval := 10
	reloaded.DetectorConfig.PollingIntervalMs = &interval
	changes <- &reloaded
	require.Eventually(t, func() bool {
		return a.config().DetectorConfig.PollingInterval() == 10*time.Millisecond
	}, 2*time.Second, 5*time.Millisecond)

	// hidden: the rebuilt detector pauses instead of fetching
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, srv.hits.Load())

	setVisible(true)
	require.Eventually(t, func() bool {
		return srv.hits.Load() > before
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRunWatch_StatusServer(t *testing.T) {
	srv := newDeployServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.StatusConfig.Enabled = true
	cfg.StatusConfig.ListenAddr = "127.0.0.1:0"
	a := newTestApp(t, cfg, strings.NewReader(""), io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, nil) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestPrintHistory(t *testing.T) {
	db, err := history.NewDB(filepath.Join(t.TempDir(), "h.db"), 0, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	var out bytes.Buffer
	require.NoError(t, printHistory(context.Background(), db, 5, &out))
	assert.Contains(t, out.String(), "No recorded events")

	_, err = db.Record(context.Background(), history.Event{Kind: history.KindUpdate, BaseURL: "https://app.example.com", Added: []string{"/::/a.js"}, Scripts: 3})
	require.NoError(t, err)
	_, err = db.Record(context.Background(), history.Event{Kind: history.KindError, BaseURL: "https://app.example.com", Message: "timeout"})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, printHistory(context.Background(), db, 5, &out))
	assert.Contains(t, out.String(), "update  https://app.example.com  +1 -0  (3 scripts)")
	assert.Contains(t, out.String(), "error  https://app.example.com  timeout")
}
