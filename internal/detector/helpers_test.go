package detector

import (
	"context"
	"sync"
	"time"
)

// fakeFetcher serves a sequence of pages per path; the last page repeats.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string][]string
	errs    map[string]error
	calls   map[string]int
	total   int
	release chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string][]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) serve(path string, pages ...string) *fakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path] = pages
	return f
}

func (f *fakeFetcher) fail(path string, err error) *fakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[path] = err
	return f
}

// block makes every Fetch wait until unblock is called.
func (f *fakeFetcher) block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release = make(chan struct{})
}

func (f *fakeFetcher) unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.release != nil {
		close(f.release)
		f.release = nil
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	f.total++
	n := f.calls[path]
	f.calls[path] = n + 1
	release := f.release
	pages := f.pages[path]
	err := f.errs[path]
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", nil
	}
	if n >= len(pages) {
		n = len(pages) - 1
	}
	return pages[n], nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

type fakeHost struct {
	mu        sync.Mutex
	answer    bool
	prompts   []string
	reloads   int
	reloadErr error
}

func (h *fakeHost) Confirm(_ context.Context, message string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts = append(h.prompts, message)
	return h.answer
}

func (h *fakeHost) Reload(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reloadErr != nil {
		return h.reloadErr
	}
	h.reloads++
	return nil
}

func (h *fakeHost) reloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

func (h *fakeHost) promptCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prompts)
}

func manualOptions(paths ...string) Options {
	opts := NewDefaultOptions()
	opts.PollingInterval = 0
	if len(paths) > 0 {
		opts.IndexPaths = paths
	}
	return opts
}

func autoOptions(interval time.Duration) Options {
	opts := NewDefaultOptions()
	opts.PollingInterval = interval
	opts.Immediate = false
	return opts
}

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)
