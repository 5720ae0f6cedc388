package host

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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

func TestTerminal_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  y  \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"", false},
	}
	for _, tt := range tests {
		out := &syncBuffer{}
		term := NewTerminal(strings.NewReader(tt.input), out)
		assert.Equal(t, tt.want, term.Confirm(context.Background(), "Reload now?"), "input %q", tt.input)
		assert.Contains(t, out.String(), "Reload now? [y/N]: ")
	}
}

func TestTerminal_ConfirmCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term := NewTerminal(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, term.Confirm(ctx, "Reload?"))
}

func TestTerminal_SharedLines(t *testing.T) {
	term := NewTerminal(strings.NewReader("check\ny\ncheck\n"), io.Discard)

	assert.Equal(t, "check", <-term.Lines())
	assert.True(t, term.Confirm(context.Background(), "Reload?"))
	assert.Equal(t, "check", <-term.Lines())

	_, ok := <-term.Lines()
	assert.False(t, ok)
}

func TestFixedAnswer(t *testing.T) {
	h := New(FixedAnswer(true), NewCommandReloader(nil, 0, nopLogger()))
	assert.True(t, h.Confirm(context.Background(), "ignored"))
	assert.NoError(t, h.Reload(context.Background()))
}
