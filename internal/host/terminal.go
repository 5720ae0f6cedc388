package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal reads lines from one input for both prompts and manual triggers.
type Terminal struct {
	lines chan string
	out   io.Writer
	mu    sync.Mutex
}

// NewTerminal starts reading in. The line channel closes at EOF.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{lines: make(chan string), out: out}
	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
	}()
	return t
}

// Lines delivers input lines not consumed by Confirm.
func (t *Terminal) Lines() <-chan string {
	return t.lines
}

// Confirm prints message and waits for a yes/no answer. EOF, cancellation and
// anything but y/yes count as no.
func (t *Terminal) Confirm(ctx context.Context, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "%s [y/N]: ", message)
	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return false
	case line, ok := <-t.lines:
		if !ok {
			fmt.Fprintln(t.out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

// Printf writes to the terminal output.
func (t *Terminal) Printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}
