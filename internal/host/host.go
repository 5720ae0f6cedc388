// Package host provides the command-line stand-in for the watched application:
// terminal prompts, a reload command and signal-driven visibility.
package host

import "context"

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// Reloader performs the reload.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Host pairs a Confirmer and a Reloader into a detector.Host.
type Host struct {
	Confirmer
	Reloader
}

// New combines c and r.
func New(c Confirmer, r Reloader) *Host {
	return &Host{Confirmer: c, Reloader: r}
}

// FixedAnswer always gives the same answer without prompting.
type FixedAnswer bool

func (a FixedAnswer) Confirm(context.Context, string) bool {
	return bool(a)
}
