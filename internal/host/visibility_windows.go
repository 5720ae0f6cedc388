//go:build windows

package host

import (
	"context"

	"github.com/rs/zerolog"
)

// WatchVisibility is a no-op: there are no user signals on Windows.
func WatchVisibility(ctx context.Context, setVisible func(bool), logger zerolog.Logger) {}
