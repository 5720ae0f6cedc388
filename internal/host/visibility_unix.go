//go:build !windows

package host

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// WatchVisibility maps SIGUSR1 to hidden and SIGUSR2 to visible until ctx ends.
func WatchVisibility(ctx context.Context, setVisible func(bool), logger zerolog.Logger) {
	logger = logger.With().Str("component", "Visibility").Logger()
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				visible := sig == syscall.SIGUSR2
				logger.Debug().Bool("visible", visible).Msg("Visibility signal received")
				setVisible(visible)
			}
		}
	}()
}
