package host

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/rs/zerolog"
)

// CommandReloader performs a reload by running a command.
type CommandReloader struct {
	argv    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCommandReloader returns a reloader for argv. An empty argv only logs;
// a zero timeout means none.
func NewCommandReloader(argv []string, timeout time.Duration, logger zerolog.Logger) *CommandReloader {
	return &CommandReloader{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger.With().Str("component", "Reloader").Logger(),
	}
}

// Reload runs the command and waits for it.
func (r *CommandReloader) Reload(ctx context.Context) error {
	if len(r.argv) == 0 {
		r.logger.Info().Msg("Reload approved, no reload command configured")
		return nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second

	start := time.Now()
	r.logger.Info().Strs("command", r.argv).Msg("Running reload command")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		msg := strings.TrimSpace(output.String())
		r.logger.Error().Err(err).Str("output", msg).Msg("Reload command failed")
		return common.WrapErrorf(err, "reload command %q failed: %s", strings.Join(r.argv, " "), msg)
	}
	r.logger.Info().Dur("duration", time.Since(start)).Msg("Reload command finished")
	return nil
}
