package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aleister1102/deploywatch/internal/config"
	"github.com/aleister1102/deploywatch/internal/history"
	"github.com/aleister1102/deploywatch/internal/logger"
	"github.com/rs/zerolog"
)

const (
	exitOK       = 0
	exitError    = 1
	exitDeployed = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := ParseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
		return exitError
	}

	bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	managerOpts := config.DefaultConfigManagerOptions()
	managerOpts.Logger = bootLogger
	managerOpts.Override = func(cfg *config.GlobalConfig) {
		if flags.BaseURL != "" {
			cfg.DetectorConfig.BaseURL = flags.BaseURL
		}
	}
	cm, err := config.NewConfigManager(flags.GlobalConfigFile, managerOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] Could not load configuration: %v\n", err)
		return exitError
	}
	defer cm.Close()
	gCfg := cm.GetConfig()

	if flags.WriteConfig != "" {
		if err := config.SaveGlobalConfig(gCfg, flags.WriteConfig); err != nil {
			fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
			return exitError
		}
		fmt.Fprintf(os.Stdout, "Configuration written to %s\n", flags.WriteConfig)
		return exitOK
	}

	appLogger, err := logger.New(gCfg.LogConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] Could not initialize logger: %v\n", err)
		return exitError
	}
	defer appLogger.Close()
	zLogger := appLogger.Zerolog()
	zLogger.Debug().Str("config_path", cm.GetConfigPath()).Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			zLogger.Info().Str("signal", sig.String()).Msg("Received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if flags.History > 0 {
		return showHistory(ctx, gCfg, flags.History, zLogger)
	}

	a, err := newApp(gCfg, zLogger, os.Stdin, os.Stdout)
	if err != nil {
		zLogger.Error().Err(err).Msg("Failed to initialize")
		return exitError
	}
	defer a.close()

	switch flags.Mode {
	case modeCheck:
		updated, err := a.runCheck(ctx, flags.Wait)
		if err != nil {
			zLogger.Error().Err(err).Msg("Check failed")
			if !updated {
				return exitError
			}
		}
		if updated {
			return exitDeployed
		}
		return exitOK

	default:
		var changes chan *config.GlobalConfig
		if gCfg.HostConfig.WatchConfig && cm.GetConfigPath() != "" {
			changes = make(chan *config.GlobalConfig, 1)
			err := cm.Watch(ctx, func(cfg *config.GlobalConfig) {
				select {
				case changes <- cfg:
				case <-ctx.Done():
				}
			})
			if err != nil {
				zLogger.Warn().Err(err).Msg("Configuration hot reload unavailable")
			}
		}
		if err := a.runWatch(ctx, changes); err != nil {
			zLogger.Error().Err(err).Msg("Detector failed")
			return exitError
		}
		return exitOK
	}
}

func showHistory(ctx context.Context, cfg *config.GlobalConfig, n int, logger zerolog.Logger) int {
	if !cfg.HistoryConfig.Enabled {
		fmt.Fprintln(os.Stderr, "history_config.enabled is false, nothing recorded")
		return exitError
	}
	db, err := history.NewDB(cfg.HistoryConfig.SQLiteDBPath, cfg.HistoryConfig.MaxEvents, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open history database")
		return exitError
	}
	defer db.Close()
	if err := printHistory(ctx, db, n, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("Failed to read history")
		return exitError
	}
	return exitOK
}
