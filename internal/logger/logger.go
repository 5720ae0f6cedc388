package logger

import (
	"io"
	stdlog "log"
	"os"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/config"
	"github.com/rs/zerolog"
)

// Logger owns the zerolog instance and any rotating file behind it.
type Logger struct {
	zerolog zerolog.Logger
	config  LoggerConfig
	closer  io.Closer
}

// Zerolog returns the underlying zerolog instance.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zerolog
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// LoggerBuilder provides fluent interface for building loggers
type LoggerBuilder struct {
	config LoggerConfig
}

// NewLoggerBuilder creates a new logger builder
func NewLoggerBuilder() *LoggerBuilder {
	return &LoggerBuilder{config: DefaultLoggerConfig()}
}

// WithConfig applies file settings.
func (lb *LoggerBuilder) WithConfig(cfg config.LogConfig) *LoggerBuilder {
	console := lb.config.Console
	lb.config = FromLogConfig(cfg)
	lb.config.Console = console
	return lb
}

// Build creates the logger instance
func (lb *LoggerBuilder) Build() (*Logger, error) {
	cfg := lb.config
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	var (
		writers []io.Writer
		closer  io.Closer
	)
	if cfg.EnableConsole {
		out := cfg.Console
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, strategyFor(cfg.Format, false).CreateWriter(out))
	}
	if cfg.EnableFile {
		file, err := newFileWriter(cfg)
		if err != nil {
			return nil, common.WrapErrorf(err, "failed to prepare log file '%s'", cfg.FilePath)
		}
		writers = append(writers, strategyFor(cfg.Format, true).CreateWriter(file))
		closer = file
	}
	if len(writers) == 0 {
		return nil, common.NewError("no output writers configured")
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()

	// stray log.Printf calls from libraries land in the same sinks
	stdlog.SetOutput(zl)
	stdlog.SetFlags(0)

	return &Logger{zerolog: zl, config: cfg, closer: closer}, nil
}

func validateConfig(cfg LoggerConfig) error {
	if cfg.EnableFile && cfg.FilePath == "" {
		return common.NewValidationError("log_file", cfg.FilePath, "file path required when file logging enabled")
	}
	if cfg.EnableFile && cfg.MaxSizeMB <= 0 {
		return common.NewValidationError("max_log_size_mb", cfg.MaxSizeMB, "max size must be positive")
	}
	return nil
}

// New builds a logger from file settings.
func New(cfg config.LogConfig) (*Logger, error) {
	return NewLoggerBuilder().WithConfig(cfg).Build()
}
