package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog providing the field-chaining API
// used throughout the services.
type Logger struct {
	zl zerolog.Logger
}

// Config controls log level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// New builds a logger from the provided configuration.
func New(cfg Config, component string) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(os.Stderr)
	}
	zl = zl.Level(level).With().Timestamp().Str("component", component).Logger()
	return &Logger{zl: zl}
}

// NewDefault returns a JSON logger at info level for the given component.
func NewDefault(component string) *Logger {
	return New(Config{Level: "info"}, component)
}

// WithField returns a logger with an additional structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger carrying the error as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string)                  { l.zl.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string)                   { l.zl.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string)                   { l.zl.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(msg string)                  { l.zl.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }
func (l *Logger) Fatal(msg string)                  { l.zl.Fatal().Msg(msg) }
