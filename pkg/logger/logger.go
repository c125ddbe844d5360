package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pixivrank/pkg/config"
)

// Version is stamped on every log line
var Version = "dev"

// Logger is the structured logger handed to every component
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
}

// zlog keeps child fields in the zerolog context, so a child never touches
// its parent
type zlog struct {
	zl zerolog.Logger
}

// New creates a Logger from the logging section of the configuration.
// Console output goes to stderr so it does not interleave with progress bars.
func New(cfg *config.LoggingConfig) (Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit console destination. A log file, when
// configured, always receives JSON lines.
func NewWithWriter(cfg *config.LoggingConfig, console io.Writer) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer
	switch strings.ToLower(cfg.Format) {
	case "json":
		output = console
	case "", "console", "pretty":
		output = consoleWriter(console, os.Getenv("NO_COLOR") != "")
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	if cfg.File != "" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		output = zerolog.MultiLevelWriter(output, file)
	}

	zl := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("app", "pixivrank").
		Str("version", Version).
		Logger()
	return &zlog{zl: zl}, nil
}

var levelTags = map[string][2]string{
	"debug": {"DEBG", "\033[37mDEBG\033[0m"},
	"info":  {"INFO", "\033[32mINFO\033[0m"},
	"warn":  {"WARN", "\033[33mWARN\033[0m"},
	"error": {"ERRO", "\033[31mERRO\033[0m"},
}

func consoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	w := zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       noColor,
		TimeFormat:    "15:04:05",
		FieldsExclude: []string{"app", "version"},
	}
	w.FormatLevel = func(i interface{}) string {
		level, _ := i.(string)
		tags, ok := levelTags[level]
		switch {
		case !ok:
			return strings.ToUpper(level)
		case noColor:
			return tags[0]
		default:
			return tags[1]
		}
	}
	w.FormatMessage = func(i interface{}) string {
		if i == nil {
			return ""
		}
		return fmt.Sprintf("| %s", i)
	}
	return w
}

// openLogFile appends to path, creating its directory
func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %q", level)
	}
}

func (l *zlog) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *zlog) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *zlog) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *zlog) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *zlog) WithField(key string, value interface{}) Logger {
	return &zlog{zl: l.zl.With().Fields(map[string]interface{}{key: value}).Logger()}
}

func (l *zlog) WithFields(fields map[string]interface{}) Logger {
	return &zlog{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *zlog) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &zlog{zl: l.zl.With().Err(err).Logger()}
}

func (l *zlog) DebugWithFields(msg string, fields map[string]interface{}) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *zlog) InfoWithFields(msg string, fields map[string]interface{}) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *zlog) WarnWithFields(msg string, fields map[string]interface{}) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

func (l *zlog) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.zl.Error().Fields(fields).Msg(msg)
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// SetLogger replaces the process-wide logger used by GetLogger
func SetLogger(l Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetLogger returns the process-wide logger, creating an info-level console
// logger on first use
func GetLogger() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}
