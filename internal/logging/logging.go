package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	scopeFieldName = "scope"
	runIDFieldName = "run_id"
)

// Options configures New.
type Options struct {
	Debug bool
	// Out receives console output. Defaults to os.Stderr; stdout belongs to the renderer.
	Out io.Writer
	// File, when set, also receives JSON log lines.
	File  string
	RunID string
}

// New builds the application logger. The returned closer releases the log file, if any.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			scopeFieldName,
			zerolog.MessageFieldName,
		},
		// Render the scope as [SCOPE] instead of scope=SCOPE.
		FormatPrepare: func(m map[string]any) error {
			if v, ok := m[scopeFieldName].(string); ok && v != "" {
				m[scopeFieldName] = fmt.Sprintf("[%s]", v)
			} else {
				m[scopeFieldName] = "[app]"
			}
			return nil
		},
		FieldsExclude: []string{scopeFieldName, runIDFieldName},
	}

	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		w = zerolog.MultiLevelWriter(console, f)
		closer = f
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str(runIDFieldName, opts.RunID)
	}
	return ctx.Logger(), closer, nil
}

// WithScope returns a sub-logger tagged with a component name.
func WithScope(logger zerolog.Logger, scope string) zerolog.Logger {
	return logger.With().Str(scopeFieldName, scope).Logger()
}

type joinableError interface {
	Unwrap() []error
}

// ErrorUnwrapped logs each error of a joined error on its own line.
func ErrorUnwrapped(logger *zerolog.Logger, msg string, err error) {
	logUnwrapped(logger, zerolog.ErrorLevel, msg, err)
}

func WarnUnwrapped(logger *zerolog.Logger, msg string, err error) {
	logUnwrapped(logger, zerolog.WarnLevel, msg, err)
}

func logUnwrapped(logger *zerolog.Logger, level zerolog.Level, msg string, err error) {
	var joined joinableError
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			logger.WithLevel(level).Err(e).Msg(msg)
		}
		return
	}
	logger.WithLevel(level).Err(err).Msg(msg)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
