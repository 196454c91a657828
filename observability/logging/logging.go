package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes the handler built by Setup.
type Options struct {
	Level slog.Level
	// File, when set, receives a JSON copy of every line through a rotating
	// writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console switches stdout to colourised human output.
	Console bool
	// Stdout overrides the console destination.
	Stdout io.Writer
}

// Setup configures the standard library logger to emit structured JSON and
// returns the slog.Logger for richer logging within the service. All lines
// carry the service name and environment when provided. The returned closer
// flushes the rotating file sink, if any.
func Setup(service, env string, opts Options) (*slog.Logger, io.Closer) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var handlers []slog.Handler
	if opts.Console {
		handlers = append(handlers, tint.NewHandler(stdout, &tint.Options{
			Level:       opts.Level,
			TimeFormat:  time.Kitchen,
			ReplaceAttr: redactAttr,
		}))
	} else {
		handlers = append(handlers, jsonHandler(stdout, opts.Level))
	}

	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		handlers = append(handlers, jsonHandler(rotator, opts.Level))
		closer = rotator
	}

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	var handler slog.Handler = fanout(handlers)
	if len(handlers) == 1 {
		handler = handlers[0]
	}
	handler = handler.WithAttrs(attrs)
	base := slog.New(handler)
	slog.SetDefault(base)

	// Bridge the standard library logger so third-party packages land in the
	// same sink.
	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base, closer
}

func jsonHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return redactAttr(groups, attr)
		},
	})
}

// ParseLevel maps debug/info/warn/error onto slog levels.
func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", raw)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
