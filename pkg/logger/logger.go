package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

const serviceName = "call-relay"

type settings struct {
	out   io.Writer
	level slog.Leveler
}

type Option func(*settings)

func WithOutput(w io.Writer) Option { return func(s *settings) { s.out = w } }

// WithLevel overrides the env-derived level. Unknown names are ignored.
func WithLevel(name string) Option {
	return func(s *settings) {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err == nil {
			s.level = lvl
		}
	}
}

// New builds the JSON process logger. local and dev default to debug.
func New(appEnv string, opts ...Option) *slog.Logger {
	s := settings{out: os.Stdout, level: slog.LevelInfo}
	switch appEnv {
	case "local", "dev":
		s.level = slog.LevelDebug
	}
	for _, o := range opts {
		o(&s)
	}
	h := slog.NewJSONHandler(s.out, &slog.HandlerOptions{Level: s.level})
	return slog.New(h).With("service", serviceName)
}

type ctxKey struct{}

func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger carried by ctx, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
