// Package utils holds the small ambient helpers shared across
// ramstore's packages: structured logging and a running-average
// accumulator, grounded on the teacher's utils package of the same shape.
package utils

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logging interface every package logs
// through instead of fmt.Println/panic (spec.md 7 error taxonomy:
// replay checksum warnings and remove's sync failures are logged, not
// treated as fatal).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return &DefaultLogger{logger: logger}
}

const prefix = "[ramstore] "

func (d *DefaultLogger) Debug(msg string, args ...any) { d.logger.Debug(prefix+msg, args...) }
func (d *DefaultLogger) Info(msg string, args ...any)  { d.logger.Info(prefix+msg, args...) }
func (d *DefaultLogger) Warn(msg string, args ...any)  { d.logger.Warn(prefix+msg, args...) }
func (d *DefaultLogger) Error(msg string, args ...any) { d.logger.Error(prefix+msg, args...) }

var defaultArgsKey int

func getDefaultArgs(ctx context.Context) []any {
	ctxargs := ctx.Value(&defaultArgsKey)
	if ctxargs == nil {
		return nil
	}
	return ctxargs.([]any)
}

// WithDefaultArgs attaches fields that every *Ctx log call on ctx will
// carry, e.g. a request or replay-segment id.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	dargs := append(getDefaultArgs(ctx), args...)
	return context.WithValue(ctx, &defaultArgsKey, dargs)
}

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Debug(prefix+msg, append(args, getDefaultArgs(ctx)...)...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Info(prefix+msg, append(args, getDefaultArgs(ctx)...)...)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Warn(prefix+msg, append(args, getDefaultArgs(ctx)...)...)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Error(prefix+msg, append(args, getDefaultArgs(ctx)...)...)
}
