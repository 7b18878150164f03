// Package logger provides structured logging using zerolog.
// It sets up a JSON logger with service-level context and provides
// session ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const sessionIDKey ctxKey = "session_id"

// Init creates and returns a structured logger for the given service.
// format "console" selects human-readable output; anything else is JSON.
// The logger also becomes the zerolog/log global.
func Init(service, level, format string) zerolog.Logger {
	return InitWriter(os.Stdout, service, level, format)
}

// InitWriter is Init with an explicit output writer.
func InitWriter(w io.Writer, service, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	log.Logger = logger
	return logger
}

// WithSessionID stores a session ID in the context for downstream propagation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the session ID from context. Returns "" if not set.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateSessionID creates a session ID from the remote address and start time.
// Format: "{remote}-{unixNano}".
func GenerateSessionID(remote string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", remote, ts.UnixNano())
}

// Ctx returns base enriched with the session ID carried by ctx, if any.
func Ctx(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	id := SessionID(ctx)
	if id == "" {
		return base
	}
	return base.With().Str("session_id", id).Logger()
}
