// Package logger owns the process-wide zerolog setup and the request-id
// plumbing. Request ids are 8 hex characters, travel in the context, and come
// back to clients as the correlation id on internal errors.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	timeFormat = "2006-01-02T15:04:05.000Z07:00"

	// callerWidth pads the caller column so log lines stay aligned.
	callerWidth = 30

	// maxLoggedBody truncates request/response bodies in debug logs.
	maxLoggedBody = 1000
)

// Init configures the global logger: console output with millisecond
// timestamps, a fixed-width caller column, and the level from LOG_LEVEL
// (info in production, debug everywhere else when unset). When LOG_FILE is
// set the output is additionally appended there.
func Init() {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = paddedCaller

	level := resolveLevel(os.Getenv("LOG_LEVEL"))
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: timeFormat,
		NoColor:    inProduction(),
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			out = io.MultiWriter(out, f)
		}
	}

	log.Logger = log.Output(out).With().Caller().Logger()
	log.Info().Str("level", level.String()).Bool("production", inProduction()).Msg("Logger initialized")
}

func resolveLevel(raw string) zerolog.Level {
	if raw == "" {
		if inProduction() {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func paddedCaller(_ uintptr, file string, line int) string {
	caller := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if len(caller) >= callerWidth {
		return caller[len(caller)-callerWidth:]
	}
	return caller + strings.Repeat(" ", callerWidth-len(caller))
}

func inProduction() bool {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("STELLAR_ENVIRONMENT")
	}
	return env == "production"
}

// Get returns the global logger instance.
func Get() zerolog.Logger {
	return log.Logger
}

// NewRequestID returns a random 8-hex-character request id.
func NewRequestID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; a timestamp id
		// keeps log correlation alive regardless.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b[:])
}

// WithRequestID stores a request id in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LogRequest logs a request body at debug level, truncated to maxLoggedBody.
func LogRequest(l zerolog.Logger, body []byte) {
	logBody(l, "request_body", body)
}

// LogResponse logs a response body at debug level, truncated to maxLoggedBody.
func LogResponse(l zerolog.Logger, body []byte) {
	logBody(l, "response_body", body)
}

func logBody(l zerolog.Logger, field string, body []byte) {
	if len(body) == 0 {
		return
	}
	ev := l.Debug()
	if len(body) > maxLoggedBody {
		ev = ev.Bool("truncated", true)
		body = body[:maxLoggedBody]
	}
	ev.Str(field, string(body)).Msg("Payload")
}
