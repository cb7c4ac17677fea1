package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeholdgames/stellar-dominion/internal/logger"
)

// Logger assigns each request an id, logs arrival and completion, and at
// debug level captures both payloads.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.NewRequestID()
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		reqLog := logger.Get().With().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		debug := zerolog.GlobalLevel() <= zerolog.DebugLevel
		if debug && r.Body != nil {
			if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
				logger.LogRequest(reqLog, body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		reqLog.Info().
			Interface("queryParams", r.URL.Query()).
			Msg("Request received")

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if debug {
			sw.body = &bytes.Buffer{}
		}
		next.ServeHTTP(sw, r)

		if sw.body != nil {
			logger.LogResponse(reqLog, sw.body.Bytes())
		}
		reqLog.Info().
			Int("status", sw.status).
			Dur("durationMs", time.Since(start)).
			Msg("Request completed")
	})
}

// JSON sets the Content-Type header to application/json for all responses.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// GameStatus is the per-request game snapshot surfaced as response headers.
type GameStatus struct {
	Turn          int
	Phase         string
	TimeRemaining time.Duration
	ActionPoints  int
}

// GameStatusFunc resolves the current game status for an authenticated
// player. Returning false suppresses the headers (e.g. game not initialized).
type GameStatusFunc func(ctx context.Context, playerID string) (GameStatus, bool)

// PlayerIDFunc extracts the authenticated player id from the context.
type PlayerIDFunc func(ctx context.Context) (string, bool)

// GameHeaders attaches the game-state headers to every authenticated
// response: X-Game-Turn, X-Turn-Phase, X-Phase-Time-Remaining (seconds), and
// X-Action-Points.
func GameHeaders(playerID PlayerIDFunc, status GameStatusFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := playerID(r.Context()); ok {
				if gs, ok := status(r.Context(), id); ok {
					h := w.Header()
					h.Set("X-Game-Turn", strconv.Itoa(gs.Turn))
					h.Set("X-Turn-Phase", gs.Phase)
					h.Set("X-Phase-Time-Remaining", strconv.Itoa(int(gs.TimeRemaining.Seconds())))
					h.Set("X-Action-Points", strconv.Itoa(gs.ActionPoints))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middleware in order (first applied = outermost).
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusWriter records the status code and, when body is non-nil, mirrors
// the response payload for debug logging.
type statusWriter struct {
	http.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.body != nil {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
