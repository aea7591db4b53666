package logging

import (
	"io"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger.
func Setup(level, format, env string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if format == "json" || env == "production" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "smart-ratings").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a chi middleware for structured request logging.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", r.RemoteAddr).
			Int("body_size", ww.BytesWritten()).
			Msg("HTTP request")
	})
}

// LogAdminAction records an administrator mutation such as a seed change or
// a report review.
func LogAdminAction(actorID, action, target, reason string) {
	log.Info().
		Str("actor_id", actorID).
		Str("action", action).
		Str("target", target).
		Str("reason", SanitizeForLog(reason, 200)).
		Msg("Admin action")
}

// SanitizeForLog truncates free-form input to maxLen bytes before it reaches
// the log, cutting on a rune boundary.
func SanitizeForLog(data string, maxLen int) string {
	if len(data) <= maxLen {
		return data
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return data[:cut] + "...[truncated]"
}
