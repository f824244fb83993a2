package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// SlogFormatter makes chi's RequestLogger emit one structured record per request.
type SlogFormatter struct {
	Logger *slog.Logger
}

func NewSlogFormatter(logger *slog.Logger) *SlogFormatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogFormatter{Logger: logger.With("module", "http")}
}

// RequestLogger is chi's RequestLogger backed by slog.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return chimw.RequestLogger(NewSlogFormatter(logger))
}

func (f *SlogFormatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	return &slogEntry{
		log: f.Logger.With(
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		),
	}
}

type slogEntry struct {
	log *slog.Logger
}

func (e *slogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	e.log.Log(context.Background(), level, "request",
		"status", status,
		"bytes", bytes,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (e *slogEntry) Panic(v any, stack []byte) {
	e.log.Error("panic", "panic", fmt.Sprint(v), "stack", string(stack))
}
