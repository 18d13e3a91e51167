package observability

import (
	"context"
	"log/slog"
	"os"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userIDKey contextKey = "user_id"

// InitLogger configures the process-wide structured logger. The "json"
// format is what production runs; anything else falls back to the text
// handler for local development.
func InitLogger(level, format string) {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithUserID binds the authenticated user to the context so request-scoped
// logs can carry it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user bound by WithUserID.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// FromContext returns the default logger annotated with the request ID and
// authenticated user, when the context carries them.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		logger = logger.With(slog.String("request_id", reqID))
	}
	if userID := UserIDFromContext(ctx); userID != "" {
		logger = logger.With(slog.String("user_id", userID))
	}
	return logger
}
