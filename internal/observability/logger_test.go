package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "parseLevel(%q)", tt.in)
	}
}

func TestUserIDFromContext(t *testing.T) {
	assert.Empty(t, UserIDFromContext(context.Background()))

	ctx := WithUserID(context.Background(), "user-42")
	assert.Equal(t, "user-42", UserIDFromContext(ctx))
}

// captureDefault swaps the default logger for one writing JSON into a buffer
// and restores the previous default on cleanup.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	buf := &bytes.Buffer{}
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestFromContext_AnnotatesRequestAndUser(t *testing.T) {
	buf := captureDefault(t)

	ctx := context.WithValue(context.Background(), chimiddleware.RequestIDKey, "req-7")
	ctx = WithUserID(ctx, "user-42")

	FromContext(ctx).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-7", record["request_id"])
	assert.Equal(t, "user-42", record["user_id"])
}

func TestFromContext_BareContext(t *testing.T) {
	buf := captureDefault(t)

	FromContext(context.Background()).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.NotContains(t, record, "request_id")
	assert.NotContains(t, record, "user_id")
}
