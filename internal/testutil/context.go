package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
)

// NewContext returns a context carrying a debug logger that writes into the
// returned buffer. Set BGGO_TEST_LOGS=true to print it after the test.
func NewContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t.Cleanup(func() {
		if os.Getenv("BGGO_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return ctxlog.WithLogger(context.Background(), logger), logBuffer
}
