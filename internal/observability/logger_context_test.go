package observability

import (
	"context"
	"log/slog"
	"testing"
)

func TestContextWithLoggerAndLoggerFromContext(t *testing.T) {
	lg := slog.Default()

	baseCtx := context.Background()

	ctxWithLogger := ContextWithLogger(baseCtx, lg)
	if ctxWithLogger == baseCtx {
		t.Fatal("expected a derived context when attaching a logger")
	}

	if got := LoggerFromContext(ctxWithLogger); got != lg {
		t.Fatalf("LoggerFromContext did not return original logger, got %v", got)
	}

	// When logger is nil, original context should be returned unchanged
	if got := ContextWithLogger(baseCtx, nil); got != baseCtx {
		t.Fatal("expected original context when logger is nil")
	}

	// Default logger should be returned when context has no logger
	if got := LoggerFromContext(context.Background()); got == nil {
		t.Fatal("expected default logger for empty context")
	}
}

func TestContextWithRequestIDAndRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	reqID := "req-123"
	ctxWithID := ContextWithRequestID(ctx, reqID)

	if ctxWithID == ctx {
		t.Fatal("expected a derived context when setting request ID")
	}

	if got := RequestIDFromContext(ctxWithID); got != reqID {
		t.Fatalf("RequestIDFromContext() = %q, want %q", got, reqID)
	}

	// Empty request ID should return the original context
	if got := ContextWithRequestID(ctx, ""); got != ctx {
		t.Fatal("expected original context when request ID is empty")
	}

	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string when no request ID present, got %q", got)
	}
}

func TestContextWithSessionAndSessionFromContext(t *testing.T) {
	ctx := context.Background()
	sess := Session{UserID: "user-1", SessionID: "sess-1"}

	ctxWithSess := ContextWithSession(ctx, sess)
	if ctxWithSess == ctx {
		t.Fatal("expected a derived context when setting session")
	}
	if got := SessionFromContext(ctxWithSess); got != sess {
		t.Fatalf("SessionFromContext() = %+v, want %+v", got, sess)
	}

	// A session without an id must not be stored
	if got := ContextWithSession(ctx, Session{UserID: "user-1"}); got != ctx {
		t.Fatal("expected original context when session id is empty")
	}

	if got := SessionFromContext(context.Background()); got != (Session{}) {
		t.Fatalf("expected zero session for empty context, got %+v", got)
	}
}
