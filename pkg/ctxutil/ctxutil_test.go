package ctxutil

import (
	"context"
	"testing"
)

func TestRequestID_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestIDFromCtx(ctx); got != "req-123" {
		t.Fatalf("RequestIDFromCtx() = %q, want req-123", got)
	}
}

func TestRequestIDFromCtx_Missing(t *testing.T) {
	t.Parallel()

	if got := RequestIDFromCtx(context.Background()); got != "" {
		t.Fatalf("RequestIDFromCtx() = %q, want empty", got)
	}

	ctx := context.WithValue(context.Background(), requestIDKey, 42)
	if got := RequestIDFromCtx(ctx); got != "" {
		t.Fatalf("RequestIDFromCtx(wrong type) = %q, want empty", got)
	}
}
