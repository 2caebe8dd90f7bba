package broker

import (
	"log/slog"
	"testing"
)

func TestMessageRateLimiterAllowsWithinLimit(t *testing.T) {
	r := newMessageRateLimiter(3, 0, slog.Default())
	for i := 0; i < 3; i++ {
		if !r.allow() {
			t.Fatalf("expected message %d to be allowed", i)
		}
	}
}

func TestMessageRateLimiterDropsOverLimit(t *testing.T) {
	r := newMessageRateLimiter(2, 0, slog.Default())
	r.allow()
	r.allow()
	if r.allow() {
		t.Fatal("expected the third message to be dropped")
	}
	if r.dropped.Load() != 1 {
		t.Fatalf("expected dropped count 1, got %d", r.dropped.Load())
	}
}
