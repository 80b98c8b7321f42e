package utils

import (
	"context"
	"testing"
	"time"
)

func TestWaitForSkipsNonPositive(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWaitForUsesSleep(t *testing.T) {
	var slept time.Duration
	original := sleep
	sleep = func(d time.Duration) { slept = d }
	t.Cleanup(func() { sleep = original })

	if err := WaitFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if slept != 3*time.Second {
		t.Fatalf("expected 3s sleep, got %v", slept)
	}
}

func TestWaitForReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
