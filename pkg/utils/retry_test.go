package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	n := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		n++
		if n < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestRetryExhausted(t *testing.T) {
	n := 0
	want := errors.New("permanent")
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		n++
		return want
	})
	if err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, 10*time.Millisecond, func() error {
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
