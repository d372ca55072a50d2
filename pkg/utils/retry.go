package utils

import (
	"context"
	"time"
)

// Retry calls fn up to attempts times, waiting backoff*2^i between
// attempts i and i+1, stopping early on success or on ctx cancellation.
// It returns the last error if every attempt failed. This is the shared
// bounded-retry utility used wherever a transient startup race (e.g. a
// database not yet accepting connections) should not kill the process.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		wait := backoff * time.Duration(1<<uint(i))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
