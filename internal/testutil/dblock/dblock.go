// Package dblock serialises integration tests that share one Postgres database
// across test binaries. The lock is a loopback TCP listener, so it is released
// when the holding process exits even if cleanup never runs.
package dblock

import (
	"context"
	"net"
	"os"
	"testing"
	"time"
)

const defaultAddr = "127.0.0.1:45432"

func addr() string {
	if a := os.Getenv("WALLET_TEST_DB_LOCK_ADDR"); a != "" {
		return a
	}
	return defaultAddr
}

// Acquire blocks until the lock is held or ctx is done.
func Acquire(ctx context.Context) (func(), error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ln, err := net.Listen("tcp", addr())
		if err == nil {
			return func() { _ = ln.Close() }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AcquireT holds the lock for the rest of the test.
func AcquireT(t testing.TB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	release, err := Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire database lock: %v", err)
	}
	t.Cleanup(release)
}
