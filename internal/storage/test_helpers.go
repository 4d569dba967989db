package storage

import (
	"context"
	"testing"
	"time"
)

// testContext returns a context that expires with the test. The 15s budget
// covers a slow local Postgres without hanging CI forever.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}
