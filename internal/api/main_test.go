package api

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the api package.
// The rate limiter cleanup goroutine must exit with the server
// context, and SSE handlers must not strand turn workers.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
