package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger namespaced to the running test, so interleaved
// output from room and client goroutines stays attributable.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[chat-relay:"+t.Name()+"] ", log.LstdFlags|log.Lmsgprefix)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
