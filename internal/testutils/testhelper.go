package testutils

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles the test handle with a debug-level logger.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper whose logger writes to the test log.
// Lines logged by background goroutines after the test ends are dropped.
func NewTestHelper(t *testing.T) *TestHelper {
	w := &testLogWriter{t: t}
	t.Cleanup(w.finish)

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(w)
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

type testLogWriter struct {
	mu   sync.Mutex
	t    *testing.T
	done bool
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		w.t.Log(string(p))
	}
	return len(p), nil
}

func (w *testLogWriter) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
}
