package testutils

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger

	logs *lockedBuffer
}

// NewTestHelper creates a test helper whose debug-level logger writes into a buffer,
// so tests can assert on log output.
func NewTestHelper(t *testing.T) *TestHelper {
	logs := &lockedBuffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return &TestHelper{
		T:      t,
		Logger: logger,
		logs:   logs,
	}
}

// LogOutput returns everything logged so far.
func (h *TestHelper) LogOutput() string {
	return h.logs.String()
}

// lockedBuffer is written from the goroutines under test and read from the test goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
