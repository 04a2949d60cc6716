package registry

import (
	"bytes"
	"sync"

	"github.com/usefultools/toolbox/internal/adapters/logging"
	"github.com/usefultools/toolbox/internal/ports"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(b *syncBuffer) ports.Logger {
	return logging.NewConsoleLogger(
		logging.WithOutput(b),
		logging.WithTimestamp(false),
		logging.WithLevel(ports.LevelDebug),
	)
}
