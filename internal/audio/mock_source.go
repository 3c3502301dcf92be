package audio

import (
	"context"
	"sync"
	"time"
)

// MockSource emits a fixed chunk repeatedly at a configurable interval.
// It stands in for the microphone backend in tests and in --dry-run mode.
type MockSource struct {
	chunk    []float32
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewMockSource builds a source that emits chunkSize silent samples every
// interval. A zero interval emits as fast as the consumer drains.
func NewMockSource(chunkSize int, interval time.Duration) *MockSource {
	return &MockSource{
		chunk:    make([]float32, chunkSize),
		interval: interval,
	}
}

func (m *MockSource) Start(ctx context.Context) (<-chan []float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.started = true
	m.mu.Unlock()

	out := make(chan []float32)
	go func() {
		defer close(out)
		for {
			if m.interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.interval):
				}
			} else if ctx.Err() != nil {
				return
			}
			chunk := make([]float32, len(m.chunk))
			select {
			case <-ctx.Done():
				return
			case out <- chunk:
			}
		}
	}()
	return out, nil
}

func (m *MockSource) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Started reports whether Start has been called at least once.
func (m *MockSource) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
