package audio

import "context"

// Source yields mono PCM sample chunks at a fixed rate once started.
// The platform capture backend (microphone) implements this; tests use
// scripted sources.
type Source interface {
	// Start arms the source. The returned channel delivers sample chunks
	// until Stop is called or ctx is cancelled, then closes.
	Start(ctx context.Context) (<-chan []float32, error)
	// Stop disarms the source. Safe to call more than once.
	Stop()
}
