package audio

// Buffer is a fixed-capacity mono PCM sample store. The backing array is
// allocated once at the configured capacity, so worst-case memory use is
// known before a single sample is captured. Append never grows the store:
// a chunk that would overflow is truncated at capacity and the append
// reports the buffer full.
//
// Buffer is not synchronized; the session engine guards it together with
// the session state under a single lock.
type Buffer struct {
	samples []float32
}

// NewBuffer allocates a buffer holding at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{samples: make([]float32, 0, capacity)}
}

// Append copies as much of chunk as fits and reports how many samples
// were taken and whether the buffer is now full.
func (b *Buffer) Append(chunk []float32) (n int, full bool) {
	remaining := cap(b.samples) - len(b.samples)
	n = len(chunk)
	if n > remaining {
		n = remaining
	}
	b.samples = append(b.samples, chunk[:n]...)
	return n, len(b.samples) == cap(b.samples)
}

// Len returns the number of samples held.
func (b *Buffer) Len() int { return len(b.samples) }

// Cap returns the fixed capacity in samples.
func (b *Buffer) Cap() int { return cap(b.samples) }

// Take hands the filled samples to the caller and detaches them from the
// buffer. The buffer is empty with zero capacity afterwards; a session
// allocates a fresh one on its next start.
func (b *Buffer) Take() []float32 {
	s := b.samples
	b.samples = nil
	return s
}

// Reset discards all samples, keeping the allocation.
func (b *Buffer) Reset() {
	b.samples = b.samples[:0]
}
