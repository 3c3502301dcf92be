package audio

import "testing"

func TestBufferCapacityBound(t *testing.T) {
	buf := NewBuffer(100)
	if buf.Cap() != 100 {
		t.Fatalf("expected capacity 100, got %d", buf.Cap())
	}

	for i := 0; i < 9; i++ {
		n, full := buf.Append(make([]float32, 10))
		if n != 10 || full {
			t.Fatalf("append %d: n=%d full=%v", i, n, full)
		}
	}

	// The append that reaches capacity must report full.
	n, full := buf.Append(make([]float32, 10))
	if n != 10 || !full {
		t.Fatalf("final append: n=%d full=%v", n, full)
	}
	if buf.Len() != 100 {
		t.Fatalf("expected 100 samples, got %d", buf.Len())
	}
}

func TestBufferTruncatesOverflowingChunk(t *testing.T) {
	buf := NewBuffer(15)
	if n, full := buf.Append(make([]float32, 10)); n != 10 || full {
		t.Fatalf("first append: n=%d full=%v", n, full)
	}
	n, full := buf.Append(make([]float32, 10))
	if n != 5 || !full {
		t.Fatalf("overflow append: n=%d full=%v", n, full)
	}
	if buf.Len() != 15 {
		t.Fatalf("buffer exceeded capacity: %d", buf.Len())
	}
}

func TestBufferTake(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]float32{1, 2, 3})
	samples := buf.Take()
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if buf.Len() != 0 || buf.Cap() != 0 {
		t.Fatalf("buffer should be detached after Take: len=%d cap=%d", buf.Len(), buf.Cap())
	}
}

func TestBufferReset(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append(make([]float32, 10))
	buf.Reset()
	if buf.Len() != 0 || buf.Cap() != 10 {
		t.Fatalf("reset should keep capacity: len=%d cap=%d", buf.Len(), buf.Cap())
	}
}
