package audio

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewExecSourceRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecSource("", discardLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecSourceReadsSamples(t *testing.T) {
	// 2048 zero bytes is 1024 samples: two full chunks, then EOF.
	src, err := NewExecSource("head -c 2048 /dev/zero", discardLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	chunks, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()

	total := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if total != 1024 {
					t.Fatalf("expected 1024 samples, got %d", total)
				}
				return
			}
			total += len(chunk)
		case <-deadline:
			t.Fatal("timed out reading capture output")
		}
	}
}

func TestExecSourceStopEndsStream(t *testing.T) {
	// sleep produces no output and only ends when the process is killed.
	src, err := NewExecSource("sleep 5", discardLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	chunks, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Stop()

	select {
	case _, ok := <-chunks:
		if ok {
			t.Fatal("expected closed channel after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after stop")
	}
}
