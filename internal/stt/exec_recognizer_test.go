package stt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewExecRecognizerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecRecognizer(ExecConfig{Command: ""}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestNewExecRecognizerRejectsUnparsableCommand(t *testing.T) {
	if _, err := NewExecRecognizer(ExecConfig{Command: `whisper "unterminated`}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExecRecognizerRunsCommand(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-whisper.sh")
	content := "#!/bin/sh\nprintf '{\"text\":\"hello from script\",\"confidence\":0.9}'\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	rec, err := NewExecRecognizer(ExecConfig{Command: script, ModelPath: "/models/ggml-base.bin"})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}

	result, err := rec.Transcribe(context.Background(), make([]float32, 1600), 16000, "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "hello from script" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("unexpected confidence: %v", result.Confidence)
	}
}

func TestExecRecognizerReportsCommandFailure(t *testing.T) {
	script := filepath.Join(t.TempDir(), "broken-whisper.sh")
	content := "#!/bin/sh\necho 'backend unavailable' >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	rec, err := NewExecRecognizer(ExecConfig{Command: script})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}

	if _, err := rec.Transcribe(context.Background(), make([]float32, 100), 16000, "en"); err == nil {
		t.Fatal("expected transcription failure")
	}
}
