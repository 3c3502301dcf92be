package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32, _ int, language string) (TranscriptResult, error) {
	return TranscriptResult{
		Text:       fmt.Sprintf("[%s transcript samples=%d]", language, len(samples)),
		Confidence: 0,
	}, nil
}
