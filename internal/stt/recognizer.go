package stt

import (
	"context"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts the offline inference engine. Transcribe is
// blocking and CPU or GPU bound; callers dispatch it off the control path.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (TranscriptResult, error)
}
