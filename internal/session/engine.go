// Package session implements the capture/transcribe state machine at the
// heart of the daemon. One engine exists per process; it owns the bounded
// sample buffer and is mutated only through the control server.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxlabs/voxd/internal/audio"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/stt"
)

var (
	// ErrBusy is returned when a session is already active.
	ErrBusy = errors.New("session already active")
	// ErrNotRecording is returned for stop outside the recording state.
	ErrNotRecording = errors.New("not recording")
)

// Config holds the per-session settings resolved at daemon start.
type Config struct {
	MaxRecordingSeconds int
	SampleRate          int
	Model               string
	Language            string
}

// ModelResolver maps a model name to an absolute filesystem path.
type ModelResolver interface {
	ResolveModel(name string) (string, error)
}

// Result is delivered to the result hook after a successful session.
type Result struct {
	SessionID string
	Text      string
	Action    string
	Model     string
	ModelPath string
	Language  string
	Duration  time.Duration
}

// Engine coordinates the capture producer, the control commands and the
// inference worker. All shared state lives behind one mutex; no
// transition blocks while holding it. Capture appends and the inference
// call run outside the locked region with ownership transferred out first.
type Engine struct {
	cfg        Config
	log        *slog.Logger
	resolver   ModelResolver
	recognizer stt.Recognizer
	source     audio.Source
	onResult   func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// armMu serializes source arming so that a start which lost a
	// concurrent cancel disarms its own capture, never a successor's.
	armMu sync.Mutex

	mu           sync.Mutex
	state        State
	buf          *audio.Buffer
	gen          uint64
	sessionID    string
	startedAt    time.Time
	activeAction string
	activePath   string
	lastPath     string
	lastResult   string
	lastErr      error
	lastDuration time.Duration

	meter             metric.Meter
	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	sessionsFailed    metric.Int64Counter
	samplesCaptured   metric.Int64Counter
}

// New builds an engine. The source is armed on start and disarmed on
// stop, cancel or buffer exhaustion; the recognizer runs on a worker
// goroutine once a session transitions to transcribing.
func New(parent context.Context, cfg Config, resolver ModelResolver, recognizer stt.Recognizer, source audio.Source, log *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(parent)
	e := &Engine{
		cfg:        cfg,
		log:        log.With(slog.String("component", "session-engine")),
		resolver:   resolver,
		recognizer: recognizer,
		source:     source,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateIdle,
		meter:      otel.Meter("github.com/voxlabs/voxd/session"),
	}
	e.initMetrics()
	return e
}

func (e *Engine) initMetrics() {
	var err error
	if e.sessionsStarted, err = e.meter.Int64Counter("voxd.sessions.started"); err != nil {
		e.log.Warn("failed to create counter", slog.String("error", err.Error()))
	}
	if e.sessionsCompleted, err = e.meter.Int64Counter("voxd.sessions.completed"); err != nil {
		e.log.Warn("failed to create counter", slog.String("error", err.Error()))
	}
	if e.sessionsFailed, err = e.meter.Int64Counter("voxd.sessions.failed"); err != nil {
		e.log.Warn("failed to create counter", slog.String("error", err.Error()))
	}
	if e.samplesCaptured, err = e.meter.Int64Counter("voxd.samples.captured"); err != nil {
		e.log.Warn("failed to create counter", slog.String("error", err.Error()))
	}
}

// OnResult registers the delivery hook invoked after each successful,
// non-cancelled session. Called from the inference worker, never under
// the engine lock.
func (e *Engine) OnResult(fn func(Result)) {
	e.onResult = fn
}

// Close stops any active capture and waits for in-flight work.
func (e *Engine) Close() {
	e.cancel()
	e.source.Stop()
	e.wg.Wait()
}

// Start begins a new capture session. The model path is resolved before
// any state changes; a resolution failure leaves the engine idle.
// Exactly one of several concurrent starts wins, the rest observe
// ErrBusy.
func (e *Engine) Start(action string) error {
	// Busy beats not-found: an active engine rejects before the
	// resolver touches the filesystem.
	e.mu.Lock()
	if e.state == StateRecording || e.state == StateTranscribing {
		e.mu.Unlock()
		return ErrBusy
	}
	e.mu.Unlock()

	modelPath, err := e.resolver.ResolveModel(e.cfg.Model)
	if err != nil {
		return fmt.Errorf("resolve model: %w", err)
	}

	capacity := e.cfg.MaxRecordingSeconds * e.cfg.SampleRate

	e.mu.Lock()
	if e.state == StateRecording || e.state == StateTranscribing {
		e.mu.Unlock()
		return ErrBusy
	}
	e.gen++
	gen := e.gen
	e.state = StateRecording
	e.buf = audio.NewBuffer(capacity)
	e.sessionID = uuid.NewString()
	e.startedAt = time.Now()
	e.activeAction = action
	e.activePath = modelPath
	e.lastPath = modelPath
	e.lastErr = nil
	id := e.sessionID
	e.mu.Unlock()

	e.armMu.Lock()
	chunks, err := e.source.Start(e.ctx)
	if err != nil {
		e.armMu.Unlock()
		e.mu.Lock()
		if e.gen == gen {
			e.state = StateIdle
			e.buf = nil
			e.clearActiveLocked()
		}
		e.mu.Unlock()
		return fmt.Errorf("arm audio source: %w", err)
	}

	// A cancel or stop that landed while the source was arming saw a
	// not-yet-armed source; disarm here or the capture runs on with no
	// consumer.
	e.mu.Lock()
	if e.gen != gen || e.state != StateRecording {
		e.mu.Unlock()
		e.source.Stop()
		e.armMu.Unlock()
		e.log.Info("session ended while capture was arming", slog.String("session_id", id))
		return nil
	}
	e.mu.Unlock()
	e.armMu.Unlock()

	if e.sessionsStarted != nil {
		e.sessionsStarted.Add(e.ctx, 1)
	}
	e.log.Info("session started",
		slog.String("session_id", id),
		slog.String("model_path", modelPath),
		slog.String("language", e.cfg.Language),
		slog.Int("capacity_samples", capacity))

	e.wg.Add(1)
	go e.runCapture(gen, chunks)
	return nil
}

// runCapture is the producer: it appends chunks until the session leaves
// the recording state or the buffer fills, then keeps draining so a
// source mid-send never blocks. The channel closes when the source is
// stopped.
func (e *Engine) runCapture(gen uint64, chunks <-chan []float32) {
	defer e.wg.Done()
	appending := true
	for chunk := range chunks {
		if appending {
			appending = e.appendChunk(gen, chunk)
		}
	}
}

// appendChunk adds one chunk under the lock and fires the automatic stop
// transition synchronously with the append that fills the buffer. It
// reports whether the producer should keep running.
func (e *Engine) appendChunk(gen uint64, chunk []float32) bool {
	e.mu.Lock()
	if e.state != StateRecording || e.gen != gen {
		e.mu.Unlock()
		return false
	}
	n, full := e.buf.Append(chunk)
	if !full {
		e.mu.Unlock()
		if e.samplesCaptured != nil {
			e.samplesCaptured.Add(e.ctx, int64(n))
		}
		return true
	}

	// Memory-protection bound reached: identical to an explicit stop.
	samples, meta := e.beginTranscribeLocked()
	e.mu.Unlock()

	if e.samplesCaptured != nil {
		e.samplesCaptured.Add(e.ctx, int64(n))
	}
	e.log.Info("recording limit reached, auto-stopping",
		slog.String("session_id", meta.SessionID),
		slog.Int("samples", len(samples)))
	e.source.Stop()
	e.dispatchTranscription(gen, samples, meta)
	return false
}

// Stop ends capture and hands the buffer to the inference worker. The
// caller gets an acknowledgment immediately; the transcript arrives via
// a later status query or the result hook.
func (e *Engine) Stop() error {
	e.mu.Lock()
	switch e.state {
	case StateTranscribing:
		// Already dispatched; stop is an idempotent acknowledgment.
		e.mu.Unlock()
		return nil
	case StateRecording:
	default:
		e.mu.Unlock()
		return ErrNotRecording
	}
	gen := e.gen
	samples, meta := e.beginTranscribeLocked()
	e.mu.Unlock()

	e.log.Info("session stopped",
		slog.String("session_id", meta.SessionID),
		slog.Int("samples", len(samples)))
	e.source.Stop()
	e.dispatchTranscription(gen, samples, meta)
	return nil
}

// beginTranscribeLocked transfers buffer ownership out of the session and
// moves it to transcribing. Caller holds the lock.
func (e *Engine) beginTranscribeLocked() ([]float32, Result) {
	samples := e.buf.Take()
	e.buf = nil
	e.state = StateTranscribing
	e.lastDuration = time.Duration(len(samples)) * time.Second / time.Duration(e.cfg.SampleRate)
	return samples, Result{
		SessionID: e.sessionID,
		Action:    e.activeAction,
		Model:     e.cfg.Model,
		ModelPath: e.activePath,
		Language:  e.cfg.Language,
		Duration:  e.lastDuration,
	}
}

// dispatchTranscription runs inference on a worker goroutine. The control
// path never waits on it; cancellation after dispatch only suppresses
// delivery, the backend call runs to completion.
func (e *Engine) dispatchTranscription(gen uint64, samples []float32, meta Result) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if len(samples) == 0 {
			e.log.Warn("empty capture, skipping transcription", slog.String("session_id", meta.SessionID))
			e.finishTranscription(gen, meta, TranscriptionOutcome{Skipped: true})
			return
		}

		result, err := e.recognizer.Transcribe(e.ctx, samples, e.cfg.SampleRate, meta.Language)
		e.finishTranscription(gen, meta, TranscriptionOutcome{Text: result.Text, Err: err})
	}()
}

// TranscriptionOutcome carries the inference result back to the engine.
type TranscriptionOutcome struct {
	Text    string
	Err     error
	Skipped bool
}

func (e *Engine) finishTranscription(gen uint64, meta Result, outcome TranscriptionOutcome) {
	e.mu.Lock()
	if e.gen != gen {
		// Cancelled while transcribing: discard the result, resolve to idle.
		if e.state == StateTranscribing {
			e.state = StateIdle
			e.clearActiveLocked()
		}
		e.mu.Unlock()
		e.log.Info("transcription result discarded", slog.String("session_id", meta.SessionID))
		return
	}

	if outcome.Err != nil {
		e.state = StateError
		e.lastErr = outcome.Err
		e.clearActiveLocked()
		e.mu.Unlock()
		if e.sessionsFailed != nil {
			e.sessionsFailed.Add(e.ctx, 1)
		}
		e.log.Error("transcription failed",
			slog.String("session_id", meta.SessionID),
			slog.String("error", outcome.Err.Error()))
		return
	}

	if outcome.Skipped {
		e.state = StateIdle
		e.clearActiveLocked()
		e.mu.Unlock()
		return
	}

	e.lastResult = outcome.Text
	e.state = StateIdle
	e.clearActiveLocked()
	e.mu.Unlock()

	if e.sessionsCompleted != nil {
		e.sessionsCompleted.Add(e.ctx, 1)
	}
	e.log.Info("transcription complete",
		slog.String("session_id", meta.SessionID),
		slog.Int("chars", len(outcome.Text)))

	if e.onResult != nil && outcome.Text != "" {
		meta.Text = outcome.Text
		e.onResult(meta)
	}
}

// Cancel aborts the current session. While recording the buffer is
// discarded and no inference runs; while transcribing only delivery is
// suppressed. Idle cancel is a no-op.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	switch e.state {
	case StateRecording:
		e.gen++
		e.state = StateIdle
		e.buf = nil
		id := e.sessionID
		e.clearActiveLocked()
		e.mu.Unlock()
		e.source.Stop()
		e.log.Info("session cancelled", slog.String("session_id", id))
		return nil
	case StateTranscribing:
		e.gen++
		id := e.sessionID
		e.mu.Unlock()
		e.log.Info("cancel during transcription, delivery suppressed", slog.String("session_id", id))
		return nil
	default:
		e.mu.Unlock()
		return nil
	}
}

// Toggle is derived dispatch over start and stop: start when idle, stop
// when recording, busy while transcribing.
func (e *Engine) Toggle(action string) (started bool, err error) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	switch state {
	case StateRecording:
		return false, e.Stop()
	case StateTranscribing:
		return false, ErrBusy
	default:
		return true, e.Start(action)
	}
}

func (e *Engine) clearActiveLocked() {
	e.activeAction = ""
	e.activePath = ""
	e.sessionID = ""
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastResult returns the text of the most recently completed session.
func (e *Engine) LastResult() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// Status reports a consistent snapshot of the engine. Observing the
// error state surfaces the parked failure and resolves the engine to
// idle, per the recovery contract: every per-session failure leaves the
// daemon ready for the next start.
func (e *Engine) Status() protocol.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := protocol.Status{
		Active:              e.state == StateRecording || e.state == StateTranscribing,
		PID:                 os.Getpid(),
		Model:               e.cfg.Model,
		ModelPath:           e.lastPath,
		Language:            e.cfg.Language,
		MaxRecordingSeconds: e.cfg.MaxRecordingSeconds,
		State:               e.state.String(),
		LastResult:          e.lastResult,
	}
	switch e.state {
	case StateRecording:
		st.DurationSeconds = time.Since(e.startedAt).Seconds()
	default:
		st.DurationSeconds = e.lastDuration.Seconds()
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	if e.state == StateError {
		e.state = StateIdle
	}
	return st
}
