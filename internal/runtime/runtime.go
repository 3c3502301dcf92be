// Package runtime wires the daemon components together and owns their
// lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxlabs/voxd/internal/audio"
	"github.com/voxlabs/voxd/internal/bus"
	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/control"
	"github.com/voxlabs/voxd/internal/history"
	"github.com/voxlabs/voxd/internal/natsserver"
	"github.com/voxlabs/voxd/internal/paths"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/session"
	"github.com/voxlabs/voxd/internal/stt"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up telemetry, storage, the session engine and the control
// server, then blocks until ctx is cancelled. Only failures before the
// control socket is bound are fatal.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	var busClient *bus.Client
	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			r.logger.Warn("embedded bus unavailable", slog.String("error", err.Error()))
		}
		defer embedded.Shutdown()

		busClient, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			r.logger.Warn("transcript bus unavailable", slog.String("error", err.Error()))
		}
		defer busClient.Close()
	}

	source, err := r.buildSource()
	if err != nil {
		return err
	}
	recognizer, err := r.buildRecognizer()
	if err != nil {
		return err
	}

	engine := session.New(ctx, session.Config{
		MaxRecordingSeconds: r.cfg.Daemon.MaxRecordingSeconds,
		SampleRate:          r.cfg.Daemon.SampleRate,
		Model:               r.cfg.Model.Name,
		Language:            r.cfg.Model.Language,
	}, paths.NewResolver(), recognizer, source, r.logger)
	defer engine.Close()

	engine.OnResult(func(res session.Result) {
		if err := store.Append(ctx, history.Entry{
			SessionID: res.SessionID,
			Text:      res.Text,
			Model:     res.Model,
			Language:  res.Language,
			Duration:  res.Duration.Seconds(),
		}); err != nil {
			r.logger.Warn("failed to record transcript", slog.String("error", err.Error()))
		}
		busClient.PublishTranscript(protocol.Transcript{
			SessionID: res.SessionID,
			Text:      res.Text,
			Action:    res.Action,
			Model:     res.Model,
			Language:  res.Language,
			Duration:  res.Duration.Seconds(),
			Timestamp: time.Now().UTC(),
		})
	})

	ctrl := control.NewServer(r.cfg.Daemon.SocketPath, engine, r.logger)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Close()

	if r.cfg.Health.Enabled {
		r.startHealthServer(metricHandler)
	}

	r.ready.Store(true)
	r.logger.Info("daemon started",
		slog.String("socket", r.cfg.Daemon.SocketPath),
		slog.String("model", r.cfg.Model.Name),
		slog.String("language", r.cfg.Model.Language),
		slog.Int("max_recording_seconds", r.cfg.Daemon.MaxRecordingSeconds))

	<-ctx.Done()
	r.logger.Info("daemon stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Runtime) buildSource() (audio.Source, error) {
	switch r.cfg.Audio.Mode {
	case "exec":
		return audio.NewExecSource(r.cfg.Audio.Command, r.logger)
	default:
		return audio.NewMockSource(512, 32*time.Millisecond), nil
	}
}

func (r *Runtime) buildRecognizer() (stt.Recognizer, error) {
	switch r.cfg.STT.Mode {
	case "exec":
		modelPath, err := paths.NewResolver().ResolveModel(r.cfg.Model.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve model: %w", err)
		}
		return stt.NewExecRecognizer(stt.ExecConfig{
			Command:   r.cfg.STT.Command,
			ModelPath: modelPath,
		})
	default:
		return stt.NewMockRecognizer(), nil
	}
}

func (r *Runtime) startHealthServer(metricHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.Health.Bind, r.cfg.Health.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("health server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("health endpoints available", slog.String("addr", addr))
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
