package control

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/session"
	"github.com/voxlabs/voxd/internal/stt"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeResolver struct{}

func (fakeResolver) ResolveModel(string) (string, error) {
	return "/models/ggml-base.bin", nil
}

type idleSource struct {
	mu sync.Mutex
	ch chan []float32
}

func (s *idleSource) Start(_ context.Context) (<-chan []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan []float32, 16)
	return s.ch, nil
}

func (s *idleSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}

func (s *idleSource) push(chunk []float32) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch != nil {
		ch <- chunk
	}
}

func startTestServer(t *testing.T) (*Client, *session.Engine, *idleSource) {
	t.Helper()
	src := &idleSource{}
	engine := session.New(context.Background(), session.Config{
		MaxRecordingSeconds: 30,
		SampleRate:          16000,
		Model:               "base",
		Language:            "en",
	}, fakeResolver{}, stt.NewMockRecognizer(), src, newLogger())
	t.Cleanup(engine.Close)

	socketPath := filepath.Join(t.TempDir(), "voxd.sock")
	server := NewServer(socketPath, engine, newLogger())
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(server.Close)

	return NewClient(socketPath), engine, src
}

func TestSocketPermissions(t *testing.T) {
	src := &idleSource{}
	engine := session.New(context.Background(), session.Config{
		MaxRecordingSeconds: 30, SampleRate: 16000, Model: "base", Language: "en",
	}, fakeResolver{}, stt.NewMockRecognizer(), src, newLogger())
	t.Cleanup(engine.Close)

	socketPath := filepath.Join(t.TempDir(), "voxd.sock")
	server := NewServer(socketPath, engine, newLogger())
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(server.Close)

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected socket mode 0600, got %o", perm)
	}
}

func TestStartStatusCancelRoundTrip(t *testing.T) {
	client, _, _ := startTestServer(t)

	resp, err := client.Send(protocol.Command{Cmd: protocol.CmdStart, Action: protocol.ActionType})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !resp.OK || resp.State != "recording" {
		t.Fatalf("unexpected start response: %+v", resp)
	}

	resp, err = client.Send(protocol.Command{Cmd: protocol.CmdStatus})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Status == nil || !resp.Status.Active || resp.Status.State != "recording" {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}
	if resp.Status.PID != os.Getpid() {
		t.Fatalf("expected own pid, got %d", resp.Status.PID)
	}
	if resp.Status.ModelPath != "/models/ggml-base.bin" {
		t.Fatalf("expected resolved model path, got %s", resp.Status.ModelPath)
	}

	resp, err = client.Send(protocol.Command{Cmd: protocol.CmdCancel})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !resp.OK || resp.State != "idle" {
		t.Fatalf("unexpected cancel response: %+v", resp)
	}
}

func TestBusyOnSecondStart(t *testing.T) {
	client, _, _ := startTestServer(t)

	if resp, err := client.Send(protocol.Command{Cmd: protocol.CmdStart}); err != nil || !resp.OK {
		t.Fatalf("first start failed: %+v %v", resp, err)
	}
	resp, err := client.Send(protocol.Command{Cmd: protocol.CmdStart})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if resp.OK || resp.Code != protocol.CodeBusy {
		t.Fatalf("expected busy, got %+v", resp)
	}
}

func TestStopWhenIdleIsRejected(t *testing.T) {
	client, _, _ := startTestServer(t)

	resp, err := client.Send(protocol.Command{Cmd: protocol.CmdStop})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if resp.OK || resp.Code != protocol.CodeBadRequest {
		t.Fatalf("expected rejection, got %+v", resp)
	}
}

func TestToggleRoundTrip(t *testing.T) {
	client, engine, src := startTestServer(t)

	resp, err := client.Send(protocol.Command{Cmd: protocol.CmdToggle, Action: protocol.ActionCopy})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !resp.OK || resp.State != "recording" {
		t.Fatalf("unexpected toggle response: %+v", resp)
	}

	src.push(make([]float32, 1600))
	resp, err = client.Send(protocol.Command{Cmd: protocol.CmdToggle, Action: protocol.ActionCopy})
	if err != nil {
		t.Fatalf("toggle stop: %v", err)
	}
	// The mock recognizer may finish before the acknowledgment is built,
	// so either the transcribing ack or the already-idle state is valid.
	if !resp.OK || (resp.State != "transcribing" && resp.State != "idle") {
		t.Fatalf("expected transcribing acknowledgment, got %+v", resp)
	}

	// The mock recognizer resolves quickly; status eventually reports idle
	// with the result in-band.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = client.Send(protocol.Command{Cmd: protocol.CmdStatus})
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if resp.Status != nil && resp.Status.State == "idle" {
			if resp.Status.LastResult == "" {
				t.Fatal("expected last result in status")
			}
			if engine.State() != session.StateIdle {
				t.Fatalf("engine not idle: %s", engine.State())
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for idle status")
}

func TestMalformedRequestClosesConnection(t *testing.T) {
	client, _, _ := startTestServer(t)

	conn, err := net.Dial("unix", client.path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err != io.EOF {
		t.Fatalf("expected connection closed without response, got %v", err)
	}
	conn.Close()

	// Session state is untouched and the server keeps serving.
	resp, err := client.Send(protocol.Command{Cmd: protocol.CmdStatus})
	if err != nil {
		t.Fatalf("status after malformed request: %v", err)
	}
	if resp.Status == nil || resp.Status.State != "idle" {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}
}

func TestUnknownCommand(t *testing.T) {
	client, _, _ := startTestServer(t)

	resp, err := client.Send(protocol.Command{Cmd: "reboot"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.OK || resp.Code != protocol.CodeBadRequest {
		t.Fatalf("expected bad request, got %+v", resp)
	}
}
