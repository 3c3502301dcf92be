// Package control terminates the local control socket and translates the
// client command set into session engine calls.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/voxlabs/voxd/internal/paths"
	"github.com/voxlabs/voxd/internal/protocol"
	"github.com/voxlabs/voxd/internal/session"
)

const maxRequestBytes = 64 * 1024

// Server listens on a Unix socket restricted to the owning user. Each
// connection carries exactly one request/response exchange; status may be
// polled with repeated connections. No engine lock is held across the
// inference call: stop returns a transcribing acknowledgment and the text
// is fetched through a later status query.
type Server struct {
	path   string
	engine *session.Engine
	log    *slog.Logger

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewServer(path string, engine *session.Engine, log *slog.Logger) *Server {
	return &Server{
		path:   path,
		engine: engine,
		log:    log.With(slog.String("component", "control-server")),
	}
}

// Start binds the socket and begins accepting connections. A stale socket
// file from a previous run is removed first. Bind failures are fatal to
// the daemon; everything after this point is per-connection and recoverable.
func (s *Server) Start(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		s.log.Info("removing stale socket file", slog.String("path", s.path))
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("bind control socket: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info("control socket listening", slog.String("path", s.path))

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxRequestBytes), maxRequestBytes)
	if !scanner.Scan() {
		// Malformed or empty request: close without touching session state.
		return
	}

	var cmd protocol.Command
	if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
		s.log.Warn("malformed command", slog.String("error", err.Error()))
		return
	}

	resp := s.dispatch(cmd)
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Warn("failed to marshal response", slog.String("error", err.Error()))
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.log.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) dispatch(cmd protocol.Command) protocol.Response {
	s.log.Info("command received", slog.String("cmd", cmd.Cmd), slog.String("action", cmd.Action))

	switch cmd.Cmd {
	case protocol.CmdStart:
		if err := s.engine.Start(cmd.Action); err != nil {
			return errorResponse(err, s.engine.State())
		}
		return okResponse(s.engine.State())

	case protocol.CmdStop:
		if err := s.engine.Stop(); err != nil {
			return errorResponse(err, s.engine.State())
		}
		return okResponse(s.engine.State())

	case protocol.CmdCancel:
		if err := s.engine.Cancel(); err != nil {
			return errorResponse(err, s.engine.State())
		}
		return okResponse(s.engine.State())

	case protocol.CmdToggle:
		if _, err := s.engine.Toggle(cmd.Action); err != nil {
			return errorResponse(err, s.engine.State())
		}
		return okResponse(s.engine.State())

	case protocol.CmdStatus:
		status := s.engine.Status()
		return protocol.Response{OK: true, Code: protocol.CodeOK, State: status.State, Status: &status}

	default:
		return protocol.Response{
			OK:    false,
			Code:  protocol.CodeBadRequest,
			State: s.engine.State().String(),
			Error: fmt.Sprintf("unknown command %q", cmd.Cmd),
		}
	}
}

func okResponse(state session.State) protocol.Response {
	return protocol.Response{OK: true, Code: protocol.CodeOK, State: state.String()}
}

func errorResponse(err error, state session.State) protocol.Response {
	resp := protocol.Response{OK: false, State: state.String(), Error: err.Error()}
	var notFound *paths.NotFoundError
	switch {
	case errors.Is(err, session.ErrBusy):
		resp.Code = protocol.CodeBusy
	case errors.As(err, &notFound):
		resp.Code = protocol.CodeNotFound
	case errors.Is(err, session.ErrNotRecording):
		resp.Code = protocol.CodeBadRequest
	default:
		resp.Code = protocol.CodeBadRequest
	}
	return resp
}
