package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// chunk size in samples read from the capture process per send.
const execChunkSamples = 512

// ExecSource captures microphone audio through an external command that
// writes signed 16-bit little-endian mono PCM to stdout, e.g.
// "arecord -q -f S16_LE -r 16000 -c 1 -t raw -". The process lives only
// while a session is recording.
type ExecSource struct {
	cmd []string
	log *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewExecSource(command string, log *slog.Logger) (*ExecSource, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse audio command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("audio command is empty")
	}
	return &ExecSource{cmd: args, log: log.With(slog.String("component", "audio-source"))}, nil
}

func (s *ExecSource) Start(ctx context.Context) (<-chan []float32, error) {
	ctx, cancel := context.WithCancel(ctx)

	command := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start capture command: %w", err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan []float32)
	go func() {
		defer close(out)
		defer command.Wait()

		raw := make([]byte, execChunkSamples*2)
		for {
			n, err := io.ReadFull(stdout, raw)
			if n > 0 {
				chunk := make([]float32, n/2)
				for i := range chunk {
					sample := int16(binary.LittleEndian.Uint16(raw[i*2:]))
					chunk[i] = float32(sample) / 32768
				}
				select {
				case <-ctx.Done():
					return
				case out <- chunk:
				}
			}
			if err != nil {
				if ctx.Err() == nil && err != io.EOF && err != io.ErrUnexpectedEOF {
					s.log.Warn("capture read failed", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()
	return out, nil
}

func (s *ExecSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
