// Package bus publishes completed transcripts for desktop integrations
// that subscribe instead of polling the control socket.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/protocol"
)

// Client wraps a NATS connection with the publish helper the daemon needs.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("voxd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishTranscript broadcasts a final transcript. Publish failures are
// logged, never propagated: the bus is a convenience channel, not the
// delivery path of record.
func (c *Client) PublishTranscript(t protocol.Transcript) {
	if c == nil || c.conn == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		c.log.Warn("failed to marshal transcript", slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		c.log.Warn("failed to publish transcript", slog.String("error", err.Error()))
	}
}
