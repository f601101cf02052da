package controller

import (
	"context"
	"log/slog"
	"sync"

	"spot/internal/domain/entity"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
)

const connInboxSize = 16

// SocketWorkerConn is a WorkerConn over the worker's WebSocket bridge.
type SocketWorkerConn struct {
	url    string
	logger *slog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	inbox chan entity.Message
}

// NewSocketWorkerConn builds a connection to the given ws:// or wss:// URL.
// Nothing is dialed until Ready.
func NewSocketWorkerConn(url string, logger *slog.Logger) *SocketWorkerConn {
	return &SocketWorkerConn{
		url:    url,
		logger: logger,
		inbox:  make(chan entity.Message, connInboxSize),
	}
}

// Ready dials the worker if not already connected. Idempotent. Each dial gets
// its own inbox, so a redial after a dropped connection starts clean instead
// of touching the previous connection's closed channel.
func (c *SocketWorkerConn) Ready(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial worker at %s", c.url)
	}

	inbox := make(chan entity.Message, connInboxSize)
	c.conn = conn
	c.inbox = inbox
	go c.readLoop(conn, inbox)

	return nil
}

// Send encodes and writes one message. Fire and forget: replies, if any,
// arrive on Receive.
func (c *SocketWorkerConn) Send(ctx context.Context, msg entity.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("worker connection not ready")
	}

	data, err := entity.EncodeMessage(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	return errors.Wrapf(conn.Write(ctx, websocket.MessageText, data), "send %s", msg.MessageType())
}

// Receive yields messages relayed by the worker over the current connection.
// The channel closes when that connection drops; a later Ready replaces it.
func (c *SocketWorkerConn) Receive() <-chan entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inbox
}

// Close tears the connection down.
func (c *SocketWorkerConn) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	return errors.WithStack(conn.Close(websocket.StatusNormalClosure, ""))
}

func (c *SocketWorkerConn) readLoop(conn *websocket.Conn, inbox chan entity.Message) {
	defer close(inbox)

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.logger.Info("[Controller] Worker connection closed", slog.Any("error", err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			return
		}

		msg, err := entity.DecodeMessage(data)
		if err != nil {
			c.logger.Warn("[Controller] Dropping undecodable worker message", slog.Any("error", err))

			continue
		}

		select {
		case inbox <- msg:
		default:
			c.logger.Warn("[Controller] Inbox full, dropping worker message",
				slog.String("type", msg.MessageType()),
			)
		}
	}
}
