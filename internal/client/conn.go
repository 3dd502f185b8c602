// Package client is the participant runtime: a signaling connection plus the event
// loop that drives the peer manager and the media controller.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

var (
	ErrConnClosed     = errors.New("signaling connection closed")
	ErrSendBufferFull = errors.New("signaling send buffer full")
)

// Conn is the participant's websocket to the coordinator.
type Conn struct {
	ws       *websocket.Conn
	incoming chan models.SignalMessage
	outgoing chan models.SignalMessage
	done     chan struct{}
	once     sync.Once

	log zerolog.Logger
}

// Dial opens the signaling websocket at url, authenticating with token.
func Dial(ctx context.Context, url, token string, log zerolog.Logger) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Conn{
		ws:       ws,
		incoming: make(chan models.SignalMessage, sendBufferSize),
		outgoing: make(chan models.SignalMessage, sendBufferSize),
		done:     make(chan struct{}),
		log:      log,
	}
	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// Send queues msg for the write pump. It never blocks.
func (c *Conn) Send(msg models.SignalMessage) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Incoming is closed when the connection drops.
func (c *Conn) Incoming() <-chan models.SignalMessage {
	return c.incoming
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Conn) readPump() {
	defer func() {
		c.ws.Close()
		close(c.incoming)
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg models.SignalMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("signaling connection lost")
			}
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
