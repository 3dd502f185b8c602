package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/middleware"
	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
	"github.com/mossy-p/meshroom/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// SDP offers with many candidates fit comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	joinTimeout = 5 * time.Second
)

var errClientClosed = errors.New("client connection closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client is one participant connection. Every outbound message goes through send,
// which writePump drains in order.
type Client struct {
	ID     string
	RoomID string
	Conn   *websocket.Conn

	mu     sync.Mutex
	send   chan models.SignalMessage
	closed bool

	log zerolog.Logger
}

func newClient(id, roomID string, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		ID:     id,
		RoomID: roomID,
		Conn:   conn,
		send:   make(chan models.SignalMessage, sendBufferSize),
		log:    log,
	}
}

// Send implements room.Conn. It never blocks.
func (c *Client) Send(msg models.SignalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return signaling.ErrTargetBackpressure
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HandleSignaling upgrades an authenticated request and joins the connection to roomID.
func HandleSignaling(hub *signaling.Hub, roomID string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requested := c.Param("roomId")
		if requested == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
			return
		}
		if requested != roomID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}

		identity := c.GetString(middleware.ContextIdentity)
		role, _ := c.MustGet(middleware.ContextRole).(models.Role)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Msg("failed to upgrade connection")
			return
		}

		// Generate unique participant ID per connection
		participantID := uuid.New().String()
		l := log.With().Str("participant_id", participantID).Str("identity", identity).Logger()
		client := newClient(participantID, roomID, conn, l)

		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()

		err = hub.Join(ctx, room.Session{
			Participant: models.Participant{
				ID:       participantID,
				Identity: identity,
				Role:     role,
				RoomID:   roomID,
			},
			Conn: client,
		})
		if err != nil {
			l.Warn().Err(err).Msg("join rejected")
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteJSON(models.SignalMessage{Type: models.SignalTypeError, RoomID: roomID, Error: err.Error()})
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump(hub)
	}
}

func (c *Client) readPump(hub *signaling.Hub) {
	defer func() {
		hub.Leave(c.ID)
		c.closeSend()
		c.Conn.Close()
		c.log.Info().Msg("connection closed")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.SignalMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket error")
			}
			return
		}
		hub.Dispatch(c.ID, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				c.log.Warn().Err(err).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
