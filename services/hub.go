package services

import (
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one websocket session attached to a room. It does no game logic
// of its own: the read pump parses frames into commands and hands them to the
// room actor, the write pump drains the send buffer.
type Client struct {
	id            string
	room          *Room
	socket        *websocket.Conn
	send          chan []byte
	limiter       *rate.Limiter
	lastHeartbeat int64
}

const clientSendBuffer = 256

// Inbound frames are limited to 10/s with a burst of 20; anything above that
// is dropped the same way malformed frames are.
func newClient(room *Room, socket *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		room:    room,
		socket:  socket,
		send:    make(chan []byte, clientSendBuffer),
		limiter: rate.NewLimiter(10, 20),
	}
}

// ServeConnection attaches a new websocket connection to the room and runs
// its pumps. It returns immediately; the pumps run on their own goroutines.
func (r *Room) ServeConnection(socket *websocket.Conn) {
	client := newClient(r, socket)
	r.Attach(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.room.Detach(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for client %s: %v", c.id, err)
			}
			break
		}

		if !c.limiter.Allow() {
			continue
		}

		// Malformed messages are silently dropped.
		cmd := ParseCommand(message)
		if cmd == nil {
			continue
		}

		c.room.Enqueue(envelope{client: c, cmd: cmd})
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}

		w.Write(message)

		if err := w.Close(); err != nil {
			return
		}
	}

	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

// enqueueData buffers an outbound frame, dropping it if the client has
// stopped draining its send channel.
func (c *Client) enqueueData(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
