package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/arthurkowalsky/timetune/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the router level
	},
}

type WSHandler struct {
	manager *services.RoomManager
}

func NewWSHandler(manager *services.RoomManager) *WSHandler {
	return &WSHandler{manager: manager}
}

// HandleConnection upgrades the request and hands the socket to the room
// actor for the requested code, spawning the room if needed.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	code := c.Param("roomCode")
	if !services.ValidRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{
			"type":    "ERROR",
			"payload": gin.H{"code": string(services.ErrInvalidRoomCode)},
		})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	room := h.manager.GetOrCreate(code)
	room.ServeConnection(socket)
}
