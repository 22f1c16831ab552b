package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dolr-ai/videohash-indexer/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard use.
	},
}

// Hub maintains the set of active websocket subscribers and broadcasts
// verdict events to all of them over a buffered channel.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan models.StreamEvent
	mutex     sync.Mutex
}

// NewHub creates an empty hub. Call Run in its own goroutine before
// serving requests.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan models.StreamEvent, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel and fans each event out to every
// connected client. It blocks; call it in its own goroutine.
func (h *Hub) Run() {
	for event := range h.broadcast {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("stream: failed to marshal event: %v", err)
			continue
		}

		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("stream: websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Publish queues an event for broadcast. It never blocks the caller
// on slow subscribers beyond the channel's buffer; a full channel
// drops the event rather than stall a request in flight.
func (h *Hub) Publish(event models.StreamEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("stream: broadcast buffer full, dropping %s event for %s", event.Type, event.VideoID)
	}
}

// Subscribe upgrades the request to a websocket connection and
// registers it with the hub.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("stream: failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
