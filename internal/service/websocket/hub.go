package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
)

const (
	sendBuffer = 8
	writeWait  = 10 * time.Second
	pingPeriod = 50 * time.Second
)

// client is one viewer connection with its own outbound buffer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// HubService fans capture events out to connected viewers. Broadcasting never
// blocks; a viewer whose buffer is full misses the message.
type HubService struct {
	clients    map[*websocket.Conn]*client
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	dropped    int64
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until Stop is called.
func (h *HubService) Run() {
	for {
		select {
		case conn := <-h.register:
			c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
			h.mutex.Lock()
			h.clients[conn] = c
			total := len(h.clients)
			h.mutex.Unlock()
			go h.writePump(c)
			h.logger.Info("Viewer connected. Total: %d", total)

		case conn := <-h.unregister:
			h.remove(conn)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for _, c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.dropped++
				}
			}
			h.mutex.Unlock()

		case <-h.done:
			h.mutex.Lock()
			for conn, c := range h.clients {
				close(c.send)
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Stop disconnects every viewer and ends Run.
func (h *HubService) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *HubService) Register(conn *websocket.Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

func (h *HubService) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast queues a message for every viewer without waiting.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.mutex.Lock()
		h.dropped++
		h.mutex.Unlock()
	}
}

// Notify publishes a capture event to the live feed.
func (h *HubService) Notify(event dto.CaptureEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Error encoding capture event: %v", err)
		return
	}
	h.Broadcast(msg)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Dropped returns how many viewer messages were skipped.
func (h *HubService) Dropped() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.dropped
}

func (h *HubService) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	total := len(h.clients)
	h.mutex.Unlock()
	if ok {
		h.logger.Info("Viewer disconnected. Total: %d", total)
	}
}

func (h *HubService) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("Error sending message: %v", err)
				go h.Unregister(c.conn)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go h.Unregister(c.conn)
				return
			}
		}
	}
}
