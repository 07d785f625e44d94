// Package stream broadcasts live census records to websocket clients. It is
// read-only from the client's point of view: connections receive JSON status
// frames and send nothing but connection lifecycle.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CensusFrame is the status record pushed to clients once every species
// interval.
type CensusFrame struct {
	Iteration    uint64  `json:"iteration"`
	AliveCount   int64   `json:"alive"`
	SpeciesCount int     `json:"species"`
	MeanFitness  float64 `json:"mean_fitness"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump drains the connection so close frames are processed. Incoming
// payloads are ignored; a broken connection surfaces as a read error.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("stream client read error", "error", err)
			}
			return
		}
	}
}

// writePump pumps frames from the hub to the connection. It is the only
// writer on the connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			slog.Debug("stream client write error", "error", err)
			return
		}
	}
	// The hub closed the channel.
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Hub maintains the set of active clients and broadcasts frames to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's message-handling loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full: drop the frame rather than block
					// the hub; dead connections fall out via the write
					// deadline.
				}
			}
		}
	}
}

// Broadcast queues a census frame for every connected client. Frames are
// dropped when the hub is saturated so the simulation never blocks on slow
// consumers.
func (h *Hub) Broadcast(frame CensusFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("marshaling census frame", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// handleWebSocket upgrades an HTTP connection and registers the client.
func handleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// Serve starts the status endpoint at /ws on addr. It blocks, so callers run
// it in a goroutine.
func Serve(hub *Hub, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(hub, w, r)
	})
	slog.Info("status stream listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
