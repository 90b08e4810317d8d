package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/promptgrid/api/internal/model"
)

// Client represents a WebSocket client subscribed to one sheet
type Client struct {
	Sheet string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections grouped by sheet and
// implements the engine's Notifier: cell state changes stream to every
// subscriber of the cell's sheet.
type Hub struct {
	// Clients grouped by sheet
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to sheet subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	Sheet   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Sheet] == nil {
				h.clients[client.Sheet] = make(map[*Client]bool)
			}
			h.clients[client.Sheet][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for sheet %s", client.Sheet)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.Sheet]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.Sheet)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from sheet %s", client.Sheet)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.Sheet]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) send(sheet string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal ws message: %v", err)
		return
	}
	h.broadcast <- &BroadcastMessage{Sheet: sheet, Message: data}
}

// CellUpdated streams a status change to the cell's sheet subscribers
func (h *Hub) CellUpdated(cell *model.Cell) {
	h.send(cell.Sheet, model.WSCellUpdateMessage{
		Type:   model.WSMessageTypeCellUpdate,
		Sheet:  cell.Sheet,
		Ref:    cell.Ref,
		Status: cell.Status,
		JobID:  cell.JobID,
	})
}

// CellCompleted streams a finished cell's output
func (h *Hub) CellCompleted(cell *model.Cell) {
	h.send(cell.Sheet, model.WSCellCompleteMessage{
		Type:   model.WSMessageTypeCellComplete,
		Sheet:  cell.Sheet,
		Ref:    cell.Ref,
		Output: cell.Output,
	})
}

// CellFailed streams a failed cell's error
func (h *Hub) CellFailed(cell *model.Cell, message string) {
	h.send(cell.Sheet, model.WSCellErrorMessage{
		Type:  model.WSMessageTypeCellError,
		Sheet: cell.Sheet,
		Ref:   cell.Ref,
		Error: model.WSError{
			Code:    "RUN_FAILED",
			Message: message,
		},
	})
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, sheet string) {
	client := &Client{
		Sheet: sheet,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
