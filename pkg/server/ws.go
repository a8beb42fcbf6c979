package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/embedmeet/embedmeet/pkg/config"
	"github.com/embedmeet/embedmeet/pkg/events"
	"github.com/embedmeet/embedmeet/pkg/log"
	"github.com/embedmeet/embedmeet/pkg/widget/remote"
)

// pageReplyTimeout bounds request/reply exchanges with the page agent.
const pageReplyTimeout = 10 * time.Second

// WebSocketServer handles WebSocket connections for the session event
// stream and the page agent bridge
type WebSocketServer struct {
	upgrader     websocket.Upgrader
	bus          *events.Bus
	registry     *remote.Registry
	config       *config.Config
	clients      map[string]*Client
	clientsMutex sync.RWMutex
}

// NewWebSocketServer creates a new WebSocket server
func NewWebSocketServer(bus *events.Bus, registry *remote.Registry, cfg *config.Config) *WebSocketServer {
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		bus:      bus,
		registry: registry,
		config:   cfg,
		clients:  make(map[string]*Client),
	}
}

// HandleEvents streams session lifecycle events for one room to the client
func (s *WebSocketServer) HandleEvents(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if room == "" {
		http.Error(w, "Room is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade WebSocket connection: %v", err)
		return
	}

	cc := ParseConnectionConfig(r.URL.Query())
	cc.Room = room

	client := NewClient(conn, s.bus, s.config)
	s.addClient(client)

	log.Infof("Event stream client connected: %s for room: %s", client.ID, room)

	client.Process(cc)

	s.removeClient(client.ID)
	log.Infof("Event stream client disconnected: %s", client.ID)
}

// HandlePage accepts the page agent connection and attaches its bridge.
// Only one page agent is active at a time; a new connection replaces
// the previous bridge.
func (s *WebSocketServer) HandlePage(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade page agent connection: %v", err)
		return
	}

	var writeMutex sync.Mutex
	send := func(msg remote.Message) error {
		writeMutex.Lock()
		defer writeMutex.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.config.WebSocket.WriteTimeout))
		return conn.WriteJSON(msg)
	}

	bridge := remote.NewBridge(send, pageReplyTimeout)
	s.registry.Attach(bridge)
	log.Infof("Page agent connected: %s", conn.RemoteAddr())

	defer func() {
		s.registry.Detach(bridge)
		bridge.Close()
		conn.Close()
		log.Infof("Page agent disconnected: %s", conn.RemoteAddr())
	}()

	conn.SetReadDeadline(time.Now().Add(s.config.WebSocket.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.WebSocket.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("Page agent read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.WebSocket.ReadTimeout))

		var msg remote.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("Discarding malformed page agent message: %v", err)
			continue
		}
		bridge.HandleMessage(msg)
	}
}

// addClient adds a client to the server's list
func (s *WebSocketServer) addClient(client *Client) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	s.clients[client.ID] = client
}

// removeClient removes a client from the server's list
func (s *WebSocketServer) removeClient(clientID string) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	delete(s.clients, clientID)
}

// Client represents a single event stream client
type Client struct {
	ID         string
	conn       *websocket.Conn
	bus        *events.Bus
	config     *config.Config
	subscriber *events.Subscriber
	sendChan   chan []byte
	stopChan   chan struct{}
}

// NewClient creates a new client
func NewClient(conn *websocket.Conn, bus *events.Bus, cfg *config.Config) *Client {
	return &Client{
		ID:       uuid.New().String(),
		conn:     conn,
		bus:      bus,
		config:   cfg,
		sendChan: make(chan []byte, 100),
		stopChan: make(chan struct{}),
	}
}

// Process starts processing messages for the client
func (c *Client) Process(cc *ConnectionConfig) {
	c.subscriber = events.NewSubscriber(c.ID, cc.QueueSize)
	c.subscriber.SetRoomFilter(cc.Room)
	c.bus.Subscribe(c.subscriber)
	defer c.bus.Unsubscribe(c.ID)

	go c.writePump()
	go c.readPump()

	for ev := range c.subscriber.Channel {
		data, err := CreateSessionStateMessage(ev)
		if err != nil {
			log.Errorf("Failed to encode event for client %s: %v", c.ID, err)
			continue
		}
		select {
		case c.sendChan <- data:
		default:
			log.Warnf("Dropping event for client %s (send channel full)", c.ID)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
		close(c.stopChan)
	}()

	pingTicker := time.NewTicker(c.config.WebSocket.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case message, ok := <-c.sendChan:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(c.config.WebSocket.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Errorf("Error writing message to WebSocket: %v", err)
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WebSocket.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Errorf("Error sending ping to WebSocket: %v", err)
				return
			}
			log.Debugf("Sent ping to client %s", c.ID)

		case <-c.stopChan:
			return
		}
	}
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.subscriber.Close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.config.WebSocket.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.WebSocket.ReadTimeout))
		log.Debugf("Received pong from client %s", c.ID)
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("WebSocket read error: %v", err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.WebSocket.ReadTimeout))
	}
}
