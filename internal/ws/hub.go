package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/metrics"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4 * 1024
	maxSendChannelSize = 64
	defaultRoomSize    = 8
)

const (
	EventTypeNotice = "notice"
	EventTypeHello  = "hello"
	EventTypeError  = "error"
	EventTypePong   = "pong"
)

// OutEvent исходящее событие
type OutEvent struct {
	Type      string        `json:"type"`
	Notice    *model.Notice `json:"notice,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// InEvent входящее событие
type InEvent struct {
	Type string `json:"type"`
}

type HubOptions struct {
	MaxClientsPerSession int
	CleanupInterval      time.Duration
	IdleTimeout          time.Duration
}

type Metrics struct {
	NoticesSent atomic.Int64
	Dropped     atomic.Int64
	Connections atomic.Int64
}

// Hub fans notices out to the websocket clients of each session.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	options  HubOptions
	metrics  Metrics
	log      *zap.SugaredLogger
	shutdown chan struct{}
	closed   atomic.Bool
}

func NewHub(log *zap.SugaredLogger, options ...HubOptions) *Hub {
	opts := HubOptions{
		MaxClientsPerSession: defaultRoomSize,
		CleanupInterval:      5 * time.Minute,
		IdleTimeout:          time.Hour,
	}
	if len(options) > 0 {
		opts = options[0]
	}

	hub := &Hub{
		rooms:    make(map[string]*Room),
		options:  opts,
		log:      log,
		shutdown: make(chan struct{}),
	}

	go hub.cleanupLoop()

	return hub
}

// room returns the room of a session, creating it on first use.
func (h *Hub) room(sessionID string) *Room {
	h.mu.RLock()
	room, exists := h.rooms[sessionID]
	h.mu.RUnlock()
	if exists {
		return room
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Двойная проверка
	if room, exists := h.rooms[sessionID]; exists {
		return room
	}
	room = NewRoom(sessionID, h.options.MaxClientsPerSession, h.log)
	h.rooms[sessionID] = room
	return room
}

// Notify implements the gallery notifier. It never blocks.
func (h *Hub) Notify(sessionID string, notice model.Notice) {
	if h.closed.Load() {
		return
	}
	h.mu.RLock()
	room, exists := h.rooms[sessionID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	data, err := json.Marshal(OutEvent{Type: EventTypeNotice, Notice: &notice, Timestamp: notice.Time})
	if err != nil {
		h.log.Errorw("failed to marshal notice", "error", err)
		return
	}

	if room.Broadcast(data) {
		h.metrics.NoticesSent.Inc()
	} else {
		h.metrics.Dropped.Inc()
	}
}

// Serve registers conn for sessionID and pumps until the connection ends.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, sessionID string) {
	client := NewClient(ctx, conn, sessionID, h.log)
	room := h.room(sessionID)
	if !room.RegisterClient(client) {
		client.SendJSON(OutEvent{Type: EventTypeError, Message: "too many connections", Timestamp: time.Now()})
		client.Close()
		return
	}

	h.metrics.Connections.Inc()
	metrics.NoticeClients.Inc()
	defer func() {
		room.UnregisterClient(client)
		metrics.NoticeClients.Dec()
	}()

	go client.ReadPump(func(c *Client, ev InEvent) {
		if ev.Type == "ping" {
			c.SendJSON(OutEvent{Type: EventTypePong, Timestamp: time.Now()})
		}
	})

	if err := client.WritePump(); err != nil {
		h.log.Debugw("notice stream closed", "session", sessionID, "error", err)
	}
}

// Drop closes every stream of a session, e.g. after logout.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	room, exists := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()

	if exists {
		room.Shutdown()
	}
}

// Stats reports totals since start; the metrics collector reads them.
func (h *Hub) Stats() (sent, dropped, connections int64) {
	return h.metrics.NoticesSent.Load(), h.metrics.Dropped.Load(), h.metrics.Connections.Load()
}

func (h *Hub) Shutdown() {
	if h.closed.Swap(true) {
		return
	}
	close(h.shutdown)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		room.Shutdown()
	}
	h.rooms = make(map[string]*Room)
}

func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(h.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			return
		case <-ticker.C:
			h.cleanupInactiveRooms()
		}
	}
}

func (h *Hub) cleanupInactiveRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, room := range h.rooms {
		if room.IsEmpty() && room.IdleFor() > h.options.IdleTimeout {
			room.Shutdown()
			delete(h.rooms, id)
		}
	}
}

// Room holds the open streams of one session.
type Room struct {
	sessionID  string
	mu         sync.RWMutex
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	once       sync.Once
	lastActive atomic.Time
	maxSize    int
	log        *zap.SugaredLogger
}

func NewRoom(sessionID string, maxSize int, log *zap.SugaredLogger) *Room {
	room := &Room{
		sessionID:  sessionID,
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, maxSendChannelSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		maxSize:    maxSize,
		log:        log,
	}
	room.lastActive.Store(time.Now())

	go room.run()

	return room
}

func (r *Room) run() {
	defer func() {
		r.mu.Lock()
		for _, client := range r.clients {
			client.Close()
		}
		r.clients = make(map[string]*Client)
		r.mu.Unlock()
	}()

	for {
		select {
		case <-r.shutdown:
			return
		case client := <-r.register:
			r.handleRegister(client)
		case client := <-r.unregister:
			r.handleUnregister(client)
		case message := <-r.broadcast:
			r.handleBroadcast(message)
		}
	}
}

func (r *Room) handleRegister(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.maxSize {
		client.SendJSON(OutEvent{Type: EventTypeError, Message: "too many connections", Timestamp: time.Now()})
		client.Close()
		return
	}

	r.clients[client.ID] = client
	r.lastActive.Store(time.Now())
	client.SendJSON(OutEvent{Type: EventTypeHello, Timestamp: time.Now()})
}

func (r *Room) handleUnregister(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stored, exists := r.clients[client.ID]; exists && stored == client {
		delete(r.clients, client.ID)
		client.Close()
		r.lastActive.Store(time.Now())
	}
}

func (r *Room) handleBroadcast(message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, client := range r.clients {
		// закрытые клиенты ещё не успели отписаться
		if client.IsClosed() {
			delete(r.clients, id)
			continue
		}
		client.SendRaw(message)
	}
	r.lastActive.Store(time.Now())
}

// RegisterClient returns false once the room is shut down.
func (r *Room) RegisterClient(client *Client) bool {
	select {
	case r.register <- client:
		return true
	case <-r.shutdown:
		return false
	}
}

func (r *Room) UnregisterClient(client *Client) {
	select {
	case r.unregister <- client:
	case <-r.shutdown:
	}
}

// Broadcast queues message without blocking; false means it was dropped.
func (r *Room) Broadcast(message []byte) bool {
	select {
	case <-r.shutdown:
		return false
	default:
	}
	select {
	case r.broadcast <- message:
		return true
	default:
		return false
	}
}

func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) == 0
}

func (r *Room) IdleFor() time.Duration {
	return time.Since(r.lastActive.Load())
}

func (r *Room) Shutdown() {
	r.once.Do(func() { close(r.shutdown) })
}

// Client is one websocket stream.
type Client struct {
	ID        string
	SessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	send      chan []byte
	log       *zap.SugaredLogger
	mu        sync.RWMutex
	isClosed  bool
}

func NewClient(ctx context.Context, conn *websocket.Conn, sessionID string, log *zap.SugaredLogger) *Client {
	ctx, cancel := context.WithCancel(ctx)

	return &Client{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		send:      make(chan []byte, maxSendChannelSize),
		log:       log,
	}
}

// ReadPump reads control events until the peer goes away.
func (c *Client) ReadPump(handleIncoming func(*Client, InEvent)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev InEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debugw("client read error", "error", err)
			}
			return
		}
		handleIncoming(c, ev)
	}
}

// WritePump sends queued events and keepalive pings.
func (c *Client) WritePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return nil
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return err
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *Client) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Errorw("client marshal error", "error", err)
		return false
	}
	return c.SendRaw(data)
}

// SendRaw drops the message when the client is slow.
func (c *Client) SendRaw(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isClosed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return
	}
	c.isClosed = true
	c.cancel()
	c.conn.Close()
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isClosed
}
