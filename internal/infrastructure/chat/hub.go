package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"livestream/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrHubNotRunning = errors.New("chat hub is not running")

const (
	writeTimeout = 10 * time.Second
	sendBuffer   = 32
)

// Config tunes websocket keepalive and limits.
type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// Message is what members send and receive inside a room.
type Message struct {
	Type        string          `json:"type"`
	AppInstance string          `json:"appInstance,omitempty"`
	StreamID    domain.StreamID `json:"streamId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Text        string          `json:"text,omitempty"`
	SentAt      time.Time       `json:"sentAt,omitempty"`
}

const (
	MessageTypeChat       = "message"
	MessageTypeRoomClosed = "room_closed"
	MessageTypeError      = "error"
)

type member struct {
	userID string
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func (m *member) close() {
	m.once.Do(func() { close(m.done) })
}

type room struct {
	info    domain.ChatRoom
	members map[*member]struct{}
}

// Hub owns the chat rooms, one per live stream keyed by appInstance.
type Hub struct {
	rooms map[string]*room
	mu    sync.RWMutex

	running  atomic.Bool
	upgrader websocket.Upgrader
	cfg      Config
	logger   *zap.SugaredLogger
}

func NewHub(cfg Config, logger *zap.SugaredLogger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}

	h := &Hub{
		rooms:  make(map[string]*room),
		cfg:    cfg,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run marks the hub ready to accept rooms and connections.
func (h *Hub) Run() {
	h.running.Store(true)
	h.logger.Info("chat hub running")
}

// IsReady reports whether the hub accepts room operations.
func (h *Hub) IsReady() bool {
	return h.running.Load()
}

// Shutdown stops accepting work and disconnects every member.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.running.Store(false)

	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, r := range rooms {
		h.evict(r)
	}

	h.logger.Infow("chat hub stopped", "rooms_closed", len(rooms))
	return ctx.Err()
}

// CreateNewRoom opens the room for appInstance bound to streamID. Opening
// the room a stream already holds returns it with created false. A room
// left over from another stream is replaced and its members evicted.
func (h *Hub) CreateNewRoom(appInstance string, streamID domain.StreamID) (*domain.ChatRoom, bool, error) {
	if !h.IsReady() {
		return nil, false, ErrHubNotRunning
	}
	if appInstance == "" {
		return nil, false, fmt.Errorf("appInstance is required")
	}

	h.mu.Lock()
	stale, exists := h.rooms[appInstance]
	if exists && stale.info.StreamID == streamID {
		info := stale.snapshot()
		h.mu.Unlock()
		return &info, false, nil
	}

	r := &room{
		info: domain.ChatRoom{
			AppInstance: appInstance,
			StreamID:    streamID,
			CreatedAt:   time.Now(),
		},
		members: make(map[*member]struct{}),
	}
	h.rooms[appInstance] = r
	info := r.snapshot()
	h.mu.Unlock()

	if exists {
		h.logger.Warnw("replacing chat room held by another stream",
			"app_instance", appInstance,
			"from_stream", stale.info.StreamID,
			"to_stream", streamID)
		h.evict(stale)
	}
	return &info, true, nil
}

// CloseRoom removes the room for appInstance and disconnects its members.
// Only the stream the room is bound to may close it.
func (h *Hub) CloseRoom(appInstance string, streamID domain.StreamID) error {
	h.mu.Lock()
	r, ok := h.rooms[appInstance]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%s: %w", appInstance, domain.ErrRoomNotFound)
	}
	if r.info.StreamID != streamID {
		owner := r.info.StreamID
		h.mu.Unlock()
		return fmt.Errorf("%s is bound to stream %s: %w", appInstance, owner, domain.ErrRoomNotOwned)
	}
	delete(h.rooms, appInstance)
	h.mu.Unlock()

	h.evict(r)
	return nil
}

// Room returns a snapshot of the room for appInstance.
func (h *Hub) Room(appInstance string) (domain.ChatRoom, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[appInstance]
	if !ok {
		return domain.ChatRoom{}, false
	}
	return r.snapshot(), true
}

// RoomCount returns the number of open rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// HandleWebSocket joins the caller to the room named by the app_instance
// query parameter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	appInstance := r.URL.Query().Get("app_instance")
	userID := r.URL.Query().Get("user_id")
	if appInstance == "" || userID == "" {
		http.Error(w, "app_instance and user_id are required", http.StatusBadRequest)
		return
	}
	if !h.IsReady() {
		http.Error(w, ErrHubNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}

	m := &member{
		userID: userID,
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
	if !h.join(appInstance, m) {
		http.Error(w, domain.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.leave(appInstance, m)
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.logger.Infow("member joined chat room", "app_instance", appInstance, "user_id", userID)
	h.serve(conn, appInstance, m)
	h.leave(appInstance, m)
	h.logger.Infow("member left chat room", "app_instance", appInstance, "user_id", userID)
}

func (h *Hub) serve(conn *websocket.Conn, appInstance string, m *member) {
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	incoming := make(chan Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
			select {
			case incoming <- msg:
			case <-m.done:
				return
			}
		}
	}()

	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg := <-incoming:
			if msg.Type != MessageTypeChat || msg.Text == "" {
				h.write(conn, Message{Type: MessageTypeError, Text: "unsupported message"})
				continue
			}
			h.broadcast(appInstance, Message{
				Type:        MessageTypeChat,
				AppInstance: appInstance,
				UserID:      m.userID,
				Text:        msg.Text,
				SentAt:      time.Now(),
			})

		case msg := <-m.send:
			if err := h.write(conn, msg); err != nil {
				m.close()
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.close()
				return
			}

		case <-m.done:
			h.drain(conn, m)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
				time.Now().Add(writeTimeout))
			return

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("chat read error", "app_instance", appInstance, "user_id", m.userID, "error", err)
			}
			m.close()
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// drain flushes messages queued before the member was evicted.
func (h *Hub) drain(conn *websocket.Conn, m *member) {
	for {
		select {
		case msg := <-m.send:
			if err := h.write(conn, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Hub) join(appInstance string, m *member) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[appInstance]
	if !ok {
		return false
	}
	r.members[m] = struct{}{}
	return true
}

func (h *Hub) leave(appInstance string, m *member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[appInstance]; ok {
		delete(r.members, m)
	}
}

func (h *Hub) broadcast(appInstance string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[appInstance]
	if !ok {
		return
	}
	msg.StreamID = r.info.StreamID
	for m := range r.members {
		select {
		case m.send <- msg:
		default:
			h.logger.Warnw("dropping chat message for slow member",
				"app_instance", appInstance, "user_id", m.userID)
		}
	}
}

// evict tells every member the room is gone and disconnects them. The room
// must already be unreachable from h.rooms.
func (h *Hub) evict(r *room) {
	notice := Message{
		Type:        MessageTypeRoomClosed,
		AppInstance: r.info.AppInstance,
		StreamID:    r.info.StreamID,
		SentAt:      time.Now(),
	}
	for m := range r.members {
		select {
		case m.send <- notice:
		default:
		}
		m.close()
	}
}

func (r *room) snapshot() domain.ChatRoom {
	info := r.info
	info.Members = len(r.members)
	return info
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
