// Package wsbridge pushes game notifications to websocket UI clients and
// turns their commands into game actions.
package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/rs/zerolog/log"
)

// Controller is the game surface a UI client may drive.
type Controller interface {
	StartGame()
	SubmitLetterGuess(letter string)
	EndRoundEarly()
	ReturnToMenu()
	RetryMatchmaking()
}

// Command is a message sent by a UI client.
type Command struct {
	Action string `json:"action"`
	Letter string `json:"letter,omitempty"`
}

const (
	ActionStart    = "start"
	ActionGuess    = "guess"
	ActionEndRound = "end_round"
	ActionMenu     = "menu"
	ActionRetry    = "retry"
)

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// The bridge listens on a local address for a local UI.
			return true
		},
	}
}

// Bridge manages UI connections. It implements notify.Sink.
type Bridge struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	control  Controller

	broadcastCh chan notify.Notification
}

var _ notify.Sink = (*Bridge)(nil)

// Connection is one websocket UI client
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	bridge *Bridge

	ConnectedAt time.Time
}

// New creates a bridge. control may be nil for a display-only bridge.
func New(config ConnectionConfig, control Controller) *Bridge {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &Bridge{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		control:     control,
		broadcastCh: make(chan notify.Notification, 1000),
	}
}

// SetController attaches the game the bridge forwards commands to.
func (b *Bridge) SetController(control Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.control = control
}

// Start processes broadcasts until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	log.Info().Msg("ui bridge started")

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			log.Info().Msg("ui bridge shutting down")
			return
		case n := <-b.broadcastCh:
			b.handleBroadcast(n)
		}
	}
}

// Publish queues a notification for every connected client. It never
// blocks the game loop.
func (b *Bridge) Publish(n notify.Notification) {
	select {
	case b.broadcastCh <- n:
	default:
		log.Warn().Str("kind", string(n.Kind)).Msg("broadcast channel full, dropping notification")
	}
}

// ConnectionCount returns the number of connected clients.
func (b *Bridge) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}

// UpgradeConnection upgrades an HTTP connection to websocket
func (b *Bridge) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, b.config.SendBuffer),
		bridge:      b,
		ConnectedAt: time.Now(),
	}
	b.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.ID).Msg("ui connection established")
	return nil
}

func (b *Bridge) register(c *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections[c] = true
	log.Debug().
		Str("connection_id", c.ID).
		Int("total_connections", len(b.connections)).
		Msg("connection registered")
}

func (b *Bridge) unregister(c *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.connections[c]; ok {
		delete(b.connections, c)
		close(c.Send)
		log.Info().Str("connection_id", c.ID).Msg("connection unregistered")
	}
}

func (b *Bridge) closeAll() {
	b.mu.RLock()
	conns := make([]*Connection, 0, len(b.connections))
	for c := range b.connections {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		b.unregister(c)
	}
}

// handleBroadcast sends one notification to every client.
func (b *Bridge) handleBroadcast(n notify.Notification) {
	b.mu.RLock()
	targets := make([]*Connection, 0, len(b.connections))
	for c := range b.connections {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Str("kind", string(n.Kind)).Msg("failed to marshal notification")
		return
	}

	for _, c := range targets {
		select {
		case c.Send <- data:
		default:
			log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, closing connection")
			b.unregister(c)
			c.Conn.Close()
		}
	}

	log.Debug().
		Str("kind", string(n.Kind)).
		Int("connections", len(targets)).
		Msg("notification broadcasted")
}

// dispatch forwards a client command to the game.
func (b *Bridge) dispatch(cmd Command) error {
	b.mu.RLock()
	control := b.control
	b.mu.RUnlock()
	if control == nil {
		return fmt.Errorf("no game attached")
	}

	switch strings.ToLower(cmd.Action) {
	case ActionStart:
		control.StartGame()
	case ActionGuess:
		control.SubmitLetterGuess(cmd.Letter)
	case ActionEndRound:
		control.EndRoundEarly()
	case ActionMenu:
		control.ReturnToMenu()
	case ActionRetry:
		control.RetryMatchmaking()
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return nil
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.bridge.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.bridge.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.bridge.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.bridge.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the connection closes
func (c *Connection) readPump() {
	defer func() {
		c.bridge.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.bridge.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.bridge.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.bridge.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close error")
			}
			break
		}
		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.bridge.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}
	if err := c.bridge.dispatch(cmd); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Str("action", cmd.Action).Msg("ignoring client command")
		return
	}
	log.Debug().Str("connection_id", c.ID).Str("action", cmd.Action).Msg("client command dispatched")
}
