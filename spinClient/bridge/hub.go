package bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pushchain/spin-relay/spinClient/metrics"
	"github.com/pushchain/spin-relay/spinClient/spin"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// IntentHandler receives parsed spin intents. It is called on the connection's read
// goroutine and must not block.
type IntentHandler func(intent spin.Intent)

type client struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans outbound messages out to every connected game surface.
type Hub struct {
	upgrader websocket.Upgrader
	handler  IntentHandler
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	wallet  *WalletInfo
	closed  bool
}

// NewHub creates a hub. An empty allowedOrigins accepts any origin.
func NewHub(handler IntentHandler, allowedOrigins []string, logger zerolog.Logger) *Hub {
	h := &Hub{
		handler: handler,
		clients: make(map[string]*client),
		logger:  logger.With().Str("component", "game_bridge").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), ws: ws, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		ws.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	metrics.BridgeClients.Set(float64(len(h.clients)))
	h.logger.Info().Str("client_id", c.id).Msg("game surface connected")

	// A (re)loaded game surface gets the current wallet context right away.
	if h.wallet != nil {
		if msg, err := json.Marshal(walletMessage{Type: TypeWallet, WalletInfo: *h.wallet}); err == nil {
			c.send <- msg
		}
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	metrics.BridgeClients.Set(float64(len(h.clients)))
	h.logger.Info().Str("client_id", c.id).Msg("game surface disconnected")
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client_id", c.id).Msg("connection closed unexpectedly")
			}
			return
		}

		intent, ok, err := ParseIntent(raw)
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", c.id).Msg("ignoring malformed message")
			continue
		}
		if !ok || h.handler == nil {
			continue
		}
		h.handler(intent)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode outbound message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("client_id", c.id).Msg("client send buffer full, dropping message")
		}
	}
}

// SpinLoading tells the game surface that submission has begun.
func (h *Hub) SpinLoading() {
	h.broadcast(loadingMessage{Type: TypeSpinLoading})
}

// SpinResult delivers a request's outcome.
func (h *Hub) SpinResult(id uint64, outcome *spin.Outcome) {
	h.broadcast(resultMessage{Type: TypeSpinResult, ID: id, Result: outcome})
}

// SetWallet records the account context and sends it to every connected surface.
// nil clears it.
func (h *Hub) SetWallet(info *WalletInfo) {
	h.mu.Lock()
	if info != nil {
		cp := *info
		h.wallet = &cp
	} else {
		h.wallet = nil
	}
	h.mu.Unlock()

	if info != nil {
		h.broadcast(walletMessage{Type: TypeWallet, WalletInfo: *info})
	}
}

// Wallet returns the current account context, if any.
func (h *Hub) Wallet() (WalletInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.wallet == nil {
		return WalletInfo{}, false
	}
	return *h.wallet, true
}

// Clients returns the number of connected game surfaces.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.ws.Close()
	}
}

var _ spin.Sink = (*Hub)(nil)
