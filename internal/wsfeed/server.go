// Package wsfeed mirrors the L1/TAPE event groups over a read-only
// WebSocket market-data feed, for browser and dashboard consumers that
// would rather not speak the line protocol.
package wsfeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/lxvenue/matchd/internal/matching"
	"github.com/lxvenue/matchd/internal/notify"
	"github.com/lxvenue/matchd/internal/quote"
)

const (
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingPeriod    = 54 * time.Second
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades HTTP connections to WebSocket and bridges each one
// to the notify.Hub as an ordinary (if anonymous) subscriber.
type Server struct {
	hub      *notify.Hub
	logger   log.Logger
	nextConn uint64
}

// New wires a Server against hub.
func New(hub *notify.Hub) *Server {
	return &Server{hub: hub, logger: log.Root().New("module", "wsfeed")}
}

// Handler returns the http.Handler to mount at the feed's path.
func (s *Server) Handler() http.HandlerFunc {
	return s.handleUpgrade
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id := fmt.Sprintf("ws-%d", atomic.AddUint64(&s.nextConn, 1))
	events := s.hub.Attach(id)

	c := &wsClient{
		id:     id,
		conn:   conn,
		hub:    s.hub,
		events: events,
		send:   make(chan []byte, sendQueueSize),
		logger: s.logger,
	}
	go c.writePump()
	go c.readPump()
}

// wireMessage is the JSON envelope every frame is wrapped in:
// {type, symbol, event, data, price, timestamp}, with the matching.Event
// itself JSON-encoded under data.
type wireMessage struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	// Price is a human-readable decimal rendering of the event's tick
	// price, for dashboard consumers; omitted for events with no single
	// price (e.g. RESTING). The TCP wire protocol never carries this —
	// it stays in raw ticks there — so this enrichment is specific to
	// the dashboard feed.
	Price     string `json:"price,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// decimalPrice extracts the single most relevant tick price out of ev,
// if any, rendered for display.
func decimalPrice(ev matching.Event) string {
	switch ev.Kind {
	case matching.EventExec:
		return quote.ToDecimal(ev.Exec.Price).String()
	case matching.EventL1Update, matching.EventL1Snapshot:
		if ev.L1.Last == 0 {
			return ""
		}
		return quote.ToDecimal(ev.L1.Last).String()
	default:
		return ""
	}
}

type subscribeRequest struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	hub    *notify.Hub
	events <-chan matching.Event
	send   chan []byte
	logger log.Logger
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.Detach(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		switch req.Type {
		case "subscribe":
			for _, ch := range req.Channels {
				c.hub.Subscribe(c.id, ch)
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				c.hub.Unsubscribe(c.id, ch)
			}
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.deliver(ev)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) deliver(ev matching.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("failed to marshal event for ws feed", "error", err)
		return
	}
	msg := wireMessage{
		Type:      "event",
		Symbol:    ev.Symbol,
		Event:     ev.Kind.String(),
		Data:      data,
		Price:     decimalPrice(ev),
		Timestamp: time.Now().UnixNano(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return
	}
}
