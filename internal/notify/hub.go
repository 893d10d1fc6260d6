// Package notify provides the concrete matching.NotifierPort: Hub
// fans events out to directed per-client channels and per-topic
// subscriber groups, and mirrors topic publishes (not directed events)
// onto an internal NATS bus as subject "matchd.<topic>", so other
// processes can tap the stream without going through the TCP protocol.
// In-process consumers (sessions, wsfeed, zmqfeed) attach to the Hub.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lxvenue/matchd/internal/matching"
)

// clientQueueDepth bounds the per-session outbound buffer; once a
// session falls this far behind, further events for it are dropped (and
// counted) rather than letting Publish/Direct block the matching
// goroutine. The session itself stays attached.
const clientQueueDepth = 1024

// Hub is the process-local event bus. It holds no reference to
// sockets: sessions register a channel at Attach and drain it
// themselves.
type Hub struct {
	log log.Logger

	mu       sync.RWMutex
	clients  map[string]chan matching.Event
	topics   map[string]map[string]chan matching.Event // topic -> clientID -> chan
	subsByID map[string]map[string]bool                // clientID -> topic set, for Unsubscribe-all on detach

	nc *nats.Conn // optional; nil when running without an internal bus

	delivered prometheus.Counter
	dropped   prometheus.Counter
}

// NewHub creates an empty Hub. nc may be nil: NATS fan-out is best
// effort and Hub works standalone for tests and single-process runs.
func NewHub(nc *nats.Conn, registry prometheus.Registerer) *Hub {
	h := &Hub{
		log:      log.Root().New("module", "notify"),
		clients:  make(map[string]chan matching.Event),
		topics:   make(map[string]map[string]chan matching.Event),
		subsByID: make(map[string]map[string]bool),
		nc:       nc,
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchd_events_delivered_total",
			Help: "Events handed to a session's outbound channel.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchd_events_dropped_total",
			Help: "Events dropped because a session's outbound channel was full.",
		}),
	}
	if registry != nil {
		// metrics.New already registers counters under these names on the
		// shared registry; adopt those instead of panicking on the duplicate.
		for _, c := range []*prometheus.Counter{&h.delivered, &h.dropped} {
			if err := registry.Register(*c); err != nil {
				are, ok := err.(prometheus.AlreadyRegisteredError)
				if !ok {
					panic(err)
				}
				*c = are.ExistingCollector.(prometheus.Counter)
			}
		}
	}
	return h
}

// Attach registers clientID's outbound channel, creating it with
// clientQueueDepth capacity. Safe to call once per session.
func (h *Hub) Attach(clientID string) <-chan matching.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan matching.Event, clientQueueDepth)
	h.clients[clientID] = ch
	return ch
}

// Detach removes clientID's channel and every topic subscription it
// held, called once the owning session's socket closes.
func (h *Hub) Detach(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
	for topic := range h.subsByID[clientID] {
		delete(h.topics[topic], clientID)
	}
	delete(h.subsByID, clientID)
}

// Subscribe adds clientID as a listener of topic (an "L1:<symbol>" or
// "TAPE:<symbol>" string minted by the matching package).
func (h *Hub) Subscribe(clientID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.clients[clientID]
	if !ok {
		return
	}
	group, ok := h.topics[topic]
	if !ok {
		group = make(map[string]chan matching.Event)
		h.topics[topic] = group
	}
	group[clientID] = ch
	if h.subsByID[clientID] == nil {
		h.subsByID[clientID] = make(map[string]bool)
	}
	h.subsByID[clientID][topic] = true
}

// Unsubscribe removes clientID from topic's subscriber group.
func (h *Hub) Unsubscribe(clientID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], clientID)
	delete(h.subsByID[clientID], topic)
}

// Direct implements matching.NotifierPort: a best-effort send to
// clientID's channel. The event is silently discarded if the session is
// absent, and dropped and counted if its buffer is full.
func (h *Hub) Direct(clientID string, event matching.Event) {
	h.mu.RLock()
	ch, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.send(ch, event)
}

// Publish implements matching.NotifierPort: fan event out to every
// subscriber of topic, and mirror it onto the internal NATS subject
// if a connection was configured.
func (h *Hub) Publish(topic string, event matching.Event) {
	h.mu.RLock()
	group := h.topics[topic]
	recipients := make([]chan matching.Event, 0, len(group))
	for _, ch := range group {
		recipients = append(recipients, ch)
	}
	h.mu.RUnlock()

	for _, ch := range recipients {
		h.send(ch, event)
	}

	if h.nc != nil {
		if payload, err := json.Marshal(event); err == nil {
			if err := h.nc.Publish("matchd."+topic, payload); err != nil {
				h.log.Warn("nats publish failed", "topic", topic, "error", err)
			}
		}
	}
}

func (h *Hub) send(ch chan matching.Event, event matching.Event) {
	select {
	case ch <- event:
		h.delivered.Inc()
	default:
		h.dropped.Inc()
	}
}
