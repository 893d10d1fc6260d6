// Package zmqfeed publishes the public trade tape over a ZeroMQ PUB
// socket, for colocated low-latency consumers that want the TAPE
// group without the overhead of a TCP session or a JSON WebSocket
// frame.
package zmqfeed

import (
	"encoding/json"
	"sync"

	zmq "github.com/pebbe/zmq4"

	"github.com/luxfi/log"

	"github.com/lxvenue/matchd/internal/matching"
	"github.com/lxvenue/matchd/internal/notify"
)

// Publisher bridges one notify.Hub subscriber identity onto a ZMQ PUB
// socket: every EXEC delivered to it is re-published with the
// instrument's symbol as the topic prefix, so subscribers can filter
// with a ZMQ subscription on "<symbol> ".
type Publisher struct {
	ctx    *zmq.Context
	socket *zmq.Socket
	hub    *notify.Hub
	logger log.Logger

	clientID string
	events   <-chan matching.Event

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// tapeMessage is the JSON payload following the topic prefix on the
// wire, one per published frame.
type tapeMessage struct {
	Symbol      string `json:"symbol"`
	OrderID     uint64 `json:"orderId"`
	Side        string `json:"side"`
	FillQty     uint64 `json:"fillQty"`
	Price       uint64 `json:"price"`
	CumFilled   uint64 `json:"cumFilled"`
	OriginalQty uint64 `json:"originalQty"`
	TradeTs     int64  `json:"tradeTs"`
}

// New binds a PUB socket at bindAddr (e.g. "tcp://*:5556") and
// attaches it to hub under a reserved client identity. Call
// SubscribeSymbol for every instrument whose tape should be
// mirrored.
func New(hub *notify.Hub, bindAddr string) (*Publisher, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, err
	}
	socket, err := ctx.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	socket.SetSndhwm(100000)
	if err := socket.Bind(bindAddr); err != nil {
		socket.Close()
		return nil, err
	}

	const clientID = "zmqfeed"
	p := &Publisher{
		ctx:      ctx,
		socket:   socket,
		hub:      hub,
		logger:   log.Root().New("module", "zmqfeed"),
		clientID: clientID,
		events:   hub.Attach(clientID),
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// SubscribeSymbol mirrors symbol's public trade tape onto the PUB
// socket.
func (p *Publisher) SubscribeSymbol(symbol string) {
	p.hub.Subscribe(p.clientID, "TAPE:"+symbol)
}

func (p *Publisher) run() {
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				return
			}
			p.publish(ev)
		case <-p.done:
			return
		}
	}
}

func (p *Publisher) publish(ev matching.Event) {
	if ev.Kind != matching.EventExec || ev.Exec == nil {
		return
	}
	msg := tapeMessage{
		Symbol:      ev.Symbol,
		OrderID:     ev.Exec.OrderID,
		Side:        ev.Exec.Side.String(),
		FillQty:     ev.Exec.FillQty,
		Price:       ev.Exec.Price,
		CumFilled:   ev.Exec.CumFilled,
		OriginalQty: ev.Exec.OriginalQty,
		TradeTs:     ev.Exec.TradeTs,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("failed to marshal tape message", "error", err)
		return
	}
	frame := append([]byte(ev.Symbol+" "), data...)
	if _, err := p.socket.SendBytes(frame, zmq.DONTWAIT); err != nil {
		p.logger.Warn("zmq publish failed", "symbol", ev.Symbol, "error", err)
	}
}

// Close stops the publish loop, detaches from the hub, and closes the
// socket and context.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.done)
	p.hub.Detach(p.clientID)
	p.socket.Close()
	p.ctx.Term()
}
