// Package instrument enforces the single-threaded-per-instrument
// concurrency model: one goroutine and one matching.Core per symbol,
// reached only through a buffered command channel, so matching.Core
// itself never needs a lock.
package instrument

import (
	"os"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/lxvenue/matchd/internal/idgen"
	"github.com/lxvenue/matchd/internal/matching"
	"github.com/lxvenue/matchd/internal/metrics"
)

// commandQueueDepth bounds how many pending commands an instrument's
// goroutine will buffer before Submit/Cancel start blocking the caller.
const commandQueueDepth = 4096

// command is a closure the instrument goroutine runs with exclusive
// access to its Core; done is closed once it returns.
type command struct {
	run  func(*matching.Core)
	done chan struct{}
}

// worker owns one symbol's matching.Core and the goroutine serializing
// access to it.
type worker struct {
	symbol string
	core   *matching.Core
	cmds   chan command
	quit   chan struct{}
}

func newWorker(symbol string, ids matching.IDGenerator, notifier matching.NotifierPort, rejectSelfTrade bool) *worker {
	core := matching.NewCore(symbol, ids, notifier)
	core.RejectSelfTrade = rejectSelfTrade
	w := &worker{
		symbol: symbol,
		core:   core,
		cmds:   make(chan command, commandQueueDepth),
		quit:   make(chan struct{}),
	}
	go w.run()
	return w
}

// run is the single goroutine that owns this instrument's Core. A
// matching.InvariantViolation panic is structural corruption, not a
// recoverable condition: it is caught here, logged, and the whole
// process exits(2) rather than keep serving a book that might be
// inconsistent.
func (w *worker) run() {
	defer func() {
		if r := recover(); r != nil {
			logger := log.Root().New("module", "instrument", "symbol", w.symbol)
			if iv, ok := r.(matching.InvariantViolation); ok {
				logger.Crit("invariant violation, aborting", "error", iv.Error())
			} else {
				logger.Crit("unrecoverable panic in matching goroutine", "panic", r)
			}
			os.Exit(2)
		}
	}()

	for {
		select {
		case cmd := <-w.cmds:
			cmd.run(w.core)
			close(cmd.done)
		case <-w.quit:
			return
		}
	}
}

// submit blocks the caller until run has executed against this
// instrument's Core, preserving program-order delivery for the calling
// session without requiring matching.Core to be concurrency-safe.
func (w *worker) submit(run func(*matching.Core)) {
	done := make(chan struct{})
	w.cmds <- command{run: run, done: done}
	<-done
}

// Manager is the registry of per-symbol workers. Symbols are created
// lazily on first reference; the set of known instruments lives only
// for the process lifetime.
type Manager struct {
	mu              sync.RWMutex
	workers         map[string]*worker
	ids             matching.IDGenerator // shared across every instrument, so order ids are unique process-wide
	notifier        matching.NotifierPort
	rejectSelfTrade bool
	metrics         *metrics.Metrics // optional; nil disables instrumentation
	onNewInstrument []func(symbol string)
}

// NewManager creates an empty instrument registry. A single
// idgen.Generator is shared by every instrument's Core so order ids
// stay unique across symbols, not just within one: two instruments
// handing out ids from independent counters could otherwise both mint
// order id 1, and the protocol layer's id->symbol routing (see
// session.rememberOrder) has no way to tell them apart. notifier is
// shared the same way; rejectSelfTrade configures every instrument
// created from this point on. m may be nil.
func NewManager(notifier matching.NotifierPort, rejectSelfTrade bool, m *metrics.Metrics) *Manager {
	return &Manager{
		workers:         make(map[string]*worker),
		ids:             idgen.New(),
		notifier:        notifier,
		rejectSelfTrade: rejectSelfTrade,
		metrics:         m,
	}
}

func (m *Manager) workerFor(symbol string) *worker {
	m.mu.RLock()
	w, ok := m.workers[symbol]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	if w, ok := m.workers[symbol]; ok {
		m.mu.Unlock()
		return w
	}
	w = newWorker(symbol, m.ids, m.notifier, m.rejectSelfTrade)
	m.workers[symbol] = w
	hooks := m.onNewInstrument
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(symbol)
	}
	return w
}

// OnNewInstrument registers hook to run every time a symbol is
// referenced for the first time this process, after its worker is
// live. Used to let feeds that subscribe per-symbol (see
// internal/zmqfeed) pick up instruments created lazily rather than
// requiring a static symbol list up front.
func (m *Manager) OnNewInstrument(hook func(symbol string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNewInstrument = append(m.onNewInstrument, hook)
}

// Submit admits intent on symbol and returns the synchronous result.
func (m *Manager) Submit(symbol string, intent matching.NewOrderIntent) (matching.SubmitResult, error) {
	w := m.workerFor(symbol)
	var result matching.SubmitResult
	var err error

	start := time.Now()
	w.submit(func(c *matching.Core) {
		result, err = c.Submit(intent)
		if m.metrics != nil {
			m.metrics.SetDepth(symbol, "BID", float64(c.Bids.Size()))
			m.metrics.SetDepth(symbol, "ASK", float64(c.Asks.Size()))
		}
	})

	if m.metrics != nil {
		m.metrics.RecordMatchingLatency(float64(time.Since(start).Nanoseconds()))
		if err != nil {
			reason := "UNKNOWN"
			if rej, ok := err.(*matching.RejectedError); ok {
				reason = string(rej.Reason)
			}
			m.metrics.RecordOrderRejected(reason)
		} else {
			m.metrics.RecordOrderAdmitted()
			if result.Filled > 0 {
				m.metrics.RecordTrade()
			}
		}
	}
	return result, err
}

// Cancel cancels id on symbol, owned by clientID.
func (m *Manager) Cancel(symbol string, id uint64, clientID string) error {
	if !m.Known(symbol) {
		return &matching.RejectedError{Reason: matching.ReasonBadSymbol, Detail: "unknown symbol"}
	}
	w := m.workerFor(symbol)
	var err error
	w.submit(func(c *matching.Core) {
		err = c.Cancel(id, clientID)
	})
	if err == nil && m.metrics != nil {
		m.metrics.RecordCancel()
	}
	return err
}

// Snapshot requests a one-off L1 snapshot on symbol, directed at
// clientID.
func (m *Manager) Snapshot(symbol string, clientID string) error {
	if !m.Known(symbol) {
		return &matching.RejectedError{Reason: matching.ReasonBadSymbol, Detail: "unknown symbol"}
	}
	w := m.workerFor(symbol)
	w.submit(func(c *matching.Core) {
		c.Snapshot(clientID)
	})
	return nil
}

// DebugOrders returns every resting order on symbol, for DEBUG ORDERS.
func (m *Manager) DebugOrders(symbol string) ([]matching.DebugOrder, error) {
	if !m.Known(symbol) {
		return nil, &matching.RejectedError{Reason: matching.ReasonBadSymbol, Detail: "unknown symbol"}
	}
	w := m.workerFor(symbol)
	var out []matching.DebugOrder
	w.submit(func(c *matching.Core) {
		out = c.DebugOrders()
	})
	return out, nil
}

// Known reports whether symbol has ever been referenced this process.
func (m *Manager) Known(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.workers[symbol]
	return ok
}

// Symbols returns every instrument referenced so far, in no
// particular order.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.workers))
	for s := range m.workers {
		out = append(out, s)
	}
	return out
}

// ClientGone fans a session-loss cleanup out to every instrument,
// concurrently, waiting for all of them to finish.
func (m *Manager) ClientGone(clientID string) {
	m.mu.RLock()
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, w := range workers {
		w := w
		go func() {
			defer wg.Done()
			w.submit(func(c *matching.Core) {
				c.ClientGone(clientID)
			})
		}()
	}
	wg.Wait()
}
