// Package matching implements the per-instrument continuous-matching
// engine: admission of new-order intents, the price-time priority
// match loop, cancellation, and the trade-statistics/event fan-out
// contract. A Core is single-threaded by convention — callers (see
// internal/instrument) must serialize calls to one Core instance one
// at a time; Core itself holds no lock.
package matching

import "github.com/lxvenue/matchd/internal/book"

// NewOrderIntent is the validated, decoded form of a NEWL/NEWM line.
type NewOrderIntent struct {
	ClientID      string
	ClientOrderID string
	Side          book.Side
	Type          book.OrderType
	Price         uint64 // ticks; ignored for Market
	Qty           uint64
}

// TerminalState is the summary state reported to a submitter once its
// order stops being "in the match loop".
type TerminalState uint8

const (
	StateFilled TerminalState = iota
	StateResting
	StatePartialAndCancelled
)

func (s TerminalState) String() string {
	switch s {
	case StateFilled:
		return "FILLED"
	case StateResting:
		return "RESTING"
	default:
		return "PARTIAL_AND_CANCELLED"
	}
}

// SubmitResult is returned synchronously from Submit; fills and the
// terminal-state event are also published asynchronously.
type SubmitResult struct {
	OrderID   uint64
	Terminal  TerminalState
	Filled    uint64
	Remaining uint64
}

// Core is the matching engine for one instrument: two SideBooks, the
// running trade statistics, and the event sink.
type Core struct {
	Symbol          string
	Bids            *book.SideBook
	Asks            *book.SideBook
	RejectSelfTrade bool

	stats    Stats
	ids      IDGenerator
	notifier NotifierPort
	resting  map[uint64]*book.Order // global id -> order, any side
}

// NewCore creates an empty instrument core. ids and notifier must be
// non-nil; both are the core's only collaborators with the outside
// world, injected at construction.
func NewCore(symbol string, ids IDGenerator, notifier NotifierPort) *Core {
	return &Core{
		Symbol:   symbol,
		Bids:     book.NewSideBook(book.Bid),
		Asks:     book.NewSideBook(book.Ask),
		ids:      ids,
		notifier: notifier,
		resting:  make(map[uint64]*book.Order),
	}
}

// Stats returns a snapshot of the running trade statistics.
func (c *Core) Stats() Stats { return c.stats }

func (c *Core) sideBook(side book.Side) *book.SideBook {
	if side == book.Bid {
		return c.Bids
	}
	return c.Asks
}

func (c *Core) oppositeSideBook(side book.Side) *book.SideBook {
	if side == book.Bid {
		return c.Asks
	}
	return c.Bids
}

// Submit admits a new market or limit order, runs it through the
// match loop, and either rests, fully fills, or (for a market order)
// drops its remainder. Invalid intents are rejected before any state
// changes.
func (c *Core) Submit(intent NewOrderIntent) (SubmitResult, error) {
	if intent.Qty == 0 {
		return SubmitResult{}, reject(ReasonBadQty, "quantity must be positive")
	}
	if intent.Type == book.Limit && intent.Price == 0 {
		return SubmitResult{}, reject(ReasonBadPrice, "limit price must be positive")
	}
	if c.RejectSelfTrade && c.wouldSelfTrade(intent) {
		return SubmitResult{}, reject(ReasonSelfTrade, "order would match the submitter's own resting order")
	}

	o := &book.Order{
		ID:            c.ids.NextOrderID(),
		ClientOrderID: intent.ClientOrderID,
		ClientID:      intent.ClientID,
		Symbol:        c.Symbol,
		Side:          intent.Side,
		Type:          intent.Type,
		Price:         intent.Price,
		OriginalQty:   intent.Qty,
		RemainingQty:  intent.Qty,
		ArrivalNs:     c.ids.NowNs(),
	}

	c.match(o)
	c.checkNotCrossed()

	result := SubmitResult{OrderID: o.ID, Filled: o.FilledQty, Remaining: o.RemainingQty}

	switch {
	case o.RemainingQty == 0:
		result.Terminal = StateFilled

	case o.Type == book.Limit:
		c.sideBook(o.Side).Rest(o)
		c.resting[o.ID] = o
		c.notifier.Direct(o.ClientID, Event{
			Kind:   EventResting,
			Symbol: c.Symbol,
			Resting: &RestingPayload{
				OrderID:      o.ID,
				RemainingQty: o.RemainingQty,
			},
		})
		result.Terminal = StateResting

	default: // Market order: remainder is dropped, never rests
		c.notifier.Direct(o.ClientID, Event{
			Kind:   EventPartialAndCancelled,
			Symbol: c.Symbol,
			PartialCancelled: &PartialCancelledPayload{
				OrderID:  o.ID,
				Filled:   o.FilledQty,
				Original: o.OriginalQty,
			},
		})
		result.Terminal = StatePartialAndCancelled
	}

	return result, nil
}

// crosses reports whether agg (the aggressor, not yet resting) crosses
// the opposing side's current best order.
func crosses(agg *book.Order, oppBest *book.Order) bool {
	if oppBest == nil {
		return false
	}
	if agg.Type == book.Market {
		return true
	}
	if agg.Side == book.Bid {
		return oppBest.Price <= agg.Price
	}
	return oppBest.Price >= agg.Price
}

// match runs the continuous-matching loop for agg against the
// opposing side until it stops crossing or is fully filled. The
// resting order's price always sets the trade price, so price
// improvement accrues to the aggressor.
func (c *Core) match(agg *book.Order) {
	opp := c.oppositeSideBook(agg.Side)

	for agg.RemainingQty > 0 {
		maker := opp.Best()
		if !crosses(agg, maker) {
			break
		}

		fillQty := min(agg.RemainingQty, maker.RemainingQty)
		tradePrice := maker.Price
		tradeTs := c.ids.NowNs()
		tradeSeq := c.ids.NextTradeSeq()

		level := maker.Level()
		invariant(level != nil, "best order has no owning level")
		level.ApplyFill(maker, fillQty)
		agg.RemainingQty -= fillQty
		agg.FilledQty += fillQty

		makerDone := maker.RemainingQty == 0
		if makerDone {
			removed := opp.CancelByID(maker.ID)
			invariant(removed == maker, "sidebook cancel returned unexpected order during match")
			delete(c.resting, maker.ID)
		}

		c.notifier.Direct(agg.ClientID, Event{
			Kind: EventExec, Symbol: c.Symbol,
			Exec: &ExecPayload{
				OrderID: agg.ID, Side: agg.Side, FillQty: fillQty, Price: tradePrice,
				CumFilled: agg.FilledQty, OriginalQty: agg.OriginalQty, TradeSeq: tradeSeq, TradeTs: tradeTs,
			},
		})
		c.notifier.Direct(maker.ClientID, Event{
			Kind: EventExec, Symbol: c.Symbol,
			Exec: &ExecPayload{
				OrderID: maker.ID, Side: maker.Side, FillQty: fillQty, Price: tradePrice,
				CumFilled: maker.FilledQty, OriginalQty: maker.OriginalQty, TradeSeq: tradeSeq, TradeTs: tradeTs,
			},
		})
		c.notifier.Publish(tapeTopic(c.Symbol), Event{
			Kind: EventExec, Symbol: c.Symbol,
			Exec: &ExecPayload{
				OrderID: maker.ID, Side: maker.Side, FillQty: fillQty, Price: tradePrice,
				CumFilled: maker.FilledQty, OriginalQty: maker.OriginalQty, TradeSeq: tradeSeq, TradeTs: tradeTs,
			},
		})

		if warning := c.stats.recordFill(tradePrice, fillQty, tradeTs); warning != "" {
			c.notifier.Publish(tapeTopic(c.Symbol), Event{Kind: EventWarning, Symbol: c.Symbol, Warning: warning})
		}
		c.publishL1()
	}
}

// checkNotCrossed enforces that once matching has finished, the book
// must never be resting in a crossed state.
func (c *Core) checkNotCrossed() {
	bidBest := c.Bids.Best()
	askBest := c.Asks.Best()
	if bidBest != nil && askBest != nil {
		invariant(bidBest.Price < askBest.Price, "book crossed after apply")
	}
}

// wouldSelfTrade reports whether intent would match against a resting
// order owned by the same client. Only consulted when RejectSelfTrade
// is enabled; self-trade prevention is opt-in, not default behavior.
func (c *Core) wouldSelfTrade(intent NewOrderIntent) bool {
	if intent.ClientID == "" {
		return false
	}
	opp := c.oppositeSideBook(intent.Side)
	for _, o := range c.resting {
		if o.ClientID != intent.ClientID {
			continue
		}
		if o.Side != opp.Polarity {
			continue
		}
		if intent.Type == book.Market {
			return true
		}
		if intent.Side == book.Bid && o.Price <= intent.Price {
			return true
		}
		if intent.Side == book.Ask && o.Price >= intent.Price {
			return true
		}
	}
	return false
}

// Cancel removes a resting order if id is found and owned by
// clientID. NotFound/NotOwner are reported without mutating state.
func (c *Core) Cancel(id uint64, clientID string) error {
	o, ok := c.resting[id]
	if !ok {
		return reject(ReasonNotFound, "")
	}
	if o.ClientID != clientID {
		return reject(ReasonNotOwner, "")
	}
	c.cancelResting(o, ReasonCancelled)
	return nil
}

// ClientGone cancels every order resting under clientID, in
// unspecified order, as session-loss cleanup.
func (c *Core) ClientGone(clientID string) {
	var victims []*book.Order
	for _, o := range c.resting {
		if o.ClientID == clientID {
			victims = append(victims, o)
		}
	}
	for _, o := range victims {
		c.cancelResting(o, ReasonClientGone)
	}
}

func (c *Core) cancelResting(o *book.Order, reason Reason) {
	sb := c.sideBook(o.Side)
	removed := sb.CancelByID(o.ID)
	invariant(removed == o, "sidebook cancel returned an unexpected order")
	delete(c.resting, o.ID)
	c.notifier.Direct(o.ClientID, Event{
		Kind:      EventCancelled,
		Symbol:    c.Symbol,
		Cancelled: &CancelledPayload{OrderID: o.ID, Reason: reason},
	})
}

// Snapshot publishes a one-off L1_SNAPSHOT frame directly to clientID.
func (c *Core) Snapshot(clientID string) {
	c.notifier.Direct(clientID, c.l1Event(EventL1Snapshot))
}

func (c *Core) publishL1() {
	c.notifier.Publish(l1Topic(c.Symbol), c.l1Event(EventL1Update))
}

func (c *Core) l1Event(kind EventKind) Event {
	p := &L1Payload{
		Last: c.stats.LastTradePrice, High: c.stats.High, Low: c.stats.Low,
		Open: c.stats.Open, Close: c.stats.Close,
		VWAPNumerator: c.stats.VWAPNumerator(), VWAPVolume: c.stats.VolumeToday,
	}
	if best := c.Bids.Best(); best != nil {
		p.BidPrice = best.Price
		p.BidSize = c.Bids.AggregateAt(best.Price)
	}
	if best := c.Asks.Best(); best != nil {
		p.AskPrice = best.Price
		p.AskSize = c.Asks.AggregateAt(best.Price)
	}
	return Event{Kind: kind, Symbol: c.Symbol, L1: p}
}

func l1Topic(symbol string) string   { return "L1:" + symbol }
func tapeTopic(symbol string) string { return "TAPE:" + symbol }
