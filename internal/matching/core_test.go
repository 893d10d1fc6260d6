package matching

import (
	"testing"

	"github.com/lxvenue/matchd/internal/book"
)

// recordedEvent captures one call to fakeNotifier, for assertions.
type recordedEvent struct {
	directed bool
	target   string // clientID for Direct, topic for Publish
	event    Event
}

// fakeNotifier is a NotifierPort test double: no delivery semantics,
// just an ordered log of what Core tried to send.
type fakeNotifier struct {
	events []recordedEvent
}

func (f *fakeNotifier) Direct(clientID string, event Event) {
	f.events = append(f.events, recordedEvent{directed: true, target: clientID, event: event})
}

func (f *fakeNotifier) Publish(topic string, event Event) {
	f.events = append(f.events, recordedEvent{directed: false, target: topic, event: event})
}

func (f *fakeNotifier) execs() []*ExecPayload {
	var out []*ExecPayload
	for _, e := range f.events {
		if e.directed && e.event.Kind == EventExec {
			out = append(out, e.event.Exec)
		}
	}
	return out
}

// fakeIDs hands out small, predictable, strictly increasing ids and
// timestamps so test expectations don't depend on wall-clock time.
type fakeIDs struct {
	order uint64
	trade uint64
	ns    int64
}

func (f *fakeIDs) NextOrderID() uint64 { f.order++; return f.order }
func (f *fakeIDs) NextTradeSeq() uint64 { f.trade++; return f.trade }
func (f *fakeIDs) NowNs() int64         { f.ns++; return f.ns }

func newTestCore(symbol string) (*Core, *fakeNotifier) {
	n := &fakeNotifier{}
	return NewCore(symbol, &fakeIDs{}, n), n
}

// S1 — simple cross, full fill.
func TestScenarioS1SimpleCrossFullFill(t *testing.T) {
	c, notifier := newTestCore("X")

	b1, err := c.Submit(NewOrderIntent{ClientID: "buyer", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 10})
	if err != nil {
		t.Fatalf("B1 submit: %v", err)
	}
	if b1.Terminal != StateResting {
		t.Fatalf("B1 should rest with no opposite side yet, got %v", b1.Terminal)
	}

	a1, err := c.Submit(NewOrderIntent{ClientID: "seller", Side: book.Ask, Type: book.Limit, Price: 100, Qty: 10})
	if err != nil {
		t.Fatalf("A1 submit: %v", err)
	}
	if a1.Terminal != StateFilled {
		t.Fatalf("A1 should be FILLED, got %v", a1.Terminal)
	}
	if a1.Filled != 10 {
		t.Fatalf("A1 filled = %d, want 10", a1.Filled)
	}

	if !c.Bids.Empty() || !c.Asks.Empty() {
		t.Fatalf("both sides should be empty after full cross")
	}

	execs := notifier.execs()
	if len(execs) != 2 {
		t.Fatalf("expected 2 EXEC events (one per side), got %d", len(execs))
	}
	for _, ex := range execs {
		if ex.Price != 100 || ex.FillQty != 10 {
			t.Fatalf("exec mismatch: %+v", ex)
		}
	}

	s := c.Stats()
	if s.LastTradePrice != 100 || s.VolumeToday != 10 || s.Open != 100 || s.High != 100 || s.Low != 100 || s.Close != 100 {
		t.Fatalf("stats mismatch: %+v", s)
	}
}

// S2 — partial fill, aggressor rests.
func TestScenarioS2PartialFillAggressorRests(t *testing.T) {
	c, _ := newTestCore("X")

	a1, _ := c.Submit(NewOrderIntent{ClientID: "seller", Side: book.Ask, Type: book.Limit, Price: 105, Qty: 5})
	if a1.Terminal != StateResting {
		t.Fatalf("A1 should rest, got %v", a1.Terminal)
	}

	b1, _ := c.Submit(NewOrderIntent{ClientID: "buyer", Side: book.Bid, Type: book.Limit, Price: 105, Qty: 8})
	if b1.Terminal != StateResting || b1.Remaining != 3 {
		t.Fatalf("B1 should rest with remaining=3, got terminal=%v remaining=%d", b1.Terminal, b1.Remaining)
	}
	if !c.Asks.Empty() {
		t.Fatalf("asks should be empty, A1 fully consumed")
	}
	best := c.Bids.Best()
	if best == nil || best.Price != 105 || best.RemainingQty != 3 {
		t.Fatalf("bids best mismatch: %+v", best)
	}
}

// S3 — price-time priority on the maker side.
func TestScenarioS3PriceTimePriority(t *testing.T) {
	c, notifier := newTestCore("X")

	c.Submit(NewOrderIntent{ClientID: "b1", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 4})
	c.Submit(NewOrderIntent{ClientID: "b2", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 4})
	a1, _ := c.Submit(NewOrderIntent{ClientID: "a1", Side: book.Ask, Type: book.Limit, Price: 99, Qty: 6})

	if a1.Terminal != StateFilled {
		t.Fatalf("A1 should be FILLED, got %v", a1.Terminal)
	}

	best := c.Bids.Best()
	if best == nil || best.ClientID != "b2" || best.RemainingQty != 2 {
		t.Fatalf("expected b2 resting with remaining=2, got %+v", best)
	}

	execs := notifier.execs()
	var b1Fill, b2Fill uint64
	for _, ex := range execs {
		if ex.Side != book.Bid {
			continue
		}
		if ex.OrderID == 1 {
			b1Fill = ex.FillQty
		}
		if ex.OrderID == 2 {
			b2Fill = ex.FillQty
		}
	}
	if b1Fill != 4 {
		t.Fatalf("b1 (higher priority, earlier arrival) should fill 4 first, got %d", b1Fill)
	}
	if b2Fill != 2 {
		t.Fatalf("b2 should fill the 2 remaining, got %d", b2Fill)
	}
}

// S4 — market order takes best, leftover dropped.
func TestScenarioS4MarketOrderLeftoverDropped(t *testing.T) {
	c, _ := newTestCore("X")

	c.Submit(NewOrderIntent{ClientID: "a1", Side: book.Ask, Type: book.Limit, Price: 101, Qty: 3})
	c.Submit(NewOrderIntent{ClientID: "a2", Side: book.Ask, Type: book.Limit, Price: 102, Qty: 3})

	b1, err := c.Submit(NewOrderIntent{ClientID: "b1", Side: book.Bid, Type: book.Market, Qty: 10})
	if err != nil {
		t.Fatalf("market submit: %v", err)
	}
	if b1.Terminal != StatePartialAndCancelled {
		t.Fatalf("expected PARTIAL_AND_CANCELLED, got %v", b1.Terminal)
	}
	if b1.Filled != 6 || b1.Remaining != 4 {
		t.Fatalf("expected filled=6 remaining=4, got filled=%d remaining=%d", b1.Filled, b1.Remaining)
	}
	if !c.Asks.Empty() {
		t.Fatalf("asks should be fully consumed")
	}
}

// S5 — price improvement to aggressor: trade prints at the maker's
// price, not the aggressor's limit.
func TestScenarioS5PriceImprovement(t *testing.T) {
	c, notifier := newTestCore("X")

	c.Submit(NewOrderIntent{ClientID: "a1", Side: book.Ask, Type: book.Limit, Price: 100, Qty: 5})
	b1, _ := c.Submit(NewOrderIntent{ClientID: "b1", Side: book.Bid, Type: book.Limit, Price: 110, Qty: 5})

	if b1.Terminal != StateFilled {
		t.Fatalf("B1 should be FILLED, got %v", b1.Terminal)
	}
	for _, ex := range notifier.execs() {
		if ex.Price != 100 {
			t.Fatalf("trade should print at maker price 100, got %d", ex.Price)
		}
	}
	if c.Stats().LastTradePrice != 100 {
		t.Fatalf("last trade price should be 100, got %d", c.Stats().LastTradePrice)
	}
}

// S6 — cancel then cross: a cancelled order must not participate.
func TestScenarioS6CancelThenCross(t *testing.T) {
	c, _ := newTestCore("X")

	b1, _ := c.Submit(NewOrderIntent{ClientID: "buyer", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 5})
	if err := c.Cancel(b1.OrderID, "buyer"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	a1, err := c.Submit(NewOrderIntent{ClientID: "seller", Side: book.Ask, Type: book.Limit, Price: 100, Qty: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a1.Terminal != StateResting {
		t.Fatalf("A1 should rest untouched, got %v", a1.Terminal)
	}
	if !c.Bids.Empty() {
		t.Fatalf("bids should be empty after cancel")
	}
}

func TestCancelRejectsNonOwner(t *testing.T) {
	c, _ := newTestCore("X")
	b1, _ := c.Submit(NewOrderIntent{ClientID: "buyer", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 5})

	err := c.Cancel(b1.OrderID, "not-the-buyer")
	rej, ok := err.(*RejectedError)
	if !ok || rej.Reason != ReasonNotOwner {
		t.Fatalf("expected NOT_OWNER, got %v", err)
	}
}

func TestCancelRejectsUnknownID(t *testing.T) {
	c, _ := newTestCore("X")
	err := c.Cancel(999, "anyone")
	rej, ok := err.(*RejectedError)
	if !ok || rej.Reason != ReasonNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSubmitRejectsZeroQtyAndZeroPriceLimit(t *testing.T) {
	c, _ := newTestCore("X")

	if _, err := c.Submit(NewOrderIntent{ClientID: "x", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 0}); err == nil {
		t.Fatalf("expected rejection for zero qty")
	}
	if _, err := c.Submit(NewOrderIntent{ClientID: "x", Side: book.Bid, Type: book.Limit, Price: 0, Qty: 1}); err == nil {
		t.Fatalf("expected rejection for zero-price limit")
	}
}

// Invariant 10: round-trip insert-then-cancel-all leaves both sides
// empty.
func TestRoundTripInsertThenCancelAll(t *testing.T) {
	c, _ := newTestCore("X")
	var ids []uint64
	for i := 0; i < 20; i++ {
		side := book.Bid
		price := uint64(100 + i%5)
		if i%2 == 0 {
			side = book.Ask
			price += 10 // asks sit above every bid, so nothing crosses and all 20 rest
		}
		r, err := c.Submit(NewOrderIntent{ClientID: "x", Side: side, Type: book.Limit, Price: price, Qty: 1})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if r.Terminal == StateResting {
			ids = append(ids, r.OrderID)
		}
	}
	for _, id := range ids {
		if err := c.Cancel(id, "x"); err != nil {
			t.Fatalf("cancel %d: %v", id, err)
		}
	}
	if !c.Bids.Empty() || !c.Asks.Empty() {
		t.Fatalf("expected both sides empty after cancelling everything")
	}
	if c.Bids.Size() != 0 || c.Asks.Size() != 0 {
		t.Fatalf("expected zero order counts")
	}
}

func TestSelfTradePreventionRejectsWhenEnabled(t *testing.T) {
	c, _ := newTestCore("X")
	c.RejectSelfTrade = true

	c.Submit(NewOrderIntent{ClientID: "same", Side: book.Ask, Type: book.Limit, Price: 100, Qty: 5})
	_, err := c.Submit(NewOrderIntent{ClientID: "same", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 5})

	rej, ok := err.(*RejectedError)
	if !ok || rej.Reason != ReasonSelfTrade {
		t.Fatalf("expected SELF_TRADE rejection, got %v", err)
	}
}

func TestClientGoneCancelsAllRestingOrdersForClient(t *testing.T) {
	c, _ := newTestCore("X")
	c.Submit(NewOrderIntent{ClientID: "gone", Side: book.Bid, Type: book.Limit, Price: 100, Qty: 5})
	c.Submit(NewOrderIntent{ClientID: "gone", Side: book.Ask, Type: book.Limit, Price: 200, Qty: 5})
	c.Submit(NewOrderIntent{ClientID: "stays", Side: book.Bid, Type: book.Limit, Price: 99, Qty: 5})

	c.ClientGone("gone")

	if c.Bids.Size() != 1 || c.Asks.Size() != 0 {
		t.Fatalf("expected only the surviving client's order left, bids=%d asks=%d", c.Bids.Size(), c.Asks.Size())
	}
	if best := c.Bids.Best(); best == nil || best.ClientID != "stays" {
		t.Fatalf("expected stays' order to remain, got %+v", best)
	}
}
