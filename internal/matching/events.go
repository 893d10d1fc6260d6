package matching

import "github.com/lxvenue/matchd/internal/book"

// EventKind tags which field of Event is populated. Kept as a small
// closed union (rather than one interface per kind) because the
// protocol encoder needs to switch on it synchronously on the hot
// path and every kind maps to exactly one wire frame shape.
type EventKind uint8

const (
	EventExec EventKind = iota
	EventCancelled
	EventResting
	EventL1Update
	EventL1Snapshot
	EventPartialAndCancelled
	EventWarning
	EventEvicted
)

func (k EventKind) String() string {
	switch k {
	case EventExec:
		return "EXEC"
	case EventCancelled:
		return "CANCELLED"
	case EventResting:
		return "RESTING"
	case EventL1Update:
		return "L1_UPDATE"
	case EventL1Snapshot:
		return "L1_SNAPSHOT"
	case EventPartialAndCancelled:
		return "PARTIAL_AND_CANCELLED"
	case EventWarning:
		return "WARNING"
	default:
		return "EVICTED"
	}
}

// Event is the single envelope MatchingCore hands to a NotifierPort,
// either directed at one client or published to a topic group.
type Event struct {
	Kind   EventKind
	Symbol string

	Exec             *ExecPayload
	Cancelled        *CancelledPayload
	Resting          *RestingPayload
	L1               *L1Payload
	PartialCancelled *PartialCancelledPayload
	Warning          string
}

// ExecPayload backs the EXEC wire frame, one per counterparty per fill.
// TradeSeq is the fill's unique trade sequence number: both
// counterparties' EXEC events and the tape publish for one fill share
// the same value.
type ExecPayload struct {
	OrderID     uint64
	Side        book.Side
	FillQty     uint64
	Price       uint64
	CumFilled   uint64
	OriginalQty uint64
	TradeSeq    uint64
	TradeTs     int64
}

// CancelledPayload backs the CANCELLED wire frame.
type CancelledPayload struct {
	OrderID uint64
	Reason  Reason
}

// RestingPayload backs the RESTING wire frame.
type RestingPayload struct {
	OrderID      uint64
	RemainingQty uint64
}

// L1Payload backs the L1_UPDATE / L1_SNAPSHOT wire frames.
type L1Payload struct {
	Last, High, Low, Open, Close uint64
	VWAPNumerator                uint64 // ticks*qty; divide by VWAPVolume for the ratio
	VWAPVolume                   uint64
	BidPrice, AskPrice           uint64 // 0 means "no resting level"
	BidSize, AskSize             uint64
}

// PartialCancelledPayload backs PARTIAL_AND_CANCELLED, sent to a
// market-order submitter whose remainder was dropped.
type PartialCancelledPayload struct {
	OrderID  uint64
	Filled   uint64
	Original uint64
}

// NotifierPort is the only way MatchingCore talks to the outside
// world. The core publishes and never inspects delivery: a directed
// send to a disconnected client, or a publish to a topic with no
// subscribers, is simply absorbed by the implementation.
type NotifierPort interface {
	// Direct delivers event to the single session owning clientID.
	Direct(clientID string, event Event)
	// Publish fans event out to every subscriber of topic.
	Publish(topic string, event Event)
}
