package matching

import "fmt"

// Reason is the uppercase wire token carried by ERR replies and by
// CANCELLED events.
type Reason string

const (
	ReasonBadSymbol  Reason = "BAD_SYMBOL"
	ReasonBadSide    Reason = "BAD_SIDE"
	ReasonBadQty     Reason = "BAD_QTY"
	ReasonBadPrice   Reason = "BAD_PRICE"
	ReasonNotOwner   Reason = "NOT_OWNER"
	ReasonNotFound   Reason = "NOT_FOUND"
	ReasonSelfTrade  Reason = "SELF_TRADE"
	ReasonCancelled  Reason = "CANCELLED"  // CANCELLED <id> reason: explicit cancel
	ReasonClientGone Reason = "CLIENTGONE" // CANCELLED <id> reason: session loss cleanup
)

// RejectedError is returned for ClientInputError/AuthError/NotFound
// conditions: the intent is reported to the caller and never mutates
// book state.
type RejectedError struct {
	Reason Reason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func reject(reason Reason, detail string) *RejectedError {
	return &RejectedError{Reason: reason, Detail: detail}
}

// InvariantViolation signals a structural bug (empty level resting in
// the index, byId/level inconsistency, AVL rotation precondition
// failure). It is fatal: internal/instrument recovers it at the top of
// the per-instrument goroutine only to log and exit(2), never to keep
// serving that instrument.
type InvariantViolation struct {
	Msg string
}

func (e InvariantViolation) Error() string { return "invariant violation: " + e.Msg }

func invariant(cond bool, msg string) {
	if !cond {
		panic(InvariantViolation{Msg: msg})
	}
}
