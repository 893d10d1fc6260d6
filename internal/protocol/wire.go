// Package protocol implements the line-oriented TCP protocol: an
// ASCII, newline-terminated, whitespace-separated command language
// with synchronous OK/ERR replies and asynchronous event frames.
package protocol

import (
	"fmt"
	"strings"

	"github.com/lxvenue/matchd/internal/book"
	"github.com/lxvenue/matchd/internal/matching"
)

func sideToken(s book.Side) string {
	if s == book.Bid {
		return "BUY"
	}
	return "SELL"
}

func parseSide(tok string) (book.Side, bool) {
	switch strings.ToUpper(tok) {
	case "BUY":
		return book.Bid, true
	case "SELL":
		return book.Ask, true
	default:
		return 0, false
	}
}

// encodeEvent renders one matching.Event as its wire frame.
// Every Event produces exactly one line; there are no multi-line
// async frames (only command replies to DEBUG LIST-style queries are
// multi-line, handled separately in commands.go).
func encodeEvent(ev matching.Event) string {
	switch ev.Kind {
	case matching.EventExec:
		p := ev.Exec
		return fmt.Sprintf("EXEC %s %d %s %d@%d %d/%d %d",
			ev.Symbol, p.OrderID, sideToken(p.Side), p.FillQty, p.Price, p.CumFilled, p.OriginalQty, p.TradeTs)

	case matching.EventCancelled:
		p := ev.Cancelled
		return fmt.Sprintf("CANCELLED %d %s", p.OrderID, p.Reason)

	case matching.EventResting:
		p := ev.Resting
		return fmt.Sprintf("RESTING %d %d", p.OrderID, p.RemainingQty)

	case matching.EventL1Update:
		return "L1_UPDATE " + encodeL1(ev.Symbol, ev.L1)

	case matching.EventL1Snapshot:
		return "L1_SNAPSHOT " + encodeL1(ev.Symbol, ev.L1)

	case matching.EventPartialAndCancelled:
		p := ev.PartialCancelled
		return fmt.Sprintf("PARTIAL_AND_CANCELLED %d %d/%d", p.OrderID, p.Filled, p.Original)

	case matching.EventWarning:
		return "WARNING " + ev.Warning

	case matching.EventEvicted:
		return "EVICTED"

	default:
		return "WARNING unrecognized event kind"
	}
}

func encodeL1(symbol string, p *matching.L1Payload) string {
	var vwap uint64
	if p.VWAPVolume > 0 {
		vwap = p.VWAPNumerator / p.VWAPVolume
	}
	return fmt.Sprintf("%s LTP=%d HIGH=%d LOW=%d OPEN=%d CLOSE=%d VWAP=%d BID=%dx%d ASK=%dx%d",
		symbol, p.Last, p.High, p.Low, p.Open, p.Close, vwap, p.BidPrice, p.BidSize, p.AskPrice, p.AskSize)
}

// errFrame renders an ERR reply for reason, either a matching.Reason
// or a protocol-local admission reason such as BAD_COMMAND.
func errFrame(reason string) string {
	return "ERR " + reason
}
