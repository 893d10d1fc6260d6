package matching

import "github.com/lxvenue/matchd/internal/book"

// DebugOrder is one line of a DEBUG ORDERS dump.
type DebugOrder struct {
	OrderID   uint64
	ClientID  string
	Side      book.Side
	Price     uint64
	Remaining uint64
}

// DebugOrders returns every order currently resting on this
// instrument, in unspecified order. Only reachable once a session has
// elevated with DEBUG AUTH; O(n) in the instrument's resting count.
func (c *Core) DebugOrders() []DebugOrder {
	out := make([]DebugOrder, 0, len(c.resting))
	for _, side := range []*book.SideBook{c.Bids, c.Asks} {
		for _, o := range side.All() {
			out = append(out, DebugOrder{
				OrderID:   o.ID,
				ClientID:  o.ClientID,
				Side:      o.Side,
				Price:     o.Price,
				Remaining: o.RemainingQty,
			})
		}
	}
	return out
}
