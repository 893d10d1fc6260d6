package book

// SideBook is one side (Bid or Ask) of one instrument's book: a
// PriceIndex ordered by price, a by-id index for O(1) cancellation,
// and the polarity that says which price extremum is "best".
type SideBook struct {
	Polarity   Side
	index      PriceIndex
	byID       map[uint64]*Order
	orderCount int
}

// NewSideBook creates an empty side keyed by the given polarity (Bid
// ⇒ best is the highest price, Ask ⇒ best is the lowest).
func NewSideBook(polarity Side) *SideBook {
	return &SideBook{
		Polarity: polarity,
		byID:     make(map[uint64]*Order),
	}
}

// Rest inserts order at the tail of its price level, creating the
// level on demand. Precondition: order.ID must not already be resting
// on this side (caller contract; violating it is a programming error
// and panics rather than silently corrupting the index).
func (s *SideBook) Rest(o *Order) {
	if _, exists := s.byID[o.ID]; exists {
		panic("book: duplicate rest for order id already resting")
	}
	level := s.index.GetOrInsert(o.Price)
	level.Enqueue(o)
	s.byID[o.ID] = o
	s.orderCount++
}

// CancelByID removes the order with the given id, erasing its level
// from the index if it becomes empty. Returns the removed order, or
// nil if id was not resting on this side.
func (s *SideBook) CancelByID(id uint64) *Order {
	o, exists := s.byID[id]
	if !exists {
		return nil
	}
	return s.remove(o)
}

// remove unlinks o from its level and, if the level emptied, erases
// it from the price index. Shared by CancelByID and the match loop's
// full-fill removal.
func (s *SideBook) remove(o *Order) *Order {
	level := o.level
	level.Remove(o)
	delete(s.byID, o.ID)
	s.orderCount--
	if level.Empty() {
		s.index.Erase(level.Price)
	}
	return o
}

// Best returns the head order of the best price level (by polarity),
// or nil if the side is empty.
func (s *SideBook) Best() *Order {
	level := s.bestLevel()
	if level == nil {
		return nil
	}
	return level.Front()
}

func (s *SideBook) bestLevel() *PriceLevel {
	if s.Polarity == Bid {
		return s.index.Max()
	}
	return s.index.Min()
}

// TopN returns the head order of the best n price levels in priority
// order (descending price for Bid, ascending for Ask); at most one
// order per level.
func (s *SideBook) TopN(n int) []*Order {
	if n <= 0 {
		return nil
	}
	out := make([]*Order, 0, n)
	visit := func(l *PriceLevel) bool {
		if o := l.Front(); o != nil {
			out = append(out, o)
		}
		return len(out) < n
	}
	if s.Polarity == Bid {
		s.inorderDescending(visit, n)
	} else {
		s.index.Inorder(visit, n)
	}
	return out
}

// inorderDescending visits levels in descending price order (used for
// the Bid side, whose best is the maximum price).
func (s *SideBook) inorderDescending(visit func(*PriceLevel) bool, limit int) {
	levels := make([]*PriceLevel, 0, limit)
	s.index.Inorder(func(l *PriceLevel) bool {
		levels = append(levels, l)
		return true
	}, 0)
	for i := len(levels) - 1; i >= 0; i-- {
		if !visit(levels[i]) {
			return
		}
	}
}

// AggregateAt returns the total resting size at price, or 0 if no
// level exists there.
func (s *SideBook) AggregateAt(price uint64) uint64 {
	l := s.index.Find(price)
	if l == nil {
		return 0
	}
	return l.AggregateQty
}

// All returns every resting order on this side, in unspecified order.
// Intended for debug/inspection snapshots, not the hot path.
func (s *SideBook) All() []*Order {
	out := make([]*Order, 0, len(s.byID))
	for _, o := range s.byID {
		out = append(out, o)
	}
	return out
}

// Size returns the total number of resting orders on this side.
func (s *SideBook) Size() int { return s.orderCount }

// Empty reports whether the side currently holds no resting orders.
func (s *SideBook) Empty() bool { return s.orderCount == 0 }
