package book

// PriceLevel is a FIFO queue of resting orders at a single price plus
// the aggregate resting quantity. Orders are linked intrusively
// (Order.prev/next) so enqueue and positional removal are both O(1)
// and no order's address ever moves while it is queued.
type PriceLevel struct {
	Price        uint64
	AggregateQty uint64

	head, tail *Order
	count      int
}

func newPriceLevel(price uint64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Enqueue appends order to the tail of the level and returns it; the
// returned pointer is the position handle used by Remove. It remains
// valid across other Enqueue/Remove calls on this or any other level.
func (l *PriceLevel) Enqueue(o *Order) *Order {
	o.level = l
	o.prev = l.tail
	o.next = nil
	if l.tail != nil {
		l.tail.next = o
	} else {
		l.head = o
	}
	l.tail = o
	l.count++
	l.AggregateQty += o.RemainingQty
	return o
}

// Remove unlinks o from the level. o must currently be queued in l.
// The position (o.prev/o.next) is invalidated; o must not be reused
// as a handle after this call.
func (l *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	l.AggregateQty -= o.RemainingQty
	o.prev, o.next, o.level = nil, nil, nil
	l.count--
}

// ApplyFill reduces o's remaining/adds its filled quantity by qty and
// keeps the level's aggregate in lock-step. o must be the front order.
func (l *PriceLevel) ApplyFill(o *Order, qty uint64) {
	o.RemainingQty -= qty
	o.FilledQty += qty
	l.AggregateQty -= qty
}

// Front returns the oldest resting order at this level, or nil if empty.
func (l *PriceLevel) Front() *Order { return l.head }

// Empty reports whether the level currently holds no orders.
func (l *PriceLevel) Empty() bool { return l.count == 0 }

// Size returns the number of orders resting at this level.
func (l *PriceLevel) Size() int { return l.count }
