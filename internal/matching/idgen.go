package matching

// IDGenerator is the id/timestamp collaborator kept outside the core:
// MatchingCore consumes it to assign order ids, trade sequence
// numbers, and arrival/trade timestamps, but never constructs one
// itself.
type IDGenerator interface {
	NextOrderID() uint64
	NextTradeSeq() uint64
	NowNs() int64
}
