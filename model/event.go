package model

// EventKind discriminates the payload carried by an Event. Values match the
// gateway's wire tags where the event originates on the wire.
type EventKind string

const (
	EventOrderbookSnapshot EventKind = "orderbook_snapshot"
	EventOrderbookDelta    EventKind = "orderbook_update"
	EventTrade             EventKind = "trade"
	EventOrderUpdate       EventKind = "order_update"
	EventPositionUpdate    EventKind = "position_update"
	EventBalanceUpdate     EventKind = "balance_update"
	EventCandle            EventKind = "candle"

	// Client-originated kinds. Ack confirms a subscribe or unsubscribe,
	// Error relays a gateway error frame, SequenceGap reports a detected
	// discontinuity in a channel's delivery counter.
	EventAck         EventKind = "ack"
	EventError       EventKind = "error"
	EventSequenceGap EventKind = "sequence_gap"
)

// Event is the closed union delivered to channel listeners. Kind selects
// which payload pointer is set; all others are nil. Seq is the per-channel
// delivery counter for gateway events, 0 where not applicable.
type Event struct {
	Kind    EventKind
	Channel Channel
	Seq     uint64

	Snapshot *OrderbookSnapshot
	Delta    *OrderbookDelta
	Trade    *Trade
	Order    *Order
	Position *Position
	Vault    *Vault
	Candle   *Candle
	Ack      *Ack
	Err      *StreamError
	Gap      *SequenceGap
}

// Ack confirms a control frame. Op is "subscribed" or "unsubscribed".
type Ack struct {
	Op string
}

// StreamError is an error frame scoped to a channel.
type StreamError struct {
	Message string
}

// SequenceGap is the inclusive range of sequence numbers that were never
// delivered. The application decides whether to refetch a snapshot; the
// stream keeps delivering from the observed sequence onward.
type SequenceGap struct {
	From uint64
	To   uint64
}
