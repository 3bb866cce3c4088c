package router

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/ekidenfi/ekiden-go/connection"
	"github.com/ekidenfi/ekiden-go/model"
)

// GapPolicy selects how a detected sequence gap is handled beyond the
// SequenceGap event, which is always emitted.
type GapPolicy int

const (
	// GapNotify emits the SequenceGap event and nothing else. The
	// application decides whether to refetch a snapshot.
	GapNotify GapPolicy = iota

	// GapResubscribe additionally re-issues a subscribe frame for the
	// gapped channel so the gateway sends a fresh snapshot.
	GapResubscribe
)

// Resubscriber re-issues a subscribe frame for an active channel.
// *connection.Conn satisfies it.
type Resubscriber interface {
	Resubscribe(ch model.Channel) error
}

// Router decodes inbound frames into model.Event values, tracks per-channel
// sequence numbers through the registry, and delivers to the channel's
// listeners. It implements connection.Sink. Dispatch is called from the
// connection's serve loop only, so frames for one channel arrive in order.
type Router struct {
	registry  *connection.Registry
	logger    *slog.Logger
	gapPolicy GapPolicy
	resub     Resubscriber

	received     atomic.Uint64
	routed       atomic.Uint64
	decodeErrors atomic.Uint64
	duplicates   atomic.Uint64
	gaps         atomic.Uint64
	unknown      atomic.Uint64
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithGapPolicy sets the sequence gap policy. Defaults to GapNotify.
func WithGapPolicy(p GapPolicy) Option {
	return func(r *Router) { r.gapPolicy = p }
}

// WithResubscriber sets the target for GapResubscribe. Without one the
// policy degrades to GapNotify.
func WithResubscriber(rs Resubscriber) Option {
	return func(r *Router) { r.resub = rs }
}

// New builds a router delivering into registry.
func New(registry *connection.Registry, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch routes one frame. Malformed frames are counted and logged,
// never fatal: the next frame on the same channel still goes through.
func (r *Router) Dispatch(f connection.Frame) {
	r.received.Add(1)

	ch, err := model.ParseChannel(f.Channel)
	if err != nil {
		r.decodeErrors.Add(1)
		r.logger.Warn("frame with unroutable channel",
			"type", f.Type,
			"channel", f.Channel,
			"error", err)
		return
	}

	switch f.Type {
	case connection.FrameSubscribed, connection.FrameUnsubscribed:
		r.deliver(model.Event{
			Kind:    model.EventAck,
			Channel: ch,
			Ack:     &model.Ack{Op: f.Type},
		})
	case connection.FrameError:
		r.deliver(model.Event{
			Kind:    model.EventError,
			Channel: ch,
			Err:     &model.StreamError{Message: f.Message},
		})
	case connection.FrameEvent:
		r.routeEvent(ch, f)
	default:
		r.unknown.Add(1)
		r.logger.Debug("unknown frame type", "type", f.Type, "channel", f.Channel)
	}
}

// routeEvent folds the frame's sequence number into the registry, surfaces
// a gap before the event itself, and delivers the decoded payload.
func (r *Router) routeEvent(ch model.Channel, f connection.Frame) {
	gap, deliver := r.registry.RecordSeq(ch, f.Seq)
	if !deliver {
		r.duplicates.Add(1)
		return
	}
	if gap != nil {
		r.gaps.Add(1)
		r.logger.Warn("sequence gap detected",
			"channel", ch.String(),
			"from", gap.From,
			"to", gap.To)
		r.deliver(model.Event{
			Kind:    model.EventSequenceGap,
			Channel: ch,
			Seq:     f.Seq,
			Gap:     gap,
		})
		if r.gapPolicy == GapResubscribe && r.resub != nil {
			if err := r.resub.Resubscribe(ch); err != nil {
				r.logger.Warn("gap resubscribe failed",
					"channel", ch.String(),
					"error", err)
			}
		}
	}

	ev, err := decodePayload(ch, f)
	if err != nil {
		r.decodeErrors.Add(1)
		r.logger.Warn("event payload decode failed",
			"channel", ch.String(),
			"seq", f.Seq,
			"error", err)
		return
	}
	r.deliver(ev)
}

func (r *Router) deliver(ev model.Event) {
	if n := r.registry.Deliver(ev); n > 0 {
		r.routed.Add(1)
	}
}

// payloadEnvelope carries the wrapped payload variants; the flat variants
// (orderbook, trade) are decoded directly from the frame data instead.
type payloadEnvelope struct {
	Type     string          `json:"type"`
	Order    *model.Order    `json:"order"`
	Position *model.Position `json:"position"`
	Vault    *model.Vault    `json:"vault"`
	Candle   *model.Candle   `json:"candle"`
}

// decodePayload dispatches on the payload's type tag to the concrete
// event variant.
func decodePayload(ch model.Channel, f connection.Frame) (model.Event, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		return model.Event{}, err
	}

	ev := model.Event{
		Kind:    model.EventKind(env.Type),
		Channel: ch,
		Seq:     f.Seq,
	}
	switch ev.Kind {
	case model.EventOrderbookSnapshot:
		var snap model.OrderbookSnapshot
		if err := json.Unmarshal(f.Data, &snap); err != nil {
			return model.Event{}, err
		}
		ev.Snapshot = &snap
	case model.EventOrderbookDelta:
		var delta model.OrderbookDelta
		if err := json.Unmarshal(f.Data, &delta); err != nil {
			return model.Event{}, err
		}
		ev.Delta = &delta
	case model.EventTrade:
		var trade model.Trade
		if err := json.Unmarshal(f.Data, &trade); err != nil {
			return model.Event{}, err
		}
		ev.Trade = &trade
	case model.EventOrderUpdate:
		if env.Order == nil {
			return model.Event{}, errMissingPayload(env.Type)
		}
		ev.Order = env.Order
	case model.EventPositionUpdate:
		if env.Position == nil {
			return model.Event{}, errMissingPayload(env.Type)
		}
		ev.Position = env.Position
	case model.EventBalanceUpdate:
		if env.Vault == nil {
			return model.Event{}, errMissingPayload(env.Type)
		}
		ev.Vault = env.Vault
	case model.EventCandle:
		if env.Candle == nil {
			return model.Event{}, errMissingPayload(env.Type)
		}
		ev.Candle = env.Candle
	default:
		return model.Event{}, errUnknownPayload(env.Type)
	}
	return ev, nil
}

type errMissingPayload string

func (e errMissingPayload) Error() string {
	return "event " + string(e) + ": missing payload body"
}

type errUnknownPayload string

func (e errUnknownPayload) Error() string {
	return "unknown event payload type " + string(e)
}

// Stats is a point-in-time snapshot of router counters.
type Stats struct {
	Received     uint64
	Routed       uint64
	DecodeErrors uint64
	Duplicates   uint64
	Gaps         uint64
	Unknown      uint64
}

func (r *Router) Stats() Stats {
	return Stats{
		Received:     r.received.Load(),
		Routed:       r.routed.Load(),
		DecodeErrors: r.decodeErrors.Load(),
		Duplicates:   r.duplicates.Load(),
		Gaps:         r.gaps.Load(),
		Unknown:      r.unknown.Load(),
	}
}
