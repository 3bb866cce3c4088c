package connection

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ekidenfi/ekiden-go/model"
)

// Registry tracks desired channel subscriptions and the listeners attached
// to each. It is the authoritative state replayed to the gateway after a
// reconnect: a channel is active exactly while it has at least one
// listener.
type Registry struct {
	mu      sync.Mutex
	entries map[model.Channel]*channelEntry
	order   []model.Channel
	logger  *slog.Logger

	// onLast fires outside the registry lock when a channel loses its
	// final listener. Set by the owning Conn to issue the unsubscribe.
	onLast func(model.Channel)

	droppedListeners atomic.Uint64
}

type channelEntry struct {
	listeners []*Handle
	lastSeq   uint64
	seqKnown  bool
}

// NewRegistry returns an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[model.Channel]*channelEntry),
		logger:  logger,
	}
}

// Subscribe attaches a new listener to ch with an event buffer of bufSize
// (0 uses DefaultListenerBuffer). first reports whether this created the
// channel's entry, in which case the caller owes the gateway a subscribe
// frame.
func (r *Registry) Subscribe(ch model.Channel, bufSize int) (h *Handle, first bool) {
	if bufSize <= 0 {
		bufSize = DefaultListenerBuffer
	}
	h = &Handle{
		id:      uuid.New(),
		channel: ch,
		events:  make(chan model.Event, bufSize),
		reg:     r,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ch]
	if !ok {
		e = &channelEntry{}
		r.entries[ch] = e
		r.order = append(r.order, ch)
	}
	e.listeners = append(e.listeners, h)
	return h, !ok
}

// Release detaches h from its channel and closes its event feed. last
// reports whether the channel entry was dropped with it, in which case the
// caller owes the gateway an unsubscribe frame. Releasing a handle twice
// is a no-op.
func (r *Registry) Release(h *Handle) (last bool) {
	return r.release(h, true)
}

func (r *Registry) release(h *Handle, fireHook bool) (last bool) {
	r.mu.Lock()
	last = r.removeLocked(h)
	r.mu.Unlock()
	h.finish(nil)
	if last && fireHook && r.onLast != nil {
		r.onLast(h.channel)
	}
	return last
}

// removeLocked detaches h and drops the channel entry when no listeners
// remain. The entry's sequence state goes with it.
func (r *Registry) removeLocked(h *Handle) (last bool) {
	e, ok := r.entries[h.channel]
	if !ok {
		return false
	}
	i := slices.Index(e.listeners, h)
	if i < 0 {
		return false
	}
	e.listeners = slices.Delete(e.listeners, i, i+1)
	if len(e.listeners) > 0 {
		return false
	}
	delete(r.entries, h.channel)
	if j := slices.Index(r.order, h.channel); j >= 0 {
		r.order = slices.Delete(r.order, j, j+1)
	}
	return true
}

// Deliver fans ev out to its channel's listeners in registration order. A
// listener whose buffer is full is dropped and its handle closed with
// ErrSlowListener; the others are unaffected. It returns how many
// listeners received ev.
func (r *Registry) Deliver(ev model.Event) int {
	r.mu.Lock()
	e, ok := r.entries[ev.Channel]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	var dropped []*Handle
	delivered := 0
	for _, h := range slices.Clone(e.listeners) {
		select {
		case h.events <- ev:
			delivered++
		default:
			r.removeLocked(h)
			dropped = append(dropped, h)
		}
	}
	_, stillActive := r.entries[ev.Channel]
	r.mu.Unlock()

	for _, h := range dropped {
		h.finish(ErrSlowListener)
		r.droppedListeners.Add(1)
		r.logger.Warn("listener dropped, event buffer full",
			"channel", ev.Channel.String(),
			"listener_id", h.id.String())
	}
	if !stillActive && len(dropped) > 0 && r.onLast != nil {
		r.onLast(ev.Channel)
	}
	return delivered
}

// RecordSeq folds an observed per-channel sequence number into the
// registry. deliver reports whether the event should be forwarded (false
// for duplicates at or below the last seen counter); gap, when non-nil, is
// the inclusive missing range to surface before the event itself. The
// first observation on a channel is never a gap. Seq 0 marks an untracked
// frame and is always delivered.
func (r *Registry) RecordSeq(ch model.Channel, seq uint64) (gap *model.SequenceGap, deliver bool) {
	if seq == 0 {
		return nil, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ch]
	if !ok {
		return nil, true
	}
	if !e.seqKnown {
		e.seqKnown = true
		e.lastSeq = seq
		return nil, true
	}
	if seq <= e.lastSeq {
		return nil, false
	}
	if seq > e.lastSeq+1 {
		gap = &model.SequenceGap{From: e.lastSeq + 1, To: seq - 1}
	}
	e.lastSeq = seq
	return gap, true
}

// ResetSeqs clears every channel's recorded sequence counter, used when a
// new connection restarts the gateway's per-connection numbering.
func (r *Registry) ResetSeqs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.seqKnown = false
		e.lastSeq = 0
	}
}

// ActiveChannels returns the subscribed channels in first-subscribe order,
// the order the replay re-issues them in.
func (r *Registry) ActiveChannels() []model.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Active reports whether ch currently has listeners.
func (r *Registry) Active(ch model.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[ch]
	return ok
}

// RegistryStats is a point-in-time snapshot of registry activity.
type RegistryStats struct {
	Channels         int
	Listeners        int
	DroppedListeners uint64
}

func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RegistryStats{
		Channels:         len(r.entries),
		DroppedListeners: r.droppedListeners.Load(),
	}
	for _, e := range r.entries {
		s.Listeners += len(e.listeners)
	}
	return s
}

// Handle is one listener's attachment to a channel. Events delivers in
// arrival order until the handle is closed or dropped.
type Handle struct {
	id      uuid.UUID
	channel model.Channel
	events  chan model.Event
	reg     *Registry

	mu     sync.Mutex
	closed bool
	err    error
}

// ID identifies the handle in logs.
func (h *Handle) ID() uuid.UUID { return h.id }

// Channel returns the channel the handle listens on.
func (h *Handle) Channel() model.Channel { return h.channel }

// Events is the listener's feed. It is closed when the handle is released
// or dropped; buffered events remain readable after that.
func (h *Handle) Events() <-chan model.Event { return h.events }

// Err reports why delivery stopped: ErrSlowListener when the registry
// dropped the handle, nil while live or after a voluntary Close.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Close releases the handle. The channel's subscription ends when its last
// handle closes.
func (h *Handle) Close() {
	h.reg.Release(h)
}

// finish marks the handle closed and closes its event feed exactly once.
// Callers must have already detached it from the registry so no delivery
// is in flight.
func (h *Handle) finish(err error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.err = err
	h.mu.Unlock()
	close(h.events)
}
