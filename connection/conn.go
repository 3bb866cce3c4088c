package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ekidenfi/ekiden-go/auth"
	"github.com/ekidenfi/ekiden-go/model"
)

// errConnClosing marks an internal unwind triggered by Close.
var errConnClosing = errors.New("connection closing")

// CredentialSource supplies the bearer token for the stream authorize
// exchange. *auth.Manager satisfies it.
type CredentialSource interface {
	EnsureValid(ctx context.Context) (auth.Credential, error)
}

// Conn maintains one logical stream to the gateway across reconnects. It
// owns the socket lifecycle, the authorize exchange, heartbeats, and the
// replay of registry subscriptions, and hands inbound frames to its Sink.
type Conn struct {
	cfg      Config
	id       uuid.UUID
	logger   *slog.Logger
	dialer   Dialer
	creds    CredentialSource
	sink     Sink
	registry *Registry
	backoff  backoff
	outbox   *queue[request]
	stateCh  chan StateChange

	mu       sync.Mutex
	state    State
	socket   Socket
	started  bool
	stopping bool
	fatalErr error
	done     chan struct{}
	ready    chan struct{}
	runDone  chan struct{}

	reconnects     atomic.Uint64
	decodeFailures atomic.Uint64
	stagedDrops    atomic.Uint64
	stateDropped   atomic.Uint64
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialer replaces the WebSocket dialer, mainly for tests.
func WithDialer(d Dialer) ConnOption {
	return func(c *Conn) { c.dialer = d }
}

// WithCredentials enables the authorize exchange and user channels. A
// connection without credentials skips the exchange and carries public
// data only.
func WithCredentials(src CredentialSource) ConnOption {
	return func(c *Conn) { c.creds = src }
}

// WithSink sets the consumer of inbound frames.
func WithSink(s Sink) ConnOption {
	return func(c *Conn) { c.sink = s }
}

// WithRegistry substitutes a caller-owned registry. Defaults to a fresh
// one, reachable via Registry.
func WithRegistry(r *Registry) ConnOption {
	return func(c *Conn) {
		if r != nil {
			c.registry = r
		}
	}
}

// NewConn builds a connection around cfg, filling zero fields with
// defaults. It does not dial until Connect.
func NewConn(cfg Config, opts ...ConnOption) *Conn {
	cfg = withDefaults(cfg)
	c := &Conn{
		cfg:     cfg,
		id:      uuid.New(),
		logger:  slog.Default(),
		stateCh: make(chan StateChange, 32),
		outbox:  newQueue[request](cfg.OutboxLimit),
		backoff: backoff{
			base:     cfg.ReconnectBaseWait,
			max:      cfg.ReconnectMaxWait,
			fraction: cfg.JitterFraction,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("conn_id", c.id.String())
	if c.dialer == nil {
		c.dialer = &wsDialer{
			handshakeTimeout: cfg.HandshakeTimeout,
			writeTimeout:     cfg.WriteTimeout,
		}
	}
	if c.registry == nil {
		c.registry = NewRegistry(c.logger)
	}
	c.registry.onLast = c.channelEmpty
	return c
}

// ID identifies the connection in logs.
func (c *Conn) ID() uuid.UUID { return c.id }

// Registry returns the subscription registry the connection replays.
func (c *Conn) Registry() *Registry { return c.registry }

// State returns the current lifecycle phase.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateChanges is a best-effort feed of machine transitions. Slow readers
// lose changes rather than stalling the machine.
func (c *Conn) StateChanges() <-chan StateChange {
	return c.stateCh
}

// Stats is a point-in-time snapshot of connection counters.
type Stats struct {
	State               State
	Reconnects          uint64
	DecodeFailures      uint64
	StagedDrops         uint64
	DroppedStateChanges uint64
}

func (c *Conn) Stats() Stats {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	return Stats{
		State:               state,
		Reconnects:          c.reconnects.Load(),
		DecodeFailures:      c.decodeFailures.Load(),
		StagedDrops:         c.stagedDrops.Load(),
		DroppedStateChanges: c.stateDropped.Load(),
	}
}

// Connect starts the connection machine if it is not running and blocks
// until the stream first reaches Open, the machine fails permanently, or
// ctx ends. Concurrent calls collapse onto the same attempt. Connect after
// Close starts a fresh machine; registry subscriptions carry over and are
// replayed on the new stream.
func (c *Conn) Connect(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.stopping {
			// A Close is still winding the previous machine down.
			runDone := c.runDone
			c.mu.Unlock()
			select {
			case <-runDone:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if c.state == StateOpen {
			c.mu.Unlock()
			return nil
		}
		if !c.started {
			if c.cfg.URL == "" {
				c.mu.Unlock()
				return ErrMissingURL
			}
			c.started = true
			c.fatalErr = nil
			c.done = make(chan struct{})
			c.ready = make(chan struct{})
			c.runDone = make(chan struct{})
			go c.run(c.ready, c.runDone)
		}
		ready, runDone := c.ready, c.runDone
		c.mu.Unlock()

		select {
		case <-ready:
			return nil
		case <-runDone:
			c.mu.Lock()
			err := c.fatalErr
			c.mu.Unlock()
			if err == nil {
				// Stopped by a concurrent Close before reaching Open.
				err = ErrAlreadyClosed
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the connection machine and waits for it to release the
// socket. The registry and its subscriptions are kept; a later Connect
// starts a fresh stream and replays them. Close without a running machine
// returns ErrNotConnected.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.started || c.stopping {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.stopping = true
	done := c.done
	runDone := c.runDone
	c.mu.Unlock()

	close(done)
	select {
	case <-runDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe attaches a listener to ch with an event buffer of bufSize (0
// uses DefaultListenerBuffer) and issues a subscribe frame when ch was not
// already active. The frame is queued while the stream is not Open; the
// subscription is desired state and survives Close until released.
func (c *Conn) Subscribe(ch model.Channel, bufSize int) (*Handle, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	if ch.RequiresAuth() && c.creds == nil {
		return nil, ErrAuthRequired
	}
	h, first := c.registry.Subscribe(ch, bufSize)
	if !first {
		return h, nil
	}
	if err := c.send(request{Type: FrameSubscribe, Channel: ch.String()}); err != nil {
		c.registry.release(h, false)
		return nil, err
	}
	return h, nil
}

// Resubscribe re-issues a subscribe frame for an active channel, typically
// after a sequence gap, so the gateway sends a fresh snapshot. Inactive
// channels are ignored.
func (c *Conn) Resubscribe(ch model.Channel) error {
	if !c.registry.Active(ch) {
		return nil
	}
	return c.send(request{Type: FrameSubscribe, Channel: ch.String()})
}

// channelEmpty runs when a channel loses its last listener.
func (c *Conn) channelEmpty(ch model.Channel) {
	if err := c.send(request{Type: FrameUnsubscribe, Channel: ch.String()}); err != nil {
		c.logger.Warn("unsubscribe failed", "channel", ch.String(), "error", err)
	}
}

// send writes a control frame when the stream is Open, otherwise queues it
// for the next entry to Open.
func (c *Conn) send(req request) error {
	c.mu.Lock()
	if c.state != StateOpen || c.socket == nil {
		ok := c.outbox.Push(req)
		c.mu.Unlock()
		if !ok {
			return ErrQueueFull
		}
		return nil
	}
	socket := c.socket
	c.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := socket.WriteFrame(data); err != nil {
		// The socket is going down; keep the frame for the next
		// session.
		c.outbox.Push(req)
		return fmt.Errorf("write %s frame: %w", req.Type, err)
	}
	return nil
}

// run is the connection machine: dial, authorize, serve, back off, retry.
// It exits on Close or when authorization fails permanently.
func (c *Conn) run(ready chan struct{}, runDone chan struct{}) {
	defer close(runDone)
	done := c.doneChan()
	attempt := 0
	rejects := 0
	for {
		if c.closing() {
			c.finish(nil)
			return
		}
		c.toState(StateConnecting, StateChange{})
		socket, err := c.dial()
		if err == nil {
			var held bool
			var fatal error
			held, err, fatal = c.session(socket, ready, &rejects)
			if fatal != nil {
				c.finish(fatal)
				return
			}
			if err == nil {
				c.finish(nil)
				return
			}
			if held {
				attempt = 0
			}
		} else {
			c.logger.Warn("stream dial failed", "error", err)
		}
		if c.closing() {
			c.finish(nil)
			return
		}
		attempt++
		wait := c.backoff.Delay(attempt)
		c.reconnects.Add(1)
		c.toState(StateReconnecting, StateChange{Attempt: attempt, Wait: wait})
		c.logger.Info("stream reconnecting",
			"attempt", attempt,
			"wait", wait.String(),
			"reason", err)
		select {
		case <-time.After(wait):
		case <-done:
			c.finish(nil)
			return
		}
	}
}

// doneChan returns the shutdown signal for the machine run that is
// currently started, nil when none is.
func (c *Conn) doneChan() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Conn) dial() (Socket, error) {
	ctx, cancel := c.opCtx(c.cfg.HandshakeTimeout)
	defer cancel()
	return c.dialer.DialStream(ctx, c.cfg.URL, nil)
}

// opCtx bounds an operation by d and by connection shutdown.
func (c *Conn) opCtx(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	stop := make(chan struct{})
	done := c.doneChan()
	go func() {
		select {
		case <-done:
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}

// session runs one socket's lifetime: the authorize exchange, the entry to
// Open, and the serve loop. held reports whether Open lasted a full ping
// interval, which resets the backoff attempt counter. reason is why the
// socket ended, nil for a clean shutdown. fatal, when non-nil, terminates
// the machine.
func (c *Conn) session(socket Socket, ready chan struct{}, rejects *int) (held bool, reason, fatal error) {
	sessionDone := make(chan struct{})
	defer socket.Close()
	defer close(sessionDone)

	frames := make(chan []byte, c.cfg.ReadBuffer)
	readErr := make(chan error, 1)
	go readPump(socket, frames, readErr, sessionDone)

	staged := newQueue[Frame](c.cfg.StageLimit)

	c.toState(StateAuthenticating, StateChange{})
	if err := c.authenticate(socket, frames, readErr, staged); err != nil {
		if errors.Is(err, errConnClosing) {
			return false, nil, nil
		}
		var authErr *auth.AuthError
		if errors.As(err, &authErr) && rejected(authErr.Kind) {
			*rejects++
			c.logger.Warn("stream authorization rejected",
				"consecutive", *rejects,
				"max", c.cfg.MaxAuthRejects)
			if *rejects >= c.cfg.MaxAuthRejects {
				return false, nil, err
			}
		}
		return false, err, nil
	}
	*rejects = 0

	c.enterOpen(socket, ready)
	openedAt := time.Now()
	for _, f := range staged.Drain() {
		c.dispatch(f)
	}
	reason = c.serve(socket, frames, readErr)
	held = time.Since(openedAt) >= c.cfg.PingInterval
	return held, reason, nil
}

// rejected reports whether an auth failure counts toward the consecutive
// rejection limit. Transport-level failures retry indefinitely instead.
func rejected(kind auth.AuthErrorKind) bool {
	return kind == auth.AuthSignatureRejected || kind == auth.AuthNotAuthenticated
}

// authenticate runs the authorize exchange when credentials are
// configured. Inbound frames that are not part of the exchange are staged
// for delivery after the subscription replay.
func (c *Conn) authenticate(socket Socket, frames <-chan []byte, readErr <-chan error, staged *queue[Frame]) error {
	if c.creds == nil {
		return nil
	}
	ctx, cancel := c.opCtx(c.cfg.AuthTimeout)
	cred, err := c.creds.EnsureValid(ctx)
	cancel()
	if err != nil {
		if c.closing() {
			return errConnClosing
		}
		return err
	}
	data, err := json.Marshal(request{Type: FrameAuthorize, Token: cred.Token})
	if err != nil {
		return err
	}
	if err := socket.WriteFrame(data); err != nil {
		return fmt.Errorf("write authorize frame: %w", err)
	}
	timer := time.NewTimer(c.cfg.AuthTimeout)
	defer timer.Stop()
	done := c.doneChan()
	for {
		select {
		case raw := <-frames:
			var f Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				c.decodeFailures.Add(1)
				c.logger.Warn("frame decode failed", "error", err)
				continue
			}
			switch f.Type {
			case FrameAuthorized:
				c.logger.Debug("stream authorized")
				return nil
			case FramePong:
			case FrameError:
				if f.Channel != "" {
					c.stage(staged, f)
					continue
				}
				return &auth.AuthError{
					Kind: auth.AuthSignatureRejected,
					Err:  errors.New(f.Message),
				}
			default:
				c.stage(staged, f)
			}
		case err := <-readErr:
			return err
		case <-timer.C:
			return fmt.Errorf("authorize exchange: %w", ErrTimeout)
		case <-done:
			return errConnClosing
		}
	}
}

func (c *Conn) stage(staged *queue[Frame], f Frame) {
	if !staged.Push(f) {
		c.stagedDrops.Add(1)
		c.logger.Warn("staged frame dropped, stage limit reached",
			"type", f.Type,
			"channel", f.Channel)
	}
}

// enterOpen publishes the Open state, replays the registry's channels, and
// flushes control frames queued while the connection was down. The replay
// snapshot and the flush decision are taken under the state lock so a
// concurrent subscribe is never lost; one racing the entry to Open may be
// sent both in the replay and by the subscriber, which the gateway treats
// as a re-subscribe.
func (c *Conn) enterOpen(socket Socket, ready chan struct{}) {
	if !c.cfg.PreserveSeqOnReconnect {
		c.registry.ResetSeqs()
	}
	var out []request
	c.mu.Lock()
	from := c.state
	c.state = StateOpen
	c.socket = socket
	if c.cfg.DisableResubscribe {
		// No replay: flush one frame per channel touched while the
		// stream was down, reflecting that channel's current state.
		seen := make(map[string]bool)
		var touched []string
		for _, req := range c.outbox.Drain() {
			if req.Type != FrameSubscribe && req.Type != FrameUnsubscribe {
				continue
			}
			if !seen[req.Channel] {
				seen[req.Channel] = true
				touched = append(touched, req.Channel)
			}
		}
		for _, name := range touched {
			ch, err := model.ParseChannel(name)
			if err != nil {
				continue
			}
			if c.registry.Active(ch) {
				out = append(out, request{Type: FrameSubscribe, Channel: name})
			} else {
				out = append(out, request{Type: FrameUnsubscribe, Channel: name})
			}
		}
	} else {
		// The replay states the full desired subscription set for
		// this fresh session, subsuming everything queued.
		for _, ch := range c.registry.ActiveChannels() {
			out = append(out, request{Type: FrameSubscribe, Channel: ch.String()})
		}
		c.outbox.Reset()
	}
	c.mu.Unlock()

	select {
	case <-ready:
	default:
		close(ready)
	}
	c.emit(StateChange{From: from, To: StateOpen})
	c.logger.Info("stream open", "subscriptions", len(out))
	for _, req := range out {
		data, err := json.Marshal(req)
		if err != nil {
			continue
		}
		if err := socket.WriteFrame(data); err != nil {
			c.logger.Warn("subscription replay write failed", "error", err)
			return
		}
	}
}

// serve dispatches inbound frames and runs the heartbeat until the socket
// fails, goes stale, or the connection closes. A nil return means a clean
// shutdown.
func (c *Conn) serve(socket Socket, frames <-chan []byte, readErr <-chan error) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	ping, err := json.Marshal(request{Type: FramePing})
	if err != nil {
		return err
	}
	lastActivity := time.Now()
	done := c.doneChan()
	for {
		select {
		case raw := <-frames:
			lastActivity = time.Now()
			var f Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				c.decodeFailures.Add(1)
				c.logger.Warn("frame decode failed", "error", err)
				continue
			}
			switch f.Type {
			case FramePong, FrameAuthorized:
				// Liveness only.
			case FrameError:
				if f.Channel == "" {
					c.logger.Warn("gateway error frame", "message", f.Message)
					continue
				}
				c.dispatch(f)
			default:
				c.dispatch(f)
			}
		case err := <-readErr:
			return err
		case <-ticker.C:
			if time.Since(lastActivity) > c.cfg.PingTimeout {
				return ErrStaleConnection
			}
			if err := socket.WriteFrame(ping); err != nil {
				c.logger.Warn("ping write failed", "error", err)
			}
		case <-done:
			return nil
		}
	}
}

func (c *Conn) dispatch(f Frame) {
	if c.sink == nil {
		return
	}
	c.sink.Dispatch(f)
}

// finish parks the machine in Disconnected. err is the permanent failure,
// nil on a clean close.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	from := c.state
	c.state = StateDisconnected
	c.socket = nil
	c.started = false
	c.stopping = false
	c.fatalErr = err
	c.mu.Unlock()
	c.emit(StateChange{From: from, To: StateDisconnected, Err: err})
	if err != nil {
		c.logger.Error("stream permanently failed", "error", err)
	} else {
		c.logger.Info("stream disconnected")
	}
}

// toState moves the machine to the given state and publishes the change.
func (c *Conn) toState(to State, change StateChange) {
	c.mu.Lock()
	change.From = c.state
	c.state = to
	if to != StateOpen {
		c.socket = nil
	}
	c.mu.Unlock()
	change.To = to
	c.emit(change)
}

func (c *Conn) emit(change StateChange) {
	select {
	case c.stateCh <- change:
	default:
		c.stateDropped.Add(1)
	}
	c.logger.Debug("stream state change",
		"from", change.From.String(),
		"to", change.To.String())
}

func (c *Conn) closing() bool {
	done := c.doneChan()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// readPump moves frames off the socket until it fails or the session ends.
// The frames channel applies backpressure rather than dropping, preserving
// delivery order for sequence tracking.
func readPump(socket Socket, frames chan<- []byte, readErr chan<- error, sessionDone <-chan struct{}) {
	for {
		data, err := socket.ReadFrame()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- data:
		case <-sessionDone:
			return
		}
	}
}
