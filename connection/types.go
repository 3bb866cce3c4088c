package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the connection layer.
var (
	// ErrNotConnected is returned by Close when no connection machine is
	// running.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyClosed is returned by Connect when a concurrent Close
	// stopped the machine before the stream reached Open.
	ErrAlreadyClosed = errors.New("connection already closed")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrStaleConnection indicates no frames arrived within PingTimeout.
	ErrStaleConnection = errors.New("connection stale: no frames received within ping timeout")

	// ErrSlowListener is reported by a Handle the registry dropped
	// because its event buffer was full when a delivery arrived.
	ErrSlowListener = errors.New("listener dropped: event buffer full")

	// ErrQueueFull indicates the offline control frame queue is at its
	// limit and cannot hold another frame.
	ErrQueueFull = errors.New("control frame queue full")

	// ErrMissingURL indicates Connect was called without a stream URL.
	ErrMissingURL = errors.New("stream url not configured")

	// ErrAuthRequired indicates a channel that needs an authenticated
	// session was subscribed on a connection without credentials.
	ErrAuthRequired = errors.New("channel requires an authenticated session")
)

// Frame type tags used on the wire.
const (
	FramePing         = "ping"
	FramePong         = "pong"
	FrameAuthorize    = "authorize"
	FrameAuthorized   = "authorized"
	FrameSubscribe    = "subscribe"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribe  = "unsubscribe"
	FrameUnsubscribed = "unsubscribed"
	FrameEvent        = "event"
	FrameError        = "error"
)

// request is a client-to-gateway control frame, tagged by Type.
type request struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Frame is a decoded gateway-to-client frame envelope. Data carries the
// raw event payload for FrameEvent frames and is decoded downstream; Seq
// is the per-channel delivery counter used for gap detection.
type Frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Sink consumes channel-scoped frames read from the gateway while the
// connection is Open, plus any frames staged during the handshake.
type Sink interface {
	Dispatch(frame Frame)
}

// State is a connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange describes one transition of the connection machine. Attempt
// and Wait describe the upcoming retry when To is StateReconnecting. Err
// carries the terminal error when To is StateDisconnected after a
// permanent failure, nil on a clean close.
type StateChange struct {
	From    State
	To      State
	Attempt int
	Wait    time.Duration
	Err     error
}

// Default configuration values, applied where Config fields are zero.
const (
	DefaultPingInterval      = 15 * time.Second
	DefaultPingTimeout       = 45 * time.Second
	DefaultAuthTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultJitterFraction    = 0.5
	DefaultMaxAuthRejects    = 3
	DefaultReadBuffer        = 1024
	DefaultOutboxLimit       = 256
	DefaultStageLimit        = 1024
	DefaultListenerBuffer    = 256
)

// Config controls a Conn. Zero fields take the Default* values above.
type Config struct {
	// URL is the stream endpoint (ws:// or wss://).
	URL string

	// PingInterval is how often a ping frame is written while Open.
	// PingTimeout is the inbound silence after which the connection is
	// declared stale and torn down for a reconnect.
	PingInterval time.Duration
	PingTimeout  time.Duration

	// AuthTimeout bounds the authorize exchange after the socket opens.
	AuthTimeout time.Duration

	// WriteTimeout bounds a single frame write. HandshakeTimeout bounds
	// the socket dial.
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration

	// ReconnectBaseWait and ReconnectMaxWait bound the exponential
	// backoff between reconnect attempts. JitterFraction spreads each
	// wait by up to the given fraction in either direction; negative
	// disables jitter.
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	JitterFraction    float64

	// MaxAuthRejects is how many consecutive authorize rejections are
	// retried before the connection fails permanently.
	MaxAuthRejects int

	// ReadBuffer sizes the inbound frame queue between the socket
	// reader and the dispatch loop. OutboxLimit bounds control frames
	// queued while not Open. StageLimit bounds inbound frames held back
	// until the subscription replay finishes.
	ReadBuffer  int
	OutboxLimit int
	StageLimit  int

	// DisableResubscribe skips the subscription replay on entry to
	// Open. Queued control frames are then flushed as issued, which
	// assumes the gateway resumes the previous session's subscriptions.
	DisableResubscribe bool

	// PreserveSeqOnReconnect keeps per-channel sequence counters across
	// reconnects; deliveries at or below the last seen counter are then
	// dropped as duplicates. The default clears counters on every entry
	// to Open, matching per-connection gateway numbering.
	PreserveSeqOnReconnect bool
}

// DefaultConfig returns a Config populated with the default values. URL
// must still be set by the caller.
func DefaultConfig() Config {
	return withDefaults(Config{})
}

func withDefaults(cfg Config) Config {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.ReconnectBaseWait == 0 {
		cfg.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if cfg.ReconnectMaxWait == 0 {
		cfg.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if cfg.JitterFraction == 0 {
		cfg.JitterFraction = DefaultJitterFraction
	}
	if cfg.MaxAuthRejects == 0 {
		cfg.MaxAuthRejects = DefaultMaxAuthRejects
	}
	if cfg.ReadBuffer == 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}
	if cfg.OutboxLimit == 0 {
		cfg.OutboxLimit = DefaultOutboxLimit
	}
	if cfg.StageLimit == 0 {
		cfg.StageLimit = DefaultStageLimit
	}
	return cfg
}
