package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tessro/warden/internal/event"
	"github.com/tessro/warden/internal/version"
)

// State describes the session lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateError means the reconnect budget is exhausted. The caller must
	// call Connect again to resume.
	StateError State = "error"
)

// Default client tuning.
const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffCap     = 30 * time.Second
	DefaultMaxAttempts    = 10
)

// Config tunes a session client. Zero values take defaults.
type Config struct {
	DialTimeout time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int

	// Identity sent in the handshake.
	ClientID string
	Mode     string
	Role     string
	Scopes   []string

	// Dial overrides the transport for tests.
	Dial func(addr string) (net.Conn, error)
}

// requestOutcome is delivered to a waiting Request caller.
type requestOutcome struct {
	payload json.RawMessage
	err     error
}

// pendingRequest tracks one in-flight request. The method is kept so a
// failure response can be attributed in the error.
type pendingRequest struct {
	method string
	ch     chan requestOutcome
}

// Event is a server-pushed notification.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Client maintains one logical session with a worker's control endpoint.
// All requests and events are multiplexed over a single connection, and the
// client reconnects automatically with exponential backoff when the
// connection drops while a session is still desired.
type Client struct {
	cfg Config

	stateEvents event.Emitter[State]
	events      event.Emitter[Event]

	reqID atomic.Uint64

	mu sync.Mutex
	// +checklocks:mu
	state State
	// +checklocks:mu
	conn net.Conn
	// +checklocks:mu
	encoder *json.Encoder
	// +checklocks:mu
	addr string
	// +checklocks:mu
	token string
	// +checklocks:mu
	want bool
	// +checklocks:mu
	attempts int
	// +checklocks:mu
	lastBackoff time.Duration
	// +checklocks:mu
	reconnect *time.Timer
	// gen invalidates goroutines and timers from prior connections.
	// +checklocks:mu
	gen int
	// +checklocks:mu
	pending map[string]pendingRequest
	// +checklocks:mu
	handshakeID string

	// ioMu serializes frame writes so concurrent requests cannot
	// interleave on the encoder.
	ioMu sync.Mutex
}

// New creates a session client.
func New(cfg Config) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "warden"
	}
	if cfg.Dial == nil {
		timeout := cfg.DialTimeout
		cfg.Dial = func(addr string) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		}
	}
	return &Client{
		cfg:     cfg,
		state:   StateDisconnected,
		pending: make(map[string]pendingRequest),
	}
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a handler for state transitions. It returns a
// function that removes the handler.
func (c *Client) OnStateChange(fn func(State)) func() {
	return c.stateEvents.On(fn)
}

// On registers a handler for the named event. The Wildcard name receives
// every event. It returns a function that removes the handler.
func (c *Client) On(name string, fn func(Event)) func() {
	return c.events.On(func(e Event) {
		if name == Wildcard || e.Name == name {
			fn(e)
		}
	})
}

// Connect opens a session to the worker at addr, authenticating with token.
// It is a no-op if the client is already connecting or connected. The
// reconnect budget is reset, so Connect also recovers a client that has
// exhausted its attempts.
func (c *Client) Connect(addr, token string) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}

	c.addr = addr
	c.token = token
	c.want = true
	c.attempts = 0
	c.gen++
	gen := c.gen
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if changed {
		c.stateEvents.Emit(StateConnecting)
	}
	go c.dial(gen)
}

// Disconnect closes the session and clears the intent to reconnect. Every
// pending request is rejected with ErrDisconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.want = false
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.encoder = nil
	}
	c.failPendingLocked(ErrDisconnected)
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if changed {
		c.stateEvents.Emit(StateDisconnected)
	}
}

// Request sends a request frame and waits for the matching response. It
// fails immediately with ErrNotConnected unless the session is established.
// The timeout applies to this request only; other in-flight requests are
// unaffected. A zero timeout uses DefaultRequestTimeout.
func (c *Client) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := c.nextID()
	ch := make(chan requestOutcome, 1)
	c.pending[id] = pendingRequest{method: method, ch: ch}
	enc := c.encoder
	c.mu.Unlock()

	if err := c.send(enc, Frame{Type: frameRequest, ID: id, Method: method, Params: params}); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("send request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.payload, out.err
	case <-timer.C:
		c.removePending(id)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// nextID generates the next correlation id.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.reqID.Add(1))
}

// send writes a frame. The encoder is captured by the caller so a
// reconnection cannot swap it mid-write.
func (c *Client) send(enc *json.Encoder, f Frame) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	if enc == nil {
		return ErrNotConnected
	}
	return enc.Encode(f)
}

// dial attempts to open the transport for the given generation.
func (c *Client) dial(gen int) {
	c.mu.Lock()
	addr := c.addr
	c.mu.Unlock()

	conn, err := c.cfg.Dial(addr)

	c.mu.Lock()
	if gen != c.gen || !c.want {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		slog.Debug("session dial failed", "addr", addr, "error", err)
		next, changed := c.scheduleReconnectLocked()
		c.mu.Unlock()
		if changed {
			c.stateEvents.Emit(next)
		}
		return
	}

	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.handshakeID = ""
	c.mu.Unlock()
	go c.readLoop(conn, gen)
}

// readLoop decodes frames until the connection drops.
func (c *Client) readLoop(conn net.Conn, gen int) {
	dec := json.NewDecoder(conn)
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			c.connectionLost(gen)
			return
		}
		c.dispatch(&f, gen)
	}
}

// dispatch routes one inbound frame. Before the handshake completes, the
// only frames honored are the challenge event and the response to our own
// connect request; everything else is dropped.
func (c *Client) dispatch(f *Frame, gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if c.state == StateConnecting {
		switch {
		case f.Type == frameEvent && f.Event == EventChallenge:
			enc := c.encoder
			id := c.nextID()
			c.handshakeID = id
			params := c.handshakeParamsLocked()
			c.mu.Unlock()
			if err := c.send(enc, Frame{Type: frameRequest, ID: id, Method: MethodConnect, Params: params}); err != nil {
				slog.Warn("session handshake send failed", "error", err)
			}
		case f.Type == frameResponse && f.ID != "" && f.ID == c.handshakeID:
			c.completeHandshake(f)
		default:
			c.mu.Unlock()
		}
		return
	}

	switch f.Type {
	case frameResponse:
		req, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if !ok {
			slog.Debug("session response without pending request", "id", f.ID)
			return
		}
		if f.OK {
			req.ch <- requestOutcome{payload: f.Payload}
		} else {
			msg := "unknown error"
			if f.Error != nil {
				msg = f.Error.Message
			}
			req.ch <- requestOutcome{err: NewServerError(req.method, msg)}
		}
	case frameEvent:
		c.mu.Unlock()
		c.events.Emit(Event{Name: f.Event, Payload: f.Payload})
	default:
		c.mu.Unlock()
		slog.Debug("session frame with unknown type", "type", f.Type)
	}
}

// handshakeParamsLocked builds the connect request body.
func (c *Client) handshakeParamsLocked() ConnectParams {
	params := ConnectParams{
		MinProtocol: MinProtocol,
		MaxProtocol: MaxProtocol,
		Client: ClientInfo{
			ID:       c.cfg.ClientID,
			Version:  version.Version,
			Platform: runtime.GOOS,
			Mode:     c.cfg.Mode,
		},
		Role:   c.cfg.Role,
		Scopes: c.cfg.Scopes,
	}
	if c.token != "" {
		params.Auth = &AuthParams{Token: c.token}
	}
	return params
}

// completeHandshake finishes the handshake from its response frame.
// Called with c.mu held; releases it.
func (c *Client) completeHandshake(f *Frame) {
	c.handshakeID = ""
	if !f.OK {
		msg := "rejected"
		if f.Error != nil {
			msg = f.Error.Message
		}
		conn := c.conn
		c.mu.Unlock()
		slog.Warn("session handshake rejected", "error", msg)
		// Dropping the transport routes through the usual reconnect path.
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.attempts = 0
	changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	slog.Debug("session established")
	if changed {
		c.stateEvents.Emit(StateConnected)
	}
}

// connectionLost handles an unexpected transport closure.
func (c *Client) connectionLost(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.encoder = nil
	}
	c.gen++
	c.failPendingLocked(ErrConnectionLost)

	var next State
	var changed bool
	if c.want {
		next, changed = c.scheduleReconnectLocked()
	} else {
		next = StateDisconnected
		changed = c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if changed {
		c.stateEvents.Emit(next)
	}
}

// scheduleReconnectLocked arms the next reconnection attempt, or gives up
// when the attempt budget is spent. Returns the resulting state and whether
// it changed; the caller emits after releasing c.mu.
func (c *Client) scheduleReconnectLocked() (State, bool) {
	if c.attempts >= c.cfg.MaxAttempts {
		slog.Warn("session reconnect budget exhausted", "attempts", c.attempts)
		return StateError, c.setStateLocked(StateError)
	}

	// The exponent counts prior drops this outage, so the first retry
	// waits the base delay and each further drop doubles it up to the cap.
	delay := Backoff(c.cfg.BackoffBase, c.cfg.BackoffCap, c.attempts)
	c.attempts++
	c.lastBackoff = delay
	gen := c.gen
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := gen != c.gen || !c.want
		c.mu.Unlock()
		if stale {
			return
		}
		c.dial(gen)
	})
	return StateConnecting, c.setStateLocked(StateConnecting)
}

// Backoff returns the reconnect delay for the given zero-based attempt
// count: min(base * 2^attempt, limit).
func Backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// failPendingLocked rejects every pending request with err.
func (c *Client) failPendingLocked(err error) {
	for id, req := range c.pending {
		delete(c.pending, id)
		req.ch <- requestOutcome{err: err}
	}
}

// removePending drops a pending entry, e.g. after a timeout.
func (c *Client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// setStateLocked records a state transition. The caller emits to
// subscribers after releasing c.mu.
func (c *Client) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}
