package collectors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/jkbrsn/httptap"
)

const (
	// defaultRelayBuffer is the event queue capacity between the request path
	// and the write pump.
	defaultRelayBuffer = 256

	// closeGraceTimeout bounds the close handshake on teardown.
	closeGraceTimeout = 3 * time.Second
)

// RelayTimeouts configures the relay's WebSocket deadlines.
type RelayTimeouts struct {
	// Handshake is the timeout for the WebSocket handshake.
	// Maps to websocket.Dialer.HandshakeTimeout.
	// Zero uses the websocket library default (45 seconds).
	Handshake time.Duration

	// Write is the deadline for writing an event to the connection.
	// Applied before each WriteMessage call via SetWriteDeadline.
	// Zero means no write deadline (writes can block indefinitely).
	Write time.Duration
}

// Validate checks that the RelayTimeouts configuration is valid.
func (t RelayTimeouts) Validate() error {
	if t.Handshake < 0 {
		return errors.New("RelayTimeouts.Handshake cannot be negative")
	}
	if t.Write < 0 {
		return errors.New("RelayTimeouts.Write cannot be negative")
	}
	return nil
}

// Relay streams events to a WebSocket endpoint as JSON text messages, one per
// report. It is the client side of a live viewer; delivery is best effort.
// Events are enqueued without blocking the request path, and dropped with a
// count when the queue is full or the connection is gone.
type Relay struct {
	cfg      httptap.Config
	timeouts RelayTimeouts
	header   http.Header
	bufSize  int

	conn   *websocket.Conn
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closed  atomic.Bool
	dropped atomic.Int64
}

// RelayOption is a functional option for the Relay struct.
type RelayOption func(*Relay)

// WithRelayBuffer sets the event queue capacity.
func WithRelayBuffer(n int) RelayOption {
	return func(r *Relay) { r.bufSize = n }
}

// WithRelayHeader adds headers to the dial request, e.g. for authentication.
func WithRelayHeader(h http.Header) RelayOption {
	return func(r *Relay) { r.header = h }
}

// WithRelayTimeouts configures the relay's deadlines.
func WithRelayTimeouts(t RelayTimeouts) RelayOption {
	return func(r *Relay) { r.timeouts = t }
}

// NewRelay dials wsURL and starts the relay pumps. The relay must be closed
// to tear the connection down cleanly.
func NewRelay(cfg httptap.Config, wsURL string, opts ...RelayOption) (*Relay, error) {
	r := &Relay{
		cfg:     cfg,
		header:  make(http.Header),
		bufSize: defaultRelayBuffer,
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.timeouts.Validate(); err != nil {
		return nil, err
	}
	r.events = make(chan Event, r.bufSize)

	dialer := &websocket.Dialer{HandshakeTimeout: r.timeouts.Handshake}
	conn, resp, err := dialer.Dial(wsURL, r.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay endpoint: %w", err)
	}
	r.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	r.ctx = gctx
	r.cancel = cancel
	r.group = group

	group.Go(r.writePump)
	group.Go(r.readPump)

	return r, nil
}

// Start implements httptap.Collector.
func (r *Relay) Start(req httptap.RequestRecord) httptap.Handle {
	h := newHandle()
	r.enqueue(startEvent(h, req))
	return h
}

// Complete implements httptap.Collector.
func (r *Relay) Complete(h httptap.Handle, resp httptap.ResponseRecord) {
	r.enqueue(completeEvent(h, resp))
}

// Fail implements httptap.Collector.
func (r *Relay) Fail(h httptap.Handle, errMsg string, timeout bool) {
	r.enqueue(failEvent(h, errMsg, timeout))
}

// Config implements httptap.Collector.
func (r *Relay) Config() httptap.Config { return r.cfg }

// Dropped returns the number of events discarded because the queue was full.
func (r *Relay) Dropped() int64 {
	return r.dropped.Load()
}

// Close sends a close handshake, tears the connection down and waits for the
// pumps to exit. Further reports are dropped.
func (r *Relay) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.cancel()

	// Send a close message
	formattedCloseMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(closeGraceTimeout)
	_ = r.conn.WriteControl(websocket.CloseMessage, formattedCloseMessage, deadline)

	err := r.conn.Close()
	if werr := r.group.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

// enqueue hands ev to the write pump without blocking the request path.
func (r *Relay) enqueue(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// writePump drains the event queue onto the connection.
// Note: for concurrency safety, the connection's WriteMessage method is used
// exclusively here.
func (r *Relay) writePump() error {
	for {
		select {
		case <-r.ctx.Done():
			return nil
		case ev := <-r.events:
			payload, err := sonic.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("relay: failed to encode event")
				continue
			}
			if r.timeouts.Write > 0 {
				_ = r.conn.SetWriteDeadline(time.Now().Add(r.timeouts.Write))
			}
			if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return r.classifyWriteError(err)
			}
		}
	}
}

// readPump discards inbound traffic. Reading is what surfaces close frames
// and keeps control-frame processing alive.
func (r *Relay) readPump() error {
	for {
		if _, _, err := r.conn.ReadMessage(); err != nil {
			if r.ctx.Err() != nil {
				// Relay shutting down, exit quietly
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("relay read error: %w", err)
		}
	}
}

// classifyWriteError maps a pump write failure to its pump result; benign
// closes end the pump quietly.
func (r *Relay) classifyWriteError(err error) error {
	if r.ctx.Err() != nil {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("relay write timeout: %w", err)
	}
	return fmt.Errorf("relay write error: %w", err)
}
