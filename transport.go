package httptap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptrace"
)

// Transport is an http.RoundTripper that reports every request passing
// through it to a Collector. The base transport keeps full ownership of
// protocol concerns; the Transport only observes. Redirects driven by an
// enclosing http.Client pass through here once per hop, so every hop is
// reported as its own exchange.
type Transport struct {
	base      http.RoundTripper
	collector Collector
}

// NewTransport wraps base with exchange reporting to c. A nil base falls back
// to http.DefaultTransport, a nil collector to NopCollector.
func NewTransport(c Collector, base http.RoundTripper) *Transport {
	if c == nil {
		c = NopCollector{}
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, collector: c}
}

// RoundTrip sends the request through the base transport, reporting start and
// terminal state to the collector. The caller receives the exact response and
// errors the base transport produced.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cfg := t.collector.Config()

	out, rec := captureRequest(req, cfg)

	// Add tracing to the request
	times := &traceTimes{}
	remoteAddrChan := make(chan net.Addr, 1)
	trace := traceRequest(times, remoteAddrChan)
	out = out.WithContext(httptrace.WithClientTrace(out.Context(), trace))

	handle := t.collector.Start(rec)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		t.collector.Fail(handle, err.Error(), isTimeoutError(err))
		return nil, err
	}

	// GotConn has fired by the time RoundTrip returns, so a non-blocking read
	// suffices. Base transports that never invoke the trace leave it empty.
	var remoteAddr net.Addr
	select {
	case remoteAddr = <-remoteAddrChan:
	default:
	}

	tap := newTapBody(t.collector, handle, cfg, resp, remoteAddr, times)
	if resp.Body == nil {
		// Out-of-contract base transport. Report the empty exchange and hand
		// the response through untouched.
		tap.complete()
		return resp, nil
	}
	resp.Body = tap

	// Bodyless responses are routinely closed without a read, which would
	// look like a cancellation. Their stream is already over, so report now.
	if resp.ContentLength == 0 || req.Method == http.MethodHead {
		tap.complete()
	}

	return resp, nil
}

// isTimeoutError reports whether err represents a timeout: a net.Error with
// its timeout flag set, or a deadline-exceeded context anywhere in the chain.
func isTimeoutError(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
