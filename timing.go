package httptap

import (
	"crypto/tls"
	"net"
	"net/http/httptrace"
	"time"

	"go.uber.org/atomic"
)

// traceTimes collects phase stamps from httptrace callbacks. The callbacks
// fire on transport-internal goroutines, so every stamp is stored atomically.
type traceTimes struct {
	start     atomic.Time
	dnsStart  atomic.Time
	dnsDone   atomic.Time
	connStart atomic.Time
	connDone  atomic.Time
	tlsStart  atomic.Time
	tlsDone   atomic.Time
	wroteDone atomic.Time
	firstByte atomic.Time
	dataDone  atomic.Time
}

// Snapshot returns a plain copy of the stamps recorded so far.
func (t *traceTimes) Snapshot() requestTimestamps {
	return requestTimestamps{
		start:     t.start.Load(),
		dnsStart:  t.dnsStart.Load(),
		dnsDone:   t.dnsDone.Load(),
		connStart: t.connStart.Load(),
		connDone:  t.connDone.Load(),
		tlsStart:  t.tlsStart.Load(),
		tlsDone:   t.tlsDone.Load(),
		wroteDone: t.wroteDone.Load(),
		firstByte: t.firstByte.Load(),
		dataDone:  t.dataDone.Load(),
	}
}

// requestTimestamps stores the timestamps of a request's phases.
type requestTimestamps struct {
	start     time.Time
	dnsStart  time.Time
	dnsDone   time.Time
	connStart time.Time
	connDone  time.Time
	tlsStart  time.Time
	tlsDone   time.Time
	wroteDone time.Time
	firstByte time.Time
	dataDone  time.Time
}

// RequestTimes represents the timing information for a request.
type RequestTimes struct {
	// Time when the request was sent
	SentAt time.Time
	// Time when the first byte of the response was received
	ReceivedAt time.Time

	// Latency is the time from request send to receiving the first byte of the response.
	Latency time.Duration

	// Optional durations, nil when not applicable
	RequestTimeTotal *time.Duration // Total time taken for a request, including full data transfer
	DNSLookup        *time.Duration // DNS lookup duration
	TCPConnect       *time.Duration // TCP connection duration
	TLSHandshake     *time.Duration // TLS handshake duration
	ServerProcessing *time.Duration // Server processing duration
	DataTransfer     *time.Duration // Data transfer duration
}

// ptr returns a pointer to the given value.
func ptr[T any](v T) *T { return &v }

// TimeDataFromTimestamps returns the RequestTimes from the given requestTimestamps. Calculates and sets
// all durations and times for which both boundary stamps were recorded.
func TimeDataFromTimestamps(t requestTimestamps) RequestTimes {
	req := RequestTimes{}

	req.SentAt = t.start
	req.ReceivedAt = t.firstByte

	if !t.start.IsZero() && !t.firstByte.IsZero() {
		req.Latency = t.firstByte.Sub(t.start)
	}
	if !t.dnsStart.IsZero() && !t.dnsDone.IsZero() {
		req.DNSLookup = ptr(t.dnsDone.Sub(t.dnsStart))
	}
	if !t.connStart.IsZero() && !t.connDone.IsZero() {
		req.TCPConnect = ptr(t.connDone.Sub(t.connStart))
	}
	if !t.tlsStart.IsZero() && !t.tlsDone.IsZero() {
		req.TLSHandshake = ptr(t.tlsDone.Sub(t.tlsStart))
	}
	if !t.wroteDone.IsZero() && !t.firstByte.IsZero() {
		req.ServerProcessing = ptr(t.firstByte.Sub(t.wroteDone))
	}
	if !t.dataDone.IsZero() && !t.firstByte.IsZero() {
		req.DataTransfer = ptr(t.dataDone.Sub(t.firstByte))
	}
	if !t.dataDone.IsZero() && !t.start.IsZero() {
		req.RequestTimeTotal = ptr(t.dataDone.Sub(t.start))
	}

	return req
}

// traceRequest returns a ClientTrace that records phase stamps in times and
// delivers the connection's remote address on addrChan.
func traceRequest(times *traceTimes, addrChan chan<- net.Addr) *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		// The earliest guaranteed callback is usually GetConn, so we set the start time there
		GetConn: func(string) { times.start.Store(time.Now()) },
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn != nil {
				select {
				case addrChan <- info.Conn.RemoteAddr():
				default: // Non-blocking send to avoid issues if channel is full or closed
				}
			}
		},
		DNSStart:          func(httptrace.DNSStartInfo) { times.dnsStart.Store(time.Now()) },
		DNSDone:           func(httptrace.DNSDoneInfo) { times.dnsDone.Store(time.Now()) },
		ConnectStart:      func(_, _ string) { times.connStart.Store(time.Now()) },
		ConnectDone:       func(_, _ string, _ error) { times.connDone.Store(time.Now()) },
		TLSHandshakeStart: func() { times.tlsStart.Store(time.Now()) },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			times.tlsDone.Store(time.Now())
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			times.wroteDone.Store(time.Now())
		},
		GotFirstResponseByte: func() { times.firstByte.Store(time.Now()) },
	}
}
