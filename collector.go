package httptap

import (
	"net"
	"net/http"
	"net/url"
)

// Handle is an opaque identifier minted by a Collector when an exchange
// starts. It ties the exchange's terminal report back to its start report.
type Handle string

// Config carries the capture switches a Collector exposes to the transport.
// The transport reads it once per dispatch, so a change applies to subsequent
// requests but never to one in flight.
type Config struct {
	// LogRequestBody enables capture of request bodies before dispatch.
	LogRequestBody bool
	// LogResponseBody enables buffering of response bodies for decoding.
	LogResponseBody bool
}

// Collector receives the lifecycle reports of every exchange passing through
// a Transport. Implementations must be safe for concurrent use; the transport
// invokes them inline on the request path and does not retry or buffer.
type Collector interface {
	// Start reports a request about to be dispatched and returns the handle
	// identifying the exchange in its terminal report.
	Start(RequestRecord) Handle

	// Complete reports an exchange whose response stream reached its end.
	// Called at most once per handle, mutually exclusive with Fail.
	Complete(Handle, ResponseRecord)

	// Fail reports an exchange that ended in a dispatch or stream error. The
	// timeout flag classifies deadline-style failures.
	Fail(h Handle, errMsg string, timeout bool)

	// Config returns the capture switches for the next dispatch.
	Config() Config
}

// RequestRecord describes an outgoing request at the moment of dispatch.
type RequestRecord struct {
	Method string
	URL    *url.URL
	Header http.Header

	// HasBody is true when the request carries a body.
	HasBody bool
	// BodySize is the captured byte count when capture ran, the declared
	// Content-Length otherwise. -1 when the size is unknown.
	BodySize int64
	// Body holds the captured bytes, nil unless request body logging is on.
	// Collectors that retain it beyond the Start call must copy.
	Body []byte
	// BodyText is the lenient UTF-8 decoding of Body, nil when the body was
	// not captured or its content type is not textual.
	BodyText *string
	// RPCMethod is the method name when the captured body carries a JSON-RPC
	// 2.0 call, empty otherwise.
	RPCMethod string
}

// ResponseRecord describes a finished exchange.
type ResponseRecord struct {
	StatusCode int
	Header     http.Header

	// BodyText is the lenient UTF-8 decoding of the streamed body, nil when
	// response body logging was off or the content type is not textual.
	BodyText *string
	// BodySize is the total number of body bytes delivered to the caller.
	BodySize int64

	// RemoteAddr is the connection's remote address, nil when unknown.
	RemoteAddr net.Addr
	// Times holds the request's phase timings.
	Times RequestTimes
}

// NopCollector records nothing and keeps all capture switches off.
type NopCollector struct{}

// Start implements Collector.
func (NopCollector) Start(RequestRecord) Handle { return "" }

// Complete implements Collector.
func (NopCollector) Complete(Handle, ResponseRecord) {}

// Fail implements Collector.
func (NopCollector) Fail(Handle, string, bool) {}

// Config implements Collector.
func (NopCollector) Config() Config { return Config{} }
