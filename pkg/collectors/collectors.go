// Package collectors provides ready-made httptap.Collector implementations:
// structured logging, a bounded in-memory store, an NDJSON journal and a live
// WebSocket relay.
package collectors

import (
	"time"

	"github.com/rs/xid"

	"github.com/jkbrsn/httptap"
)

// Phases of an exchange as emitted by the journal and relay collectors.
const (
	PhaseStart    = "start"
	PhaseComplete = "complete"
	PhaseFail     = "fail"
)

// Event is the wire shape the journal and relay collectors emit, one event
// per report. Fields outside the phase's group are left at their zero value.
type Event struct {
	Handle string    `json:"handle"`
	Phase  string    `json:"phase"`
	At     time.Time `json:"at"`

	// Start fields
	Method      string  `json:"method,omitempty"`
	URL         string  `json:"url,omitempty"`
	RPCMethod   string  `json:"rpc_method,omitempty"`
	RequestBody *string `json:"request_body,omitempty"`
	RequestSize int64   `json:"request_size,omitempty"`

	// Complete fields
	StatusCode   int     `json:"status_code,omitempty"`
	ResponseBody *string `json:"response_body,omitempty"`
	ResponseSize int64   `json:"response_size,omitempty"`
	RemoteAddr   string  `json:"remote_addr,omitempty"`
	LatencyMS    float64 `json:"latency_ms,omitempty"`

	// Fail fields
	Error   string `json:"error,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

// newHandle mints a unique exchange handle.
func newHandle() httptap.Handle {
	return httptap.Handle(xid.New().String())
}

// startEvent shapes a request record into its start event.
func startEvent(h httptap.Handle, req httptap.RequestRecord) Event {
	ev := Event{
		Handle:      string(h),
		Phase:       PhaseStart,
		At:          time.Now(),
		Method:      req.Method,
		RPCMethod:   req.RPCMethod,
		RequestBody: req.BodyText,
		RequestSize: req.BodySize,
	}
	if req.URL != nil {
		ev.URL = req.URL.String()
	}
	return ev
}

// completeEvent shapes a response record into its complete event.
func completeEvent(h httptap.Handle, resp httptap.ResponseRecord) Event {
	ev := Event{
		Handle:       string(h),
		Phase:        PhaseComplete,
		At:           time.Now(),
		StatusCode:   resp.StatusCode,
		ResponseBody: resp.BodyText,
		ResponseSize: resp.BodySize,
		LatencyMS:    float64(resp.Times.Latency) / float64(time.Millisecond),
	}
	if resp.RemoteAddr != nil {
		ev.RemoteAddr = resp.RemoteAddr.String()
	}
	return ev
}

// failEvent shapes a failure report into its fail event.
func failEvent(h httptap.Handle, errMsg string, timeout bool) Event {
	return Event{
		Handle:  string(h),
		Phase:   PhaseFail,
		At:      time.Now(),
		Error:   errMsg,
		Timeout: timeout,
	}
}
