package httptap

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"net"
	"net/http"
	"time"

	"go.uber.org/atomic"
)

// tapBody wraps a response body, counting and optionally buffering the bytes
// the caller reads, and delivers the exchange's terminal report when the
// stream ends. It touches the upstream body only from inside Read and Close,
// so caller pacing and cancellation pass straight through.
type tapBody struct {
	rc io.ReadCloser

	collector Collector
	handle    Handle

	status      int
	header      http.Header
	contentType string
	remoteAddr  net.Addr
	times       *traceTimes

	size atomic.Int64
	buf  *bytes.Buffer // nil unless response body logging is on

	reported atomic.Bool
}

// newTapBody wraps resp.Body for reporting under the given handle. Status and
// headers are snapshotted here, so later mutations by the caller do not leak
// into the report.
func newTapBody(
	c Collector,
	h Handle,
	cfg Config,
	resp *http.Response,
	addr net.Addr,
	times *traceTimes,
) *tapBody {
	header := make(http.Header, len(resp.Header))
	maps.Copy(header, resp.Header)

	b := &tapBody{
		rc:          resp.Body,
		collector:   c,
		handle:      h,
		status:      resp.StatusCode,
		header:      header,
		contentType: resp.Header.Get("Content-Type"),
		remoteAddr:  addr,
		times:       times,
	}
	if cfg.LogResponseBody {
		b.buf = &bytes.Buffer{}
	}
	return b
}

// Read passes the caller's read through to the upstream body. A clean end of
// stream reports completion, any other error reports failure; either way the
// caller sees exactly the bytes and error the upstream returned.
func (b *tapBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.size.Add(int64(n))
		if b.buf != nil {
			b.buf.Write(p[:n])
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		b.complete()
	default:
		b.fail(err)
	}
	return n, err
}

// Close closes the upstream body. Closing before the end of the stream is a
// caller cancellation and reports nothing.
func (b *tapBody) Close() error {
	return b.rc.Close()
}

// complete emits the Complete report, once across all terminal paths.
func (b *tapBody) complete() {
	if !b.reported.CompareAndSwap(false, true) {
		return
	}
	b.times.dataDone.Store(time.Now())

	rec := ResponseRecord{
		StatusCode: b.status,
		Header:     b.header,
		BodySize:   b.size.Load(),
		RemoteAddr: b.remoteAddr,
		Times:      TimeDataFromTimestamps(b.times.Snapshot()),
	}
	if b.buf != nil {
		rec.BodyText = decodeText(b.buf.Bytes(), b.contentType)
	}
	b.collector.Complete(b.handle, rec)
}

// fail emits the Fail report, once across all terminal paths.
func (b *tapBody) fail(err error) {
	if !b.reported.CompareAndSwap(false, true) {
		return
	}
	b.collector.Fail(b.handle, err.Error(), isTimeoutError(err))
}
