package httptap

import (
	"bytes"
	"io"
	"net/http"
)

// captureRequest builds the record for an outgoing request and, when request
// body logging is on, materializes the one-shot body so it can be both
// reported and replayed. The returned request is the original when the body
// was left untouched, or a shallow reconstruction carrying a replayable body.
func captureRequest(req *http.Request, cfg Config) (*http.Request, RequestRecord) {
	rec := RequestRecord{
		Method:   req.Method,
		URL:      req.URL,
		Header:   req.Header,
		HasBody:  req.Body != nil && req.Body != http.NoBody,
		BodySize: req.ContentLength,
	}
	if !rec.HasBody {
		rec.BodySize = 0
		return req, rec
	}
	// A zero Content-Length alongside a body means unknown for client requests.
	if rec.BodySize == 0 {
		rec.BodySize = -1
	}
	if !cfg.LogRequestBody {
		return req, rec
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()

	out := new(http.Request)
	*out = *req

	if err != nil {
		// Capture must not fail the dispatch on its own. Hand the transport a
		// body that replays the read failure, so the error surfaces through
		// the regular dispatch path.
		out.Body = io.NopCloser(&errReader{err: err})
		return out, rec
	}

	rec.BodySize = int64(len(data))
	rec.Body = data
	rec.BodyText = decodeText(data, req.Header.Get("Content-Type"))
	if rec.BodyText != nil {
		rec.RPCMethod = rpcMethod(data)
	}

	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if out.ContentLength <= 0 {
		out.ContentLength = int64(len(data))
	}
	return out, rec
}

// errReader replays a capture-time read failure to whoever reads the rebuilt body.
type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
