package collectors

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkbrsn/httptap"
)

// defaultPreviewLimit caps logged body previews, in bytes.
const defaultPreviewLimit = 2048

// Log reports every exchange through zerolog: starts at debug level,
// completions at info, failures at error. Body previews are truncated to keep
// log lines bounded.
type Log struct {
	cfg     httptap.Config
	logger  zerolog.Logger
	preview int
}

// LogOption is a functional option for the Log struct.
type LogOption func(*Log)

// WithLogger routes events through the given logger instead of the global one.
func WithLogger(logger zerolog.Logger) LogOption {
	return func(l *Log) { l.logger = logger }
}

// WithPreviewLimit caps the number of body bytes included per log event.
// Zero or negative disables truncation.
func WithPreviewLimit(n int) LogOption {
	return func(l *Log) { l.preview = n }
}

// NewLog creates a logging collector. cfg controls how much body detail the
// transport captures for it.
func NewLog(cfg httptap.Config, opts ...LogOption) *Log {
	l := &Log{
		cfg:     cfg,
		logger:  log.Logger,
		preview: defaultPreviewLimit,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Start implements httptap.Collector.
func (l *Log) Start(req httptap.RequestRecord) httptap.Handle {
	h := newHandle()

	ev := l.logger.Debug().
		Str("handle", string(h)).
		Str("method", req.Method)
	if req.URL != nil {
		ev = ev.Stringer("url", req.URL)
	}
	if req.HasBody {
		ev = ev.Int64("request_size", req.BodySize)
	}
	if req.RPCMethod != "" {
		ev = ev.Str("rpc_method", req.RPCMethod)
	}
	if req.BodyText != nil {
		ev = ev.Str("request_body", l.clip(*req.BodyText))
	}
	ev.Msg("request started")

	return h
}

// Complete implements httptap.Collector.
func (l *Log) Complete(h httptap.Handle, resp httptap.ResponseRecord) {
	ev := l.logger.Info().
		Str("handle", string(h)).
		Int("status", resp.StatusCode).
		Int64("response_size", resp.BodySize).
		Dur("latency", resp.Times.Latency)
	if resp.RemoteAddr != nil {
		ev = ev.Str("remote_addr", resp.RemoteAddr.String())
	}
	if resp.BodyText != nil {
		ev = ev.Str("response_body", l.clip(*resp.BodyText))
	}
	ev.Msg("request completed")
}

// Fail implements httptap.Collector.
func (l *Log) Fail(h httptap.Handle, errMsg string, timeout bool) {
	l.logger.Error().
		Str("handle", string(h)).
		Str("error", errMsg).
		Bool("timeout", timeout).
		Msg("request failed")
}

// Config implements httptap.Collector.
func (l *Log) Config() httptap.Config { return l.cfg }

// clip truncates s to the preview limit.
func (l *Log) clip(s string) string {
	if l.preview > 0 && len(s) > l.preview {
		return s[:l.preview] + "..."
	}
	return s
}
