package collectors

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jkbrsn/httptap"
)

// Exchange is one tracked request lifecycle held by a Memory collector.
type Exchange struct {
	Handle  httptap.Handle
	Request httptap.RequestRecord

	// Done is true once a terminal report arrived.
	Done bool
	// Response is set when the exchange completed.
	Response *httptap.ResponseRecord
	// Err and Timeout are set when the exchange failed.
	Err     string
	Timeout bool

	StartedAt time.Time
	EndedAt   time.Time
}

// Memory keeps the most recent exchanges in a bounded in-memory store, for
// embedding in tools and tests. Exchanges that never receive a terminal
// report, such as cancelled streams, age out with the bound instead of
// accumulating.
type Memory struct {
	cfg   httptap.Config
	cache *lru.Cache[httptap.Handle, Exchange]
}

// NewMemory creates a collector retaining up to size exchanges.
func NewMemory(cfg httptap.Config, size int) (*Memory, error) {
	cache, err := lru.New[httptap.Handle, Exchange](size)
	if err != nil {
		return nil, err
	}
	return &Memory{cfg: cfg, cache: cache}, nil
}

// Start implements httptap.Collector.
func (m *Memory) Start(req httptap.RequestRecord) httptap.Handle {
	h := newHandle()

	// The record outlives the Start call here, so the body buffer is copied.
	if len(req.Body) > 0 {
		req.Body = append([]byte(nil), req.Body...)
	}

	m.cache.Add(h, Exchange{
		Handle:    h,
		Request:   req,
		StartedAt: time.Now(),
	})
	return h
}

// Complete implements httptap.Collector.
func (m *Memory) Complete(h httptap.Handle, resp httptap.ResponseRecord) {
	ex, ok := m.cache.Peek(h)
	if !ok {
		return
	}
	ex.Done = true
	ex.Response = &resp
	ex.EndedAt = time.Now()
	m.cache.Add(h, ex)
}

// Fail implements httptap.Collector.
func (m *Memory) Fail(h httptap.Handle, errMsg string, timeout bool) {
	ex, ok := m.cache.Peek(h)
	if !ok {
		return
	}
	ex.Done = true
	ex.Err = errMsg
	ex.Timeout = timeout
	ex.EndedAt = time.Now()
	m.cache.Add(h, ex)
}

// Config implements httptap.Collector.
func (m *Memory) Config() httptap.Config { return m.cfg }

// Lookup returns the retained exchange for h, without refreshing its recency.
func (m *Memory) Lookup(h httptap.Handle) (Exchange, bool) {
	return m.cache.Peek(h)
}

// Exchanges returns the retained exchanges, oldest first.
func (m *Memory) Exchanges() []Exchange {
	return m.cache.Values()
}

// Len returns the number of retained exchanges.
func (m *Memory) Len() int {
	return m.cache.Len()
}
