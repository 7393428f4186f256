package collectors

import (
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jkbrsn/httptap"
)

// Journal appends one JSON line per report to a writer, for offline viewers
// and replay tooling. Construct with NewJournal or NewJournalFile.
type Journal struct {
	cfg httptap.Config

	mu sync.Mutex
	w  io.Writer

	closer io.Closer // non-nil when the journal owns the writer
}

// NewJournal creates a collector journaling events to w. The caller keeps
// ownership of w.
func NewJournal(cfg httptap.Config, w io.Writer) *Journal {
	return &Journal{cfg: cfg, w: w}
}

// NewJournalFile creates a collector journaling events to path, rotating the
// file at maxSizeMB megabytes and keeping maxBackups rotated files.
func NewJournalFile(cfg httptap.Config, path string, maxSizeMB, maxBackups int) *Journal {
	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return &Journal{cfg: cfg, w: logger, closer: logger}
}

// Start implements httptap.Collector.
func (j *Journal) Start(req httptap.RequestRecord) httptap.Handle {
	h := newHandle()
	j.write(startEvent(h, req))
	return h
}

// Complete implements httptap.Collector.
func (j *Journal) Complete(h httptap.Handle, resp httptap.ResponseRecord) {
	j.write(completeEvent(h, resp))
}

// Fail implements httptap.Collector.
func (j *Journal) Fail(h httptap.Handle, errMsg string, timeout bool) {
	j.write(failEvent(h, errMsg, timeout))
}

// Config implements httptap.Collector.
func (j *Journal) Config() httptap.Config { return j.cfg }

// Close closes the underlying writer when the journal owns it.
func (j *Journal) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

// write appends a single event line.
func (j *Journal) write(ev Event) {
	line, err := sonic.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("journal: failed to encode event")
		return
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(line); err != nil {
		log.Error().Err(err).Msg("journal: failed to write event")
	}
}
