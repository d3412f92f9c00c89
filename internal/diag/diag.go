// Package diag emits the pipeline's line-delimited JSON diagnostics stream.
package diag

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	IngestWarn     Kind = "INGEST_WARN"
	SchemaMismatch Kind = "SCHEMA_MISMATCH"
	BudgetCap      Kind = "BUDGET_CAP"
	RateLimit      Kind = "RATE_LIMIT"
	LedgerBusy     Kind = "LEDGER_BUSY"
	HeaderNotFound Kind = "HEADER_NOT_FOUND"
	Transport      Kind = "TRANSPORT"
)

// Event is one diagnostics record. ID is unique per event; RunID ties the
// event to the run that produced it.
type Event struct {
	ID     string    `json:"id"`
	RunID  string    `json:"run_id,omitempty"`
	TS     time.Time `json:"ts"`
	Stage  string    `json:"stage"`
	Kind   Kind      `json:"kind"`
	Detail string    `json:"detail"`
}

// Emitter writes events as NDJSON to a sink and mirrors them to the logger.
// Safe for use from a single run; writes are serialized.
type Emitter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	counts map[Kind]int
	runID  string
	now    func() time.Time
}

// New creates an emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{w: w, counts: make(map[Kind]int), now: time.Now}
}

// NewFile creates an emitter appending to the named file.
func NewFile(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "diag: open %s", path)
	}
	e := New(f)
	e.closer = f
	return e, nil
}

// WithNow sets a fixed clock for testing.
func (e *Emitter) WithNow(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// WithRun stamps every subsequent event with the run id.
func (e *Emitter) WithRun(runID string) *Emitter {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runID = runID
	return e
}

// Emit writes one event to the stream.
func (e *Emitter) Emit(stage string, kind Kind, detail string) {
	ev := Event{
		ID:     uuid.NewString(),
		TS:     e.now().UTC(),
		Stage:  stage,
		Kind:   kind,
		Detail: detail,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ev.RunID = e.runID
	e.counts[kind]++

	line, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("diag: marshal event", zap.Error(err))
		return
	}
	line = append(line, '\n')
	if _, err := e.w.Write(line); err != nil {
		zap.L().Error("diag: write event", zap.Error(err))
	}

	zap.L().Warn("pipeline diagnostic",
		zap.String("stage", stage),
		zap.String("kind", string(kind)),
		zap.String("detail", detail),
	)
}

// Count returns how many events of the given kind were emitted.
func (e *Emitter) Count(kind Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[kind]
}

// Total returns the total number of events emitted.
func (e *Emitter) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.counts {
		n += c
	}
	return n
}

// Close closes the underlying sink if it is closable.
func (e *Emitter) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
