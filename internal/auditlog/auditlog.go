// Package auditlog records every exchange with the payment service provider.
// Entries are append-only and written exactly once per attempt, whether the
// exchange succeeded, failed or panicked.
package auditlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Direction tells whether the PSP called us or we called the PSP.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Entry is one audit record. Nil pointers mean "not available".
type Entry struct {
	ID            string    `json:"id"`
	PSPName       string    `json:"psp_name"`
	CorrelationID string    `json:"correlation_id"`
	Direction     Direction `json:"direction"`
	RequestBody   *string   `json:"request_body,omitempty"`
	ResponseBody  *string   `json:"response_body,omitempty"`
	Error         *string   `json:"error,omitempty"`
	StatusCode    *int      `json:"status_code,omitempty"`
	URL           string    `json:"url"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sink persists entries.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Lister reads back the entries of one correlation id, oldest first.
type Lister interface {
	ListByCorrelation(ctx context.Context, correlationID string) ([]Entry, error)
}

// Recorder hands out pending entries bound to a sink.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. Sink failures are logged on logger and
// never returned to the caller.
func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if sink == nil {
		panic("audit sink cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Begin starts an entry. Callers must Flush it, typically with defer.
func (r *Recorder) Begin(pspName, correlationID string, direction Direction, url string) *Pending {
	return &Pending{
		rec: r,
		entry: Entry{
			ID:            uuid.NewString(),
			PSPName:       pspName,
			CorrelationID: correlationID,
			Direction:     direction,
			URL:           url,
		},
	}
}

// Pending is an entry being filled in while an exchange runs.
type Pending struct {
	mu      sync.Mutex
	rec     *Recorder
	entry   Entry
	flushed bool
}

func (p *Pending) SetRequestBody(body string) {
	p.mu.Lock()
	p.entry.RequestBody = &body
	p.mu.Unlock()
}

func (p *Pending) SetResponseBody(body string) {
	p.mu.Lock()
	p.entry.ResponseBody = &body
	p.mu.Unlock()
}

func (p *Pending) SetError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	p.mu.Lock()
	p.entry.Error = &msg
	p.mu.Unlock()
}

func (p *Pending) SetStatusCode(code int) {
	p.mu.Lock()
	p.entry.StatusCode = &code
	p.mu.Unlock()
}

func (p *Pending) SetURL(url string) {
	p.mu.Lock()
	p.entry.URL = url
	p.mu.Unlock()
}

// Flush writes the entry. Only the first call has an effect.
func (p *Pending) Flush(ctx context.Context) {
	p.mu.Lock()
	if p.flushed {
		p.mu.Unlock()
		return
	}
	p.flushed = true
	p.entry.CreatedAt = p.rec.now().UTC()
	entry := p.entry
	p.mu.Unlock()

	if err := p.rec.sink.Write(context.WithoutCancel(ctx), entry); err != nil {
		p.rec.logger.Error("Failed to write audit log entry",
			zap.String("correlation_id", entry.CorrelationID),
			zap.String("direction", string(entry.Direction)),
			zap.Error(err),
		)
	}
}
