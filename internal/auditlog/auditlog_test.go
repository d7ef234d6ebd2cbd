package auditlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, Entry) error { return f.err }

func TestRecorder_FlushWritesOnce(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, nil)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	p := rec.Begin("MultiSafepay", "INV-1", DirectionOut, "https://testapi.multisafepay.com/v1/json/orders")
	p.SetRequestBody(`{"order_id":"INV-1"}`)
	p.SetResponseBody(`{"status":"initialized"}`)
	p.SetStatusCode(1)
	p.SetError(nil)
	p.Flush(context.Background())
	p.Flush(context.Background())

	entries := sink.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "MultiSafepay", e.PSPName)
	assert.Equal(t, "INV-1", e.CorrelationID)
	assert.Equal(t, DirectionOut, e.Direction)
	assert.Equal(t, `{"order_id":"INV-1"}`, *e.RequestBody)
	assert.Equal(t, `{"status":"initialized"}`, *e.ResponseBody)
	assert.Nil(t, e.Error)
	assert.Equal(t, 1, *e.StatusCode)
	assert.Equal(t, fixed, e.CreatedAt)
}

func TestRecorder_FlushFromDeferAfterPanic(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, nil)

	func() {
		defer func() { _ = recover() }()
		p := rec.Begin("MultiSafepay", "INV-2", DirectionOut, "")
		defer p.Flush(context.Background())
		p.SetError(fmt.Errorf("boom"))
		panic("collaborator exploded")
	}()

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", *entries[0].Error)
	assert.Nil(t, entries[0].RequestBody)
	assert.Nil(t, entries[0].ResponseBody)
}

func TestRecorder_SinkFailureIsLoggedAndSwallowed(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := NewRecorder(failingSink{err: errors.New("disk full")}, zap.New(core))

	assert.NotPanics(t, func() {
		rec.Begin("MultiSafepay", "INV-3", DirectionIn, "").Flush(context.Background())
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to write audit log entry", logs.All()[0].Message)
	assert.Equal(t, "INV-3", logs.All()[0].ContextMap()["correlation_id"])
}

func TestRecorder_FlushIgnoresCancelledContext(t *testing.T) {
	var seen error
	sink := sinkFunc(func(ctx context.Context, _ Entry) error {
		seen = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewRecorder(sink, nil).Begin("MultiSafepay", "INV-4", DirectionOut, "").Flush(ctx)
	assert.NoError(t, seen)
}

func TestNewRecorder_NilSinkPanics(t *testing.T) {
	assert.Panics(t, func() { NewRecorder(nil, nil) })
}

type sinkFunc func(ctx context.Context, e Entry) error

func (f sinkFunc) Write(ctx context.Context, e Entry) error { return f(ctx, e) }

func TestMemorySink_ListByCorrelation(t *testing.T) {
	sink := NewMemorySink()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = sink.Write(context.Background(), Entry{ID: "b", CorrelationID: "INV-1", CreatedAt: base.Add(time.Second)})
	_ = sink.Write(context.Background(), Entry{ID: "x", CorrelationID: "INV-2", CreatedAt: base})
	_ = sink.Write(context.Background(), Entry{ID: "a", CorrelationID: "INV-1", CreatedAt: base})

	entries, err := sink.ListByCorrelation(context.Background(), "INV-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestMultiSink_WritesToAll(t *testing.T) {
	first, second := NewMemorySink(), NewMemorySink()
	failure := errors.New("kafka down")
	multi := MultiSink{first, failingSink{err: failure}, second}

	err := multi.Write(context.Background(), Entry{ID: "1"})
	assert.ErrorIs(t, err, failure)
	assert.Len(t, first.Entries(), 1)
	assert.Len(t, second.Entries(), 1)
}
