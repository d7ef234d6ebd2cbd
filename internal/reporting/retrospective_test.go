package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/psp-multisafepay/internal/auditlog"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

type failingLister struct{}

func (failingLister) ListByCorrelation(context.Context, string) ([]auditlog.Entry, error) {
	return nil, errors.New("db down")
}

func TestGenerateRetrospective(t *testing.T) {
	time1 := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)
	time2 := time.Date(2023, 1, 1, 10, 5, 0, 0, time.UTC)
	time3 := time.Date(2023, 1, 1, 10, 10, 0, 0, time.UTC)

	tests := []struct {
		name     string
		entries  []auditlog.Entry
		expected *RetrospectiveReport
	}{
		{
			name:    "EmptyLog",
			entries: nil,
			expected: &RetrospectiveReport{
				CorrelationID:  "ORD-1",
				ErrorBreakdown: map[string]int{},
			},
		},
		{
			name: "PaidAfterWebhook",
			entries: []auditlog.Entry{
				{CorrelationID: "ORD-1", Direction: auditlog.DirectionOut, CreatedAt: time1,
					RequestBody:  strPtr(`{"order_id":"ORD-1","amount":2000,"currency":"EUR"}`),
					ResponseBody: strPtr(`{"order_id":"ORD-1","status":"initialized","payment_url":"https://pay.example/abc"}`)},
				{CorrelationID: "ORD-1", Direction: auditlog.DirectionOut, CreatedAt: time3, StatusCode: intPtr(1),
					ResponseBody: strPtr(`{"order_id":"ORD-1","status":"completed"}`)},
				{CorrelationID: "ORD-1", Direction: auditlog.DirectionIn, CreatedAt: time3, StatusCode: intPtr(1)},
				{CorrelationID: "ORD-2", Direction: auditlog.DirectionOut, CreatedAt: time2},
			},
			expected: &RetrospectiveReport{
				CorrelationID:  "ORD-1",
				TotalExchanges: 3,
				Outbound:       2,
				Inbound:        1,
				ErrorBreakdown: map[string]int{},
				AmountInCents:  2000,
				Currency:       "EUR",
				PaymentURL:     "https://pay.example/abc",
				LastStatus:     "completed",
				Settled:        true,
				DateFrom:       time1,
				DateTo:         time3,
				Duration:       10 * time.Minute,
			},
		},
		{
			name: "FailedExchanges",
			entries: []auditlog.Entry{
				{CorrelationID: "ORD-1", Direction: auditlog.DirectionOut, CreatedAt: time2, Error: strPtr("circuit open")},
				{CorrelationID: "ORD-1", Direction: auditlog.DirectionOut, CreatedAt: time1, Error: strPtr("circuit open"),
					RequestBody: strPtr("not json")},
				{CorrelationID: "ORD-1", Direction: auditlog.DirectionIn, CreatedAt: time2, StatusCode: intPtr(0)},
			},
			expected: &RetrospectiveReport{
				CorrelationID:   "ORD-1",
				TotalExchanges:  3,
				Outbound:        2,
				Inbound:         1,
				FailedExchanges: 2,
				ErrorBreakdown:  map[string]int{"circuit open": 2},
				DateFrom:        time1,
				DateTo:          time2,
				Duration:        5 * time.Minute,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateRetrospective("ORD-1", tt.entries))
		})
	}
}

func TestRetrospectiveReporter_Report(t *testing.T) {
	sink := auditlog.NewMemorySink()
	rec := auditlog.NewRecorder(sink, nil)
	p := rec.Begin("MultiSafepay", "ORD-7", auditlog.DirectionOut, "")
	p.SetRequestBody(`{"amount":150,"currency":"USD"}`)
	p.Flush(context.Background())

	report, err := NewRetrospectiveReporter(sink).Report(context.Background(), "ORD-7")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalExchanges)
	assert.Equal(t, int64(150), report.AmountInCents)
	assert.Equal(t, "USD", report.Currency)

	_, err = NewRetrospectiveReporter(failingLister{}).Report(context.Background(), "ORD-7")
	assert.ErrorContains(t, err, "db down")

	_, err = NewRetrospectiveReporter(nil).Report(context.Background(), "ORD-7")
	assert.Error(t, err)
}
